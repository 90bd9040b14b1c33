package keys

import (
	"strings"
)

const (
	LibraryNamespace      = "lib"
	LibraryUsageNamespace = "lb"
)

func init() {
	registerContext(LibraryNamespace, func(body string) (ContextKey, error) {
		return parseLibraryBody(body)
	})
	registerUsage(LibraryUsageNamespace, func(body string) (UsageKey, error) {
		return parseLibraryUsageBody(body)
	})
}

// LibraryKey identifies a content library: "lib:<org>:<slug>".
type LibraryKey struct {
	Org  string
	Slug string
}

var _ ContextKey = LibraryKey{}

func NewLibraryKey(org, slug string) (LibraryKey, error) {
	if err := checkField("org", org, asciiFieldRE); err != nil {
		return LibraryKey{}, err
	}
	if err := checkField("slug", slug, usageIDRE); err != nil {
		return LibraryKey{}, err
	}
	return LibraryKey{Org: org, Slug: slug}, nil
}

func parseLibraryBody(body string) (LibraryKey, error) {
	parts := strings.Split(body, ":")
	if len(parts) != 2 {
		return LibraryKey{}, invalidf("library key %q must have 2 parts", body)
	}
	return NewLibraryKey(parts[0], parts[1])
}

func (k LibraryKey) Namespace() string { return LibraryNamespace }
func (k LibraryKey) IsCourse() bool    { return false }
func (k LibraryKey) String() string {
	return LibraryNamespace + ":" + k.Org + ":" + k.Slug
}

// LibraryUsageKey identifies a block in a content library:
// "lb:<org>:<slug>:<block_type>:<usage_id>".
type LibraryUsageKey struct {
	Library LibraryKey
	Type    string
	UsageID string
}

var _ UsageKey = LibraryUsageKey{}

func NewLibraryUsageKey(lib LibraryKey, blockType, usageID string) (LibraryUsageKey, error) {
	if err := checkField("block_type", blockType, asciiFieldRE); err != nil {
		return LibraryUsageKey{}, err
	}
	if err := checkField("usage_id", usageID, usageIDRE); err != nil {
		return LibraryUsageKey{}, err
	}
	return LibraryUsageKey{Library: lib, Type: blockType, UsageID: usageID}, nil
}

func parseLibraryUsageBody(body string) (LibraryUsageKey, error) {
	parts := strings.Split(body, ":")
	if len(parts) != 4 {
		return LibraryUsageKey{}, invalidf("library usage key %q must have 4 parts", body)
	}
	lib, err := NewLibraryKey(parts[0], parts[1])
	if err != nil {
		return LibraryUsageKey{}, err
	}
	return NewLibraryUsageKey(lib, parts[2], parts[3])
}

func (k LibraryUsageKey) Namespace() string   { return LibraryUsageNamespace }
func (k LibraryUsageKey) BlockType() string   { return k.Type }
func (k LibraryUsageKey) BlockID() string     { return k.UsageID }
func (k LibraryUsageKey) Context() ContextKey { return k.Library }

func (k LibraryUsageKey) String() string {
	return strings.Join([]string{LibraryUsageNamespace, k.Library.Org, k.Library.Slug, k.Type, k.UsageID}, ":")
}

func (k LibraryUsageKey) WithBlock(blockType, blockID string) (UsageKey, error) {
	if blockType == k.Type && blockID == k.UsageID {
		return k, nil
	}
	return NewLibraryUsageKey(k.Library, blockType, blockID)
}
