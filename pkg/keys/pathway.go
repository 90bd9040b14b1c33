package keys

import (
	"strings"

	"github.com/google/uuid"
)

const (
	// PathwayNamespace is the namespace of pathway context keys.
	PathwayNamespace = "lx-pathway"
	// PathwayUsageNamespace is the namespace of blocks used in a pathway.
	PathwayUsageNamespace = "lx-pb"
)

func init() {
	registerContext(PathwayNamespace, func(body string) (ContextKey, error) {
		return parsePathwayBody(body)
	})
	registerUsage(PathwayUsageNamespace, func(body string) (UsageKey, error) {
		return parsePathwayUsageBody(body)
	})
}

// PathwayKey identifies a pathway, e.g.
//
//	lx-pathway:3f3314f8-5f59-4215-b284-09fb578f561e
type PathwayKey struct {
	UUID uuid.UUID
}

var _ ContextKey = PathwayKey{}

// NewPathwayKey returns the key of the pathway with the given uuid.
func NewPathwayKey(id uuid.UUID) PathwayKey {
	return PathwayKey{UUID: id}
}

// ParsePathwayKey parses "lx-pathway:<uuid>".
func ParsePathwayKey(s string) (PathwayKey, error) {
	body, ok := strings.CutPrefix(s, PathwayNamespace+":")
	if !ok {
		return PathwayKey{}, invalidf("%q is not a pathway key", s)
	}
	return parsePathwayBody(body)
}

func parsePathwayBody(body string) (PathwayKey, error) {
	id, err := parseCanonicalUUID(body)
	if err != nil {
		return PathwayKey{}, err
	}
	return PathwayKey{UUID: id}, nil
}

// parseCanonicalUUID only accepts the lowercase hyphenated form so that a
// pathway always has exactly one string key.
func parseCanonicalUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, invalidf("malformed uuid %q", s)
	}
	if id.String() != s {
		return uuid.Nil, invalidf("uuid %q is not in standard form", s)
	}
	return id, nil
}

func (k PathwayKey) Namespace() string { return PathwayNamespace }
func (k PathwayKey) IsCourse() bool    { return false }

func (k PathwayKey) String() string {
	return PathwayNamespace + ":" + k.UUID.String()
}

// PathwayUsageKey identifies a block in a pathway, e.g.
//
//	lx-pb:3f3314f8-5f59-4215-b284-09fb578f561e:html:ec1d6c9f
//	lx-pb:3f3314f8-5f59-4215-b284-09fb578f561e:html:ec1d6c9f:child1
//
// UsageID is the id of the pathway item. ChildUsageID is set for blocks
// that are descendants of the item's block; all descendants share the
// item's UsageID.
type PathwayUsageKey struct {
	Pathway      PathwayKey
	Type         string
	UsageID      string
	ChildUsageID string
}

var _ UsageKey = PathwayUsageKey{}

// NewPathwayUsageKey validates the fields and builds a key.
func NewPathwayUsageKey(pathway PathwayKey, blockType, usageID, childUsageID string) (PathwayUsageKey, error) {
	if err := checkField("block_type", blockType, asciiFieldRE); err != nil {
		return PathwayUsageKey{}, err
	}
	if err := checkField("usage_id", usageID, usageIDRE); err != nil {
		return PathwayUsageKey{}, err
	}
	if childUsageID != "" {
		if err := checkField("child_usage_id", childUsageID, usageIDRE); err != nil {
			return PathwayUsageKey{}, err
		}
	}
	return PathwayUsageKey{
		Pathway:      pathway,
		Type:         blockType,
		UsageID:      usageID,
		ChildUsageID: childUsageID,
	}, nil
}

// ParsePathwayUsageKey parses "lx-pb:<uuid>:<type>:<usage>[:<child>]".
func ParsePathwayUsageKey(s string) (PathwayUsageKey, error) {
	body, ok := strings.CutPrefix(s, PathwayUsageNamespace+":")
	if !ok {
		return PathwayUsageKey{}, invalidf("%q is not a pathway usage key", s)
	}
	return parsePathwayUsageBody(body)
}

func parsePathwayUsageBody(body string) (PathwayUsageKey, error) {
	parts := strings.Split(body, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return PathwayUsageKey{}, invalidf("pathway usage key %q must have 3 or 4 parts", body)
	}
	pathway, err := parsePathwayBody(parts[0])
	if err != nil {
		return PathwayUsageKey{}, err
	}
	var child string
	if len(parts) == 4 {
		child = parts[3]
		if child == "" {
			return PathwayUsageKey{}, invalidf("child_usage_id must not be empty")
		}
	}
	return NewPathwayUsageKey(pathway, parts[1], parts[2], child)
}

func (k PathwayUsageKey) Namespace() string   { return PathwayUsageNamespace }
func (k PathwayUsageKey) BlockType() string   { return k.Type }
func (k PathwayUsageKey) BlockID() string     { return k.UsageID }
func (k PathwayUsageKey) Context() ContextKey { return k.Pathway }

// HTMLID is usable as an html id attribute; these keys never contain spaces.
func (k PathwayUsageKey) HTMLID() string { return k.String() }

func (k PathwayUsageKey) String() string {
	parts := []string{PathwayUsageNamespace, k.Pathway.UUID.String(), k.Type, k.UsageID}
	if k.ChildUsageID != "" {
		parts = append(parts, k.ChildUsageID)
	}
	return strings.Join(parts, ":")
}

// WithBlock replaces the block type and usage id, keeping the child id.
func (k PathwayUsageKey) WithBlock(blockType, blockID string) (UsageKey, error) {
	if blockType == k.Type && blockID == k.UsageID {
		return k, nil
	}
	return NewPathwayUsageKey(k.Pathway, blockType, blockID, k.ChildUsageID)
}
