// Package keys implements the opaque keys used to address pathways and the
// blocks they contain.
//
// Every key serializes as "<namespace>:<body>". A ContextKey identifies a
// learning context (a pathway, a content library, a course); a UsageKey
// identifies one usage of a block inside such a context. Parsing dispatches
// on the namespace, so callers holding an arbitrary string can use
// ParseUsageKey without knowing which kind of key it is.
package keys

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidKey is wrapped by every parse and construction error.
var ErrInvalidKey = errors.New("invalid key")

// ContextKey identifies a learning context.
type ContextKey interface {
	Namespace() string
	String() string
	// IsCourse reports whether the context is a course run.
	IsCourse() bool
}

// UsageKey identifies a usage of a block within a learning context.
type UsageKey interface {
	Namespace() string
	String() string
	BlockType() string
	// BlockID is the usage-specific identifier of the block.
	BlockID() string
	Context() ContextKey
	// WithBlock returns a key in the same context that points at a
	// different block. It returns the receiver unchanged when nothing
	// differs.
	WithBlock(blockType, blockID string) (UsageKey, error)
}

type (
	contextParser func(body string) (ContextKey, error)
	usageParser   func(body string) (UsageKey, error)
)

var (
	contextParsers = map[string]contextParser{}
	usageParsers   = map[string]usageParser{}
)

func registerContext(ns string, p contextParser) { contextParsers[ns] = p }
func registerUsage(ns string, p usageParser)     { usageParsers[ns] = p }

// ParseContextKey parses any registered learning context key.
func ParseContextKey(s string) (ContextKey, error) {
	ns, body, err := splitNamespace(s)
	if err != nil {
		return nil, err
	}
	p, ok := contextParsers[ns]
	if !ok {
		return nil, invalidf("unknown context key namespace %q", ns)
	}
	return p(body)
}

// ParseUsageKey parses any registered usage key.
func ParseUsageKey(s string) (UsageKey, error) {
	ns, body, err := splitNamespace(s)
	if err != nil {
		return nil, err
	}
	p, ok := usageParsers[ns]
	if !ok {
		return nil, invalidf("unknown usage key namespace %q", ns)
	}
	return p(body)
}

func splitNamespace(s string) (string, string, error) {
	ns, body, ok := strings.Cut(s, ":")
	if !ok || ns == "" || body == "" {
		return "", "", invalidf("%q has no namespace", s)
	}
	return ns, body, nil
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidKey, fmt.Sprintf(format, args...))
}

var (
	// Field values in key bodies. Usage ids may contain unicode letters.
	asciiFieldRE = regexp.MustCompile(`^[a-zA-Z0-9_\-.]+$`)
	usageIDRE    = regexp.MustCompile(`^[\p{L}\p{N}_\-.]+$`)
)

func checkField(name, value string, re *regexp.Regexp) error {
	if value == "" {
		return invalidf("%s must not be empty", name)
	}
	if !re.MatchString(value) {
		return invalidf("%s %q contains invalid characters", name, value)
	}
	return nil
}
