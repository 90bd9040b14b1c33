// Package learningcontext resolves block usage keys to the block
// definitions they point at.
//
// Each kind of learning context (pathway, content library) owns a key
// namespace and knows how its usages map to definitions. A pathway
// usage is only an alias: it resolves through the pathway's item list to
// the original block in its own context.
package learningcontext

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/petrijr/pathways/pkg/api"
	"github.com/petrijr/pathways/pkg/keys"
)

// ErrBlockNotFound is returned when a usage key does not resolve to a block.
var ErrBlockNotFound = errors.New("block not found")

// Definition locates the stored definition of a block.
type Definition struct {
	// Context is the learning context holding the definition.
	Context   keys.ContextKey
	BlockType string
	// DefinitionID identifies the definition within Context.
	DefinitionID string
	// OLXPath is the path of the definition's OLX file in the context's
	// content bundle.
	OLXPath string
}

// Include is a parsed <xblock-include> child reference.
type Include struct {
	BlockType    string
	DefinitionID string
	// UsageHint is the usage id the author asked for, if any.
	UsageHint string
}

// Context is implemented by every kind of learning context.
type Context interface {
	// DefinitionForUsage returns the definition of the block key points
	// at, or ErrBlockNotFound.
	DefinitionForUsage(ctx context.Context, key keys.UsageKey) (Definition, error)

	// UsageForChildInclude returns the usage key of a child loaded from
	// an <xblock-include> inside the block parent.
	UsageForChildInclude(ctx context.Context, parent keys.UsageKey, include Include) (keys.UsageKey, error)

	// CanViewBlock reports whether p may view and interact with the block.
	CanViewBlock(ctx context.Context, p api.Principal, key keys.UsageKey) bool

	// CanEditBlock reports whether p may edit the block.
	CanEditBlock(ctx context.Context, p api.Principal, key keys.UsageKey) bool
}

// Registry maps usage key namespaces to their learning context.
type Registry struct {
	mu          sync.RWMutex
	byNamespace map[string]Context
}

func NewRegistry() *Registry {
	return &Registry{byNamespace: make(map[string]Context)}
}

// Register installs c for usage keys in namespace, replacing any previous
// registration.
func (r *Registry) Register(namespace string, c Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byNamespace[namespace] = c
}

// ForKey returns the learning context responsible for key.
func (r *Registry) ForKey(key keys.UsageKey) (Context, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byNamespace[key.Namespace()]
	if !ok {
		return nil, fmt.Errorf("no learning context for namespace %q: %w", key.Namespace(), ErrBlockNotFound)
	}
	return c, nil
}

// DefinitionForUsage dispatches to the context responsible for key.
func (r *Registry) DefinitionForUsage(ctx context.Context, key keys.UsageKey) (Definition, error) {
	c, err := r.ForKey(key)
	if err != nil {
		return Definition{}, err
	}
	return c.DefinitionForUsage(ctx, key)
}

// UsageForChildInclude dispatches to the context responsible for parent.
func (r *Registry) UsageForChildInclude(ctx context.Context, parent keys.UsageKey, include Include) (keys.UsageKey, error) {
	c, err := r.ForKey(parent)
	if err != nil {
		return nil, err
	}
	return c.UsageForChildInclude(ctx, parent, include)
}

// blockExists is the permission rule shared by the built-in contexts:
// any principal may view or edit a block that resolves.
func blockExists(ctx context.Context, c Context, key keys.UsageKey) bool {
	_, err := c.DefinitionForUsage(ctx, key)
	return err == nil
}
