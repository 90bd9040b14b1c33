package api

import (
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"

	"github.com/petrijr/pathways/pkg/keys"
)

var (
	// ErrNotFound is returned for unknown pathways, users and groups, and
	// for malformed pathway keys.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied is returned when the principal may not perform
	// the operation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConflict is returned when creating a pathway whose uuid is taken.
	ErrConflict = errors.New("a conflicting pathway already exists")
)

// Principal is the authenticated caller of a Service operation.
type Principal struct {
	UserID   int64
	Username string
	IsStaff  bool
	Groups   []string
}

// InGroup reports whether the principal is a member of the named group.
func (p Principal) InGroup(name string) bool {
	return slices.Contains(p.Groups, name)
}

// CreateRequest describes a new pathway.
type CreateRequest struct {
	// UUID, when set, is used instead of a random one. This lets existing
	// pathways migrate from another system without changing their keys.
	UUID *uuid.UUID
	// OwnerGroupName makes the new pathway owned by a group instead of by
	// the caller.
	OwnerGroupName *string
	// Draft is the initial draft data. Nil means empty defaults.
	Draft *Data
}

// UpdateRequest is a partial update. Nil fields are left unchanged.
type UpdateRequest struct {
	Draft          *Data
	OwnerUserID    *int64
	OwnerGroupName *string
}

// ListOptions filters List results. Zero values mean "no filter".
type ListOptions struct {
	OwnerUserID    *int64
	OwnerGroupName string
}

// Service is the pathway management API.
type Service interface {
	// Create stores a new pathway with a cleaned draft and an empty
	// published copy.
	Create(ctx context.Context, p Principal, req CreateRequest) (*Pathway, error)

	// Get returns the pathway identified by key.
	Get(ctx context.Context, p Principal, key keys.PathwayKey) (*Pathway, error)

	// Update replaces the draft and/or changes the owner. Changing the
	// owner is restricted to staff.
	Update(ctx context.Context, p Principal, key keys.PathwayKey, req UpdateRequest) (*Pathway, error)

	// Delete removes the pathway.
	Delete(ctx context.Context, p Principal, key keys.PathwayKey) error

	// Publish copies the draft over the published data.
	Publish(ctx context.Context, p Principal, key keys.PathwayKey) (*Pathway, error)

	// Revert discards the draft, copying the published data over it.
	Revert(ctx context.Context, p Principal, key keys.PathwayKey) (*Pathway, error)

	// List returns pathways ordered by creation time.
	List(ctx context.Context, p Principal, opts ListOptions) ([]*Pathway, error)

	// History returns the audit events of a pathway, oldest first.
	History(ctx context.Context, p Principal, key keys.PathwayKey) ([]PathwayEvent, error)
}

// Directory answers questions about users and groups that pathways can
// be owned by.
type Directory interface {
	UserExists(ctx context.Context, id int64) (bool, error)
	GroupExists(ctx context.Context, name string) (bool, error)
}

// detailError attaches a user-facing message to one of the sentinel errors
// above.
type detailError struct {
	kind error
	msg  string
}

func (e *detailError) Error() string { return e.msg }
func (e *detailError) Unwrap() error { return e.kind }

// WithDetail returns an error that matches kind with errors.Is but reads
// as msg. Transports show msg to the client.
func WithDetail(kind error, msg string) error {
	return &detailError{kind: kind, msg: msg}
}

// Detail returns the user-facing message attached with WithDetail.
func Detail(err error) (string, bool) {
	var d *detailError
	if errors.As(err, &d) {
		return d.msg, true
	}
	return "", false
}

func isClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, keys.ErrInvalidKey)
}
