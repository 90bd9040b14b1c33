// Package service implements the pathway management API on top of a
// persistence backend.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/pathways/internal/outbox"
	"github.com/petrijr/pathways/internal/persistence"
	"github.com/petrijr/pathways/pkg/api"
	"github.com/petrijr/pathways/pkg/keys"
)

const (
	msgInvalidGroup   = "Invalid group name. Does the group exist and are you a member?"
	msgOwnerStaffOnly = "Only global staff can change a pathway owner."
	msgNotAuthorized  = "You do not have permission to perform this action."
	msgConflict       = "A conflicting pathway already exists."

	lockStripes = 64
)

// Config describes how to construct a pathway service.
type Config struct {
	Persistence persistence.Persistence

	// Outbox receives a change notification for every mutation. Nil
	// disables notifications.
	Outbox outbox.Queue

	// Directory answers whether owners exist. Nil means no user or group
	// is known, so owner changes fail.
	Directory api.Directory

	// AuthorizedUsernames lists the only users allowed to use the service.
	AuthorizedUsernames []string

	Observer api.Observer
	Logger   *slog.Logger

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// serviceImpl implements api.Service on top of a PathwayStore.
type serviceImpl struct {
	pathways persistence.PathwayStore
	events   persistence.EventStore
	outbox   outbox.Queue

	directory  api.Directory
	authorized map[string]struct{}
	observer   api.Observer
	logger     *slog.Logger
	now        func() time.Time

	// Read-modify-write operations on one pathway are serialized.
	locks [lockStripes]sync.Mutex
}

var _ api.Service = (*serviceImpl)(nil)

// New creates a Service using the given configuration.
func New(cfg Config) api.Service {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	events := cfg.Persistence.Events
	if events == nil {
		events = persistence.NoopEventStore{}
	}
	dir := cfg.Directory
	if dir == nil {
		dir = NewStaticDirectory(nil, nil)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	authorized := make(map[string]struct{}, len(cfg.AuthorizedUsernames))
	for _, name := range cfg.AuthorizedUsernames {
		authorized[name] = struct{}{}
	}

	return &serviceImpl{
		pathways:   cfg.Persistence.Pathways,
		events:     events,
		outbox:     cfg.Outbox,
		directory:  dir,
		authorized: authorized,
		observer:   obs,
		logger:     logger,
		now:        clock,
	}
}

func (s *serviceImpl) Create(ctx context.Context, p api.Principal, req api.CreateRequest) (*api.Pathway, error) {
	const op = "Create"
	if err := s.authorize(p); err != nil {
		return nil, s.fail(ctx, op, "", err)
	}

	owner := api.OwnerUser(p.UserID)
	if req.OwnerGroupName != nil {
		name := *req.OwnerGroupName
		ok, err := s.mayCreateForGroup(ctx, p, name)
		if err != nil {
			return nil, s.fail(ctx, op, "", err)
		}
		if !ok {
			return nil, s.fail(ctx, op, "", &api.ValidationError{Field: "owner_group_name", Message: msgInvalidGroup})
		}
		owner = api.OwnerGroup(name)
	}

	var draftIn api.Data
	if req.Draft != nil {
		draftIn = *req.Draft
	}
	draft, err := api.Clean(draftIn)
	if err != nil {
		return nil, s.fail(ctx, op, "", err)
	}

	id := uuid.New()
	if req.UUID != nil {
		id = *req.UUID
	}
	now := s.now().UTC()
	pw := &api.Pathway{
		UUID:      id,
		Owner:     owner,
		Draft:     draft,
		Published: api.EmptyData(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	key := pw.Key().String()

	if err := s.pathways.CreatePathway(ctx, pw); err != nil {
		if errors.Is(err, persistence.ErrPathwayExists) {
			err = api.WithDetail(api.ErrConflict, msgConflict)
		}
		return nil, s.fail(ctx, op, key, err)
	}

	s.record(ctx, pw, p, api.EventPathwayCreated, ownerDetail(owner))
	return pw, nil
}

func (s *serviceImpl) mayCreateForGroup(ctx context.Context, p api.Principal, name string) (bool, error) {
	if name == "" {
		return false, nil
	}
	// Regular users can only create pathways owned by groups they belong to.
	if !p.IsStaff {
		return p.InGroup(name), nil
	}
	return s.directory.GroupExists(ctx, name)
}

func (s *serviceImpl) Get(ctx context.Context, p api.Principal, key keys.PathwayKey) (*api.Pathway, error) {
	const op = "Get"
	if err := s.authorize(p); err != nil {
		return nil, s.fail(ctx, op, key.String(), err)
	}
	pw, err := s.load(ctx, key)
	if err != nil {
		return nil, s.fail(ctx, op, key.String(), err)
	}
	return pw, nil
}

func (s *serviceImpl) Update(ctx context.Context, p api.Principal, key keys.PathwayKey, req api.UpdateRequest) (*api.Pathway, error) {
	const op = "Update"
	if err := s.authorize(p); err != nil {
		return nil, s.fail(ctx, op, key.String(), err)
	}

	ownerChange := req.OwnerUserID != nil || req.OwnerGroupName != nil
	if ownerChange && !p.IsStaff {
		return nil, s.fail(ctx, op, key.String(), api.WithDetail(api.ErrPermissionDenied, msgOwnerStaffOnly))
	}

	var draft *api.Data
	if req.Draft != nil {
		cleaned, err := api.Clean(*req.Draft)
		if err != nil {
			return nil, s.fail(ctx, op, key.String(), err)
		}
		draft = &cleaned
	}

	var newOwner *api.Owner
	if ownerChange {
		owner, err := s.resolveOwner(ctx, req)
		if err != nil {
			return nil, s.fail(ctx, op, key.String(), err)
		}
		newOwner = owner
	}

	unlock := s.lock(key)
	defer unlock()

	pw, err := s.load(ctx, key)
	if err != nil {
		return nil, s.fail(ctx, op, key.String(), err)
	}
	if draft != nil {
		pw.Draft = *draft
	}
	if newOwner != nil {
		pw.Owner = *newOwner
	}
	pw.UpdatedAt = s.now().UTC()

	if err := s.pathways.UpdatePathway(ctx, pw); err != nil {
		return nil, s.fail(ctx, op, key.String(), s.storeErr(err))
	}

	if draft != nil {
		s.record(ctx, pw, p, api.EventPathwayDraftUpdated, fmt.Sprintf("items=%d", len(pw.Draft.Items)))
	}
	if newOwner != nil {
		s.record(ctx, pw, p, api.EventPathwayOwnerChanged, ownerDetail(*newOwner))
	}
	return pw, nil
}

// resolveOwner returns the requested owner, or nil when the request names
// no owner. A user id wins over a group name.
func (s *serviceImpl) resolveOwner(ctx context.Context, req api.UpdateRequest) (*api.Owner, error) {
	if req.OwnerUserID != nil && *req.OwnerUserID != 0 {
		ok, err := s.directory.UserExists(ctx, *req.OwnerUserID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("user %d: %w", *req.OwnerUserID, api.ErrNotFound)
		}
		owner := api.OwnerUser(*req.OwnerUserID)
		return &owner, nil
	}
	if req.OwnerGroupName != nil && *req.OwnerGroupName != "" {
		ok, err := s.directory.GroupExists(ctx, *req.OwnerGroupName)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("group %q: %w", *req.OwnerGroupName, api.ErrNotFound)
		}
		owner := api.OwnerGroup(*req.OwnerGroupName)
		return &owner, nil
	}
	return nil, nil
}

func (s *serviceImpl) Delete(ctx context.Context, p api.Principal, key keys.PathwayKey) error {
	const op = "Delete"
	if err := s.authorize(p); err != nil {
		return s.fail(ctx, op, key.String(), err)
	}

	unlock := s.lock(key)
	defer unlock()

	pw, err := s.load(ctx, key)
	if err != nil {
		return s.fail(ctx, op, key.String(), err)
	}
	if err := s.pathways.DeletePathway(ctx, key.UUID); err != nil {
		return s.fail(ctx, op, key.String(), s.storeErr(err))
	}

	s.record(ctx, pw, p, api.EventPathwayDeleted, "")
	return nil
}

func (s *serviceImpl) Publish(ctx context.Context, p api.Principal, key keys.PathwayKey) (*api.Pathway, error) {
	return s.copyData(ctx, p, key, "Publish", api.EventPathwayPublished, func(pw *api.Pathway) {
		pw.Published = pw.Draft.Clone()
	})
}

func (s *serviceImpl) Revert(ctx context.Context, p api.Principal, key keys.PathwayKey) (*api.Pathway, error) {
	return s.copyData(ctx, p, key, "Revert", api.EventPathwayReverted, func(pw *api.Pathway) {
		pw.Draft = pw.Published.Clone()
	})
}

func (s *serviceImpl) copyData(
	ctx context.Context,
	p api.Principal,
	key keys.PathwayKey,
	op string,
	evType api.EventType,
	apply func(pw *api.Pathway),
) (*api.Pathway, error) {
	if err := s.authorize(p); err != nil {
		return nil, s.fail(ctx, op, key.String(), err)
	}

	unlock := s.lock(key)
	defer unlock()

	pw, err := s.load(ctx, key)
	if err != nil {
		return nil, s.fail(ctx, op, key.String(), err)
	}
	apply(pw)
	pw.UpdatedAt = s.now().UTC()

	if err := s.pathways.UpdatePathway(ctx, pw); err != nil {
		return nil, s.fail(ctx, op, key.String(), s.storeErr(err))
	}

	s.record(ctx, pw, p, evType, fmt.Sprintf("items=%d", len(pw.Published.Items)))
	return pw, nil
}

func (s *serviceImpl) List(ctx context.Context, p api.Principal, opts api.ListOptions) ([]*api.Pathway, error) {
	const op = "List"
	if err := s.authorize(p); err != nil {
		return nil, s.fail(ctx, op, "", err)
	}
	out, err := s.pathways.ListPathways(ctx, persistence.PathwayFilter{
		OwnerUserID:    opts.OwnerUserID,
		OwnerGroupName: opts.OwnerGroupName,
	})
	if err != nil {
		return nil, s.fail(ctx, op, "", err)
	}
	return out, nil
}

func (s *serviceImpl) History(ctx context.Context, p api.Principal, key keys.PathwayKey) ([]api.PathwayEvent, error) {
	const op = "History"
	if err := s.authorize(p); err != nil {
		return nil, s.fail(ctx, op, key.String(), err)
	}

	evs, err := s.events.ListEvents(ctx, key.UUID)
	if err != nil {
		return nil, s.fail(ctx, op, key.String(), err)
	}
	if len(evs) > 0 {
		return evs, nil
	}
	// No history: tell unknown pathways apart from ones without events.
	if _, err := s.load(ctx, key); err != nil {
		return nil, s.fail(ctx, op, key.String(), err)
	}
	return []api.PathwayEvent{}, nil
}

func (s *serviceImpl) authorize(p api.Principal) error {
	if _, ok := s.authorized[p.Username]; !ok || p.Username == "" {
		return api.WithDetail(api.ErrPermissionDenied, msgNotAuthorized)
	}
	return nil
}

func (s *serviceImpl) load(ctx context.Context, key keys.PathwayKey) (*api.Pathway, error) {
	pw, err := s.pathways.GetPathway(ctx, key.UUID)
	if err != nil {
		return nil, s.storeErr(err)
	}
	return pw, nil
}

func (s *serviceImpl) storeErr(err error) error {
	if errors.Is(err, persistence.ErrPathwayNotFound) {
		return fmt.Errorf("%w: %w", api.ErrNotFound, err)
	}
	return err
}

func (s *serviceImpl) lock(key keys.PathwayKey) func() {
	mu := &s.locks[int(key.UUID[0])%lockStripes]
	mu.Lock()
	return mu.Unlock
}

func (s *serviceImpl) fail(ctx context.Context, op, key string, err error) error {
	s.observer.OnOperationFailed(ctx, op, key, err)
	return err
}

// record appends the history event, queues the change notification and
// notifies the observer. The mutation is already stored, so failures here
// are logged rather than returned.
func (s *serviceImpl) record(ctx context.Context, pw *api.Pathway, p api.Principal, typ api.EventType, detail string) {
	ev := api.PathwayEvent{
		PathwayUUID: pw.UUID,
		At:          s.now().UTC(),
		Type:        typ,
		Actor:       p.Username,
		Detail:      detail,
	}

	if err := s.events.AppendEvent(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "pathway_event_append_failed",
			slog.String("pathway", pw.Key().String()),
			slog.String("type", string(typ)),
			slog.Any("error", err),
		)
	}
	if s.outbox != nil {
		if err := s.outbox.Enqueue(ctx, outbox.NewTask(ev)); err != nil {
			s.logger.WarnContext(ctx, "pathway_notification_enqueue_failed",
				slog.String("pathway", pw.Key().String()),
				slog.String("type", string(typ)),
				slog.Any("error", err),
			)
		}
	}
	s.observer.OnPathwayEvent(ctx, pw, ev)
}

func ownerDetail(o api.Owner) string {
	switch {
	case o.UserID != nil:
		return "user:" + strconv.FormatInt(*o.UserID, 10)
	case o.GroupName != "":
		return "group:" + o.GroupName
	default:
		return ""
	}
}
