package pathways

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/pathways/internal/outbox"
	"github.com/petrijr/pathways/internal/persistence"
	"github.com/petrijr/pathways/internal/service"
	"github.com/petrijr/pathways/pkg/api"
	"github.com/petrijr/pathways/pkg/keys"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Service              = api.Service
	Pathway              = api.Pathway
	Data                 = api.Data
	Item                 = api.Item
	Owner                = api.Owner
	Principal            = api.Principal
	CreateRequest        = api.CreateRequest
	UpdateRequest        = api.UpdateRequest
	ListOptions          = api.ListOptions
	Directory            = api.Directory
	PathwayEvent         = api.PathwayEvent
	EventType            = api.EventType
	ValidationError      = api.ValidationError
	RetryPolicy          = api.RetryPolicy
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
	PathwayKey           = keys.PathwayKey
	PathwayUsageKey      = keys.PathwayUsageKey
)

// Re-export common helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	OwnerUser            = api.OwnerUser
	OwnerGroup           = api.OwnerGroup
	Clean                = api.Clean
	ParsePathwayKey      = keys.ParsePathwayKey
	ParsePathwayUsageKey = keys.ParsePathwayUsageKey
)

// Re-export event types and errors.

const (
	EventPathwayCreated      = api.EventPathwayCreated
	EventPathwayDraftUpdated = api.EventPathwayDraftUpdated
	EventPathwayOwnerChanged = api.EventPathwayOwnerChanged
	EventPathwayPublished    = api.EventPathwayPublished
	EventPathwayReverted     = api.EventPathwayReverted
	EventPathwayDeleted      = api.EventPathwayDeleted

	MaxItems = api.MaxItems
)

var (
	ErrNotFound         = api.ErrNotFound
	ErrPermissionDenied = api.ErrPermissionDenied
	ErrConflict         = api.ErrConflict
	ErrInvalidKey       = keys.ErrInvalidKey
)

// Options configures a Service built by the constructors below.
type Options struct {
	// AuthorizedUsernames lists the only users allowed to use the service.
	AuthorizedUsernames []string
	// Directory answers whether owners exist. Nil knows no users or groups.
	Directory Directory
	Observer  Observer
	Logger    *slog.Logger
}

func (o Options) config(p persistence.Persistence, q outbox.Queue) service.Config {
	return service.Config{
		Persistence:         p,
		Outbox:              q,
		Directory:           o.Directory,
		AuthorizedUsernames: o.AuthorizedUsernames,
		Observer:            o.Observer,
		Logger:              o.Logger,
	}
}

// NewStaticDirectory returns a Directory knowing exactly the given users
// and groups.
func NewStaticDirectory(userIDs []int64, groups []string) Directory {
	return service.NewStaticDirectory(userIDs, groups)
}

// Service constructors.
// These wrap the internal/service package so external callers never need
// to import internal packages. Services built here send no change
// notifications; see NewSQLiteBundle and NewLocalRunner for that.

// NewInMemoryService returns a Service backed entirely by in-memory stores.
func NewInMemoryService(opts Options) Service {
	return service.New(opts.config(service.InMemoryPersistence(), nil))
}

// NewSQLiteService returns a Service that stores pathways and their
// history in a SQLite database.
func NewSQLiteService(db *sql.DB, opts Options) (Service, error) {
	p, err := service.SQLitePersistence(db)
	if err != nil {
		return nil, err
	}
	return service.New(opts.config(p, nil)), nil
}

// NewPostgresService returns a Service that stores pathways in PostgreSQL.
func NewPostgresService(db *sql.DB, opts Options) (Service, error) {
	p, err := service.PostgresPersistence(db)
	if err != nil {
		return nil, err
	}
	return service.New(opts.config(p, nil)), nil
}

// NewRedisService returns a Service that stores pathways in Redis under
// prefix.
func NewRedisService(client *redis.Client, prefix string, opts Options) Service {
	return service.New(opts.config(service.RedisPersistence(client, prefix), nil))
}

// NewMongoService returns a Service that stores pathways in the named
// MongoDB database.
func NewMongoService(client *mongo.Client, dbName string, opts Options) Service {
	return service.New(opts.config(service.MongoPersistence(client, dbName), nil))
}

// Convenience helpers that just forward to the underlying Service.

// Publish makes the draft of the pathway identified by key live.
func Publish(ctx context.Context, svc Service, p Principal, key PathwayKey) (*Pathway, error) {
	return svc.Publish(ctx, p, key)
}

// Revert discards unpublished changes to the pathway identified by key.
func Revert(ctx context.Context, svc Service, p Principal, key PathwayKey) (*Pathway, error) {
	return svc.Revert(ctx, p, key)
}
