// Package server parses pathways-server configuration and runs the HTTP
// API together with the change notification worker.
package server

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/petrijr/pathways/internal/learningcontext"
	"github.com/petrijr/pathways/internal/outbox"
	"github.com/petrijr/pathways/internal/persistence"
	entrypoint "github.com/petrijr/pathways/internal/platform/cmd"
	"github.com/petrijr/pathways/internal/platform/logging"
	"github.com/petrijr/pathways/internal/platform/otel"
	"github.com/petrijr/pathways/internal/service"
	"github.com/petrijr/pathways/internal/transport/httpapi"
	"github.com/petrijr/pathways/pkg/api"
	"github.com/petrijr/pathways/pkg/notify"
)

// Router modes.
const (
	ModeStudio = "studio"
	ModeLMS    = "lms"
)

// Config holds pathways-server configuration. Every field can be set from
// a PATHWAYS_* environment variable.
type Config struct {
	Addr string `env:"ADDR" envDefault:":8000"`
	// Mode selects the Studio (authoring) or LMS (read-only) router.
	Mode     string `env:"MODE" envDefault:"studio"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Store is one of memory, sqlite, postgres, redis, mongo.
	Store         string `env:"STORE" envDefault:"memory"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"pathways.db"`
	PostgresDSN   string `env:"POSTGRES_DSN"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"pathways:"`
	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"pathways"`

	AuthorizedUsernames []string `env:"AUTHORIZED_USERNAMES" envSeparator:","`
	KnownUserIDs        []int64  `env:"USER_IDS" envSeparator:","`
	KnownGroups         []string `env:"GROUPS" envSeparator:","`

	JWTSecret      string   `env:"JWT_SECRET"`
	JWTIssuer      string   `env:"JWT_ISSUER" envDefault:"pathways"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	// OutboxSQLitePath makes change notifications durable. Empty keeps
	// them in memory.
	OutboxSQLitePath  string        `env:"OUTBOX_SQLITE_PATH"`
	OutboxCapacity    int           `env:"OUTBOX_CAPACITY" envDefault:"1024"`
	WebhookURL        string        `env:"WEBHOOK_URL"`
	WebhookToken      string        `env:"WEBHOOK_TOKEN"`
	NotifyMaxAttempts int           `env:"NOTIFY_MAX_ATTEMPTS" envDefault:"5"`
	NotifyBackoff     time.Duration `env:"NOTIFY_BACKOFF" envDefault:"1s"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	OTel otel.Config
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "Router to serve: studio or lms")
	fs.StringVar(&cfg.Store, "store", cfg.Store, "Storage backend: memory, sqlite, postgres, redis or mongo")
	fs.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "SQLite database file")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Mode {
	case ModeStudio, ModeLMS:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	switch c.Store {
	case "memory", "sqlite", "postgres", "redis", "mongo":
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.Store == "postgres" && c.PostgresDSN == "" {
		return errors.New("PATHWAYS_POSTGRES_DSN is required for the postgres store")
	}
	if c.JWTSecret == "" {
		return errors.New("PATHWAYS_JWT_SECRET is required")
	}
	return nil
}

// Run serves the API until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	_, logger, err := logging.Init(entrypoint.ServiceServer, cfg.LogLevel)
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceServer, cfg.OTel, func(ctx context.Context) error {
		return run(ctx, cfg, logger)
	})
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	p, closeStore, err := openPersistence(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	queue, closeQueue, err := openOutbox(cfg)
	if err != nil {
		return err
	}
	defer closeQueue()

	metrics := &api.BasicMetrics{}
	svc := service.New(service.Config{
		Persistence:         p,
		Outbox:              queue,
		Directory:           service.NewStaticDirectory(cfg.KnownUserIDs, cfg.KnownGroups),
		AuthorizedUsernames: cfg.AuthorizedUsernames,
		Observer:            api.NewCompositeObserver(api.NewLoggingObserver(logger), metrics),
		Logger:              logger,
	})

	auth, err := httpapi.NewAuthenticator([]byte(cfg.JWTSecret), cfg.JWTIssuer)
	if err != nil {
		return err
	}
	srv, err := httpapi.New(httpapi.Config{
		Service:        svc,
		Registry:       learningcontext.NewRegistryWithPathways(p.Pathways, cfg.Mode == ModeStudio),
		Auth:           auth,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	if err != nil {
		return err
	}
	router := srv.StudioRouter()
	if cfg.Mode == ModeLMS {
		router = srv.LMSRouter()
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(router, entrypoint.ServiceServer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	worker := notify.NewWithConfig(queue, newSink(cfg, logger), notify.Config{
		Retry: api.RetryPolicy{
			MaxAttempts:    cfg.NotifyMaxAttempts,
			InitialBackoff: cfg.NotifyBackoff,
			MaxBackoff:     time.Minute,
		},
		Logger: logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("starting server",
			slog.String("addr", cfg.Addr),
			slog.String("mode", cfg.Mode),
			slog.String("store", cfg.Store),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		snap := metrics.Snapshot()
		logger.Info("server stopped",
			slog.Int64("created", snap.Created),
			slog.Int64("published", snap.Published),
			slog.Int64("failed", snap.Failed),
		)
		return err
	})
	return g.Wait()
}

func openPersistence(ctx context.Context, cfg Config) (persistence.Persistence, func(), error) {
	noop := func() {}
	switch cfg.Store {
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return persistence.Persistence{}, noop, fmt.Errorf("open sqlite: %w", err)
		}
		p, err := service.SQLitePersistence(db)
		if err != nil {
			_ = db.Close()
			return persistence.Persistence{}, noop, err
		}
		return p, func() { _ = db.Close() }, nil
	case "postgres":
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			return persistence.Persistence{}, noop, fmt.Errorf("open postgres: %w", err)
		}
		p, err := service.PostgresPersistence(db)
		if err != nil {
			_ = db.Close()
			return persistence.Persistence{}, noop, err
		}
		return p, func() { _ = db.Close() }, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return persistence.Persistence{}, noop, fmt.Errorf("ping redis: %w", err)
		}
		return service.RedisPersistence(client, cfg.RedisPrefix), func() { _ = client.Close() }, nil
	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return persistence.Persistence{}, noop, fmt.Errorf("connect mongo: %w", err)
		}
		closeFn := func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(dctx)
		}
		return service.MongoPersistence(client, cfg.MongoDatabase), closeFn, nil
	default:
		return service.InMemoryPersistence(), noop, nil
	}
}

func openOutbox(cfg Config) (outbox.Queue, func(), error) {
	if cfg.OutboxSQLitePath == "" {
		return outbox.NewInMemoryQueue(cfg.OutboxCapacity), func() {}, nil
	}
	db, err := sql.Open("sqlite", cfg.OutboxSQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open outbox: %w", err)
	}
	q, err := outbox.NewSQLiteQueue(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return q, func() { _ = db.Close() }, nil
}

func newSink(cfg Config, logger *slog.Logger) notify.Sink {
	if cfg.WebhookURL == "" {
		return notify.LogSink{Logger: logger}
	}
	return notify.NewWebhookSink(cfg.WebhookURL, notify.WebhookOptions{Token: cfg.WebhookToken})
}
