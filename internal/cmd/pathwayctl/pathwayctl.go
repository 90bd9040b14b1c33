// Package pathwayctl implements the pathways maintenance commands.
package pathwayctl

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/petrijr/pathways/internal/export"
	entrypoint "github.com/petrijr/pathways/internal/platform/cmd"
	"github.com/petrijr/pathways/internal/transport/httpapi"
	"github.com/petrijr/pathways/pkg/api"
)

// ExportConfig configures export-student-state.
type ExportConfig struct {
	// MySQLDSN points at the LMS database.
	MySQLDSN  string `env:"LMS_MYSQL_DSN"`
	Prefixes  string `env:"EXPORT_BLOCK_PREFIXES"`
	ChunkSize int    `env:"EXPORT_CHUNK_SIZE" envDefault:"1000"`
	DryRun    bool   `env:"EXPORT_DRY_RUN" envDefault:"false"`
}

// TokenConfig configures token.
type TokenConfig struct {
	JWTSecret string        `env:"JWT_SECRET"`
	JWTIssuer string        `env:"JWT_ISSUER" envDefault:"pathways"`
	TTL       time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	Username  string
	UserID    int64
	Staff     bool
	Groups    string
}

const usage = `usage: pathwayctl <command> [flags]

commands:
  export-student-state   dump learner state for pathway and library blocks as CSV
  token                  mint a development API token`

// Main runs the command named by args[0], writing results to stdout.
func Main(ctx context.Context, args []string, stdout io.Writer, logger *slog.Logger) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	switch args[0] {
	case "export-student-state":
		cfg, err := ParseExportConfig(flag.NewFlagSet(args[0], flag.ContinueOnError), args[1:])
		if err != nil {
			return err
		}
		return RunExport(ctx, cfg, stdout, logger)
	case "token":
		cfg, err := ParseTokenConfig(flag.NewFlagSet(args[0], flag.ContinueOnError), args[1:])
		if err != nil {
			return err
		}
		return RunToken(cfg, stdout)
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

// ParseExportConfig parses environment and flags into ExportConfig.
func ParseExportConfig(fs *flag.FlagSet, args []string) (ExportConfig, error) {
	var cfg ExportConfig
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return ExportConfig{}, err
	}
	fs.StringVar(&cfg.MySQLDSN, "dsn", cfg.MySQLDSN, "LMS MySQL DSN")
	fs.StringVar(&cfg.Prefixes, "block-prefix", cfg.Prefixes, "Comma-separated block key prefixes (default: "+strings.Join(export.DefaultPrefixes, ",")+")")
	fs.StringVar(&cfg.Prefixes, "b", cfg.Prefixes, "Shorthand for -block-prefix")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "Rows fetched per query")
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "Print the query plan as JSON instead of exporting")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return ExportConfig{}, err
	}
	if cfg.MySQLDSN == "" {
		return ExportConfig{}, errors.New("a MySQL DSN is required (-dsn or PATHWAYS_LMS_MYSQL_DSN)")
	}
	return cfg, nil
}

// RunExport writes the CSV export, or the query plan, to stdout.
func RunExport(ctx context.Context, cfg ExportConfig, stdout io.Writer, logger *slog.Logger) error {
	db, err := export.Open(cfg.MySQLDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	exp := export.New(db, export.Options{
		Prefixes:  export.ParsePrefixes(cfg.Prefixes),
		ChunkSize: cfg.ChunkSize,
	})
	if cfg.DryRun {
		return exp.Explain(ctx, stdout)
	}

	start := time.Now()
	n, err := exp.WriteCSV(ctx, stdout)
	if err != nil {
		return err
	}
	logger.Info("export finished",
		slog.Int("rows", n),
		slog.String("prefixes", strings.Join(exp.Prefixes(), ",")),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// ParseTokenConfig parses environment and flags into TokenConfig.
func ParseTokenConfig(fs *flag.FlagSet, args []string) (TokenConfig, error) {
	var cfg TokenConfig
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return TokenConfig{}, err
	}
	fs.StringVar(&cfg.Username, "username", "", "Username (token subject)")
	fs.Int64Var(&cfg.UserID, "user-id", 0, "Numeric user id")
	fs.BoolVar(&cfg.Staff, "staff", false, "Mark the user as global staff")
	fs.StringVar(&cfg.Groups, "groups", "", "Comma-separated group names")
	fs.DurationVar(&cfg.TTL, "ttl", cfg.TTL, "Token lifetime")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return TokenConfig{}, err
	}
	if cfg.Username == "" {
		return TokenConfig{}, errors.New("-username is required")
	}
	return cfg, nil
}

// RunToken prints a signed token for the configured user.
func RunToken(cfg TokenConfig, stdout io.Writer) error {
	auth, err := httpapi.NewAuthenticator([]byte(cfg.JWTSecret), cfg.JWTIssuer)
	if err != nil {
		return err
	}
	tok, err := auth.Issue(api.Principal{
		UserID:   cfg.UserID,
		Username: cfg.Username,
		IsStaff:  cfg.Staff,
		Groups:   splitList(cfg.Groups),
	}, cfg.TTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, tok)
	return err
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
