package pathwayctl

import (
	"bytes"
	"context"
	"flag"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/pathways/internal/transport/httpapi"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMain_Usage(t *testing.T) {
	err := Main(context.Background(), nil, io.Discard, discard())
	require.ErrorContains(t, err, "usage")

	err = Main(context.Background(), []string{"frobnicate"}, io.Discard, discard())
	require.ErrorContains(t, err, "unknown command")
}

func TestToken_RoundTrips(t *testing.T) {
	t.Setenv("PATHWAYS_JWT_SECRET", "dev-secret")

	var out bytes.Buffer
	err := Main(context.Background(), []string{"token", "-username", "lx-admin", "-user-id", "1", "-staff", "-groups", "authors, editors"}, &out, discard())
	require.NoError(t, err)

	auth, err := httpapi.NewAuthenticator([]byte("dev-secret"), "pathways")
	require.NoError(t, err)
	p, err := auth.Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	require.Equal(t, "lx-admin", p.Username)
	require.Equal(t, int64(1), p.UserID)
	require.True(t, p.IsStaff)
	require.Equal(t, []string{"authors", "editors"}, p.Groups)
}

func TestToken_RequiresUsernameAndSecret(t *testing.T) {
	_, err := ParseTokenConfig(flag.NewFlagSet("token", flag.ContinueOnError), nil)
	require.Error(t, err)

	cfg, err := ParseTokenConfig(flag.NewFlagSet("token", flag.ContinueOnError), []string{"-username", "x"})
	require.NoError(t, err)
	require.Error(t, RunToken(cfg, io.Discard))
}

func TestParseExportConfig(t *testing.T) {
	_, err := ParseExportConfig(flag.NewFlagSet("export", flag.ContinueOnError), nil)
	require.ErrorContains(t, err, "DSN")

	t.Setenv("PATHWAYS_LMS_MYSQL_DSN", "edx:edx@tcp(localhost:3306)/edxapp")
	cfg, err := ParseExportConfig(flag.NewFlagSet("export", flag.ContinueOnError), []string{"-b", "lb:SomeOrg,lb:AnotherOrg", "--dry-run"})
	require.NoError(t, err)
	require.Equal(t, "lb:SomeOrg,lb:AnotherOrg", cfg.Prefixes)
	require.Equal(t, 1000, cfg.ChunkSize)
	require.True(t, cfg.DryRun)
}
