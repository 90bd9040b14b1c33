package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var postgres sharedContainer

// GetPostgresEndpoint returns a pgx DSN for a shared PostgreSQL container.
func GetPostgresEndpoint(t *testing.T) string {
	t.Helper()
	return postgres.get(t, "postgres", startPostgres)
}

func startPostgres(ctx context.Context) (testcontainers.Container, string, error) {
	postgresC, err := testcontainers.Run(
		ctx, "postgres:16",
		testcontainers.WithExposedPorts("5432/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				// Container is listening
				wait.ForListeningPort("5432/tcp"),
				// Postgres reports readiness in logs
				wait.ForLog("ready to accept connections"),
				// Actively verify SQL connectivity with a simple query using DSN built from mapped host:port
				wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
					return fmt.Sprintf("postgres://pathways:pathways@%s:%s/pathways_test?sslmode=disable", host, port.Port())
				}).WithQuery("SELECT 1"),
			).WithDeadline(2*time.Minute),
		),
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_USER":     "pathways",
			"POSTGRES_PASSWORD": "pathways",
			"POSTGRES_DB":       "pathways_test",
		}),
	)
	if err != nil {
		return postgresC, "", err
	}

	endpoint, err := postgresC.Endpoint(ctx, "")
	if err != nil {
		return postgresC, "", err
	}
	return postgresC, fmt.Sprintf("postgres://pathways:pathways@%s/pathways_test?sslmode=disable", endpoint), nil
}
