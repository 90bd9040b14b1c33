// Package testutil starts throwaway backing services for integration tests.
//
// Each service is started at most once per test binary and shared by all
// tests in it. Tests are skipped when no container runtime is available.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
)

// sharedContainer starts a container once and remembers its endpoint or
// the error that prevented it from starting.
type sharedContainer struct {
	once      sync.Once
	container testcontainers.Container
	endpoint  string
	err       error
}

// get returns the endpoint, starting the container on first use with
// start. The container is terminated when the test binary's first caller
// finishes, so callers must share one top-level test per package.
func (s *sharedContainer) get(t *testing.T, name string, start func(ctx context.Context) (testcontainers.Container, string, error)) string {
	t.Helper()
	if testing.Short() {
		t.Skipf("skipping %s integration test in short mode", name)
	}

	s.once.Do(func() {
		// Give generous timeout in CI environments
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		s.container, s.endpoint, s.err = start(ctx)
		testcontainers.CleanupContainer(t, s.container)
	})

	if s.err != nil {
		t.Skipf("%s container unavailable: %v", name, s.err)
	}
	return s.endpoint
}
