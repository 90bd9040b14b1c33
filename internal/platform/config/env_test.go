package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Addr    string        `env:"ADDR" envDefault:":8000"`
	Store   string        `env:"STORE" envDefault:"memory"`
	Users   []string      `env:"USERS" envSeparator:","`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"5s"`
}

func TestParseEnv_Defaults(t *testing.T) {
	var s sample
	require.NoError(t, ParseEnv(&s))
	require.Equal(t, ":8000", s.Addr)
	require.Equal(t, "memory", s.Store)
	require.Empty(t, s.Users)
	require.Equal(t, 5*time.Second, s.Timeout)
}

func TestParseEnv_ReadsPrefixedVariables(t *testing.T) {
	t.Setenv("PATHWAYS_STORE", "sqlite")
	t.Setenv("PATHWAYS_USERS", "lx-test-user,lx-admin")
	t.Setenv("STORE", "postgres")

	var s sample
	require.NoError(t, ParseEnv(&s))
	require.Equal(t, "sqlite", s.Store)
	require.Equal(t, []string{"lx-test-user", "lx-admin"}, s.Users)
}

func TestParseEnv_RejectsBadValues(t *testing.T) {
	t.Setenv("PATHWAYS_TIMEOUT", "soon")

	var s sample
	require.Error(t, ParseEnv(&s))
}
