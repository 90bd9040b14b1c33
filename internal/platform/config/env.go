// Package config reads process configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Prefix is prepended to every environment variable read by ParseEnv.
const Prefix = "PATHWAYS_"

// ParseEnv loads configuration from PATHWAYS_* environment variables into
// target, which must be a pointer to a struct with env tags.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: Prefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
