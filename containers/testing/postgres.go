// Package testing provides testcontainers-based fixtures for integration
// tests that need a real backing service rather than a mock. Tests that
// use it should carry the integration build tag, since it requires a
// working Docker daemon.
package testing

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// ContainerCleanup terminates the container it was returned alongside.
// Safe to call even if setup failed (it's a no-op then).
type ContainerCleanup func()

func createCleanupFunc(ctx context.Context, container testcontainers.Container, name string) ContainerCleanup {
	return func() {
		if err := container.Terminate(ctx); err != nil {
			fmt.Printf("warning: failed to terminate %s container: %v\n", name, err)
		}
	}
}

// PostgresConfig configures the ephemeral Postgres instance SetupPostgres
// starts.
type PostgresConfig struct {
	Image          string
	Username       string
	Password       string
	Database       string
	StartupTimeout time.Duration
}

// DefaultPostgresConfig is the config SetupPostgres uses when given nil.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Image:          "postgres:17",
		Username:       "postgres",
		Password:       "postgres",
		Database:       "tileworld_test",
		StartupTimeout: 60 * time.Second,
	}
}

// SetupPostgres starts a Postgres container and returns a DSN the
// persistence gateway can open directly, plus a cleanup function the
// caller must defer.
func SetupPostgres(ctx context.Context, config *PostgresConfig) (string, ContainerCleanup, error) {
	if config == nil {
		defaultConfig := DefaultPostgresConfig()
		config = &defaultConfig
	}

	req := testcontainers.ContainerRequest{
		Image:        config.Image,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     config.Username,
			"POSTGRES_PASSWORD": config.Password,
			"POSTGRES_DB":       config.Database,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(config.StartupTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", func() {}, fmt.Errorf("start postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return "", func() {}, fmt.Errorf("postgres container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		_ = container.Terminate(ctx)
		return "", func() {}, fmt.Errorf("postgres container port: %w", err)
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		config.Username, config.Password, host, port.Port(), config.Database)

	return dsn, createCleanupFunc(ctx, container, "PostgreSQL"), nil
}
