package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/stockpanel/internal/credstore"
	"github.com/aussiebroadwan/stockpanel/internal/credstore/drivers/redis"
	"github.com/aussiebroadwan/stockpanel/internal/credstore/drivers/sqlite"
	"github.com/aussiebroadwan/stockpanel/pkg/cryptox"
)

const masterKeyEnv = "STOCKPANEL_MASTER_KEY"

var ErrUnknownStore = errors.New("unknown credential store")

// openBackend opens the configured credential backend, sealed when key
// material is available.
func openBackend(ctx context.Context, cfg Config, logger *slog.Logger) (credstore.Backend, error) {
	var backend credstore.Backend

	switch strings.ToLower(cfg.StoreKind) {
	case "memory":
		backend = credstore.NewMemory()

	case "redis":
		s := redis.NewStore(goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}), cfg.RedisPrefix, logger)

		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		backend = s

	case "sqlite", "":
		s, err := sqlite.NewStore(sqlite.DSN(cfg.DatabaseFile), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open credential database: %w", err)
		}

		if err := s.ApplyMigrations(); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply database migrations: %w", err)
		}
		backend = s

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, cfg.StoreKind)
	}

	material, err := cryptox.LoadKeyMaterial(cfg.MasterKeyPath, masterKeyEnv)
	switch {
	case errors.Is(err, cryptox.ErrNoKeyMaterial):
		logger.Debug("credential sealing disabled, no master key")
		return backend, nil
	case err != nil:
		_ = backend.Close()
		return nil, err
	}

	sealer, err := cryptox.NewSealer(material)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to create sealer: %w", err)
	}
	return credstore.NewSealed(backend, sealer, logger), nil
}
