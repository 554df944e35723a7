// Package bootstrap wires storage, state and modules from configuration for
// the server and the CLI.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/pilab-dev/frigg/cache"
	fredis "github.com/pilab-dev/frigg/cache/redis"
	"github.com/pilab-dev/frigg/config"
	"github.com/pilab-dev/frigg/domain"
	"github.com/pilab-dev/frigg/internal/crypto"
	"github.com/pilab-dev/frigg/log"
	"github.com/pilab-dev/frigg/memory"
	"github.com/pilab-dev/frigg/modules"
	"github.com/pilab-dev/frigg/mongodb"
	"github.com/pilab-dev/frigg/requester"
)

// statePrefix namespaces state keys in a shared redis.
const statePrefix = "frigg"

// Storage holds the repositories of the configured backend.
type Storage struct {
	Credentials domain.CredentialRepository
	Entities    domain.EntityRepository
	client      *mongodb.Client
}

// Ping reports whether the backend is reachable. In-memory storage always is.
func (s *Storage) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx)
}

// Close releases the backend connection.
func (s *Storage) Close(ctx context.Context) {
	if s.client != nil {
		s.client.Close(ctx)
	}
}

// NewCryptor returns the credential cryptor, or nil when no AES key is set.
func NewCryptor(cfg *config.ServerConfig) (*crypto.Cryptor, error) {
	if cfg.AESKey == "" {
		return nil, nil
	}
	c, err := crypto.NewCryptor(
		crypto.Key{ID: cfg.AESKeyID, Secret: cfg.AESKey},
		crypto.Key{ID: cfg.DeprecatedAESKeyID, Secret: cfg.DeprecatedAESKey},
	)
	if err != nil {
		return nil, fmt.Errorf("configure credential encryption: %w", err)
	}
	return c, nil
}

// OpenStorage connects the backend named by cfg.Storage.
func OpenStorage(ctx context.Context, cfg *config.ServerConfig, logger log.Logger) (*Storage, error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn(ctx, "using in-memory storage, credentials are lost on restart")
		return &Storage{
			Credentials: memory.NewCredentialRepository(),
			Entities:    memory.NewEntityRepository(),
		}, nil
	}

	c, err := NewCryptor(cfg)
	if err != nil {
		return nil, err
	}
	var cryptor mongodb.FieldCryptor
	if c != nil {
		cryptor = c
	} else {
		logger.Warn(ctx, "AES_KEY is not set, tokens are stored in plaintext")
	}

	client, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return nil, fmt.Errorf("initialize MongoDB connection: %w", err)
	}
	provider, err := mongodb.NewRepositoryProvider(ctx, client.DB(), cryptor)
	if err != nil {
		client.Close(ctx)
		return nil, err
	}
	return &Storage{
		Credentials: provider.CredentialRepository(),
		Entities:    provider.EntityRepository(),
		client:      client,
	}, nil
}

// NewStateStore returns a redis store when REDIS_ADDR is set and an
// in-memory one otherwise. The returned func releases it.
func NewStateStore(ctx context.Context, cfg *config.ServerConfig, logger log.Logger) (cache.StateStore, func(), error) {
	if cfg.RedisAddr == "" {
		s := cache.NewMemoryStateStore(cfg.StateTTL)
		return s, s.Stop, nil
	}
	client, err := fredis.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	logger.Info(ctx, "authorization states stored in redis", map[string]interface{}{"addr": cfg.RedisAddr})
	return fredis.NewStateStore(client, statePrefix, cfg.StateTTL), func() { _ = client.Close() }, nil
}

// NewRegistry registers the configured modules.
func NewRegistry(cfg *config.ServerConfig, logger log.Logger) (*modules.Registry, error) {
	return modules.NewRegistryFromConfig(cfg, requester.Options{
		Timeout: cfg.HTTPTimeout,
		Logger:  logger,
	}, logger)
}
