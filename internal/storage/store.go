package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/providentiaww/trilix-oauth/internal/config"
	"github.com/providentiaww/trilix-oauth/internal/oauth"
)

// Stores bundles the persistence ports chosen by configuration.
type Stores struct {
	Clients oauth.ClientStore
	Tokens  oauth.TokenStore
	Codes   oauth.CodeStore

	// Postgres is set when the postgres backend is in use.
	Postgres *PostgresStore

	closers []func() error
	pingers []func(context.Context) error
}

// NewStoresFromConfig opens the configured backend. Postgres or memory
// holds clients and tokens; codes go to Redis when REDIS_URL is set.
func NewStoresFromConfig(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Stores, error) {
	s := &Stores{}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pg, err := OpenPostgres(ctx, PostgresConfig{
			DatabaseURL:     cfg.DatabaseURL,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := pg.InitSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		s.Postgres = pg
		s.Clients, s.Tokens, s.Codes = pg, pg, pg
		s.closers = append(s.closers, pg.Close)
		s.pingers = append(s.pingers, pg.Ping)
	case config.BackendMemory:
		mem := NewMemoryStore()
		s.Clients, s.Tokens, s.Codes = mem, mem, mem
		logger.Warn().Msg("using in-memory oauth store; records are lost on restart")
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	if cfg.RedisURL != "" {
		rc, err := OpenRedis(ctx, cfg.RedisURL, logger)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.Codes = rc
		s.closers = append(s.closers, rc.Close)
		s.pingers = append(s.pingers, rc.Ping)
	}

	return s, nil
}

// Ping verifies every opened backend.
func (s *Stores) Ping(ctx context.Context) error {
	for _, ping := range s.pingers {
		if err := ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every opened backend.
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SeedResult counts the outcome of SeedClients.
type SeedResult struct {
	Created int
	Skipped int
}

// SeedClients copies every client of the registry file into dst. Clients
// already present are left alone.
func SeedClients(ctx context.Context, src *FileClientStore, dst oauth.ClientStore, logger zerolog.Logger) (SeedResult, error) {
	var res SeedResult
	clients, err := src.Clients()
	if err != nil {
		return res, err
	}
	for _, client := range clients {
		if err := client.Validate(); err != nil {
			return res, fmt.Errorf("client %s: %w", client.ClientID, err)
		}
		err := dst.CreateClient(ctx, client)
		switch {
		case errors.Is(err, oauth.ErrDuplicate):
			res.Skipped++
			logger.Debug().Str("client_id", client.ClientID).Msg("client already registered")
		case err != nil:
			return res, err
		default:
			res.Created++
			logger.Info().Str("client_id", client.ClientID).Msg("client registered")
		}
	}
	return res, nil
}
