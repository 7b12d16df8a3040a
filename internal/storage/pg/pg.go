// Package pg implementa repository.Store sobre PostgreSQL usando pgxpool.
// El esquema vive en migrations/.
package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grantwire/grantwire/internal/domain/repository"
)

type Store struct {
	pool *pgxpool.Pool
}

// Config tuning opcional del pool.
type Config struct {
	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
}

// New crea el pool y verifica la conexión.
func New(ctx context.Context, dsn string, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if pcfg.MaxConns == 0 {
		pcfg.MaxConns = 8
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Pool expone el pool interno para métricas y migraciones.
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Clients() repository.ClientRepository         { return clientRepo{s} }
func (s *Store) Codes() repository.CodeRepository             { return codeRepo{s} }
func (s *Store) Tokens() repository.TokenRepository           { return tokenRepo{s} }
func (s *Store) DeviceCodes() repository.DeviceCodeRepository { return deviceRepo{s} }
func (s *Store) Consents() repository.ConsentRepository       { return consentRepo{s} }
