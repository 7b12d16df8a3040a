// Package redis implementa repository.Store sobre Redis. Cada entidad se
// serializa como JSON bajo un prefijo propio; la expiración de códigos y
// tokens se delega al TTL de Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/grantwire/grantwire/internal/domain/repository"
)

// Config configuración de conexión.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	// Prefix para todas las keys. Default "gw".
	Prefix string
}

type Store struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

// New abre la conexión y verifica con un ping.
func New(ctx context.Context, cfg Config) (*Store, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	if cfg.Port == 0 {
		addr = cfg.Host + ":6379"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("storage: redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "gw"
	}
	return &Store{rdb: rdb, prefix: prefix, now: time.Now}, nil
}

// NewFromClient envuelve un cliente existente. Usado en tests.
func NewFromClient(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "gw"
	}
	return &Store{rdb: rdb, prefix: prefix, now: time.Now}
}

func (s *Store) Close() error { return s.rdb.Close() }

// Client expone el cliente subyacente para colaboradores que comparten la
// conexión (rate limiting).
func (s *Store) Client() *redis.Client { return s.rdb }

func (s *Store) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func (s *Store) key(parts ...string) string {
	k := s.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// ttlUntil convierte expiry absoluto en TTL para Redis.
func (s *Store) ttlUntil(expiresAt time.Time) time.Duration {
	d := expiresAt.Sub(s.now())
	if d <= 0 {
		return time.Millisecond
	}
	return d
}

func (s *Store) Clients() repository.ClientRepository         { return clientRepo{s} }
func (s *Store) Codes() repository.CodeRepository             { return codeRepo{s} }
func (s *Store) Tokens() repository.TokenRepository           { return tokenRepo{s} }
func (s *Store) DeviceCodes() repository.DeviceCodeRepository { return deviceRepo{s} }
func (s *Store) Consents() repository.ConsentRepository       { return consentRepo{s} }
