package pg

import (
	"context"
	"fmt"
	"io/fs"
	"sort"

	migrations "github.com/grantwire/grantwire/migrations/postgres"
)

// Migrate aplica las migraciones embebidas en orden lexicográfico.
// Cada archivo es idempotente (CREATE IF NOT EXISTS), así que correrlas
// en cada arranque es seguro.
func (s *Store) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		sql, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return nil
}
