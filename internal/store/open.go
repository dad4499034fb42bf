package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/owoblo/quote2move/internal/config"
)

// Open builds the store selected by cfg.Driver and applies migrations.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "quote2move.db"
		}
		st, err = NewSQLite(dsn)
	case "memory":
		st, err = NewMemory()
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
