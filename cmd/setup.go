package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-organizer/internal/config"
	"github.com/kozaktomas/face-organizer/internal/roster"
	"github.com/kozaktomas/face-organizer/internal/store"
	"github.com/kozaktomas/face-organizer/internal/store/mariadb"
	"github.com/kozaktomas/face-organizer/internal/store/postgres"
	"github.com/kozaktomas/face-organizer/internal/thumbs"
)

// openStore creates the configured store backend.
func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	switch cfg.Database.Driver {
	case "postgres":
		return postgres.New(postgres.Config{
			URL:          cfg.Database.URL,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		})
	case "mariadb":
		return mariadb.New(cfg.Database.URL)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// A linear scan over the roster is fast enough below this many embeddings;
// larger rosters get ANN candidate pre-selection.
const matchIndexCutover = 256

// loadRoster loads the known-person roster into memory and wires the
// thumbnail store for person deletion.
func loadRoster(ctx context.Context, st store.Store, cfg *config.Config) (*roster.Database, *thumbs.Store, error) {
	people, err := st.LoadPeople(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading roster: %w", err)
	}

	ts, err := thumbs.New(cfg.Thumbnails.Dir)
	if err != nil {
		return nil, nil, err
	}

	db := roster.New()
	db.Load(people)
	db.SetThumbnailStore(ts)
	if db.EmbeddingCount() >= matchIndexCutover {
		db.SetMatchIndex(roster.NewMatchIndex())
	}
	return db, ts, nil
}
