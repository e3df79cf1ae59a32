package statistics

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS statistics_snapshots (
		id              BIGSERIAL PRIMARY KEY,
		collection_size BIGINT NOT NULL,
		captured_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS statistics_term_df (
		snapshot_id BIGINT NOT NULL REFERENCES statistics_snapshots(id) ON DELETE CASCADE,
		term_type   TEXT NOT NULL,
		term_value  TEXT NOT NULL,
		df          BIGINT NOT NULL,
		PRIMARY KEY (snapshot_id, term_type, term_value)
	)`,
}

// Store persists statistics snapshots in PostgreSQL. Only the newest
// snapshot is kept.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewStore creates the tables if needed.
func NewStore(ctx context.Context, db *postgres.Client) (*Store, error) {
	if err := db.Migrate(ctx, schema...); err != nil {
		return nil, err
	}
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "statistics-store"),
	}, nil
}

// SaveSnapshot writes s and drops older snapshots.
func (s *Store) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		var id int64
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO statistics_snapshots (collection_size, captured_at) VALUES ($1, $2) RETURNING id`,
			snap.CollectionSize, time.Now().UTC(),
		).Scan(&id); err != nil {
			return fmt.Errorf("inserting snapshot: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO statistics_term_df (snapshot_id, term_type, term_value, df) VALUES ($1, $2, $3, $4)`)
		if err != nil {
			return fmt.Errorf("preparing term insert: %w", err)
		}
		defer stmt.Close()
		for key, df := range snap.Terms {
			if _, err := stmt.ExecContext(ctx, id, key.Type, key.Value, df); err != nil {
				return fmt.Errorf("inserting term %s:%s: %w", key.Type, key.Value, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM statistics_snapshots WHERE id < $1`, id); err != nil {
			return fmt.Errorf("pruning snapshots: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("statistics snapshot saved", "collection_size", snap.CollectionSize, "terms", len(snap.Terms))
	return nil
}

// LatestSnapshot returns the newest snapshot, or nil if none exists.
func (s *Store) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	var id int64
	snap := &Snapshot{Terms: make(map[proto.TermKey]int64)}
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, collection_size FROM statistics_snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&id, &snap.CollectionSize)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}

	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT term_type, term_value, df FROM statistics_term_df WHERE snapshot_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot terms: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key proto.TermKey
		var df int64
		if err := rows.Scan(&key.Type, &key.Value, &df); err != nil {
			return nil, fmt.Errorf("scanning term row: %w", err)
		}
		snap.Terms[key] = df
	}
	return snap, rows.Err()
}

// StartPeriodicSave snapshots stats every interval and once more when ctx
// ends. The returned channel closes after the final save.
func (s *Store) StartPeriodicSave(ctx context.Context, stats *GlobalStats, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.SaveSnapshot(ctx, stats.Snapshot()); err != nil {
					s.logger.Error("periodic snapshot failed", "error", err)
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.SaveSnapshot(shutdownCtx, stats.Snapshot()); err != nil {
					s.logger.Error("final snapshot failed", "error", err)
				}
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval)
	return done
}
