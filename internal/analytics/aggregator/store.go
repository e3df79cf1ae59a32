// Package aggregator persists analytics snapshots to PostgreSQL so that the
// totals survive a restart of the analytics service.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/postgres"
)

const schema = `CREATE TABLE IF NOT EXISTS analytics_snapshots (
	id            BIGSERIAL PRIMARY KEY,
	total_queries BIGINT NOT NULL,
	docs_ingested BIGINT NOT NULL,
	data          JSONB NOT NULL,
	captured_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// DefaultRetention keeps a day of one-minute snapshots.
const DefaultRetention = 24 * 60

type Store struct {
	db        *postgres.Client
	retention int
	logger    *slog.Logger

	// last is touched only by the periodic saver goroutine.
	last struct{ queries, docs int64 }
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:        db,
		retention: DefaultRetention,
		logger:    slog.Default().With("component", "analytics-store"),
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.db.Migrate(ctx, schema)
}

// SaveSnapshot stores stats and prunes snapshots beyond the retention.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO analytics_snapshots (total_queries, docs_ingested, data, captured_at) VALUES ($1, $2, $3, $4)`,
			stats.TotalQueries, stats.DocsIngested, data, time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("inserting snapshot: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM analytics_snapshots WHERE id NOT IN (SELECT id FROM analytics_snapshots ORDER BY id DESC LIMIT $1)`,
			s.retention,
		); err != nil {
			return fmt.Errorf("pruning snapshots: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}
	s.logger.Debug("analytics snapshot saved", "total_queries", stats.TotalQueries, "docs_ingested", stats.DocsIngested)
	return nil
}

// LatestSnapshot returns nil, nil when nothing was saved yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	var stats analytics.AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	s.last.queries, s.last.docs = stats.TotalQueries, stats.DocsIngested
	return &stats, nil
}

// StartPeriodicSave snapshots agg every interval while its counters move,
// and once more when ctx ends. The returned channel closes after the final
// save.
func (s *Store) StartPeriodicSave(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.saveIfChanged(ctx, agg.Stats())
			case <-ctx.Done():
				final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				s.saveIfChanged(final, agg.Stats())
				cancel()
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval, "retention", s.retention)
	return done
}

func (s *Store) saveIfChanged(ctx context.Context, stats analytics.AggregatedStats) {
	if stats.TotalQueries == s.last.queries && stats.DocsIngested == s.last.docs {
		return
	}
	if err := s.SaveSnapshot(ctx, stats); err != nil {
		s.logger.Error("analytics snapshot failed", "error", err)
		return
	}
	s.last.queries, s.last.docs = stats.TotalQueries, stats.DocsIngested
}
