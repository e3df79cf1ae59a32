package publisher

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/postgres"
)

const schema = `CREATE TABLE IF NOT EXISTS documents (
	docno           BIGSERIAL PRIMARY KEY,
	title           TEXT NOT NULL,
	content_hash    TEXT NOT NULL,
	content_size    INTEGER NOT NULL,
	shard_index     INTEGER NOT NULL DEFAULT 0,
	idempotency_key TEXT UNIQUE,
	status          TEXT NOT NULL DEFAULT 'PENDING',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	published_at    TIMESTAMPTZ
)`

// PostgresRegistry keeps the document registry in the documents table.
type PostgresRegistry struct {
	db *postgres.Client
}

func NewPostgresRegistry(db *postgres.Client) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

func (r *PostgresRegistry) Migrate(ctx context.Context) error {
	return r.db.Migrate(ctx, schema)
}

func (r *PostgresRegistry) Lookup(ctx context.Context, key string) (*ingestion.IngestResponse, error) {
	var (
		resp  ingestion.IngestResponse
		docno int64
	)
	err := r.db.DB.QueryRowContext(ctx,
		`SELECT docno, status, shard_index FROM documents WHERE idempotency_key = $1`, key,
	).Scan(&docno, &resp.Status, &resp.ShardIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying by idempotency key: %w", err)
	}
	resp.DocNo = uint32(docno)
	return &resp, nil
}

// Register inserts the document and stores the shard its number maps to.
func (r *PostgresRegistry) Register(ctx context.Context, req *ingestion.IngestRequest, numShards int) (*ingestion.IngestResponse, error) {
	contentHash := fmt.Sprintf("%x", sha256.Sum256([]byte(req.Body)))
	resp := &ingestion.IngestResponse{Status: StatusPending}
	err := r.db.InTx(ctx, func(tx *sql.Tx) error {
		var docno int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO documents (title, content_hash, content_size, idempotency_key, status)
			VALUES ($1, $2, $3, $4, 'PENDING')
			ON CONFLICT (idempotency_key) DO NOTHING
			RETURNING docno`,
			req.Title, contentHash, len(req.Body), nullableString(req.IdempotencyKey),
		).Scan(&docno)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.New(apperrors.ErrIdempotencyConflict, http.StatusConflict, "idempotency key already in use")
		}
		if err != nil {
			return err
		}
		if docno > math.MaxUint32 {
			return apperrors.New(apperrors.ErrInternal, http.StatusInsufficientStorage, "document numbers exhausted")
		}
		resp.DocNo = uint32(docno)
		resp.ShardIndex = ingestion.AssignShard(resp.DocNo, numShards)
		_, err = tx.ExecContext(ctx,
			`UPDATE documents SET shard_index = $1 WHERE docno = $2`, resp.ShardIndex, docno)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *PostgresRegistry) MarkPublished(ctx context.Context, docno uint32) error {
	_, err := r.db.DB.ExecContext(ctx,
		`UPDATE documents SET status = 'PUBLISHED', published_at = NOW() WHERE docno = $1`, int64(docno))
	if err != nil {
		return fmt.Errorf("marking document %d published: %w", docno, err)
	}
	return nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
