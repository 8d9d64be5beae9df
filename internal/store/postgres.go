package store

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/vrfmint/internal/domain"
)

// Schema creates the tables used by PostgresStore. Safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS pending_requests (
	request_id TEXT PRIMARY KEY,
	requester  TEXT NOT NULL,
	payment    NUMERIC(78, 0) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tokens (
	token_id        BIGINT PRIMARY KEY,
	owner           TEXT NOT NULL,
	attribute_class TEXT NOT NULL,
	attribute_index INTEGER NOT NULL,
	uri             TEXT NOT NULL,
	request_id      TEXT UNIQUE,
	minted_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS token_counter (
	id            SMALLINT PRIMARY KEY CHECK (id = 1),
	next_token_id BIGINT NOT NULL
);

INSERT INTO token_counter (id, next_token_id) VALUES (1, 0) ON CONFLICT (id) DO NOTHING;
`

type PostgresStore struct {
	Db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{Db: pool}, nil
}

func (s *PostgresStore) Close() {
	s.Db.Close()
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.Db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePending(ctx context.Context, p domain.PendingRequest) error {
	payment := "0"
	if p.Payment != nil {
		payment = p.Payment.String()
	}
	_, err := s.Db.Exec(ctx,
		"INSERT INTO pending_requests (request_id, requester, payment, created_at) VALUES ($1, $2, $3::numeric, $4)",
		p.RequestID, p.Requester, payment, p.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("pending insert failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPending(ctx context.Context, requestID string) (*domain.PendingRequest, error) {
	var p domain.PendingRequest
	var payment string
	err := s.Db.QueryRow(ctx,
		"SELECT request_id, requester, payment::text, created_at FROM pending_requests WHERE request_id = $1",
		requestID,
	).Scan(&p.RequestID, &p.Requester, &payment, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if p.Payment, err = parseNumeric(payment); err != nil {
		return nil, fmt.Errorf("pending %s: %w", requestID, err)
	}
	return &p, nil
}

// parseNumeric reads a NUMERIC(78,0) column rendered as text.
func parseNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", s)
	}
	return v, nil
}

func (s *PostgresStore) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := s.Db.QueryRow(ctx, "SELECT COUNT(*) FROM pending_requests").Scan(&n)
	return n, err
}

// FulfillPending runs at READ COMMITTED: DELETE ... RETURNING blocks on a row
// another fulfillment holds and then sees it gone, and the counter row lock
// serializes token id assignment.
func (s *PostgresStore) FulfillPending(ctx context.Context, requestID string, build BuildFunc) (*domain.TokenRecord, error) {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var owner string
	err = tx.QueryRow(ctx,
		"DELETE FROM pending_requests WHERE request_id = $1 RETURNING requester",
		requestID,
	).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("pending consume failed: %w", err)
	}

	rec, err := mintTx(ctx, tx, owner, build)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) MintDirect(ctx context.Context, owner string, build BuildFunc) (*domain.TokenRecord, error) {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := mintTx(ctx, tx, owner, build)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return rec, nil
}

func mintTx(ctx context.Context, tx pgx.Tx, owner string, build BuildFunc) (*domain.TokenRecord, error) {
	var next int64
	err := tx.QueryRow(ctx, "SELECT next_token_id FROM token_counter WHERE id = 1 FOR UPDATE").Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("counter lock failed: %w", err)
	}
	tokenID := uint64(next)

	rec, err := build(tokenID, owner)
	if err != nil {
		return nil, err
	}
	rec.TokenID = tokenID
	rec.Owner = owner

	var requestID *string
	if rec.RequestID != "" {
		requestID = &rec.RequestID
	}
	_, err = tx.Exec(ctx,
		"INSERT INTO tokens (token_id, owner, attribute_class, attribute_index, uri, request_id, minted_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		next, rec.Owner, rec.AttributeClass, rec.AttributeIndex, rec.URI, requestID, rec.MintedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("token insert failed: %w", err)
	}

	if _, err = tx.Exec(ctx, "UPDATE token_counter SET next_token_id = next_token_id + 1 WHERE id = 1"); err != nil {
		return nil, fmt.Errorf("counter update failed: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) GetToken(ctx context.Context, tokenID uint64) (*domain.TokenRecord, error) {
	var rec domain.TokenRecord
	var id int64
	var requestID *string
	err := s.Db.QueryRow(ctx,
		"SELECT token_id, owner, attribute_class, attribute_index, uri, request_id, minted_at FROM tokens WHERE token_id = $1",
		int64(tokenID),
	).Scan(&id, &rec.Owner, &rec.AttributeClass, &rec.AttributeIndex, &rec.URI, &requestID, &rec.MintedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.TokenID = uint64(id)
	if requestID != nil {
		rec.RequestID = *requestID
	}
	return &rec, nil
}

func (s *PostgresStore) TokenCounter(ctx context.Context) (uint64, error) {
	var next int64
	err := s.Db.QueryRow(ctx, "SELECT next_token_id FROM token_counter WHERE id = 1").Scan(&next)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return uint64(next), nil
}
