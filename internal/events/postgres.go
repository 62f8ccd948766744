package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// Postgres stores events in the pool_events table.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects to url and verifies the connection.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{db: db}, nil
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// EnsureSchema creates the events table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	schemaSQL := `
		CREATE TABLE IF NOT EXISTS pool_events (
			event_id CHAR(66) PRIMARY KEY,
			source CHAR(42) NOT NULL,
			seq BIGINT NOT NULL,
			kind VARCHAR(32) NOT NULL,
			actor CHAR(42) NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			attrs JSONB NOT NULL DEFAULT '{}'::jsonb
		);
		CREATE INDEX IF NOT EXISTS idx_pool_events_source_seq ON pool_events(source, seq DESC);
	`
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create pool_events table: %w", err)
	}
	return nil
}

func (p *Postgres) Record(ctx context.Context, e Event) error {
	attrs, err := json.Marshal(e.Attrs)
	if err != nil {
		return fmt.Errorf("failed to marshal attrs: %w", err)
	}

	query := `
		INSERT INTO pool_events (event_id, source, seq, kind, actor, occurred_at, attrs)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING;
	`
	_, err = p.db.ExecContext(ctx, query,
		e.ID.Hex(), e.Source.Hex(), int64(e.Seq), string(e.Kind), e.Actor.Hex(), e.Time, string(attrs))
	if err != nil {
		return fmt.Errorf("failed to save event %s: %w", e.ID.Hex(), err)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context, source common.Address, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT event_id, source, seq, kind, actor, occurred_at, attrs
		FROM pool_events
		WHERE source = $1
		ORDER BY seq DESC
		LIMIT $2;
	`
	rows, err := p.db.QueryContext(ctx, query, source.Hex(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			id, src, kind, actor string
			seq                  int64
			at                   time.Time
			attrs                []byte
		)
		if err := rows.Scan(&id, &src, &seq, &kind, &actor, &at, &attrs); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e := Event{
			ID:     common.HexToHash(id),
			Source: common.HexToAddress(src),
			Seq:    uint64(seq),
			Kind:   Kind(kind),
			Actor:  common.HexToAddress(actor),
			Time:   at.UTC(),
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &e.Attrs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal attrs: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
