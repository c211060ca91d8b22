package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-internship-scanner/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS postings_seen (
		hash          TEXT PRIMARY KEY,
		first_seen_at TIMESTAMPTZ NOT NULL,
		last_seen_at  TIMESTAMPTZ NOT NULL,
		url           TEXT NOT NULL,
		company       TEXT NOT NULL,
		title         TEXT NOT NULL,
		emailed_at    TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_company ON postings_seen(company)`,
	`CREATE INDEX IF NOT EXISTS idx_last_seen ON postings_seen(last_seen_at)`,
}

type PostgresStore struct {
	db  *pgxpool.Pool
	now func() time.Time
}

// ConnectDB opens a pooled connection to a shared Postgres state store.
func ConnectDB(ctx context.Context, connString string, opts ...Option) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database url: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour

	// transaction-mode poolers (PgBouncer, Supabase) reject cached prepared statements
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	o := buildOptions(opts)
	return &PostgresStore{db: pool, now: o.now}, nil
}

func (r *PostgresStore) Close() error {
	if r.db != nil {
		r.db.Close()
	}
	return nil
}

func (r *PostgresStore) HasSeen(ctx context.Context, p models.Posting) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM postings_seen WHERE hash = $1)", p.Hash()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check seen: %w", err)
	}
	return exists, nil
}

func (r *PostgresStore) MarkSeen(ctx context.Context, p models.Posting) error {
	query := `
		INSERT INTO postings_seen (hash, first_seen_at, last_seen_at, url, company, title)
		VALUES ($1, $2, $2, $3, $4, $5)
		ON CONFLICT (hash)
		DO UPDATE SET last_seen_at = EXCLUDED.last_seen_at`

	if _, err := r.db.Exec(ctx, query, p.Hash(), r.now().UTC(), p.URL, p.Company, p.Title); err != nil {
		return fmt.Errorf("failed to mark seen: %w", err)
	}
	return nil
}

func (r *PostgresStore) MarkEmailed(ctx context.Context, p models.Posting) error {
	query := `
		INSERT INTO postings_seen (hash, first_seen_at, last_seen_at, url, company, title, emailed_at)
		VALUES ($1, $2, $2, $3, $4, $5, $2)
		ON CONFLICT (hash)
		DO UPDATE SET emailed_at = EXCLUDED.emailed_at`

	if _, err := r.db.Exec(ctx, query, p.Hash(), r.now().UTC(), p.URL, p.Company, p.Title); err != nil {
		return fmt.Errorf("failed to mark emailed: %w", err)
	}
	return nil
}

func (r *PostgresStore) FilterNew(ctx context.Context, postings []models.Posting) ([]models.Posting, error) {
	return filterNew(ctx, r, postings)
}

func (r *PostgresStore) FilterNotEmailed(ctx context.Context, postings []models.Posting) ([]models.Posting, error) {
	var out []models.Posting
	for _, p := range postings {
		var emailedAt *time.Time
		err := r.db.QueryRow(ctx, "SELECT emailed_at FROM postings_seen WHERE hash = $1", p.Hash()).Scan(&emailedAt)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to check emailed: %w", err)
		}
		if emailedAt == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *PostgresStore) Stats(ctx context.Context) (models.StoreStats, error) {
	var st models.StoreStats
	err := r.db.QueryRow(ctx,
		"SELECT COUNT(*), COUNT(emailed_at), COUNT(DISTINCT company) FROM postings_seen",
	).Scan(&st.Total, &st.Emailed, &st.UniqueCompanies)
	if err != nil {
		return st, fmt.Errorf("failed to read stats: %w", err)
	}
	return st, nil
}

func (r *PostgresStore) RecentPostings(ctx context.Context, days int) ([]models.SeenRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT hash, first_seen_at, last_seen_at, url, company, title, emailed_at
		FROM postings_seen
		WHERE last_seen_at >= $1
		ORDER BY last_seen_at DESC`, cutoff(r.now(), days))
	if err != nil {
		return nil, fmt.Errorf("failed to query recent postings: %w", err)
	}
	defer rows.Close()

	var records []models.SeenRecord
	for rows.Next() {
		var rec models.SeenRecord
		if err := rows.Scan(&rec.Hash, &rec.FirstSeenAt, &rec.LastSeenAt, &rec.URL, &rec.Company, &rec.Title, &rec.EmailedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recent posting: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *PostgresStore) ClearOld(ctx context.Context, days int) (int64, error) {
	tag, err := r.db.Exec(ctx, "DELETE FROM postings_seen WHERE last_seen_at < $1", cutoff(r.now(), days))
	if err != nil {
		return 0, fmt.Errorf("failed to clear old entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
