package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go-internship-scanner/internal/models"

	_ "modernc.org/sqlite"
)

// fixed width so TEXT comparison orders like time
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z"

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS postings_seen (
		hash          TEXT PRIMARY KEY,
		first_seen_at TEXT NOT NULL,
		last_seen_at  TEXT NOT NULL,
		url           TEXT NOT NULL,
		company       TEXT NOT NULL,
		title         TEXT NOT NULL,
		emailed_at    TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_company ON postings_seen(company)`,
	`CREATE INDEX IF NOT EXISTS idx_last_seen ON postings_seen(last_seen_at)`,
}

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the state database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	o := buildOptions(opts)
	return &SQLiteStore{db: db, now: o.now}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) stamp() string {
	return s.now().UTC().Format(sqliteTimeLayout)
}

func (s *SQLiteStore) HasSeen(ctx context.Context, p models.Posting) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM postings_seen WHERE hash = ?`, p.Hash()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check seen: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) MarkSeen(ctx context.Context, p models.Posting) error {
	now := s.stamp()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO postings_seen (hash, first_seen_at, last_seen_at, url, company, title)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET last_seen_at = excluded.last_seen_at`,
		p.Hash(), now, now, p.URL, p.Company, p.Title,
	)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MarkEmailed(ctx context.Context, p models.Posting) error {
	now := s.stamp()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO postings_seen (hash, first_seen_at, last_seen_at, url, company, title, emailed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET emailed_at = excluded.emailed_at`,
		p.Hash(), now, now, p.URL, p.Company, p.Title, now,
	)
	if err != nil {
		return fmt.Errorf("mark emailed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FilterNew(ctx context.Context, postings []models.Posting) ([]models.Posting, error) {
	return filterNew(ctx, s, postings)
}

func (s *SQLiteStore) FilterNotEmailed(ctx context.Context, postings []models.Posting) ([]models.Posting, error) {
	var out []models.Posting
	for _, p := range postings {
		var emailedAt sql.NullString
		err := s.db.QueryRowContext(ctx, `SELECT emailed_at FROM postings_seen WHERE hash = ?`, p.Hash()).Scan(&emailedAt)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("check emailed: %w", err)
		}
		if !emailedAt.Valid {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (models.StoreStats, error) {
	var st models.StoreStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(emailed_at), COUNT(DISTINCT company) FROM postings_seen`,
	).Scan(&st.Total, &st.Emailed, &st.UniqueCompanies)
	if err != nil {
		return st, fmt.Errorf("read stats: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) RecentPostings(ctx context.Context, days int) ([]models.SeenRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hash, first_seen_at, last_seen_at, url, company, title, emailed_at
		FROM postings_seen
		WHERE last_seen_at >= ?
		ORDER BY last_seen_at DESC`,
		cutoff(s.now(), days).Format(sqliteTimeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("query recent postings: %w", err)
	}
	defer rows.Close()

	var records []models.SeenRecord
	for rows.Next() {
		var (
			rec                 models.SeenRecord
			firstSeen, lastSeen string
			emailedAt           sql.NullString
		)
		if err := rows.Scan(&rec.Hash, &firstSeen, &lastSeen, &rec.URL, &rec.Company, &rec.Title, &emailedAt); err != nil {
			return nil, fmt.Errorf("scan recent posting: %w", err)
		}
		if rec.FirstSeenAt, err = time.Parse(sqliteTimeLayout, firstSeen); err != nil {
			return nil, fmt.Errorf("parse first_seen_at: %w", err)
		}
		if rec.LastSeenAt, err = time.Parse(sqliteTimeLayout, lastSeen); err != nil {
			return nil, fmt.Errorf("parse last_seen_at: %w", err)
		}
		if emailedAt.Valid {
			t, err := time.Parse(sqliteTimeLayout, emailedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse emailed_at: %w", err)
			}
			rec.EmailedAt = &t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) ClearOld(ctx context.Context, days int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM postings_seen WHERE last_seen_at < ?`,
		cutoff(s.now(), days).Format(sqliteTimeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("clear old entries: %w", err)
	}
	return res.RowsAffected()
}
