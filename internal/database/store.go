package database

import (
	"context"
	"time"

	"go-internship-scanner/internal/models"
)

// Store remembers which postings have been seen and which were emailed.
// Every error is a storage failure; callers treat it as run-fatal.
type Store interface {
	HasSeen(ctx context.Context, p models.Posting) (bool, error)
	// MarkSeen inserts the posting or bumps last_seen_at; never a second row.
	MarkSeen(ctx context.Context, p models.Posting) error
	// MarkEmailed stamps emailed_at for the posting, creating the row if needed.
	MarkEmailed(ctx context.Context, p models.Posting) error
	// FilterNew marks every posting seen and returns those that were not
	// seen before, in input order.
	FilterNew(ctx context.Context, postings []models.Posting) ([]models.Posting, error)
	// FilterNotEmailed drops postings that already went out in a digest.
	FilterNotEmailed(ctx context.Context, postings []models.Posting) ([]models.Posting, error)
	Stats(ctx context.Context) (models.StoreStats, error)
	RecentPostings(ctx context.Context, days int) ([]models.SeenRecord, error)
	// ClearOld deletes rows not seen for the given number of days.
	ClearOld(ctx context.Context, days int) (int64, error)
	Close() error
}

type options struct {
	now func() time.Time
}

type Option func(*options)

// WithClock overrides time.Now for timestamps written by the store.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// filterNew is the shared check-then-mark loop. It relies on a single writer.
func filterNew(ctx context.Context, s Store, postings []models.Posting) ([]models.Posting, error) {
	var fresh []models.Posting
	for _, p := range postings {
		seen, err := s.HasSeen(ctx, p)
		if err != nil {
			return nil, err
		}
		if err := s.MarkSeen(ctx, p); err != nil {
			return nil, err
		}
		if !seen {
			fresh = append(fresh, p)
		}
	}
	return fresh, nil
}

func cutoff(now time.Time, days int) time.Time {
	return now.UTC().Add(-time.Duration(days) * 24 * time.Hour)
}

// Open picks Postgres when postgresURL is set, otherwise the local SQLite file.
func Open(ctx context.Context, sqlitePath, postgresURL string, opts ...Option) (Store, error) {
	if postgresURL != "" {
		return ConnectDB(ctx, postgresURL, opts...)
	}
	return OpenSQLite(ctx, sqlitePath, opts...)
}
