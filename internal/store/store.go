package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned by reads when no row matches.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write hits a uniqueness constraint,
	// which means another run already produced the row.
	ErrConflict = errors.New("uniqueness conflict")
)

// DailyDigest is the top-level artifact for one calendar date.
type DailyDigest struct {
	ID            int64           `db:"id" json:"-"`
	Date          string          `db:"date" json:"date"`
	GlobalTitle   string          `db:"global_title" json:"global_title"`
	GlobalSummary string          `db:"global_summary" json:"global_summary"`
	CreatedAt     string          `db:"created_at" json:"created_at"`
	Countries     []CountryDigest `db:"-" json:"countries"`
}

// CountryDigest is one country's rollup within a day.
type CountryDigest struct {
	ID            int64            `db:"id" json:"-"`
	DailyDigestID int64            `db:"daily_digest_id" json:"-"`
	CountryCode   string           `db:"country_code" json:"country_code"`
	CountryName   string           `db:"country_name" json:"country_name"`
	Title         string           `db:"title" json:"title"`
	Summary       string           `db:"summary" json:"summary"`
	CreatedAt     string           `db:"created_at" json:"-"`
	Releases      []ReleaseSummary `db:"-" json:"releases,omitempty"`
}

// ReleaseSummary is the generated summary of one release.
type ReleaseSummary struct {
	ID              int64  `db:"id" json:"-"`
	CountryDigestID int64  `db:"country_digest_id" json:"-"`
	ReleaseID       int64  `db:"release_id" json:"release_id"`
	Title           string `db:"title" json:"title"`
	Summary         string `db:"summary" json:"summary"`
	OriginalURL     string `db:"original_url" json:"original_url"`
	Ministry        string `db:"ministry" json:"ministry,omitempty"`
	CreatedAt       string `db:"created_at" json:"-"`
}

// WeeklyDigest aggregates seven consecutive daily digests.
type WeeklyDigest struct {
	ID            int64                 `db:"id" json:"-"`
	WeekStart     string                `db:"week_start" json:"week_start"`
	WeekEnd       string                `db:"week_end" json:"week_end"`
	GlobalTitle   string                `db:"global_title" json:"global_title"`
	GlobalSummary string                `db:"global_summary" json:"global_summary"`
	CreatedAt     string                `db:"created_at" json:"created_at"`
	Countries     []WeeklyCountryDigest `db:"-" json:"countries"`
}

// WeeklyCountryDigest is one country's rollup for a week.
type WeeklyCountryDigest struct {
	ID             int64  `db:"id" json:"-"`
	WeeklyDigestID int64  `db:"weekly_digest_id" json:"-"`
	CountryCode    string `db:"country_code" json:"country_code"`
	CountryName    string `db:"country_name" json:"country_name"`
	Title          string `db:"title" json:"title"`
	Summary        string `db:"summary" json:"summary"`
	CreatedAt      string `db:"created_at" json:"-"`
}

// Store is the persistence interface. Writes are all-or-nothing per digest;
// reads never observe a partially written day or week.
type Store interface {
	HasDailyDigest(ctx context.Context, date string) (bool, error)
	HasWeeklyDigest(ctx context.Context, weekEnd string) (bool, error)
	IsReleaseSummarized(ctx context.Context, releaseID int64) (bool, error)
	SummarizedReleases(ctx context.Context, releaseIDs []int64) (map[int64]bool, error)

	CommitDailyDigest(ctx context.Context, d *DailyDigest) error
	CommitWeeklyDigest(ctx context.Context, w *WeeklyDigest) error

	LatestDigest(ctx context.Context) (*DailyDigest, error)
	DigestByDate(ctx context.Context, date string) (*DailyDigest, error)
	ListDates(ctx context.Context) ([]string, error)
	DailyDigestsBetween(ctx context.Context, start, end string) ([]DailyDigest, error)
	LatestWeekly(ctx context.Context) (*WeeklyDigest, error)
	WeeklyByEnd(ctx context.Context, weekEnd string) (*WeeklyDigest, error)
	ListWeekEnds(ctx context.Context) ([]string, error)
	DatesWithoutWeekly(ctx context.Context, since string) ([]string, error)

	DeleteDailyDigest(ctx context.Context, date string) (bool, error)
	DeleteWeeklyDigest(ctx context.Context, weekEnd string) (bool, error)
	Prune(ctx context.Context, cutoff string) (daily, weekly int64, err error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

const pragmas = "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+pragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// OpenReadOnly opens an existing database on its own connection pool for
// readers; every statement that would write is rejected by SQLite.
func OpenReadOnly(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+pragmas+"&_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := s.db.GetContext(ctx, &one, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) HasDailyDigest(ctx context.Context, date string) (bool, error) {
	ok, err := s.exists(ctx, "SELECT 1 FROM daily_digest WHERE date = ?", date)
	if err != nil {
		return false, fmt.Errorf("has daily digest %s: %w", date, err)
	}
	return ok, nil
}

func (s *SQLiteStore) HasWeeklyDigest(ctx context.Context, weekEnd string) (bool, error) {
	ok, err := s.exists(ctx, "SELECT 1 FROM weekly_digest WHERE week_end = ?", weekEnd)
	if err != nil {
		return false, fmt.Errorf("has weekly digest %s: %w", weekEnd, err)
	}
	return ok, nil
}

func (s *SQLiteStore) IsReleaseSummarized(ctx context.Context, releaseID int64) (bool, error) {
	ok, err := s.exists(ctx, "SELECT 1 FROM release_summary WHERE release_id = ?", releaseID)
	if err != nil {
		return false, fmt.Errorf("is release summarized %d: %w", releaseID, err)
	}
	return ok, nil
}

// SummarizedReleases returns the subset of releaseIDs that already have a
// summary, in one query.
func (s *SQLiteStore) SummarizedReleases(ctx context.Context, releaseIDs []int64) (map[int64]bool, error) {
	done := make(map[int64]bool)
	if len(releaseIDs) == 0 {
		return done, nil
	}

	query, args, err := sqlx.In("SELECT release_id FROM release_summary WHERE release_id IN (?)", releaseIDs)
	if err != nil {
		return nil, fmt.Errorf("build summarized releases query: %w", err)
	}

	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("summarized releases: %w", err)
	}
	for _, id := range ids {
		done[id] = true
	}
	return done, nil
}

// CommitDailyDigest writes the day, its countries and their releases in one
// transaction. IDs are filled in on success.
func (s *SQLiteStore) CommitDailyDigest(ctx context.Context, d *DailyDigest) error {
	if len(d.Countries) == 0 {
		return fmt.Errorf("commit daily digest %s: no countries", d.Date)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin daily digest %s: %w", d.Date, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO daily_digest (date, global_title, global_summary) VALUES (?, ?, ?)",
		d.Date, d.GlobalTitle, d.GlobalSummary)
	if err != nil {
		return fmt.Errorf("insert daily digest %s: %w", d.Date, classify(err))
	}
	dailyID, _ := res.LastInsertId()

	for i := range d.Countries {
		c := &d.Countries[i]
		res, err := tx.ExecContext(ctx,
			"INSERT INTO country_digest (daily_digest_id, country_code, country_name, title, summary) VALUES (?, ?, ?, ?, ?)",
			dailyID, c.CountryCode, c.CountryName, c.Title, c.Summary)
		if err != nil {
			return fmt.Errorf("insert country digest %s/%s: %w", d.Date, c.CountryCode, classify(err))
		}
		c.ID, _ = res.LastInsertId()
		c.DailyDigestID = dailyID

		for j := range c.Releases {
			r := &c.Releases[j]
			res, err := tx.ExecContext(ctx,
				"INSERT INTO release_summary (country_digest_id, release_id, title, summary, original_url, ministry) VALUES (?, ?, ?, ?, ?, ?)",
				c.ID, r.ReleaseID, r.Title, r.Summary, r.OriginalURL, nullIfEmpty(r.Ministry))
			if err != nil {
				return fmt.Errorf("insert release summary %d: %w", r.ReleaseID, classify(err))
			}
			r.ID, _ = res.LastInsertId()
			r.CountryDigestID = c.ID
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit daily digest %s: %w", d.Date, classify(err))
	}
	d.ID = dailyID
	return nil
}

// CommitWeeklyDigest writes a week and its country rollups in one transaction.
func (s *SQLiteStore) CommitWeeklyDigest(ctx context.Context, w *WeeklyDigest) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin weekly digest %s: %w", w.WeekEnd, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO weekly_digest (week_start, week_end, global_title, global_summary) VALUES (?, ?, ?, ?)",
		w.WeekStart, w.WeekEnd, w.GlobalTitle, w.GlobalSummary)
	if err != nil {
		return fmt.Errorf("insert weekly digest %s: %w", w.WeekEnd, classify(err))
	}
	weeklyID, _ := res.LastInsertId()

	for i := range w.Countries {
		c := &w.Countries[i]
		res, err := tx.ExecContext(ctx,
			"INSERT INTO weekly_country_digest (weekly_digest_id, country_code, country_name, title, summary) VALUES (?, ?, ?, ?, ?)",
			weeklyID, c.CountryCode, c.CountryName, c.Title, c.Summary)
		if err != nil {
			return fmt.Errorf("insert weekly country digest %s/%s: %w", w.WeekEnd, c.CountryCode, classify(err))
		}
		c.ID, _ = res.LastInsertId()
		c.WeeklyDigestID = weeklyID
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit weekly digest %s: %w", w.WeekEnd, classify(err))
	}
	w.ID = weeklyID
	return nil
}

func (s *SQLiteStore) DeleteDailyDigest(ctx context.Context, date string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM daily_digest WHERE date = ?", date)
	if err != nil {
		return false, fmt.Errorf("delete daily digest %s: %w", date, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) DeleteWeeklyDigest(ctx context.Context, weekEnd string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM weekly_digest WHERE week_end = ?", weekEnd)
	if err != nil {
		return false, fmt.Errorf("delete weekly digest %s: %w", weekEnd, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Prune deletes daily digests dated before cutoff and weekly digests ending
// before it. Children go with their parents.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff string) (int64, int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin prune: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM daily_digest WHERE date < ?", cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("prune daily digests: %w", err)
	}
	daily, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, "DELETE FROM weekly_digest WHERE week_end < ?", cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("prune weekly digests: %w", err)
	}
	weekly, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit prune: %w", err)
	}
	return daily, weekly, nil
}

// classify maps SQLite uniqueness violations to ErrConflict.
func classify(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
