package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const (
	dailyColumns         = "id, date, global_title, global_summary, created_at"
	countryColumns       = "id, daily_digest_id, country_code, country_name, title, summary, created_at"
	releaseColumns       = "id, country_digest_id, release_id, title, summary, original_url, COALESCE(ministry, '') AS ministry, created_at"
	weeklyColumns        = "id, week_start, week_end, global_title, global_summary, created_at"
	weeklyCountryColumns = "id, weekly_digest_id, country_code, country_name, title, summary, created_at"
)

// LatestDigest returns the most recent day with countries and releases.
func (s *SQLiteStore) LatestDigest(ctx context.Context) (*DailyDigest, error) {
	return s.getDaily(ctx, "SELECT "+dailyColumns+" FROM daily_digest ORDER BY date DESC LIMIT 1")
}

// DigestByDate returns one day with countries (ordered by name) and releases.
func (s *SQLiteStore) DigestByDate(ctx context.Context, date string) (*DailyDigest, error) {
	return s.getDaily(ctx, "SELECT "+dailyColumns+" FROM daily_digest WHERE date = ?", date)
}

func (s *SQLiteStore) getDaily(ctx context.Context, query string, args ...any) (*DailyDigest, error) {
	var d DailyDigest
	if err := s.db.GetContext(ctx, &d, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get daily digest: %w", err)
	}

	days := []DailyDigest{d}
	if err := s.attachCountries(ctx, days, true); err != nil {
		return nil, err
	}
	return &days[0], nil
}

// ListDates returns every digest date, newest first.
func (s *SQLiteStore) ListDates(ctx context.Context) ([]string, error) {
	var dates []string
	if err := s.db.SelectContext(ctx, &dates, "SELECT date FROM daily_digest ORDER BY date DESC"); err != nil {
		return nil, fmt.Errorf("list dates: %w", err)
	}
	return dates, nil
}

// DailyDigestsBetween returns days in [start, end] ascending, with their
// countries but without release rows.
func (s *SQLiteStore) DailyDigestsBetween(ctx context.Context, start, end string) ([]DailyDigest, error) {
	var days []DailyDigest
	err := s.db.SelectContext(ctx, &days,
		"SELECT "+dailyColumns+" FROM daily_digest WHERE date >= ? AND date <= ? ORDER BY date", start, end)
	if err != nil {
		return nil, fmt.Errorf("list daily digests %s..%s: %w", start, end, err)
	}
	if err := s.attachCountries(ctx, days, false); err != nil {
		return nil, err
	}
	return days, nil
}

func (s *SQLiteStore) attachCountries(ctx context.Context, days []DailyDigest, withReleases bool) error {
	if len(days) == 0 {
		return nil
	}

	ids := make([]int64, len(days))
	index := make(map[int64]int, len(days))
	for i, d := range days {
		ids[i] = d.ID
		index[d.ID] = i
	}

	query, args, err := sqlx.In("SELECT "+countryColumns+" FROM country_digest WHERE daily_digest_id IN (?) ORDER BY country_name, country_code", ids)
	if err != nil {
		return fmt.Errorf("build country query: %w", err)
	}
	var countries []CountryDigest
	if err := s.db.SelectContext(ctx, &countries, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("list country digests: %w", err)
	}

	if withReleases && len(countries) > 0 {
		if err := s.attachReleases(ctx, countries); err != nil {
			return err
		}
	}

	for _, c := range countries {
		i := index[c.DailyDigestID]
		days[i].Countries = append(days[i].Countries, c)
	}
	return nil
}

func (s *SQLiteStore) attachReleases(ctx context.Context, countries []CountryDigest) error {
	ids := make([]int64, len(countries))
	index := make(map[int64]int, len(countries))
	for i, c := range countries {
		ids[i] = c.ID
		index[c.ID] = i
	}

	query, args, err := sqlx.In("SELECT "+releaseColumns+" FROM release_summary WHERE country_digest_id IN (?) ORDER BY id", ids)
	if err != nil {
		return fmt.Errorf("build release query: %w", err)
	}
	var releases []ReleaseSummary
	if err := s.db.SelectContext(ctx, &releases, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("list release summaries: %w", err)
	}

	for _, r := range releases {
		i := index[r.CountryDigestID]
		countries[i].Releases = append(countries[i].Releases, r)
	}
	return nil
}

// LatestWeekly returns the most recent week with its countries.
func (s *SQLiteStore) LatestWeekly(ctx context.Context) (*WeeklyDigest, error) {
	return s.getWeekly(ctx, "SELECT "+weeklyColumns+" FROM weekly_digest ORDER BY week_end DESC LIMIT 1")
}

// WeeklyByEnd returns the week ending on weekEnd with its countries.
func (s *SQLiteStore) WeeklyByEnd(ctx context.Context, weekEnd string) (*WeeklyDigest, error) {
	return s.getWeekly(ctx, "SELECT "+weeklyColumns+" FROM weekly_digest WHERE week_end = ?", weekEnd)
}

func (s *SQLiteStore) getWeekly(ctx context.Context, query string, args ...any) (*WeeklyDigest, error) {
	var w WeeklyDigest
	if err := s.db.GetContext(ctx, &w, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get weekly digest: %w", err)
	}

	err := s.db.SelectContext(ctx, &w.Countries,
		"SELECT "+weeklyCountryColumns+" FROM weekly_country_digest WHERE weekly_digest_id = ? ORDER BY country_name, country_code", w.ID)
	if err != nil {
		return nil, fmt.Errorf("list weekly countries %s: %w", w.WeekEnd, err)
	}
	return &w, nil
}

// ListWeekEnds returns every weekly digest end date, newest first.
func (s *SQLiteStore) ListWeekEnds(ctx context.Context) ([]string, error) {
	var ends []string
	if err := s.db.SelectContext(ctx, &ends, "SELECT week_end FROM weekly_digest ORDER BY week_end DESC"); err != nil {
		return nil, fmt.Errorf("list week ends: %w", err)
	}
	return ends, nil
}

// DatesWithoutWeekly returns daily digest dates on or after since that no
// weekly digest covers, oldest first. An empty since means no lower bound.
func (s *SQLiteStore) DatesWithoutWeekly(ctx context.Context, since string) ([]string, error) {
	var dates []string
	err := s.db.SelectContext(ctx, &dates, `
		SELECT d.date FROM daily_digest d
		WHERE d.date >= ?
		  AND NOT EXISTS (
		      SELECT 1 FROM weekly_digest w
		      WHERE d.date >= w.week_start AND d.date <= w.week_end
		  )
		ORDER BY d.date`, since)
	if err != nil {
		return nil, fmt.Errorf("dates without weekly: %w", err)
	}
	return dates, nil
}
