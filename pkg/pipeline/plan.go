package pipeline

import (
	"fmt"
	"slices"
	"time"

	"github.com/elonfeng/govdigest/pkg/source"
)

// Range is an inclusive span of UTC calendar dates.
type Range struct {
	From time.Time
	To   time.Time
}

// BackfillRange covers days complete days before now: yesterday and
// the days-1 days before it.
func BackfillRange(days int, now time.Time) Range {
	if days < 1 {
		days = 1
	}
	end := truncateDay(now).AddDate(0, 0, -1)
	return Range{From: end.AddDate(0, 0, -(days - 1)), To: end}
}

// ParseRange builds a range from YYYY-MM-DD strings. An empty to means from.
func ParseRange(from, to string) (Range, error) {
	f, err := time.Parse(source.DateLayout, from)
	if err != nil {
		return Range{}, fmt.Errorf("parse from date %q: %w", from, err)
	}
	if to == "" {
		return Range{From: f, To: f}, nil
	}
	t, err := time.Parse(source.DateLayout, to)
	if err != nil {
		return Range{}, fmt.Errorf("parse to date %q: %w", to, err)
	}
	return Range{From: f, To: t}, nil
}

// Dates lists every date in the range, oldest first. Ranges that end in
// the future relative to now are rejected.
func (r Range) Dates(now time.Time) ([]time.Time, error) {
	from, to := truncateDay(r.From), truncateDay(r.To)
	if to.Before(from) {
		return nil, fmt.Errorf("invalid range: %s is before %s",
			to.Format(source.DateLayout), from.Format(source.DateLayout))
	}
	if to.After(truncateDay(now)) {
		return nil, fmt.Errorf("invalid range: %s is in the future", to.Format(source.DateLayout))
	}

	var dates []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// weekContaining returns the end date of the 7-day window holding date.
func weekContaining(date time.Time, weekEnd time.Weekday) time.Time {
	date = truncateDay(date)
	ahead := (int(weekEnd) - int(date.Weekday()) + 7) % 7
	return date.AddDate(0, 0, ahead)
}

// weekTracker remembers which windows a run touched and which it already
// tried to roll up, so each window is attempted at most once per run.
type weekTracker struct {
	weekEnd   time.Weekday
	touched   []time.Time
	seen      map[string]bool
	attempted map[string]bool
}

func newWeekTracker(weekEnd time.Weekday) *weekTracker {
	return &weekTracker{weekEnd: weekEnd, seen: map[string]bool{}, attempted: map[string]bool{}}
}

func (w *weekTracker) touch(date time.Time) {
	end := weekContaining(date, w.weekEnd)
	key := end.Format(source.DateLayout)
	if !w.seen[key] {
		w.seen[key] = true
		w.touched = append(w.touched, end)
	}
}

// claim marks end as attempted and reports whether it was new.
func (w *weekTracker) claim(end time.Time) bool {
	key := end.Format(source.DateLayout)
	if w.attempted[key] {
		return false
	}
	w.attempted[key] = true
	return true
}

// pending returns touched windows not yet attempted, oldest first.
func (w *weekTracker) pending() []time.Time {
	var out []time.Time
	for _, end := range w.touched {
		if !w.attempted[end.Format(source.DateLayout)] {
			out = append(out, end)
		}
	}
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return out
}
