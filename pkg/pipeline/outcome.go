package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/govdigest/internal/store"
)

// OutcomeKind tags how a planned day or week ended.
type OutcomeKind string

const (
	Success OutcomeKind = "success"
	Skipped OutcomeKind = "skipped"
	Failed  OutcomeKind = "failed"
)

// Skip reasons.
const (
	ReasonExists     = "already present"
	ReasonNoContent  = "no country produced content"
	ReasonIncomplete = "window incomplete"
)

// DayOutcome is the result of one planned date.
type DayOutcome struct {
	Date     string
	Kind     OutcomeKind
	Reason   string
	Err      error
	Digest   *store.DailyDigest
	Warnings []error
	Duration time.Duration
}

// WeekOutcome is the result of one weekly rollup attempt.
type WeekOutcome struct {
	WeekStart string
	WeekEnd   string
	Kind      OutcomeKind
	Reason    string
	Err       error
	Digest    *store.WeeklyDigest
	Warnings  []error
}

// Report summarizes one run.
type Report struct {
	RunID        string
	Started      time.Time
	Finished     time.Time
	Days         []DayOutcome
	Weeks        []WeekOutcome
	PrunedDaily  int64
	PrunedWeekly int64
	Err          error
}

// Count returns how many days ended with kind.
func (r *Report) Count(kind OutcomeKind) int {
	n := 0
	for _, d := range r.Days {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// Failures returns failed days and weeks.
func (r *Report) Failures() (days []DayOutcome, weeks []WeekOutcome) {
	for _, d := range r.Days {
		if d.Kind == Failed {
			days = append(days, d)
		}
	}
	for _, w := range r.Weeks {
		if w.Kind == Failed {
			weeks = append(weeks, w)
		}
	}
	return days, weeks
}

// Progressed reports whether the run committed anything or found nothing
// left to do.
func (r *Report) Progressed() bool {
	if r.Err != nil && len(r.Days) == 0 {
		return false
	}
	for _, d := range r.Days {
		if d.Kind != Failed {
			return true
		}
	}
	for _, w := range r.Weeks {
		if w.Kind == Success {
			return true
		}
	}
	return len(r.Days) == 0 && r.Err == nil
}

// AggregationError means there was not enough input to form a digest.
type AggregationError struct {
	Date string
	Err  error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregate %s: %v", e.Date, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }

// PersistenceError means the store could not be read or written. It ends
// the run: a uniqueness conflict indicates a racing or duplicate run.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsConflict reports whether err came from a uniqueness violation.
func IsConflict(err error) bool {
	return errors.Is(err, store.ErrConflict)
}

var errNoContent = errors.New("no country produced content")
