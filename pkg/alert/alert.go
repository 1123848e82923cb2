// Package alert tells operators when a digest run could not build some days.
package alert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/elonfeng/govdigest/pkg/pipeline"
)

// maxListed caps how many failures a chat message lists.
const maxListed = 10

// Failure is one day or week that a run could not build.
type Failure struct {
	Kind   string `json:"kind"` // "day" or "week"
	Date   string `json:"date"`
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}

// Notification is the data sent to alert destinations.
type Notification struct {
	RunID     string    `json:"run_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Succeeded int       `json:"succeeded"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Failures  []Failure `json:"failures"`
	Aborted   string    `json:"aborted,omitempty"`
	Finished  time.Time `json:"finished"`
}

// FromReport builds a notification for a run with failures. It returns nil
// when every planned day and week went through.
func FromReport(rep *pipeline.Report) *Notification {
	days, weeks := rep.Failures()
	if len(days) == 0 && len(weeks) == 0 && rep.Err == nil {
		return nil
	}

	n := &Notification{
		RunID:     rep.RunID,
		Succeeded: rep.Count(pipeline.Success),
		Skipped:   rep.Count(pipeline.Skipped),
		Failed:    len(days),
		Finished:  rep.Finished,
	}
	for _, d := range days {
		n.Failures = append(n.Failures, Failure{Kind: "day", Date: d.Date, Reason: d.Reason, Error: errString(d.Err)})
	}
	for _, w := range weeks {
		n.Failures = append(n.Failures, Failure{Kind: "week", Date: w.WeekEnd, Reason: w.Reason, Error: errString(w.Err)})
	}

	switch {
	case rep.Err != nil:
		n.Title = "Digest run aborted"
		n.Aborted = rep.Err.Error()
	default:
		n.Title = fmt.Sprintf("Digest run: %d day(s) failed", len(days))
		if len(days) == 0 {
			n.Title = fmt.Sprintf("Digest run: %d week(s) failed", len(weeks))
		}
	}
	n.Body = fmt.Sprintf("%d built, %d skipped, %d failed. Missing dates stay off the site until a later run backfills them.",
		n.Succeeded, n.Skipped, n.Failed)
	return n
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return m != nil && len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	if m == nil || n == nil {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// postJSON sends body and treats any non-2xx status as an error.
func postJSON(ctx context.Context, client *http.Client, name, url string, body []byte, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s status %d", name, resp.StatusCode)
	}
	return nil
}

// failureLines renders up to maxListed failures, one per line.
func failureLines(n *Notification, format string) []string {
	var lines []string
	for i, f := range n.Failures {
		if i == maxListed {
			lines = append(lines, fmt.Sprintf("…and %d more", len(n.Failures)-maxListed))
			break
		}
		lines = append(lines, fmt.Sprintf(format, f.Kind, f.Date, f.Reason))
	}
	return lines
}
