package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/elonfeng/govdigest/internal/store"
	"github.com/elonfeng/govdigest/pkg/pipeline"
)

var (
	okColor   = color.New(color.FgGreen)
	skipColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.Faint)
	headColor = color.New(color.Bold)
)

func kindColor(k pipeline.OutcomeKind) *color.Color {
	switch k {
	case pipeline.Success:
		return okColor
	case pipeline.Skipped:
		return skipColor
	default:
		return failColor
	}
}

func printReport(w io.Writer, rep *pipeline.Report) {
	if rep == nil {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, d := range rep.Days {
		detail := d.Reason
		if d.Kind == pipeline.Success && d.Digest != nil {
			detail = fmt.Sprintf("%d countries: %s", len(d.Digest.Countries), d.Digest.GlobalTitle)
		}
		if d.Kind == pipeline.Failed && d.Err != nil {
			detail += ": " + d.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Date, kindColor(d.Kind).Sprint(d.Kind), detail)
		for _, warn := range d.Warnings {
			fmt.Fprintf(tw, "\t%s\t%s\n", skipColor.Sprint("warning"), warn)
		}
	}
	for _, wk := range rep.Weeks {
		detail := wk.Reason
		if wk.Kind == pipeline.Success && wk.Digest != nil {
			detail = wk.Digest.GlobalTitle
		}
		if wk.Kind == pipeline.Failed && wk.Err != nil {
			detail += ": " + wk.Err.Error()
		}
		fmt.Fprintf(tw, "week %s..%s\t%s\t%s\n", wk.WeekStart, wk.WeekEnd, kindColor(wk.Kind).Sprint(wk.Kind), detail)
	}
	tw.Flush()

	summary := fmt.Sprintf("%d built, %d skipped, %d failed",
		rep.Count(pipeline.Success), rep.Count(pipeline.Skipped), rep.Count(pipeline.Failed))
	if rep.PrunedDaily+rep.PrunedWeekly > 0 {
		summary += fmt.Sprintf(", pruned %d daily / %d weekly", rep.PrunedDaily, rep.PrunedWeekly)
	}
	elapsed := rep.Finished.Sub(rep.Started).Round(time.Millisecond)
	fmt.Fprintf(w, "\n%s %s\n", headColor.Sprint(summary), dimColor.Sprintf("(run %s, %s)", rep.RunID, elapsed))
	if rep.Err != nil {
		failColor.Fprintf(w, "aborted: %v\n", rep.Err)
	}
}

func printDaily(w io.Writer, d *store.DailyDigest) {
	headColor.Fprintf(w, "%s  %s\n", d.Date, d.GlobalTitle)
	fmt.Fprintf(w, "%s\n", d.GlobalSummary)
	for _, c := range d.Countries {
		fmt.Fprintln(w)
		okColor.Fprintf(w, "%s (%s): %s\n", c.CountryName, c.CountryCode, c.Title)
		fmt.Fprintf(w, "  %s\n", c.Summary)
		for _, r := range c.Releases {
			fmt.Fprintf(w, "  - %s\n", r.Title)
			dimColor.Fprintf(w, "    %s\n", r.OriginalURL)
		}
	}
}

func printWeekly(w io.Writer, wk *store.WeeklyDigest) {
	headColor.Fprintf(w, "%s..%s  %s\n", wk.WeekStart, wk.WeekEnd, wk.GlobalTitle)
	fmt.Fprintf(w, "%s\n", wk.GlobalSummary)
	for _, c := range wk.Countries {
		fmt.Fprintln(w)
		okColor.Fprintf(w, "%s (%s): %s\n", c.CountryName, c.CountryCode, c.Title)
		fmt.Fprintf(w, "  %s\n", c.Summary)
	}
}
