package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "govdigest",
		Short:         "Summarize government press releases into daily and weekly digests",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(generateCmd())
	root.AddCommand(weeklyCmd())
	root.AddCommand(showCmd())
	root.AddCommand(datesCmd())
	root.AddCommand(pruneCmd())
	root.AddCommand(deleteCmd())
	root.AddCommand(scheduleCmd())

	return root
}

func generateCmd() *cobra.Command {
	var opts rangeFlags

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Build missing daily digests (and any week they complete)",
		Example: `  govdigest generate
  govdigest generate --backfill 7
  govdigest generate --from 2026-02-01 --to 2026-02-07`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), opts)
		},
	}

	opts.register(cmd)
	return cmd
}

func weeklyCmd() *cobra.Command {
	var opts rangeFlags

	cmd := &cobra.Command{
		Use:   "weekly",
		Short: "Roll up weekly digests for every complete week touching a range",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWeekly(cmd.Context(), opts)
		},
	}

	opts.register(cmd)
	cmd.AddCommand(weeklyShowCmd())
	return cmd
}

func weeklyShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show [week_end]",
		Short: "Show a weekly digest (latest by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWeeklyShow(cmd.Context(), firstArg(args), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func showCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show [date]",
		Short: "Show a daily digest (latest by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.Context(), firstArg(args), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func datesCmd() *cobra.Command {
	var weekly bool

	cmd := &cobra.Command{
		Use:   "dates",
		Short: "List dates that have a digest, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDates(cmd.Context(), weekly)
		},
	}

	cmd.Flags().BoolVar(&weekly, "weekly", false, "list weekly digest end dates instead")
	return cmd
}

func pruneCmd() *cobra.Command {
	var keepDays int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete digests older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(cmd.Context(), keepDays)
		},
	}

	cmd.Flags().IntVar(&keepDays, "keep-days", 0, "days to keep (default: pipeline.prune_days)")
	return cmd
}

func deleteCmd() *cobra.Command {
	var date, weekEnd string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete one digest so the next run regenerates it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd.Context(), date, weekEnd)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "daily digest date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&weekEnd, "week-end", "", "weekly digest end date (YYYY-MM-DD)")
	cmd.MarkFlagsOneRequired("date", "week-end")
	cmd.MarkFlagsMutuallyExclusive("date", "week-end")
	return cmd
}

func scheduleCmd() *cobra.Command {
	var (
		spec       string
		runOnStart bool
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run generate on a cron schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(cmd.Context(), spec, runOnStart)
		},
	}

	cmd.Flags().StringVar(&spec, "cron", "", "cron spec in UTC (default: schedule.cron)")
	cmd.Flags().BoolVar(&runOnStart, "now", false, "also run once immediately")
	return cmd
}

type rangeFlags struct {
	backfill int
	from     string
	to       string
}

func (r *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&r.backfill, "backfill", 0, "days before today to cover (default: pipeline.backfill_days)")
	cmd.Flags().StringVar(&r.from, "from", "", "first date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&r.to, "to", "", "last date (YYYY-MM-DD, default: --from)")
	cmd.MarkFlagsMutuallyExclusive("backfill", "from")
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
