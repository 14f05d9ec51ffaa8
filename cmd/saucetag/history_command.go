package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"saucetag/internal/journal"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent annotation attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			store, err := journal.Open(cfg)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			attempts, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			summary, err := store.Summary(cmd.Context(), time.Now().Add(-since))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			if len(attempts) == 0 {
				fmt.Fprintln(out, "No attempts recorded yet")
				return nil
			}

			rows := make([][]string, 0, len(attempts))
			for _, a := range attempts {
				rows = append(rows, []string{
					a.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					a.Key,
					paintOutcome(colorize, a.Outcome),
					strconv.Itoa(len(a.TagsAdded)),
					a.Detail,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Time", "Image", "Outcome", "Added", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))

			fmt.Fprintf(out, "%s (last %s)\n", paint(colorize, ansiBold, "Summary"), since)
			fmt.Fprintln(out, renderSummary(summary))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of attempts to list")
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "Window for the outcome summary")
	return cmd
}

func renderSummary(summary map[journal.Outcome]int) string {
	outcomes := make([]string, 0, len(summary))
	for o := range summary {
		outcomes = append(outcomes, string(o))
	}
	sort.Strings(outcomes)

	rows := make([][]string, 0, len(outcomes)+1)
	total := 0
	for _, o := range outcomes {
		n := summary[journal.Outcome(o)]
		total += n
		rows = append(rows, []string{o, strconv.Itoa(n)})
	}
	rows = append(rows, []string{"total", strconv.Itoa(total)})
	return renderTable([]string{"Outcome", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
}

func paintOutcome(colorize bool, o journal.Outcome) string {
	switch o {
	case journal.OutcomeTagged, journal.OutcomeCached:
		return paint(colorize, ansiGreen, string(o))
	case journal.OutcomeRateLimited, journal.OutcomeNetwork, journal.OutcomeWriteFailed:
		return paint(colorize, ansiRed, string(o))
	default:
		return string(o)
	}
}
