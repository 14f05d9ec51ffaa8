package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"saucetag/internal/persist"
	"saucetag/internal/worktable"
)

func newTableCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "table",
		Short: "Show table coverage and the next entries to be tagged",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			entries, err := persist.New(cfg.Paths.TablePath, cfg.ShadowPath(), nil).Peek()
			if err != nil {
				return fmt.Errorf("read table: %w", err)
			}
			tbl := worktable.New()
			tbl.Load(entries)

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			covered, total := tbl.Coverage()
			if total == 0 {
				fmt.Fprintln(out, "Table is empty; run `saucetag scan` to seed it")
				return nil
			}
			fmt.Fprintf(out, "%s %d of %d entries (%.1f%%)\n",
				paint(colorize, ansiBold, "Covered:"), covered, total, 100*float64(covered)/float64(total))

			counts := make([]int, worktable.MaxPriority+1)
			for _, p := range entries {
				if p >= 0 && p < len(counts) {
					counts[p]++
				}
			}
			rows := make([][]string, 0, len(counts))
			for p, n := range counts {
				rows = append(rows, []string{strconv.Itoa(p), strconv.Itoa(n)})
			}
			fmt.Fprintln(out, renderTable([]string{"Priority", "Entries"}, rows, []columnAlignment{alignRight, alignRight}))

			if limit <= 0 {
				return nil
			}
			next := tbl.Lowest(limit)
			rows = make([][]string, 0, len(next))
			for _, item := range next {
				rows = append(rows, []string{strconv.Itoa(item.Priority), item.Key})
			}
			fmt.Fprintln(out, paint(colorize, ansiBold, "Next up"))
			fmt.Fprintln(out, renderTable([]string{"Priority", "Image"}, rows, []columnAlignment{alignRight, alignLeft}))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of upcoming entries to list")
	return cmd
}
