package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"saucetag/internal/daemonrun"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan the library into the table without tagging",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			res, err := daemonrun.ScanOnce(cmd.Context(), cfg, ctx.commandLogger(cmd.ErrOrStderr()))
			if errors.Is(err, daemonrun.ErrLocked) {
				return fmt.Errorf("%w; the daemon rescans every %d minutes on its own", err, cfg.Workflow.RescanIntervalMinutes)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scanned %d images in %s\n", res.Stats.Images, res.Stats.Elapsed.Round(time.Millisecond))
			fmt.Fprintf(out, "Added %d new entries\n", res.Stats.Inserted)
			if res.Recovered > 0 {
				fmt.Fprintf(out, "Recovered %d entries from an interrupted run\n", res.Recovered)
			}
			fmt.Fprintf(out, "Table: %d entries, %d covered\n", res.Total, res.Covered)
			return nil
		},
	}
}
