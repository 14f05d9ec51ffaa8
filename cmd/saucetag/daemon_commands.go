package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"saucetag/internal/daemonctl"
	"saucetag/internal/journal"
	"saucetag/internal/persist"
	"saucetag/internal/worktable"
)

func newStopCommand(ctx *commandContext) *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			res, err := daemonctl.Stop(cfg, grace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if res.ForcedKill {
				fmt.Fprintf(out, "Daemon (pid %d) did not exit within %s and was killed\n", res.PID, grace)
				return nil
			}
			fmt.Fprintf(out, "Daemon (pid %d) stopped\n", res.PID)
			return nil
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 90*time.Second, "How long to wait for the final flush before killing")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, table, and journal status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			state, err := daemonctl.Inspect(cfg)
			if err != nil {
				return err
			}
			daemonLine := paint(colorize, ansiRed, "stopped")
			if state.Running {
				daemonLine = paint(colorize, ansiGreen, "running")
				if state.PID > 0 {
					daemonLine += fmt.Sprintf(" (pid %d)", state.PID)
				}
			}

			rows := [][]string{{"Daemon", daemonLine}}

			entries, err := persist.New(cfg.Paths.TablePath, cfg.ShadowPath(), nil).Peek()
			if err != nil {
				rows = append(rows, []string{"Table", fmt.Sprintf("unreadable (%v)", err)})
			} else {
				tbl := worktable.New()
				tbl.Load(entries)
				covered, total := tbl.Coverage()
				rows = append(rows, []string{"Table", fmt.Sprintf("%d entries, %d covered", total, covered)})
			}

			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			store, err := journal.Open(cfg)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()
			recent, err := store.Recent(cmd.Context(), 1)
			if err != nil {
				return err
			}
			last := "none"
			if len(recent) > 0 {
				last = fmt.Sprintf("%s %s (%s)", recent[0].CreatedAt.Local().Format("2006-01-02 15:04:05"), recent[0].Key, recent[0].Outcome)
			}
			rows = append(rows,
				[]string{"Last attempt", last},
				[]string{"Watch", yesNo(cfg.Workflow.Watch)},
				[]string{"Journal", store.Path()},
			)
			fmt.Fprintln(out, renderTable([]string{"Item", "Value"}, rows, nil))
			return nil
		},
	}
}
