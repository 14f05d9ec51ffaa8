package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"saucetag/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check paths, dependencies, and remote services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			results := preflight.RunAll(cmd.Context(), cfg, probe)
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				status := paint(colorize, ansiGreen, "ok")
				if !r.Passed {
					status = paint(colorize, ansiRed, "fail")
				}
				rows = append(rows, []string{r.Name, status, r.Detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))

			deps := preflight.CheckSystemDeps(cmd.Context(), cfg)
			rows = rows[:0]
			for _, d := range deps {
				version := d.Version
				if version == "" {
					version = "-"
				}
				rows = append(rows, []string{d.Name, yesNo(d.Available), version, d.Description})
			}
			fmt.Fprintln(out, renderTable([]string{"Dependency", "Available", "Version", "Purpose"}, rows, nil))

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d check(s) failed", len(failed))
			}
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "Also contact Gelbooru")
	return cmd
}
