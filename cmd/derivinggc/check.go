package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/podhmo/derivinggc"
	"github.com/podhmo/derivinggc/diag"
)

func newCheckCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "check [patterns...]",
		Short: "Report diagnostics and generated files that are out of date",
		Long: `Check generates in memory and compares the result with the files on
disk. It exits with status 1 when a diagnostic is reported or a generated
file is missing or out of date. Nothing is written.

With --format json, the diagnostics are printed to stdout as a JSON array
and out of date files are reported on stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "pretty" && format != "json" {
				return fmt.Errorf("invalid --format %q, must be pretty or json", format)
			}
			cfg, err := a.config()
			if err != nil {
				return err
			}
			runner, err := a.runner(cfg)
			if err != nil {
				return err
			}
			report, err := runner.Run(cmd.Context(), patternsOrDefault(args), derivinggc.RunOptions{Check: true})
			if report == nil {
				return err
			}
			ds := report.Diagnostics()
			staleOut := a.stdout
			if format == "json" {
				staleOut = a.stderr
				if jsonErr := diag.JSON(a.stdout, ds); jsonErr != nil {
					return jsonErr
				}
			} else {
				a.printDiagnostics(ds)
			}
			if err != nil {
				return err
			}
			stale := report.Stale()
			for _, p := range stale {
				name := p.Output
				if rel, err := filepath.Rel(runner.Locator().RootDir(), p.Output); err == nil {
					name = filepath.ToSlash(rel)
				}
				fmt.Fprintf(staleOut, "%s: out of date\n", name)
			}
			if len(ds) > 0 || len(stale) > 0 {
				return errFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "pretty", "diagnostics format (pretty|json)")
	return cmd
}
