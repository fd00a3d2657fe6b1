package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandtrap-sec/sandtrap/internal/runlog"
)

func runsCmd() *cobra.Command {
	var configFile string
	var last int
	var runID string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List archived suite runs",
		Long: `List past suite runs from the SQLite archive, newest first, or show
the regressions recorded for one run.

Examples:
  sandtrap runs --config sandtrap.yaml
  sandtrap runs --config sandtrap.yaml --last 5
  sandtrap runs --config sandtrap.yaml --run 6f1c2a8e-...`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			if !cfg.RunLog.Enabled || cfg.RunLog.File == "" {
				return ExitCodeError(2, fmt.Errorf("run archive is not enabled in the config"))
			}

			archive, err := runlog.Open(cfg.RunLog.File)
			if err != nil {
				return ExitCodeError(2, err)
			}
			defer func() { _ = archive.Close() }()

			ctx := cmd.Context()
			if runID != "" {
				return showRunRegressions(cmd, archive, runID)
			}

			runs, err := archive.List(ctx, last)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no archived runs")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTARTED\tMODE\tVERDICT\tTESTS\tFAILED\tREGRESSIONS\tCRITICAL\tVERSION")
			for _, r := range runs {
				id := r.ID
				if len(id) > 8 {
					id = id[:8]
				}
				verdict := r.Verdict
				if r.Partial {
					verdict += " (partial)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
					id, r.StartedAt.Local().Format(time.DateTime), r.Mode, verdict,
					r.Total, r.Failed, r.Regressions, r.Critical, r.Version)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			streak, err := archive.FailStreak(ctx, len(runs))
			if err == nil && streak > 1 {
				fmt.Fprintf(cmd.OutOrStdout(), "\n%d consecutive FAIL verdicts\n", streak)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path")
	cmd.Flags().IntVarP(&last, "last", "n", 20, "show only the last N runs")
	cmd.Flags().StringVar(&runID, "run", "", "show the regressions recorded for this run ID")

	return cmd
}

func showRunRegressions(cmd *cobra.Command, archive *runlog.Store, runID string) error {
	rows, err := archive.Regressions(cmd.Context(), runID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no regressions recorded for run %s\n", runID)
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TEST\tTYPE\tSEVERITY\tCONFIDENCE\tDETAIL")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n", r.TestID, r.Type, r.Severity, r.Confidence, r.Detail)
	}
	return w.Flush()
}
