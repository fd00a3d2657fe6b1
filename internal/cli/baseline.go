package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sandtrap-sec/sandtrap/internal/catalog"
	"github.com/sandtrap-sec/sandtrap/internal/store"
)

func baselineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Inspect and maintain the recorded baselines",
	}
	cmd.AddCommand(baselineShowCmd(), baselinePruneCmd())
	return cmd
}

func baselineShowCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "List the recorded baselines",
		Long: `List every recorded baseline: expected result, timing bound, and the
build that recorded it.

Examples:
  sandtrap baseline show --config sandtrap.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bs, cfgFile, err := openBaselines(configFile)
			if err != nil {
				return err
			}
			if bs.Len() == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no baselines recorded in %s\n", cfgFile)
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TEST\tEXPECT\tMAX MS\tVERSION\tUPDATED\tNAME")
			for _, b := range bs.All() {
				expect := "fail"
				if b.ExpectedResult {
					expect = "pass"
				}
				updated := "-"
				if !b.LastUpdated.IsZero() {
					updated = b.LastUpdated.Format("2006-01-02")
				}
				fmt.Fprintf(w, "%s\t%s\t%.1f\t%s\t%s\t%s\n",
					b.TestID, expect, b.MaxExecutionTime, b.Version, updated, b.TestName)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path")
	return cmd
}

func baselinePruneCmd() *cobra.Command {
	var configFile string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove baselines for tests no longer in the catalog",
		Long: `Remove recorded baselines whose test IDs no longer exist in the built-in
catalog, keeping the baseline file aligned with the current pattern set.

Examples:
  sandtrap baseline prune --config sandtrap.yaml
  sandtrap baseline prune --config sandtrap.yaml --dry-run`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bs, _, err := openBaselines(configFile)
			if err != nil {
				return err
			}
			cat := catalog.Builtin()

			var stale []string
			for _, b := range bs.All() {
				if _, err := cat.Get(b.TestID); err != nil {
					stale = append(stale, b.TestID)
				}
			}
			if len(stale) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to prune")
				return nil
			}
			for _, id := range stale {
				if dryRun {
					fmt.Fprintf(cmd.OutOrStdout(), "would prune %s\n", id)
					continue
				}
				bs.Delete(id)
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %s\n", id)
			}
			if dryRun {
				return nil
			}
			if err := bs.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d baselines pruned\n", len(stale))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be pruned without writing")
	return cmd
}

// openBaselines loads the baseline store named by the config. Returns the
// store and the resolved file path.
func openBaselines(configFile string) (*store.BaselineStore, string, error) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return nil, "", err
	}
	bs := store.NewBaselineStore(cfg.Baseline.File, Version, cfg.Baseline.Slack)
	if err := bs.Load(); err != nil {
		return nil, "", ExitCodeError(2, err)
	}
	return bs, cfg.Baseline.File, nil
}
