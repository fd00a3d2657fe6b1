package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func checkCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a sandtrap config file",
		Long: `Load and validate a config file, then print the effective settings.

Examples:
  sandtrap check --config sandtrap.yaml

Exits 2 when the config is invalid.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Config validation FAILED: %v\n", err)
				return err
			}
			out := cmd.OutOrStdout()
			if configFile == "" {
				fmt.Fprintln(out, "Using default config (no --config specified)")
			} else {
				fmt.Fprintln(out, "Config validation: OK")
			}

			categories := "all"
			if len(cfg.Categories) > 0 {
				categories = strings.Join(cfg.Categories, ", ")
			}
			fmt.Fprintf(out, "  Mode:        %s\n", cfg.Mode)
			fmt.Fprintf(out, "  Sandbox:     %s\n", cfg.Sandbox.URL)
			fmt.Fprintf(out, "  Categories:  %s\n", categories)
			fmt.Fprintf(out, "  Baselines:   %s (auto-update %v)\n", cfg.Baseline.File, cfg.Baseline.AutoUpdate)
			fmt.Fprintf(out, "  History:     %s (max %d entries)\n", cfg.History.File, cfg.History.MaxEntries)
			fmt.Fprintf(out, "  Confidence:  report findings at %.2f and above\n", cfg.Regression.ConfidenceCutoff)
			fmt.Fprintf(out, "  Trends:      enabled=%v window=%d\n", cfg.TrendEnabled(), cfg.Trend.WindowSize)
			if cfg.Alerts.WebhookURL != "" {
				fmt.Fprintf(out, "  Webhook:     %s\n", cfg.Alerts.WebhookURL)
			}
			if cfg.Alerts.SentryDSN != "" {
				fmt.Fprintln(out, "  Sentry:      configured")
			}
			if cfg.Metrics.Enabled {
				fmt.Fprintf(out, "  Metrics:     %s\n", cfg.Metrics.Listen)
			}
			if cfg.RunLog.Enabled {
				fmt.Fprintf(out, "  Run archive: %s\n", cfg.RunLog.File)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path to validate")
	return cmd
}
