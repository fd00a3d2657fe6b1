package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sandtrap-sec/sandtrap/internal/catalog"
)

func catalogCmd() *cobra.Command {
	var categoryFilter string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the attack patterns in the built-in catalog",
		Long: `List the attack patterns sandtrap runs, grouped by category.

Examples:
  sandtrap catalog
  sandtrap catalog --category command_injection
  sandtrap catalog --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat := catalog.Builtin()

			var categories []catalog.Category
			if categoryFilter != "" {
				c := catalog.Category(categoryFilter)
				if !c.Valid() {
					return ExitCodeError(2, fmt.Errorf("unknown category %q", categoryFilter))
				}
				categories = []catalog.Category{c}
			} else {
				categories = cat.Categories()
			}

			var patterns []catalog.Pattern
			for _, c := range categories {
				patterns = append(patterns, cat.List(c)...)
			}

			if jsonOut {
				return writeCatalogJSON(cmd, patterns)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCATEGORY\tRISK\tEXPECTED\tPAYLOADS\tNAME")
			for _, p := range patterns {
				fmt.Fprintf(w, "%s\t%s\t%.1f\t%s\t%d\t%s\n",
					p.ID, p.Category, p.RiskLevel, p.Expected, len(p.Payloads()), p.Name)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d patterns\n", len(patterns))
			return nil
		},
	}

	cmd.Flags().StringVar(&categoryFilter, "category", "", "show only this category")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit the catalog as JSON")

	return cmd
}

type catalogEntry struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	RiskLevel   float64 `json:"risk_level"`
	Expected    string  `json:"expected_mitigation"`
	Payloads    int     `json:"payloads"`
	ProbeDriven bool    `json:"probe_driven"`
}

func writeCatalogJSON(cmd *cobra.Command, patterns []catalog.Pattern) error {
	entries := make([]catalogEntry, 0, len(patterns))
	for _, p := range patterns {
		entries = append(entries, catalogEntry{
			ID:          p.ID,
			Name:        p.Name,
			Category:    string(p.Category),
			RiskLevel:   p.RiskLevel,
			Expected:    string(p.Expected),
			Payloads:    len(p.Payloads()),
			ProbeDriven: p.IsProbe(),
		})
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}
