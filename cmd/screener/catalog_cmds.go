package main

import (
	"fmt"
	"math"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"quote-screener/internal/catalog"
	"quote-screener/internal/domain"
)

func presetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List screening presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			presets, err := loadPresets(cfg)
			if err != nil {
				return err
			}
			for _, p := range presets.List() {
				set, sortKey := p.Apply()
				fmt.Printf("%s - %s\n", p.Name, p.Description)
				fmt.Printf("  sort: %s", sortKey.Field)
				if sortKey.Descending {
					fmt.Print(" desc")
				}
				fmt.Println()
				for _, c := range set.Criteria() {
					fmt.Printf("  %s\n", describeCriterion(c))
				}
			}
			return nil
		},
	}
}

func describeCriterion(c domain.Criterion) string {
	openMin := c.Min <= -math.MaxFloat64
	openMax := c.Max >= math.MaxFloat64

	var desc string
	switch {
	case openMin && openMax:
		desc = fmt.Sprintf("%s any", c.Field)
	case openMax:
		desc = fmt.Sprintf("%s >= %g", c.Field, c.Min)
	case openMin:
		desc = fmt.Sprintf("%s <= %g", c.Field, c.Max)
	default:
		desc = fmt.Sprintf("%s in [%g, %g]", c.Field, c.Min, c.Max)
	}
	if !c.Enabled {
		desc += " (off)"
	}
	return desc
}

func searchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search the instrument catalog by symbol, name or sector",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := loadCatalogFile(cfg)
			if err != nil {
				return err
			}
			index, err := catalog.NewIndex(c)
			if err != nil {
				return err
			}
			defer index.Close()

			found, err := index.Search(strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tNAME\tSECTOR\tEXCHANGE")
			for _, inst := range found {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", inst.Symbol, inst.Name, inst.Sector, inst.Exchange)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	return cmd
}
