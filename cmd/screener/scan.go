package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"quote-screener/internal/catalog"
	"quote-screener/internal/domain"
	"quote-screener/internal/ingestion"
	"quote-screener/internal/projection"
	"quote-screener/internal/screening"
	"quote-screener/internal/storage/memory"
)

func scanCmd() *cobra.Command {
	var (
		presetName string
		ticks      int
		limit      int
		seed       int64
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan over the catalog with mock ticks and print the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := loadCatalogFile(cfg)
			if err != nil {
				return err
			}
			presets, err := loadPresets(cfg)
			if err != nil {
				return err
			}
			preset, err := presets.Get(presetName)
			if err != nil {
				return err
			}
			return runScan(cmd.Context(), os.Stdout, c, preset, ticks, limit, seed)
		},
	}
	cmd.Flags().StringVarP(&presetName, "preset", "p", "All Stocks", "preset name")
	cmd.Flags().IntVar(&ticks, "ticks", 3, "mock feed rounds applied before scanning")
	cmd.Flags().IntVar(&limit, "limit", 20, "rows to print")
	cmd.Flags().Int64Var(&seed, "seed", 1, "mock feed seed")
	return cmd
}

func runScan(ctx context.Context, out io.Writer, c *catalog.Catalog, preset domain.Preset, ticks, limit int, seed int64) error {
	store := memory.NewQuoteStore(memory.QuoteStoreOptions{})
	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Adapter: ingestion.NewAdapter(c, store),
		Store:   store,
		Logger:  newLogger("ingest"),
	})
	source := ingestion.NewMockPollSource(ingestion.MockPollSourceOptions{
		Instruments: c.Instruments(),
		Seed:        seed,
	})
	for i := 0; i < ticks; i++ {
		events, err := source.Fetch(ctx)
		if err != nil {
			return err
		}
		for _, ev := range events {
			runner.HandleEvent(ev)
		}
	}

	set, sortKey := preset.Apply()
	session := screening.NewSession(screening.SessionOptions{ID: "scan", Universe: c, Quotes: store})
	if err := session.Start(ctx, set, sortKey); err != nil {
		return err
	}
	defer session.Close()

	page, err := projection.NewProjector(store).Page(session, 0, limit)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s: %d of %d instruments match (sorted by %s", preset.Name, page.Total, c.Len(), page.Sort.Field)
	if page.Sort.Descending {
		fmt.Fprint(out, " desc")
	}
	fmt.Fprintln(out, ")")

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "#\tSYMBOL\tPRICE\tCHG%\tMCAP(Cr)\tP/E\t")
	for _, it := range page.Items {
		fmt.Fprintf(w, "%d\t%s\t%.2f\t%.2f\t%s\t%s\t\n",
			it.Rank+1, it.Instrument.Symbol, it.Quote.Price, it.Quote.ChangePercent,
			optional(it.Quote.MarketCap), optional(it.Quote.PERatio))
	}
	return w.Flush()
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
