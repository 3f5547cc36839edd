package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Yates-Labs/prselect/internal/engine"
	"github.com/Yates-Labs/prselect/internal/state"
)

var (
	statsJSON     bool
	statsVersions int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what the selector has learned",
	Long: `Load the saved selector state and summarise it: training samples,
average reward and how often each strategy was used.

With the sqlite state backend the most recent saved versions are listed too.

Examples:
  prselect stats
  prselect stats --json
  prselect stats --versions 5`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print statistics as JSON")
	statsCmd.Flags().IntVar(&statsVersions, "versions", 10, "Number of saved versions to list (sqlite backend)")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	catalog, err := loadCatalog()
	if err != nil {
		return err
	}
	selector, err := engine.New(catalog.Names(), cfg.Engine, engine.WithLogger(logger.Named("engine")))
	if err != nil {
		return err
	}

	store, err := state.Open(cfg.State.Backend, cfg.State.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	doc, err := store.Load(ctx)
	switch {
	case errors.Is(err, state.ErrNotFound):
		fmt.Println("No saved state yet")
		return nil
	case err != nil:
		return err
	}
	if _, err := selector.Restore(doc.Snapshot(catalog.Names()), engine.Overwrite); err != nil {
		return err
	}
	stats := selector.Stats()

	if statsJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(stats)
	}

	columns := []column{
		{"STRATEGY", 22, nameColumn},
		{"USES", 8, numberColumn},
		{"SHARE", 9, numberColumn},
		{"AVG REWARD", 12, numberColumn},
	}
	rows := make([][]string, 0, len(stats.Distribution))
	for _, name := range catalog.Names() {
		n := stats.Distribution[name]
		share, avg := "-", "-"
		if stats.TrainingSamples > 0 {
			share = fmt.Sprintf("%.0f%%", 100*float64(n)/float64(stats.TrainingSamples))
		}
		if n > 0 {
			avg = fmt.Sprintf("%.2f", stats.AverageByStrategy[name])
		}
		rows = append(rows, []string{name, fmt.Sprintf("%d", n), share, avg})
	}
	renderTable(columns, rows)

	fmt.Println()
	trained := "not trained"
	if stats.Trained {
		trained = "trained"
	}
	fmt.Println(summaryStyle.Render(fmt.Sprintf("Total: %d samples, average reward %.2f, %d/%d strategies used, %s %s model",
		stats.TrainingSamples, stats.AverageReward, stats.UniqueStrategiesUsed, catalog.Len(), trained, stats.ModelKind)))

	if len(doc.Strategies) > 0 && !slices.Equal(doc.Strategies, catalog.Names()) {
		fmt.Println(errorStyle.Render("Saved state was recorded with a different strategy catalog"))
	}

	if sqlite, ok := store.(*state.SQLiteStore); ok {
		versions, err := sqlite.Versions(ctx, statsVersions)
		if err != nil {
			return err
		}
		fmt.Println()
		vcols := []column{
			{"VERSION", 38, nameColumn},
			{"SAMPLES", 9, numberColumn},
			{"TRAINED", 9, textColumn},
			{"SAVED", 22, textColumn},
		}
		vrows := make([][]string, 0, len(versions))
		for _, v := range versions {
			vrows = append(vrows, []string{
				v.ID,
				fmt.Sprintf("%d", v.SampleCount),
				fmt.Sprintf("%t", v.Trained),
				v.CreatedAt.Local().Format("Jan 02, 15:04:05"),
			})
		}
		renderTable(vcols, vrows)
	}
	return nil
}
