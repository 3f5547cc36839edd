package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var compareTrain bool

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Run every strategy on the same change and rank them",
	Long: `Generate and score a review with every strategy in the catalog for each
input, then list the strategies by reward. With --train each result is also
fed to the selector and the state is saved.

Examples:
  prselect compare --repo octo/widgets --pr 7
  prselect compare --diff-file change.diff --mock-llm --train`,
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)
	addInputFlags(compareCmd)
	compareCmd.Flags().BoolVar(&compareTrain, "train", false, "Feed every result to the selector")
}

func runCompare(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	plan, err := planInputs(ctx)
	if err != nil {
		return err
	}
	if len(plan.inputs) == 0 {
		fmt.Println("Nothing to compare")
		return nil
	}

	rt, err := buildRuntime(ctx, plan.source, runtimeOptions{mockLLM: reviewMockLLM, noWrite: true})
	if err != nil {
		return err
	}
	defer rt.close()

	columns := []column{
		{"RANK", 6, numberColumn},
		{"STRATEGY", 20, nameColumn},
		{"REWARD", 10, numberColumn},
		{"HEURISTIC", 11, numberColumn},
		{"JUDGED", 10, numberColumn},
		{"NOTE", 40, textColumn},
	}

	failed := 0
	for _, in := range plan.inputs {
		results, err := rt.pipeline.CompareStrategies(ctx, in, compareTrain)
		if err != nil {
			logger.Error("comparison failed", zap.String("input", in.ID), zap.Error(err))
			fmt.Println(errorStyle.Render("✗ "+in.ID+":"), err)
			failed++
			continue
		}

		fmt.Println()
		fmt.Println(titleStyle.Render(in.ID))
		rows := make([][]string, 0, len(results))
		// Results come ascending by reward; rank the best first.
		for i := len(results) - 1; i >= 0; i-- {
			r := results[i]
			if r.Err != nil {
				continue
			}
			judged, note := "-", ""
			if r.Score.JudgedScore != nil {
				judged = fmt.Sprintf("%.2f", *r.Score.JudgedScore)
			}
			if r.Score.Judgment != nil {
				note = r.Score.Judgment.Explanation
			}
			rows = append(rows, []string{
				fmt.Sprintf("%d", len(rows)+1),
				r.Strategy,
				fmt.Sprintf("%.2f", r.Score.Reward),
				fmt.Sprintf("%.2f", r.Score.HeuristicScore),
				judged,
				truncateCell(note, 38),
			})
		}
		renderTable(columns, rows)
		for _, r := range results {
			if r.Err != nil {
				fmt.Println(errorStyle.Render("✗ "+r.Strategy+":"), r.Err)
			}
		}
	}

	if compareTrain {
		if err := rt.pipeline.SaveState(ctx); err != nil {
			return err
		}
		fmt.Println()
		fmt.Println(successStyle.Render(fmt.Sprintf("✓ Selector trained on %d samples", rt.pipeline.Selector().SampleCount())))
	}
	if failed == len(plan.inputs) {
		return fmt.Errorf("all %d comparisons failed", failed)
	}
	return nil
}
