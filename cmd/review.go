package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	gogit "github.com/go-git/go-git/v6"
	gogithub "github.com/google/go-github/v77/github"
	"github.com/spf13/cobra"

	"github.com/Yates-Labs/prselect/internal/github"
	"github.com/Yates-Labs/prselect/internal/ingest/git"
	"github.com/Yates-Labs/prselect/internal/orchestrator"
)

var (
	reviewRepo      string
	reviewPRs       []int
	reviewPRURL     string
	reviewOpen      bool
	reviewLocal     string
	reviewRev       string
	reviewBase      string
	reviewCommits   int
	reviewDiffFiles []string
	reviewPost      bool
	reviewMockLLM   bool
	reviewLimit     int
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review changes with an adaptively selected strategy",
	Long: `Review one or more changes. For each change a strategy is selected,
a review is generated and scored, and the score updates the selector.

Changes can come from GitHub pull requests, a local Git repository or
unified diff files.

Examples:
  prselect review --repo octo/widgets --pr 7 --pr 9
  prselect review --pr-url https://github.com/octo/widgets/pull/7 --post
  prselect review --repo octo/widgets --open --limit 10
  prselect review --local . --rev HEAD~1
  prselect review --local . --commits 20
  prselect review --diff-file change.diff --mock-llm`,
	RunE: runReview,
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	addInputFlags(reviewCmd)
	f := reviewCmd.Flags()
	f.BoolVar(&reviewPost, "post", false, "Post each review as a pull request comment")
	f.IntVar(&reviewLimit, "limit", 0, "Maximum number of inputs (defaults to config)")
}

// addInputFlags registers the flags read by planInputs.
func addInputFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&reviewRepo, "repo", "", "GitHub repository as owner/name (defaults to config)")
	f.IntSliceVar(&reviewPRs, "pr", nil, "Pull request number, repeatable")
	f.StringVar(&reviewPRURL, "pr-url", "", "Pull request URL")
	f.BoolVar(&reviewOpen, "open", false, "Use every open, non-draft pull request")
	f.StringVar(&reviewLocal, "local", "", "Path or URL of a Git repository to read commits from")
	f.StringVar(&reviewRev, "rev", "HEAD", "Revision to use with --local")
	f.StringVar(&reviewBase, "base", "", "Diff --local revisions against this base instead of their parent")
	f.IntVar(&reviewCommits, "commits", 0, "Use this many recent commits with --local")
	f.StringSliceVar(&reviewDiffFiles, "diff-file", nil, "Unified diff file, repeatable")
	f.BoolVar(&reviewMockLLM, "mock-llm", false, "Use a deterministic offline LLM")
}

// inputPlan is the resolved source and inputs for a command invocation.
type inputPlan struct {
	source   orchestrator.DiffSource
	inputs   []orchestrator.Input
	client   *gogithub.Client
	repo     github.Repository
	isGitHub bool
}

func runReview(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	plan, err := planInputs(ctx)
	if err != nil {
		return err
	}

	limit := reviewLimit
	if limit == 0 {
		limit = cfg.Batch.Limit
	}
	if limit > 0 && len(plan.inputs) > limit {
		plan.inputs = plan.inputs[:limit]
	}
	if len(plan.inputs) == 0 {
		fmt.Println("Nothing to review")
		return nil
	}

	var opts runtimeOptions
	opts.mockLLM = reviewMockLLM
	if reviewPost || cfg.GitHub.Post {
		if !plan.isGitHub {
			return fmt.Errorf("--post requires pull request inputs")
		}
		opts.publisher = orchestrator.NewGitHubPublisher(plan.client, plan.repo)
	}

	rt, err := buildRuntime(ctx, plan.source, opts)
	if err != nil {
		return err
	}
	defer rt.close()

	report, err := rt.pipeline.RunBatch(ctx, plan.inputs)
	printBatch(report)
	if rt.writer != nil {
		fmt.Println(summaryStyle.Render(fmt.Sprintf("Results written to %s (run %s)", cfg.Output.Dir, rt.writer.RunID())))
	}
	if err != nil {
		return err
	}
	if len(report.Outcomes) == 0 && len(report.Failures) > 0 {
		return fmt.Errorf("all %d inputs failed", len(report.Failures))
	}
	return nil
}

// planInputs resolves exactly one input mode from the flags.
func planInputs(ctx context.Context) (*inputPlan, error) {
	modes := 0
	for _, set := range []bool{len(reviewPRs) > 0, reviewPRURL != "", reviewOpen, reviewLocal != "", len(reviewDiffFiles) > 0} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return nil, errors.New("choose exactly one of --pr, --pr-url, --open, --local or --diff-file")
	}

	switch {
	case len(reviewDiffFiles) > 0:
		var source orchestrator.FileSource
		plan := &inputPlan{source: source}
		for _, path := range reviewDiffFiles {
			plan.inputs = append(plan.inputs, source.Input(path))
		}
		return plan, nil

	case reviewLocal != "":
		return planLocal()

	case reviewPRURL != "":
		repo, number, err := orchestrator.ParsePullRequestURL(reviewPRURL)
		if err != nil {
			return nil, err
		}
		return planGitHub(ctx, repo, []int{number})

	default:
		repo, err := resolveRepository()
		if err != nil {
			return nil, err
		}
		return planGitHub(ctx, repo, reviewPRs)
	}
}

func resolveRepository() (github.Repository, error) {
	name := reviewRepo
	if name == "" && cfg.GitHub.Owner != "" && cfg.GitHub.Repo != "" {
		name = cfg.GitHub.Owner + "/" + cfg.GitHub.Repo
	}
	if name == "" {
		return github.Repository{}, errors.New("no repository: pass --repo or set GITHUB_OWNER and GITHUB_REPO")
	}
	return github.ParseRepository(name)
}

func planGitHub(ctx context.Context, repo github.Repository, numbers []int) (*inputPlan, error) {
	client := github.NewClient(cfg.GitHub.Token)
	source := orchestrator.NewGitHubSource(client, repo)
	plan := &inputPlan{source: source, client: client, repo: repo, isGitHub: true}

	if reviewOpen {
		inputs, err := source.ListInputs(ctx)
		if err != nil {
			return nil, err
		}
		plan.inputs = inputs
		return plan, nil
	}
	for _, n := range numbers {
		plan.inputs = append(plan.inputs, source.Input(n))
	}
	return plan, nil
}

func planLocal() (*inputPlan, error) {
	repo, err := openOrClone(reviewLocal)
	if err != nil {
		return nil, err
	}
	source := orchestrator.NewLocalSource(repo)
	source.Base = reviewBase
	plan := &inputPlan{source: source}

	if reviewCommits > 0 {
		inputs, err := source.ListInputs(reviewRev, reviewCommits)
		if err != nil {
			return nil, err
		}
		plan.inputs = inputs
		return plan, nil
	}
	plan.inputs = []orchestrator.Input{source.Input(reviewRev)}
	return plan, nil
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "https://") ||
		strings.HasPrefix(location, "http://") ||
		strings.HasPrefix(location, "git@")
}

func openOrClone(location string) (*gogit.Repository, error) {
	if isRemote(location) {
		return git.CloneRepository(location)
	}
	return git.OpenRepository(location)
}

func printBatch(report orchestrator.BatchReport) {
	fmt.Println()
	columns := []column{
		{"INPUT", 28, nameColumn},
		{"STRATEGY", 20, textColumn},
		{"MODE", 10, textColumn},
		{"REWARD", 10, numberColumn},
		{"JUDGED", 10, numberColumn},
		{"POSTED", 8, textColumn},
	}
	rows := make([][]string, 0, len(report.Outcomes))
	for _, out := range report.Outcomes {
		judged := "-"
		if out.Score.JudgedScore != nil {
			judged = fmt.Sprintf("%.2f", *out.Score.JudgedScore)
		}
		posted := ""
		if out.Published {
			posted = "✓"
		}
		rows = append(rows, []string{
			truncateCell(out.Input.ID, 26),
			out.Selection.Strategy,
			string(out.Selection.Mode),
			fmt.Sprintf("%.2f", out.Score.Reward),
			judged,
			posted,
		})
	}
	renderTable(columns, rows)

	for _, f := range report.Failures {
		fmt.Println(errorStyle.Render("✗ "+f.Input.ID+":"), f.Err)
	}

	fmt.Println()
	fmt.Println(summaryStyle.Render(fmt.Sprintf("Total: %d reviewed, %d failed, %d state saves",
		len(report.Outcomes), len(report.Failures), report.Saves)))
}
