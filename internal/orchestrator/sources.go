package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	gogit "github.com/go-git/go-git/v6"
	gogithub "github.com/google/go-github/v77/github"

	"github.com/Yates-Labs/prselect/internal/github"
	"github.com/Yates-Labs/prselect/internal/ingest/git"
)

var ErrInvalidInput = errors.New("invalid input")

// Input identifies one change to review. Exactly one of Number, Rev or
// Path is meaningful for a given DiffSource.
type Input struct {
	// ID labels the input in logs and result files.
	ID string `json:"id"`

	// Number is a pull request number.
	Number int `json:"number,omitempty"`

	// Rev is a local revision.
	Rev string `json:"rev,omitempty"`

	// Path is a diff file on disk.
	Path string `json:"path,omitempty"`
}

func (in Input) String() string { return in.ID }

// GitHubSource fetches pull request diffs.
type GitHubSource struct {
	client *gogithub.Client
	repo   github.Repository
}

// NewGitHubSource creates a source for repo.
func NewGitHubSource(client *gogithub.Client, repo github.Repository) *GitHubSource {
	return &GitHubSource{client: client, repo: repo}
}

// Input builds the input for pull request number.
func (s *GitHubSource) Input(number int) Input {
	return Input{ID: fmt.Sprintf("%s#%d", s.repo, number), Number: number}
}

func (s *GitHubSource) FetchDiff(ctx context.Context, in Input) (string, error) {
	if in.Number <= 0 {
		return "", fmt.Errorf("%w: %s has no pull request number", ErrInvalidInput, in)
	}
	return github.FetchPullRequestDiff(ctx, s.client, s.repo, in.Number)
}

// ListInputs returns every open pull request, oldest first.
func (s *GitHubSource) ListInputs(ctx context.Context) ([]Input, error) {
	prs, err := github.ListOpenPullRequests(ctx, s.client, s.repo)
	if err != nil {
		return nil, err
	}
	inputs := make([]Input, 0, len(prs))
	for _, pr := range prs {
		if pr.Draft {
			continue
		}
		inputs = append(inputs, s.Input(pr.Number))
	}
	return inputs, nil
}

// LocalSource reads diffs from a local or cloned repository. With a Base
// revision every input is diffed against it, otherwise against its parent.
type LocalSource struct {
	repo *gogit.Repository
	Base string
}

// NewLocalSource creates a source over repo.
func NewLocalSource(repo *gogit.Repository) *LocalSource {
	return &LocalSource{repo: repo}
}

// Input builds the input for a revision.
func (s *LocalSource) Input(rev string) Input {
	if rev == "" {
		rev = "HEAD"
	}
	return Input{ID: "local:" + rev, Rev: rev}
}

func (s *LocalSource) FetchDiff(_ context.Context, in Input) (string, error) {
	var (
		change *git.Change
		err    error
	)
	if s.Base != "" {
		change, err = git.DiffRevisions(s.repo, s.Base, in.Rev)
	} else {
		change, err = git.CommitDiff(s.repo, in.Rev)
	}
	if err != nil {
		return "", err
	}
	return change.Diff, nil
}

// ListInputs returns up to limit non-merge commits reachable from rev,
// oldest first.
func (s *LocalSource) ListInputs(rev string, limit int) ([]Input, error) {
	commits, err := git.ListCommits(s.repo, rev, 0)
	if err != nil {
		return nil, err
	}
	var inputs []Input
	for i := len(commits) - 1; i >= 0; i-- {
		c := commits[i]
		if c.IsMerge {
			continue
		}
		inputs = append(inputs, Input{ID: "local:" + c.ShortHash, Rev: c.Hash})
	}
	if limit > 0 && len(inputs) > limit {
		inputs = inputs[len(inputs)-limit:]
	}
	return inputs, nil
}

// FileSource reads unified diffs from files.
type FileSource struct{}

// Input builds the input for a diff file.
func (FileSource) Input(path string) Input {
	return Input{ID: "file:" + path, Path: path}
}

func (FileSource) FetchDiff(_ context.Context, in Input) (string, error) {
	data, err := os.ReadFile(in.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read diff %s: %w", in.Path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("%w: %s is empty", github.ErrEmptyDiff, in.Path)
	}
	return string(data), nil
}

// ParsePullRequestURL extracts the repository and number from a pull
// request URL such as https://github.com/owner/repo/pull/7.
func ParsePullRequestURL(url string) (github.Repository, int, error) {
	path := strings.TrimPrefix(url, "https://")
	path = strings.TrimPrefix(path, "http://")
	path = strings.TrimPrefix(path, "www.")
	path = strings.TrimPrefix(path, "github.com/")
	path = strings.TrimSuffix(path, "/")

	parts := strings.Split(path, "/")
	if len(parts) < 4 || (parts[2] != "pull" && parts[2] != "pulls") {
		return github.Repository{}, 0, fmt.Errorf("%w: not a pull request URL: %q", ErrInvalidInput, url)
	}
	number, err := strconv.Atoi(parts[3])
	if err != nil || number <= 0 {
		return github.Repository{}, 0, fmt.Errorf("%w: bad pull request number in %q", ErrInvalidInput, url)
	}
	repo, err := github.ParseRepository(parts[0] + "/" + strings.TrimSuffix(parts[1], ".git"))
	if err != nil {
		return github.Repository{}, 0, err
	}
	return repo, number, nil
}
