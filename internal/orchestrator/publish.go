package orchestrator

import (
	"context"
	"fmt"

	gogithub "github.com/google/go-github/v77/github"

	"github.com/Yates-Labs/prselect/internal/github"
)

// CommentMarker tags comments posted by prselect.
const CommentMarker = "<!-- prselect -->"

// CommentBody formats a review for posting.
func CommentBody(strategy string, score float64, review string) string {
	return fmt.Sprintf("%s\n**AI-Powered Review**\n\n*(Strategy: `%s` | Score: **%.2f/10**)*\n\n---\n\n%s",
		CommentMarker, strategy, score, review)
}

// GitHubPublisher posts reviews as pull request comments.
type GitHubPublisher struct {
	client *gogithub.Client
	repo   github.Repository

	// SkipReviewed leaves pull requests that already carry a prselect
	// comment untouched.
	SkipReviewed bool
}

// NewGitHubPublisher creates a publisher for repo.
func NewGitHubPublisher(client *gogithub.Client, repo github.Repository) *GitHubPublisher {
	return &GitHubPublisher{client: client, repo: repo, SkipReviewed: true}
}

// Publish posts body on the pull request and reports whether it did.
func (p *GitHubPublisher) Publish(ctx context.Context, in Input, body string) (bool, error) {
	if in.Number <= 0 {
		return false, fmt.Errorf("%w: %s is not a pull request", ErrInvalidInput, in)
	}
	if p.SkipReviewed {
		seen, err := github.HasCommentContaining(ctx, p.client, p.repo, in.Number, CommentMarker)
		if err != nil {
			return false, err
		}
		if seen {
			return false, nil
		}
	}
	if _, err := github.PostReviewComment(ctx, p.client, p.repo, in.Number, body); err != nil {
		return false, err
	}
	return true, nil
}
