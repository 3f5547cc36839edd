// Package github fetches pull request diffs and metadata from the GitHub API
// and posts generated reviews back as comments.
package github

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/go-github/v77/github"
)

var (
	ErrInvalidRepository = errors.New("repository must be in owner/name form")
	ErrEmptyDiff         = errors.New("pull request diff is empty")
)

// NewClient creates a GitHub API client with authentication
// token: GitHub personal access token (empty for anonymous access)
func NewClient(token string) *github.Client {
	client := github.NewClient(nil)
	if token == "" {
		return client
	}
	return client.WithAuthToken(token)
}

// ParseRepository splits "owner/name".
func ParseRepository(s string) (Repository, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repository{}, fmt.Errorf("%w: %q", ErrInvalidRepository, s)
	}
	return Repository{Owner: owner, Name: name}, nil
}

// FetchPullRequestDiff returns the unified diff of a pull request.
func FetchPullRequestDiff(ctx context.Context, client *github.Client, repo Repository, number int) (string, error) {
	diff, _, err := client.PullRequests.GetRaw(ctx, repo.Owner, repo.Name, number, github.RawOptions{Type: github.Diff})
	if err != nil {
		return "", handleAPIError(err, fmt.Sprintf("failed to fetch diff for %s#%d", repo, number))
	}
	if strings.TrimSpace(diff) == "" {
		return "", fmt.Errorf("%w: %s#%d", ErrEmptyDiff, repo, number)
	}
	return diff, nil
}

// GetPullRequest fetches pull request metadata.
func GetPullRequest(ctx context.Context, client *github.Client, repo Repository, number int) (*PullRequest, error) {
	ghPR, _, err := client.PullRequests.Get(ctx, repo.Owner, repo.Name, number)
	if err != nil {
		return nil, handleAPIError(err, "failed to get pull request")
	}
	return ParsePullRequest(ghPR), nil
}

// ListOpenPullRequests lists open pull requests with pagination, oldest first.
func ListOpenPullRequests(ctx context.Context, client *github.Client, repo Repository) ([]PullRequest, error) {
	var all []PullRequest

	opts := &github.PullRequestListOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		prs, resp, err := client.PullRequests.List(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, handleAPIError(err, "failed to list pull requests")
		}

		for _, pr := range prs {
			if pr != nil {
				all = append(all, *ParsePullRequest(pr))
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Number < all[j].Number })
	return all, nil
}

// PostReviewComment posts body as a comment on the pull request.
func PostReviewComment(ctx context.Context, client *github.Client, repo Repository, number int, body string) (*Comment, error) {
	ghComment, _, err := client.Issues.CreateComment(ctx, repo.Owner, repo.Name, number, &github.IssueComment{
		Body: github.Ptr(body),
	})
	if err != nil {
		return nil, handleAPIError(err, "failed to post review comment")
	}
	c := ParseComment(ghComment)
	return &c, nil
}

// ListComments fetches all issue comments on a pull request with pagination.
func ListComments(ctx context.Context, client *github.Client, repo Repository, number int) ([]Comment, error) {
	var allComments []Comment

	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		comments, resp, err := client.Issues.ListComments(ctx, repo.Owner, repo.Name, number, opts)
		if err != nil {
			return nil, handleAPIError(err, "failed to list comments")
		}

		for _, comment := range comments {
			if comment != nil {
				allComments = append(allComments, ParseComment(comment))
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	sortCommentsByTime(allComments)
	return allComments, nil
}

// HasCommentContaining reports whether any comment body contains marker.
func HasCommentContaining(ctx context.Context, client *github.Client, repo Repository, number int, marker string) (bool, error) {
	comments, err := ListComments(ctx, client, repo, number)
	if err != nil {
		return false, err
	}
	for _, c := range comments {
		if strings.Contains(c.Body, marker) {
			return true, nil
		}
	}
	return false, nil
}

// ParsePullRequest converts a go-github PullRequest to our PullRequest struct
func ParsePullRequest(ghPR *github.PullRequest) *PullRequest {
	pr := &PullRequest{
		ID:           ghPR.GetID(),
		Number:       ghPR.GetNumber(),
		Title:        ghPR.GetTitle(),
		Description:  ghPR.GetBody(),
		State:        ghPR.GetState(),
		CreatedAt:    ghPR.GetCreatedAt().Time,
		UpdatedAt:    ghPR.GetUpdatedAt().Time,
		HTMLURL:      ghPR.GetHTMLURL(),
		Draft:        ghPR.GetDraft(),
		Additions:    ghPR.GetAdditions(),
		Deletions:    ghPR.GetDeletions(),
		ChangedFiles: ghPR.GetChangedFiles(),
	}

	if user := ghPR.GetUser(); user != nil {
		pr.Author = user.GetLogin()
	}

	if base := ghPR.GetBase(); base != nil {
		pr.BaseBranch = base.GetRef()
	}
	if head := ghPR.GetHead(); head != nil {
		pr.HeadBranch = head.GetRef()
		pr.HeadSHA = head.GetSHA()
	}

	for _, label := range ghPR.Labels {
		if label != nil {
			pr.Labels = append(pr.Labels, label.GetName())
		}
	}

	return pr
}

// ParseComment converts a go-github IssueComment to our Comment struct
func ParseComment(ghComment *github.IssueComment) Comment {
	c := Comment{
		ID:        ghComment.GetID(),
		Body:      ghComment.GetBody(),
		CreatedAt: ghComment.GetCreatedAt().Time,
		HTMLURL:   ghComment.GetHTMLURL(),
	}
	if user := ghComment.GetUser(); user != nil {
		c.Author = user.GetLogin()
	}
	return c
}

// handleAPIError wraps API errors with context and detects rate limiting
func handleAPIError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return fmt.Errorf("%s: hit primary rate limit (used %d of %d, resets at %v): %w",
			msg, rateLimitErr.Rate.Used, rateLimitErr.Rate.Limit, rateLimitErr.Rate.Reset.Time, err)
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		retryAfter := abuseErr.GetRetryAfter()
		return fmt.Errorf("%s: hit secondary rate limit (retry after %v): %w",
			msg, retryAfter, err)
	}

	return fmt.Errorf("%s: %w", msg, err)
}

// sortCommentsByTime sorts comments by creation time, then ID
func sortCommentsByTime(comments []Comment) {
	sort.Slice(comments, func(i, j int) bool {
		if comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].ID < comments[j].ID
		}
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
}
