// Package git reads reviewable diffs from local or cloned repositories.
package git

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	fdiff "github.com/go-git/go-git/v6/plumbing/format/diff"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/go-git/go-git/v6/storage/memory"
)

var (
	ErrEmptyChange = errors.New("change has no diff")
	errStopLog     = errors.New("max commits reached")
)

// OpenRepository opens a Git repository from a local path
func OpenRepository(path string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open repository %s: %w", path, err)
	}
	return repo, nil
}

// CloneRepository clones a Git repository to memory
func CloneRepository(url string) (*git.Repository, error) {
	repo, err := git.Clone(memory.NewStorage(), nil, &git.CloneOptions{
		URL: url,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to clone %s: %w", url, err)
	}
	return repo, nil
}

// ResolveCommit resolves a revision such as "HEAD~2", a branch or a hash.
func ResolveCommit(repo *git.Repository, rev string) (*object.Commit, error) {
	if rev == "" {
		rev = "HEAD"
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", rev, err)
	}
	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("failed to load commit %s: %w", hash, err)
	}
	return commit, nil
}

// CommitDiff returns the change introduced by rev relative to its first
// parent. A root commit is diffed against the empty tree.
func CommitDiff(repo *git.Repository, rev string) (*Change, error) {
	commit, err := ResolveCommit(repo, rev)
	if err != nil {
		return nil, err
	}

	var (
		patch *object.Patch
		from  string
	)
	parent, err := commit.Parents().Next()
	if err == nil {
		from = parent.Hash.String()
		patch, err = parent.Patch(commit)
	} else {
		patch, err = rootPatch(commit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patch: %w", err)
	}

	return newChange(from, commit, patch)
}

// DiffRevisions returns the change from base to head, the way a pull
// request from head into base would show it.
func DiffRevisions(repo *git.Repository, base, head string) (*Change, error) {
	baseCommit, err := ResolveCommit(repo, base)
	if err != nil {
		return nil, err
	}
	headCommit, err := ResolveCommit(repo, head)
	if err != nil {
		return nil, err
	}

	patch, err := baseCommit.Patch(headCommit)
	if err != nil {
		return nil, fmt.Errorf("failed to get patch: %w", err)
	}
	return newChange(baseCommit.Hash.String(), headCommit, patch)
}

// ListCommits walks history from rev, newest first.
// maxCommits: 0 for unlimited, >0 to limit
func ListCommits(repo *git.Repository, rev string, maxCommits int) ([]CommitInfo, error) {
	start, err := ResolveCommit(repo, rev)
	if err != nil {
		return nil, err
	}

	commitIter, err := repo.Log(&git.LogOptions{From: start.Hash})
	if err != nil {
		return nil, fmt.Errorf("failed to get log: %w", err)
	}

	var commits []CommitInfo
	err = commitIter.ForEach(func(c *object.Commit) error {
		if maxCommits > 0 && len(commits) >= maxCommits {
			return errStopLog
		}
		commits = append(commits, CommitInfo{
			Hash:      c.Hash.String(),
			ShortHash: c.Hash.String()[:8],
			Subject:   subjectOf(c.Message),
			Author:    ParseAuthor(c.Author),
			When:      c.Committer.When,
			IsMerge:   c.NumParents() > 1,
		})
		return nil
	})
	if err != nil && !errors.Is(err, errStopLog) {
		return nil, fmt.Errorf("failed to iterate commits: %w", err)
	}
	return commits, nil
}

// ParseAuthor converts go-git Signature to Author
func ParseAuthor(sig object.Signature) Author {
	return Author{
		Name:  sig.Name,
		Email: sig.Email,
		When:  sig.When,
	}
}

func rootPatch(commit *object.Commit) (*object.Patch, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}
	changes, err := object.DiffTree(nil, tree)
	if err != nil {
		return nil, fmt.Errorf("failed to diff root tree: %w", err)
	}
	return changes.Patch()
}

func newChange(from string, to *object.Commit, patch *object.Patch) (*Change, error) {
	text := patch.String()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyChange, to.Hash)
	}
	return &Change{
		From:    from,
		To:      to.Hash.String(),
		Subject: subjectOf(to.Message),
		Author:  ParseAuthor(to.Author),
		Diff:    text,
		Files:   summarizeFilePatches(patch),
	}, nil
}

// summarizeFilePatches extracts per-file status and line counts
func summarizeFilePatches(patch *object.Patch) []FileChange {
	var files []FileChange

	for _, filePatch := range patch.FilePatches() {
		from, to := filePatch.Files()

		fc := FileChange{IsBinary: filePatch.IsBinary()}
		switch {
		case from == nil && to != nil:
			fc.FilePath = to.Path()
			fc.Status = "added"
		case from != nil && to == nil:
			fc.FilePath = from.Path()
			fc.Status = "deleted"
		case from != nil && to != nil:
			fc.FilePath = to.Path()
			fc.Status = "modified"
			if from.Path() != to.Path() {
				fc.OldPath = from.Path()
				fc.Status = "renamed"
			}
		}
		fc.FileType = getFileType(fc.FilePath)

		for _, chunk := range filePatch.Chunks() {
			switch chunk.Type() {
			case fdiff.Add:
				fc.Additions += strings.Count(chunk.Content(), "\n")
			case fdiff.Delete:
				fc.Deletions += strings.Count(chunk.Content(), "\n")
			}
		}

		files = append(files, fc)
	}
	return files
}

// getFileType extracts file extension for context
func getFileType(path string) string {
	parts := strings.Split(path, ".")
	if len(parts) > 1 {
		return parts[len(parts)-1]
	}
	return ""
}

func subjectOf(message string) string {
	subject, _, _ := strings.Cut(message, "\n")
	return strings.TrimSpace(subject)
}

// ReadTree returns the text files in rev's tree. Binary files and files
// larger than maxBytes are skipped; maxBytes <= 0 means no limit.
func ReadTree(repo *git.Repository, rev string, maxBytes int64) ([]TreeFile, error) {
	commit, err := ResolveCommit(repo, rev)
	if err != nil {
		return nil, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}

	var files []TreeFile
	err = tree.Files().ForEach(func(f *object.File) error {
		if maxBytes > 0 && f.Size > maxBytes {
			return nil
		}
		if binary, err := f.IsBinary(); err != nil || binary {
			return nil
		}
		content, err := f.Contents()
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
		files = append(files, TreeFile{Path: f.Name, Content: content})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
