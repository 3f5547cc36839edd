package git

import "time"

// Author represents Git author/committer information
type Author struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	When  time.Time `json:"when"`
}

// FileChange summarises one file in a change set
type FileChange struct {
	FilePath  string `json:"file_path"`
	OldPath   string `json:"old_path,omitempty"` // For renames
	Status    string `json:"status"`             // "added", "modified", "deleted", "renamed"
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	IsBinary  bool   `json:"is_binary"`
	FileType  string `json:"file_type"`
}

// Change is a reviewable unified diff between two points in history.
type Change struct {
	// From is empty when the change is a root commit.
	From    string       `json:"from,omitempty"`
	To      string       `json:"to"`
	Subject string       `json:"subject"`
	Author  Author       `json:"author"`
	Diff    string       `json:"diff"`
	Files   []FileChange `json:"files"`
}

// CommitInfo is a lightweight log entry.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	ShortHash string    `json:"short_hash"`
	Subject   string    `json:"subject"`
	Author    Author    `json:"author"`
	When      time.Time `json:"when"`
	IsMerge   bool      `json:"is_merge"`
}

// TreeFile is a text file read from a commit's tree.
type TreeFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}
