package github

import (
	"context"
	"iter"
)

// Issue is the slice of a remote issue the sync engine cares about.
type Issue struct {
	Number int
	URL    string
	Title  string
	State  string
	Labels []string
}

// IssueRequest describes an issue to create.
type IssueRequest struct {
	Title  string
	Body   string
	Labels []string
}

// Repository is a created remote repository.
type Repository struct {
	ID       int64
	Name     string
	FullName string
	URL      string
	Private  bool
}

// RepositoryRequest describes a repository to create.
type RepositoryRequest struct {
	Name        string
	Description string
	Private     bool
}

// Label is a label definition for a repository.
type Label struct {
	Name        string
	Color       string
	Description string
}

// ListOptions filters ListIssues. State defaults to "all".
type ListOptions struct {
	Labels []string
	State  string
}

// IssueTracker is the remote issue-tracking service as seen by the sync engine.
// Implementations return *RemoteError for every remote-side failure.
type IssueTracker interface {
	CreateIssue(ctx context.Context, req IssueRequest) (*Issue, error)
	GetIssue(ctx context.Context, number int) (*Issue, error)
	// ListIssues lazily pages through issues. Ranging over the result again
	// restarts from the first page.
	ListIssues(ctx context.Context, opts ListOptions) iter.Seq2[*Issue, error]
	ReplaceLabels(ctx context.Context, number int, labels []string) ([]string, error)
	CreateRepository(ctx context.Context, req RepositoryRequest) (*Repository, error)
	// EnsureLabel creates the label on repo ("owner/name") unless it already exists.
	EnsureLabel(ctx context.Context, repo string, label Label) error
}
