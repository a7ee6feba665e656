package testing

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/github"
)

// ReplaceLabelsCall records one ReplaceLabels invocation.
type ReplaceLabelsCall struct {
	Number int
	Labels []string
}

// EnsureLabelCall records one EnsureLabel invocation.
type EnsureLabelCall struct {
	Repo  string
	Label github.Label
}

// FakeTracker is an in-memory github.IssueTracker. The *Func hooks run
// before the default behaviour; a non-nil error from a hook fails the call.
type FakeTracker struct {
	mu sync.Mutex

	issues     map[int]*github.Issue
	nextIssue  int
	nextRepoID int64
	repoLabels map[string][]github.Label

	CreateIssueFunc      func(req github.IssueRequest) error
	GetIssueFunc         func(number int) error
	ListIssuesFunc       func() error
	ReplaceLabelsFunc    func(number int, labels []string) error
	CreateRepositoryFunc func(req github.RepositoryRequest) error
	EnsureLabelFunc      func(repo string, label github.Label) error

	CreateIssueCalls      []github.IssueRequest
	GetIssueCalls         []int
	ListIssuesCalls       int
	ReplaceLabelsCalls    []ReplaceLabelsCall
	CreateRepositoryCalls []github.RepositoryRequest
	EnsureLabelCalls      []EnsureLabelCall
}

// NewFakeTracker returns an empty tracker.
func NewFakeTracker() *FakeTracker {
	return &FakeTracker{
		issues:     map[int]*github.Issue{},
		repoLabels: map[string][]github.Label{},
	}
}

func (f *FakeTracker) CreateIssue(ctx context.Context, req github.IssueRequest) (*github.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.CreateIssueCalls = append(f.CreateIssueCalls, req)
	if f.CreateIssueFunc != nil {
		if err := f.CreateIssueFunc(req); err != nil {
			return nil, err
		}
	}

	f.nextIssue++
	issue := &github.Issue{
		Number: f.nextIssue,
		URL:    fmt.Sprintf("https://github.com/owner/repo/issues/%d", f.nextIssue),
		Title:  req.Title,
		State:  "open",
		Labels: append([]string(nil), req.Labels...),
	}
	f.issues[issue.Number] = issue
	return copyIssue(issue), nil
}

func (f *FakeTracker) GetIssue(ctx context.Context, number int) (*github.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.GetIssueCalls = append(f.GetIssueCalls, number)
	if f.GetIssueFunc != nil {
		if err := f.GetIssueFunc(number); err != nil {
			return nil, err
		}
	}
	issue, ok := f.issues[number]
	if !ok {
		return nil, &github.RemoteError{Op: "get issue", StatusCode: 404, Cause: fmt.Errorf("issue #%d not found", number)}
	}
	return copyIssue(issue), nil
}

func (f *FakeTracker) ListIssues(ctx context.Context, opts github.ListOptions) iter.Seq2[*github.Issue, error] {
	return func(yield func(*github.Issue, error) bool) {
		f.mu.Lock()
		f.ListIssuesCalls++
		hook := f.ListIssuesFunc
		numbers := make([]int, 0, len(f.issues))
		for n := range f.issues {
			numbers = append(numbers, n)
		}
		sort.Ints(numbers)
		snapshot := make([]*github.Issue, 0, len(numbers))
		for _, n := range numbers {
			if matchesLabels(f.issues[n], opts.Labels) {
				snapshot = append(snapshot, copyIssue(f.issues[n]))
			}
		}
		f.mu.Unlock()

		if hook != nil {
			if err := hook(); err != nil {
				yield(nil, err)
				return
			}
		}
		for _, issue := range snapshot {
			if !yield(issue, nil) {
				return
			}
		}
	}
}

func (f *FakeTracker) ReplaceLabels(ctx context.Context, number int, labels []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ReplaceLabelsCalls = append(f.ReplaceLabelsCalls, ReplaceLabelsCall{Number: number, Labels: append([]string(nil), labels...)})
	if f.ReplaceLabelsFunc != nil {
		if err := f.ReplaceLabelsFunc(number, labels); err != nil {
			return nil, err
		}
	}
	issue, ok := f.issues[number]
	if !ok {
		return nil, &github.RemoteError{Op: "replace labels", StatusCode: 404, Cause: fmt.Errorf("issue #%d not found", number)}
	}
	issue.Labels = append([]string(nil), labels...)
	return append([]string(nil), labels...), nil
}

func (f *FakeTracker) CreateRepository(ctx context.Context, req github.RepositoryRequest) (*github.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.CreateRepositoryCalls = append(f.CreateRepositoryCalls, req)
	if f.CreateRepositoryFunc != nil {
		if err := f.CreateRepositoryFunc(req); err != nil {
			return nil, err
		}
	}
	f.nextRepoID++
	return &github.Repository{
		ID:       f.nextRepoID,
		Name:     req.Name,
		FullName: "owner/" + req.Name,
		URL:      "https://github.com/owner/" + req.Name,
		Private:  req.Private,
	}, nil
}

func (f *FakeTracker) EnsureLabel(ctx context.Context, repo string, label github.Label) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.EnsureLabelCalls = append(f.EnsureLabelCalls, EnsureLabelCall{Repo: repo, Label: label})
	if f.EnsureLabelFunc != nil {
		if err := f.EnsureLabelFunc(repo, label); err != nil {
			return err
		}
	}
	for _, l := range f.repoLabels[repo] {
		if l.Name == label.Name {
			return nil
		}
	}
	f.repoLabels[repo] = append(f.repoLabels[repo], label)
	return nil
}

// SetIssueLabels simulates an edit made directly on the remote.
func (f *FakeTracker) SetIssueLabels(number int, labels []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if issue, ok := f.issues[number]; ok {
		issue.Labels = append([]string(nil), labels...)
	}
}

// Issue returns a copy of the stored issue, or nil.
func (f *FakeTracker) Issue(number int) *github.Issue {
	f.mu.Lock()
	defer f.mu.Unlock()
	if issue, ok := f.issues[number]; ok {
		return copyIssue(issue)
	}
	return nil
}

// RepoLabels returns the labels seeded on repo.
func (f *FakeTracker) RepoLabels(repo string) []github.Label {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]github.Label(nil), f.repoLabels[repo]...)
}

// MutatingCalls counts every create/replace/ensure call, successful or not.
func (f *FakeTracker) MutatingCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.CreateIssueCalls) + len(f.ReplaceLabelsCalls) + len(f.CreateRepositoryCalls) + len(f.EnsureLabelCalls)
}

// TotalCalls counts mutating calls plus reads.
func (f *FakeTracker) TotalCalls() int {
	n := f.MutatingCalls()
	f.mu.Lock()
	defer f.mu.Unlock()
	return n + len(f.GetIssueCalls) + f.ListIssuesCalls
}

func copyIssue(in *github.Issue) *github.Issue {
	out := *in
	out.Labels = append([]string(nil), in.Labels...)
	return &out
}

func matchesLabels(issue *github.Issue, want []string) bool {
	for _, w := range want {
		found := false
		for _, l := range issue.Labels {
			if l == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
