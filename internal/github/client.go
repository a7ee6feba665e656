package github

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"time"

	gh "github.com/google/go-github/v66/github"
	"github.com/rs/zerolog"
)

const perPage = 100

// ClientConfig selects the tracking repository and credentials.
type ClientConfig struct {
	Token string
	Owner string
	Repo  string
	// BaseURL targets GitHub Enterprise; empty means github.com.
	BaseURL string
	// RepoOrg receives provisioned repositories; empty means the token's user.
	RepoOrg string
}

// Client implements IssueTracker on top of go-github. Issues live in a
// single tracking repository.
type Client struct {
	gh    *gh.Client
	owner string
	repo  string
	org   string
	log   zerolog.Logger
}

// NewClient builds an authenticated client.
func NewClient(cfg ClientConfig, logger zerolog.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("github token is required")
	}
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, errors.New("github owner and repo are required")
	}

	client := gh.NewClient(&http.Client{Timeout: 30 * time.Second}).WithAuthToken(cfg.Token)
	if cfg.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("configure enterprise url: %w", err)
		}
	}
	return NewClientWith(client, cfg.Owner, cfg.Repo, cfg.RepoOrg, logger), nil
}

// NewClientWith wraps an existing go-github client.
func NewClientWith(client *gh.Client, owner, repo, org string, logger zerolog.Logger) *Client {
	return &Client{
		gh:    client,
		owner: owner,
		repo:  repo,
		org:   org,
		log:   logger.With().Str("component", "github").Logger(),
	}
}

// CreateIssue creates an issue in the tracking repository.
func (c *Client) CreateIssue(ctx context.Context, req IssueRequest) (*Issue, error) {
	labels := append([]string{}, req.Labels...)
	issue, resp, err := c.gh.Issues.Create(ctx, c.owner, c.repo, &gh.IssueRequest{
		Title:  gh.String(req.Title),
		Body:   gh.String(req.Body),
		Labels: &labels,
	})
	c.observe(resp)
	if err != nil {
		return nil, wrapError("create issue", resp, err)
	}
	return convertIssue(issue), nil
}

// GetIssue fetches a single issue by number.
func (c *Client) GetIssue(ctx context.Context, number int) (*Issue, error) {
	issue, resp, err := c.gh.Issues.Get(ctx, c.owner, c.repo, number)
	c.observe(resp)
	if err != nil {
		return nil, wrapError(fmt.Sprintf("get issue #%d", number), resp, err)
	}
	return convertIssue(issue), nil
}

// ListIssues pages through the tracking repository's issues, skipping pull
// requests. Pages are fetched only as the sequence is consumed.
func (c *Client) ListIssues(ctx context.Context, opts ListOptions) iter.Seq2[*Issue, error] {
	state := opts.State
	if state == "" {
		state = "all"
	}
	return func(yield func(*Issue, error) bool) {
		page := 1
		for {
			issues, resp, err := c.gh.Issues.ListByRepo(ctx, c.owner, c.repo, &gh.IssueListByRepoOptions{
				State:       state,
				Labels:      opts.Labels,
				ListOptions: gh.ListOptions{Page: page, PerPage: perPage},
			})
			c.observe(resp)
			if err != nil {
				yield(nil, wrapError("list issues", resp, err))
				return
			}
			for _, issue := range issues {
				if issue.IsPullRequest() {
					continue
				}
				if !yield(convertIssue(issue), nil) {
					return
				}
			}
			if resp == nil || resp.NextPage == 0 {
				return
			}
			page = resp.NextPage
		}
	}
}

// ReplaceLabels sets the issue's labels to exactly labels.
func (c *Client) ReplaceLabels(ctx context.Context, number int, labels []string) ([]string, error) {
	got, resp, err := c.gh.Issues.ReplaceLabelsForIssue(ctx, c.owner, c.repo, number, labels)
	c.observe(resp)
	if err != nil {
		return nil, wrapError(fmt.Sprintf("replace labels on #%d", number), resp, err)
	}
	names := make([]string, 0, len(got))
	for _, l := range got {
		names = append(names, l.GetName())
	}
	return names, nil
}

// CreateRepository creates a repository under the configured org, or the
// authenticated user when no org is set.
func (c *Client) CreateRepository(ctx context.Context, req RepositoryRequest) (*Repository, error) {
	repo, resp, err := c.gh.Repositories.Create(ctx, c.org, &gh.Repository{
		Name:        gh.String(req.Name),
		Description: gh.String(req.Description),
		Private:     gh.Bool(req.Private),
		HasIssues:   gh.Bool(true),
		AutoInit:    gh.Bool(true),
	})
	c.observe(resp)
	if err != nil {
		return nil, wrapError("create repository "+req.Name, resp, err)
	}
	return &Repository{
		ID:       repo.GetID(),
		Name:     repo.GetName(),
		FullName: repo.GetFullName(),
		URL:      repo.GetHTMLURL(),
		Private:  repo.GetPrivate(),
	}, nil
}

// observe logs the remaining request budget reported by the API.
func (c *Client) observe(resp *gh.Response) {
	if resp == nil || resp.Rate.Limit == 0 {
		return
	}
	c.log.Debug().
		Int("remaining", resp.Rate.Remaining).
		Int("limit", resp.Rate.Limit).
		Time("reset", resp.Rate.Reset.Time).
		Msg("rate limit")
}

func convertIssue(issue *gh.Issue) *Issue {
	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
	}
	return &Issue{
		Number: issue.GetNumber(),
		URL:    issue.GetHTMLURL(),
		Title:  issue.GetTitle(),
		State:  issue.GetState(),
		Labels: labels,
	}
}

func wrapError(op string, resp *gh.Response, err error) error {
	re := &RemoteError{Op: op, Cause: err}
	if resp != nil && resp.Response != nil {
		re.StatusCode = resp.StatusCode
	}

	var abuse *gh.AbuseRateLimitError
	if errors.As(err, &abuse) {
		re.RateLimited = true
		if abuse.RetryAfter != nil {
			re.RetryAfter = *abuse.RetryAfter
		}
	}
	var limited *gh.RateLimitError
	if errors.As(err, &limited) {
		re.RateLimited = true
		re.RetryAfter = time.Until(limited.Rate.Reset.Time)
	}
	var errResp *gh.ErrorResponse
	if re.StatusCode == 0 && errors.As(err, &errResp) && errResp.Response != nil {
		re.StatusCode = errResp.Response.StatusCode
	}
	return re
}
