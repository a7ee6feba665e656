package github

import (
	"context"
	"iter"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultMinDelay spaces mutating calls to stay under GitHub's secondary
// (abuse) rate limit.
const DefaultMinDelay = 2 * time.Second

// Gateway serializes mutating calls behind a shared minimum inter-call
// delay. Reads pass straight through. It never retries.
//
// One Gateway must be shared by everything that talks to the same remote so
// the aggregate rate holds regardless of local fan-out.
type Gateway struct {
	tracker  IssueTracker
	limiter  *rate.Limiter
	minDelay time.Duration
	log      zerolog.Logger
}

// NewGateway wraps tracker. A non-positive minDelay disables pacing.
func NewGateway(tracker IssueTracker, minDelay time.Duration, logger zerolog.Logger) *Gateway {
	limit := rate.Inf
	if minDelay > 0 {
		limit = rate.Every(minDelay)
	}
	return &Gateway{
		tracker:  tracker,
		limiter:  rate.NewLimiter(limit, 1),
		minDelay: minDelay,
		log:      logger.With().Str("component", "gateway").Logger(),
	}
}

// MinDelay returns the configured spacing between mutating calls.
func (g *Gateway) MinDelay() time.Duration {
	return g.minDelay
}

func (g *Gateway) pace(ctx context.Context, op string) error {
	start := time.Now()
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	if waited := time.Since(start); waited > time.Millisecond {
		g.log.Debug().Str("op", op).Dur("waited", waited).Msg("paced remote call")
	}
	return nil
}

// CreateIssue creates an issue after waiting for the pacing slot.
func (g *Gateway) CreateIssue(ctx context.Context, req IssueRequest) (*Issue, error) {
	if err := g.pace(ctx, "create issue"); err != nil {
		return nil, err
	}
	issue, err := g.tracker.CreateIssue(ctx, req)
	if err != nil {
		return nil, AsRemoteError("create issue", err)
	}
	return issue, nil
}

// ReplaceLabels replaces an issue's labels after waiting for the pacing slot.
func (g *Gateway) ReplaceLabels(ctx context.Context, number int, labels []string) ([]string, error) {
	if err := g.pace(ctx, "replace labels"); err != nil {
		return nil, err
	}
	got, err := g.tracker.ReplaceLabels(ctx, number, labels)
	if err != nil {
		return nil, AsRemoteError("replace labels", err)
	}
	return got, nil
}

// CreateRepository creates a repository after waiting for the pacing slot.
func (g *Gateway) CreateRepository(ctx context.Context, req RepositoryRequest) (*Repository, error) {
	if err := g.pace(ctx, "create repository"); err != nil {
		return nil, err
	}
	repo, err := g.tracker.CreateRepository(ctx, req)
	if err != nil {
		return nil, AsRemoteError("create repository", err)
	}
	return repo, nil
}

// EnsureLabel creates a repository label after waiting for the pacing slot.
func (g *Gateway) EnsureLabel(ctx context.Context, repo string, label Label) error {
	if err := g.pace(ctx, "ensure label"); err != nil {
		return err
	}
	return AsRemoteError("ensure label", g.tracker.EnsureLabel(ctx, repo, label))
}

// GetIssue is a read and is not paced.
func (g *Gateway) GetIssue(ctx context.Context, number int) (*Issue, error) {
	issue, err := g.tracker.GetIssue(ctx, number)
	if err != nil {
		return nil, AsRemoteError("get issue", err)
	}
	return issue, nil
}

// ListIssues is a read and is not paced. The sequence is lazy and restartable.
func (g *Gateway) ListIssues(ctx context.Context, opts ListOptions) iter.Seq2[*Issue, error] {
	return func(yield func(*Issue, error) bool) {
		for issue, err := range g.tracker.ListIssues(ctx, opts) {
			if !yield(issue, AsRemoteError("list issues", err)) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}
