package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v66/github"
)

// EnsureLabel creates the label on repo. A label that already exists is not
// an error, matching `gh label create --force`.
func (c *Client) EnsureLabel(ctx context.Context, repo string, label Label) error {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return fmt.Errorf("invalid repo format: %s (expected owner/repo)", repo)
	}

	_, resp, err := c.gh.Issues.CreateLabel(ctx, owner, name, &gh.Label{
		Name:        gh.String(label.Name),
		Color:       gh.String(label.Color),
		Description: gh.String(label.Description),
	})
	c.observe(resp)
	if err != nil {
		if labelExists(err) {
			return nil
		}
		return wrapError(fmt.Sprintf("create label %q on %s", label.Name, repo), resp, err)
	}
	return nil
}

func labelExists(err error) bool {
	var errResp *gh.ErrorResponse
	if !errors.As(err, &errResp) || errResp.Response == nil {
		return false
	}
	if errResp.Response.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	for _, e := range errResp.Errors {
		if e.Code == "already_exists" {
			return true
		}
	}
	return false
}
