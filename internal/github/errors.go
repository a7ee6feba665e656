package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RemoteError wraps any failure talking to the remote service: transport
// errors, 4xx/5xx responses, and rate-limit rejections.
type RemoteError struct {
	Op          string
	StatusCode  int
	RateLimited bool
	RetryAfter  time.Duration
	Cause       error
}

func (e *RemoteError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("remote %s failed (HTTP %d): %v", e.Op, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("remote %s failed: %v", e.Op, e.Cause)
}

func (e *RemoteError) Unwrap() error {
	return e.Cause
}

// Temporary reports whether trying again later might succeed. The sync
// engine never retries by itself; callers use this to decide.
func (e *RemoteError) Temporary() bool {
	if e.RateLimited || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500 {
		return true
	}
	if e.StatusCode != 0 || e.Cause == nil {
		return false
	}

	msg := strings.ToLower(e.Cause.Error())
	for _, pattern := range []string{
		"eof",
		"timeout",
		"connection refused",
		"temporary failure",
		"connection reset",
		"broken pipe",
		"no such host",
		"network is unreachable",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// IsRemoteError reports whether err is or wraps a *RemoteError.
func IsRemoteError(err error) bool {
	var target *RemoteError
	return errors.As(err, &target)
}

// AsRemoteError wraps err in a RemoteError for op unless it already is one.
func AsRemoteError(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return err
	}
	return &RemoteError{Op: op, Cause: err}
}
