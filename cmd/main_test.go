package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/config"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/engine"
	ghtest "github.com/HerrSensei/ai-lab-filled-sub001/internal/github/testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GITHUB_TOKEN", "test-token")
	t.Setenv("GITHUB_OWNER", "owner")
	t.Setenv("GITHUB_REPO", "tracking")
	t.Setenv("SYNC_DB_PATH", filepath.Join(t.TempDir(), "sync.db"))
	t.Setenv("SYNC_MIN_DELAY_MS", "0")
	t.Setenv("SYNC_RECONCILE_INTERVAL_SECONDS", "0")
	t.Setenv("SYNC_TAXONOMY_FILE", "")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("PORT", "")
}

func useFakeRemote(t *testing.T) *ghtest.FakeTracker {
	t.Helper()
	fake := ghtest.NewFakeTracker()
	prev := newEngine
	newEngine = func(cfg *config.Config, opts engine.Options) (*engine.Engine, error) {
		opts.Remote = fake
		return prev(cfg, opts)
	}
	t.Cleanup(func() { newEngine = prev })
	return fake
}

func TestRun_StartsServerWithValidConfig(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "4321")
	useFakeRemote(t)

	var servedAddr string
	var servedHandler http.Handler

	serve := func(addr string, handler http.Handler) error {
		servedAddr = addr
		servedHandler = handler

		// Smoke test a couple of routes while the engine is still open.
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("/health status = %d, want 200", rec.Code)
		}

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("/ status = %d, want 200", rec.Code)
		}
		if body := rec.Body.String(); !strings.Contains(body, `"service":"worksync"`) {
			t.Errorf("root body = %q, want service payload", body)
		}

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("/sync status = %d, want 200", rec.Code)
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, serve); err != nil {
		t.Fatalf("run() returned error: %v", err)
	}

	if servedAddr != ":4321" {
		t.Fatalf("serve addr = %q, want :4321", servedAddr)
	}
	if servedHandler == nil {
		t.Fatalf("serve handler is nil")
	}
}

func TestRun_ReturnsErrorWhenServeFails(t *testing.T) {
	setRequiredEnv(t)
	useFakeRemote(t)

	expected := errors.New("listen failed")
	err := run(context.Background(), func(string, http.Handler) error {
		return expected
	})

	if err == nil {
		t.Fatalf("run() error = nil, want %v", expected)
	}
	if !errors.Is(err, expected) {
		t.Fatalf("run() error = %v, want to wrap %v", err, expected)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GITHUB_TOKEN", "")

	called := false
	err := run(context.Background(), func(string, http.Handler) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("run() error = nil, want configuration error")
	}
	if called {
		t.Fatalf("serve should not be called when configuration fails")
	}
}

func TestRun_EngineError(t *testing.T) {
	setRequiredEnv(t)

	prev := newEngine
	defer func() { newEngine = prev }()
	newEngine = func(cfg *config.Config, opts engine.Options) (*engine.Engine, error) {
		return nil, errors.New("inject failure")
	}

	err := run(context.Background(), func(string, http.Handler) error {
		t.Fatalf("serve should not be called on engine failure")
		return nil
	})
	if err == nil {
		t.Fatal("run() error = nil, want engine failure")
	}
	if !strings.Contains(err.Error(), "failed to initialize sync engine") {
		t.Fatalf("error = %v, want engine failure", err)
	}
}
