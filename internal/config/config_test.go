package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/models"
)

var knownVars = []string{
	"PORT", "GITHUB_TOKEN", "GITHUB_OWNER", "GITHUB_REPO", "GITHUB_API_URL", "GITHUB_REPO_ORG",
	"REPO_PRIVATE", "REPO_NAME_PREFIX", "SYNC_DB_PATH", "SYNC_MIN_DELAY_MS", "SYNC_PROJECT_WORKERS",
	"SYNC_RECONCILE_INTERVAL_SECONDS", "SYNC_TAXONOMY_FILE", "LOG_LEVEL", "LOG_FORMAT",
}

// setEnv blanks every variable Load reads, then applies env.
func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for _, k := range knownVars {
		t.Setenv(k, "")
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func requiredEnv() map[string]string {
	return map[string]string{
		"GITHUB_TOKEN": "ghp_test",
		"GITHUB_OWNER": "acme",
		"GITHUB_REPO":  "tracking",
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
		check   func(*testing.T, *Config)
	}{
		{
			name: "defaults",
			env:  requiredEnv(),
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != 8000 {
					t.Errorf("Port = %d, want 8000", cfg.Port)
				}
				if cfg.DBPath != "data/worksync.db" {
					t.Errorf("DBPath = %s", cfg.DBPath)
				}
				if cfg.MinDelay != 2*time.Second {
					t.Errorf("MinDelay = %v, want 2s", cfg.MinDelay)
				}
				if cfg.ProjectWorkers != 2 {
					t.Errorf("ProjectWorkers = %d, want 2", cfg.ProjectWorkers)
				}
				if cfg.ReconcileInterval != 0 {
					t.Errorf("ReconcileInterval = %v, want 0", cfg.ReconcileInterval)
				}
				if !cfg.RepoPrivate {
					t.Error("RepoPrivate should default to true")
				}
				if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
					t.Errorf("logging = %s/%s", cfg.LogLevel, cfg.LogFormat)
				}
				if cfg.Taxonomy.DefaultStatus != "todo" {
					t.Errorf("taxonomy not defaulted: %+v", cfg.Taxonomy)
				}
			},
		},
		{
			name: "overrides",
			env: merge(requiredEnv(), map[string]string{
				"PORT":                            "9090",
				"GITHUB_API_URL":                  "https://ghe.example.com/api/v3/",
				"GITHUB_REPO_ORG":                 "acme-projects",
				"REPO_PRIVATE":                    "false",
				"REPO_NAME_PREFIX":                "lab-",
				"SYNC_DB_PATH":                    "/tmp/x.db",
				"SYNC_MIN_DELAY_MS":               "500",
				"SYNC_PROJECT_WORKERS":            "4",
				"SYNC_RECONCILE_INTERVAL_SECONDS": "300",
				"LOG_FORMAT":                      "console",
			}),
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != 9090 || cfg.GitHubAPIURL != "https://ghe.example.com/api/v3/" || cfg.GitHubRepoOrg != "acme-projects" {
					t.Errorf("unexpected cfg %+v", cfg)
				}
				if cfg.RepoPrivate || cfg.RepoNamePrefix != "lab-" {
					t.Errorf("repo settings = %v %q", cfg.RepoPrivate, cfg.RepoNamePrefix)
				}
				if cfg.MinDelay != 500*time.Millisecond || cfg.ProjectWorkers != 4 || cfg.ReconcileInterval != 5*time.Minute {
					t.Errorf("sync settings = %v %d %v", cfg.MinDelay, cfg.ProjectWorkers, cfg.ReconcileInterval)
				}
			},
		},
		{
			name: "quoted token",
			env:  merge(requiredEnv(), map[string]string{"GITHUB_TOKEN": ` "ghp_quoted" `}),
			check: func(t *testing.T, cfg *Config) {
				if cfg.GitHubToken != "ghp_quoted" {
					t.Errorf("GitHubToken = %q", cfg.GitHubToken)
				}
			},
		},
		{
			name: "zero delay disables pacing",
			env:  merge(requiredEnv(), map[string]string{"SYNC_MIN_DELAY_MS": "0"}),
			check: func(t *testing.T, cfg *Config) {
				if cfg.MinDelay != 0 {
					t.Errorf("MinDelay = %v", cfg.MinDelay)
				}
			},
		},
		{
			name: "invalid workers fall back",
			env:  merge(requiredEnv(), map[string]string{"SYNC_PROJECT_WORKERS": "-3"}),
			check: func(t *testing.T, cfg *Config) {
				if cfg.ProjectWorkers != 2 {
					t.Errorf("ProjectWorkers = %d, want 2", cfg.ProjectWorkers)
				}
			},
		},
		{name: "missing token", env: map[string]string{"GITHUB_OWNER": "a", "GITHUB_REPO": "b"}, wantErr: "GITHUB_TOKEN"},
		{name: "missing owner", env: map[string]string{"GITHUB_TOKEN": "t", "GITHUB_REPO": "b"}, wantErr: "GITHUB_OWNER"},
		{name: "missing repo", env: map[string]string{"GITHUB_TOKEN": "t", "GITHUB_OWNER": "a"}, wantErr: "GITHUB_REPO"},
		{name: "repo with owner", env: merge(requiredEnv(), map[string]string{"GITHUB_REPO": "acme/tracking"}), wantErr: "bare repository"},
		{name: "negative delay", env: merge(requiredEnv(), map[string]string{"SYNC_MIN_DELAY_MS": "-1"}), wantErr: "SYNC_MIN_DELAY_MS"},
		{name: "bad log format", env: merge(requiredEnv(), map[string]string{"LOG_FORMAT": "xml"}), wantErr: "LOG_FORMAT"},
		{name: "bad port", env: merge(requiredEnv(), map[string]string{"PORT": "70000"}), wantErr: "PORT"},
		{name: "missing taxonomy file", env: merge(requiredEnv(), map[string]string{"SYNC_TAXONOMY_FILE": "/nonexistent/tax.yaml"}), wantErr: "taxonomy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, tt.env)
			cfg, err := Load()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoad_TaxonomyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	content := `statuses:
  work_item: [open, doing, closed]
priorities: [p1, p2, p3]
default_priority: p2
components: [api, ui]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write taxonomy: %v", err)
	}
	setEnv(t, merge(requiredEnv(), map[string]string{"SYNC_TAXONOMY_FILE": path}))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	tax := cfg.Taxonomy
	if !tax.ValidStatus(models.KindWorkItem, "doing") || tax.ValidStatus(models.KindWorkItem, "todo") {
		t.Errorf("work item statuses = %v", tax.Statuses[models.KindWorkItem])
	}
	if tax.DefaultPriority != "p2" || !tax.ValidPriority("p3") {
		t.Errorf("priorities = %v default %q", tax.Priorities, tax.DefaultPriority)
	}
	if !tax.KnownComponent("api") || tax.KnownComponent("db") {
		t.Errorf("components = %v", tax.Components)
	}
}

func TestLoad_InvalidTaxonomyRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	if err := os.WriteFile(path, []byte("priorities: [\"priority:high\"]\ndefault_priority: \"priority:high\"\n"), 0o644); err != nil {
		t.Fatalf("write taxonomy: %v", err)
	}
	setEnv(t, merge(requiredEnv(), map[string]string{"SYNC_TAXONOMY_FILE": path}))

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "taxonomy") {
		t.Fatalf("Load() error = %v, want taxonomy error", err)
	}
}

func TestLoadTaxonomy_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("statuses: [oops"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadTaxonomy(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "value")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty")
	t.Setenv("TEST_BOOL", "false")
	t.Setenv("TEST_BAD_BOOL", "nope")

	if got := getEnv("TEST_STR", "d"); got != "value" {
		t.Errorf("getEnv = %q", got)
	}
	if got := getEnv("TEST_MISSING_STR", "d"); got != "d" {
		t.Errorf("getEnv default = %q", got)
	}
	if got := getEnvInt("TEST_INT", 1); got != 42 {
		t.Errorf("getEnvInt = %d", got)
	}
	if got := getEnvInt("TEST_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvInt invalid = %d, want default", got)
	}
	if got := getEnvBool("TEST_BOOL", true); got {
		t.Error("getEnvBool = true, want false")
	}
	if got := getEnvBool("TEST_BAD_BOOL", true); !got {
		t.Error("getEnvBool invalid should return default")
	}
}

func merge(a, b map[string]string) map[string]string {
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
