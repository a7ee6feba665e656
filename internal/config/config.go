package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/labels"
)

type Config struct {
	Port int

	GitHubToken   string
	GitHubOwner   string
	GitHubRepo    string
	GitHubAPIURL  string
	GitHubRepoOrg string

	RepoPrivate    bool
	RepoNamePrefix string

	DBPath string

	MinDelay          time.Duration
	ProjectWorkers    int
	ReconcileInterval time.Duration

	TaxonomyFile string
	Taxonomy     labels.Taxonomy

	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnvInt("PORT", 8000),
		GitHubToken:       normalizeToken(os.Getenv("GITHUB_TOKEN")),
		GitHubOwner:       strings.TrimSpace(os.Getenv("GITHUB_OWNER")),
		GitHubRepo:        strings.TrimSpace(os.Getenv("GITHUB_REPO")),
		GitHubAPIURL:      os.Getenv("GITHUB_API_URL"),
		GitHubRepoOrg:     os.Getenv("GITHUB_REPO_ORG"),
		RepoPrivate:       getEnvBool("REPO_PRIVATE", true),
		RepoNamePrefix:    getEnv("REPO_NAME_PREFIX", ""),
		DBPath:            getEnv("SYNC_DB_PATH", "data/worksync.db"),
		MinDelay:          time.Duration(getEnvInt("SYNC_MIN_DELAY_MS", 2000)) * time.Millisecond,
		ProjectWorkers:    getEnvInt("SYNC_PROJECT_WORKERS", 2),
		ReconcileInterval: time.Duration(getEnvInt("SYNC_RECONCILE_INTERVAL_SECONDS", 0)) * time.Second,
		TaxonomyFile:      os.Getenv("SYNC_TAXONOMY_FILE"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
	}

	tax := labels.DefaultTaxonomy()
	if cfg.TaxonomyFile != "" {
		loaded, err := LoadTaxonomy(cfg.TaxonomyFile)
		if err != nil {
			return nil, err
		}
		tax = loaded
	}
	cfg.Taxonomy = tax

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadTaxonomy reads a YAML taxonomy file. Unset sections fall back to the
// built-in vocabulary.
func LoadTaxonomy(path string) (labels.Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return labels.Taxonomy{}, fmt.Errorf("read taxonomy file: %w", err)
	}
	var tax labels.Taxonomy
	if err := yaml.Unmarshal(data, &tax); err != nil {
		return labels.Taxonomy{}, fmt.Errorf("parse taxonomy file %s: %w", path, err)
	}
	return tax.WithDefaults(), nil
}

// normalizeToken strips whitespace and surrounding quotes left by .env files.
func normalizeToken(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) >= 2 {
		if (trimmed[0] == '"' && trimmed[len(trimmed)-1] == '"') ||
			(trimmed[0] == '\'' && trimmed[len(trimmed)-1] == '\'') {
			trimmed = trimmed[1 : len(trimmed)-1]
		}
	}
	return strings.TrimSpace(trimmed)
}

func (c *Config) validate() error {
	if err := c.validateGitHub(); err != nil {
		return err
	}

	c.applySyncDefaults()
	if err := c.validateSync(); err != nil {
		return err
	}

	if err := c.Taxonomy.Validate(); err != nil {
		return fmt.Errorf("taxonomy: %w", err)
	}
	return nil
}

func (c *Config) validateGitHub() error {
	if c.GitHubToken == "" {
		return fmt.Errorf("GITHUB_TOKEN is required")
	}
	if c.GitHubOwner == "" {
		return fmt.Errorf("GITHUB_OWNER is required")
	}
	if c.GitHubRepo == "" {
		return fmt.Errorf("GITHUB_REPO is required")
	}
	if strings.Contains(c.GitHubRepo, "/") {
		return fmt.Errorf("GITHUB_REPO must be a bare repository name, got %q", c.GitHubRepo)
	}
	return nil
}

func (c *Config) applySyncDefaults() {
	if c.ProjectWorkers <= 0 {
		c.ProjectWorkers = 2
	}
	if c.DBPath == "" {
		c.DBPath = "data/worksync.db"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
}

func (c *Config) validateSync() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if c.MinDelay < 0 {
		return fmt.Errorf("SYNC_MIN_DELAY_MS must not be negative")
	}
	if c.ReconcileInterval < 0 {
		return fmt.Errorf("SYNC_RECONCILE_INTERVAL_SECONDS must not be negative")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %s (must be 'json' or 'console')", c.LogFormat)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
