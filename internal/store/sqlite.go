package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/models"
)

// SQLiteStore is the SQLite-backed entity store. It uses a single
// connection, so sessions are serialized.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath, applies
// pragmas and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Begin starts a transaction-backed session.
func (s *SQLiteStore) Begin(ctx context.Context) (Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}
	return &sqliteSession{tx: tx}, nil
}

type sqliteSession struct {
	tx   *sql.Tx
	done bool
}

const entityColumns = `kind, id, title, description, item_type, component, status, priority,
	remote_id, remote_url, remote_labels, repo_id, repo_full_name, repo_url, created_at, updated_at`

func (s *sqliteSession) GetEntity(ctx context.Context, kind models.Kind, id string) (*models.Entity, error) {
	row := s.tx.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE kind = ? AND id = ?`, string(kind), id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", kind, id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", kind, id, err)
	}
	return e, nil
}

func (s *sqliteSession) ListEntities(ctx context.Context, kind models.Kind) ([]*models.Entity, error) {
	rows, err := s.tx.QueryContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE kind = ? ORDER BY id`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	var out []*models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CreateEntity inserts e. An empty id is generated from the kind prefix and
// a ULID.
func (s *sqliteSession) CreateEntity(ctx context.Context, e *models.Entity) (*models.Entity, error) {
	if !e.Kind.Valid() {
		return nil, fmt.Errorf("%w: kind %q", models.ErrInvalidEntity, e.Kind)
	}
	if strings.TrimSpace(e.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", models.ErrInvalidEntity)
	}
	if e.Status == "" || e.Priority == "" {
		return nil, fmt.Errorf("%w: status and priority are required", models.ErrInvalidEntity)
	}

	out := e.Clone()
	if out.ID == "" {
		out.ID = e.Kind.IDPrefix() + "-" + strings.ToLower(ulid.Make().String())
	}

	var exists int
	err := s.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE kind = ? AND id = ?`, string(out.Kind), out.ID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", out.Ref(), err)
	}
	if exists > 0 {
		return nil, fmt.Errorf("%s: %w", out.Ref(), ErrDuplicate)
	}

	now := time.Now().UTC().Truncate(time.Second)
	out.CreatedAt = now
	out.UpdatedAt = now

	labels, err := encodeLabels(out.RemoteLabels)
	if err != nil {
		return nil, err
	}

	var remoteID, remoteURL, repoID, repoName, repoURL any
	if out.Remote != nil {
		remoteID, remoteURL = out.Remote.ID, out.Remote.URL
	}
	if out.Repository != nil {
		repoID, repoName, repoURL = out.Repository.ID, out.Repository.FullName, out.Repository.URL
	}

	_, err = s.tx.ExecContext(ctx, `INSERT INTO entities (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(out.Kind), out.ID, out.Title, out.Description, out.Type, out.Component, out.Status, out.Priority,
		remoteID, remoteURL, labels, repoID, repoName, repoURL,
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", out.Ref(), err)
	}
	return out, nil
}

func (s *sqliteSession) UpdateFields(ctx context.Context, kind models.Kind, id, status, priority string) error {
	return s.exec(ctx, kind, id,
		`UPDATE entities SET status = ?, priority = ?, updated_at = ? WHERE kind = ? AND id = ?`,
		status, priority, nowString(), string(kind), id)
}

// UpdateRemoteRef links the entity. A remote ref cannot be cleared.
func (s *sqliteSession) UpdateRemoteRef(ctx context.Context, kind models.Kind, id string, remoteID int, remoteURL string) error {
	if remoteID <= 0 {
		return fmt.Errorf("invalid remote id %d for %s/%s", remoteID, kind, id)
	}
	return s.exec(ctx, kind, id,
		`UPDATE entities SET remote_id = ?, remote_url = ?, updated_at = ? WHERE kind = ? AND id = ?`,
		remoteID, remoteURL, nowString(), string(kind), id)
}

func (s *sqliteSession) UpdateRemoteLabels(ctx context.Context, kind models.Kind, id string, labels []string) error {
	encoded, err := encodeLabels(labels)
	if err != nil {
		return err
	}
	return s.exec(ctx, kind, id,
		`UPDATE entities SET remote_labels = ? WHERE kind = ? AND id = ?`,
		encoded, string(kind), id)
}

func (s *sqliteSession) SetRepository(ctx context.Context, projectID string, repo models.RepoRef) error {
	if repo.FullName == "" {
		return fmt.Errorf("repository name is required for project %s", projectID)
	}
	return s.exec(ctx, models.KindProject, projectID,
		`UPDATE entities SET repo_id = ?, repo_full_name = ?, repo_url = ?, updated_at = ? WHERE kind = ? AND id = ?`,
		repo.ID, repo.FullName, repo.URL, nowString(), string(models.KindProject), projectID)
}

func (s *sqliteSession) Commit() error {
	if s.done {
		return sql.ErrTxDone
	}
	s.done = true
	return s.tx.Commit()
}

func (s *sqliteSession) Rollback() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.tx.Rollback()
}

func (s *sqliteSession) exec(ctx context.Context, kind models.Kind, id, query string, args ...any) error {
	res, err := s.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", kind, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", kind, id, models.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (*models.Entity, error) {
	var (
		e                   models.Entity
		kind, labels        string
		createdAt, updated  string
		remoteID, repoID    sql.NullInt64
		remoteURL, repoName sql.NullString
		repoURL             sql.NullString
	)
	err := row.Scan(&kind, &e.ID, &e.Title, &e.Description, &e.Type, &e.Component, &e.Status, &e.Priority,
		&remoteID, &remoteURL, &labels, &repoID, &repoName, &repoURL, &createdAt, &updated)
	if err != nil {
		return nil, err
	}
	e.Kind = models.Kind(kind)

	if remoteID.Valid && remoteID.Int64 > 0 {
		e.Remote = &models.RemoteRef{ID: int(remoteID.Int64), URL: remoteURL.String}
	}
	if repoName.Valid && repoName.String != "" {
		e.Repository = &models.RepoRef{ID: repoID.Int64, FullName: repoName.String, URL: repoURL.String}
	}
	if labels != "" {
		if err := json.Unmarshal([]byte(labels), &e.RemoteLabels); err != nil {
			return nil, fmt.Errorf("decode remote labels: %w", err)
		}
	}
	if len(e.RemoteLabels) == 0 {
		e.RemoteLabels = nil
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &e, nil
}

func encodeLabels(labels []string) (string, error) {
	if labels == nil {
		labels = []string{}
	}
	b, err := json.Marshal(labels)
	if err != nil {
		return "", fmt.Errorf("encode remote labels: %w", err)
	}
	return string(b), nil
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339)
}
