package store

import (
	"context"
	"errors"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/models"
)

// ErrDuplicate is returned when creating an entity whose id is taken.
var ErrDuplicate = errors.New("entity already exists")

// Store opens units of work against the local entity store.
type Store interface {
	Begin(ctx context.Context) (Session, error)
	Close() error
}

// Session is one unit of work. It must end with exactly one Commit or
// Rollback; Rollback after Commit is a no-op.
//
// Sessions must not be held across remote calls.
type Session interface {
	GetEntity(ctx context.Context, kind models.Kind, id string) (*models.Entity, error)
	ListEntities(ctx context.Context, kind models.Kind) ([]*models.Entity, error)
	CreateEntity(ctx context.Context, e *models.Entity) (*models.Entity, error)
	UpdateFields(ctx context.Context, kind models.Kind, id, status, priority string) error
	UpdateRemoteRef(ctx context.Context, kind models.Kind, id string, remoteID int, remoteURL string) error
	UpdateRemoteLabels(ctx context.Context, kind models.Kind, id string, labels []string) error
	SetRepository(ctx context.Context, projectID string, repo models.RepoRef) error
	Commit() error
	Rollback() error
}

// View runs fn in a session that is always rolled back.
func View(ctx context.Context, s Store, fn func(Session) error) error {
	sess, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer sess.Rollback()
	return fn(sess)
}

// Update runs fn in a session that commits when fn succeeds and rolls back
// otherwise.
func Update(ctx context.Context, s Store, fn func(Session) error) error {
	sess, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(sess); err != nil {
		_ = sess.Rollback()
		return err
	}
	return sess.Commit()
}

// Get loads a single entity in its own read session.
func Get(ctx context.Context, s Store, kind models.Kind, id string) (*models.Entity, error) {
	var e *models.Entity
	err := View(ctx, s, func(sess Session) error {
		var err error
		e, err = sess.GetEntity(ctx, kind, id)
		return err
	})
	return e, err
}

// List loads every entity of kind in its own read session.
func List(ctx context.Context, s Store, kind models.Kind) ([]*models.Entity, error) {
	var out []*models.Entity
	err := View(ctx, s, func(sess Session) error {
		var err error
		out, err = sess.ListEntities(ctx, kind)
		return err
	})
	return out, err
}
