// Package dispatcher executes one-shot sync actions against the remote:
// label replacement after a local change, issue creation for unlinked
// entities, and repository creation and seeding for projects.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/github"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/labels"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/models"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/store"
)

// Remote is the paced remote surface the dispatcher writes through.
// *github.Gateway implements it.
type Remote interface {
	CreateIssue(ctx context.Context, req github.IssueRequest) (*github.Issue, error)
	ReplaceLabels(ctx context.Context, number int, labels []string) ([]string, error)
	CreateRepository(ctx context.Context, req github.RepositoryRequest) (*github.Repository, error)
	EnsureLabel(ctx context.Context, repo string, label github.Label) error
}

// Dispatcher only writes remote refs and cached label snapshots back to
// the store. It never changes status or priority.
type Dispatcher struct {
	store  store.Store
	remote Remote
	codec  *labels.Codec
	log    zerolog.Logger

	keyedLocks *keyedMutex
}

// New creates a dispatcher.
func New(st store.Store, remote Remote, codec *labels.Codec, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:      st,
		remote:     remote,
		codec:      codec,
		log:        logger.With().Str("component", "dispatcher").Logger(),
		keyedLocks: newKeyedMutex(),
	}
}

// SyncStatus pushes the entity's stored state after a status change to
// newStatus. Unlinked entities are a successful no-op.
func (d *Dispatcher) SyncStatus(ctx context.Context, kind models.Kind, id, newStatus string) error {
	return d.syncField(ctx, models.EntityRef{Kind: kind, ID: id}, models.FieldStatus, newStatus)
}

// SyncPriority pushes the entity's stored state after a priority change to
// newPriority. Unlinked entities are a successful no-op.
func (d *Dispatcher) SyncPriority(ctx context.Context, kind models.Kind, id, newPriority string) error {
	return d.syncField(ctx, models.EntityRef{Kind: kind, ID: id}, models.FieldPriority, newPriority)
}

// Dispatch routes a change event to SyncStatus or SyncPriority.
func (d *Dispatcher) Dispatch(ctx context.Context, ev models.ChangeEvent) error {
	switch ev.Field {
	case models.FieldStatus:
		return d.SyncStatus(ctx, ev.Entity.Kind, ev.Entity.ID, ev.New)
	case models.FieldPriority:
		return d.SyncPriority(ctx, ev.Entity.Kind, ev.Entity.ID, ev.New)
	}
	return fmt.Errorf("unsupported field %q", ev.Field)
}

// syncField validates value and then pushes whatever is stored, so a
// dispatch that arrives after a newer commit cannot roll the remote back.
func (d *Dispatcher) syncField(ctx context.Context, ref models.EntityRef, field models.Field, value string) error {
	key := ref.String()
	d.keyedLocks.Lock(key)
	defer d.keyedLocks.Unlock(key)

	e, err := store.Get(ctx, d.store, ref.Kind, ref.ID)
	if err != nil {
		return err
	}
	if !e.Linked() {
		d.log.Debug().Str("entity", key).Str("field", string(field)).Msg("entity not linked, nothing to sync")
		return nil
	}

	stored, status, priority := e.Priority, e.Status, value
	if field == models.FieldStatus {
		stored, status, priority = e.Status, value, e.Priority
	}
	if _, err := d.codec.Encode(e.Kind, status, priority, e.Component); err != nil {
		return fmt.Errorf("sync %s of %s: %w", field, key, err)
	}
	if stored != value {
		d.log.Debug().
			Str("entity", key).
			Str("field", string(field)).
			Str("event", value).
			Str("stored", stored).
			Msg("change superseded by newer local state")
	}

	if _, err := d.push(ctx, e, e.RemoteLabels); err != nil {
		return fmt.Errorf("sync %s of %s: %w", field, key, err)
	}
	return nil
}

// PushLabels replaces the remote issue's labels with the entity's stored
// state merged with the unmanaged labels in existing, and caches the
// result. The entity is re-read under its lock; e only identifies it and
// is refreshed with what was pushed.
func (d *Dispatcher) PushLabels(ctx context.Context, e *models.Entity, existing []string) ([]string, error) {
	key := e.Ref().String()
	d.keyedLocks.Lock(key)
	defer d.keyedLocks.Unlock(key)

	current, err := store.Get(ctx, d.store, e.Kind, e.ID)
	if err != nil {
		return nil, err
	}
	if !current.Linked() {
		return nil, fmt.Errorf("push labels for %s: entity is not linked", key)
	}
	applied, err := d.push(ctx, current, existing)
	if err != nil {
		return nil, err
	}
	e.Status = current.Status
	e.Priority = current.Priority
	e.Remote = current.Remote
	e.RemoteLabels = applied
	return applied, nil
}

// push must be called with the entity's key locked. Once the remote write
// has returned, the cache update ignores cancellation of ctx.
func (d *Dispatcher) push(ctx context.Context, e *models.Entity, existing []string) ([]string, error) {
	encoded, err := d.codec.EncodeEntity(e)
	if err != nil {
		return nil, err
	}
	target := labels.Merge(encoded, existing)

	applied, err := d.remote.ReplaceLabels(ctx, e.Remote.ID, target.Strings())
	if err != nil {
		return nil, err
	}
	if applied == nil {
		applied = target.Strings()
	}

	if err := d.cacheLabels(context.WithoutCancel(ctx), e.Ref(), applied); err != nil {
		return nil, err
	}
	e.RemoteLabels = applied

	d.log.Info().
		Str("entity", e.Ref().String()).
		Int("issue", e.Remote.ID).
		Strs("labels", applied).
		Msg("remote labels updated")
	return applied, nil
}

// CacheLabels stores observed as the entity's last known remote label set
// without touching the remote. since is the cached set the caller read
// before observing the remote; if a push replaced it in the meantime the
// observation is older than the cache and nothing is written. It reports
// whether the cache was updated.
func (d *Dispatcher) CacheLabels(ctx context.Context, ref models.EntityRef, since, observed []string) (bool, error) {
	key := ref.String()
	d.keyedLocks.Lock(key)
	defer d.keyedLocks.Unlock(key)

	current, err := store.Get(ctx, d.store, ref.Kind, ref.ID)
	if err != nil {
		return false, err
	}
	if !slices.Equal(current.RemoteLabels, since) {
		d.log.Debug().Str("entity", key).Strs("cached", current.RemoteLabels).Msg("labels pushed since observation, keeping cache")
		return false, nil
	}
	if err := d.cacheLabels(ctx, ref, observed); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Dispatcher) cacheLabels(ctx context.Context, ref models.EntityRef, observed []string) error {
	err := store.Update(ctx, d.store, func(s store.Session) error {
		return s.UpdateRemoteLabels(ctx, ref.Kind, ref.ID, observed)
	})
	if err != nil {
		return fmt.Errorf("cache labels for %s: %w", ref, err)
	}
	return nil
}

// CreateRemote creates the remote issue for e and persists the returned
// ref onto the entity. An entity that is already linked fails with
// models.ErrAlreadyLinked before any remote call. Once the issue exists
// the link is saved even if ctx is cancelled.
func (d *Dispatcher) CreateRemote(ctx context.Context, e *models.Entity) (*models.RemoteRef, error) {
	key := e.Ref().String()
	if e.Linked() {
		return nil, fmt.Errorf("create remote for %s: %w", key, models.ErrAlreadyLinked)
	}

	d.keyedLocks.Lock(key)
	defer d.keyedLocks.Unlock(key)

	current, err := store.Get(ctx, d.store, e.Kind, e.ID)
	if err != nil {
		return nil, err
	}
	if current.Linked() {
		return nil, fmt.Errorf("create remote for %s: %w", key, models.ErrAlreadyLinked)
	}

	encoded, err := d.codec.EncodeEntity(current)
	if err != nil {
		return nil, fmt.Errorf("create remote for %s: %w", key, err)
	}

	issue, err := d.remote.CreateIssue(ctx, github.IssueRequest{
		Title:  IssueTitle(current),
		Body:   IssueBody(current),
		Labels: encoded.Strings(),
	})
	if err != nil {
		return nil, fmt.Errorf("create remote for %s: %w", key, err)
	}

	ref := &models.RemoteRef{ID: issue.Number, URL: issue.URL}
	snapshot := issue.Labels
	if len(snapshot) == 0 {
		snapshot = encoded.Strings()
	}
	saveCtx := context.WithoutCancel(ctx)
	err = store.Update(saveCtx, d.store, func(s store.Session) error {
		if err := s.UpdateRemoteRef(saveCtx, e.Kind, e.ID, ref.ID, ref.URL); err != nil {
			return err
		}
		return s.UpdateRemoteLabels(saveCtx, e.Kind, e.ID, snapshot)
	})
	if err != nil {
		d.log.Error().Err(err).Str("entity", key).Int("issue", ref.ID).Msg("remote issue created but link could not be saved")
		return nil, fmt.Errorf("persist remote ref for %s (issue #%d): %w", key, ref.ID, err)
	}

	e.Remote = ref
	e.RemoteLabels = snapshot
	d.log.Info().Str("entity", key).Int("issue", ref.ID).Str("url", ref.URL).Msg("remote issue created")
	return ref, nil
}

// CreateRepository creates a remote repository.
func (d *Dispatcher) CreateRepository(ctx context.Context, name, description string, private bool) (*github.Repository, error) {
	repo, err := d.remote.CreateRepository(ctx, github.RepositoryRequest{
		Name:        name,
		Description: description,
		Private:     private,
	})
	if err != nil {
		return nil, err
	}
	d.log.Info().Str("repository", repo.FullName).Str("url", repo.URL).Msg("repository created")
	return repo, nil
}

// SeedLabels creates every taxonomy label on repo ("owner/name"). It keeps
// going after a failure and returns how many labels were ensured together
// with the joined errors.
func (d *Dispatcher) SeedLabels(ctx context.Context, repo string) (int, error) {
	var (
		seeded int
		errs   []error
	)
	for _, spec := range d.codec.Taxonomy().SeedLabels() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		err := d.remote.EnsureLabel(ctx, repo, github.Label{
			Name:        spec.Name,
			Color:       spec.Color,
			Description: spec.Description,
		})
		if err != nil {
			d.log.Warn().Err(err).Str("repository", repo).Str("label", spec.Name).Msg("failed to seed label")
			errs = append(errs, fmt.Errorf("label %q: %w", spec.Name, err))
			continue
		}
		seeded++
	}
	if len(errs) > 0 {
		return seeded, fmt.Errorf("seed labels on %s: %w", repo, errors.Join(errs...))
	}
	d.log.Info().Str("repository", repo).Int("labels", seeded).Msg("label taxonomy seeded")
	return seeded, nil
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

// keyedLock is dropped from the map once no goroutine holds or waits on it.
type keyedLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{
		locks: make(map[string]*keyedLock),
	}
}

func (k *keyedMutex) Lock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &keyedLock{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
}

func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		k.mu.Unlock()
		return
	}
	m.refs--
	if m.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	m.Unlock()
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
