// Package engine wires the sync components together once per process and
// exposes the operations the binaries call.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/concurrency"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/config"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/dispatcher"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/github"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/labels"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/models"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/provision"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/reconcile"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/runstore"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/store"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/tracker"
)

// ErrBusy is returned when the same batch operation is already running.
var ErrBusy = concurrency.ErrBusy

// Options overrides collaborators, mainly for tests.
type Options struct {
	// Remote replaces the go-github client built from the config.
	Remote github.IssueTracker
	// Store replaces the SQLite store opened at cfg.DBPath. The engine
	// does not close a store it did not open.
	Store store.Store
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
	// Runs defaults to a fresh in-memory history.
	Runs *runstore.Store
}

// Engine holds the process-wide sync state: the store, the single paced
// gateway and every component built on them.
type Engine struct {
	cfg *config.Config
	log zerolog.Logger

	store     store.Store
	ownsStore bool

	codec       *labels.Codec
	gateway     *github.Gateway
	dispatcher  *dispatcher.Dispatcher
	tracker     *tracker.Tracker
	reconciler  *reconcile.Reconciler
	provisioner *provision.Provisioner
	locks       *concurrency.Manager
	runs        *runstore.Store

	mu           sync.RWMutex
	lastFullSync time.Time

	closeOnce sync.Once
	closeErr  error
}

// New builds the engine. Call Close when done.
func New(cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	remote := opts.Remote
	if remote == nil {
		client, err := github.NewClient(github.ClientConfig{
			Token:   cfg.GitHubToken,
			Owner:   cfg.GitHubOwner,
			Repo:    cfg.GitHubRepo,
			BaseURL: cfg.GitHubAPIURL,
			RepoOrg: cfg.GitHubRepoOrg,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create github client: %w", err)
		}
		remote = client
	}

	st, owns := opts.Store, false
	if st == nil {
		sqlite, err := store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		st, owns = sqlite, true
	}

	runs := opts.Runs
	if runs == nil {
		runs = runstore.NewStore(0)
	}

	codec := labels.NewCodec(cfg.Taxonomy)
	gateway := github.NewGateway(remote, cfg.MinDelay, logger)
	d := dispatcher.New(st, gateway, codec, logger)
	locks := concurrency.NewManager()

	e := &Engine{
		cfg:        cfg,
		log:        logger.With().Str("component", "engine").Logger(),
		store:      st,
		ownsStore:  owns,
		codec:      codec,
		gateway:    gateway,
		dispatcher: d,
		tracker:    tracker.New(st, d, codec, logger),
		reconciler: reconcile.New(st, d, gateway, codec, logger),
		provisioner: provision.New(st, d, locks, provision.Config{
			Private:    cfg.RepoPrivate,
			NamePrefix: cfg.RepoNamePrefix,
			Workers:    cfg.ProjectWorkers,
		}, logger),
		locks: locks,
		runs:  runs,
	}
	e.log.Info().
		Str("repo", cfg.GitHubOwner+"/"+cfg.GitHubRepo).
		Dur("min_delay", cfg.MinDelay).
		Int("project_workers", cfg.ProjectWorkers).
		Msg("sync engine ready")
	return e, nil
}

// Close releases the store if the engine opened it. It is safe to call
// more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		if e.ownsStore {
			e.closeErr = e.store.Close()
		}
	})
	return e.closeErr
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() *config.Config { return e.cfg }

// Taxonomy returns the label vocabulary.
func (e *Engine) Taxonomy() labels.Taxonomy { return e.codec.Taxonomy() }

// Runs returns the run history.
func (e *Engine) Runs() *runstore.Store { return e.runs }

// Running lists the batch operations currently in progress.
func (e *Engine) Running() []concurrency.Lease { return e.locks.Running() }

// LastFullSync returns when the last full sync finished, or zero.
func (e *Engine) LastFullSync() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastFullSync
}

// FullSync runs one reconciliation pass and records it. It returns ErrBusy
// when a pass is already running.
func (e *Engine) FullSync(ctx context.Context, trigger string) (*runstore.Run, error) {
	return e.batch(ctx, concurrency.KeyFullSync, runstore.KindFullSync, trigger, func(ctx context.Context) models.SyncResult {
		result := e.reconciler.FullSync(ctx)
		e.mu.Lock()
		e.lastFullSync = time.Now()
		e.mu.Unlock()
		return result
	})
}

// SyncAllProjects provisions every unlinked project and records the run.
func (e *Engine) SyncAllProjects(ctx context.Context, trigger string) (*runstore.Run, error) {
	return e.batch(ctx, concurrency.KeyProjects, runstore.KindProjectSync, trigger, e.provisioner.SyncAllProjects)
}

func (e *Engine) batch(ctx context.Context, key string, kind runstore.RunKind, trigger string, fn func(context.Context) models.SyncResult) (*runstore.Run, error) {
	if !e.locks.TryAcquire(key) {
		return nil, ErrBusy
	}
	defer e.locks.Release(key)

	id := e.runs.Start(kind, trigger, "")
	e.runs.AddLog(id, "info", fmt.Sprintf("%s started by %s", kind, trigger))
	result := fn(ctx)
	e.runs.Finish(id, result)

	run, _ := e.runs.Get(id)
	return run, nil
}

// CreateRepository provisions one project and records the run.
func (e *Engine) CreateRepository(ctx context.Context, projectID, trigger string) (*models.RepoRef, *runstore.Run, error) {
	id := e.runs.Start(runstore.KindCreateRepository, trigger, projectID)
	ref, err := e.provisioner.CreateRepositoryForProject(ctx, projectID)
	e.finishSingle(id, projectID, err, ref != nil)
	run, _ := e.runs.Get(id)
	return ref, run, err
}

// ReseedLabels repairs a project's repository labels and records the run.
func (e *Engine) ReseedLabels(ctx context.Context, projectID, trigger string) (int, *runstore.Run, error) {
	id := e.runs.Start(runstore.KindReseedLabels, trigger, projectID)
	n, err := e.provisioner.ReseedLabels(ctx, projectID)
	e.runs.AddLog(id, "info", fmt.Sprintf("%d labels ensured", n))
	e.finishSingle(id, projectID, err, false)
	run, _ := e.runs.Get(id)
	return n, run, err
}

func (e *Engine) finishSingle(runID, projectID string, err error, created bool) {
	if err == nil {
		result := models.NewSyncResult()
		if created {
			result.Created = 1
		} else {
			result.Updated = 1
		}
		e.runs.Finish(runID, result)
		return
	}
	var seedErr *provision.SeedError
	if errors.As(err, &seedErr) {
		result := models.NewSyncResult()
		result.Created = 1
		result.RecordError(models.EntityRef{Kind: models.KindProject, ID: projectID}.String(), err)
		e.runs.Finish(runID, result)
		return
	}
	e.runs.Fail(runID, err)
}

// AddEntity stores a new local entity, filling status and priority from
// the taxonomy when empty.
func (e *Engine) AddEntity(ctx context.Context, ent *models.Entity) (*models.Entity, error) {
	if !ent.Kind.Valid() {
		return nil, fmt.Errorf("%w: kind %q", models.ErrInvalidEntity, ent.Kind)
	}
	tax := e.codec.Taxonomy()
	in := ent.Clone()
	in.Title = strings.TrimSpace(in.Title)
	if in.Status == "" {
		in.Status = tax.DefaultStatusFor(in.Kind)
	}
	if in.Priority == "" {
		in.Priority = tax.DefaultPriority
	}
	if !tax.ValidStatus(in.Kind, in.Status) {
		return nil, fmt.Errorf("%w: status %q is not allowed for %s", labels.ErrInvalidValue, in.Status, in.Kind)
	}
	if !tax.ValidPriority(in.Priority) {
		return nil, fmt.Errorf("%w: priority %q is not allowed", labels.ErrInvalidValue, in.Priority)
	}
	if _, err := e.codec.EncodeEntity(in); err != nil {
		return nil, err
	}

	var out *models.Entity
	err := store.Update(ctx, e.store, func(s store.Session) error {
		var err error
		out, err = s.CreateEntity(ctx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.log.Info().Str("entity", out.Ref().String()).Msg("entity added")
	return out, nil
}

// GetEntity loads one entity.
func (e *Engine) GetEntity(ctx context.Context, kind models.Kind, id string) (*models.Entity, error) {
	return store.Get(ctx, e.store, kind, id)
}

// ListEntities lists entities of kind, or of every kind when kind is empty.
func (e *Engine) ListEntities(ctx context.Context, kind models.Kind) ([]*models.Entity, error) {
	kinds := models.AllKinds
	if kind != "" {
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: kind %q", models.ErrInvalidEntity, kind)
		}
		kinds = []models.Kind{kind}
	}
	var out []*models.Entity
	for _, k := range kinds {
		list, err := store.List(ctx, e.store, k)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	return out, nil
}

// StateChange carries optional new values for an entity's tracked fields.
type StateChange struct {
	Status   *string `json:"status,omitempty"`
	Priority *string `json:"priority,omitempty"`
}

// SetEntityState applies a change through the change tracker. The local
// write always lands before any remote dispatch; dispatch failures are
// reported, not returned.
func (e *Engine) SetEntityState(ctx context.Context, kind models.Kind, id string, change StateChange) (tracker.DispatchReport, error) {
	if change.Status == nil && change.Priority == nil {
		return tracker.DispatchReport{}, fmt.Errorf("%w: status or priority required", models.ErrInvalidEntity)
	}
	return e.tracker.Update(ctx, kind, id, func(u *tracker.UnitOfWork) error {
		if change.Status != nil {
			if err := u.SetStatus(*change.Status); err != nil {
				return err
			}
		}
		if change.Priority != nil {
			if err := u.SetPriority(*change.Priority); err != nil {
				return err
			}
		}
		return nil
	})
}

// LinkEntity creates the remote issue for a single unlinked entity.
func (e *Engine) LinkEntity(ctx context.Context, kind models.Kind, id string) (*models.RemoteRef, error) {
	ent, err := store.Get(ctx, e.store, kind, id)
	if err != nil {
		return nil, err
	}
	return e.dispatcher.CreateRemote(ctx, ent)
}
