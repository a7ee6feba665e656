// Package provision creates and links a remote repository for each
// project and seeds it with the label taxonomy.
package provision

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/concurrency"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/github"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/models"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/store"
)

// Dispatcher performs the remote side of provisioning.
type Dispatcher interface {
	CreateRepository(ctx context.Context, name, description string, private bool) (*github.Repository, error)
	SeedLabels(ctx context.Context, repo string) (int, error)
}

// Config controls repository creation.
type Config struct {
	Private    bool
	NamePrefix string
	// Workers bounds how many projects SyncAllProjects provisions at once.
	Workers int
}

// Provisioner links projects to repositories.
type Provisioner struct {
	store      store.Store
	dispatcher Dispatcher
	locks      *concurrency.Manager
	cfg        Config
	log        zerolog.Logger
}

// New creates a provisioner. locks may be shared with other components.
func New(st store.Store, d Dispatcher, locks *concurrency.Manager, cfg Config, logger zerolog.Logger) *Provisioner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if locks == nil {
		locks = concurrency.NewManager()
	}
	return &Provisioner{
		store:      st,
		dispatcher: d,
		locks:      locks,
		cfg:        cfg,
		log:        logger.With().Str("component", "provisioner").Logger(),
	}
}

// SeedError reports a repository that was created and linked but whose
// label taxonomy is incomplete. ReseedLabels repairs it.
type SeedError struct {
	Repo models.RepoRef
	Err  error
}

func (e *SeedError) Error() string {
	return fmt.Sprintf("repository %s linked but label seeding incomplete: %v", e.Repo.FullName, e.Err)
}

func (e *SeedError) Unwrap() error {
	return e.Err
}

// CreateRepositoryForProject creates the project's repository, links it and
// seeds its labels. It fails with models.ErrNotFound for an unknown project
// and models.ErrAlreadyLinked when a repository is already linked. When
// only seeding fails the returned ref is non-nil and the error is a
// *SeedError.
func (p *Provisioner) CreateRepositoryForProject(ctx context.Context, projectID string) (*models.RepoRef, error) {
	key := concurrency.ProjectKey(projectID)
	if !p.locks.TryAcquire(key) {
		return nil, fmt.Errorf("project %s: %w", projectID, concurrency.ErrBusy)
	}
	defer p.locks.Release(key)

	project, err := store.Get(ctx, p.store, models.KindProject, projectID)
	if err != nil {
		return nil, err
	}
	if project.Repository != nil {
		return nil, fmt.Errorf("project %s has repository %s: %w", projectID, project.Repository.FullName, models.ErrAlreadyLinked)
	}

	name := RepositoryName(p.cfg.NamePrefix, project.ID, project.Title)
	if name == "" {
		return nil, fmt.Errorf("project %s: cannot derive a repository name", projectID)
	}
	repo, err := p.dispatcher.CreateRepository(ctx, name, project.Title, p.cfg.Private)
	if err != nil {
		return nil, fmt.Errorf("create repository for %s: %w", projectID, err)
	}

	// The repository exists now; its link is saved even if ctx was cancelled.
	ref := models.RepoRef{ID: repo.ID, FullName: repo.FullName, URL: repo.URL}
	saveCtx := context.WithoutCancel(ctx)
	err = store.Update(saveCtx, p.store, func(s store.Session) error {
		return s.SetRepository(saveCtx, projectID, ref)
	})
	if err != nil {
		p.log.Error().Err(err).Str("project", projectID).Str("repository", ref.FullName).Msg("repository created but link could not be saved")
		return nil, fmt.Errorf("link repository %s to %s: %w", ref.FullName, projectID, err)
	}
	p.log.Info().Str("project", projectID).Str("repository", ref.FullName).Msg("project linked to repository")

	if _, err := p.dispatcher.SeedLabels(ctx, ref.FullName); err != nil {
		return &ref, &SeedError{Repo: ref, Err: err}
	}
	return &ref, nil
}

// ReseedLabels ensures the full label taxonomy exists on the project's
// linked repository. Labels that already exist are left alone.
func (p *Provisioner) ReseedLabels(ctx context.Context, projectID string) (int, error) {
	key := concurrency.ProjectKey(projectID)
	if !p.locks.TryAcquire(key) {
		return 0, fmt.Errorf("project %s: %w", projectID, concurrency.ErrBusy)
	}
	defer p.locks.Release(key)

	project, err := store.Get(ctx, p.store, models.KindProject, projectID)
	if err != nil {
		return 0, err
	}
	if project.Repository == nil {
		return 0, fmt.Errorf("project %s has no repository: %w", projectID, models.ErrNotFound)
	}
	return p.dispatcher.SeedLabels(ctx, project.Repository.FullName)
}

// SyncAllProjects provisions every project without a repository. Projects
// run concurrently up to Config.Workers; one failure does not stop the
// others. A project whose repository was linked counts as created even if
// seeding failed, in which case an error is recorded as well.
func (p *Provisioner) SyncAllProjects(ctx context.Context) models.SyncResult {
	result := models.NewSyncResult()

	projects, err := store.List(ctx, p.store, models.KindProject)
	if err != nil {
		result.RecordError(string(models.KindProject), fmt.Errorf("list projects: %w", err))
		return result
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(p.cfg.Workers)

	for _, project := range projects {
		if project.Repository != nil {
			mu.Lock()
			result.Unchanged++
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			ref := project.Ref().String()
			if err := ctx.Err(); err != nil {
				mu.Lock()
				result.RecordError(ref, err)
				mu.Unlock()
				return nil
			}

			linked, err := p.CreateRepositoryForProject(ctx, project.ID)

			mu.Lock()
			defer mu.Unlock()
			if linked != nil {
				result.Created++
			}
			if err != nil {
				result.RecordError(ref, err)
				var seedErr *SeedError
				level := p.log.Warn()
				if !errors.As(err, &seedErr) {
					level = p.log.Error()
				}
				level.Err(err).Str("entity", ref).Msg("project provisioning failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	p.log.Info().
		Int("created", result.Created).
		Int("unchanged", result.Unchanged).
		Int("errors", result.Errors).
		Msg("project sync finished")
	return result
}
