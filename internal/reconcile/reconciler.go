// Package reconcile implements the full-sweep repair pass. Every local
// entity is compared against its remote issue; unlinked entities are
// created remotely and drifted ones are overwritten with local state.
package reconcile

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/rs/zerolog"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/github"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/labels"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/models"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/store"
)

// Dispatcher performs the corrective writes.
type Dispatcher interface {
	CreateRemote(ctx context.Context, e *models.Entity) (*models.RemoteRef, error)
	PushLabels(ctx context.Context, e *models.Entity, existing []string) ([]string, error)
	CacheLabels(ctx context.Context, ref models.EntityRef, since, observed []string) (bool, error)
}

// IssueReader reads remote issues. *github.Gateway implements it.
type IssueReader interface {
	GetIssue(ctx context.Context, number int) (*github.Issue, error)
	ListIssues(ctx context.Context, opts github.ListOptions) iter.Seq2[*github.Issue, error]
}

// Reconciler runs full sync passes. Passes never overlap.
type Reconciler struct {
	store      store.Store
	dispatcher Dispatcher
	remote     IssueReader
	codec      *labels.Codec
	log        zerolog.Logger

	mu sync.Mutex
}

// New creates a reconciler.
func New(st store.Store, d Dispatcher, remote IssueReader, codec *labels.Codec, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:      st,
		dispatcher: d,
		remote:     remote,
		codec:      codec,
		log:        logger.With().Str("component", "reconciler").Logger(),
	}
}

// FullSync reconciles every local entity. Local state wins every conflict.
// It never fails as a whole: per-entity failures are recorded in the
// result and processing moves on. Cancellation is checked between
// entities; entities not reached are recorded as failed.
func (r *Reconciler) FullSync(ctx context.Context) models.SyncResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := models.NewSyncResult()
	entities := r.load(ctx, &result)
	idx := &issueIndex{remote: r.remote, log: r.log}

	for i, e := range entities {
		if err := ctx.Err(); err != nil {
			for _, rest := range entities[i:] {
				result.RecordError(rest.Ref().String(), err)
			}
			r.log.Warn().Err(err).Int("skipped", len(entities)-i).Msg("full sync interrupted")
			break
		}

		outcome, err := r.reconcileOne(ctx, e, idx)
		if err != nil {
			result.RecordError(e.Ref().String(), err)
			r.log.Warn().Err(err).Str("entity", e.Ref().String()).Msg("reconcile failed")
			continue
		}
		switch outcome {
		case outcomeCreated:
			result.Created++
		case outcomeUpdated:
			result.Updated++
		default:
			result.Unchanged++
		}
	}

	r.log.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("unchanged", result.Unchanged).
		Int("errors", result.Errors).
		Msg("full sync finished")
	return result
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeCreated
	outcomeUpdated
)

// load returns entities in kind order, then id order.
func (r *Reconciler) load(ctx context.Context, result *models.SyncResult) []*models.Entity {
	var all []*models.Entity
	for _, kind := range models.AllKinds {
		list, err := store.List(ctx, r.store, kind)
		if err != nil {
			result.RecordError(string(kind), fmt.Errorf("list %s: %w", kind, err))
			r.log.Error().Err(err).Str("kind", string(kind)).Msg("failed to list local entities")
			continue
		}
		all = append(all, list...)
	}
	return all
}

func (r *Reconciler) reconcileOne(ctx context.Context, e *models.Entity, idx *issueIndex) (outcome, error) {
	if !e.Linked() {
		if _, err := r.dispatcher.CreateRemote(ctx, e); err != nil {
			return outcomeUnchanged, err
		}
		return outcomeCreated, nil
	}

	issue, err := idx.get(ctx, e.Remote.ID)
	if err != nil {
		return outcomeUnchanged, err
	}

	decoded := r.codec.Decode(issue.Labels)
	if decoded.Ambiguous() {
		r.log.Warn().
			Str("entity", e.Ref().String()).
			Int("issue", issue.Number).
			Bool("status_defaulted", decoded.StatusDefaulted).
			Bool("priority_defaulted", decoded.PriorityDefaulted).
			Msg("remote labels lack status or priority; using defaults")
	}

	drifted, err := r.drifted(e, decoded, issue.Labels)
	if err != nil {
		return outcomeUnchanged, err
	}
	if drifted {
		r.log.Info().
			Str("entity", e.Ref().String()).
			Str("local_status", e.Status).Str("remote_status", decoded.Status).
			Str("local_priority", e.Priority).Str("remote_priority", decoded.Priority).
			Msg("drift detected; pushing local state")
		if _, err := r.dispatcher.PushLabels(ctx, e, issue.Labels); err != nil {
			return outcomeUnchanged, err
		}
		return outcomeUpdated, nil
	}

	if !labels.LabelSet(e.RemoteLabels).Equal(issue.Labels) {
		if _, err := r.dispatcher.CacheLabels(ctx, e.Ref(), e.RemoteLabels, issue.Labels); err != nil {
			return outcomeUnchanged, err
		}
	}
	return outcomeUnchanged, nil
}

// drifted reports whether the remote decodes to a different state than the
// local one, or is missing one of the labels the local state encodes to.
func (r *Reconciler) drifted(e *models.Entity, decoded labels.Decoded, remote []string) (bool, error) {
	if decoded.Status != e.Status || decoded.Priority != e.Priority {
		return true, nil
	}
	want, err := r.codec.EncodeEntity(e)
	if err != nil {
		return false, err
	}
	have := labels.LabelSet(remote)
	for _, l := range want {
		if !have.Contains(l) {
			return true, nil
		}
	}
	return false, nil
}

// issueIndex lists the tracking repository once, on first use, and falls
// back to single reads for issues the listing did not return.
type issueIndex struct {
	remote IssueReader
	log    zerolog.Logger
	loaded bool
	issues map[int]*github.Issue
}

func (x *issueIndex) get(ctx context.Context, number int) (*github.Issue, error) {
	if !x.loaded {
		x.load(ctx)
	}
	if issue, ok := x.issues[number]; ok {
		return issue, nil
	}
	return x.remote.GetIssue(ctx, number)
}

func (x *issueIndex) load(ctx context.Context) {
	x.loaded = true
	x.issues = map[int]*github.Issue{}
	for issue, err := range x.remote.ListIssues(ctx, github.ListOptions{}) {
		if err != nil {
			x.log.Warn().Err(err).Int("indexed", len(x.issues)).Msg("issue listing failed; falling back to single reads")
			return
		}
		x.issues[issue.Number] = issue
	}
}
