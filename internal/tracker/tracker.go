// Package tracker detects status and priority transitions on local
// entities. A unit of work snapshots the fields when it begins; on commit
// it writes the final values locally, then emits one ChangeEvent per field
// whose value differs from the snapshot and dispatches it.
package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/labels"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/models"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/store"
)

// ErrClosed is returned when a unit of work is used after Commit or Rollback.
var ErrClosed = errors.New("unit of work already closed")

// Dispatcher receives committed change events.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev models.ChangeEvent) error
}

// DispatchReport describes what happened to the events of one commit.
type DispatchReport struct {
	Events     []models.ChangeEvent    `json:"events"`
	Dispatched int                     `json:"dispatched"`
	Failed     int                     `json:"failed"`
	Errors     map[models.Field]string `json:"errors,omitempty"`
}

// Tracker opens units of work over the store.
type Tracker struct {
	store      store.Store
	dispatcher Dispatcher
	codec      *labels.Codec
	log        zerolog.Logger
}

// New creates a tracker.
func New(st store.Store, d Dispatcher, codec *labels.Codec, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:      st,
		dispatcher: d,
		codec:      codec,
		log:        logger.With().Str("component", "tracker").Logger(),
	}
}

// UnitOfWork collects assignments to one entity's tracked fields.
// Intermediate assignments collapse into a single before/after pair.
type UnitOfWork struct {
	t       *Tracker
	ref     models.EntityRef
	initial labels.State
	current labels.State
	closed  bool
}

// Begin snapshots the entity's tracked fields.
func (t *Tracker) Begin(ctx context.Context, kind models.Kind, id string) (*UnitOfWork, error) {
	e, err := store.Get(ctx, t.store, kind, id)
	if err != nil {
		return nil, err
	}
	snap := labels.State{Status: e.Status, Priority: e.Priority}
	return &UnitOfWork{t: t, ref: e.Ref(), initial: snap, current: snap}, nil
}

// Ref returns the entity the unit of work is bound to.
func (u *UnitOfWork) Ref() models.EntityRef {
	return u.ref
}

// Status returns the pending status.
func (u *UnitOfWork) Status() string {
	return u.current.Status
}

// Priority returns the pending priority.
func (u *UnitOfWork) Priority() string {
	return u.current.Priority
}

// SetStatus assigns a status allowed for the entity's kind.
func (u *UnitOfWork) SetStatus(status string) error {
	if u.closed {
		return ErrClosed
	}
	tax := u.t.codec.Taxonomy()
	if !tax.ValidStatus(u.ref.Kind, status) {
		return fmt.Errorf("%w: status %q is not allowed for %s", labels.ErrInvalidValue, status, u.ref.Kind)
	}
	if _, err := u.t.codec.Encode(u.ref.Kind, status, u.current.Priority, ""); err != nil {
		return err
	}
	u.current.Status = status
	return nil
}

// SetPriority assigns a priority from the priority ladder.
func (u *UnitOfWork) SetPriority(priority string) error {
	if u.closed {
		return ErrClosed
	}
	tax := u.t.codec.Taxonomy()
	if !tax.ValidPriority(priority) {
		return fmt.Errorf("%w: priority %q is not allowed", labels.ErrInvalidValue, priority)
	}
	if _, err := u.t.codec.Encode(u.ref.Kind, u.current.Status, priority, ""); err != nil {
		return err
	}
	u.current.Priority = priority
	return nil
}

// Changes returns the events Commit would emit, in dispatch order.
func (u *UnitOfWork) Changes() []models.ChangeEvent {
	var events []models.ChangeEvent
	for _, f := range models.TrackedFields {
		var before, after string
		switch f {
		case models.FieldStatus:
			before, after = u.initial.Status, u.current.Status
		case models.FieldPriority:
			before, after = u.initial.Priority, u.current.Priority
		}
		if before != after {
			events = append(events, models.ChangeEvent{Entity: u.ref, Field: f, Previous: before, New: after})
		}
	}
	return events
}

// Commit writes changed fields locally and then dispatches one event per
// changed field. Only the local write can fail the commit; dispatch
// failures are logged and reported.
func (u *UnitOfWork) Commit(ctx context.Context) (DispatchReport, error) {
	if u.closed {
		return DispatchReport{}, ErrClosed
	}
	u.closed = true

	events := u.Changes()
	report := DispatchReport{Events: events}
	if len(events) == 0 {
		return report, nil
	}

	err := store.Update(ctx, u.t.store, func(s store.Session) error {
		// Re-read so fields this unit did not touch keep any newer value.
		e, err := s.GetEntity(ctx, u.ref.Kind, u.ref.ID)
		if err != nil {
			return err
		}
		status, priority := e.Status, e.Priority
		for _, ev := range events {
			switch ev.Field {
			case models.FieldStatus:
				status = ev.New
			case models.FieldPriority:
				priority = ev.New
			}
		}
		return s.UpdateFields(ctx, u.ref.Kind, u.ref.ID, status, priority)
	})
	if err != nil {
		return DispatchReport{}, fmt.Errorf("commit %s: %w", u.ref, err)
	}

	for _, ev := range events {
		if err := u.t.dispatcher.Dispatch(ctx, ev); err != nil {
			report.Failed++
			if report.Errors == nil {
				report.Errors = map[models.Field]string{}
			}
			report.Errors[ev.Field] = err.Error()
			u.t.log.Warn().Err(err).
				Str("entity", u.ref.String()).
				Str("field", string(ev.Field)).
				Str("from", ev.Previous).
				Str("to", ev.New).
				Msg("dispatch failed; local change kept")
			continue
		}
		report.Dispatched++
	}
	return report, nil
}

// Rollback discards pending assignments.
func (u *UnitOfWork) Rollback() error {
	if u.closed {
		return ErrClosed
	}
	u.closed = true
	return nil
}

// Update runs fn inside a unit of work and commits it when fn succeeds.
func (t *Tracker) Update(ctx context.Context, kind models.Kind, id string, fn func(*UnitOfWork) error) (DispatchReport, error) {
	u, err := t.Begin(ctx, kind, id)
	if err != nil {
		return DispatchReport{}, err
	}
	if err := fn(u); err != nil {
		_ = u.Rollback()
		return DispatchReport{}, err
	}
	return u.Commit(ctx)
}
