// Package labels translates entity state into the remote label vocabulary
// and back. The label strings are the only channel through which remote
// state is decoded, so their shape must stay stable:
//
//	<kind-marker>  status:<v>  priority:<v>  component:<v>
package labels

import (
	"errors"
	"fmt"
	"strings"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/models"
)

const (
	StatusPrefix    = "status:"
	PriorityPrefix  = "priority:"
	ComponentPrefix = "component:"

	// maxLabelLen is GitHub's limit on label names.
	maxLabelLen = 50
)

// ErrInvalidValue is returned when a value cannot be encoded into a label.
var ErrInvalidValue = errors.New("invalid label value")

// State is the part of an entity recoverable from its labels.
type State struct {
	Status   string
	Priority string
}

// Decoded is the result of Decode. When a field had no matching label the
// default was used and the corresponding flag is set.
type Decoded struct {
	State
	StatusDefaulted   bool
	PriorityDefaulted bool
}

// Ambiguous reports whether either field fell back to its default.
func (d Decoded) Ambiguous() bool {
	return d.StatusDefaulted || d.PriorityDefaulted
}

// Codec maps (kind, status, priority, component) to a LabelSet.
type Codec struct {
	taxonomy Taxonomy
}

// NewCodec builds a codec over the given taxonomy.
func NewCodec(t Taxonomy) *Codec {
	return &Codec{taxonomy: t.WithDefaults()}
}

// Taxonomy returns the vocabulary the codec was built with.
func (c *Codec) Taxonomy() Taxonomy {
	return c.taxonomy
}

// Encode returns the canonical labels for the given state: kind marker,
// status, priority, and component when known.
func (c *Codec) Encode(kind models.Kind, status, priority, component string) (LabelSet, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: kind %q", ErrInvalidValue, kind)
	}
	if err := validateValue(StatusPrefix, status); err != nil {
		return nil, err
	}
	if err := validateValue(PriorityPrefix, priority); err != nil {
		return nil, err
	}

	set := LabelSet{kind.Marker(), StatusPrefix + status, PriorityPrefix + priority}
	component = strings.TrimSpace(component)
	if c.taxonomy.KnownComponent(component) {
		if err := validateValue(ComponentPrefix, component); err != nil {
			return nil, err
		}
		set = append(set, ComponentPrefix+component)
	}
	return set, nil
}

// EncodeEntity encodes the entity's current state.
func (c *Codec) EncodeEntity(e *models.Entity) (LabelSet, error) {
	return c.Encode(e.Kind, e.Status, e.Priority, e.Component)
}

// Decode extracts status and priority from labels. The first label carrying
// each prefix wins; everything else is ignored.
func (c *Codec) Decode(labels []string) Decoded {
	d := Decoded{}
	var gotStatus, gotPriority bool
	for _, l := range labels {
		switch {
		case !gotStatus && strings.HasPrefix(l, StatusPrefix):
			if v := strings.TrimPrefix(l, StatusPrefix); v != "" {
				d.Status = v
				gotStatus = true
			}
		case !gotPriority && strings.HasPrefix(l, PriorityPrefix):
			if v := strings.TrimPrefix(l, PriorityPrefix); v != "" {
				d.Priority = v
				gotPriority = true
			}
		}
	}
	if !gotStatus {
		d.Status = c.taxonomy.DefaultStatus
		d.StatusDefaulted = true
	}
	if !gotPriority {
		d.Priority = c.taxonomy.DefaultPriority
		d.PriorityDefaulted = true
	}
	return d
}

// Managed reports whether label is owned by the codec and may be replaced
// on push.
func Managed(label string) bool {
	if strings.HasPrefix(label, StatusPrefix) ||
		strings.HasPrefix(label, PriorityPrefix) ||
		strings.HasPrefix(label, ComponentPrefix) {
		return true
	}
	for _, k := range models.AllKinds {
		if label == k.Marker() {
			return true
		}
	}
	return false
}

// Merge returns target followed by every unmanaged label from existing, so
// informational labels added on the remote survive a push.
func Merge(target LabelSet, existing []string) LabelSet {
	out := append(LabelSet(nil), target...)
	for _, l := range existing {
		if Managed(l) || out.Contains(l) {
			continue
		}
		out = append(out, l)
	}
	return out
}

func validateValue(prefix, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: empty %s value", ErrInvalidValue, strings.TrimSuffix(prefix, ":"))
	}
	if v != strings.TrimSpace(v) {
		return fmt.Errorf("%w: %q has surrounding whitespace", ErrInvalidValue, v)
	}
	for _, p := range []string{StatusPrefix, PriorityPrefix, ComponentPrefix} {
		if strings.HasPrefix(v, p) {
			return fmt.Errorf("%w: %q carries the reserved prefix %q", ErrInvalidValue, v, p)
		}
	}
	if len(prefix)+len(v) > maxLabelLen {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidValue, prefix+v, maxLabelLen)
	}
	return nil
}
