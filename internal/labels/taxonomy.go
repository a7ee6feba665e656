package labels

import (
	"fmt"
	"slices"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/models"
)

// Taxonomy is the label vocabulary: which statuses each kind may take,
// the priority ladder, and the optional component list.
type Taxonomy struct {
	Statuses        map[models.Kind][]string `yaml:"statuses"`
	Priorities      []string                 `yaml:"priorities"`
	Components      []string                 `yaml:"components"`
	DefaultStatus   string                   `yaml:"default_status"`
	DefaultPriority string                   `yaml:"default_priority"`
}

// LabelSpec describes a label to create on a repository.
type LabelSpec struct {
	Name        string
	Color       string
	Description string
}

// DefaultTaxonomy returns the built-in vocabulary.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		Statuses: map[models.Kind][]string{
			models.KindWorkItem: {"todo", "in_progress", "blocked", "review", "done"},
			models.KindIdea:     {"new", "evaluating", "accepted", "rejected", "implemented"},
			models.KindProject:  {"planning", "active", "on_hold", "completed", "archived"},
		},
		Priorities:      []string{"low", "medium", "high", "critical"},
		DefaultStatus:   "todo",
		DefaultPriority: "medium",
	}
}

// WithDefaults fills unset fields from DefaultTaxonomy.
func (t Taxonomy) WithDefaults() Taxonomy {
	def := DefaultTaxonomy()
	if t.Statuses == nil {
		t.Statuses = def.Statuses
	}
	if len(t.Priorities) == 0 {
		t.Priorities = def.Priorities
	}
	if t.DefaultStatus == "" {
		t.DefaultStatus = def.DefaultStatus
	}
	if t.DefaultPriority == "" {
		t.DefaultPriority = def.DefaultPriority
	}
	return t
}

// ValidStatus reports whether status is allowed for kind. A kind without a
// configured list accepts any non-empty status.
func (t Taxonomy) ValidStatus(kind models.Kind, status string) bool {
	if status == "" {
		return false
	}
	allowed, ok := t.Statuses[kind]
	if !ok || len(allowed) == 0 {
		return true
	}
	return slices.Contains(allowed, status)
}

// DefaultStatusFor returns the status new entities of kind start with: the
// global default when the kind allows it, otherwise the kind's first status.
func (t Taxonomy) DefaultStatusFor(kind models.Kind) string {
	if t.ValidStatus(kind, t.DefaultStatus) {
		return t.DefaultStatus
	}
	if allowed := t.Statuses[kind]; len(allowed) > 0 {
		return allowed[0]
	}
	return t.DefaultStatus
}

// ValidPriority reports whether priority is on the ladder.
func (t Taxonomy) ValidPriority(priority string) bool {
	if priority == "" {
		return false
	}
	if len(t.Priorities) == 0 {
		return true
	}
	return slices.Contains(t.Priorities, priority)
}

// KnownComponent reports whether component should be encoded.
func (t Taxonomy) KnownComponent(component string) bool {
	if component == "" || component == "unknown" {
		return false
	}
	if len(t.Components) == 0 {
		return true
	}
	return slices.Contains(t.Components, component)
}

// Validate checks that every configured value can be encoded into a label
// and that the default priority is on the ladder.
func (t Taxonomy) Validate() error {
	t = t.WithDefaults()
	for kind, statuses := range t.Statuses {
		if !kind.Valid() {
			return fmt.Errorf("%w: unknown kind %q in statuses", ErrInvalidValue, kind)
		}
		for _, s := range statuses {
			if err := validateValue(StatusPrefix, s); err != nil {
				return err
			}
		}
	}
	for _, p := range t.Priorities {
		if err := validateValue(PriorityPrefix, p); err != nil {
			return err
		}
	}
	for _, c := range t.Components {
		if err := validateValue(ComponentPrefix, c); err != nil {
			return err
		}
	}
	if !t.ValidPriority(t.DefaultPriority) {
		return fmt.Errorf("%w: default priority %q is not in the priority list", ErrInvalidValue, t.DefaultPriority)
	}
	return nil
}

var priorityColors = map[string]string{
	"low":      "c2e0c6",
	"medium":   "fbca04",
	"high":     "d93f0b",
	"critical": "b60205",
}

// SeedLabels lists every label the codec can emit so a fresh repository
// never rejects an issue label as unknown.
func (t Taxonomy) SeedLabels() []LabelSpec {
	var specs []LabelSpec
	seen := map[string]bool{}
	add := func(s LabelSpec) {
		if seen[s.Name] {
			return
		}
		seen[s.Name] = true
		specs = append(specs, s)
	}

	for _, kind := range models.AllKinds {
		add(LabelSpec{Name: kind.Marker(), Color: "0366d6", Description: "Synced " + kind.Marker()})
	}
	for _, kind := range models.AllKinds {
		for _, status := range t.Statuses[kind] {
			add(LabelSpec{Name: StatusPrefix + status, Color: "ededed", Description: "Status: " + status})
		}
	}
	for _, p := range t.Priorities {
		color, ok := priorityColors[p]
		if !ok {
			color = "fef2c0"
		}
		add(LabelSpec{Name: PriorityPrefix + p, Color: color, Description: "Priority: " + p})
	}
	for _, c := range t.Components {
		add(LabelSpec{Name: ComponentPrefix + c, Color: "5319e7", Description: "Component: " + c})
	}
	return specs
}
