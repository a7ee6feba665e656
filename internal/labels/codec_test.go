package labels

import (
	"errors"
	"strings"
	"testing"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/models"
)

func TestEncode_IncludesKindStatusPriority(t *testing.T) {
	c := NewCodec(DefaultTaxonomy())

	got, err := c.Encode(models.KindWorkItem, "in_progress", "high", "")
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	want := LabelSet{"work-item", "status:in_progress", "priority:high"}
	if !got.Equal(want) || len(got) != len(want) {
		t.Fatalf("Encode = %v, want %v", got, want)
	}
	if got[0] != "work-item" {
		t.Fatalf("kind marker should come first, got %v", got)
	}
}

func TestEncode_Component(t *testing.T) {
	tests := []struct {
		name       string
		components []string
		component  string
		want       bool
	}{
		{name: "empty omitted", component: "", want: false},
		{name: "whitespace omitted", component: "   ", want: false},
		{name: "unknown omitted", component: "unknown", want: false},
		{name: "any accepted without list", component: "api", want: true},
		{name: "listed accepted", components: []string{"api", "ui"}, component: "ui", want: true},
		{name: "unlisted omitted", components: []string{"api"}, component: "infra", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tax := DefaultTaxonomy()
			tax.Components = tt.components
			c := NewCodec(tax)

			got, err := c.Encode(models.KindIdea, "new", "low", tt.component)
			if err != nil {
				t.Fatalf("Encode error: %v", err)
			}
			has := got.Contains(ComponentPrefix + strings.TrimSpace(tt.component))
			if has != tt.want {
				t.Fatalf("component label present = %v, want %v (labels %v)", has, tt.want, got)
			}
		})
	}
}

func TestEncode_RejectsInvalidValues(t *testing.T) {
	c := NewCodec(DefaultTaxonomy())

	tests := []struct {
		name     string
		kind     models.Kind
		status   string
		priority string
	}{
		{name: "unknown kind", kind: "epic", status: "todo", priority: "low"},
		{name: "empty status", kind: models.KindWorkItem, status: "", priority: "low"},
		{name: "blank priority", kind: models.KindWorkItem, status: "todo", priority: "  "},
		{name: "prefixed status", kind: models.KindWorkItem, status: "status:done", priority: "low"},
		{name: "prefixed priority", kind: models.KindWorkItem, status: "todo", priority: "priority:high"},
		{name: "too long", kind: models.KindWorkItem, status: strings.Repeat("x", 60), priority: "low"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Encode(tt.kind, tt.status, tt.priority, "")
			if !errors.Is(err, ErrInvalidValue) {
				t.Fatalf("Encode error = %v, want ErrInvalidValue", err)
			}
		})
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	c := NewCodec(DefaultTaxonomy())
	tax := c.Taxonomy()

	for _, kind := range models.AllKinds {
		for _, status := range tax.Statuses[kind] {
			for _, priority := range tax.Priorities {
				for _, component := range []string{"", "api", "unknown"} {
					set, err := c.Encode(kind, status, priority, component)
					if err != nil {
						t.Fatalf("Encode(%s,%s,%s,%s): %v", kind, status, priority, component, err)
					}
					got := c.Decode(set)
					if got.Status != status || got.Priority != priority {
						t.Fatalf("Decode(Encode(%s,%s,%s)) = %+v", kind, status, priority, got.State)
					}
					if got.Ambiguous() {
						t.Fatalf("round trip should not be ambiguous: %+v", got)
					}
				}
			}
		}
	}
}

func TestDecode_FirstMatchWinsAndExtrasIgnored(t *testing.T) {
	c := NewCodec(DefaultTaxonomy())

	got := c.Decode([]string{"bug", "status:review", "priority:low", "status:done", "good first issue"})
	if got.Status != "review" {
		t.Errorf("Status = %q, want review", got.Status)
	}
	if got.Priority != "low" {
		t.Errorf("Priority = %q, want low", got.Priority)
	}
}

func TestDecode_Defaults(t *testing.T) {
	c := NewCodec(DefaultTaxonomy())

	got := c.Decode([]string{"work-item", "status:"})
	if got.Status != "todo" || !got.StatusDefaulted {
		t.Errorf("Status = %q (defaulted=%v), want todo defaulted", got.Status, got.StatusDefaulted)
	}
	if got.Priority != "medium" || !got.PriorityDefaulted {
		t.Errorf("Priority = %q (defaulted=%v), want medium defaulted", got.Priority, got.PriorityDefaulted)
	}
	if !got.Ambiguous() {
		t.Error("Ambiguous() = false, want true")
	}
}

func TestMerge_KeepsUnmanagedLabels(t *testing.T) {
	target := LabelSet{"work-item", "status:done", "priority:high"}
	existing := []string{"work-item", "status:todo", "priority:high", "component:api", "bug", "help wanted"}

	got := Merge(target, existing)
	want := LabelSet{"work-item", "status:done", "priority:high", "bug", "help wanted"}
	if len(got) != len(want) || !got.Equal(want) {
		t.Fatalf("Merge = %v, want %v", got, want)
	}
	if got.Contains("status:todo") {
		t.Fatal("stale status label should be dropped")
	}
}

func TestSeedLabels_CoversEncodableLabels(t *testing.T) {
	tax := DefaultTaxonomy()
	tax.Components = []string{"api"}
	c := NewCodec(tax)

	seeded := map[string]bool{}
	for _, s := range tax.SeedLabels() {
		if seeded[s.Name] {
			t.Fatalf("duplicate seed label %q", s.Name)
		}
		if s.Color == "" {
			t.Fatalf("seed label %q has no color", s.Name)
		}
		seeded[s.Name] = true
	}

	for _, kind := range models.AllKinds {
		for _, status := range tax.Statuses[kind] {
			set, err := c.Encode(kind, status, "critical", "api")
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			for _, l := range set {
				if !seeded[l] {
					t.Errorf("label %q is encodable but not seeded", l)
				}
			}
		}
	}
}

func TestTaxonomy_ValidStatusAndPriority(t *testing.T) {
	tax := DefaultTaxonomy()

	if !tax.ValidStatus(models.KindIdea, "accepted") {
		t.Error("accepted should be valid for ideas")
	}
	if tax.ValidStatus(models.KindWorkItem, "accepted") {
		t.Error("accepted should not be valid for work items")
	}
	if !tax.ValidPriority("critical") || tax.ValidPriority("urgent") {
		t.Error("priority ladder validation mismatch")
	}

	open := Taxonomy{}
	if !open.ValidStatus(models.KindWorkItem, "anything") {
		t.Error("kind without configured statuses should accept any value")
	}
	if open.ValidStatus(models.KindWorkItem, "") {
		t.Error("empty status is never valid")
	}
}

func TestLabelSet_Equal(t *testing.T) {
	a := LabelSet{"x", "y", "y"}
	if !a.Equal([]string{"y", "x"}) {
		t.Error("sets with same members should be equal")
	}
	if a.Equal([]string{"x"}) {
		t.Error("sets with different members should differ")
	}
}

func TestTaxonomy_Validate(t *testing.T) {
	if err := DefaultTaxonomy().Validate(); err != nil {
		t.Fatalf("default taxonomy invalid: %v", err)
	}

	tests := []struct {
		name string
		tax  Taxonomy
	}{
		{name: "prefixed status", tax: Taxonomy{Statuses: map[models.Kind][]string{models.KindIdea: {"status:new"}}}},
		{name: "unknown kind", tax: Taxonomy{Statuses: map[models.Kind][]string{"epic": {"open"}}}},
		{name: "blank priority", tax: Taxonomy{Priorities: []string{"low", " "}}},
		{name: "default priority off ladder", tax: Taxonomy{Priorities: []string{"p1", "p2"}}},
		{name: "long component", tax: Taxonomy{Components: []string{strings.Repeat("c", 60)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.tax.Validate(); !errors.Is(err, ErrInvalidValue) {
				t.Fatalf("Validate() = %v, want ErrInvalidValue", err)
			}
		})
	}
}

func TestTaxonomy_DefaultStatusFor(t *testing.T) {
	tax := DefaultTaxonomy()
	tests := map[models.Kind]string{
		models.KindWorkItem: "todo",
		models.KindIdea:     "new",
		models.KindProject:  "planning",
	}
	for kind, want := range tests {
		if got := tax.DefaultStatusFor(kind); got != want {
			t.Errorf("DefaultStatusFor(%s) = %q, want %q", kind, got, want)
		}
	}
}
