package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/rs/zerolog"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/dispatcher"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/github"
	ghtest "github.com/HerrSensei/ai-lab-filled-sub001/internal/github/testing"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/labels"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/models"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/store"
)

type fixture struct {
	store *store.SQLiteStore
	fake  *ghtest.FakeTracker
	d     *dispatcher.Dispatcher
	rec   *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	fake := ghtest.NewFakeTracker()
	gw := github.NewGateway(fake, 0, zerolog.Nop())
	codec := labels.NewCodec(labels.DefaultTaxonomy())
	d := dispatcher.New(st, gw, codec, zerolog.Nop())
	return &fixture{store: st, fake: fake, d: d, rec: New(st, d, gw, codec, zerolog.Nop())}
}

func (f *fixture) add(t *testing.T, kind models.Kind, id, status, priority string) {
	t.Helper()
	err := store.Update(context.Background(), f.store, func(s store.Session) error {
		_, err := s.CreateEntity(context.Background(), &models.Entity{
			ID: id, Kind: kind, Title: "title " + id, Status: status, Priority: priority,
		})
		return err
	})
	if err != nil {
		t.Fatalf("CreateEntity() error = %v", err)
	}
}

func (f *fixture) get(t *testing.T, kind models.Kind, id string) *models.Entity {
	t.Helper()
	e, err := store.Get(context.Background(), f.store, kind, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	return e
}

func (f *fixture) setLocal(t *testing.T, kind models.Kind, id, status, priority string) {
	t.Helper()
	err := store.Update(context.Background(), f.store, func(s store.Session) error {
		return s.UpdateFields(context.Background(), kind, id, status, priority)
	})
	if err != nil {
		t.Fatalf("UpdateFields() error = %v", err)
	}
}

func TestFullSync_LinksEverythingAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.add(t, models.KindWorkItem, "wi-1", "todo", "high")
	f.add(t, models.KindIdea, "idea-1", "new", "low")
	f.add(t, models.KindProject, "proj-1", "planning", "medium")

	first := f.rec.FullSync(context.Background())
	if first.Created != 3 || first.Errors != 0 {
		t.Fatalf("first run = %+v", first)
	}
	for _, ref := range []models.EntityRef{
		{Kind: models.KindWorkItem, ID: "wi-1"},
		{Kind: models.KindIdea, ID: "idea-1"},
		{Kind: models.KindProject, ID: "proj-1"},
	} {
		if !f.get(t, ref.Kind, ref.ID).Linked() {
			t.Fatalf("%s not linked", ref)
		}
	}

	second := f.rec.FullSync(context.Background())
	if second.Created != 0 || second.Updated != 0 || second.Unchanged != 3 || second.Errors != 0 {
		t.Fatalf("second run = %+v", second)
	}
	if n := len(f.fake.CreateIssueCalls); n != 3 {
		t.Fatalf("create calls = %d, want 3", n)
	}
	if n := len(f.fake.ReplaceLabelsCalls); n != 0 {
		t.Fatalf("replace calls = %d, want 0", n)
	}
}

func TestFullSync_LocalWinsConflict(t *testing.T) {
	f := newFixture(t)
	f.add(t, models.KindWorkItem, "wi-1", "todo", "high")
	f.rec.FullSync(context.Background())

	f.setLocal(t, models.KindWorkItem, "wi-1", "done", "high")

	result := f.rec.FullSync(context.Background())
	if result.Updated != 1 || result.Errors != 0 {
		t.Fatalf("result = %+v", result)
	}
	if n := len(f.fake.ReplaceLabelsCalls); n != 1 {
		t.Fatalf("replace calls = %d, want exactly 1", n)
	}
	got := f.fake.Issue(1).Labels
	if !slices.Contains(got, "status:done") || slices.Contains(got, "status:todo") {
		t.Fatalf("remote labels = %v", got)
	}
	if e := f.get(t, models.KindWorkItem, "wi-1"); e.Status != "done" {
		t.Fatalf("local status changed to %q", e.Status)
	}
}

func TestFullSync_RemoteEditIsOverwrittenButExtrasKept(t *testing.T) {
	f := newFixture(t)
	f.add(t, models.KindWorkItem, "wi-1", "in_progress", "high")
	f.rec.FullSync(context.Background())

	f.fake.SetIssueLabels(1, []string{"work-item", "status:done", "priority:low", "good first issue"})

	result := f.rec.FullSync(context.Background())
	if result.Updated != 1 {
		t.Fatalf("result = %+v", result)
	}
	want := []string{"work-item", "status:in_progress", "priority:high", "good first issue"}
	if got := f.fake.Issue(1).Labels; !slices.Equal(got, want) {
		t.Fatalf("remote labels = %v, want %v", got, want)
	}
	if e := f.get(t, models.KindWorkItem, "wi-1"); e.Status != "in_progress" || e.Priority != "high" {
		t.Fatalf("local state pulled from remote: %+v", e)
	}
}

func TestFullSync_PartialFailure(t *testing.T) {
	f := newFixture(t)
	f.add(t, models.KindWorkItem, "wi-1", "todo", "low")
	f.add(t, models.KindWorkItem, "wi-2", "todo", "low")
	f.add(t, models.KindWorkItem, "wi-3", "todo", "low")

	f.fake.CreateIssueFunc = func(req github.IssueRequest) error {
		if req.Title == "[wi-2] title wi-2" {
			return errors.New("422 validation failed")
		}
		return nil
	}

	result := f.rec.FullSync(context.Background())
	if result.Created != 2 || result.Errors != 1 {
		t.Fatalf("result = %+v, want created=2 errors=1", result)
	}
	if _, ok := result.ErrorDetails["work_item/wi-2"]; !ok {
		t.Fatalf("error details = %v", result.ErrorDetails)
	}
	if !f.get(t, models.KindWorkItem, "wi-1").Linked() || !f.get(t, models.KindWorkItem, "wi-3").Linked() {
		t.Fatal("entities around the failure must be linked")
	}
	if f.get(t, models.KindWorkItem, "wi-2").Linked() {
		t.Fatal("failed entity must stay unlinked")
	}
}

func TestFullSync_StaleCacheRefreshedWithoutRemoteWrite(t *testing.T) {
	f := newFixture(t)
	f.add(t, models.KindIdea, "idea-1", "new", "medium")
	f.rec.FullSync(context.Background())

	remote := []string{"idea", "status:new", "priority:medium", "discussion"}
	f.fake.SetIssueLabels(1, remote)
	before := f.fake.MutatingCalls()

	result := f.rec.FullSync(context.Background())
	if result.Unchanged != 1 || result.Updated != 0 {
		t.Fatalf("result = %+v", result)
	}
	if f.fake.MutatingCalls() != before {
		t.Fatal("no remote write expected")
	}
	if got := f.get(t, models.KindIdea, "idea-1").RemoteLabels; !slices.Equal(got, remote) {
		t.Fatalf("cached labels = %v", got)
	}
}

func TestFullSync_MissingManagedLabelIsRepaired(t *testing.T) {
	f := newFixture(t)
	f.add(t, models.KindWorkItem, "wi-1", "todo", "medium")
	f.rec.FullSync(context.Background())

	// Decodes to the defaults, which equal local state, but the labels are gone.
	f.fake.SetIssueLabels(1, []string{"work-item"})

	result := f.rec.FullSync(context.Background())
	if result.Updated != 1 {
		t.Fatalf("result = %+v", result)
	}
	got := labels.LabelSet(f.fake.Issue(1).Labels)
	if !got.Contains("status:todo") || !got.Contains("priority:medium") {
		t.Fatalf("remote labels = %v", got)
	}
}

func TestFullSync_ListingFailureFallsBackToGetIssue(t *testing.T) {
	f := newFixture(t)
	f.add(t, models.KindWorkItem, "wi-1", "todo", "low")
	f.add(t, models.KindWorkItem, "wi-2", "todo", "low")
	f.rec.FullSync(context.Background())

	f.fake.ListIssuesFunc = func() error { return errors.New("500") }
	result := f.rec.FullSync(context.Background())
	if result.Errors != 0 || result.Unchanged != 2 {
		t.Fatalf("result = %+v", result)
	}
	if n := len(f.fake.GetIssueCalls); n != 2 {
		t.Fatalf("get calls = %d, want 2", n)
	}
}

func TestFullSync_ListsRemoteOnce(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"wi-1", "wi-2", "wi-3"} {
		f.add(t, models.KindWorkItem, id, "todo", "low")
	}
	f.rec.FullSync(context.Background())
	f.fake.ListIssuesCalls = 0

	f.rec.FullSync(context.Background())
	if f.fake.ListIssuesCalls != 1 || len(f.fake.GetIssueCalls) != 0 {
		t.Fatalf("list calls = %d, get calls = %d", f.fake.ListIssuesCalls, len(f.fake.GetIssueCalls))
	}
}

func TestFullSync_MissingRemoteIssueRecorded(t *testing.T) {
	f := newFixture(t)
	f.add(t, models.KindWorkItem, "wi-1", "todo", "low")
	f.add(t, models.KindWorkItem, "wi-2", "todo", "low")
	err := store.Update(context.Background(), f.store, func(s store.Session) error {
		return s.UpdateRemoteRef(context.Background(), models.KindWorkItem, "wi-1", 404, "https://example.com/404")
	})
	if err != nil {
		t.Fatalf("UpdateRemoteRef() error = %v", err)
	}

	result := f.rec.FullSync(context.Background())
	if result.Errors != 1 || result.Created != 1 {
		t.Fatalf("result = %+v", result)
	}
	if _, ok := result.ErrorDetails["work_item/wi-1"]; !ok {
		t.Fatalf("error details = %v", result.ErrorDetails)
	}
}

func TestFullSync_CancelledContext(t *testing.T) {
	f := newFixture(t)
	f.add(t, models.KindWorkItem, "wi-1", "todo", "low")
	f.add(t, models.KindIdea, "idea-1", "new", "low")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := f.rec.FullSync(ctx)
	if result.Errors == 0 {
		t.Fatalf("result = %+v, want errors for skipped entities", result)
	}
	if f.fake.TotalCalls() != 0 {
		t.Fatalf("remote calls = %d, want 0", f.fake.TotalCalls())
	}
}

func TestFullSync_CancelledAfterCreateKeepsLink(t *testing.T) {
	f := newFixture(t)
	f.add(t, models.KindWorkItem, "wi-1", "todo", "low")
	f.add(t, models.KindWorkItem, "wi-2", "todo", "low")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.fake.CreateIssueFunc = func(github.IssueRequest) error {
		cancel()
		return nil
	}

	first := f.rec.FullSync(ctx)
	if first.Created != 1 || first.Errors != 1 {
		t.Fatalf("first run = %+v, want wi-1 created and wi-2 skipped", first)
	}
	if !f.get(t, models.KindWorkItem, "wi-1").Linked() {
		t.Fatal("wi-1 should stay linked to the issue created before cancellation")
	}

	f.fake.CreateIssueFunc = nil
	second := f.rec.FullSync(context.Background())
	if second.Created != 1 || second.Errors != 0 {
		t.Fatalf("second run = %+v", second)
	}
	if n := len(f.fake.CreateIssueCalls); n != 2 {
		t.Fatalf("create calls = %d, want one per entity", n)
	}
	a, b := f.get(t, models.KindWorkItem, "wi-1"), f.get(t, models.KindWorkItem, "wi-2")
	if a.Remote.ID == b.Remote.ID {
		t.Fatalf("entities share issue #%d", a.Remote.ID)
	}
}

func TestFullSync_CommitDuringPassIsNotRolledBack(t *testing.T) {
	f := newFixture(t)
	f.add(t, models.KindWorkItem, "wi-1", "todo", "high")
	f.rec.FullSync(context.Background())

	// An operator label makes the observed set differ from the cache.
	if _, err := f.fake.ReplaceLabels(context.Background(), 1, []string{"work-item", "status:todo", "priority:high", "needs-triage"}); err != nil {
		t.Fatalf("ReplaceLabels() error = %v", err)
	}

	committed := false
	f.fake.ListIssuesFunc = func() error {
		if committed {
			return nil
		}
		committed = true
		f.setLocal(t, models.KindWorkItem, "wi-1", "done", "high")
		return f.d.SyncStatus(context.Background(), models.KindWorkItem, "wi-1", "done")
	}

	result := f.rec.FullSync(context.Background())
	if result.Errors != 0 {
		t.Fatalf("result = %+v", result)
	}

	e := f.get(t, models.KindWorkItem, "wi-1")
	remote := f.fake.Issue(1).Labels
	if e.Status != "done" || !slices.Contains(remote, "status:done") {
		t.Fatalf("local status = %q, remote labels = %v", e.Status, remote)
	}
	if !slices.Contains(e.RemoteLabels, "status:done") || slices.Contains(e.RemoteLabels, "status:todo") {
		t.Fatalf("cached labels = %v, want the pushed set", e.RemoteLabels)
	}
}

func TestFullSync_DriftRepairPushesLatestLocalState(t *testing.T) {
	f := newFixture(t)
	f.add(t, models.KindWorkItem, "wi-1", "todo", "high")
	f.rec.FullSync(context.Background())
	f.setLocal(t, models.KindWorkItem, "wi-1", "done", "high")

	changed := false
	f.fake.ListIssuesFunc = func() error {
		if !changed {
			changed = true
			f.setLocal(t, models.KindWorkItem, "wi-1", "review", "high")
		}
		return nil
	}

	result := f.rec.FullSync(context.Background())
	if result.Updated != 1 || result.Errors != 0 {
		t.Fatalf("result = %+v", result)
	}
	remote := f.fake.Issue(1).Labels
	if !slices.Contains(remote, "status:review") || slices.Contains(remote, "status:done") {
		t.Fatalf("remote labels = %v, want status:review", remote)
	}
	if cached := f.get(t, models.KindWorkItem, "wi-1").RemoteLabels; !slices.Equal(cached, remote) {
		t.Fatalf("cached labels = %v, remote = %v", cached, remote)
	}
}
