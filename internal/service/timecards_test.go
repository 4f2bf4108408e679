package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/and161185/timecards/internal/errs"
	"github.com/and161185/timecards/internal/metrics"
	"github.com/and161185/timecards/internal/model"
	"github.com/and161185/timecards/internal/repository"
	"github.com/and161185/timecards/internal/repository/memory"
)

type tickClock struct{ t time.Time }

func (c *tickClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

// fakeTimecards wraps the memory store and records Save calls.
type fakeTimecards struct {
	*memory.TimecardStore

	saveErr   error
	saveBases []int
}

var _ repository.TimecardRepository = (*fakeTimecards)(nil)

func (f *fakeTimecards) Save(ctx context.Context, tc *model.Timecard, baseVer int) (int, error) {
	f.saveBases = append(f.saveBases, baseVer)
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	return f.TimecardStore.Save(ctx, tc, baseVer)
}

func newWorkflow(t *testing.T) (*TimecardServiceImpl, *fakeTimecards, *metrics.Metrics) {
	t.Helper()
	repo := &fakeTimecards{TimecardStore: memory.NewTimecardStore()}
	m := metrics.New(prometheus.NewRegistry())
	env := model.Env{Clock: &tickClock{t: time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)}}
	return NewTimecardService(repo, env, m), repo, m
}

var monday = model.TimecardLine{Week: 2, Year: 2024, Day: time.Monday, Hours: 8, Project: "apollo"}

func TestWorkflow_CreateAndLines(t *testing.T) {
	s, _, m := newWorkflow(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, 0); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation for resource 0, got %v", err)
	}

	tc, err := s.Create(ctx, 42)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tc.Status() != model.StatusDraft || tc.RecordIdentity == 0 {
		t.Fatalf("unexpected new timecard: status=%s rec=%d", tc.Status(), tc.RecordIdentity)
	}

	l, err := s.AddLine(ctx, tc.Identity, monday)
	if err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	want := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	if !l.WorkDate().Equal(want) {
		t.Fatalf("WorkDate=%v, want %v", l.WorkDate(), want)
	}

	lines, err := s.Lines(ctx, tc.Identity)
	if err != nil || len(lines) != 1 {
		t.Fatalf("Lines: %v %d", err, len(lines))
	}
	got, err := s.Line(ctx, tc.Identity, l.UniqueIdentifier.String())
	if err != nil || got.Project != "apollo" {
		t.Fatalf("Line: %v %+v", err, got)
	}
	if _, err := s.Line(ctx, tc.Identity, "nope"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound for unknown line, got %v", err)
	}

	if testutil.ToFloat64(m.TimecardsCreated) != 1 || testutil.ToFloat64(m.LinesRecorded) != 1 {
		t.Fatalf("metrics not recorded")
	}
}

func TestWorkflow_ReplaceAndUpdateLine(t *testing.T) {
	s, _, _ := newWorkflow(t)
	ctx := context.Background()
	tc, _ := s.Create(ctx, 1)
	l, _ := s.AddLine(ctx, tc.Identity, monday)
	id := l.UniqueIdentifier.String()

	repl := monday
	repl.Day = time.Tuesday
	repl.Project = "gemini"
	r, err := s.ReplaceLine(ctx, tc.Identity, id, repl)
	if err != nil {
		t.Fatalf("ReplaceLine: %v", err)
	}
	if r.UniqueIdentifier != l.UniqueIdentifier || r.Project != "gemini" {
		t.Fatalf("replace must keep the identifier: %+v", r)
	}

	hours := 3.5
	u, err := s.UpdateLine(ctx, tc.Identity, id, model.UpdatedTimecardLine{Hours: &hours})
	if err != nil {
		t.Fatalf("UpdateLine: %v", err)
	}
	if u.Hours != 3.5 || u.Project != "gemini" {
		t.Fatalf("update applied wrong fields: %+v", u)
	}

	if _, err := s.ReplaceLine(ctx, tc.Identity, uuid.Must(uuid.NewV4()).String(), monday); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound on replace of unknown line, got %v", err)
	}
	if _, err := s.UpdateLine(ctx, tc.Identity, "x", model.UpdatedTimecardLine{}); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound on update of unknown line, got %v", err)
	}

	lines, _ := s.Lines(ctx, tc.Identity)
	if len(lines) != 1 || lines[0].Hours != 3.5 {
		t.Fatalf("stored lines: %+v", lines)
	}
}

func TestWorkflow_SubmitApprove(t *testing.T) {
	s, repo, m := newWorkflow(t)
	ctx := context.Background()
	tc, _ := s.Create(ctx, 1)

	if _, err := s.Submit(ctx, tc.Identity, 1); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("empty timecard cannot be submitted, got %v", err)
	}

	if _, err := s.AddLine(ctx, tc.Identity, monday); err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	tr, err := s.Submit(ctx, tc.Identity, 1)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if tr.TransitionedTo != model.StatusSubmitted {
		t.Fatalf("transition to %s", tr.TransitionedTo)
	}

	if _, err := s.AddLine(ctx, tc.Identity, monday); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("submitted timecard must not accept lines, got %v", err)
	}
	if err := s.Remove(ctx, tc.Identity); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("submitted timecard cannot be removed, got %v", err)
	}

	if _, err := s.Approve(ctx, tc.Identity, 2); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	got, _ := s.Get(ctx, tc.Identity)
	if got.Status() != model.StatusApproved {
		t.Fatalf("status=%s", got.Status())
	}
	if len(got.Actions()) != 0 {
		t.Fatalf("approved timecard offers no actions")
	}
	if _, err := s.Cancel(ctx, tc.Identity, 1, "late"); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("approved timecard cannot be cancelled, got %v", err)
	}

	doc, err := s.Document(ctx, tc.Identity, model.StatusSubmitted)
	if err != nil || doc.TransitionedTo != model.StatusSubmitted {
		t.Fatalf("Document(submitted): %v %+v", err, doc)
	}
	if _, err := s.Document(ctx, tc.Identity, model.StatusRejected); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound for absent document, got %v", err)
	}

	trs, _ := s.Transitions(ctx, tc.Identity)
	if len(trs) != 3 {
		t.Fatalf("transitions=%d, want 3", len(trs))
	}

	// add line, submit, approve each saved against the version they loaded
	wantBases := []int{0, 1, 2}
	if len(repo.saveBases) != len(wantBases) {
		t.Fatalf("saveBases=%v", repo.saveBases)
	}
	for i := range wantBases {
		if repo.saveBases[i] != wantBases[i] {
			t.Fatalf("saveBases=%v, want %v", repo.saveBases, wantBases)
		}
	}

	if testutil.ToFloat64(m.Transitions.WithLabelValues("approved")) != 1 {
		t.Fatalf("approved transition not counted")
	}
}

func TestWorkflow_RejectReturnCancelRemove(t *testing.T) {
	s, _, _ := newWorkflow(t)
	ctx := context.Background()

	tc, _ := s.Create(ctx, 1)
	_, _ = s.AddLine(ctx, tc.Identity, monday)
	_, _ = s.Submit(ctx, tc.Identity, 1)

	if _, err := s.Return(ctx, tc.Identity, 2, "fix hours"); err != nil {
		t.Fatalf("Return: %v", err)
	}
	got, _ := s.Get(ctx, tc.Identity)
	if got.Status() != model.StatusDraft {
		t.Fatalf("return must reopen the draft, got %s", got.Status())
	}
	if _, err := s.AddLine(ctx, tc.Identity, monday); err != nil {
		t.Fatalf("returned draft accepts lines: %v", err)
	}

	_, _ = s.Submit(ctx, tc.Identity, 1)
	tr, err := s.Reject(ctx, tc.Identity, 2, "wrong project")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if p, ok := tr.Payload.(model.Rejection); !ok || p.Reason != "wrong project" || p.Resource != 2 {
		t.Fatalf("payload=%+v", tr.Payload)
	}
	if err := s.Remove(ctx, tc.Identity); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("rejected timecard cannot be removed, got %v", err)
	}

	other, _ := s.Create(ctx, 3)
	if _, err := s.Cancel(ctx, other.Identity, 3, ""); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := s.Remove(ctx, other.Identity); err != nil {
		t.Fatalf("Remove cancelled: %v", err)
	}
	if _, err := s.Get(ctx, other.Identity); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("removed timecard must be gone, got %v", err)
	}

	all, _ := s.List(ctx)
	if len(all) != 1 || all[0].Identity != tc.Identity {
		t.Fatalf("List=%v", all)
	}
}

func TestWorkflow_SaveErrorPropagates(t *testing.T) {
	s, repo, m := newWorkflow(t)
	ctx := context.Background()
	tc, _ := s.Create(ctx, 1)

	repo.saveErr = errs.ErrVersionConflict
	if _, err := s.Cancel(ctx, tc.Identity, 1, ""); !errors.Is(err, errs.ErrVersionConflict) {
		t.Fatalf("want ErrVersionConflict, got %v", err)
	}
	if testutil.ToFloat64(m.Transitions.WithLabelValues("cancelled")) != 0 {
		t.Fatalf("failed save must not be counted")
	}

	got, _ := s.Get(ctx, tc.Identity)
	if got.Status() != model.StatusDraft {
		t.Fatalf("failed save must not change stored state, got %s", got.Status())
	}
}

func TestWorkflow_UnknownTimecard(t *testing.T) {
	s, _, _ := newWorkflow(t)
	ctx := context.Background()

	if _, err := s.Submit(ctx, "missing", 1); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := s.Remove(ctx, "missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := s.Lines(ctx, "missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
