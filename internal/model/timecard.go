package model

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/timecards/internal/errs"
)

// TimecardVersion and LineVersion tag the wire representations.
const (
	TimecardVersion = "timecard-0.1"
	LineVersion     = "line-0.1"
)

// TimecardIdentity identifies a timecard in every reference URL.
type TimecardIdentity string

// Clock supplies timestamps for transitions and recorded lines.
type Clock interface {
	Now() time.Time
}

// IDGenerator supplies fresh unique identifiers.
type IDGenerator interface {
	NewID() (uuid.UUID, error)
}

// Env holds the collaborators the aggregate consumes. Zero fields fall back to
// the system clock (UTC) and random V4 UUIDs.
type Env struct {
	Clock Clock
	IDs   IDGenerator
}

func (e Env) now() time.Time {
	if e.Clock == nil {
		return time.Now().UTC()
	}
	return e.Clock.Now()
}

func (e Env) newID() (uuid.UUID, error) {
	if e.IDs == nil {
		return uuid.NewV4()
	}
	return e.IDs.NewID()
}

// Timecard is the aggregate root: a transition log and the lines of one resource.
//
// Invariants:
//   - the transition log is never empty; its first element is Entered (draft)
//   - transitions are only appended
//   - line identifiers are unique within the timecard
type Timecard struct {
	Resource         int
	Identity         TimecardIdentity
	UniqueIdentifier uuid.UUID
	Opened           time.Time
	RecordIdentity   int
	RecordVersion    int

	transitions []Transition
	lines       []*AnnotatedTimecardLine
	env         Env
}

// NewTimecard opens a draft timecard for resource.
func NewTimecard(resource int, env Env) (*Timecard, error) {
	ident, err := env.newID()
	if err != nil {
		return nil, fmt.Errorf("timecard identity: %w", err)
	}
	unique, err := env.newID()
	if err != nil {
		return nil, fmt.Errorf("timecard unique identifier: %w", err)
	}
	now := env.now()
	return &Timecard{
		Resource:         resource,
		Identity:         TimecardIdentity(ident.String()),
		UniqueIdentifier: unique,
		Opened:           now,
		transitions:      []Transition{NewTransition(Entered{Resource: resource}, now)},
		lines:            []*AnnotatedTimecardLine{},
		env:              env,
	}, nil
}

// Restore rebuilds a timecard from storage. tc supplies the scalar fields.
func Restore(tc Timecard, transitions []Transition, lines []*AnnotatedTimecardLine) (*Timecard, error) {
	if len(transitions) == 0 {
		return nil, fmt.Errorf("timecard %s: empty transition log", tc.Identity)
	}
	tc.transitions = append([]Transition(nil), transitions...)
	tc.lines = append([]*AnnotatedTimecardLine{}, lines...)
	return &tc, nil
}

// SetEnv replaces the clock and id generator used by later mutations.
func (t *Timecard) SetEnv(env Env) { t.env = env }

// Status is the target of the latest transition.
func (t *Timecard) Status() Status { return currentStatus(t.transitions) }

// Transitions returns a copy of the transition log in append order.
func (t *Timecard) Transitions() []Transition {
	return append([]Transition(nil), t.transitions...)
}

// Append adds a transition to the log. Whether it is allowed is decided by the caller.
func (t *Timecard) Append(tr Transition) { t.transitions = append(t.transitions, tr) }

// Transition appends a transition for payload stamped with the current time.
func (t *Timecard) Transition(p TransitionPayload) Transition {
	tr := NewTransition(p, t.env.now())
	t.Append(tr)
	return tr
}

// Lines returns the recorded lines. The slice is a copy, the lines are not.
func (t *Timecard) Lines() []*AnnotatedTimecardLine {
	return append([]*AnnotatedTimecardLine{}, t.lines...)
}

// LineCount is the number of recorded lines.
func (t *Timecard) LineCount() int { return len(t.lines) }

// Actions recomputes the action links for the current state.
func (t *Timecard) Actions() []ActionLink {
	return ActionLinks(t.Identity, t.Status(), len(t.lines))
}

// Documents recomputes the document links for the current state.
func (t *Timecard) Documents() []DocumentLink {
	return DocumentLinks(t.Identity, t.Status(), len(t.lines))
}

// Allows reports whether rel is among the current action links.
func (t *Timecard) Allows(rel ActionRelationship) bool {
	for _, l := range t.Actions() {
		if l.Relationship == rel {
			return true
		}
	}
	return false
}

// AddLine records a new line with a fresh identifier.
func (t *Timecard) AddLine(line TimecardLine) (*AnnotatedTimecardLine, error) {
	id, err := t.env.newID()
	if err != nil {
		return nil, fmt.Errorf("line identifier: %w", err)
	}
	for _, l := range t.lines {
		if l.UniqueIdentifier == id {
			return nil, fmt.Errorf("line %s: %w", id, errs.ErrAlreadyExists)
		}
	}
	annotated := newAnnotatedLine(line, t.Identity, id, t.env.now())
	t.lines = append(t.lines, annotated)
	return annotated, nil
}

// ReplaceLine swaps old for a new line built from line, keeping old's identifier.
func (t *Timecard) ReplaceLine(line TimecardLine, old *AnnotatedTimecardLine) (*AnnotatedTimecardLine, error) {
	i := t.indexOf(old)
	if i < 0 {
		return nil, fmt.Errorf("replace line: %w", errs.ErrNotFound)
	}
	annotated := newAnnotatedLine(line, t.Identity, old.UniqueIdentifier, t.env.now())

	rest := make([]*AnnotatedTimecardLine, 0, len(t.lines))
	rest = append(rest, t.lines[:i]...)
	rest = append(rest, t.lines[i+1:]...)
	t.lines = append(rest, annotated)
	return annotated, nil
}

// FindLine looks a line up by the string form of its identifier. If several
// lines share the identifier the last one wins.
func (t *Timecard) FindLine(lineID string) (*AnnotatedTimecardLine, error) {
	var found *AnnotatedTimecardLine
	for _, l := range t.lines {
		if l.UniqueIdentifier.String() == lineID {
			found = l
		}
	}
	if found == nil {
		return nil, fmt.Errorf("line %q: %w", lineID, errs.ErrNotFound)
	}
	return found, nil
}

// UpdateLine applies the present fields of patch to target in place.
func (t *Timecard) UpdateLine(patch UpdatedTimecardLine, target *AnnotatedTimecardLine) (*AnnotatedTimecardLine, error) {
	if t.indexOf(target) < 0 {
		return nil, fmt.Errorf("update line: %w", errs.ErrNotFound)
	}
	target.apply(patch)
	return target, nil
}

// LatestTransitionTo returns the most recent transition into status.
func (t *Timecard) LatestTransitionTo(status Status) (Transition, bool) {
	var (
		latest Transition
		ok     bool
	)
	for _, tr := range t.transitions {
		if tr.TransitionedTo != status {
			continue
		}
		if !ok || !tr.OccurredAt.Before(latest.OccurredAt) {
			latest, ok = tr, true
		}
	}
	return latest, ok
}

// Clone returns a deep copy that shares no mutable state with t.
func (t *Timecard) Clone() *Timecard {
	c := *t
	c.transitions = append([]Transition(nil), t.transitions...)
	c.lines = make([]*AnnotatedTimecardLine, len(t.lines))
	for i, l := range t.lines {
		c.lines[i] = l.clone()
	}
	return &c
}

func (t *Timecard) indexOf(line *AnnotatedTimecardLine) int {
	if line == nil {
		return -1
	}
	for i, l := range t.lines {
		if l == line {
			return i
		}
	}
	return -1
}
