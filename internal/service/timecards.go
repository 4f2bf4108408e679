// Package service contains the timecard workflow and resource authentication.
package service

import (
	"context"
	"fmt"

	"github.com/and161185/timecards/internal/errs"
	"github.com/and161185/timecards/internal/metrics"
	"github.com/and161185/timecards/internal/model"
	"github.com/and161185/timecards/internal/repository"
)

// TimecardService runs the timecard workflow. Each command loads the aggregate,
// checks that the current state offers the matching action, mutates it and
// saves it against the version it was loaded with.
type TimecardService interface {
	Create(ctx context.Context, resource int) (*model.Timecard, error)
	Get(ctx context.Context, id model.TimecardIdentity) (*model.Timecard, error)
	List(ctx context.Context) ([]*model.Timecard, error)
	// Remove deletes a draft or cancelled timecard.
	Remove(ctx context.Context, id model.TimecardIdentity) error

	Lines(ctx context.Context, id model.TimecardIdentity) ([]*model.AnnotatedTimecardLine, error)
	Line(ctx context.Context, id model.TimecardIdentity, lineID string) (*model.AnnotatedTimecardLine, error)
	AddLine(ctx context.Context, id model.TimecardIdentity, line model.TimecardLine) (*model.AnnotatedTimecardLine, error)
	ReplaceLine(ctx context.Context, id model.TimecardIdentity, lineID string, line model.TimecardLine) (*model.AnnotatedTimecardLine, error)
	UpdateLine(ctx context.Context, id model.TimecardIdentity, lineID string, patch model.UpdatedTimecardLine) (*model.AnnotatedTimecardLine, error)

	Transitions(ctx context.Context, id model.TimecardIdentity) ([]model.Transition, error)
	Submit(ctx context.Context, id model.TimecardIdentity, resource int) (model.Transition, error)
	Cancel(ctx context.Context, id model.TimecardIdentity, resource int, reason string) (model.Transition, error)
	Approve(ctx context.Context, id model.TimecardIdentity, resource int) (model.Transition, error)
	Reject(ctx context.Context, id model.TimecardIdentity, resource int, reason string) (model.Transition, error)
	Return(ctx context.Context, id model.TimecardIdentity, resource int, reason string) (model.Transition, error)
	// Document returns the latest transition into status.
	Document(ctx context.Context, id model.TimecardIdentity, status model.Status) (model.Transition, error)
}

type TimecardServiceImpl struct {
	repo    repository.TimecardRepository
	env     model.Env
	metrics *metrics.Metrics
}

// NewTimecardService constructs the workflow service. m may be nil.
func NewTimecardService(repo repository.TimecardRepository, env model.Env, m *metrics.Metrics) *TimecardServiceImpl {
	return &TimecardServiceImpl{repo: repo, env: env, metrics: m}
}

// Create opens a draft timecard for resource.
func (s *TimecardServiceImpl) Create(ctx context.Context, resource int) (*model.Timecard, error) {
	if resource <= 0 {
		return nil, fmt.Errorf("%w: resource must be positive", errs.ErrValidation)
	}
	tc, err := model.NewTimecard(resource, s.env)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, tc); err != nil {
		return nil, err
	}
	s.metrics.IncTimecardsCreated()
	s.metrics.ObserveTransition(string(tc.Status()))
	return tc, nil
}

func (s *TimecardServiceImpl) Get(ctx context.Context, id model.TimecardIdentity) (*model.Timecard, error) {
	tc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	tc.SetEnv(s.env)
	return tc, nil
}

func (s *TimecardServiceImpl) List(ctx context.Context) ([]*model.Timecard, error) {
	return s.repo.List(ctx)
}

func (s *TimecardServiceImpl) Remove(ctx context.Context, id model.TimecardIdentity) error {
	tc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := offered(tc, model.RelRemove); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id, tc.RecordVersion)
}

func (s *TimecardServiceImpl) Lines(ctx context.Context, id model.TimecardIdentity) ([]*model.AnnotatedTimecardLine, error) {
	tc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return tc.Lines(), nil
}

func (s *TimecardServiceImpl) Line(ctx context.Context, id model.TimecardIdentity, lineID string) (*model.AnnotatedTimecardLine, error) {
	tc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return tc.FindLine(lineID)
}

func (s *TimecardServiceImpl) AddLine(ctx context.Context, id model.TimecardIdentity, line model.TimecardLine) (*model.AnnotatedTimecardLine, error) {
	var added *model.AnnotatedTimecardLine
	err := s.mutate(ctx, id, model.RelRecordLine, func(tc *model.Timecard) (err error) {
		added, err = tc.AddLine(line)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncLinesRecorded()
	return added, nil
}

// ReplaceLine swaps the line with a new one keeping its identifier. Only drafts accept line changes.
func (s *TimecardServiceImpl) ReplaceLine(ctx context.Context, id model.TimecardIdentity, lineID string, line model.TimecardLine) (*model.AnnotatedTimecardLine, error) {
	var replaced *model.AnnotatedTimecardLine
	err := s.mutate(ctx, id, model.RelRecordLine, func(tc *model.Timecard) error {
		old, err := tc.FindLine(lineID)
		if err != nil {
			return err
		}
		replaced, err = tc.ReplaceLine(line, old)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncLinesRecorded()
	return replaced, nil
}

func (s *TimecardServiceImpl) UpdateLine(ctx context.Context, id model.TimecardIdentity, lineID string, patch model.UpdatedTimecardLine) (*model.AnnotatedTimecardLine, error) {
	var updated *model.AnnotatedTimecardLine
	err := s.mutate(ctx, id, model.RelRecordLine, func(tc *model.Timecard) error {
		target, err := tc.FindLine(lineID)
		if err != nil {
			return err
		}
		updated, err = tc.UpdateLine(patch, target)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *TimecardServiceImpl) Transitions(ctx context.Context, id model.TimecardIdentity) ([]model.Transition, error) {
	tc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return tc.Transitions(), nil
}

func (s *TimecardServiceImpl) Submit(ctx context.Context, id model.TimecardIdentity, resource int) (model.Transition, error) {
	return s.transition(ctx, id, model.RelSubmit, model.Submittal{Resource: resource})
}

func (s *TimecardServiceImpl) Cancel(ctx context.Context, id model.TimecardIdentity, resource int, reason string) (model.Transition, error) {
	return s.transition(ctx, id, model.RelCancel, model.Cancellation{Resource: resource, Reason: reason})
}

func (s *TimecardServiceImpl) Approve(ctx context.Context, id model.TimecardIdentity, resource int) (model.Transition, error) {
	return s.transition(ctx, id, model.RelApprove, model.Approval{Resource: resource})
}

func (s *TimecardServiceImpl) Reject(ctx context.Context, id model.TimecardIdentity, resource int, reason string) (model.Transition, error) {
	return s.transition(ctx, id, model.RelReject, model.Rejection{Resource: resource, Reason: reason})
}

func (s *TimecardServiceImpl) Return(ctx context.Context, id model.TimecardIdentity, resource int, reason string) (model.Transition, error) {
	return s.transition(ctx, id, model.RelReturn, model.Return{Resource: resource, Reason: reason})
}

func (s *TimecardServiceImpl) Document(ctx context.Context, id model.TimecardIdentity, status model.Status) (model.Transition, error) {
	tc, err := s.Get(ctx, id)
	if err != nil {
		return model.Transition{}, err
	}
	tr, ok := tc.LatestTransitionTo(status)
	if !ok {
		return model.Transition{}, fmt.Errorf("timecard %s has no %s transition: %w", id, status, errs.ErrNotFound)
	}
	return tr, nil
}

func (s *TimecardServiceImpl) transition(ctx context.Context, id model.TimecardIdentity, rel model.ActionRelationship, p model.TransitionPayload) (model.Transition, error) {
	var tr model.Transition
	err := s.mutate(ctx, id, rel, func(tc *model.Timecard) error {
		tr = tc.Transition(p)
		return nil
	})
	if err != nil {
		return model.Transition{}, err
	}
	s.metrics.ObserveTransition(string(tr.TransitionedTo))
	return tr, nil
}

// mutate loads id, checks rel is offered, applies fn and saves against the loaded version.
func (s *TimecardServiceImpl) mutate(ctx context.Context, id model.TimecardIdentity, rel model.ActionRelationship, fn func(*model.Timecard) error) error {
	tc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := offered(tc, rel); err != nil {
		return err
	}
	base := tc.RecordVersion
	if err := fn(tc); err != nil {
		return err
	}
	ver, err := s.repo.Save(ctx, tc, base)
	if err != nil {
		return err
	}
	tc.RecordVersion = ver
	return nil
}

func offered(tc *model.Timecard, rel model.ActionRelationship) error {
	if !tc.Allows(rel) {
		return fmt.Errorf("timecard %s is %s, %s not offered: %w", tc.Identity, tc.Status(), rel, errs.ErrInvalidState)
	}
	return nil
}
