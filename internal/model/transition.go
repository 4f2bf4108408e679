package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle stage of a timecard, derived from its transitions.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// TransitionKind names a payload variant; it is what storage keeps next to the payload JSON.
type TransitionKind string

const (
	KindEntered      TransitionKind = "entered"
	KindSubmittal    TransitionKind = "submittal"
	KindApproval     TransitionKind = "approval"
	KindRejection    TransitionKind = "rejection"
	KindCancellation TransitionKind = "cancellation"
	KindReturn       TransitionKind = "return"
)

// TransitionPayload carries transition-specific data and decides the target status.
type TransitionPayload interface {
	Kind() TransitionKind
	Target() Status
}

// Entered opens a timecard in draft.
type Entered struct {
	Resource int `json:"resource"`
}

// Submittal hands a draft over for review.
type Submittal struct {
	Resource int `json:"resource"`
}

// Approval accepts a submitted timecard.
type Approval struct {
	Resource int `json:"resource"`
}

// Rejection refuses a submitted timecard.
type Rejection struct {
	Resource int    `json:"resource"`
	Reason   string `json:"reason,omitempty"`
}

// Cancellation abandons a draft or submitted timecard.
type Cancellation struct {
	Resource int    `json:"resource"`
	Reason   string `json:"reason,omitempty"`
}

// Return sends a submitted timecard back to draft.
type Return struct {
	Resource int    `json:"resource"`
	Reason   string `json:"reason,omitempty"`
}

func (Entered) Kind() TransitionKind      { return KindEntered }
func (Submittal) Kind() TransitionKind    { return KindSubmittal }
func (Approval) Kind() TransitionKind     { return KindApproval }
func (Rejection) Kind() TransitionKind    { return KindRejection }
func (Cancellation) Kind() TransitionKind { return KindCancellation }
func (Return) Kind() TransitionKind       { return KindReturn }

func (Entered) Target() Status      { return StatusDraft }
func (Submittal) Target() Status    { return StatusSubmitted }
func (Approval) Target() Status     { return StatusApproved }
func (Rejection) Target() Status    { return StatusRejected }
func (Cancellation) Target() Status { return StatusCancelled }
func (Return) Target() Status       { return StatusDraft }

// Transition is an immutable, timestamped status change.
type Transition struct {
	TransitionedTo Status
	OccurredAt     time.Time
	Payload        TransitionPayload
}

// NewTransition builds a transition whose target status comes from the payload.
func NewTransition(p TransitionPayload, at time.Time) Transition {
	return Transition{TransitionedTo: p.Target(), OccurredAt: at, Payload: p}
}

// DecodePayload restores a payload stored as (kind, JSON).
func DecodePayload(kind TransitionKind, data []byte) (TransitionPayload, error) {
	var p TransitionPayload
	switch kind {
	case KindEntered:
		var v Entered
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		p = v
	case KindSubmittal:
		var v Submittal
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		p = v
	case KindApproval:
		var v Approval
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		p = v
	case KindRejection:
		var v Rejection
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		p = v
	case KindCancellation:
		var v Cancellation
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		p = v
	case KindReturn:
		var v Return
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		p = v
	default:
		return nil, fmt.Errorf("unknown transition kind %q", kind)
	}
	return p, nil
}

// currentStatus returns the target of the latest transition; exact ties go to the one appended last.
func currentStatus(ts []Transition) Status {
	latest := ts[0]
	for _, t := range ts[1:] {
		if !t.OccurredAt.Before(latest.OccurredAt) {
			latest = t
		}
	}
	return latest.TransitionedTo
}
