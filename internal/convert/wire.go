// Package convert maps the timecard model to its JSON wire representation and back.
package convert

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/timecards/internal/errs"
	"github.com/and161185/timecards/internal/model"
)

const dateLayout = "2006-01-02"

// Day is a weekday written as its English name and read as a name or an ordinal 0 (Sunday) to 6.
type Day time.Weekday

func (d Day) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Weekday(d).String())
}

func (d *Day) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		if n < 0 || n > 6 {
			return fmt.Errorf("%w: day %d out of range", errs.ErrValidation, n)
		}
		*d = Day(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: day must be a name or 0-6", errs.ErrValidation)
	}
	wd, err := ParseDay(s)
	if err != nil {
		return err
	}
	*d = Day(wd)
	return nil
}

// ParseDay accepts a weekday name (case-insensitive, full or three-letter) or a digit 0-6.
func ParseDay(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) == 1 && s[0] >= '0' && s[0] <= '6' {
		return time.Weekday(s[0] - '0'), nil
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		name := strings.ToLower(wd.String())
		if s == name || (len(s) == 3 && s == name[:3]) {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown day %q", errs.ErrValidation, s)
}

// TimecardView is the wire form of a timecard. Lines and transitions are reached through links.
type TimecardView struct {
	ID               string               `json:"id"`
	RecID            int                  `json:"recId"`
	RecVersion       int                  `json:"recVersion"`
	Status           string               `json:"status"`
	Opened           time.Time            `json:"opened"`
	UniqueIdentifier uuid.UUID            `json:"uniqueIdentifier"`
	Actions          []model.ActionLink   `json:"actions"`
	Documentation    []model.DocumentLink `json:"documentation"`
	Version          string               `json:"version"`
}

// LineView is the wire form of a recorded line.
type LineView struct {
	Week             int                `json:"week"`
	Year             int                `json:"year"`
	Day              Day                `json:"day"`
	Hours            float64            `json:"hours"`
	Project          string             `json:"project"`
	Recorded         time.Time          `json:"recorded"`
	WorkDate         string             `json:"workDate"`
	LineNumber       float64            `json:"lineNumber"`
	RecID            int                `json:"recId"`
	RecVersion       int                `json:"recVersion"`
	UniqueIdentifier uuid.UUID          `json:"uniqueIdentifier"`
	PeriodFrom       string             `json:"periodFrom,omitempty"`
	PeriodTo         string             `json:"periodTo,omitempty"`
	Version          string             `json:"version"`
	Actions          []model.ActionLink `json:"actions"`
}

// TransitionView is the wire form of one transition log entry.
type TransitionView struct {
	TransitionedTo string          `json:"transitionedTo"`
	OccurredAt     time.Time       `json:"occurredAt"`
	Kind           string          `json:"kind"`
	Payload        json.RawMessage `json:"payload"`
}

func ToTimecardView(tc *model.Timecard) TimecardView {
	return TimecardView{
		ID:               string(tc.Identity),
		RecID:            tc.RecordIdentity,
		RecVersion:       tc.RecordVersion,
		Status:           string(tc.Status()),
		Opened:           tc.Opened,
		UniqueIdentifier: tc.UniqueIdentifier,
		Actions:          tc.Actions(),
		Documentation:    tc.Documents(),
		Version:          model.TimecardVersion,
	}
}

func ToTimecardViews(tcs []*model.Timecard) []TimecardView {
	out := make([]TimecardView, 0, len(tcs))
	for _, tc := range tcs {
		out = append(out, ToTimecardView(tc))
	}
	return out
}

func ToLineView(l *model.AnnotatedTimecardLine) LineView {
	return LineView{
		Week:             l.Week,
		Year:             l.Year,
		Day:              Day(l.Day),
		Hours:            l.Hours,
		Project:          l.Project,
		Recorded:         l.Recorded,
		WorkDate:         l.WorkDate().Format(dateLayout),
		LineNumber:       l.LineNumber,
		RecID:            l.RecordIdentity,
		RecVersion:       l.RecordVersion,
		UniqueIdentifier: l.UniqueIdentifier,
		PeriodFrom:       formatDate(l.PeriodFrom),
		PeriodTo:         formatDate(l.PeriodTo),
		Version:          model.LineVersion,
		Actions:          l.Actions(),
	}
}

func ToLineViews(lines []*model.AnnotatedTimecardLine) []LineView {
	out := make([]LineView, 0, len(lines))
	for _, l := range lines {
		out = append(out, ToLineView(l))
	}
	return out
}

func ToTransitionView(tr model.Transition) (TransitionView, error) {
	payload, err := json.Marshal(tr.Payload)
	if err != nil {
		return TransitionView{}, err
	}
	return TransitionView{
		TransitionedTo: string(tr.TransitionedTo),
		OccurredAt:     tr.OccurredAt,
		Kind:           string(tr.Payload.Kind()),
		Payload:        payload,
	}, nil
}

func ToTransitionViews(trs []model.Transition) ([]TransitionView, error) {
	out := make([]TransitionView, 0, len(trs))
	for _, tr := range trs {
		v, err := ToTransitionView(tr)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}

// LineRequest is the body of record-line and replace-line.
type LineRequest struct {
	Week    int     `json:"week"`
	Year    int     `json:"year"`
	Day     Day     `json:"day"`
	Hours   float64 `json:"hours"`
	Project string  `json:"project"`
}

func (r LineRequest) Model() model.TimecardLine {
	return model.TimecardLine{Week: r.Week, Year: r.Year, Day: time.Weekday(r.Day), Hours: r.Hours, Project: r.Project}
}

// LinePatch is the body of update-line; absent fields stay unchanged.
type LinePatch struct {
	Week    *int     `json:"week,omitempty"`
	Year    *int     `json:"year,omitempty"`
	Day     *Day     `json:"day,omitempty"`
	Hours   *float64 `json:"hours,omitempty"`
	Project *string  `json:"project,omitempty"`
}

func (p LinePatch) Model() model.UpdatedTimecardLine {
	u := model.UpdatedTimecardLine{Week: p.Week, Year: p.Year, Hours: p.Hours, Project: p.Project}
	if p.Day != nil {
		wd := time.Weekday(*p.Day)
		u.Day = &wd
	}
	return u
}

// TransitionRequest is the optional body of cancel, reject and return.
type TransitionRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Credentials is the body of register and login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenView answers a successful login.
type TokenView struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Resource    int       `json:"resource"`
}

// RegisteredView answers a successful registration.
type RegisteredView struct {
	Resource int `json:"resource"`
}

// ErrorView is the body of every error response.
type ErrorView struct {
	Error string `json:"error"`
}

// Decode reads one JSON value from r into v. An empty body leaves v untouched when allowEmpty is set.
func Decode(r io.Reader, v any, allowEmpty bool) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		if errors.Is(err, errs.ErrValidation) {
			return err
		}
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	return nil
}
