package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// TimecardLine is the hours a resource reports for one day of an ISO week.
type TimecardLine struct {
	Week    int
	Year    int
	Day     time.Weekday
	Hours   float64
	Project string
}

// UpdatedTimecardLine is a partial line update; nil fields are left unchanged.
type UpdatedTimecardLine struct {
	Week    *int
	Year    *int
	Day     *time.Weekday
	Hours   *float64
	Project *string
}

// AnnotatedTimecardLine is a line as recorded on a timecard.
//
// WorkDate is resolved once when the line is recorded and is not recomputed
// when Week, Year or Day are later updated.
type AnnotatedTimecardLine struct {
	TimecardLine

	UniqueIdentifier uuid.UUID
	Recorded         time.Time
	LineNumber       float64
	RecordIdentity   int
	RecordVersion    int
	PeriodFrom       *time.Time
	PeriodTo         *time.Time

	// TimecardIdentity is a copy of the owning timecard's identity, used for links only.
	TimecardIdentity TimecardIdentity

	workDate time.Time
}

func newAnnotatedLine(line TimecardLine, owner TimecardIdentity, id uuid.UUID, now time.Time) *AnnotatedTimecardLine {
	return &AnnotatedTimecardLine{
		TimecardLine:     line,
		UniqueIdentifier: id,
		Recorded:         now,
		TimecardIdentity: owner,
		workDate:         WorkDate(line.Year, line.Week, line.Day),
	}
}

// RestoreLine rebuilds a recorded line from storage, keeping its stored work date.
func RestoreLine(line AnnotatedTimecardLine, workDate time.Time) *AnnotatedTimecardLine {
	line.workDate = workDate
	return &line
}

// WorkDate returns the calendar date resolved when the line was recorded.
func (l *AnnotatedTimecardLine) WorkDate() time.Time { return l.workDate }

// Actions returns the per-line action links.
func (l *AnnotatedTimecardLine) Actions() []ActionLink {
	return LineActionLinks(l.TimecardIdentity, l.UniqueIdentifier)
}

func (l *AnnotatedTimecardLine) apply(p UpdatedTimecardLine) {
	if p.Week != nil {
		l.Week = *p.Week
	}
	if p.Year != nil {
		l.Year = *p.Year
	}
	if p.Day != nil {
		l.Day = *p.Day
	}
	if p.Hours != nil {
		l.Hours = *p.Hours
	}
	if p.Project != nil {
		l.Project = *p.Project
	}
}

func (l *AnnotatedTimecardLine) clone() *AnnotatedTimecardLine {
	c := *l
	if l.PeriodFrom != nil {
		v := *l.PeriodFrom
		c.PeriodFrom = &v
	}
	if l.PeriodTo != nil {
		v := *l.PeriodTo
		c.PeriodTo = &v
	}
	return &c
}
