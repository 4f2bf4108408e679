package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/timecards/internal/errs"
	"github.com/and161185/timecards/internal/model"
)

// TimecardRepo implements TimecardRepository using PostgreSQL.
type TimecardRepo struct{ db *DB }

// NewTimecardRepo constructs a timecard repository.
func NewTimecardRepo(db *DB) *TimecardRepo { return &TimecardRepo{db: db} }

const (
	selTimecard = `
SELECT rec_id, id, unique_id, resource, opened, ver
FROM timecards`
	selTransitions = `
SELECT transitioned_to, occurred_at, kind, payload
FROM timecard_transitions WHERE timecard_id=$1 ORDER BY seq ASC`
	selLines = `
SELECT unique_id, week, year, day, hours, project, recorded, work_date,
       period_from, period_to, line_number, rec_id, rec_version
FROM timecard_lines WHERE timecard_id=$1 ORDER BY seq ASC`
	insTransition = `
INSERT INTO timecard_transitions (timecard_id, seq, transitioned_to, occurred_at, kind, payload)
VALUES ($1,$2,$3,$4,$5,$6)`
	insLine = `
INSERT INTO timecard_lines (timecard_id, seq, unique_id, week, year, day, hours, project, recorded,
                            work_date, period_from, period_to, line_number, rec_id, rec_version)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	selVerForUpdate = `SELECT ver FROM timecards WHERE id=$1 FOR UPDATE`
)

// Create inserts the timecard with its transition log and lines in one transaction.
func (r *TimecardRepo) Create(ctx context.Context, tc *model.Timecard) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const ins = `
INSERT INTO timecards (id, unique_id, resource, opened, ver)
VALUES ($1,$2,$3,$4,0)
RETURNING rec_id`
	var recID int
	if err = tx.QueryRow(ctx, ins, string(tc.Identity), tc.UniqueIdentifier, tc.Resource, tc.Opened).Scan(&recID); err != nil {
		if isUniqueViolation(err) {
			return errs.ErrAlreadyExists
		}
		return err
	}
	if err = insertTransitions(ctx, tx, tc.Identity, tc.Transitions(), 0); err != nil {
		return err
	}
	if err = insertLines(ctx, tx, tc.Identity, tc.Lines()); err != nil {
		return err
	}
	tc.RecordIdentity = recID
	tc.RecordVersion = 0
	return nil
}

// Get loads a timecard with its transitions and lines from one snapshot.
func (r *TimecardRepo) Get(ctx context.Context, id model.TimecardIdentity) (tc *model.Timecard, err error) {
	err = r.read(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, selTimecard+` WHERE id=$1`, string(id))
		if err != nil {
			return err
		}
		heads, err := scanHeads(rows)
		if err != nil {
			return err
		}
		if len(heads) == 0 {
			return errs.ErrNotFound
		}
		tc, err = r.load(ctx, tx, heads[0])
		return err
	})
	if err != nil {
		return nil, err
	}
	return tc, nil
}

// List loads every timecard ordered by record identity from one snapshot.
func (r *TimecardRepo) List(ctx context.Context) (out []*model.Timecard, err error) {
	err = r.read(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, selTimecard+` ORDER BY rec_id ASC`)
		if err != nil {
			return err
		}
		heads, err := scanHeads(rows)
		if err != nil {
			return err
		}
		out = make([]*model.Timecard, 0, len(heads))
		for _, h := range heads {
			tc, err := r.load(ctx, tx, h)
			if err != nil {
				return err
			}
			out = append(out, tc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// readOnly is a repeatable-read snapshot so a header is never paired with
// transitions or lines from a later save.
var readOnly = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

func (r *TimecardRepo) read(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, readOnly)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()
	return fn(tx)
}

// Save appends new transitions, rewrites lines and bumps the version (ver++) with base version check.
func (r *TimecardRepo) Save(ctx context.Context, tc *model.Timecard, baseVer int) (newVer int, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	var curVer int
	if err = tx.QueryRow(ctx, selVerForUpdate, string(tc.Identity)).Scan(&curVer); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, errs.ErrNotFound
		}
		return 0, err
	}
	if curVer != baseVer {
		return 0, errs.ErrVersionConflict
	}

	const cnt = `SELECT COUNT(*) FROM timecard_transitions WHERE timecard_id=$1`
	var stored int
	if err = tx.QueryRow(ctx, cnt, string(tc.Identity)).Scan(&stored); err != nil {
		return 0, err
	}
	trs := tc.Transitions()
	if stored > len(trs) {
		return 0, fmt.Errorf("timecard %s: transition log shrank (%d < %d): %w",
			tc.Identity, len(trs), stored, errs.ErrVersionConflict)
	}
	if err = insertTransitions(ctx, tx, tc.Identity, trs[stored:], stored); err != nil {
		return 0, err
	}

	if _, err = tx.Exec(ctx, `DELETE FROM timecard_lines WHERE timecard_id=$1`, string(tc.Identity)); err != nil {
		return 0, err
	}
	if err = insertLines(ctx, tx, tc.Identity, tc.Lines()); err != nil {
		return 0, err
	}

	newVer = curVer + 1
	const upd = `UPDATE timecards SET ver=$2 WHERE id=$1`
	if _, err = tx.Exec(ctx, upd, string(tc.Identity), newVer); err != nil {
		return 0, err
	}
	return newVer, nil
}

// Delete removes a timecard (transitions and lines cascade) with base version check.
func (r *TimecardRepo) Delete(ctx context.Context, id model.TimecardIdentity, baseVer int) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	var curVer int
	if err = tx.QueryRow(ctx, selVerForUpdate, string(id)).Scan(&curVer); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		return err
	}
	if curVer != baseVer {
		return errs.ErrVersionConflict
	}
	_, err = tx.Exec(ctx, `DELETE FROM timecards WHERE id=$1`, string(id))
	return err
}

func scanHeads(rows pgx.Rows) ([]model.Timecard, error) {
	defer rows.Close()

	var out []model.Timecard
	for rows.Next() {
		var (
			h  model.Timecard
			id string
		)
		if err := rows.Scan(&h.RecordIdentity, &id, &h.UniqueIdentifier, &h.Resource, &h.Opened, &h.RecordVersion); err != nil {
			return nil, err
		}
		h.Identity = model.TimecardIdentity(id)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *TimecardRepo) load(ctx context.Context, q querier, head model.Timecard) (*model.Timecard, error) {
	trs, err := loadTransitions(ctx, q, head.Identity)
	if err != nil {
		return nil, err
	}
	lines, err := loadLines(ctx, q, head.Identity)
	if err != nil {
		return nil, err
	}
	return model.Restore(head, trs, lines)
}

func loadTransitions(ctx context.Context, q querier, id model.TimecardIdentity) ([]model.Transition, error) {
	rows, err := q.Query(ctx, selTransitions, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Transition
	for rows.Next() {
		var (
			to      string
			at      time.Time
			kind    string
			payload []byte
		)
		if err = rows.Scan(&to, &at, &kind, &payload); err != nil {
			return nil, err
		}
		p, err := model.DecodePayload(model.TransitionKind(kind), payload)
		if err != nil {
			return nil, fmt.Errorf("timecard %s: %w", id, err)
		}
		out = append(out, model.Transition{TransitionedTo: model.Status(to), OccurredAt: at, Payload: p})
	}
	return out, rows.Err()
}

func loadLines(ctx context.Context, q querier, id model.TimecardIdentity) ([]*model.AnnotatedTimecardLine, error) {
	rows, err := q.Query(ctx, selLines, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.AnnotatedTimecardLine
	for rows.Next() {
		var (
			l        model.AnnotatedTimecardLine
			lineID   uuid.UUID
			day      int
			workDate time.Time
		)
		if err = rows.Scan(&lineID, &l.Week, &l.Year, &day, &l.Hours, &l.Project, &l.Recorded, &workDate,
			&l.PeriodFrom, &l.PeriodTo, &l.LineNumber, &l.RecordIdentity, &l.RecordVersion); err != nil {
			return nil, err
		}
		l.UniqueIdentifier = lineID
		l.Day = time.Weekday(day)
		l.TimecardIdentity = id
		l.PeriodFrom = calendarDatePtr(l.PeriodFrom)
		l.PeriodTo = calendarDatePtr(l.PeriodTo)
		out = append(out, model.RestoreLine(l, calendarDate(workDate)))
	}
	return out, rows.Err()
}

// calendarDate pins a scanned date to UTC midnight. DATE columns already come
// back that way; a timestamp read in a local zone west of UTC would otherwise
// format as the previous day.
func calendarDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func calendarDatePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := calendarDate(*t)
	return &d
}

func insertTransitions(ctx context.Context, tx pgx.Tx, id model.TimecardIdentity, trs []model.Transition, firstSeq int) error {
	for i, tr := range trs {
		payload, err := json.Marshal(tr.Payload)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, insTransition, string(id), firstSeq+i, string(tr.TransitionedTo),
			tr.OccurredAt, string(tr.Payload.Kind()), payload); err != nil {
			return err
		}
	}
	return nil
}

func insertLines(ctx context.Context, tx pgx.Tx, id model.TimecardIdentity, lines []*model.AnnotatedTimecardLine) error {
	for i, l := range lines {
		if _, err := tx.Exec(ctx, insLine, string(id), i, l.UniqueIdentifier, l.Week, l.Year, int(l.Day),
			l.Hours, l.Project, l.Recorded, l.WorkDate(), l.PeriodFrom, l.PeriodTo, l.LineNumber,
			l.RecordIdentity, l.RecordVersion); err != nil {
			return err
		}
	}
	return nil
}
