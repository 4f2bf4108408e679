package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/timecards/internal/convert"
	"github.com/and161185/timecards/internal/errs"
	"github.com/and161185/timecards/internal/model"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var opened = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func newTimecard(t *testing.T) *model.Timecard {
	t.Helper()
	tc, err := model.NewTimecard(42, model.Env{Clock: fixedClock{opened}})
	require.NoError(t, err)
	return tc
}

var headCols = []string{"rec_id", "id", "unique_id", "resource", "opened", "ver"}
var trCols = []string{"transitioned_to", "occurred_at", "kind", "payload"}
var lineCols = []string{"unique_id", "week", "year", "day", "hours", "project", "recorded", "work_date",
	"period_from", "period_to", "line_number", "rec_id", "rec_version"}

func TestTimecardRepo_Create_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTimecardRepo(db)
	ctx := context.Background()
	tc := newTimecard(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO timecards \(id, unique_id, resource, opened, ver\)`).
		WithArgs(string(tc.Identity), tc.UniqueIdentifier, 42, opened).
		WillReturnRows(pgxmock.NewRows([]string{"rec_id"}).AddRow(7))
	mock.ExpectExec(`INSERT INTO timecard_transitions`).
		WithArgs(string(tc.Identity), 0, "draft", opened, "entered", []byte(`{"resource":42}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, r.Create(ctx, tc))
	require.Equal(t, 7, tc.RecordIdentity)
	require.Equal(t, 0, tc.RecordVersion)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimecardRepo_Create_Duplicate(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTimecardRepo(db)
	tc := newTimecard(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO timecards`).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := r.Create(context.Background(), tc)
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestTimecardRepo_Get_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTimecardRepo(db)
	ctx := context.Background()

	uniq := uuid.Must(uuid.NewV4())
	lineID := uuid.Must(uuid.NewV4())
	submitted := opened.Add(time.Hour)
	workDate := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	from := workDate
	to := workDate.AddDate(0, 0, 6)

	mock.ExpectBeginTx(readOnly)
	mock.ExpectQuery(`SELECT rec_id, id, unique_id, resource, opened, ver FROM timecards WHERE id=\$1`).
		WithArgs("tc-1").
		WillReturnRows(pgxmock.NewRows(headCols).AddRow(7, "tc-1", uniq, 42, opened, 3))
	mock.ExpectQuery(`SELECT transitioned_to, occurred_at, kind, payload FROM timecard_transitions`).
		WithArgs("tc-1").
		WillReturnRows(pgxmock.NewRows(trCols).
			AddRow("draft", opened, "entered", []byte(`{"resource":42}`)).
			AddRow("submitted", submitted, "submittal", []byte(`{"resource":42}`)))
	mock.ExpectQuery(`FROM timecard_lines WHERE timecard_id=\$1`).
		WithArgs("tc-1").
		WillReturnRows(pgxmock.NewRows(lineCols).
			AddRow(lineID, 30, 2021, 5, 7.5, "apollo", opened, workDate, &from, &to, 1.0, 0, 0))
	mock.ExpectCommit()

	tc, err := r.Get(ctx, "tc-1")
	require.NoError(t, err)
	require.Equal(t, model.TimecardIdentity("tc-1"), tc.Identity)
	require.Equal(t, 7, tc.RecordIdentity)
	require.Equal(t, 3, tc.RecordVersion)
	require.Equal(t, model.StatusSubmitted, tc.Status())
	require.Len(t, tc.Transitions(), 2)

	lines := tc.Lines()
	require.Len(t, lines, 1)
	l := lines[0]
	require.Equal(t, lineID, l.UniqueIdentifier)
	require.Equal(t, time.Friday, l.Day)
	require.Equal(t, model.TimecardIdentity("tc-1"), l.TimecardIdentity)
	// stored work date wins over what week/year/day would compute now
	require.True(t, l.WorkDate().Equal(workDate))
	require.NotNil(t, l.PeriodTo)
	require.True(t, l.PeriodTo.Equal(to))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimecardRepo_Get_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTimecardRepo(db)

	mock.ExpectBeginTx(readOnly)
	mock.ExpectQuery(`FROM timecards WHERE id=\$1`).
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows(headCols))
	mock.ExpectRollback()

	_, err := r.Get(context.Background(), "nope")
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimecardRepo_Get_BadPayloadKind(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTimecardRepo(db)

	mock.ExpectBeginTx(readOnly)
	mock.ExpectQuery(`FROM timecards WHERE id=\$1`).
		WithArgs("tc-1").
		WillReturnRows(pgxmock.NewRows(headCols).AddRow(1, "tc-1", uuid.Must(uuid.NewV4()), 1, opened, 0))
	mock.ExpectQuery(`FROM timecard_transitions`).
		WithArgs("tc-1").
		WillReturnRows(pgxmock.NewRows(trCols).AddRow("draft", opened, "mystery", []byte(`{}`)))
	mock.ExpectRollback()

	_, err := r.Get(context.Background(), "tc-1")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimecardRepo_Get_WorkDateKeepsCalendarDay(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTimecardRepo(db)

	// 2023-01-02 00:00 UTC as a timestamp scanned on a host eight hours west of UTC
	west := time.FixedZone("PST", -8*60*60)
	workDate := model.WorkDate(2023, 1, time.Monday).In(west)
	from := time.Date(2023, 1, 1, 16, 0, 0, 0, west)
	to := from.AddDate(0, 0, 6)
	require.Equal(t, 1, workDate.Day())

	mock.ExpectBeginTx(readOnly)
	mock.ExpectQuery(`FROM timecards WHERE id=\$1`).
		WithArgs("tc-1").
		WillReturnRows(pgxmock.NewRows(headCols).AddRow(1, "tc-1", uuid.Must(uuid.NewV4()), 1, opened, 0))
	mock.ExpectQuery(`FROM timecard_transitions`).
		WithArgs("tc-1").
		WillReturnRows(pgxmock.NewRows(trCols).AddRow("draft", opened, "entered", []byte(`{"resource":1}`)))
	mock.ExpectQuery(`FROM timecard_lines`).
		WithArgs("tc-1").
		WillReturnRows(pgxmock.NewRows(lineCols).
			AddRow(uuid.Must(uuid.NewV4()), 1, 2023, 1, 8.0, "apollo", opened, workDate, &from, &to, 0.0, 0, 0))
	mock.ExpectCommit()

	tc, err := r.Get(context.Background(), "tc-1")
	require.NoError(t, err)
	l := tc.Lines()[0]
	require.Equal(t, time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), l.WorkDate())
	require.Equal(t, time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), *l.PeriodFrom)
	require.Equal(t, time.Date(2023, 1, 8, 0, 0, 0, 0, time.UTC), *l.PeriodTo)

	v := convert.ToLineView(l)
	require.Equal(t, "2023-01-02", v.WorkDate)
	require.Equal(t, "2023-01-02", v.PeriodFrom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimecardRepo_List_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTimecardRepo(db)

	mock.ExpectBeginTx(readOnly)
	mock.ExpectQuery(`FROM timecards ORDER BY rec_id ASC`).
		WillReturnRows(pgxmock.NewRows(headCols).
			AddRow(1, "a", uuid.Must(uuid.NewV4()), 1, opened, 0).
			AddRow(2, "b", uuid.Must(uuid.NewV4()), 2, opened, 4))
	for _, id := range []string{"a", "b"} {
		mock.ExpectQuery(`FROM timecard_transitions`).
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows(trCols).AddRow("draft", opened, "entered", []byte(`{"resource":1}`)))
		mock.ExpectQuery(`FROM timecard_lines`).
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows(lineCols))
	}
	mock.ExpectCommit()

	out, err := r.List(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, model.TimecardIdentity("b"), out[1].Identity)
	require.Equal(t, 4, out[1].RecordVersion)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimecardRepo_Save_AppendsAndBumpsVersion(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTimecardRepo(db)
	ctx := context.Background()

	tc := newTimecard(t)
	tc.RecordVersion = 2
	_, err := tc.AddLine(model.TimecardLine{Week: 1, Year: 2023, Day: time.Monday, Hours: 8, Project: "p"})
	require.NoError(t, err)
	tc.Transition(model.Submittal{Resource: 42})
	id := string(tc.Identity)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT ver FROM timecards WHERE id=\$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"ver"}).AddRow(2))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM timecard_transitions WHERE timecard_id=\$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(`INSERT INTO timecard_transitions`).
		WithArgs(id, 1, "submitted", opened, "submittal", []byte(`{"resource":42}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM timecard_lines WHERE timecard_id=\$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO timecard_lines`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE timecards SET ver=\$2 WHERE id=\$1`).
		WithArgs(id, 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	ver, err := r.Save(ctx, tc, 2)
	require.NoError(t, err)
	require.Equal(t, 3, ver)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimecardRepo_Save_VersionConflict(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTimecardRepo(db)
	tc := newTimecard(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT ver FROM timecards WHERE id=\$1 FOR UPDATE`).
		WithArgs(string(tc.Identity)).
		WillReturnRows(pgxmock.NewRows([]string{"ver"}).AddRow(5))
	mock.ExpectRollback()

	_, err := r.Save(context.Background(), tc, 4)
	require.ErrorIs(t, err, errs.ErrVersionConflict)
}

func TestTimecardRepo_Save_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTimecardRepo(db)
	tc := newTimecard(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT ver FROM timecards WHERE id=\$1 FOR UPDATE`).
		WithArgs(string(tc.Identity)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := r.Save(context.Background(), tc, 0)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestTimecardRepo_Save_ShrunkLogRejected(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTimecardRepo(db)
	tc := newTimecard(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(string(tc.Identity)).
		WillReturnRows(pgxmock.NewRows([]string{"ver"}).AddRow(0))
	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs(string(tc.Identity)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectRollback()

	_, err := r.Save(context.Background(), tc, 0)
	require.ErrorIs(t, err, errs.ErrVersionConflict)
}

func TestTimecardRepo_Delete(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTimecardRepo(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT ver FROM timecards WHERE id=\$1 FOR UPDATE`).
		WithArgs("tc-1").
		WillReturnRows(pgxmock.NewRows([]string{"ver"}).AddRow(1))
	mock.ExpectExec(`DELETE FROM timecards WHERE id=\$1`).
		WithArgs("tc-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()
	require.NoError(t, r.Delete(ctx, "tc-1", 1))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT ver FROM timecards WHERE id=\$1 FOR UPDATE`).
		WithArgs("tc-1").
		WillReturnRows(pgxmock.NewRows([]string{"ver"}).AddRow(2))
	mock.ExpectRollback()
	require.ErrorIs(t, r.Delete(ctx, "tc-1", 1), errs.ErrVersionConflict)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT ver FROM timecards WHERE id=\$1 FOR UPDATE`).
		WithArgs("tc-2").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()
	require.ErrorIs(t, r.Delete(ctx, "tc-2", 0), errs.ErrNotFound)

	mock.ExpectBegin().WillReturnError(errors.New("db down"))
	require.Error(t, r.Delete(ctx, "tc-3", 0))
}
