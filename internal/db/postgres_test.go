package db

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/openslot/internal/models"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &Postgres{DB: db}, mock
}

func TestLoadLedger(t *testing.T) {
	pg, mock := newMockPostgres(t)
	from := time.Date(2021, 9, 6, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT screen_id, hour, slots FROM reservations")).
		WithArgs(sqlmock.AnyArg(), from, to).
		WillReturnRows(sqlmock.NewRows([]string{"screen_id", "hour", "slots"}).
			AddRow(int64(257), from.Add(time.Hour), 12).
			AddRow(int64(257), from.Add(2*time.Hour), 72).
			AddRow(int64(300), from, 6))

	ledger, err := pg.LoadLedger(context.Background(), []int64{257, 300}, from, to)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 12, ledger.Committed(257, from.Add(time.Hour).Unix()))
	assert.Equal(t, 72, ledger.Committed(257, from.Add(2*time.Hour).Unix()))
	assert.Equal(t, 6, ledger.Committed(300, from.Unix()))
	assert.Equal(t, 0, ledger.Committed(300, from.Add(time.Hour).Unix()))
}

func TestImportReservations(t *testing.T) {
	pg, mock := newMockPostgres(t)
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO reservations"))
	prep.ExpectExec().WithArgs(int64(5), time.Unix(3600, 0).UTC(), 24).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := pg.ImportReservations(context.Background(), models.ReservationLedger{5: {3600: 24}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportReservationsRollsBackOnError(t *testing.T) {
	pg, mock := newMockPostgres(t)
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO reservations"))
	prep.ExpectExec().WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := pg.ImportReservations(context.Background(), models.ReservationLedger{5: {3600: 24}})
	assert.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func samplePlan() *models.PlanResult {
	schedule := make(models.Schedule)
	schedule.Add(257, 3600, models.ScheduleEntry{Slots: 60, OTS: 3601.67})
	return &models.PlanResult{
		ID:          "7f1c2a52-7d64-4a43-9d36-7b0f1f4c59a1",
		Status:      models.PlanStatusOptimal,
		Strategy:    "optimal",
		Schedule:    schedule,
		RealizedOTS: 3602,
		CreatedAt:   time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSavePlan(t *testing.T) {
	pg, mock := newMockPostgres(t)
	plan := samplePlan()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO plans")).
		WithArgs(plan.ID, "optimal", "optimal", int64(3602), 0.0, sqlmock.AnyArg(), plan.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO plan_entries"))
	prep.ExpectExec().WithArgs(plan.ID, int64(257), time.Unix(3600, 0).UTC(), 60, 3601.67).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, pg.SavePlan(context.Background(), plan))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadPlan(t *testing.T) {
	pg, mock := newMockPostgres(t)
	payload := `{"id":"abc","status":"feasible","strategy":"optimal","schedule":{"257":{"3600":{"slots":48,"ots":2881.3}}},"realized_ots":2881}`
	mock.ExpectQuery(regexp.QuoteMeta("SELECT result, committed FROM plans")).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"result", "committed"}).AddRow([]byte(payload), true))

	plan, committed, err := pg.LoadPlan(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, committed)
	assert.Equal(t, models.PlanStatusFeasible, plan.Status)
	e, ok := plan.Schedule.Entry(257, 3600)
	require.True(t, ok)
	assert.Equal(t, 48, e.Slots)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT result, committed FROM plans")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	_, _, err = pg.LoadPlan(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestCommitPlan(t *testing.T) {
	pg, mock := newMockPostgres(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT committed FROM plans WHERE id = $1 FOR UPDATE")).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"committed"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("LOCK TABLE reservations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT e.screen_id, e.hour, e.slots, COALESCE(r.slots, 0)")).
		WithArgs("abc", 72).
		WillReturnRows(sqlmock.NewRows([]string{"screen_id", "hour", "slots", "booked"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reservations")).
		WithArgs("abc").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE plans SET committed = TRUE")).
		WithArgs("abc").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := pg.CommitPlan(context.Background(), "abc", 72)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitPlanTwiceFails(t *testing.T) {
	pg, mock := newMockPostgres(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT committed FROM plans")).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"committed"}).AddRow(true))
	mock.ExpectRollback()

	_, err := pg.CommitPlan(context.Background(), "abc", 72)
	assert.ErrorIs(t, err, ErrPlanCommitted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitPlanOverCapacityConflicts(t *testing.T) {
	pg, mock := newMockPostgres(t)
	hour := time.Date(2021, 9, 6, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT committed FROM plans WHERE id = $1 FOR UPDATE")).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"committed"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("LOCK TABLE reservations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT e.screen_id, e.hour, e.slots, COALESCE(r.slots, 0)")).
		WithArgs("abc", 72).
		WillReturnRows(sqlmock.NewRows([]string{"screen_id", "hour", "slots", "booked"}).
			AddRow(int64(257), hour, 20, 60))
	mock.ExpectRollback()

	_, err := pg.CommitPlan(context.Background(), "abc", 72)
	require.ErrorIs(t, err, ErrPlanConflict)
	assert.Contains(t, err.Error(), "screen 257 at 2021-09-06T10:00:00Z has 60 committed, plan adds 20")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlayerIDs(t *testing.T) {
	pg, mock := newMockPostgres(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, number, name FROM screens")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "number", "name"}).
			AddRow(int64(257), "NSK-001", "Lenina 1").
			AddRow(int64(258), "NSK-002", ""))

	ids, err := pg.PlayerIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"NSK-001": 257, "NSK-002": 258}, ids)
}
