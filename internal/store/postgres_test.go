package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restructure-engine/internal/model"
)

func newMock(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db), mock
}

func TestPostgresGet(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	p := newPlan("C-1")
	p.State = model.StateEligible
	data, err := json.Marshal(p)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT data, version FROM protection_plans WHERE contract_id = $1")).
		WithArgs("C-1").
		WillReturnRows(sqlmock.NewRows([]string{"data", "version"}).AddRow(data, 7))

	got, err := s.Get(ctx, "C-1")
	require.NoError(t, err)
	assert.Equal(t, model.StateEligible, got.State)
	assert.Equal(t, int64(7), got.Version)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT data, version FROM protection_plans")).
		WithArgs("C-2").
		WillReturnRows(sqlmock.NewRows([]string{"data", "version"}))

	_, err = s.Get(ctx, "C-2")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveInsertAndUpdate(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()
	p := newPlan("C-1")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO protection_plans")).
		WithArgs("C-1", "IDLE", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Save(ctx, p))
	assert.Equal(t, int64(1), p.Version)

	p.State = model.StateEligible
	mock.ExpectExec(regexp.QuoteMeta("UPDATE protection_plans")).
		WithArgs("ELIGIBLE", sqlmock.AnyArg(), sqlmock.AnyArg(), "C-1", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Save(ctx, p))
	assert.Equal(t, int64(2), p.Version)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveConflict(t *testing.T) {
	s, mock := newMock(t)
	p := newPlan("C-1")
	p.Version = 3

	mock.ExpectExec(regexp.QuoteMeta("UPDATE protection_plans")).
		WithArgs("IDLE", sqlmock.AnyArg(), sqlmock.AnyArg(), "C-1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Save(context.Background(), p)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, int64(3), p.Version)
}

func TestPostgresSaveDriverError(t *testing.T) {
	s, mock := newMock(t)
	p := newPlan("C-1")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO protection_plans")).
		WillReturnError(errors.New("connection reset"))

	err := s.Save(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, int64(0), p.Version)
}

func TestPostgresListByState(t *testing.T) {
	s, mock := newMock(t)

	a, _ := json.Marshal(newPlan("C-1"))
	b, _ := json.Marshal(newPlan("C-2"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT data, version FROM protection_plans WHERE state = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"data", "version"}).AddRow(a, 2).AddRow(b, 5))

	got, err := s.ListByState(context.Background(), model.StatePendingApproval, model.StateReadyToSign)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "C-2", got[1].ContractID)
	assert.Equal(t, int64(5), got[1].Version)
}

func TestPostgresContract(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM contracts WHERE contract_id = $1")).
		WithArgs("C-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"contract_id", "client_id", "current_balance", "base_payment", "remaining_term",
			"monthly_rate", "market", "contract_type", "group_fund_balance",
		}).AddRow("C-1", "client-1", 320000.0, 10500.0, 36, 0.02125, "aguascalientes", "individual", 0.0))

	c, err := s.Contract(context.Background(), "C-1")
	require.NoError(t, err)
	assert.Equal(t, 36, c.RemainingTerm)
	assert.Equal(t, "aguascalientes", c.Market)
	assert.NoError(t, c.Validate())
}

func TestPostgresWriteSchedule(t *testing.T) {
	s, mock := newMock(t)
	rows := []model.ScheduleRow{
		{Month: 1, DueDate: "2026-02-01", Payment: 100, Principal: 90, Interest: 10, Balance: 910},
		{Month: 2, DueDate: "2026-03-01", Payment: 100, Principal: 91, Interest: 9, Balance: 819},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM protection_schedules WHERE contract_id = $1")).
		WithArgs("C-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO protection_schedules"))
	for _, r := range rows {
		prep.ExpectExec().
			WithArgs("C-1", r.Month, r.DueDate, r.Payment, r.Principal, r.Interest, r.Balance, "2026-02-01").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	require.NoError(t, s.WriteSchedule(context.Background(), "C-1", "2026-02-01", rows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriteScheduleRollsBack(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM protection_schedules")).
		WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	err := s.WriteSchedule(context.Background(), "C-1", "", []model.ScheduleRow{{Month: 1}})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
