package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/contractor-ledger/internal/model"
	"github.com/nurpe/contractor-ledger/internal/service"
)

// The client has the higher id so ascending lock order differs from the
// client-then-contractor order used for the balance updates.
const (
	settleJobID        = int64(5)
	settleContractID   = int64(2)
	settleContractorID = int64(3)
	settleClientID     = int64(7)
	depositTargetID    = int64(3)
)

var settleClient = model.Profile{ID: settleClientID, FirstName: "Harry", LastName: "Potter", Balance: decimal.NewFromInt(100), Type: model.ProfileTypeClient}

const (
	lockJobQuery       = `SELECT \* FROM "jobs" WHERE "jobs"."id" = \$1 ORDER BY "jobs"."id" LIMIT \$2 FOR UPDATE`
	lockContractQuery  = `SELECT \* FROM "contracts" WHERE "contracts"."id" = \$1 ORDER BY "contracts"."id" LIMIT \$2 FOR UPDATE`
	lockProfileQuery   = `SELECT \* FROM "profiles" WHERE "profiles"."id" = \$1 ORDER BY "profiles"."id" LIMIT \$2 FOR UPDATE`
	getProfileQuery    = `SELECT \* FROM "profiles" WHERE "profiles"."id" = \$1 ORDER BY "profiles"."id" LIMIT \$2$`
	activeContracts    = `SELECT \* FROM "contracts" WHERE status IS DISTINCT FROM`
	unpaidTotalQuery   = `SELECT COALESCE\(SUM\(price\), 0\) AS total\s+FROM jobs`
	adjustBalanceQuery = `UPDATE "profiles" SET "balance"=balance \+ \$1,"updated_at"=\$2 WHERE id = \$3`
)

func newLedgerOverMock(t *testing.T) (*service.LedgerService, sqlmock.Sqlmock) {
	t.Helper()
	repo, mock := newMockRepository(t, time.Second)
	ledger := service.NewLedgerService(repo, nil, zerolog.Nop()).
		WithClock(func() time.Time { return time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC) })
	return ledger, mock
}

func jobRows(paid bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "description", "price", "paid", "contract_id"}).
		AddRow(settleJobID, "work", "40.00", paid, settleContractID)
}

func contractRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "terms", "status", "client_id", "contractor_id"}).
		AddRow(settleContractID, "bla bla bla", "in_progress", settleClientID, settleContractorID)
}

func profileRows(id int64, balance string, kind model.ProfileType) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "first_name", "last_name", "profession", "balance", "type"}).
		AddRow(id, "First", "Last", "Trade", balance, string(kind))
}

func expectPayJobLocks(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout = '1000ms'`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(lockJobQuery).WithArgs(settleJobID, 1).WillReturnRows(jobRows(false))
	mock.ExpectQuery(lockContractQuery).WithArgs(settleContractID, 1).WillReturnRows(contractRows())
	mock.ExpectQuery(lockProfileQuery).WithArgs(settleContractorID, 1).
		WillReturnRows(profileRows(settleContractorID, "0.00", model.ProfileTypeContractor))
	mock.ExpectQuery(lockProfileQuery).WithArgs(settleClientID, 1).
		WillReturnRows(profileRows(settleClientID, "100.00", model.ProfileTypeClient))
}

func TestPayJobLocksRowsInOrderAndCommits(t *testing.T) {
	ledger, mock := newLedgerOverMock(t)

	expectPayJobLocks(mock)
	mock.ExpectExec(adjustBalanceQuery).WithArgs("-40", sqlmock.AnyArg(), settleClientID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(adjustBalanceQuery).WithArgs("40", sqlmock.AnyArg(), settleContractorID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "jobs" SET .*"paid"=`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "contracts" SET "status"=\$1`).
		WithArgs(string(model.ContractStatusTerminated), sqlmock.AnyArg(), settleContractID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(lockJobQuery).WithArgs(settleJobID, 1).WillReturnRows(jobRows(true))
	mock.ExpectCommit()

	job, err := ledger.PayJob(context.Background(), settleJobID, settleClient)
	require.NoError(t, err)
	assert.True(t, job.IsPaid())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPayJobRollsBackWhenCreditFails(t *testing.T) {
	ledger, mock := newLedgerOverMock(t)
	dropped := errors.New("connection reset by peer")

	expectPayJobLocks(mock)
	mock.ExpectExec(adjustBalanceQuery).WithArgs("-40", sqlmock.AnyArg(), settleClientID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(adjustBalanceQuery).WithArgs("40", sqlmock.AnyArg(), settleContractorID).
		WillReturnError(dropped)
	mock.ExpectRollback()

	job, err := ledger.PayJob(context.Background(), settleJobID, settleClient)
	assert.Nil(t, job)
	assert.ErrorIs(t, err, service.ErrTransactionFailure)
	assert.ErrorIs(t, err, dropped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPayJobRollsBackWhenAlreadyPaid(t *testing.T) {
	ledger, mock := newLedgerOverMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(lockJobQuery).WithArgs(settleJobID, 1).WillReturnRows(jobRows(true))
	mock.ExpectQuery(lockContractQuery).WithArgs(settleContractID, 1).WillReturnRows(contractRows())
	mock.ExpectRollback()

	_, err := ledger.PayJob(context.Background(), settleJobID, settleClient)
	assert.ErrorIs(t, err, service.ErrAlreadyPaid)
	assert.NotErrorIs(t, err, service.ErrTransactionFailure)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func expectDepositPrelude(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(getProfileQuery).WithArgs(depositTargetID, 1).
		WillReturnRows(profileRows(depositTargetID, "0.00", model.ProfileTypeClient))
	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout = '1000ms'`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(lockProfileQuery).WithArgs(depositTargetID, 1).
		WillReturnRows(profileRows(depositTargetID, "0.00", model.ProfileTypeClient))
	mock.ExpectQuery(lockProfileQuery).WithArgs(settleClientID, 1).
		WillReturnRows(profileRows(settleClientID, "100.00", model.ProfileTypeClient))
	mock.ExpectQuery(activeContracts).WillReturnRows(contractRows())
	mock.ExpectQuery(unpaidTotalQuery).WithArgs(settleContractID).
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow("40.00"))
}

func TestDepositLocksProfilesInOrderAndCommits(t *testing.T) {
	ledger, mock := newLedgerOverMock(t)

	expectDepositPrelude(mock)
	mock.ExpectExec(adjustBalanceQuery).WithArgs("-10", sqlmock.AnyArg(), settleClientID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(adjustBalanceQuery).WithArgs("10", sqlmock.AnyArg(), depositTargetID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(lockProfileQuery).WithArgs(depositTargetID, 1).
		WillReturnRows(profileRows(depositTargetID, "10.00", model.ProfileTypeClient))
	mock.ExpectCommit()

	target, err := ledger.Deposit(context.Background(), depositTargetID, settleClient, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.True(t, target.Balance.Equal(decimal.NewFromInt(10)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepositOverLimitRollsBack(t *testing.T) {
	ledger, mock := newLedgerOverMock(t)

	expectDepositPrelude(mock)
	mock.ExpectRollback()

	_, err := ledger.Deposit(context.Background(), depositTargetID, settleClient, decimal.NewFromInt(15))
	var limitErr *service.DepositLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.True(t, limitErr.MaxDeposit.Equal(decimal.NewFromInt(10)))
	assert.NoError(t, mock.ExpectationsWereMet())
}
