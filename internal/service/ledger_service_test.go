package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/contractor-ledger/internal/model"
	"github.com/nurpe/contractor-ledger/internal/repository/memory"
	"github.com/nurpe/contractor-ledger/internal/service"
)

var paidAt = time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store      *memory.Store
	ledger     *service.LedgerService
	client     model.Profile
	contractor model.Profile
	contract   model.Contract
	job        model.Job
}

func dec(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}

func boolPtr(v bool) *bool {
	return &v
}

// newFixture builds client C (balance 100) with an in-progress contract with
// contractor K (balance 0) carrying one unpaid job priced 40.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.New()
	client := store.AddProfile(model.Profile{FirstName: "Harry", LastName: "Potter", Profession: "Wizard", Balance: dec("100"), Type: model.ProfileTypeClient})
	contractor := store.AddProfile(model.Profile{FirstName: "John", LastName: "Lenon", Profession: "Musician", Balance: dec("0"), Type: model.ProfileTypeContractor})
	contract := store.AddContract(model.Contract{Terms: "bla bla bla", Status: model.ContractStatusInProgress, ClientID: client.ID, ContractorID: contractor.ID})
	job := store.AddJob(model.Job{Description: "work", Price: dec("40"), Paid: boolPtr(false), ContractID: contract.ID})

	ledger := service.NewLedgerService(store, nil, zerolog.Nop()).WithClock(func() time.Time { return paidAt })
	return &fixture{store: store, ledger: ledger, client: client, contractor: contractor, contract: contract, job: job}
}

func (f *fixture) balance(t *testing.T, id int64) decimal.Decimal {
	t.Helper()
	p, err := f.store.GetProfile(context.Background(), id)
	require.NoError(t, err)
	return p.Balance
}

func (f *fixture) assertBalances(t *testing.T, client, contractor string) {
	t.Helper()
	assert.True(t, f.balance(t, f.client.ID).Equal(dec(client)), "client balance %s", f.balance(t, f.client.ID))
	assert.True(t, f.balance(t, f.contractor.ID).Equal(dec(contractor)), "contractor balance %s", f.balance(t, f.contractor.ID))
}

func (f *fixture) assertUnsettled(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	job, err := f.store.GetJob(ctx, f.job.ID)
	require.NoError(t, err)
	assert.False(t, job.IsPaid())
	assert.Nil(t, job.PaymentDate)

	contract, err := f.store.GetContract(ctx, f.contract.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ContractStatusInProgress, contract.Status)
}

func TestPayJobMovesFundsAndSettles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.store.TotalBalance()

	job, err := f.ledger.PayJob(ctx, f.job.ID, f.client)
	require.NoError(t, err)

	assert.True(t, job.IsPaid())
	require.NotNil(t, job.PaymentDate)
	assert.Equal(t, paidAt, *job.PaymentDate)
	f.assertBalances(t, "60", "40")

	contract, err := f.store.GetContract(ctx, f.contract.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ContractStatusTerminated, contract.Status)
	assert.True(t, before.Equal(f.store.TotalBalance()))
}

func TestPayJobTwiceReportsAlreadyPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.PayJob(ctx, f.job.ID, f.client)
	require.NoError(t, err)

	_, err = f.ledger.PayJob(ctx, f.job.ID, f.client)
	assert.ErrorIs(t, err, service.ErrAlreadyPaid)
	f.assertBalances(t, "60", "40")
}

func TestPayJobOutsiderGetsNotPartyForPaidJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.PayJob(ctx, f.job.ID, f.client)
	require.NoError(t, err)

	outsider := f.store.AddProfile(model.Profile{FirstName: "Mr", LastName: "Robot", Profession: "Hacker", Balance: dec("500"), Type: model.ProfileTypeClient})
	_, err = f.ledger.PayJob(ctx, f.job.ID, outsider)
	assert.ErrorIs(t, err, service.ErrNotParty)
	assert.NotErrorIs(t, err, service.ErrAlreadyPaid)
	f.assertBalances(t, "60", "40")
}

func TestPayJobValidation(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(f *fixture) (int64, model.Profile)
		wantErr error
	}{
		{
			name: "contractor cannot pay",
			prepare: func(f *fixture) (int64, model.Profile) {
				return f.job.ID, f.contractor
			},
			wantErr: service.ErrInvalidRole,
		},
		{
			name: "unknown job",
			prepare: func(f *fixture) (int64, model.Profile) {
				return 9999, f.client
			},
			wantErr: service.ErrNotFound,
		},
		{
			name: "client of another contract",
			prepare: func(f *fixture) (int64, model.Profile) {
				other := f.store.AddProfile(model.Profile{FirstName: "Mr", LastName: "Robot", Profession: "Hacker", Balance: dec("500"), Type: model.ProfileTypeClient})
				return f.job.ID, other
			},
			wantErr: service.ErrNotParty,
		},
		{
			name: "new contract",
			prepare: func(f *fixture) (int64, model.Profile) {
				c := f.store.AddContract(model.Contract{Terms: "t", Status: model.ContractStatusNew, ClientID: f.client.ID, ContractorID: f.contractor.ID})
				j := f.store.AddJob(model.Job{Description: "d", Price: dec("10"), ContractID: c.ID})
				return j.ID, f.client
			},
			wantErr: service.ErrContractNotActive,
		},
		{
			name: "terminated contract",
			prepare: func(f *fixture) (int64, model.Profile) {
				c := f.store.AddContract(model.Contract{Terms: "t", Status: model.ContractStatusTerminated, ClientID: f.client.ID, ContractorID: f.contractor.ID})
				j := f.store.AddJob(model.Job{Description: "d", Price: dec("10"), Paid: boolPtr(false), ContractID: c.ID})
				return j.ID, f.client
			},
			wantErr: service.ErrContractNotActive,
		},
		{
			name: "balance below price",
			prepare: func(f *fixture) (int64, model.Profile) {
				j := f.store.AddJob(model.Job{Description: "d", Price: dec("100.01"), ContractID: f.contract.ID})
				return j.ID, f.client
			},
			wantErr: service.ErrInsufficientBalance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			jobID, payer := tt.prepare(f)

			job, err := f.ledger.PayJob(context.Background(), jobID, payer)
			assert.Nil(t, job)
			assert.ErrorIs(t, err, tt.wantErr)
			f.assertBalances(t, "100", "0")
			f.assertUnsettled(t)
		})
	}
}

func TestPayJobExactBalanceSucceeds(t *testing.T) {
	f := newFixture(t)
	j := f.store.AddJob(model.Job{Description: "all in", Price: dec("100"), ContractID: f.contract.ID})

	_, err := f.ledger.PayJob(context.Background(), j.ID, f.client)
	require.NoError(t, err)
	f.assertBalances(t, "0", "100")
}

func TestPayJobRollsBackOnStoreFailure(t *testing.T) {
	for _, op := range []string{memory.OpAdjustBalance, memory.OpMarkJobPaid, memory.OpSetContractStatus} {
		t.Run(op, func(t *testing.T) {
			f := newFixture(t)
			boom := errors.New("connection reset")
			f.store.WithFault(func(name string, id int64) error {
				if name == op && (op != memory.OpAdjustBalance || id == f.contractor.ID) {
					return boom
				}
				return nil
			})

			_, err := f.ledger.PayJob(context.Background(), f.job.ID, f.client)
			assert.ErrorIs(t, err, service.ErrTransactionFailure)
			assert.ErrorIs(t, err, boom)
			f.assertBalances(t, "100", "0")
			f.assertUnsettled(t)
		})
	}
}

func TestPayJobConcurrentCallsSettleOnce(t *testing.T) {
	f := newFixture(t)
	const callers = 8

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		errs    []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.ledger.PayJob(context.Background(), f.job.ID, f.client)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				success++
				return
			}
			errs = append(errs, err)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, success)
	require.Len(t, errs, callers-1)
	for _, err := range errs {
		assert.ErrorIs(t, err, service.ErrAlreadyPaid)
	}
	f.assertBalances(t, "60", "40")
}

func TestPayJobCancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.ledger.PayJob(ctx, f.job.ID, f.client)
	assert.ErrorIs(t, err, service.ErrTransactionFailure)
	assert.ErrorIs(t, err, context.Canceled)
	f.assertBalances(t, "100", "0")
}
