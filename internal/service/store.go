package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nurpe/contractor-ledger/internal/model"
)

// Lookups return gorm.ErrRecordNotFound for missing rows.

type ProfileStore interface {
	GetProfile(ctx context.Context, id int64) (*model.Profile, error)
}

type ContractStore interface {
	GetContract(ctx context.Context, id int64) (*model.Contract, error)
	ListActiveContracts(ctx context.Context, profileID int64) ([]model.Contract, error)
}

type JobStore interface {
	GetJob(ctx context.Context, id int64) (*model.Job, error)
	ListUnpaidJobs(ctx context.Context, contractIDs []int64) ([]model.Job, error)
}

// Tx is the view of the stores inside a unit of work. Lock* methods hold
// the row until the unit of work ends.
type Tx interface {
	LockProfile(ctx context.Context, id int64) (*model.Profile, error)
	LockContract(ctx context.Context, id int64) (*model.Contract, error)
	LockJob(ctx context.Context, id int64) (*model.Job, error)

	ListActiveContracts(ctx context.Context, profileID int64) ([]model.Contract, error)
	SumUnpaidJobPrices(ctx context.Context, contractIDs []int64) (decimal.Decimal, error)

	AdjustBalance(ctx context.Context, profileID int64, delta decimal.Decimal) error
	MarkJobPaid(ctx context.Context, jobID int64, paidAt time.Time) error
	SetContractStatus(ctx context.Context, contractID int64, status model.ContractStatus) error
}

// UnitOfWork commits every mutation made through Tx when fn returns nil and
// undoes all of them otherwise.
type UnitOfWork interface {
	Within(ctx context.Context, fn func(tx Tx) error) error
}

type Store interface {
	ProfileStore
	ContractStore
	JobStore
	UnitOfWork
}
