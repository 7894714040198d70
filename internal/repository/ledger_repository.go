package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nurpe/contractor-ledger/internal/model"
	"github.com/nurpe/contractor-ledger/internal/service"
)

type LedgerRepository struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

func NewLedgerRepository(db *gorm.DB, lockTimeout time.Duration) *LedgerRepository {
	return &LedgerRepository{db: db, lockTimeout: lockTimeout}
}

func (r *LedgerRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *LedgerRepository) GetProfile(ctx context.Context, id int64) (*model.Profile, error) {
	var profile model.Profile
	if err := r.db.WithContext(ctx).First(&profile, id).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *LedgerRepository) GetContract(ctx context.Context, id int64) (*model.Contract, error) {
	var contract model.Contract
	if err := r.db.WithContext(ctx).First(&contract, id).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

func (r *LedgerRepository) GetJob(ctx context.Context, id int64) (*model.Job, error) {
	var job model.Job
	if err := r.db.WithContext(ctx).First(&job, id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *LedgerRepository) ListActiveContracts(ctx context.Context, profileID int64) ([]model.Contract, error) {
	return listActiveContracts(r.db.WithContext(ctx), profileID)
}

func (r *LedgerRepository) ListUnpaidJobs(ctx context.Context, contractIDs []int64) ([]model.Job, error) {
	if len(contractIDs) == 0 {
		return []model.Job{}, nil
	}
	var jobs []model.Job
	err := r.db.WithContext(ctx).
		Where("contract_id IN ? AND (paid = false OR paid IS NULL)", contractIDs).
		Order("id ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// Within runs fn inside a database transaction bounded by the configured
// lock timeout. gorm rolls back when fn returns an error.
func (r *LedgerRepository) Within(ctx context.Context, fn func(tx service.Tx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if r.lockTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return fn(&ledgerTx{db: tx})
	})
}

type ledgerTx struct {
	db *gorm.DB
}

func (t *ledgerTx) forUpdate(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

func (t *ledgerTx) LockProfile(ctx context.Context, id int64) (*model.Profile, error) {
	var profile model.Profile
	if err := t.forUpdate(ctx).First(&profile, id).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (t *ledgerTx) LockContract(ctx context.Context, id int64) (*model.Contract, error) {
	var contract model.Contract
	if err := t.forUpdate(ctx).First(&contract, id).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

func (t *ledgerTx) LockJob(ctx context.Context, id int64) (*model.Job, error) {
	var job model.Job
	if err := t.forUpdate(ctx).First(&job, id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (t *ledgerTx) ListActiveContracts(ctx context.Context, profileID int64) ([]model.Contract, error) {
	return listActiveContracts(t.db.WithContext(ctx), profileID)
}

func (t *ledgerTx) SumUnpaidJobPrices(ctx context.Context, contractIDs []int64) (decimal.Decimal, error) {
	if len(contractIDs) == 0 {
		return decimal.Zero, nil
	}
	var row struct {
		Total decimal.Decimal
	}
	err := t.db.WithContext(ctx).Raw(`
		SELECT COALESCE(SUM(price), 0) AS total
		FROM jobs
		WHERE contract_id IN ?
			AND (paid = false OR paid IS NULL)
	`, contractIDs).Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}

func (t *ledgerTx) AdjustBalance(ctx context.Context, profileID int64, delta decimal.Decimal) error {
	res := t.db.WithContext(ctx).
		Model(&model.Profile{}).
		Where("id = ?", profileID).
		Update("balance", gorm.Expr("balance + ?", delta))
	return affectedOne(res)
}

func (t *ledgerTx) MarkJobPaid(ctx context.Context, jobID int64, paidAt time.Time) error {
	res := t.db.WithContext(ctx).
		Model(&model.Job{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"paid":         true,
			"payment_date": paidAt,
		})
	return affectedOne(res)
}

func (t *ledgerTx) SetContractStatus(ctx context.Context, contractID int64, status model.ContractStatus) error {
	res := t.db.WithContext(ctx).
		Model(&model.Contract{}).
		Where("id = ?", contractID).
		Update("status", status)
	return affectedOne(res)
}

// listActiveContracts treats a NULL status as not terminated.
func listActiveContracts(db *gorm.DB, profileID int64) ([]model.Contract, error) {
	contracts := make([]model.Contract, 0)
	err := db.
		Where("status IS DISTINCT FROM ?", model.ContractStatusTerminated).
		Where("client_id = ? OR contractor_id = ?", profileID, profileID).
		Order("id ASC").
		Find(&contracts).Error
	if err != nil {
		return nil, err
	}
	return contracts, nil
}

func affectedOne(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
