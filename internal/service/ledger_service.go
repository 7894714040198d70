package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nurpe/contractor-ledger/internal/config"
	"github.com/nurpe/contractor-ledger/internal/metrics"
	"github.com/nurpe/contractor-ledger/internal/model"
)

const (
	operationPayJob  = "pay_job"
	operationDeposit = "deposit"
)

var defaultMaxDepositRatio = decimal.RequireFromString("0.25")

// LedgerService owns every operation that moves money between profiles.
type LedgerService struct {
	store           Store
	log             zerolog.Logger
	maxDepositRatio decimal.Decimal
	now             func() time.Time
}

func NewLedgerService(store Store, cfg *config.Config, log zerolog.Logger) *LedgerService {
	ratio := defaultMaxDepositRatio
	if cfg != nil && cfg.Ledger.MaxDepositRatio.IsPositive() {
		ratio = cfg.Ledger.MaxDepositRatio
	}
	return &LedgerService{
		store:           store,
		log:             log,
		maxDepositRatio: ratio,
		now:             time.Now,
	}
}

// WithClock replaces the payment timestamp source.
func (s *LedgerService) WithClock(now func() time.Time) *LedgerService {
	s.now = now
	return s
}

// PayJob settles a job: the client pays the contractor the job price, the
// job is marked paid and its contract is terminated, all in one transaction.
func (s *LedgerService) PayJob(ctx context.Context, jobID int64, payer model.Profile) (job *model.Job, err error) {
	start := time.Now()
	defer func() { s.record(operationPayJob, start, err) }()

	if !payer.IsClient() {
		return nil, fmt.Errorf("%w: only clients may pay for a job", ErrInvalidRole)
	}

	err = s.within(ctx, func(tx Tx) error {
		locked, err := tx.LockJob(ctx, jobID)
		if err != nil {
			return lookupError(err, "job %d", jobID)
		}
		contract, err := tx.LockContract(ctx, locked.ContractID)
		if err != nil {
			return lookupError(err, "contract %d", locked.ContractID)
		}
		// Only the contract's client may pay. Checked ahead of the paid state.
		if contract.ClientID != payer.ID {
			return fmt.Errorf("%w: contract %d", ErrNotParty, contract.ID)
		}
		if locked.IsPaid() {
			return fmt.Errorf("%w: job %d", ErrAlreadyPaid, locked.ID)
		}
		if contract.Status != model.ContractStatusInProgress {
			return fmt.Errorf("%w: contract %d is %q", ErrContractNotActive, contract.ID, contract.Status)
		}

		profiles, err := lockProfiles(ctx, tx, contract.ClientID, contract.ContractorID)
		if err != nil {
			return err
		}
		client := profiles[contract.ClientID]
		if client.Balance.LessThan(locked.Price) {
			return fmt.Errorf("%w: balance %s is below job price %s", ErrInsufficientBalance, client.Balance, locked.Price)
		}

		if err := tx.AdjustBalance(ctx, contract.ClientID, locked.Price.Neg()); err != nil {
			return err
		}
		if err := tx.AdjustBalance(ctx, contract.ContractorID, locked.Price); err != nil {
			return err
		}
		if err := tx.MarkJobPaid(ctx, locked.ID, s.now().UTC()); err != nil {
			return err
		}
		if err := tx.SetContractStatus(ctx, contract.ID, model.ContractStatusTerminated); err != nil {
			return err
		}

		job, err = tx.LockJob(ctx, locked.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("job_id", job.ID).
		Int64("contract_id", job.ContractID).
		Int64("client_id", payer.ID).
		Str("amount", job.Price.String()).
		Msg("job paid")
	return job, nil
}

// Deposit moves amount from the payer to another client. The amount is capped
// at a fraction of what the payer still owes on unpaid jobs of its active
// contracts, recomputed on every call.
func (s *LedgerService) Deposit(ctx context.Context, targetID int64, payer model.Profile, amount decimal.Decimal) (target *model.Profile, err error) {
	start := time.Now()
	defer func() { s.record(operationDeposit, start, err) }()

	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	recipient, err := s.store.GetProfile(ctx, targetID)
	if err != nil {
		return nil, lookupError(err, "profile %d", targetID)
	}
	if !payer.IsClient() || !recipient.IsClient() {
		return nil, fmt.Errorf("%w: only clients may deposit to another client", ErrInvalidRole)
	}
	if payer.ID == recipient.ID {
		return nil, ErrSelfDeposit
	}

	err = s.within(ctx, func(tx Tx) error {
		profiles, err := lockProfiles(ctx, tx, payer.ID, recipient.ID)
		if err != nil {
			return err
		}

		maxDeposit, err := s.maxDeposit(ctx, tx, payer.ID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(maxDeposit) {
			return &DepositLimitError{Amount: amount, MaxDeposit: maxDeposit}
		}

		if profiles[payer.ID].Balance.LessThan(amount) {
			return fmt.Errorf("%w: balance %s is below deposit amount %s", ErrInsufficientBalance, profiles[payer.ID].Balance, amount)
		}

		if err := tx.AdjustBalance(ctx, payer.ID, amount.Neg()); err != nil {
			return err
		}
		if err := tx.AdjustBalance(ctx, recipient.ID, amount); err != nil {
			return err
		}

		target, err = tx.LockProfile(ctx, recipient.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("from_profile_id", payer.ID).
		Int64("to_profile_id", target.ID).
		Str("amount", amount.String()).
		Msg("deposit completed")
	return target, nil
}

// MaxDeposit reports the current deposit cap for a profile.
func (s *LedgerService) MaxDeposit(ctx context.Context, profileID int64) (decimal.Decimal, error) {
	contracts, err := s.store.ListActiveContracts(ctx, profileID)
	if err != nil {
		return decimal.Zero, err
	}
	jobs, err := s.store.ListUnpaidJobs(ctx, contractIDs(contracts))
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, job := range jobs {
		total = total.Add(job.Price)
	}
	return total.Mul(s.maxDepositRatio), nil
}

func (s *LedgerService) maxDeposit(ctx context.Context, tx Tx, profileID int64) (decimal.Decimal, error) {
	contracts, err := tx.ListActiveContracts(ctx, profileID)
	if err != nil {
		return decimal.Zero, err
	}
	total, err := tx.SumUnpaidJobPrices(ctx, contractIDs(contracts))
	if err != nil {
		return decimal.Zero, err
	}
	return total.Mul(s.maxDepositRatio), nil
}

// within runs fn in a unit of work. Domain errors pass through untouched,
// anything else is reported as a transaction failure.
func (s *LedgerService) within(ctx context.Context, fn func(tx Tx) error) error {
	err := s.store.Within(ctx, fn)
	if err == nil {
		return nil
	}
	if isDomainError(err) {
		return err
	}
	s.log.Warn().Err(err).Msg("ledger transaction rolled back")
	return fmt.Errorf("%w: %w", ErrTransactionFailure, err)
}

func (s *LedgerService) record(operation string, start time.Time, err error) {
	metrics.RecordLedgerOperation(operation, ErrorKind(err), time.Since(start))
}

// lockProfiles locks the given profiles in ascending id order.
func lockProfiles(ctx context.Context, tx Tx, ids ...int64) (map[int64]*model.Profile, error) {
	ordered := append([]int64(nil), ids...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	locked := make(map[int64]*model.Profile, len(ordered))
	for _, id := range ordered {
		if _, ok := locked[id]; ok {
			continue
		}
		profile, err := tx.LockProfile(ctx, id)
		if err != nil {
			return nil, lookupError(err, "profile %d", id)
		}
		locked[id] = profile
	}
	return locked, nil
}

func lookupError(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}

func contractIDs(contracts []model.Contract) []int64 {
	ids := make([]int64, 0, len(contracts))
	for _, contract := range contracts {
		ids = append(ids, contract.ID)
	}
	return ids
}
