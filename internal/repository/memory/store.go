// Package memory keeps profiles, contracts and jobs in process memory. It
// satisfies the same store contract as the gorm repository and is used to run
// the ledger without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nurpe/contractor-ledger/internal/model"
	"github.com/nurpe/contractor-ledger/internal/service"
)

// Operation names passed to a FaultFunc.
const (
	OpAdjustBalance     = "adjust_balance"
	OpMarkJobPaid       = "mark_job_paid"
	OpSetContractStatus = "set_contract_status"
)

// FaultFunc lets tests fail a mutation inside a unit of work. Returning a
// non-nil error aborts the mutation with that error.
type FaultFunc func(op string, id int64) error

// Store serializes units of work with a single mutex, which gives every
// transaction exclusive access to all rows it touches.
type Store struct {
	mu sync.Mutex

	profiles  map[int64]*model.Profile
	contracts map[int64]*model.Contract
	jobs      map[int64]*model.Job
	nextID    int64

	fault FaultFunc
}

func New() *Store {
	return &Store{
		profiles:  make(map[int64]*model.Profile),
		contracts: make(map[int64]*model.Contract),
		jobs:      make(map[int64]*model.Job),
	}
}

// WithFault installs a fault hook for subsequent units of work.
func (s *Store) WithFault(fault FaultFunc) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fault
	return s
}

func (s *Store) AddProfile(p model.Profile) model.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.assignID(p.ID)
	s.profiles[p.ID] = &p
	return p
}

func (s *Store) AddContract(c model.Contract) model.Contract {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.assignID(c.ID)
	s.contracts[c.ID] = &c
	return c
}

func (s *Store) AddJob(j model.Job) model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	j.ID = s.assignID(j.ID)
	s.jobs[j.ID] = &j
	return j
}

// TotalBalance sums every profile balance.
func (s *Store) TotalBalance() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, p := range s.profiles {
		total = total.Add(p.Balance)
	}
	return total
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) GetProfile(_ context.Context, id int64) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile(id)
}

func (s *Store) GetContract(_ context.Context, id int64) (*model.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contract(id)
}

func (s *Store) GetJob(_ context.Context, id int64) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job(id)
}

func (s *Store) ListActiveContracts(_ context.Context, profileID int64) ([]model.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeContracts(profileID), nil
}

func (s *Store) ListUnpaidJobs(_ context.Context, contractIDs []int64) ([]model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unpaidJobs(contractIDs), nil
}

// Within runs fn with exclusive access to the store. Each mutation records an
// undo step; if fn fails or panics the steps are replayed in reverse.
func (s *Store) Within(ctx context.Context, fn func(tx service.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *Store) assignID(id int64) int64 {
	if id == 0 {
		s.nextID++
		return s.nextID
	}
	if id > s.nextID {
		s.nextID = id
	}
	return id
}

func (s *Store) profile(id int64) (*model.Profile, error) {
	p, ok := s.profiles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) contract(id int64) (*model.Contract, error) {
	c, ok := s.contracts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) job(id int64) (*model.Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return copyJob(j), nil
}

func (s *Store) activeContracts(profileID int64) []model.Contract {
	result := make([]model.Contract, 0)
	for _, c := range s.contracts {
		if c.IsActive() && c.HasParty(profileID) {
			result = append(result, *c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (s *Store) unpaidJobs(contractIDs []int64) []model.Job {
	wanted := make(map[int64]struct{}, len(contractIDs))
	for _, id := range contractIDs {
		wanted[id] = struct{}{}
	}
	result := make([]model.Job, 0)
	for _, j := range s.jobs {
		if _, ok := wanted[j.ContractID]; ok && !j.IsPaid() {
			result = append(result, *copyJob(j))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func copyJob(j *model.Job) *model.Job {
	cp := *j
	if j.Paid != nil {
		paid := *j.Paid
		cp.Paid = &paid
	}
	if j.PaymentDate != nil {
		at := *j.PaymentDate
		cp.PaymentDate = &at
	}
	return &cp
}

type memoryTx struct {
	store *Store
	undo  []func()
}

func (tx *memoryTx) LockProfile(_ context.Context, id int64) (*model.Profile, error) {
	return tx.store.profile(id)
}

func (tx *memoryTx) LockContract(_ context.Context, id int64) (*model.Contract, error) {
	return tx.store.contract(id)
}

func (tx *memoryTx) LockJob(_ context.Context, id int64) (*model.Job, error) {
	return tx.store.job(id)
}

func (tx *memoryTx) ListActiveContracts(_ context.Context, profileID int64) ([]model.Contract, error) {
	return tx.store.activeContracts(profileID), nil
}

func (tx *memoryTx) SumUnpaidJobPrices(_ context.Context, contractIDs []int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, j := range tx.store.unpaidJobs(contractIDs) {
		total = total.Add(j.Price)
	}
	return total, nil
}

func (tx *memoryTx) AdjustBalance(_ context.Context, profileID int64, delta decimal.Decimal) error {
	if err := tx.checkFault(OpAdjustBalance, profileID); err != nil {
		return err
	}
	p, ok := tx.store.profiles[profileID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	previous := p.Balance
	p.Balance = p.Balance.Add(delta)
	tx.undo = append(tx.undo, func() { p.Balance = previous })
	return nil
}

func (tx *memoryTx) MarkJobPaid(_ context.Context, jobID int64, paidAt time.Time) error {
	if err := tx.checkFault(OpMarkJobPaid, jobID); err != nil {
		return err
	}
	j, ok := tx.store.jobs[jobID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	previous := copyJob(j)
	paid := true
	j.Paid = &paid
	j.PaymentDate = &paidAt
	tx.undo = append(tx.undo, func() {
		j.Paid = previous.Paid
		j.PaymentDate = previous.PaymentDate
	})
	return nil
}

func (tx *memoryTx) SetContractStatus(_ context.Context, contractID int64, status model.ContractStatus) error {
	if err := tx.checkFault(OpSetContractStatus, contractID); err != nil {
		return err
	}
	c, ok := tx.store.contracts[contractID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	previous := c.Status
	c.Status = status
	tx.undo = append(tx.undo, func() { c.Status = previous })
	return nil
}

func (tx *memoryTx) checkFault(op string, id int64) error {
	if tx.store.fault == nil {
		return nil
	}
	return tx.store.fault(op, id)
}

func (tx *memoryTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}
