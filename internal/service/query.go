package service

import (
	"context"
	"fmt"

	"github.com/nurpe/contractor-ledger/internal/model"
)

func (s *LedgerService) Profile(ctx context.Context, id int64) (*model.Profile, error) {
	profile, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return nil, lookupError(err, "profile %d", id)
	}
	return profile, nil
}

// ActiveContractsForProfile lists the non-terminated contracts in which the
// profile is either the client or the contractor.
func (s *LedgerService) ActiveContractsForProfile(ctx context.Context, profileID int64) ([]model.Contract, error) {
	contracts, err := s.store.ListActiveContracts(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if contracts == nil {
		contracts = []model.Contract{}
	}
	return contracts, nil
}

func (s *LedgerService) ContractForProfile(ctx context.Context, contractID, profileID int64) (*model.Contract, error) {
	contract, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, lookupError(err, "contract %d", contractID)
	}
	if !contract.HasParty(profileID) {
		return nil, fmt.Errorf("%w: contract %d", ErrNotParty, contractID)
	}
	return contract, nil
}

// UnpaidJobsForProfile lists unpaid jobs under the profile's active contracts.
func (s *LedgerService) UnpaidJobsForProfile(ctx context.Context, profileID int64) ([]model.Job, error) {
	contracts, err := s.store.ListActiveContracts(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if len(contracts) == 0 {
		return []model.Job{}, nil
	}
	jobs, err := s.store.ListUnpaidJobs(ctx, contractIDs(contracts))
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []model.Job{}
	}
	return jobs, nil
}

// JobReceipt collects a paid job with both parties of its contract.
func (s *LedgerService) JobReceipt(ctx context.Context, jobID int64, profile model.Profile) (*model.JobReceipt, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, lookupError(err, "job %d", jobID)
	}
	contract, err := s.store.GetContract(ctx, job.ContractID)
	if err != nil {
		return nil, lookupError(err, "contract %d", job.ContractID)
	}
	if !contract.HasParty(profile.ID) {
		return nil, fmt.Errorf("%w: contract %d", ErrNotParty, contract.ID)
	}
	if !job.IsPaid() {
		return nil, fmt.Errorf("%w: job %d is not paid yet", ErrInvalidInput, job.ID)
	}

	client, err := s.Profile(ctx, contract.ClientID)
	if err != nil {
		return nil, err
	}
	contractor, err := s.Profile(ctx, contract.ContractorID)
	if err != nil {
		return nil, err
	}
	return &model.JobReceipt{
		Job:        *job,
		Contract:   *contract,
		Client:     *client,
		Contractor: *contractor,
	}, nil
}
