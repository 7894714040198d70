package service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidRole          = errors.New("invalid role")
	ErrNotParty             = errors.New("profile is not a party to the contract")
	ErrAlreadyPaid          = errors.New("job is already paid")
	ErrContractNotActive    = errors.New("contract is not in progress")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrInvalidAmount        = errors.New("amount must be a positive number")
	ErrSelfDeposit          = errors.New("cannot deposit to own profile")
	ErrDepositLimitExceeded = errors.New("deposit limit exceeded")
	ErrTransactionFailure   = errors.New("transaction failed")
)

// DepositLimitError reports the cap a deposit ran into.
type DepositLimitError struct {
	Amount     decimal.Decimal
	MaxDeposit decimal.Decimal
}

func (e *DepositLimitError) Error() string {
	return fmt.Sprintf("%s: amount %s is more than the allowed %s", ErrDepositLimitExceeded, e.Amount, e.MaxDeposit)
}

func (e *DepositLimitError) Is(target error) bool {
	return target == ErrDepositLimitExceeded
}

var domainErrors = []error{
	ErrNotFound,
	ErrInvalidInput,
	ErrInvalidRole,
	ErrNotParty,
	ErrAlreadyPaid,
	ErrContractNotActive,
	ErrInsufficientBalance,
	ErrInvalidAmount,
	ErrSelfDeposit,
	ErrDepositLimitExceeded,
}

func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ErrorKind names the error class for logs and metric labels.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInvalidRole):
		return "invalid_role"
	case errors.Is(err, ErrNotParty):
		return "not_party"
	case errors.Is(err, ErrAlreadyPaid):
		return "already_paid"
	case errors.Is(err, ErrContractNotActive):
		return "contract_not_active"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrSelfDeposit):
		return "self_deposit"
	case errors.Is(err, ErrDepositLimitExceeded):
		return "deposit_limit_exceeded"
	default:
		return "transaction_failure"
	}
}
