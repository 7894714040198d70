package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Job struct {
	ID          int64           `gorm:"primaryKey" json:"id"`
	Description string          `gorm:"type:text;not null" json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Paid        *bool           `gorm:"default:false" json:"paid"`
	PaymentDate *time.Time      `gorm:"column:payment_date" json:"paymentDate"`
	ContractID  int64           `gorm:"column:contract_id;index" json:"contractId"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func (Job) TableName() string { return "jobs" }

// IsPaid treats an unset paid flag as unpaid.
func (j Job) IsPaid() bool {
	return j.Paid != nil && *j.Paid
}

// JobReceipt is everything needed to render proof of payment for a job.
type JobReceipt struct {
	Job        Job
	Contract   Contract
	Client     Profile
	Contractor Profile
}
