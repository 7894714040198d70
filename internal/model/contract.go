package model

import "time"

type ContractStatus string

const (
	ContractStatusNew        ContractStatus = "new"
	ContractStatusInProgress ContractStatus = "in_progress"
	ContractStatusTerminated ContractStatus = "terminated"
)

type Contract struct {
	ID           int64          `gorm:"primaryKey" json:"id"`
	Terms        string         `gorm:"type:text;not null" json:"terms"`
	Status       ContractStatus `gorm:"type:contract_status" json:"status"`
	ClientID     int64          `gorm:"column:client_id;index" json:"clientId"`
	ContractorID int64          `gorm:"column:contractor_id;index" json:"contractorId"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

func (Contract) TableName() string { return "contracts" }

// IsActive reports whether the contract has not been terminated.
func (c Contract) IsActive() bool {
	return c.Status != ContractStatusTerminated
}

// HasParty reports whether the profile is the client or the contractor.
func (c Contract) HasParty(profileID int64) bool {
	return c.ClientID == profileID || c.ContractorID == profileID
}
