package model

import "time"

// VirtualAccount is a provider-issued bank account number routed to one
// internal balance. At most one per balance; never re-issued once committed.
type VirtualAccount struct {
	ID                string    `gorm:"type:uuid;primaryKey"`
	BalanceID         string    `gorm:"type:uuid;not null;uniqueIndex"`
	AccountNumber     string    `gorm:"size:32;not null"`
	AccountName       string    `gorm:"size:255;not null"`
	BankName          string    `gorm:"size:255;not null"`
	Currency          Currency  `gorm:"size:3;not null"`
	Provider          string    `gorm:"size:64;not null"`
	ProviderAccountID string    `gorm:"size:64;not null"`
	ProviderReference string    `gorm:"size:128;not null"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
}

func (VirtualAccount) TableName() string { return "virtual_account" }
