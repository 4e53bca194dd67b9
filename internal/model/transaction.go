package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeDeposit    TransactionType = "DEPOSIT"
	TypeWithdrawal TransactionType = "WITHDRAWAL"
	TypeConversion TransactionType = "CONVERSION"
	TypeFee        TransactionType = "FEE"
	TypeTransfer   TransactionType = "TRANSFER"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypeConversion, TypeFee, TypeTransfer:
		return true
	}
	return false
}

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Transaction is an immutable ledger entry. The sign of Amount encodes
// debit/credit. Only Status may change after creation, and only from PENDING.
type Transaction struct {
	ID                string            `gorm:"type:uuid;primaryKey"`
	UserID            string            `gorm:"type:uuid;not null;index"`
	WalletID          string            `gorm:"type:uuid;not null"`
	Amount            decimal.Decimal   `gorm:"type:numeric(20,8);not null"`
	Currency          Currency          `gorm:"size:3;not null"`
	Type              TransactionType   `gorm:"size:32;not null"`
	Status            TransactionStatus `gorm:"size:16;not null"`
	Reference         string            `gorm:"size:64;not null;uniqueIndex"`
	BatchID           *string           `gorm:"size:64;index"`
	Description       *string           `gorm:"size:255"`
	ExternalReference *string           `gorm:"size:128"`
	Metadata          *string           `gorm:"type:jsonb"`
	CreatedAt         time.Time         `gorm:"autoCreateTime"`
}

func (Transaction) TableName() string { return "transaction" }
