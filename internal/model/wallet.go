package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is a user's container of per-currency balances. One per user,
// never deleted once created.
type Wallet struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"type:uuid;not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"autoCreateTime"`

	Balances []Balance `gorm:"foreignKey:WalletID"`
}

func (Wallet) TableName() string { return "wallet" }

// Balance holds the amount for one (wallet, currency) pair.
type Balance struct {
	ID       string          `gorm:"type:uuid;primaryKey"`
	WalletID string          `gorm:"type:uuid;not null;uniqueIndex:idx_balance_wallet_currency"`
	Currency Currency        `gorm:"size:3;not null;uniqueIndex:idx_balance_wallet_currency"`
	Amount   decimal.Decimal `gorm:"type:numeric(20,8);not null;default:'0'"`

	VirtualAccount *VirtualAccount `gorm:"foreignKey:BalanceID"`
}

func (Balance) TableName() string { return "balance" }
