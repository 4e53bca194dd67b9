package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nairapay/wallet-service/internal/model"
	"github.com/nairapay/wallet-service/internal/provider"
	"github.com/nairapay/wallet-service/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrPrimaryBalanceMissing means the configured primary currency is not in
// the supported set; provisioning cannot bind a virtual account.
var ErrPrimaryBalanceMissing = errors.New("primary currency balance missing")

// WalletService provisions wallets and serves the wallet read model.
type WalletService struct {
	repo       repo.RepositoryInterface
	issuer     provider.Issuer
	currencies []model.Currency
	primary    model.Currency
	bvn        string
	log        *zap.SugaredLogger
}

// NewWalletService returns WalletService.
func NewWalletService(r repo.RepositoryInterface, issuer provider.Issuer, currencies []model.Currency, primary model.Currency, bvn string, logger *zap.SugaredLogger) *WalletService {
	return &WalletService{repo: r, issuer: issuer, currencies: currencies, primary: primary, bvn: bvn, log: logger}
}

// ProvisionWallet creates the wallet, one zero balance per supported currency
// and the primary-currency virtual account, all on the caller's transaction
// handle. Any failure aborts the whole handle; no partial commit happens
// here.
func (s *WalletService) ProvisionWallet(ctx context.Context, tx *gorm.DB, user *model.User) (*model.Wallet, error) {
	wallet := &model.Wallet{ID: uuid.NewString(), UserID: user.ID}
	if err := s.repo.CreateWallet(ctx, tx, wallet); err != nil {
		return nil, err
	}

	balances := make([]model.Balance, 0, len(s.currencies))
	for _, currency := range s.currencies {
		balances = append(balances, model.Balance{
			ID:       uuid.NewString(),
			WalletID: wallet.ID,
			Currency: currency,
			Amount:   decimal.Zero,
		})
	}
	if err := s.repo.CreateBalances(ctx, tx, balances); err != nil {
		return nil, err
	}

	var primaryBalance *model.Balance
	for i := range balances {
		if balances[i].Currency == s.primary {
			primaryBalance = &balances[i]
			break
		}
	}
	if primaryBalance == nil {
		return nil, ErrPrimaryBalanceMissing
	}

	// idempotency reference for the external call: user id + coarse timestamp
	ref := fmt.Sprintf("v-acct-%s-%d", user.ID, time.Now().UnixMilli())
	details, err := s.issuer.IssueVirtualAccount(ctx, provider.IssueRequest{
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Reference:   ref,
		BVN:         s.bvn,
		IsPermanent: true,
		Narration:   "Virtual Account Creation",
		Currency:    s.primary,
	})
	if err != nil {
		s.log.Errorw("virtual account issuance failed", "user_id", user.ID, "error", err)
		return nil, err
	}

	accountName := details.AccountName
	if accountName == "" {
		accountName = user.FirstName + " " + user.LastName
	}
	providerRef := details.ProviderReference
	if providerRef == "" {
		providerRef = ref
	}
	va := &model.VirtualAccount{
		ID:                uuid.NewString(),
		BalanceID:         primaryBalance.ID,
		AccountNumber:     details.AccountNumber,
		AccountName:       accountName,
		BankName:          details.BankName,
		Currency:          s.primary,
		Provider:          "FLUTTERWAVE",
		ProviderAccountID: details.ProviderAccountID,
		ProviderReference: providerRef,
	}
	if err := s.repo.CreateVirtualAccount(ctx, tx, va); err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"user_id":        user.ID,
		"wallet_id":      wallet.ID,
		"account_number": va.AccountNumber,
		"bank_name":      va.BankName,
	})
	evt := &model.OutboxEvent{
		Aggregate: "Wallet", AggregateID: wallet.ID, EventType: "WalletProvisioned", Payload: string(payload),
	}
	if err := s.repo.CreateOutboxEvent(ctx, tx, evt); err != nil {
		return nil, err
	}

	s.log.Infow("wallet provisioned", "user_id", user.ID, "wallet_id", wallet.ID, "account_number", va.AccountNumber)
	wallet.Balances = balances
	return wallet, nil
}

// GetUserWallet returns the wallet with balances and virtual accounts.
func (s *WalletService) GetUserWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	return s.repo.FindWalletByUserID(ctx, userID)
}

// GetBalance returns one currency balance, read through the cache.
func (s *WalletService) GetBalance(ctx context.Context, userID string, currency model.Currency) (decimal.Decimal, error) {
	if cached, err := s.repo.GetCachedBalance(ctx, userID, currency); err == nil {
		return cached, nil
	}
	b, err := s.repo.FindBalance(ctx, userID, currency)
	if err != nil {
		return decimal.Zero, err
	}
	if err := s.repo.CacheBalance(ctx, userID, currency, b.Amount); err != nil {
		s.log.Warn(err)
	}
	return b.Amount, nil
}

// GetBalances returns all balances for the user, currency ascending.
func (s *WalletService) GetBalances(ctx context.Context, userID string) ([]model.Balance, error) {
	return s.repo.FindBalances(ctx, userID)
}

// GetVirtualAccount returns the virtual account bound to a balance.
func (s *WalletService) GetVirtualAccount(ctx context.Context, balanceID string) (*model.VirtualAccount, error) {
	return s.repo.FindVirtualAccountByBalanceID(ctx, balanceID)
}

// GetUserVirtualAccounts lists all virtual accounts across the user's balances.
func (s *WalletService) GetUserVirtualAccounts(ctx context.Context, userID string) ([]model.VirtualAccount, error) {
	return s.repo.FindVirtualAccountsByUserID(ctx, userID)
}
