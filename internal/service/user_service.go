package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nairapay/wallet-service/internal/model"
	"github.com/nairapay/wallet-service/internal/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrEmailInUse means another account already owns the email.
var ErrEmailInUse = errors.New("email already in use")

// ErrProvisioningBusy means no provisioning transaction slot freed up within
// the queue-wait bound; the caller may retry.
var ErrProvisioningBusy = errors.New("provisioning capacity exhausted, retry later")

// NewUser is a signup identity already validated upstream.
type NewUser struct {
	Email     string
	FirstName string
	LastName  string
}

// UserService is the signup entry point: it creates the user row and
// provisions the wallet under one database transaction, so both succeed or
// neither does.
type UserService struct {
	repo      repo.RepositoryInterface
	wallets   *WalletService
	slots     chan struct{}
	slotWait  time.Duration
	txTimeout time.Duration
	log       *zap.SugaredLogger
}

// NewUserService returns UserService. slots bounds concurrent provisioning
// transactions; slotWait bounds the queue wait for a slot; txTimeout bounds
// the whole provisioning transaction lifetime.
func NewUserService(r repo.RepositoryInterface, wallets *WalletService, slots int, slotWait, txTimeout time.Duration, logger *zap.SugaredLogger) *UserService {
	return &UserService{
		repo:      r,
		wallets:   wallets,
		slots:     make(chan struct{}, slots),
		slotWait:  slotWait,
		txTimeout: txTimeout,
		log:       logger,
	}
}

// RegisterUser creates the user, wallet, balances and virtual account
// atomically. On any failure nothing is persisted.
func (s *UserService) RegisterUser(ctx context.Context, input NewUser) (*model.User, *model.Wallet, error) {
	if _, err := s.repo.FindUserByEmail(ctx, input.Email); err == nil {
		return nil, nil, ErrEmailInUse
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, nil, err
	}

	select {
	case s.slots <- struct{}{}:
	case <-time.After(s.slotWait):
		return nil, nil, ErrProvisioningBusy
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	defer func() { <-s.slots }()

	// The transaction keeps its own lifetime: a cancelled inbound request
	// must not abort it halfway, and a stalled provider call must not hold
	// database resources past the bound.
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.txTimeout)
	defer cancel()

	user := &model.User{
		ID:        uuid.NewString(),
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
	}
	var wallet *model.Wallet
	err := s.repo.DB(opCtx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.CreateUser(opCtx, tx, user); err != nil {
			return err
		}
		w, err := s.wallets.ProvisionWallet(opCtx, tx, user)
		if err != nil {
			return err
		}
		wallet = w
		return nil
	})
	if err != nil {
		s.log.Errorw("signup provisioning failed", "email", input.Email, "error", err)
		if errors.Is(err, repo.ErrConflict) {
			return nil, nil, fmt.Errorf("%w: %v", ErrEmailInUse, err)
		}
		return nil, nil, err
	}
	return user, wallet, nil
}

// FindByEmail returns the user owning the email.
func (s *UserService) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.repo.FindUserByEmail(ctx, email)
}

// FindByID returns the user by id.
func (s *UserService) FindByID(ctx context.Context, id string) (*model.User, error) {
	return s.repo.FindUserByID(ctx, id)
}
