package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/nairapay/wallet-service/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a looked-up entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a uniqueness constraint rejects a write
// (duplicate email, wallet, balance currency or transaction reference).
var ErrConflict = errors.New("conflict")

// ErrStatusFinal is returned when a status transition targets a transaction
// that already reached a terminal state.
var ErrStatusFinal = errors.New("transaction status is final")

// TransactionFilter narrows ledger queries. All fields are optional and
// conjunctive.
type TransactionFilter struct {
	Type      *model.TransactionType
	Currency  *model.Currency
	Status    *model.TransactionStatus
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// RepositoryInterface restricts Repo methods (方便单元测试 mock)
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB

	CreateUser(ctx context.Context, tx *gorm.DB, u *model.User) error
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	FindUserByID(ctx context.Context, id string) (*model.User, error)

	CreateWallet(ctx context.Context, tx *gorm.DB, w *model.Wallet) error
	CreateBalances(ctx context.Context, tx *gorm.DB, balances []model.Balance) error
	FindWalletByUserID(ctx context.Context, userID string) (*model.Wallet, error)
	FindBalance(ctx context.Context, userID string, currency model.Currency) (*model.Balance, error)
	FindBalances(ctx context.Context, userID string) ([]model.Balance, error)

	CreateVirtualAccount(ctx context.Context, tx *gorm.DB, va *model.VirtualAccount) error
	FindVirtualAccountByBalanceID(ctx context.Context, balanceID string) (*model.VirtualAccount, error)
	FindVirtualAccountsByUserID(ctx context.Context, userID string) ([]model.VirtualAccount, error)

	CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error
	CreateTransactions(ctx context.Context, tx *gorm.DB, ts []model.Transaction) error
	FindTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	FindTransactionByReference(ctx context.Context, reference string) (*model.Transaction, error)
	FindTransactionsByBatchID(ctx context.Context, batchID string) ([]model.Transaction, error)
	QueryTransactions(ctx context.Context, userID string, f TransactionFilter) ([]model.Transaction, error)
	CompletedTransactions(ctx context.Context, userID string, f TransactionFilter) ([]model.Transaction, error)
	TransitionTransactionStatus(ctx context.Context, id string, to model.TransactionStatus) (*model.Transaction, error)

	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error

	CacheBalance(ctx context.Context, userID string, currency model.Currency, amount decimal.Decimal) error
	GetCachedBalance(ctx context.Context, userID string, currency model.Currency) (decimal.Decimal, error)
}

// Repository implements RepositoryInterface.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// isUniqueViolation matches the postgres and sqlite duplicate-key messages.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// CreateUser inserts the user row.
func (r *Repository) CreateUser(ctx context.Context, tx *gorm.DB, u *model.User) error {
	return mapWriteErr(tx.WithContext(ctx).Create(u).Error)
}

// FindUserByEmail looks a user up by unique email.
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *Repository) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// CreateWallet inserts the wallet row; a second wallet for the same user is a
// conflict.
func (r *Repository) CreateWallet(ctx context.Context, tx *gorm.DB, w *model.Wallet) error {
	return mapWriteErr(tx.WithContext(ctx).Create(w).Error)
}

// CreateBalances inserts all seed balances as one multi-row statement.
func (r *Repository) CreateBalances(ctx context.Context, tx *gorm.DB, balances []model.Balance) error {
	return mapWriteErr(tx.WithContext(ctx).Create(&balances).Error)
}

// FindWalletByUserID loads the wallet with balances (currency ascending) and
// their virtual accounts.
func (r *Repository) FindWalletByUserID(ctx context.Context, userID string) (*model.Wallet, error) {
	var w model.Wallet
	err := r.db.WithContext(ctx).
		Preload("Balances", func(db *gorm.DB) *gorm.DB { return db.Order("currency asc") }).
		Preload("Balances.VirtualAccount").
		Where("user_id = ?", userID).
		First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (r *Repository) FindBalance(ctx context.Context, userID string, currency model.Currency) (*model.Balance, error) {
	var b model.Balance
	err := r.db.WithContext(ctx).
		Joins("JOIN wallet ON wallet.id = balance.wallet_id").
		Where("wallet.user_id = ? AND balance.currency = ?", userID, currency).
		First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *Repository) FindBalances(ctx context.Context, userID string) ([]model.Balance, error) {
	var bs []model.Balance
	err := r.db.WithContext(ctx).
		Joins("JOIN wallet ON wallet.id = balance.wallet_id").
		Where("wallet.user_id = ?", userID).
		Order("balance.currency asc").
		Find(&bs).Error
	return bs, err
}

// CreateVirtualAccount inserts the provider-issued account row.
func (r *Repository) CreateVirtualAccount(ctx context.Context, tx *gorm.DB, va *model.VirtualAccount) error {
	return mapWriteErr(tx.WithContext(ctx).Create(va).Error)
}

func (r *Repository) FindVirtualAccountByBalanceID(ctx context.Context, balanceID string) (*model.VirtualAccount, error) {
	var va model.VirtualAccount
	if err := r.db.WithContext(ctx).Where("balance_id = ?", balanceID).First(&va).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &va, nil
}

func (r *Repository) FindVirtualAccountsByUserID(ctx context.Context, userID string) ([]model.VirtualAccount, error) {
	var vas []model.VirtualAccount
	err := r.db.WithContext(ctx).
		Joins("JOIN balance ON balance.id = virtual_account.balance_id").
		Joins("JOIN wallet ON wallet.id = balance.wallet_id").
		Where("wallet.user_id = ?", userID).
		Find(&vas).Error
	return vas, err
}

// CreateTransaction inserts one ledger entry.
func (r *Repository) CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	return mapWriteErr(tx.WithContext(ctx).Create(t).Error)
}

// CreateTransactions inserts a batch as one multi-row statement so readers
// never observe a partial batch.
func (r *Repository) CreateTransactions(ctx context.Context, tx *gorm.DB, ts []model.Transaction) error {
	return mapWriteErr(tx.WithContext(ctx).Create(&ts).Error)
}

func (r *Repository) FindTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	var t model.Transaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *Repository) FindTransactionByReference(ctx context.Context, reference string) (*model.Transaction, error) {
	var t model.Transaction
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// FindTransactionsByBatchID returns batch members oldest-first.
func (r *Repository) FindTransactionsByBatchID(ctx context.Context, batchID string) ([]model.Transaction, error) {
	var ts []model.Transaction
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at asc, id asc").
		Find(&ts).Error
	return ts, err
}

func applyFilter(db *gorm.DB, f TransactionFilter) *gorm.DB {
	if f.Type != nil {
		db = db.Where("type = ?", *f.Type)
	}
	if f.Currency != nil {
		db = db.Where("currency = ?", *f.Currency)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.StartDate != nil {
		db = db.Where("created_at >= ?", *f.StartDate)
	}
	if f.EndDate != nil {
		db = db.Where("created_at <= ?", *f.EndDate)
	}
	return db
}

// QueryTransactions returns a user's entries newest-first with pagination.
func (r *Repository) QueryTransactions(ctx context.Context, userID string, f TransactionFilter) ([]model.Transaction, error) {
	var ts []model.Transaction
	db := applyFilter(r.db.WithContext(ctx).Where("user_id = ?", userID), f)
	err := db.Order("created_at desc, id desc").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&ts).Error
	return ts, err
}

// CompletedTransactions returns every COMPLETED entry matching the filter,
// unpaginated, for summary aggregation. Type and Status filter fields are
// ignored here: only COMPLETED rows count toward a summary.
func (r *Repository) CompletedTransactions(ctx context.Context, userID string, f TransactionFilter) ([]model.Transaction, error) {
	var ts []model.Transaction
	db := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.StatusCompleted)
	if f.Currency != nil {
		db = db.Where("currency = ?", *f.Currency)
	}
	if f.StartDate != nil {
		db = db.Where("created_at >= ?", *f.StartDate)
	}
	if f.EndDate != nil {
		db = db.Where("created_at <= ?", *f.EndDate)
	}
	err := db.Find(&ts).Error
	return ts, err
}

// TransitionTransactionStatus moves a PENDING entry to a terminal status.
// The conditional update keeps terminal states immutable under concurrency.
func (r *Repository) TransitionTransactionStatus(ctx context.Context, id string, to model.TransactionStatus) (*model.Transaction, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND status = ?", id, model.StatusPending).
		Update("status", to)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var t model.Transaction
		if err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrStatusFinal, t.Status)
	}
	return r.FindTransactionByID(ctx, id)
}

// CreateOutboxEvent writes event.
func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return tx.WithContext(ctx).Create(evt).Error
}

// PollOutbox pulls unprocessed events.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed=false").Order("created_at").Limit(limit).Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id=?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}

// PublishEvent sends to Kafka.
func (r *Repository) PublishEvent(ctx context.Context, evt model.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(evt.AggregateID),
		Value: []byte(evt.Payload),
		Time:  time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}

func balanceKey(userID string, currency model.Currency) string {
	return fmt.Sprintf("balance:%s:%s", userID, currency)
}

// CacheBalance writes Redis. Wallets are 1:1 with users, so the cache is
// keyed by user id to spare a wallet lookup on the read path.
func (r *Repository) CacheBalance(ctx context.Context, userID string, currency model.Currency, amount decimal.Decimal) error {
	return r.rdb.Set(ctx, balanceKey(userID, currency), amount.String(), 5*time.Minute).Err()
}

// GetCachedBalance reads Redis.
func (r *Repository) GetCachedBalance(ctx context.Context, userID string, currency model.Currency) (decimal.Decimal, error) {
	str, err := r.rdb.Get(ctx, balanceKey(userID, currency)).Result()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(str)
}
