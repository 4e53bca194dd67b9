package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/nairapay/wallet-service/internal/model"
	"github.com/nairapay/wallet-service/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrEmptyBatch means a batch post carried no entries.
var ErrEmptyBatch = errors.New("batch must contain at least one transaction")

// ErrBatchOwnership means an entry's user differs from the batch's user.
var ErrBatchOwnership = errors.New("all transactions in batch must belong to same user")

// ErrInvalidStatus means a status transition targets a non-terminal status.
var ErrInvalidStatus = errors.New("status must be COMPLETED or FAILED")

// ErrUnsupportedInput means an entry carried an unknown currency, type or
// status.
var ErrUnsupportedInput = errors.New("unsupported currency, type or status")

const (
	defaultQueryLimit  = 50
	defaultQueryOffset = 0
)

// EntryInput is the data needed to post one ledger entry. The sign of Amount
// encodes debit/credit.
type EntryInput struct {
	UserID            string
	WalletID          string
	Amount            decimal.Decimal
	Currency          model.Currency
	Type              model.TransactionType
	Status            model.TransactionStatus // optional; defaults to COMPLETED
	Description       *string
	ExternalReference *string
	Metadata          map[string]interface{}
}

// CurrencySummary aggregates completed entries for one currency.
type CurrencySummary struct {
	Currency      model.Currency  `json:"currency"`
	TotalIncome   decimal.Decimal `json:"total_income"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	NetAmount     decimal.Decimal `json:"net_amount"`
}

// LedgerService records and queries immutable monetary events.
type LedgerService struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

// NewLedgerService returns LedgerService.
func NewLedgerService(r repo.RepositoryInterface, logger *zap.SugaredLogger) *LedgerService {
	return &LedgerService{repo: r, log: logger}
}

func generateReference() string { return "TXN-" + uuid.NewString() }
func generateBatchID() string   { return "BATCH-" + uuid.NewString() }

func buildTransaction(in EntryInput, batchID, description *string) (model.Transaction, error) {
	if !in.Currency.Valid() || !in.Type.Valid() {
		return model.Transaction{}, ErrUnsupportedInput
	}
	status := in.Status
	if status == "" {
		status = model.StatusCompleted
	} else if !status.Valid() {
		return model.Transaction{}, ErrUnsupportedInput
	}
	t := model.Transaction{
		ID:                uuid.NewString(),
		UserID:            in.UserID,
		WalletID:          in.WalletID,
		Amount:            in.Amount,
		Currency:          in.Currency,
		Type:              in.Type,
		Status:            status,
		Reference:         generateReference(),
		BatchID:           batchID,
		Description:       description,
		ExternalReference: in.ExternalReference,
	}
	if in.Metadata != nil {
		raw, err := json.Marshal(in.Metadata)
		if err != nil {
			return model.Transaction{}, err
		}
		s := string(raw)
		t.Metadata = &s
	}
	return t, nil
}

// RecordSingle posts one entry with a fresh unique reference. Status defaults
// to COMPLETED: these are already-executed internal postings.
func (s *LedgerService) RecordSingle(ctx context.Context, in EntryInput) (*model.Transaction, error) {
	t, err := buildTransaction(in, nil, in.Description)
	if err != nil {
		return nil, err
	}
	err = s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.CreateTransaction(ctx, tx, &t); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"transaction_id": t.ID, "user_id": t.UserID, "amount": t.Amount, "currency": t.Currency,
		})
		evt := &model.OutboxEvent{
			Aggregate: "Ledger", AggregateID: t.ID, EventType: "TransactionRecorded", Payload: string(payload),
		}
		return s.repo.CreateOutboxEvent(ctx, tx, evt)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// RecordBatch posts all entries under one fresh batch id as a single atomic
// unit; readers observe the batch as fully present or fully absent.
func (s *LedgerService) RecordBatch(ctx context.Context, userID string, entries []EntryInput, batchDescription *string) ([]model.Transaction, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyBatch
	}
	for _, in := range entries {
		if in.UserID != userID {
			return nil, ErrBatchOwnership
		}
	}

	batchID := generateBatchID()
	rows := make([]model.Transaction, 0, len(entries))
	for _, in := range entries {
		desc := in.Description
		if batchDescription != nil && *batchDescription != "" {
			joined := *batchDescription
			if in.Description != nil {
				joined = strings.TrimSpace(joined + " - " + *in.Description)
			}
			desc = &joined
		}
		in.Status = model.StatusCompleted
		t, err := buildTransaction(in, &batchID, desc)
		if err != nil {
			return nil, err
		}
		rows = append(rows, t)
	}

	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.CreateTransactions(ctx, tx, rows); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"batch_id": batchID, "user_id": userID, "count": len(rows),
		})
		evt := &model.OutboxEvent{
			Aggregate: "Ledger", AggregateID: batchID, EventType: "BatchRecorded", Payload: string(payload),
		}
		return s.repo.CreateOutboxEvent(ctx, tx, evt)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.FindTransactionsByBatchID(ctx, batchID)
}

// Query returns the user's entries newest-first. Limit defaults to 50,
// offset to 0.
func (s *LedgerService) Query(ctx context.Context, userID string, f repo.TransactionFilter) ([]model.Transaction, error) {
	if f.Limit <= 0 {
		f.Limit = defaultQueryLimit
	}
	if f.Offset < 0 {
		f.Offset = defaultQueryOffset
	}
	return s.repo.QueryTransactions(ctx, userID, f)
}

// GetByID returns one entry by id.
func (s *LedgerService) GetByID(ctx context.Context, id string) (*model.Transaction, error) {
	return s.repo.FindTransactionByID(ctx, id)
}

// GetByReference returns one entry by its globally unique reference.
func (s *LedgerService) GetByReference(ctx context.Context, reference string) (*model.Transaction, error) {
	return s.repo.FindTransactionByReference(ctx, reference)
}

// GetByBatchID returns all entries of a batch, oldest-first.
func (s *LedgerService) GetByBatchID(ctx context.Context, batchID string) ([]model.Transaction, error) {
	return s.repo.FindTransactionsByBatchID(ctx, batchID)
}

// TransitionStatus moves a PENDING entry to COMPLETED or FAILED. Terminal
// states never change again.
func (s *LedgerService) TransitionStatus(ctx context.Context, id string, to model.TransactionStatus) (*model.Transaction, error) {
	if to != model.StatusCompleted && to != model.StatusFailed {
		return nil, ErrInvalidStatus
	}
	return s.repo.TransitionTransactionStatus(ctx, id, to)
}

// Summarize aggregates the user's COMPLETED entries per currency: income is
// the sum of positive amounts, expenses the absolute sum of negative ones,
// net the signed sum. Accumulation is exact decimal, never floating point.
func (s *LedgerService) Summarize(ctx context.Context, userID string, f repo.TransactionFilter) ([]CurrencySummary, error) {
	rows, err := s.repo.CompletedTransactions(ctx, userID, f)
	if err != nil {
		return nil, err
	}

	byCurrency := make(map[model.Currency]*CurrencySummary)
	for _, t := range rows {
		sum, ok := byCurrency[t.Currency]
		if !ok {
			sum = &CurrencySummary{
				Currency:      t.Currency,
				TotalIncome:   decimal.Zero,
				TotalExpenses: decimal.Zero,
				NetAmount:     decimal.Zero,
			}
			byCurrency[t.Currency] = sum
		}
		if t.Amount.GreaterThan(decimal.Zero) {
			sum.TotalIncome = sum.TotalIncome.Add(t.Amount)
		} else {
			sum.TotalExpenses = sum.TotalExpenses.Add(t.Amount.Abs())
		}
		sum.NetAmount = sum.NetAmount.Add(t.Amount)
	}

	out := make([]CurrencySummary, 0, len(byCurrency))
	for _, sum := range byCurrency {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}
