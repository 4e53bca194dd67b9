package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nairapay/wallet-service/internal/logger"
	"github.com/nairapay/wallet-service/internal/model"
	"github.com/nairapay/wallet-service/internal/repo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func newLedger(t *testing.T) (*LedgerService, *repo.Repository) {
	t.Helper()
	r, _ := newTestRepo(t)
	return NewLedgerService(r, logger.NewNop()), r
}

func entry(userID string, amount string, currency model.Currency) EntryInput {
	return EntryInput{
		UserID:   userID,
		WalletID: uuid.NewString(),
		Amount:   decimal.RequireFromString(amount),
		Currency: currency,
		Type:     model.TypeDeposit,
	}
}

func TestRecordSingle_DefaultsToCompletedWithReference(t *testing.T) {
	ledger, _ := newLedger(t)
	userID := uuid.NewString()

	tx, err := ledger.RecordSingle(context.Background(), entry(userID, "100", model.CurrencyNGN))
	assert.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, tx.Status)
	assert.Contains(t, tx.Reference, "TXN-")
	assert.Nil(t, tx.BatchID)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(100)))
}

func TestRecordSingle_ExplicitPending(t *testing.T) {
	ledger, _ := newLedger(t)
	in := entry(uuid.NewString(), "250", model.CurrencyUSD)
	in.Status = model.StatusPending

	tx, err := ledger.RecordSingle(context.Background(), in)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusPending, tx.Status)
}

func TestRecordSingle_RejectsUnknownStatus(t *testing.T) {
	ledger, r := newLedger(t)
	userID := uuid.NewString()

	in := entry(userID, "100", model.CurrencyNGN)
	in.Status = model.TransactionStatus("CANCELLED")

	_, err := ledger.RecordSingle(context.Background(), in)
	assert.ErrorIs(t, err, ErrUnsupportedInput)

	rows, err := r.QueryTransactions(context.Background(), userID, repo.TransactionFilter{Limit: 10})
	assert.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRecordBatch_SharedBatchIDUniqueReferences(t *testing.T) {
	ledger, _ := newLedger(t)
	userID := uuid.NewString()

	txs, err := ledger.RecordBatch(context.Background(), userID, []EntryInput{
		entry(userID, "100", model.CurrencyNGN),
		entry(userID, "-30", model.CurrencyNGN),
	}, nil)
	assert.NoError(t, err)
	assert.Len(t, txs, 2)

	assert.NotNil(t, txs[0].BatchID)
	assert.Equal(t, *txs[0].BatchID, *txs[1].BatchID)
	assert.NotEqual(t, txs[0].Reference, txs[1].Reference)
	for _, tx := range txs {
		assert.Equal(t, model.StatusCompleted, tx.Status)
	}
}

func TestRecordBatch_OwnershipMismatchPersistsNothing(t *testing.T) {
	ledger, r := newLedger(t)
	userID := uuid.NewString()

	_, err := ledger.RecordBatch(context.Background(), userID, []EntryInput{
		entry(userID, "100", model.CurrencyNGN),
		entry(uuid.NewString(), "-30", model.CurrencyNGN),
	}, nil)
	assert.ErrorIs(t, err, ErrBatchOwnership)

	rows, err := r.QueryTransactions(context.Background(), userID, repo.TransactionFilter{Limit: 10})
	assert.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRecordBatch_Empty(t *testing.T) {
	ledger, _ := newLedger(t)
	_, err := ledger.RecordBatch(context.Background(), uuid.NewString(), nil, nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestRecordBatch_DistinctBatchIDsOnRepeat(t *testing.T) {
	ledger, _ := newLedger(t)
	userID := uuid.NewString()
	entries := []EntryInput{entry(userID, "100", model.CurrencyNGN)}

	first, err := ledger.RecordBatch(context.Background(), userID, entries, nil)
	assert.NoError(t, err)
	second, err := ledger.RecordBatch(context.Background(), userID, entries, nil)
	assert.NoError(t, err)

	assert.NotEqual(t, *first[0].BatchID, *second[0].BatchID)
}

func TestRecordBatch_DescriptionPrefix(t *testing.T) {
	ledger, _ := newLedger(t)
	userID := uuid.NewString()
	desc := "ngn deducted"
	in := entry(userID, "-100", model.CurrencyNGN)
	in.Description = &desc
	batchDesc := "Converted NGN to USD"

	txs, err := ledger.RecordBatch(context.Background(), userID, []EntryInput{in}, &batchDesc)
	assert.NoError(t, err)
	assert.Equal(t, "Converted NGN to USD - ngn deducted", *txs[0].Description)
}

func TestSummarize_PerCurrencyDecimalTotals(t *testing.T) {
	ledger, _ := newLedger(t)
	userID := uuid.NewString()

	for _, in := range []EntryInput{
		entry(userID, "100", model.CurrencyNGN),
		entry(userID, "-30", model.CurrencyNGN),
		entry(userID, "50", model.CurrencyUSD),
	} {
		_, err := ledger.RecordSingle(context.Background(), in)
		assert.NoError(t, err)
	}

	summary, err := ledger.Summarize(context.Background(), userID, repo.TransactionFilter{})
	assert.NoError(t, err)
	assert.Len(t, summary, 2)

	ngn, usd := summary[0], summary[1]
	assert.Equal(t, model.CurrencyNGN, ngn.Currency)
	assert.True(t, ngn.TotalIncome.Equal(decimal.NewFromInt(100)))
	assert.True(t, ngn.TotalExpenses.Equal(decimal.NewFromInt(30)))
	assert.True(t, ngn.NetAmount.Equal(decimal.NewFromInt(70)))

	assert.Equal(t, model.CurrencyUSD, usd.Currency)
	assert.True(t, usd.TotalIncome.Equal(decimal.NewFromInt(50)))
	assert.True(t, usd.TotalExpenses.Equal(decimal.Zero))
	assert.True(t, usd.NetAmount.Equal(decimal.NewFromInt(50)))
}

func TestSummarize_IgnoresPendingAndFailed(t *testing.T) {
	ledger, _ := newLedger(t)
	userID := uuid.NewString()

	pending := entry(userID, "999", model.CurrencyNGN)
	pending.Status = model.StatusPending
	_, err := ledger.RecordSingle(context.Background(), pending)
	assert.NoError(t, err)
	_, err = ledger.RecordSingle(context.Background(), entry(userID, "10", model.CurrencyNGN))
	assert.NoError(t, err)

	summary, err := ledger.Summarize(context.Background(), userID, repo.TransactionFilter{})
	assert.NoError(t, err)
	assert.Len(t, summary, 1)
	assert.True(t, summary[0].NetAmount.Equal(decimal.NewFromInt(10)))
}

func TestQuery_NewestFirstWithPagination(t *testing.T) {
	ledger, r := newLedger(t)
	userID := uuid.NewString()
	base := time.Now().Add(-time.Hour)

	var newest string
	for i := 0; i < 5; i++ {
		tx := model.Transaction{
			ID:        uuid.NewString(),
			UserID:    userID,
			WalletID:  uuid.NewString(),
			Amount:    decimal.NewFromInt(int64(i + 1)),
			Currency:  model.CurrencyNGN,
			Type:      model.TypeDeposit,
			Status:    model.StatusCompleted,
			Reference: "TXN-" + uuid.NewString(),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		assert.NoError(t, r.CreateTransaction(context.Background(), r.DB(context.Background()), &tx))
		newest = tx.ID
	}

	rows, err := ledger.Query(context.Background(), userID, repo.TransactionFilter{Limit: 1})
	assert.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, newest, rows[0].ID)

	// default limit applies when none is given
	all, err := ledger.Query(context.Background(), userID, repo.TransactionFilter{})
	assert.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestQuery_ConjunctiveFilters(t *testing.T) {
	ledger, _ := newLedger(t)
	userID := uuid.NewString()

	_, err := ledger.RecordSingle(context.Background(), entry(userID, "100", model.CurrencyNGN))
	assert.NoError(t, err)
	usdIn := entry(userID, "50", model.CurrencyUSD)
	usdIn.Type = model.TypeConversion
	_, err = ledger.RecordSingle(context.Background(), usdIn)
	assert.NoError(t, err)

	cur := model.CurrencyUSD
	typ := model.TypeConversion
	rows, err := ledger.Query(context.Background(), userID, repo.TransactionFilter{Currency: &cur, Type: &typ})
	assert.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, model.CurrencyUSD, rows[0].Currency)
}

func TestGetByReference_IdempotentAndNotFound(t *testing.T) {
	ledger, _ := newLedger(t)
	userID := uuid.NewString()

	created, err := ledger.RecordSingle(context.Background(), entry(userID, "100", model.CurrencyNGN))
	assert.NoError(t, err)

	first, err := ledger.GetByReference(context.Background(), created.Reference)
	assert.NoError(t, err)
	second, err := ledger.GetByReference(context.Background(), created.Reference)
	assert.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = ledger.GetByReference(context.Background(), "TXN-missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestGetByBatchID_OldestFirst(t *testing.T) {
	ledger, _ := newLedger(t)
	userID := uuid.NewString()

	txs, err := ledger.RecordBatch(context.Background(), userID, []EntryInput{
		entry(userID, "100", model.CurrencyNGN),
		entry(userID, "-30", model.CurrencyNGN),
	}, nil)
	assert.NoError(t, err)

	got, err := ledger.GetByBatchID(context.Background(), *txs[0].BatchID)
	assert.NoError(t, err)
	assert.Len(t, got, 2)
	assert.False(t, got[1].CreatedAt.Before(got[0].CreatedAt))
}

func TestTransitionStatus_PendingToTerminalOnly(t *testing.T) {
	ledger, _ := newLedger(t)
	in := entry(uuid.NewString(), "100", model.CurrencyNGN)
	in.Status = model.StatusPending

	created, err := ledger.RecordSingle(context.Background(), in)
	assert.NoError(t, err)

	done, err := ledger.TransitionStatus(context.Background(), created.ID, model.StatusCompleted)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)

	// terminal states never change again
	_, err = ledger.TransitionStatus(context.Background(), created.ID, model.StatusFailed)
	assert.ErrorIs(t, err, repo.ErrStatusFinal)

	// only terminal targets are allowed
	_, err = ledger.TransitionStatus(context.Background(), created.ID, model.StatusPending)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = ledger.TransitionStatus(context.Background(), uuid.NewString(), model.StatusFailed)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}
