package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/google/uuid"
	"github.com/nairapay/wallet-service/internal/logger"
	"github.com/nairapay/wallet-service/internal/model"
	"github.com/nairapay/wallet-service/internal/provider"
	"github.com/nairapay/wallet-service/internal/repo"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// newTestRepo opens a private in-memory SQLite DB. The named shared-cache DSN
// keeps gorm's pooled connections on the same database.
func newTestRepo(t *testing.T) (*repo.Repository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&model.User{}, &model.Wallet{}, &model.Balance{},
		&model.VirtualAccount{}, &model.Transaction{}, &model.OutboxEvent{},
	))
	rdb, _ := redismock.NewClientMock()
	return repo.NewRepository(db, rdb, &kafka.Writer{}, logger.NewNop()), db
}

// fakeIssuer scripts the external provider: the first failFirst calls return
// failWith, the rest succeed with details.
type fakeIssuer struct {
	calls     int
	failFirst int
	failWith  error
	details   provider.VirtualAccountDetails
}

// gatedIssuer blocks inside the provider call until released, deliberately
// ignoring the request context, so tests can hold a provisioning transaction
// in flight.
type gatedIssuer struct {
	entered chan struct{}
	release chan struct{}
}

func newGatedIssuer() *gatedIssuer {
	return &gatedIssuer{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gatedIssuer) IssueVirtualAccount(ctx context.Context, req provider.IssueRequest) (*provider.VirtualAccountDetails, error) {
	g.entered <- struct{}{}
	<-g.release
	return &provider.VirtualAccountDetails{
		AccountNumber:     "0690000001",
		AccountName:       "Ada Obi",
		BankName:          "Test Bank",
		ProviderAccountID: "12345",
		ProviderReference: req.Reference,
	}, nil
}

func (f *fakeIssuer) IssueVirtualAccount(ctx context.Context, req provider.IssueRequest) (*provider.VirtualAccountDetails, error) {
	f.calls++
	if f.calls <= f.failFirst {
		return nil, f.failWith
	}
	d := f.details
	if d.AccountNumber == "" {
		d = provider.VirtualAccountDetails{
			AccountNumber:     "0690000001",
			AccountName:       "Ada Obi",
			BankName:          "Test Bank",
			ProviderAccountID: "12345",
			ProviderReference: req.Reference,
		}
	}
	return &d, nil
}
