package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nairapay/wallet-service/internal/logger"
	"github.com/nairapay/wallet-service/internal/model"
	"github.com/stretchr/testify/assert"
)

func testRequest() IssueRequest {
	return IssueRequest{
		Email:       "ada@example.com",
		FirstName:   "Ada",
		LastName:    "Obi",
		Reference:   "v-acct-u1-1700000000000",
		BVN:         "12345678901",
		IsPermanent: true,
		Narration:   "Virtual Account Creation",
		Currency:    model.CurrencyNGN,
	}
}

func successBody() string {
	return `{"status":"success","message":"ok","data":{"id":123,"account_number":"0690000001","account_name":"Ada Obi","bank_name":"Test Bank","order_ref":"ORD-1"}}`
}

func newTestClient(url string, maxRetries int, backoff time.Duration) *Client {
	return NewClient(url, "sk_test", time.Second, maxRetries, backoff, logger.NewNop())
}

func TestIssueVirtualAccount_Success(t *testing.T) {
	var gotBody issueBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, successBody())
	}))
	defer srv.Close()

	details, err := newTestClient(srv.URL, 3, time.Millisecond).IssueVirtualAccount(context.Background(), testRequest())
	assert.NoError(t, err)
	assert.Equal(t, "0690000001", details.AccountNumber)
	assert.Equal(t, "Test Bank", details.BankName)
	assert.Equal(t, "123", details.ProviderAccountID)
	assert.Equal(t, "ORD-1", details.ProviderReference)

	assert.Equal(t, "v-acct-u1-1700000000000", gotBody.TxRef)
	assert.True(t, gotBody.IsPermanent)
	assert.Equal(t, "NGN", gotBody.Currency)
}

func TestIssueVirtualAccount_RetriesTransientFailuresWithBackoff(t *testing.T) {
	var calls []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, time.Now())
		if len(calls) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, successBody())
	}))
	defer srv.Close()

	details, err := newTestClient(srv.URL, 3, 30*time.Millisecond).IssueVirtualAccount(context.Background(), testRequest())
	assert.NoError(t, err)
	assert.Equal(t, "0690000001", details.AccountNumber)

	// two transient failures then success: exactly three outbound calls,
	// with the backoff doubling between attempts
	assert.Len(t, calls, 3)
	firstGap := calls[1].Sub(calls[0])
	secondGap := calls[2].Sub(calls[1])
	assert.GreaterOrEqual(t, firstGap, 30*time.Millisecond)
	assert.Greater(t, secondGap, firstGap)
}

func TestIssueVirtualAccount_ExhaustedRetriesIsTimeout(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 2, time.Millisecond).IssueVirtualAccount(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 3, calls)
}

func TestIssueVirtualAccount_SemanticRejectionIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 3, time.Millisecond).IssueVirtualAccount(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, 1, calls)
}

func TestIssueVirtualAccount_InvalidSuccessBody(t *testing.T) {
	cases := map[string]string{
		"error status":   `{"status":"error","message":"nope"}`,
		"missing data":   `{"status":"success"}`,
		"missing fields": `{"status":"success","data":{"account_name":"Ada Obi"}}`,
		"missing bank":   `{"status":"success","data":{"account_number":"0690000001"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				fmt.Fprint(w, body)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL, 3, time.Millisecond).IssueVirtualAccount(context.Background(), testRequest())
			assert.ErrorIs(t, err, ErrInvalidResponse)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestIssueVirtualAccount_AttemptTimeoutIsRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			time.Sleep(150 * time.Millisecond)
		}
		fmt.Fprint(w, successBody())
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test", 50*time.Millisecond, 2, time.Millisecond, logger.NewNop())
	details, err := c.IssueVirtualAccount(context.Background(), testRequest())
	assert.NoError(t, err)
	assert.Equal(t, "0690000001", details.AccountNumber)
	assert.Equal(t, 2, calls)
}
