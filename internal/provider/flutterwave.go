package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nairapay/wallet-service/internal/model"
	"go.uber.org/zap"
)

// Terminal issuance failures. None of these is retried by callers; the client
// already applied its bounded retry budget before surfacing them.
var (
	// ErrTimeout means the provider stayed unreachable or transiently failing
	// after exhausting all retry attempts.
	ErrTimeout = errors.New("provider timeout")
	// ErrRejected means the provider rejected the request semantically
	// (e.g. invalid payload); retrying would fail the same way.
	ErrRejected = errors.New("provider rejected request")
	// ErrInvalidResponse means a success response was missing required fields.
	ErrInvalidResponse = errors.New("provider response invalid")
)

// IssueRequest describes one virtual-account issuance.
type IssueRequest struct {
	Email       string
	FirstName   string
	LastName    string
	Reference   string // idempotency reference, passed to the provider as tx_ref
	BVN         string
	IsPermanent bool
	Narration   string
	Currency    model.Currency
}

// VirtualAccountDetails is the validated provider result.
type VirtualAccountDetails struct {
	AccountNumber     string
	AccountName       string
	BankName          string
	ProviderAccountID string
	ProviderReference string
}

// Issuer is the outbound virtual-account issuance port.
type Issuer interface {
	IssueVirtualAccount(ctx context.Context, req IssueRequest) (*VirtualAccountDetails, error)
}

type issueBody struct {
	Email       string `json:"email"`
	FirstName   string `json:"firstname"`
	LastName    string `json:"lastname"`
	TxRef       string `json:"tx_ref"`
	BVN         string `json:"bvn"`
	IsPermanent bool   `json:"is_permanent"`
	Narration   string `json:"narration"`
	Currency    string `json:"currency"`
}

type issueResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    *struct {
		ID            json.Number `json:"id"`
		AccountNumber string      `json:"account_number"`
		AccountName   string      `json:"account_name"`
		BankName      string      `json:"bank_name"`
		OrderRef      string      `json:"order_ref"`
		FlwRef        string      `json:"flw_ref"`
	} `json:"data"`
}

// Client calls the Flutterwave virtual-account-numbers API with a per-attempt
// timeout and exponential backoff between attempts.
type Client struct {
	baseURL     string
	secretKey   string
	httpClient  *http.Client
	maxRetries  int
	backoffBase time.Duration
	log         *zap.SugaredLogger
}

// NewClient constructs the provider client. timeout bounds one attempt;
// maxRetries attempts follow the first on transient failure, delayed by
// backoffBase, 2*backoffBase, 4*backoffBase, ...
func NewClient(baseURL, secretKey string, timeout time.Duration, maxRetries int, backoffBase time.Duration, logger *zap.SugaredLogger) *Client {
	return &Client{
		baseURL:     baseURL,
		secretKey:   secretKey,
		httpClient:  &http.Client{Timeout: timeout},
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		log:         logger,
	}
}

// IssueVirtualAccount requests a virtual account number. Network errors,
// timeouts, 408/429 and 5xx responses are retried; everything else is
// terminal on first sight.
func (c *Client) IssueVirtualAccount(ctx context.Context, req IssueRequest) (*VirtualAccountDetails, error) {
	body, err := json.Marshal(issueBody{
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		TxRef:       req.Reference,
		BVN:         req.BVN,
		IsPermanent: req.IsPermanent,
		Narration:   req.Narration,
		Currency:    string(req.Currency),
	})
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffBase << (attempt - 1)
			c.log.Warnf("retry %d/%d for virtual account %s after %s: %v",
				attempt, c.maxRetries, req.Reference, delay, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
			}
		}

		details, retryable, err := c.attempt(ctx, body)
		if err == nil {
			return details, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrTimeout, c.maxRetries+1, lastErr)
}

func (c *Client) attempt(ctx context.Context, body []byte) (details *VirtualAccountDetails, retryable bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v3/virtual-account-numbers", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// transport failure or attempt timeout
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("provider returned status %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		return nil, false, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	var parsed issueResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if parsed.Status != "success" || parsed.Data == nil {
		return nil, false, fmt.Errorf("%w: status=%q message=%q", ErrInvalidResponse, parsed.Status, parsed.Message)
	}
	if parsed.Data.AccountNumber == "" || parsed.Data.BankName == "" {
		return nil, false, fmt.Errorf("%w: missing account_number or bank_name", ErrInvalidResponse)
	}

	providerID := parsed.Data.ID.String()
	if providerID == "" {
		providerID = parsed.Data.AccountNumber
	}
	providerRef := parsed.Data.OrderRef
	if providerRef == "" {
		providerRef = parsed.Data.FlwRef
	}
	return &VirtualAccountDetails{
		AccountNumber:     parsed.Data.AccountNumber,
		AccountName:       parsed.Data.AccountName,
		BankName:          parsed.Data.BankName,
		ProviderAccountID: providerID,
		ProviderReference: providerRef,
	}, false, nil
}
