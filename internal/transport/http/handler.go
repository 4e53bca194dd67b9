package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nairapay/wallet-service/internal/model"
	"github.com/nairapay/wallet-service/internal/provider"
	"github.com/nairapay/wallet-service/internal/repo"
	"github.com/nairapay/wallet-service/internal/service"
	"github.com/shopspring/decimal"
)

// Services bundles the handlers' dependencies.
type Services struct {
	Users  *service.UserService
	Wallet *service.WalletService
	Ledger *service.LedgerService
}

func RegisterHandlers(r *gin.Engine, svc Services) {
	v1 := r.Group("/v1")
	{
		v1.POST("/users", registerUserHandler(svc.Users))
		v1.GET("/wallet", walletHandler(svc.Wallet))
		v1.GET("/wallet/balances", balancesHandler(svc.Wallet))
		v1.GET("/wallet/balance/:currency", balanceHandler(svc.Wallet))
		v1.GET("/wallet/virtual-accounts", virtualAccountsHandler(svc.Wallet))
		v1.POST("/transactions", postTransactionHandler(svc.Ledger))
		v1.POST("/transactions/batch", postBatchHandler(svc.Ledger))
		v1.GET("/transactions", listTransactionsHandler(svc.Ledger))
		v1.GET("/transactions/summary", summaryHandler(svc.Ledger))
		v1.GET("/transactions/:id", getTransactionHandler(svc.Ledger))
		v1.GET("/transactions/reference/:reference", getByReferenceHandler(svc.Ledger))
		v1.GET("/transactions/batch/:batchId", getBatchHandler(svc.Ledger))
		v1.PATCH("/transactions/:id/status", transitionStatusHandler(svc.Ledger))
	}
}

// userID comes from the authenticating reverse proxy; auth itself is an
// upstream collaborator.
func userID(c *gin.Context) (string, bool) {
	id := c.GetHeader("X-User-ID")
	if id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing X-User-ID"})
		return "", false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrEmailInUse), errors.Is(err, repo.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrEmptyBatch),
		errors.Is(err, service.ErrBatchOwnership),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrUnsupportedInput),
		errors.Is(err, repo.ErrStatusFinal):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, provider.ErrTimeout),
		errors.Is(err, provider.ErrRejected),
		errors.Is(err, provider.ErrInvalidResponse):
		c.JSON(http.StatusBadGateway, gin.H{"error": "virtual account issuance failed"})
	case errors.Is(err, service.ErrProvisioningBusy):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

type registerUserReq struct {
	Email     string `json:"email" binding:"required,email"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
}

func registerUserHandler(svc *service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerUserReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		user, wallet, err := svc.RegisterUser(c.Request.Context(), service.NewUser{
			Email:     req.Email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"user": user, "wallet": wallet})
	}
}

func walletHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		w, err := svc.GetUserWallet(c.Request.Context(), uid)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, w)
	}
}

func balancesHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		bs, err := svc.GetBalances(c.Request.Context(), uid)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, bs)
	}
}

func balanceHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		currency := model.Currency(c.Param("currency"))
		if !currency.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported currency"})
			return
		}
		bal, err := svc.GetBalance(c.Request.Context(), uid, currency)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"currency": currency, "balance": bal})
	}
}

func virtualAccountsHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		vas, err := svc.GetUserVirtualAccounts(c.Request.Context(), uid)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, vas)
	}
}

type entryReq struct {
	WalletID          string                 `json:"wallet_id" binding:"required"`
	Amount            string                 `json:"amount" binding:"required"`
	Currency          string                 `json:"currency" binding:"required"`
	Type              string                 `json:"type" binding:"required"`
	Status            string                 `json:"status"`
	Description       *string                `json:"description"`
	ExternalReference *string                `json:"external_reference"`
	Metadata          map[string]interface{} `json:"metadata"`
}

func (r entryReq) toInput(uid string) (service.EntryInput, error) {
	amt, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return service.EntryInput{}, err
	}
	return service.EntryInput{
		UserID:            uid,
		WalletID:          r.WalletID,
		Amount:            amt,
		Currency:          model.Currency(r.Currency),
		Type:              model.TransactionType(r.Type),
		Status:            model.TransactionStatus(r.Status),
		Description:       r.Description,
		ExternalReference: r.ExternalReference,
		Metadata:          r.Metadata,
	}, nil
}

func postTransactionHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		var req entryReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		in, err := req.toInput(uid)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		t, err := svc.RecordSingle(c.Request.Context(), in)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, t)
	}
}

type batchReq struct {
	Transactions     []entryReq `json:"transactions" binding:"required"`
	BatchDescription *string    `json:"batch_description"`
}

func postBatchHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		var req batchReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		entries := make([]service.EntryInput, 0, len(req.Transactions))
		for _, e := range req.Transactions {
			in, err := e.toInput(uid)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
				return
			}
			entries = append(entries, in)
		}
		ts, err := svc.RecordBatch(c.Request.Context(), uid, entries, req.BatchDescription)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, ts)
	}
}

func parseFilter(c *gin.Context) (repo.TransactionFilter, error) {
	var f repo.TransactionFilter
	if v := c.Query("type"); v != "" {
		t := model.TransactionType(v)
		f.Type = &t
	}
	if v := c.Query("currency"); v != "" {
		cur := model.Currency(v)
		f.Currency = &cur
	}
	if v := c.Query("status"); v != "" {
		st := model.TransactionStatus(v)
		f.Status = &st
	}
	if v := c.Query("start_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.StartDate = &t
	}
	if v := c.Query("end_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.EndDate = &t
	}
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	return f, nil
}

func listTransactionsHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		f, err := parseFilter(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date filter"})
			return
		}
		ts, err := svc.Query(c.Request.Context(), uid, f)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"data":       ts,
			"pagination": gin.H{"limit": f.Limit, "offset": f.Offset, "total": len(ts)},
		})
	}
}

func summaryHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		f, err := parseFilter(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date filter"})
			return
		}
		summary, err := svc.Summarize(c.Request.Context(), uid, f)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func getTransactionHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := svc.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

func getByReferenceHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := svc.GetByReference(c.Request.Context(), c.Param("reference"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

func getBatchHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ts, err := svc.GetByBatchID(c.Request.Context(), c.Param("batchId"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, ts)
	}
}

type statusReq struct {
	Status string `json:"status" binding:"required"`
}

func transitionStatusHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statusReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		t, err := svc.TransitionStatus(c.Request.Context(), c.Param("id"), model.TransactionStatus(req.Status))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}
