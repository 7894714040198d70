package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nurpe/contractor-ledger/internal/http/middleware"
	"github.com/nurpe/contractor-ledger/internal/service"
)

type Handler struct {
	ledger    *service.LedgerService
	documents *service.DocumentService
	log       zerolog.Logger
}

func NewHandler(ledger *service.LedgerService, documents *service.DocumentService, log zerolog.Logger) *Handler {
	return &Handler{ledger: ledger, documents: documents, log: log}
}

func (h *Handler) Register(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	protected := router.Group("/")
	protected.Use(authMiddleware)

	protected.GET("/contracts", h.listContracts)
	protected.GET("/contracts/:id", h.getContract)

	protected.GET("/jobs/unpaid", h.listUnpaidJobs)
	protected.GET("/jobs/unpaid/export", h.exportUnpaidJobs)
	protected.POST("/jobs/:job_id/pay", h.payJob)
	protected.GET("/jobs/:job_id/receipt", h.jobReceipt)

	protected.POST("/balances/deposit/:userId", h.deposit)
	protected.GET("/balances/deposit-limit", h.depositLimit)
}

type depositRequest struct {
	Amount *decimal.Decimal `json:"amount" binding:"required"`
}

func (h *Handler) listContracts(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	contracts, err := h.ledger.ActiveContractsForProfile(c.Request.Context(), principal.ID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, contracts)
}

func (h *Handler) getContract(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	contractID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract id"})
		return
	}

	contract, err := h.ledger.ContractForProfile(c.Request.Context(), contractID, principal.ID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

func (h *Handler) listUnpaidJobs(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	jobs, err := h.ledger.UnpaidJobsForProfile(c.Request.Context(), principal.ID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (h *Handler) exportUnpaidJobs(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	result, err := h.documents.UnpaidJobsWorkbook(c.Request.Context(), principal)
	if err != nil {
		h.handleError(c, err)
		return
	}
	sendDocument(c, result)
}

func (h *Handler) payJob(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	jobID, err := parseID(c.Param("job_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, err := h.ledger.PayJob(c.Request.Context(), jobID, principal)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) jobReceipt(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	jobID, err := parseID(c.Param("job_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	result, err := h.documents.PaymentReceipt(c.Request.Context(), jobID, principal)
	if err != nil {
		h.handleError(c, err)
		return
	}
	sendDocument(c, result)
}

func (h *Handler) deposit(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	targetID, err := parseID(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile, err := h.ledger.Deposit(c.Request.Context(), targetID, principal, *req.Amount)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) depositLimit(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	limit, err := h.ledger.MaxDeposit(c.Request.Context(), principal.ID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"max_deposit": limit})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	var limitErr *service.DepositLimitError
	switch {
	case errors.As(err, &limitErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "max_deposit": limitErr.MaxDeposit})
	case errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, service.ErrAlreadyPaid),
		errors.Is(err, service.ErrContractNotActive),
		errors.Is(err, service.ErrInsufficientBalance),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrSelfDeposit),
		errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotParty):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func sendDocument(c *gin.Context, result *service.DocumentResult) {
	c.Header("Content-Disposition", "attachment; filename=\""+result.FileName+"\"")
	c.Data(http.StatusOK, result.ContentType, result.Content)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, service.ErrInvalidInput
	}
	return id, nil
}
