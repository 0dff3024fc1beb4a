package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/flipmyera/credit-ledger/internal/domain/dto"
	domainErrors "github.com/flipmyera/credit-ledger/internal/domain/errors"
	"github.com/flipmyera/credit-ledger/internal/domain/model"
	apperrors "github.com/flipmyera/credit-ledger/pkg/errors"
)

// CreditReader serves a user's balance and generation checks.
type CreditReader interface {
	GetCredits(ctx context.Context, userID string, includeTransactions bool) (*dto.CreditsData, error)
	ValidateGeneration(ctx context.Context, userID string, req dto.ValidateCreditsRequest) (*dto.ValidateCreditsData, error)
}

// TransactionHistory serves paginated ledger history.
type TransactionHistory interface {
	GetUserTransactionHistory(ctx context.Context, userID string, filters dto.TransactionFilters) (*dto.TransactionListResponse, error)
}

// CreditHandler handles credit-related HTTP requests
type CreditHandler struct {
	logger       *zap.Logger
	credits      CreditReader
	transactions TransactionHistory
}

// NewCreditHandler creates a new credit handler instance
func NewCreditHandler(
	logger *zap.Logger,
	credits CreditReader,
	transactions TransactionHistory,
) *CreditHandler {
	return &CreditHandler{
		logger:       logger,
		credits:      credits,
		transactions: transactions,
	}
}

// GetCredits handles GET /credits
func (h *CreditHandler) GetCredits(c echo.Context) error {
	userID, ok := currentUserID(c)
	if !ok {
		h.logger.Error("Failed to extract user ID from JWT claims")
		return respondError(c, http.StatusUnauthorized, apperrors.ErrUnauthenticated, "unauthorized")
	}

	includeTransactions := false
	if raw := c.QueryParam("include_transactions"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return respondMalformed(c, "invalid include_transactions parameter")
		}
		includeTransactions = parsed
	}

	data, err := h.credits.GetCredits(c.Request().Context(), userID, includeTransactions)
	if err != nil {
		apperrors.LogError(h.logger, err, "Failed to get user credits", zap.String("user_id", userID))
		return respondError(c, http.StatusInternalServerError, apperrors.ErrInternal, "failed to retrieve credit balance")
	}

	return respondData(c, http.StatusOK, data)
}

// GetTransactionHistory handles GET /credits/transactions
func (h *CreditHandler) GetTransactionHistory(c echo.Context) error {
	userID, ok := currentUserID(c)
	if !ok {
		h.logger.Error("Failed to extract user ID from JWT claims")
		return respondError(c, http.StatusUnauthorized, apperrors.ErrUnauthenticated, "unauthorized")
	}

	filters := dto.TransactionFilters{UserID: userID}

	if limitStr := c.QueryParam("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return respondMalformed(c, "invalid limit parameter")
		}
		filters.Limit = limit
	}

	if offsetStr := c.QueryParam("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return respondMalformed(c, "invalid offset parameter")
		}
		filters.Offset = offset
	}

	if startDateStr := c.QueryParam("start_date"); startDateStr != "" {
		startDate, err := time.Parse(time.RFC3339, startDateStr)
		if err != nil {
			return respondMalformed(c, "invalid start_date format, use ISO 8601")
		}
		filters.StartDate = &startDate
	}

	if endDateStr := c.QueryParam("end_date"); endDateStr != "" {
		endDate, err := time.Parse(time.RFC3339, endDateStr)
		if err != nil {
			return respondMalformed(c, "invalid end_date format, use ISO 8601")
		}
		filters.EndDate = &endDate
	}

	if transactionType := c.QueryParam("transaction_type"); transactionType != "" {
		if !model.TransactionType(transactionType).IsValid() {
			return respondMalformed(c, "invalid transaction_type")
		}
		filters.TransactionType = &transactionType
	}

	response, err := h.transactions.GetUserTransactionHistory(c.Request().Context(), userID, filters)
	if err != nil {
		apperrors.LogError(h.logger, err, "Failed to get transaction history", zap.String("user_id", userID))
		return respondError(c, http.StatusInternalServerError, apperrors.ErrInternal, "failed to retrieve transaction history")
	}

	return c.JSON(http.StatusOK, response)
}

// ValidateCredits handles POST /credits-validate. The credits are deducted on success.
func (h *CreditHandler) ValidateCredits(c echo.Context) error {
	userID, ok := currentUserID(c)
	if !ok {
		h.logger.Error("Failed to extract user ID from JWT claims")
		return respondError(c, http.StatusUnauthorized, apperrors.ErrUnauthenticated, "unauthorized")
	}

	var req dto.ValidateCreditsRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Debug("Invalid credits-validate body", zap.Error(err))
		return respondMalformed(c, "invalid request body")
	}
	req.SetDefaults()
	if err := c.Validate(&req); err != nil {
		return respondMalformed(c, err.Error())
	}

	data, err := h.credits.ValidateGeneration(c.Request().Context(), userID, req)
	if err != nil {
		if errors.Is(err, domainErrors.ErrInvalidAmount) {
			return respondMalformed(c, err.Error())
		}
		apperrors.LogError(h.logger, err, "Failed to validate credits",
			zap.String("user_id", userID),
			zap.Int64("credits_required", req.CreditsRequired))
		return respondError(c, http.StatusInternalServerError, apperrors.ErrInternal, "failed to validate credits")
	}

	return respondData(c, http.StatusOK, data)
}
