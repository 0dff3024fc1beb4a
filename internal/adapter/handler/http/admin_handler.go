package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/flipmyera/credit-ledger/internal/domain/dto"
	domainErrors "github.com/flipmyera/credit-ledger/internal/domain/errors"
	"github.com/flipmyera/credit-ledger/internal/middleware/auth"
	apperrors "github.com/flipmyera/credit-ledger/pkg/errors"
)

// AccountAdmin is the operator view of the ledger.
type AccountAdmin interface {
	GetAccount(ctx context.Context, userID string) (*dto.AccountDTO, error)
	GrantCredits(ctx context.Context, adminID string, req dto.AdminGrantRequest) (*dto.AdminGrantData, error)
	RevokeCredits(ctx context.Context, adminID string, req dto.AdminRevokeRequest) (*dto.AdminRevokeData, error)
}

type AdminHandler struct {
	logger *zap.Logger
	admin  AccountAdmin
}

func NewAdminHandler(logger *zap.Logger, admin AccountAdmin) *AdminHandler {
	return &AdminHandler{
		logger: logger,
		admin:  admin,
	}
}

// GetAccount handles GET /admin/credits?user_id=
func (h *AdminHandler) GetAccount(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return respondMalformed(c, "user_id is required")
	}

	account, err := h.admin.GetAccount(c.Request().Context(), userID)
	if err != nil {
		return h.fail(c, err, userID)
	}

	return respondData(c, http.StatusOK, account)
}

// GrantCredits handles POST /admin/credits
func (h *AdminHandler) GrantCredits(c echo.Context) error {
	admin, err := auth.GetUserFromContext(c)
	if err != nil {
		return respondError(c, http.StatusUnauthorized, apperrors.ErrUnauthenticated, "Authentication required")
	}

	var req dto.AdminGrantRequest
	if err := c.Bind(&req); err != nil {
		return respondMalformed(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return respondMalformed(c, err.Error())
	}

	data, err := h.admin.GrantCredits(c.Request().Context(), admin.UserID, req)
	if err != nil {
		return h.fail(c, err, req.UserID)
	}

	return respondData(c, http.StatusOK, data)
}

// RevokeCredits handles POST /admin/credits/revoke
func (h *AdminHandler) RevokeCredits(c echo.Context) error {
	admin, err := auth.GetUserFromContext(c)
	if err != nil {
		return respondError(c, http.StatusUnauthorized, apperrors.ErrUnauthenticated, "Authentication required")
	}

	var req dto.AdminRevokeRequest
	if err := c.Bind(&req); err != nil {
		return respondMalformed(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return respondMalformed(c, err.Error())
	}

	data, err := h.admin.RevokeCredits(c.Request().Context(), admin.UserID, req)
	if err != nil {
		return h.fail(c, err, req.UserID)
	}

	return respondData(c, http.StatusOK, data)
}

func (h *AdminHandler) fail(c echo.Context, err error, userID string) error {
	switch {
	case errors.Is(err, domainErrors.ErrUserNotFound):
		return respondError(c, http.StatusNotFound, apperrors.ErrNotFound, "user not found")
	case errors.Is(err, domainErrors.ErrInvalidAmount):
		return respondMalformed(c, err.Error())
	}
	apperrors.LogError(h.logger, err, "Admin credit operation failed", zap.String("user_id", userID))
	return respondError(c, http.StatusInternalServerError, apperrors.ErrInternal, "internal error")
}
