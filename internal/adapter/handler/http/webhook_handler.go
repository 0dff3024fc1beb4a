package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	domainErrors "github.com/flipmyera/credit-ledger/internal/domain/errors"
	"github.com/flipmyera/credit-ledger/internal/usecase"
	apperrors "github.com/flipmyera/credit-ledger/pkg/errors"
)

const defaultMaxWebhookBody int64 = 1 << 20

// DeliveryHandler processes one verified-or-not webhook delivery.
type DeliveryHandler interface {
	HandleDelivery(ctx context.Context, payload []byte, signature string) (*usecase.DeliveryResult, error)
}

type WebhookHandler struct {
	logger       *zap.Logger
	deliveries   DeliveryHandler
	maxBodyBytes int64
}

func NewWebhookHandler(logger *zap.Logger, deliveries DeliveryHandler, maxBodyBytes int64) *WebhookHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxWebhookBody
	}
	return &WebhookHandler{
		logger:       logger,
		deliveries:   deliveries,
		maxBodyBytes: maxBodyBytes,
	}
}

// HandleWebhook handles POST /stripe-webhook. Anything the provider should not
// redeliver is acknowledged with 200; infrastructure failures return 500.
func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, h.maxBodyBytes+1))
	if err != nil {
		h.logger.Error("Error reading request body", zap.Error(err))
		return respondMalformed(c, "Error reading request body")
	}
	if int64(len(body)) > h.maxBodyBytes {
		h.logger.Warn("Webhook body too large", zap.Int64("limit", h.maxBodyBytes))
		return respondError(c, http.StatusRequestEntityTooLarge, apperrors.ErrMalformedRequest, "Request body too large")
	}

	sig := c.Request().Header.Get("Stripe-Signature")

	result, err := h.deliveries.HandleDelivery(c.Request().Context(), body, sig)
	if err != nil {
		switch {
		case errors.Is(err, domainErrors.ErrInvalidSignature):
			h.logger.Warn("Webhook signature verification failed", zap.Error(err))
			return respondError(c, http.StatusBadRequest, apperrors.ErrInvalidSignature, "Webhook signature verification failed")
		case usecase.IsClientError(err):
			h.logger.Warn("Webhook payload rejected", zap.Error(err))
			return respondMalformed(c, "Webhook payload could not be parsed")
		}
		apperrors.LogError(h.logger, err, "Webhook processing failed")
		return respondError(c, http.StatusInternalServerError, apperrors.ErrInternal, "Webhook processing failed")
	}

	h.logger.Info("Webhook handled",
		zap.String("event_id", result.EventID),
		zap.String("event_type", result.EventType),
		zap.String("outcome", string(result.Outcome)))

	return c.JSON(http.StatusOK, echo.Map{"received": true})
}
