package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/flipmyera/credit-ledger/pkg/errors"
)

func respondError(c echo.Context, status int, code, message string) error {
	return c.JSON(status, echo.Map{
		"error": message,
		"code":  code,
	})
}

func respondData(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, echo.Map{
		"success": true,
		"data":    data,
	})
}

func respondMalformed(c echo.Context, message string) error {
	return respondError(c, http.StatusBadRequest, apperrors.ErrMalformedRequest, message)
}

func currentUserID(c echo.Context) (string, bool) {
	userID, ok := c.Get("user_id").(string)
	return userID, ok && userID != ""
}
