package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func createJWT(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return tokenString
}

func validClaims(userID, email, role string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"role":  role,
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	}
}

func runMiddleware(t *testing.T, authHeader string, path string) (*httptest.ResponseRecorder, *AuthUser) {
	t.Helper()

	e := echo.New()
	mw := JWTMiddleware(JWTConfig{
		Secret:    testSecret,
		Logger:    zap.NewNop(),
		SkipPaths: []string{"/health"},
	})

	var seen *AuthUser
	handler := mw(func(c echo.Context) error {
		seen, _ = GetUserFromContext(c)
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, handler(c))
	return rec, seen
}

func TestJWTMiddleware_SuccessfulAuthentication(t *testing.T) {
	token := createJWT(t, testSecret, validClaims("user_2abc", "reader@example.com", "admin"))

	rec, user := runMiddleware(t, "Bearer "+token, "/credits")

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, user)
	assert.Equal(t, "user_2abc", user.UserID)
	assert.Equal(t, "reader@example.com", user.Email)
	assert.Equal(t, "admin", user.Role)
}

func TestJWTMiddleware_Rejections(t *testing.T) {
	expired := validClaims("user_1", "", "")
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	noSubject := validClaims("", "", "")
	delete(noSubject, "sub")

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims("user_1", "", "")).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", "MISSING_AUTH_HEADER"},
		{"not bearer", "Token abc", "INVALID_AUTH_FORMAT"},
		{"wrong secret", "Bearer " + createJWT(t, "other-secret", validClaims("user_1", "", "")), "INVALID_TOKEN"},
		{"expired", "Bearer " + createJWT(t, testSecret, expired), "INVALID_TOKEN"},
		{"unsigned", "Bearer " + noneToken, "INVALID_TOKEN"},
		{"no subject", "Bearer " + createJWT(t, testSecret, noSubject), "MISSING_SUBJECT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, user := runMiddleware(t, tt.header, "/credits")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.code)
			assert.Nil(t, user)
		})
	}
}

func TestJWTMiddleware_SkipPaths(t *testing.T) {
	rec, user := runMiddleware(t, "", "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, user)
}

func TestRequireAdmin(t *testing.T) {
	isAdminEmail := func(email string) bool { return strings.EqualFold(email, "ops@example.com") }

	tests := []struct {
		name   string
		user   *AuthUser
		status int
	}{
		{"admin role", &AuthUser{UserID: "u1", Role: RoleAdmin}, http.StatusOK},
		{"admin email", &AuthUser{UserID: "u2", Email: "OPS@example.com"}, http.StatusOK},
		{"regular user", &AuthUser{UserID: "u3", Email: "reader@example.com"}, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/admin/credits", nil)
			if tt.user != nil {
				req = req.WithContext(WithUser(req.Context(), tt.user))
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			handler := RequireAdmin(isAdminEmail, zap.NewNop())(func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			})
			require.NoError(t, handler(c))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
