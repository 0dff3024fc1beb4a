package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	handlers "github.com/flipmyera/credit-ledger/internal/adapter/handler/http"
	"github.com/flipmyera/credit-ledger/internal/config"
	"github.com/flipmyera/credit-ledger/internal/middleware/auth"
	"github.com/flipmyera/credit-ledger/internal/usecase"
	"github.com/flipmyera/credit-ledger/pkg/logger"
)

// Services are the usecases exposed over HTTP.
type Services struct {
	Webhooks     *usecase.WebhookService
	Credits      *usecase.CreditService
	Transactions *usecase.CreditTransactionService
	Admin        *usecase.AdminService
	// Health reports whether the database is reachable. Nil means always healthy.
	Health func(ctx context.Context) error
}

type Server struct {
	config   *config.Config
	logger   *zap.Logger
	echo     *echo.Echo
	services Services
}

func NewServer(cfg *config.Config, log *zap.Logger, services Services) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewRequestValidator()
	logger.WithEchoLogger(e, log)

	origins := cfg.Server.HTTP.AllowedOrigins
	if len(origins) == 0 && cfg.Service.ClientURL != "" {
		origins = []string{cfg.Service.ClientURL}
	}

	e.Use(middleware.Recover())
	e.Use(logger.NewEchoRequestLogger(log))
	if len(origins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, "apikey", "x-client-info"},
		}))
	}

	s := &Server{
		config:   cfg,
		logger:   log,
		echo:     e,
		services: services,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	addr := s.config.Server.HTTP.Addr()
	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.health)

	webhookHandler := handlers.NewWebhookHandler(s.logger, s.services.Webhooks, s.config.Service.WebhookMaxBodyBytes)
	creditHandler := handlers.NewCreditHandler(s.logger, s.services.Credits, s.services.Transactions)
	adminHandler := handlers.NewAdminHandler(s.logger, s.services.Admin)

	// Provider webhooks authenticate by signature, not bearer token.
	s.echo.POST("/stripe-webhook", webhookHandler.HandleWebhook)
	s.echo.POST("/webhook", webhookHandler.HandleWebhook)

	requireUser := auth.JWTMiddleware(auth.JWTConfig{
		Secret: s.config.Service.JWTSecret,
		Logger: s.logger,
	})
	requireAdmin := auth.RequireAdmin(s.config.Service.IsAdminEmail, s.logger)

	credits := s.echo.Group("/credits", requireUser)
	credits.GET("", creditHandler.GetCredits)
	credits.GET("/transactions", creditHandler.GetTransactionHistory)

	s.echo.POST("/credits-validate", creditHandler.ValidateCredits, requireUser)

	admin := s.echo.Group("/admin", requireUser, requireAdmin)
	admin.GET("/credits", adminHandler.GetAccount)
	admin.POST("/credits", adminHandler.GrantCredits)
	admin.POST("/credits/revoke", adminHandler.RevokeCredits)
}

func (s *Server) health(c echo.Context) error {
	if s.services.Health != nil {
		if err := s.services.Health(c.Request().Context()); err != nil {
			s.logger.Error("Health check failed", zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, echo.Map{
				"status":  "unhealthy",
				"service": s.config.Service.Name,
			})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "healthy",
		"service": s.config.Service.Name,
	})
}
