package main

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/harms/harms/internal/config"
	"github.com/harms/harms/internal/domain/billing"
	"github.com/harms/harms/internal/domain/dashboard"
	"github.com/harms/harms/internal/domain/identity"
	"github.com/harms/harms/internal/domain/resource"
	"github.com/harms/harms/internal/domain/scheduling"
	"github.com/harms/harms/internal/platform/auth"
	"github.com/harms/harms/internal/platform/db"
	"github.com/harms/harms/internal/platform/middleware"
	"github.com/harms/harms/internal/platform/notification"
)

const version = "0.1.0"

// database is what the server needs from the pool.
type database interface {
	db.DBTX
	db.TxBeginner
	db.Pinger
}

// unitOfWorkSkipped lists routes served without a transaction.
var unitOfWorkSkipped = map[string]bool{
	"/health":    true,
	"/health/db": true,
	"/metrics":   true,
}

func skipUnitOfWork(c echo.Context) bool {
	return unitOfWorkSkipped[c.Path()]
}

// serializableBooking runs appointment creation at SERIALIZABLE so two
// concurrent bookings of one slot cannot both commit.
func serializableBooking(c echo.Context) bool {
	return c.Request().Method == http.MethodPost && c.Path() == "/api/appointments"
}

// clientIPExtractor uses the socket address unless TRUSTED_PROXIES is set,
// in which case X-Forwarded-For is honoured only through those ranges.
func clientIPExtractor(cfg *config.Config) echo.IPExtractor {
	nets, err := cfg.TrustedProxyNets()
	if err != nil || len(nets) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range nets {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

// newServer wires every domain onto a fresh echo instance. sender may be nil,
// which disables email.
func newServer(cfg *config.Config, conn database, sender notification.EmailSender, reg *prometheus.Registry, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)
	e.IPExtractor = clientIPExtractor(cfg)

	metrics := middleware.NewMetrics(reg)

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(metrics.Middleware())
	e.Use(middleware.RateLimit(rateLimitCfg))
	e.Use(db.UnitOfWork(conn, logger, db.UnitOfWorkConfig{
		Skipper:      skipUnitOfWork,
		Serializable: serializableBooking,
	}))

	// Mail
	var mailer *notification.Mailer
	if sender != nil {
		mailer = notification.NewMailer(sender, nil)
	}

	// Services
	tokens := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.JWTTTL)

	identitySvc := identity.NewService(identity.NewUserRepoPG(conn), tokens, logger)
	schedulingSvc := scheduling.NewService(scheduling.NewAppointmentRepoPG(conn), identitySvc, scheduling.Options{
		SlotPolicy:     cfg.SlotPolicy,
		ConflictPolicy: cfg.BookingConflictPolicy,
	}, logger)
	schedulingSvc.SetEventRecorder(metrics)
	billingSvc := billing.NewService(billing.NewBillingRepoPG(conn), schedulingSvc, logger)
	billingSvc.SetEventRecorder(metrics)
	resourceSvc := resource.NewService(resource.NewResourceRepoPG(conn), resource.NewTransactionRepoPG(conn), logger)
	resourceSvc.SetEventRecorder(metrics)
	dashboardSvc := dashboard.NewService(schedulingSvc, resourceSvc, identitySvc, logger)

	if mailer != nil {
		identitySvc.SetMailer(mailer)
		schedulingSvc.SetMailer(mailer)
	}

	// API
	api := e.Group("/api")
	api.Use(auth.JWTMiddleware(auth.JWTConfig{
		Issuer:  tokens,
		Loader:  identitySvc,
		Skipper: auth.AuthSkipper,
	}))

	identity.NewHandler(identitySvc).RegisterRoutes(api)
	scheduling.NewHandler(schedulingSvc).RegisterRoutes(api)
	billing.NewHandler(billingSvc).RegisterRoutes(api)
	resource.NewHandler(resourceSvc).RegisterRoutes(api)
	dashboard.NewHandler(dashboardSvc).RegisterRoutes(api)

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(conn))
	e.GET("/metrics", middleware.MetricsHandler(reg))

	return e
}
