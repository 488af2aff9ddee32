package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/airvoyage/reservation-backend/internal/cache"
	"github.com/airvoyage/reservation-backend/internal/config"
	"github.com/airvoyage/reservation-backend/internal/database"
	"github.com/airvoyage/reservation-backend/internal/gateway"
	"github.com/airvoyage/reservation-backend/internal/handlers"
	"github.com/airvoyage/reservation-backend/internal/middleware"
	"github.com/airvoyage/reservation-backend/internal/models"
	"github.com/airvoyage/reservation-backend/internal/services"
	"github.com/airvoyage/reservation-backend/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

// Exit codes: 0 clean shutdown, 1 startup failure, 2 forced shutdown after
// the grace period ran out.
const (
	exitOK     = 0
	exitFatal  = 1
	exitForced = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting AirVoyage Reservation Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("Failed to load configuration: %v", err)
		return exitFatal
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Errorf("Failed to connect to database: %v", err)
		return exitFatal
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Availability cache is optional; a blank REDIS_ADDR disables it
	availabilityCache, err := cache.NewAvailabilityCache(cfg.Redis, logger)
	if err != nil {
		logger.Errorf("Failed to connect to Redis: %v", err)
		return exitFatal
	}
	if availabilityCache != nil {
		defer availabilityCache.Close()
		logger.Info("Availability cache enabled")
	}

	// Initialize repositories
	txManager := database.NewTxManager(db, logger)
	outboxRepo := database.NewOutboxRepository(db, logger)
	inventoryRepo := database.NewInventoryRepository(db, outboxRepo, logger)
	bookingRepo := database.NewBookingRepository(db, outboxRepo, logger)
	ticketRepo := database.NewTicketRepository(db, logger)
	queryRepo := database.NewQueryRepository(db, bookingRepo, ticketRepo, logger)
	auditRepo := database.NewBookingAuditRepository(db, logger)

	// Initialize gateways
	polarGateway := gateway.NewPolarGateway(&cfg.Polar, logger)
	notifyGateway := gateway.NewHTTPNotificationGateway(&cfg.Notify, logger)

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.Admin.JWTSecret, cfg.Admin.AccessTokenExpiry)
	auditService := services.NewAuditService(auditRepo, logger)
	adminAuthService := services.NewAdminAuthService(jwtService, logger)
	inventoryService := services.NewInventoryService(inventoryRepo, queryRepo, txManager, availabilityCache, cfg.Hold.TTL, logger)
	bookingService := services.NewBookingService(
		bookingRepo,
		ticketRepo,
		queryRepo,
		inventoryService,
		polarGateway,
		txManager,
		cfg.Hold.TTL,
		cfg.Polar.SuccessURL,
		logger,
	)

	// Outbox publisher with its consumers
	publisher := services.NewOutboxPublisher(outboxRepo, cfg.Outbox, logger)
	seatRelease := services.NewSeatReleaseConsumer(bookingRepo, inventoryService, txManager, logger)
	ticketNotify := services.NewTicketNotificationConsumer(bookingRepo, ticketRepo, notifyGateway, logger)
	publisher.Register(models.EventBookingCancelled, seatRelease.Handle)
	publisher.Register(models.EventBookingExpired, seatRelease.Handle)
	publisher.Register(models.EventTicketIssued, ticketNotify.Handle)
	publisher.Start()
	logger.Info("Outbox publisher started")

	// Expiration reaper
	expirationService := services.NewExpirationService(bookingRepo, inventoryService, txManager, cfg.Reaper, logger)
	expirationService.Start()
	logger.Info("Expiration reaper started")

	// Scheduled maintenance jobs
	maintenanceService := services.NewMaintenanceService(outboxRepo, auditRepo, cfg.Outbox.MaxRetries, logger)
	if err := maintenanceService.Start(); err != nil {
		logger.Errorf("Failed to start maintenance service: %v", err)
		return exitFatal
	}

	logger.Info("Services initialized")

	// Initialize handlers
	bookingHandler := handlers.NewBookingHandler(bookingService, inventoryService, auditService, logger)
	webhookHandler := handlers.NewWebhookHandler(bookingService, auditService, cfg.Polar.WebhookSecret, logger)
	adminAuthHandler := handlers.NewAdminAuthHandler(adminAuthService, logger)
	adminHandler := handlers.NewAdminHandler(
		outboxRepo,
		publisher,
		expirationService,
		maintenanceService,
		auditService,
		cfg.Outbox.MaxRetries,
		logger,
	)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS configuration
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db, cfg.Server.HealthTimeout))

	// API routes
	api := router.Group("/api")
	{
		bookings := api.Group("/bookings")
		{
			bookings.GET("", bookingHandler.ListBookings)
			bookings.POST("", bookingHandler.BookFlight)
			bookings.GET("/search", bookingHandler.SearchBookings)
			bookings.GET("/pnr/:pnr", bookingHandler.GetBookingByPnr)
			bookings.GET("/passenger/:id", bookingHandler.PassengerHistory)
			bookings.GET("/:id", bookingHandler.GetBooking)
			bookings.POST("/:id/confirm", bookingHandler.ConfirmBooking)
			bookings.POST("/:id/cancel", bookingHandler.CancelBooking)
		}

		api.GET("/flights/:id/availability", bookingHandler.FlightAvailability)

		// Webhook endpoint authenticates with its own HMAC signature
		api.POST("/webhooks/polar", webhookHandler.HandlePolarWebhook)

		admin := api.Group("/admin")
		{
			admin.POST("/login", adminAuthHandler.Login)

			protected := admin.Group("")
			protected.Use(middleware.OperatorAuth(jwtService))
			{
				protected.GET("/outbox/dead-letters", adminHandler.ListDeadLetters)
				protected.POST("/outbox/dead-letters/:id/requeue", adminHandler.RequeueDeadLetter)
				protected.POST("/outbox/run", adminHandler.RunPublisher)
				protected.POST("/reaper/run", adminHandler.RunReaper)
				protected.GET("/bookings/:id/audit", adminHandler.BookingAuditTrail)
				protected.GET("/jobs", adminHandler.JobStatus)
			}
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Errorf("Failed to start server: %v", err)
		return exitFatal
	case sig := <-quit:
		logger.Infof("Received signal %s, shutting down...", sig)
	}

	// Stop background workers before the HTTP listener so in-flight requests
	// can still reach the database
	maintenanceService.Stop()
	expirationService.Stop()
	publisher.Stop(cfg.Server.ShutdownGrace)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
		return exitForced
	}

	logger.Info("Server exited successfully")
	return exitOK
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
			"user_agent": c.Request.UserAgent(),
		}

		entry := logger.WithFields(fields)
		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint. The probe always
// answers 200 with per-component detail; load balancers read the status
// field, not the HTTP code, so a database blip cannot take the process out
// of rotation while in-flight requests still drain.
func healthCheckHandler(db *sqlx.DB, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		status := "healthy"
		components := gin.H{"database": "healthy"}
		if err := db.PingContext(ctx); err != nil {
			status = "degraded"
			components["database"] = "unhealthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"status":     status,
			"components": components,
			"version":    version,
			"timestamp":  time.Now().Unix(),
		})
	}
}
