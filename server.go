package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/settlement_backend/config"
	"github.com/mmdatafocus/settlement_backend/middlewares"
	"github.com/mmdatafocus/settlement_backend/models"
	"github.com/mmdatafocus/settlement_backend/utils"
	"github.com/mmdatafocus/settlement_backend/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

const defaultPort = "8080"

var tracer = otel.Tracer("settlement-api")

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client func() *redis.Client
	limit  int64
	window time.Duration
}

type PubSubMessage struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// apiServer carries the handler dependencies. They are resolved per request so the
// router can serve /healthz before the database and Redis are connected.
type apiServer struct {
	logger *logrus.Logger
	db     func() *gorm.DB
	ready  func() bool
	// memory takes postings while no database is connected.
	memory *workflow.MemoryJournalSink
}

func newAPIServer(logger *logrus.Logger) *apiServer {
	return &apiServer{
		logger: logger,
		db:     config.GetDB,
		ready: func() bool {
			return config.GetDB() != nil && config.GetRedisDB() != nil
		},
		memory: workflow.NewMemoryJournalSink(),
	}
}

// settlementPubSubHandler is the push endpoint. Anything that can never be processed is
// acked with 204; processing errors return 500 so Pub/Sub redelivers.
func (s *apiServer) settlementPubSubHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := s.logger
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "server.go", "settlementPubSubHandler", "io.ReadAll", nil, err)
			c.Status(http.StatusNoContent)
			return
		}
		var envelope PubSubMessage
		if err := json.Unmarshal(body, &envelope); err != nil {
			config.LogError(logger, "server.go", "settlementPubSubHandler", "Unmarshal body", string(body), err)
			c.Status(http.StatusNoContent)
			return
		}
		m, err := decodeSettlementEvent(envelope.Message.Data)
		if err != nil {
			config.LogError(logger, "server.go", "settlementPubSubHandler", "decode settlement event", string(envelope.Message.Data), err)
			c.Status(http.StatusNoContent)
			return
		}
		if m.CorrelationId == "" {
			m.CorrelationId = envelope.Message.ID
		}

		fields := eventFields("settlementPubSubHandler", m, envelope.Message.ID)
		release := obtainCompanyLock(c.Request.Context(), logger, fields, m.CompanyCode)
		defer release()

		if err := ProcessMessage(eventContext(c.Request.Context(), m), logger, m); err != nil {
			logger.WithFields(fields).Error("pubsub processing failed: " + err.Error())
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// obtainCompanyLock serializes event handling per company across instances. The lock is
// best-effort: ProcessMessage also dedupes on the idempotency key, so a missing Redis or a
// held lock only logs.
func obtainCompanyLock(ctx context.Context, logger *logrus.Logger, fields logrus.Fields, companyCode string) func() {
	locker := config.GetRedisLock()
	if locker == nil {
		logger.WithFields(fields).Warn("redis lock not ready; proceeding without redis lock")
		return func() {}
	}
	lock, err := locker.Obtain(ctx, "lock:settlement:"+companyCode, 30*time.Second, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			logger.WithFields(fields).Warn("could not obtain redis lock; proceeding without redis lock")
		} else {
			logger.WithFields(fields).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
		}
		return func() {}
	}
	return func() {
		if err := lock.Release(ctx); err != nil {
			logger.WithFields(fields).Warn("failed to release redis lock: " + err.Error())
		}
	}
}

func authorizeAdminOnly(ctx context.Context) error {
	claim := middlewares.CtxValue(ctx)
	if claim == nil || claim.Role != middlewares.RoleAdmin {
		return middlewares.ErrUnauthorized
	}
	return nil
}

type outboxReplayRequest struct {
	CompanyCode string `json:"company_code" binding:"required"`
	RecordId    int    `json:"record_id" binding:"required,gt=0"`
}

func (s *apiServer) outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authorizeAdminOnly(c.Request.Context()); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req outboxReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, utils.ProcessValidationErrors(err))
			return
		}

		db := s.db()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}
		now := time.Now().UTC()
		res := db.WithContext(c.Request.Context()).
			Model(&models.SettlementOutboxRecord{}).
			Where("id = ? AND company_code = ?", req.RecordId, req.CompanyCode).
			Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusFailed,
				"next_attempt_at":    &now,
				"locked_at":          nil,
				"locked_by":          nil,
				"last_publish_error": nil,
			})
		if res.Error != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": res.Error.Error()})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": utils.ErrorRecordNotFound.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"company_code":    req.CompanyCode,
			"record_id":       req.RecordId,
			"publish_status":  models.OutboxPublishStatusFailed,
			"next_attempt_at": now.Format(time.RFC3339Nano),
		})
	}
}

type outboxStatusQuery struct {
	CompanyCode string `form:"company_code" binding:"required"`
	AggregateId string `form:"aggregate_id" binding:"required"`
}

func (s *apiServer) outboxStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authorizeAdminOnly(c.Request.Context()); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		var q outboxStatusQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, utils.ProcessValidationErrors(err))
			return
		}
		db := s.db()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}
		status, err := models.GetLatestOutboxStatus(c.Request.Context(), db, q.CompanyCode, q.AggregateId)
		if errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func correlationIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header("x-correlation-id", cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	}
}

// readinessGate answers /healthz itself and returns 503 for everything else until ready reports true.
func readinessGate(ready func() bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if !ready() {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", "x-correlation-id")
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	return cors.New(corsConfig)
}

func newRouter(s *apiServer) *gin.Engine {
	r := gin.New()
	r.Use(correlationIdMiddleware())
	r.Use(readinessGate(s.ready))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.Use(corsMiddleware())

	// Optional rate limiting.
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if config.BoolFromEnv("RATE_LIMIT_ENABLED", false) {
		limit := int64(config.IntFromEnv("RATE_LIMIT_MAX_REQUESTS", 600))
		windowSec := config.IntFromEnv("RATE_LIMIT_WINDOW_SECONDS", 60)
		rateLimiter := NewRateLimiter(config.GetRedisDB, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(s.logger))
	r.Use(gin.Recovery())

	v1 := r.Group("/v1")
	v1.POST("/match", s.matchHandler())
	v1.POST("/post", s.postHandler())
	v1.POST("/reconcile", s.reconcileHandler())
	v1.POST("/reverse", s.reverseHandler())
	v1.POST("/close", s.closeHandler())
	v1.POST("/close/readiness", s.closeReadinessHandler())
	v1.GET("/close", s.listCloseRunsHandler())
	v1.GET("/close/:runId", s.getCloseRunHandler())
	v1.GET("/close/:runId/export", s.exportCloseRunHandler())

	r.POST("/pubsub", s.settlementPubSubHandler())
	// Ops tooling (admin only): replay outbox records that were marked DEAD/FAILED.
	r.POST("/internal/ops/outbox/replay", s.outboxReplayHandler())
	r.GET("/internal/ops/outbox/status", s.outboxStatusHandler())
	r.NoRoute(customNotFoundHandler)
	return r
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := newRouter(newAPIServer(logger))
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry(sigCtx)

	db := config.GetDB()
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
	}
	// AutoMigrate can run DDL that blocks tables; allow running it as a separate job instead.
	if !config.BoolFromEnv("SKIP_MIGRATIONS", false) {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Start outbox dispatcher (publishes AFTER commit).
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	dispatcher := workflow.NewOutboxDispatcher(db, logger)
	if shouldProcessOutboxDirectly() {
		dispatcher.Publish = directPublish(logger)
		logger.WithFields(logrus.Fields{"field": "outbox"}).Info("outbox events are processed in-process")
	}
	go dispatcher.Run(dispatcherCtx)

	go func() {
		if err := RunSettlementSubscriber(dispatcherCtx, logger); err != nil {
			config.LogError(logger, "server.go", "main", "settlement subscriber stopped", os.Getenv("PUBSUB_SUBSCRIPTION"), err)
		}
	}()

	logger.WithFields(logrus.Fields{"field": "http", "port": port}).Info("settlement api ready")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelDispatcher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func NewRateLimiter(client func() *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// RateLimitMiddleware counts requests per client IP in fixed windows. It lets traffic
// through while Redis is not connected.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	client := rl.client()
	if client == nil {
		c.Next()
		return
	}
	key := "ratelimit:" + c.ClientIP()

	count, err := client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	if count == 1 {
		if err := client.Expire(c.Request.Context(), key, rl.window).Err(); err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
	}

	if count > rl.limit {
		c.Header("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
