// Package adminhttp is the dispatcher's short-lived admin HTTP surface:
// health/readiness, optional Prometheus exposition, and the DLQ control
// plane. Grounded on the sibling teacher service live-stream-service's
// gin handler style (ErrorResponse shape, ShouldBindJSON/ShouldBindQuery
// idiom).
package adminhttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"dispatchbox/internal/heartbeat"
	"dispatchbox/internal/model"
	"dispatchbox/internal/replayguard"
	"dispatchbox/internal/repository"
)

// ErrorResponse is the admin surface's uniform error shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Repository is the subset of repository.Repository the admin surface
// depends on. Each request uses a fresh, short-timeout context — no
// long-lived cursors or transactions are held across requests.
type Repository interface {
	IsConnected(ctx context.Context) bool
	FetchDead(ctx context.Context, limit, offset int, filter repository.DeadFilter) ([]model.Event, error)
	CountDead(ctx context.Context, filter repository.DeadFilter) (int, error)
	GetDead(ctx context.Context, id int64) (*model.Event, error)
	RetryDead(ctx context.Context, id int64) (bool, error)
	RetryDeadBatch(ctx context.Context, ids []int64) (int, error)
}

// DeadFilter is an alias of repository.DeadFilter so callers building a
// Config literal don't need to import internal/repository directly.
type DeadFilter = repository.DeadFilter

const (
	defaultDeadLimit = 100
	maxDeadLimit     = 1000
	readyTimeout     = 2 * time.Second
	dlqReadTimeout   = 5 * time.Second
	dlqWriteTimeout  = 5 * time.Second
)

// Config bundles the admin server's collaborators. Repo, Registerer, and
// Heartbeats are all individually optional: absence degrades the
// corresponding route to 501 rather than disabling the server.
type Config struct {
	Repo       Repository
	Registerer *prometheus.Registry
	Heartbeats *heartbeat.Registry
	Replay     *replayguard.Guard
	Logger     *zap.Logger
}

// New builds the gin engine with every route from spec.md §4.6 wired,
// plus the two ambient additions (/api/workers and replay-guarded DLQ
// writes) documented in SPEC_FULL.md §4.6.
func New(cfg Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Logger != nil {
		r.Use(requestLogger(cfg.Logger))
	}
	r.Use(requestMetrics(cfg.Registerer))

	h := &handler{cfg: cfg}

	r.GET("/health", h.health)
	r.GET("/ready", h.ready)
	r.GET("/metrics", h.metrics)
	r.GET("/api/workers", h.listWorkers)

	dlq := r.Group("/api/dead-events")
	if cfg.Repo == nil {
		dlq.Use(func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusNotImplemented, ErrorResponse{Error: "not_implemented", Message: "no repository configured"})
		})
	}
	dlq.GET("", h.listDeadEvents)
	dlq.GET("/stats", h.deadEventStats)
	dlq.GET("/:id", h.getDeadEvent)
	dlq.POST("/:id/retry", h.retryDeadEvent)
	dlq.POST("/retry-batch", h.retryDeadEventsBatch)

	return r
}

type handler struct {
	cfg Config
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) ready(c *gin.Context) {
	if h.cfg.Repo == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	if h.cfg.Repo.IsConnected(ctx) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "reason": "database not connected"})
}

func (h *handler) metrics(c *gin.Context) {
	if h.cfg.Registerer == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "not_implemented", Message: "no metrics provider registered"})
		return
	}
	promhttp.HandlerFor(h.cfg.Registerer, promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
}

func (h *handler) listWorkers(c *gin.Context) {
	if h.cfg.Heartbeats == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "not_implemented", Message: "no heartbeat registry configured"})
		return
	}

	statuses, enabled, err := h.cfg.Heartbeats.List(c.Request.Context())
	if !enabled {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "not_implemented", Message: "heartbeat registry has no backing store"})
		return
	}
	if err != nil {
		h.logError("list workers", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"workers": statuses, "count": len(statuses)})
}

type listDeadQuery struct {
	Limit         int    `form:"limit"`
	Offset        int    `form:"offset"`
	AggregateType string `form:"aggregate_type"`
	EventType     string `form:"event_type"`
}

func (h *handler) listDeadEvents(c *gin.Context) {
	var q listDeadQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}
	if q.Limit <= 0 {
		q.Limit = defaultDeadLimit
	}
	if q.Limit > maxDeadLimit {
		q.Limit = maxDeadLimit
	}
	if q.Offset < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "offset must be non-negative"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), dlqReadTimeout)
	defer cancel()

	filter := DeadFilter{AggregateType: q.AggregateType, EventType: q.EventType}
	events, err := h.cfg.Repo.FetchDead(ctx, q.Limit, q.Offset, filter)
	if err != nil {
		h.logError("list dead events", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": wireEvents(events),
		"count":  len(events),
		"limit":  q.Limit,
		"offset": q.Offset,
	})
}

type deadStatsQuery struct {
	AggregateType string `form:"aggregate_type"`
	EventType     string `form:"event_type"`
}

func (h *handler) deadEventStats(c *gin.Context) {
	var q deadStatsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), dlqReadTimeout)
	defer cancel()

	filter := DeadFilter{AggregateType: q.AggregateType, EventType: q.EventType}
	total, err := h.cfg.Repo.CountDead(ctx, filter)
	if err != nil {
		h.logError("dead event stats", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":          total,
		"aggregate_type": nullableString(q.AggregateType),
		"event_type":     nullableString(q.EventType),
	})
}

func (h *handler) getDeadEvent(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), dlqReadTimeout)
	defer cancel()

	event, err := h.cfg.Repo.GetDead(ctx, id)
	if err != nil {
		h.logError("get dead event", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "internal server error"})
		return
	}
	if event == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "dead event not found"})
		return
	}
	c.JSON(http.StatusOK, event.ToWire())
}

func (h *handler) retryDeadEvent(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.checkReplay(c, idempotencyKeyFor(c, "single")); err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), dlqWriteTimeout)
	defer cancel()

	affected, err := h.cfg.Repo.RetryDead(ctx, id)
	if err != nil {
		h.logError("retry dead event", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "internal server error"})
		return
	}
	if !affected {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "dead event not found or already processed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "event_id": id, "message": "event reset to pending"})
}

type retryBatchRequest struct {
	EventIDs []int64 `json:"event_ids"`
}

func (h *handler) retryDeadEventsBatch(c *gin.Context) {
	var req retryBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "invalid JSON in request body"})
		return
	}
	if len(req.EventIDs) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "event_ids must be a non-empty list"})
		return
	}

	if err := h.checkReplay(c, idempotencyKeyFor(c, "batch")); err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), dlqWriteTimeout)
	defer cancel()

	processed, err := h.cfg.Repo.RetryDeadBatch(ctx, req.EventIDs)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidArgument) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
			return
		}
		h.logError("retry dead events batch", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"requested": len(req.EventIDs),
		"processed": processed,
	})
}

// checkReplay guards a DLQ write behind the replay guard when the caller
// sent an Idempotency-Key header; absent the header, behavior is
// unchanged from the contracted spec.md semantics. When the check fails it
// writes the HTTP response itself (409 on a duplicate, 500 when the guard's
// store errors) and returns a non-nil error so the caller short-circuits.
func (h *handler) checkReplay(c *gin.Context, key string) error {
	if h.cfg.Replay == nil || c.GetHeader("Idempotency-Key") == "" {
		return nil
	}
	if err := h.cfg.Replay.Check(c.Request.Context(), key); err != nil {
		if errors.Is(err, replayguard.ErrDuplicateRequest) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "duplicate_request", Message: "this request was already processed"})
			return err
		}
		h.logError("replay guard check", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "internal server error"})
		return err
	}
	return nil
}

// idempotencyKeyFor scopes a client's Idempotency-Key header to the kind of
// mutation (single vs batch retry) but deliberately NOT to the event id(s)
// in the request body: replaying the same key against a different id is
// still a replay of the original request, not a new one.
func idempotencyKeyFor(c *gin.Context, kind string) string {
	header := c.GetHeader("Idempotency-Key")
	if header == "" {
		return ""
	}
	return kind + ":" + header
}

func (h *handler) logError(op string, err error) {
	if h.cfg.Logger == nil {
		return
	}
	h.cfg.Logger.Error("admin request failed", zap.String("op", op), zap.Error(err))
}
