package ingest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"aggregator/internal/consumer"
	"aggregator/internal/constants"
	"aggregator/internal/ledger"
	"aggregator/internal/logger"
	pkgerrors "aggregator/pkg/errors"
	"aggregator/pkg/health"
	"aggregator/pkg/models"
)

// Service is the ingestion surface the HTTP layer calls into.
type Service interface {
	Enqueue(ev models.Event)
	Stats(ctx context.Context) (consumer.Stats, error)
	Events(ctx context.Context, topic string, limit int) ([]ledger.Record, error)
}

// Admin is the reset surface, wired only when the admin endpoint is enabled.
type Admin interface {
	Clear(ctx context.Context) error
}

type Handler struct {
	service Service
	admin   Admin
	healths *health.CheckerRegistry
	logger  logger.Logger
}

func NewHandler(service Service, admin Admin, healths *health.CheckerRegistry, log logger.Logger) *Handler {
	return &Handler{
		service: service,
		admin:   admin,
		healths: healths,
		logger:  log,
	}
}

// RegisterRoutes wires the ingress surface. publishMiddleware applies only
// to POST /publish (rate limiting); read paths stay unthrottled.
func (h *Handler) RegisterRoutes(router *gin.Engine, publishMiddleware ...gin.HandlerFunc) {
	router.GET("/", h.Root)
	router.POST("/publish", append(publishMiddleware, gin.HandlerFunc(h.Publish))...)
	router.GET("/events", h.ListEvents)
	router.GET("/stats", h.GetStats)
	router.GET("/health", h.Health)

	if h.admin != nil {
		router.POST("/admin/reset", h.Reset)
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error",
		"error", err,
		"path", c.Request.URL.Path,
	)

	c.JSON(pkgerrors.ToHTTPStatus(err), pkgerrors.ToErrorResponse(err))
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, ServiceInfo{
		Service: constants.ServiceName,
		Version: constants.ServiceVersion,
		Status:  "running",
		Endpoints: map[string]string{
			"publish": "POST /publish",
			"events":  "GET /events?topic={topic}&limit={limit}",
			"stats":   "GET /stats",
			"health":  "GET /health",
		},
	})
}

// Publish accepts a schema-valid event and enqueues it. Acceptance says
// nothing about eventual duplicate status; a duplicate is accepted here and
// dropped by the drain loop.
func (h *Handler) Publish(c *gin.Context) {
	var ev models.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusUnprocessableEntity, pkgerrors.ToErrorResponse(pkgerrors.ErrValidation.WithCause(err)))
		return
	}

	if err := models.ValidateEvent(&ev); err != nil {
		c.JSON(http.StatusUnprocessableEntity, pkgerrors.ToErrorResponse(pkgerrors.ErrValidation.WithCause(err)))
		return
	}

	h.service.Enqueue(ev)

	h.logger.InfowCtx(c.Request.Context(), "Event published",
		"topic", ev.Topic,
		"event_id", ev.EventID,
	)

	c.JSON(http.StatusOK, PublishResponse{
		Status:     "accepted",
		Message:    "event accepted for processing",
		EventID:    ev.EventID,
		ReceivedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (h *Handler) ListEvents(c *gin.Context) {
	topic := c.Query("topic")

	limit := constants.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, pkgerrors.ToErrorResponse(
				pkgerrors.ErrValidation.WithDetail("message", "limit must be an integer")))
			return
		}
		limit = parsed
	}
	if limit < 1 {
		limit = 1
	}
	if limit > constants.MaxListLimit {
		limit = constants.MaxListLimit
	}

	events, err := h.service.Events(c.Request.Context(), topic, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, EventListResponse{
		Topic:  topic,
		Count:  len(events),
		Events: events,
	})
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) Health(c *gin.Context) {
	result := h.healths.Check(c.Request.Context())

	status := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, result)
}

// Reset wipes the ledger. Exists for test isolation and operator resets,
// never steady-state operation.
func (h *Handler) Reset(c *gin.Context) {
	if err := h.admin.Clear(c.Request.Context()); err != nil {
		h.handleError(c, err)
		return
	}

	h.logger.WarnwCtx(c.Request.Context(), "Ledger reset via admin endpoint")
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}
