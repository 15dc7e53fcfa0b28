package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sellerhub/marking/cmd/marking-api/container"
	"github.com/sellerhub/marking/common/bootstrap"
	"github.com/sellerhub/marking/common/models"
	"github.com/sellerhub/marking/common/queue"
	"github.com/sellerhub/marking/common/ratelimit"
	"github.com/sellerhub/marking/common/validation"
)

// IngestHandler accepts scanned document submissions and dispatches them to
// the worker as asynchronous tasks
type IngestHandler struct {
	components *bootstrap.Components
	limiter    *ratelimit.RateLimiter
	publisher  *queue.StreamPublisher
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(c *container.Container) *IngestHandler {
	return &IngestHandler{
		components: c.Components,
		limiter:    c.RateLimiter,
		publisher:  c.Publisher,
	}
}

// SubmitDocument accepts one scanned document for asynchronous ingestion
// POST /api/v1/ingest
func (h *IngestHandler) SubmitDocument(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.IngestRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	if req.OwnerID == uuid.Nil || req.ProfileID == uuid.Nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "owner_id and profile_id are required",
		})
	}
	if req.Tuple.MaterialID == uuid.Nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "tuple.material_id is required",
		})
	}
	if err := validation.ValidateDocumentPath(req.DocumentPath); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}

	limit, err := h.limiter.CheckIngestLimit(ctx, req.OwnerID.String(), h.components.Config.RateLimit.IngestPerMinute)
	if err != nil {
		h.components.Logger.Error("rate limit check failed", "owner_id", req.OwnerID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to check submission limit",
		})
	}
	if !limit.Allowed {
		return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
			"error":       "submission limit exceeded",
			"limit":       limit.Limit,
			"retry_after": limit.RetryAfterSeconds,
		})
	}

	// every submission becomes its own part
	if req.PartID == uuid.Nil {
		req.PartID = uuid.New()
	}

	if err := h.publisher.Publish(ctx, queue.StreamIngestRequests, req); err != nil {
		h.components.Logger.Error("failed to dispatch ingest task", "part_id", req.PartID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to dispatch ingestion",
		})
	}

	h.components.Logger.Info("ingest task dispatched",
		"part_id", req.PartID,
		"owner_id", req.OwnerID,
		"document", req.DocumentPath)

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"part_id": req.PartID,
		"status":  "accepted",
	})
}
