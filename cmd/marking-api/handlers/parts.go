package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sellerhub/marking/cmd/marking-api/container"
	"github.com/sellerhub/marking/cmd/marking-api/service"
	"github.com/sellerhub/marking/common/bootstrap"
)

// PartHandler handles bulk operations over submitted parts
type PartHandler struct {
	components *bootstrap.Components
	parts      *service.PartsService
}

// NewPartHandler creates a new part handler
func NewPartHandler(c *container.Container) *PartHandler {
	return &PartHandler{
		components: c.Components,
		parts:      c.PartsService,
	}
}

// DecommissionPart writes off every still-available code of a part
// POST /api/v1/parts/:part_id/decommission
func (h *PartHandler) DecommissionPart(c echo.Context) error {
	return h.bulk(c, h.parts.Decommission)
}

// DeletePart soft-removes every still-available code of a part
// POST /api/v1/parts/:part_id/delete
func (h *PartHandler) DeletePart(c echo.Context) error {
	return h.bulk(c, h.parts.Delete)
}

func (h *PartHandler) bulk(c echo.Context, op func(ctx context.Context, partID uuid.UUID, comment string) (int, error)) error {
	ctx := c.Request().Context()

	partID, err := uuid.Parse(c.Param("part_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid part id",
		})
	}

	var req struct {
		Comment string `json:"comment"`
	}
	// body is optional
	_ = c.Bind(&req)

	moved, err := op(ctx, partID, req.Comment)
	if err != nil {
		h.components.Logger.Error("bulk part operation failed", "part_id", partID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "bulk operation failed",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"part_id": partID,
		"moved":   moved,
	})
}
