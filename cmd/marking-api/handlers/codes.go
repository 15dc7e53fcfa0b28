// Package handlers contains the HTTP layer of the marking API. Handlers
// translate transport concerns and leave the semantics to the services.
package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sellerhub/marking/cmd/marking-api/container"
	"github.com/sellerhub/marking/cmd/marking-api/service"
	"github.com/sellerhub/marking/common/bootstrap"
	"github.com/sellerhub/marking/common/faults"
	"github.com/sellerhub/marking/common/repository"
)

// CodeHandler handles code lookup and reservation requests
type CodeHandler struct {
	components *bootstrap.Components
	codes      *repository.CodeRepository
	reserve    *service.ReserveService
}

// NewCodeHandler creates a new code handler
func NewCodeHandler(c *container.Container) *CodeHandler {
	return &CodeHandler{
		components: c.Components,
		codes:      c.CodeRepo,
		reserve:    c.ReserveService,
	}
}

// GetCode retrieves one code with its current event and payload
// GET /api/v1/codes/:id
func (h *CodeHandler) GetCode(c echo.Context) error {
	ctx := c.Request().Context()

	codeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid code id",
		})
	}

	view, err := h.codes.GetByID(ctx, codeID)
	if err != nil {
		if faults.IsNotFound(err) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"error": "code not found",
			})
		}
		h.components.Logger.Error("failed to load code", "code_id", codeID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to load code",
		})
	}

	return c.JSON(http.StatusOK, view)
}

// ConfirmUpload flags a code's image as stored, called back by the external
// uploader
// POST /api/v1/codes/:id/uploaded
func (h *CodeHandler) ConfirmUpload(c echo.Context) error {
	ctx := c.Request().Context()

	codeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid code id",
		})
	}

	if err := h.codes.MarkUploaded(ctx, codeID); err != nil {
		if faults.IsNotFound(err) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"error": "code not found",
			})
		}
		h.components.Logger.Error("failed to confirm upload", "code_id", codeID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to confirm upload",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"code_id":  codeID,
		"uploaded": true,
	})
}

// ReserveCodes binds available codes to an order
// POST /api/v1/codes/reserve
func (h *CodeHandler) ReserveCodes(c echo.Context) error {
	ctx := c.Request().Context()

	var req service.ReserveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	reserved, err := h.reserve.Reserve(ctx, &req)
	if err != nil {
		var insufficient *faults.InsufficientError
		switch {
		case errors.As(err, &insufficient):
			return c.JSON(http.StatusConflict, map[string]interface{}{
				"error":     "insufficient codes available",
				"requested": insufficient.Requested,
				"available": insufficient.Available,
			})
		case faults.IsValidation(err):
			return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
				"error": err.Error(),
			})
		default:
			h.components.Logger.Error("reservation failed", "order_id", req.OrderID, "error", err)
			return c.JSON(http.StatusInternalServerError, map[string]interface{}{
				"error": "reservation failed",
			})
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"order_id": req.OrderID,
		"reserved": reserved,
		"quantity": len(reserved),
	})
}
