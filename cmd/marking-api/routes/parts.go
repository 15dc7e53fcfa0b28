package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/sellerhub/marking/cmd/marking-api/container"
	"github.com/sellerhub/marking/cmd/marking-api/handlers"
)

// RegisterPartRoutes registers bulk part operation routes
func RegisterPartRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewPartHandler(c)

	parts := e.Group("/api/v1/parts")
	{
		parts.POST("/:part_id/decommission", h.DecommissionPart) // POST /api/v1/parts/{part_id}/decommission
		parts.POST("/:part_id/delete", h.DeletePart)             // POST /api/v1/parts/{part_id}/delete
	}
}
