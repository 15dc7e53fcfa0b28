// Package routes registers the marking API's HTTP routes.
package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/sellerhub/marking/cmd/marking-api/container"
	"github.com/sellerhub/marking/cmd/marking-api/handlers"
)

// RegisterCodeRoutes registers code lookup and reservation routes
func RegisterCodeRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewCodeHandler(c)

	codes := e.Group("/api/v1/codes")
	{
		codes.POST("/reserve", h.ReserveCodes)       // POST /api/v1/codes/reserve
		codes.GET("/:id", h.GetCode)                 // GET /api/v1/codes/{code_id}
		codes.POST("/:id/uploaded", h.ConfirmUpload) // POST /api/v1/codes/{code_id}/uploaded
	}
}
