package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/sellerhub/marking/cmd/marking-api/container"
	"github.com/sellerhub/marking/cmd/marking-api/handlers"
)

// RegisterIngestRoutes registers document submission routes
func RegisterIngestRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewIngestHandler(c)

	e.POST("/api/v1/ingest", h.SubmitDocument) // POST /api/v1/ingest
}
