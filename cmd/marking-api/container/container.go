// Package container wires the marking API's repositories and services once
// at startup.
package container

import (
	"github.com/sellerhub/marking/cmd/marking-api/service"
	"github.com/sellerhub/marking/common/bootstrap"
	"github.com/sellerhub/marking/common/lifecycle"
	"github.com/sellerhub/marking/common/queue"
	"github.com/sellerhub/marking/common/ratelimit"
	"github.com/sellerhub/marking/common/repository"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	Components *bootstrap.Components

	// Repositories
	CodeRepo       *repository.CodeRepository
	AllocationRepo *repository.AllocationRepository

	// Services
	Lifecycle      *lifecycle.Service
	ReserveService *service.ReserveService
	PartsService   *service.PartsService

	// Infrastructure
	RateLimiter *ratelimit.RateLimiter
	Publisher   *queue.StreamPublisher
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	codeRepo := repository.NewCodeRepository(components.DB)
	allocationRepo := repository.NewAllocationRepository(components.DB)

	machine := lifecycle.NewService(codeRepo, components.Logger)
	reserveService := service.NewReserveService(components.Logger, components.DB, allocationRepo, machine)
	partsService := service.NewPartsService(components.Logger, components.DB, codeRepo, machine)

	return &Container{
		Components:     components,
		CodeRepo:       codeRepo,
		AllocationRepo: allocationRepo,
		Lifecycle:      machine,
		ReserveService: reserveService,
		PartsService:   partsService,
		RateLimiter:    ratelimit.NewRateLimiter(components.Redis.GetUnderlying(), components.Logger),
		Publisher:      queue.NewStreamPublisher(components.Redis, components.Logger),
	}, nil
}
