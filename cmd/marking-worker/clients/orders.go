package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sellerhub/marking/common/faults"
	"github.com/sellerhub/marking/common/logger"
	"github.com/sellerhub/marking/common/models"
)

// OrdersClient resolves order events and recipes through the Order Read API
type OrdersClient struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

// NewOrdersClient creates a new Order Read API client
func NewOrdersClient(baseURL string, timeout time.Duration, log *logger.Logger) *OrdersClient {
	return &OrdersClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// OrderEvent resolves one order lifecycle event by id
func (c *OrdersClient) OrderEvent(ctx context.Context, eventID uuid.UUID) (*models.OrderEvent, error) {
	url := fmt.Sprintf("%s/api/v1/order-events/%s", c.baseURL, eventID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build order event request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("order event request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("order event %s: %w", eventID, faults.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("order event request returned %d", resp.StatusCode)
	}

	var event models.OrderEvent
	if err := json.NewDecoder(resp.Body).Decode(&event); err != nil {
		return nil, fmt.Errorf("failed to decode order event: %w", err)
	}

	return &event, nil
}

// Recipe returns the raw-material components of a finished good. A material
// without a recipe returns an empty slice, not an error.
func (c *OrdersClient) Recipe(ctx context.Context, materialID uuid.UUID) ([]models.RecipeComponent, error) {
	url := fmt.Sprintf("%s/api/v1/materials/%s/recipe", c.baseURL, materialID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build recipe request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recipe request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recipe request returned %d", resp.StatusCode)
	}

	var components []models.RecipeComponent
	if err := json.NewDecoder(resp.Body).Decode(&components); err != nil {
		return nil, fmt.Errorf("failed to decode recipe: %w", err)
	}

	return components, nil
}
