package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sellerhub/marking/common/cache"
	"github.com/sellerhub/marking/common/logger"
	"github.com/sellerhub/marking/common/models"
)

// CatalogClient checks decoded product-item numbers against the product
// catalog. Lookups are cached: one scanned document can carry hundreds of
// codes of the same product.
type CatalogClient struct {
	baseURL string
	http    *http.Client
	cache   cache.Cache
	ttl     time.Duration
	log     *logger.Logger
}

// NewCatalogClient creates a new catalog client
func NewCatalogClient(baseURL string, timeout time.Duration, lookupCache cache.Cache, ttl time.Duration, log *logger.Logger) *CatalogClient {
	return &CatalogClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		cache:   lookupCache,
		ttl:     ttl,
		log:     log,
	}
}

// Exists reports whether the product-item number belongs to the product
// identified by the tuple
func (c *CatalogClient) Exists(ctx context.Context, gtin string, tuple models.ProductTuple) (bool, error) {
	cacheKey := fmt.Sprintf("catalog:%s:%s", gtin, tuple)

	if c.cache != nil {
		if cached, found, err := c.cache.Get(ctx, cacheKey); err == nil && found {
			return string(cached) == "1", nil
		}
	}

	query := url.Values{}
	query.Set("material", tuple.MaterialID.String())
	setOptional(query, "offer", tuple.OfferID)
	setOptional(query, "variation", tuple.VariationID)
	setOptional(query, "modification", tuple.ModificationID)

	reqURL := fmt.Sprintf("%s/api/v1/barcodes/%s/exists?%s", c.baseURL, url.PathEscape(gtin), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build catalog request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("catalog request returned %d", resp.StatusCode)
	}

	var body struct {
		Exists bool `json:"exists"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("failed to decode catalog response: %w", err)
	}

	if c.cache != nil {
		val := []byte("0")
		if body.Exists {
			val = []byte("1")
		}
		if err := c.cache.Set(ctx, cacheKey, val, c.ttl); err != nil {
			c.log.Warn("catalog cache write failed", "error", err)
		}
	}

	return body.Exists, nil
}

func setOptional(query url.Values, name string, id *uuid.UUID) {
	if id != nil {
		query.Set(name, id.String())
	}
}
