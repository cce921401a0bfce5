// Package catalog forwards product searches to the catalog service. Search is
// advisory, not transactional: every failure path yields an empty result
// rather than an error, so a broken catalog never blocks the conversation.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"payment-assistant/internal/common/cache"
	appconfig "payment-assistant/internal/common/config"
	"payment-assistant/internal/common/errors"
	"payment-assistant/internal/common/logger"
	"payment-assistant/internal/common/metrics"
	"payment-assistant/internal/models"
)

const storeAccountCacheKey = "catalog:store-account"

type Config struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

func ConfigFromApp(cfg appconfig.CatalogConfig, cacheTTL int) *Config {
	return &Config{
		BaseURL:  cfg.BaseURL,
		Timeout:  appconfig.GetDuration(cfg.Timeout),
		CacheTTL: appconfig.GetDuration(cacheTTL),
	}
}

type Gateway struct {
	config *Config
	client *http.Client
	cache  *cache.RedisClient
	logger logger.Logger

	mu           sync.Mutex
	storeAccount string
}

func NewGateway(config *Config, rdb *cache.RedisClient, log logger.Logger) *Gateway {
	return &Gateway{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		cache:  rdb,
		logger: log.With(map[string]interface{}{
			"component": "catalog-gateway",
		}),
	}
}

// Search forwards query verbatim; an empty query means "no filter". Returns
// an empty slice on any transport or non-success response.
func (g *Gateway) Search(ctx context.Context, query string) []models.Product {
	body, _ := json.Marshal(map[string]string{"query": query})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.BaseURL+"/products/search", bytes.NewBuffer(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn("catalog search failed", map[string]interface{}{
			"query": query,
			"error": err.Error(),
		})
		metrics.CatalogSearches.WithLabelValues("error").Inc()
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		g.logger.Warn("catalog search returned non-success", map[string]interface{}{
			"query":  query,
			"status": resp.StatusCode,
		})
		metrics.CatalogSearches.WithLabelValues("error").Inc()
		return nil
	}

	var products []models.Product
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		g.logger.Warn("catalog search returned malformed payload", map[string]interface{}{
			"error": err.Error(),
		})
		metrics.CatalogSearches.WithLabelValues("error").Inc()
		return nil
	}

	metrics.CatalogSearches.WithLabelValues("ok").Inc()
	return products
}

// StoreAccount returns the fixed store account number used as the destination
// of every purchase. Resolved once and memoized; the redis cache survives
// restarts.
func (g *Gateway) StoreAccount(ctx context.Context) (string, error) {
	g.mu.Lock()
	if g.storeAccount != "" {
		account := g.storeAccount
		g.mu.Unlock()
		return account, nil
	}
	g.mu.Unlock()

	if cached, err := g.cache.Get(ctx, storeAccountCacheKey); err == nil && cached != "" {
		g.remember(cached)
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.config.BaseURL+"/store-account", nil)
	if err != nil {
		return "", errors.NewStoreAccountUnavailableError(err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", errors.NewStoreAccountUnavailableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.NewStoreAccountUnavailableError(fmt.Errorf("status %d", resp.StatusCode))
	}

	var payload struct {
		AccountNumber string `json:"account_number"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", errors.NewStoreAccountUnavailableError(err)
	}
	if payload.AccountNumber == "" {
		return "", errors.NewStoreAccountUnavailableError(fmt.Errorf("empty account number"))
	}

	g.remember(payload.AccountNumber)
	if err := g.cache.Set(ctx, storeAccountCacheKey, payload.AccountNumber, g.config.CacheTTL); err != nil {
		g.logger.Debug("store account cache write failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return payload.AccountNumber, nil
}

func (g *Gateway) remember(account string) {
	g.mu.Lock()
	g.storeAccount = account
	g.mu.Unlock()
}
