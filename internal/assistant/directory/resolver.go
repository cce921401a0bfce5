package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"payment-assistant/internal/common/cache"
	"payment-assistant/internal/common/errors"
	"payment-assistant/internal/common/logger"
	"payment-assistant/internal/common/metrics"
	"payment-assistant/internal/models"
)

// Resolution is the outcome of a recipient lookup. Not-found is a normal
// outcome; Err carries the lookup failure that was degraded to not-found so
// the two stay distinguishable in logs.
type Resolution struct {
	AccountNumber string
	Found         bool
	Err           error
}

// Resolver maps a human-supplied recipient token (username or account number)
// to a canonical account number by querying the configured registries in
// priority order.
type Resolver struct {
	config *Config
	client *http.Client
	cache  *cache.RedisClient
	logger logger.Logger
}

func NewResolver(config *Config, rdb *cache.RedisClient, log logger.Logger) *Resolver {
	return &Resolver{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		cache:  rdb,
		logger: log.With(map[string]interface{}{
			"component": "directory-resolver",
		}),
	}
}

// Resolve returns the canonical account number for token. Tokens already in
// canonical shape pass through without any registry call.
func (r *Resolver) Resolve(ctx context.Context, token string) Resolution {
	token = strings.TrimSpace(token)
	if token == "" {
		metrics.DirectoryLookups.WithLabelValues("not_found").Inc()
		return Resolution{Found: false}
	}

	if r.isCanonical(token) {
		metrics.DirectoryLookups.WithLabelValues("passthrough").Inc()
		return Resolution{AccountNumber: token, Found: true}
	}

	username := strings.ToLower(token)
	cacheKey := "directory:user:" + username

	if cached, err := r.cache.Get(ctx, cacheKey); err == nil && cached != "" {
		metrics.DirectoryLookups.WithLabelValues("cache_hit").Inc()
		return Resolution{AccountNumber: cached, Found: true}
	}

	var lastErr error
	for _, reg := range r.config.Registries {
		account, err := r.lookup(ctx, reg, username)
		if err != nil {
			// Degrades to not-found rather than blocking the conversation.
			lastErr = err
			r.logger.Warn("registry lookup failed", map[string]interface{}{
				"registry": reg.Name,
				"error":    err.Error(),
			})
			continue
		}
		if account != "" {
			metrics.DirectoryLookups.WithLabelValues("found").Inc()
			if err := r.cache.Set(ctx, cacheKey, account, r.config.CacheTTL); err != nil {
				r.logger.Debug("directory cache write failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return Resolution{AccountNumber: account, Found: true}
		}
	}

	if lastErr != nil {
		metrics.DirectoryLookups.WithLabelValues("error").Inc()
		return Resolution{Found: false, Err: errors.NewTransportError("registry", lastErr)}
	}

	metrics.DirectoryLookups.WithLabelValues("not_found").Inc()
	return Resolution{Found: false}
}

// isCanonical reports whether token already matches a registry prefix
// followed by its fixed-length numeric suffix.
func (r *Resolver) isCanonical(token string) bool {
	upper := strings.ToUpper(token)
	for _, reg := range r.config.Registries {
		if !strings.HasPrefix(upper, reg.AccountPrefix) {
			continue
		}
		suffix := token[len(reg.AccountPrefix):]
		if len(suffix) != reg.AccountDigits {
			continue
		}
		allDigits := true
		for _, c := range suffix {
			if !unicode.IsDigit(c) {
				allDigits = false
				break
			}
		}
		if allDigits {
			return true
		}
	}
	return false
}

func (r *Resolver) lookup(ctx context.Context, reg Registry, username string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reg.BaseURL+"/users", nil)
	if err != nil {
		return "", err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("registry %s returned status %d", reg.Name, resp.StatusCode)
	}

	var payload struct {
		Users []models.RegistryUser `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}

	// Case-insensitive username matching happens client-side.
	for _, u := range payload.Users {
		if strings.ToLower(u.Username) == username {
			return u.AccountNumber, nil
		}
	}
	return "", nil
}
