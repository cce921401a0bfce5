// Package authn is the boundary adapter for the per-registry login backends.
// It only produces the UserContext the orchestrator consumes; authentication
// itself is the registry's business.
package authn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	appconfig "payment-assistant/internal/common/config"
	"payment-assistant/internal/common/errors"
	httpclient "payment-assistant/internal/common/http"
	"payment-assistant/internal/common/logger"
	"payment-assistant/internal/models"
)

type Config struct {
	// Registry name -> base URL.
	Registries map[string]string
	Timeout    time.Duration
}

func ConfigFromApp(regs []appconfig.RegistryConfig) *Config {
	out := &Config{
		Registries: make(map[string]string, len(regs)),
		Timeout:    10 * time.Second,
	}
	for _, r := range regs {
		out.Registries[r.Name] = r.BaseURL
	}
	return out
}

type Client struct {
	config *Config
	client *httpclient.Client
	logger logger.Logger
}

func NewClient(config *Config, log logger.Logger) *Client {
	return &Client{
		config: config,
		client: httpclient.NewClient(config.Timeout),
		logger: log.With(map[string]interface{}{
			"component": "login-client",
		}),
	}
}

// Login authenticates username against the named registry and returns the
// UserContext to install on the session.
func (c *Client) Login(ctx context.Context, registry, username, password string) (*models.UserContext, error) {
	baseURL, ok := c.config.Registries[registry]
	if !ok {
		return nil, errors.NewValidationError(fmt.Sprintf("unknown registry: %s", registry))
	}

	body, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/login", bytes.NewBuffer(body))
	if err != nil {
		return nil, errors.NewTransportError("registry", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("login request failed", map[string]interface{}{
			"registry": registry,
			"error":    err.Error(),
		})
		return nil, errors.NewTransportError("registry", err)
	}
	defer resp.Body.Close()

	var payload struct {
		AccessToken string `json:"access_token"`
		User        struct {
			Username      string  `json:"username"`
			AccountNumber string  `json:"account_number"`
			Balance       float64 `json:"balance"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.NewTransportError("registry", err)
	}

	if resp.StatusCode != http.StatusOK || payload.AccessToken == "" {
		return nil, errors.NewAuthenticationFailedError(fmt.Sprintf("registry %s rejected the login", registry))
	}

	c.logger.Info("login succeeded", map[string]interface{}{
		"registry": registry,
		"username": payload.User.Username,
	})

	return &models.UserContext{
		Username:      payload.User.Username,
		AccountNumber: payload.User.AccountNumber,
		Registry:      registry,
		Balance:       payload.User.Balance,
		Token:         payload.AccessToken,
	}, nil
}
