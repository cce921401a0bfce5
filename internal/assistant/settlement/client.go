package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"time"

	appconfig "payment-assistant/internal/common/config"
	"payment-assistant/internal/common/errors"
	httpclient "payment-assistant/internal/common/http"
	"payment-assistant/internal/common/logger"
	"payment-assistant/internal/common/metrics"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

func ConfigFromApp(cfg appconfig.GatewayConfig) *Config {
	return &Config{
		BaseURL: cfg.BaseURL,
		Timeout: appconfig.GetDuration(cfg.Timeout),
	}
}

// Client submits confirmed transfers to the payment gateway.
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
			"component": "settlement-client",
		}),
	}
}

// Submit sends req to the gateway. Invalid input is rejected locally with a
// validation error and never sent upstream. A reachable backend that rejects
// the transfer yields Result{Success: false, Message: <backend reason>} with a
// nil error; only transport-level failures return a non-nil error.
func (c *Client) Submit(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	body, _ := json.Marshal(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/transfer", bytes.NewBuffer(body))
	if err != nil {
		return nil, errors.NewTransportError("gateway", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Error("settlement request failed", map[string]interface{}{
			"toAccount": req.ToAccount,
			"error":     err.Error(),
		})
		metrics.Settlements.WithLabelValues("transport_error").Inc()
		return nil, errors.NewTransportError("gateway", err)
	}
	defer resp.Body.Close()

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		metrics.Settlements.WithLabelValues("transport_error").Inc()
		return nil, errors.NewTransportError("gateway", err)
	}

	if !result.Success {
		// Business failure: logged at warn, carried verbatim to the caller.
		if result.Message == "" {
			result.Message = "transfer rejected"
		}
		c.logger.Warn("settlement rejected by backend", map[string]interface{}{
			"toAccount": req.ToAccount,
			"reason":    result.Message,
		})
		metrics.Settlements.WithLabelValues("rejected").Inc()
		return &result, nil
	}

	c.logger.Info("settlement confirmed", map[string]interface{}{
		"toAccount":     req.ToAccount,
		"transactionId": result.TransactionID,
	})
	metrics.Settlements.WithLabelValues("settled").Inc()
	return &result, nil
}

func validate(req Request) error {
	if req.FromAccount == "" {
		return errors.NewValidationError("from_account is required")
	}
	if req.ToAccount == "" {
		return errors.NewValidationError("to_account is required")
	}
	if req.Token == "" {
		return errors.NewValidationError("token is required")
	}
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) || req.Amount <= 0 {
		return errors.NewValidationError("amount must be a positive finite number")
	}
	return nil
}
