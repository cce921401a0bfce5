package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"payment-assistant/internal/common/errors"
	"payment-assistant/internal/common/logger"
	"payment-assistant/internal/common/metrics"
	"payment-assistant/internal/models"
)

const apologyMessage = "I apologize, but I encountered an error processing your request. Please try again."

var (
	fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	fenceMarkerRe = regexp.MustCompile("```(?:json)?\\s*")
	loneJSONRe    = regexp.MustCompile(`(?s)^\{.*\}$`)
)

// envelopeSchema validates the {intent, message, data} payload the backend is
// asked to emit. Anything that fails this is treated as free text.
var envelopeSchema = gojsonschema.NewGoLoader(map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"intent", "message"},
	"properties": map[string]interface{}{
		"intent":  map[string]interface{}{"type": "string", "minLength": 1},
		"message": map[string]interface{}{"type": "string"},
		"data":    map[string]interface{}{"type": "object"},
	},
})

// Classifier turns free-text user input into a strictly-typed Intent by
// calling the language-model completion backend. It never returns an error:
// every failure mode degrades to a general intent.
type Classifier struct {
	config *Config
	client *http.Client
	logger logger.Logger
}

func NewClassifier(config *Config, log logger.Logger) *Classifier {
	return &Classifier{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: log.With(map[string]interface{}{
			"component": "intent-classifier",
		}),
	}
}

// Classify sends the conversation context to the backend and normalizes the
// reply into an Intent. Backend and parse failures degrade to intent=general;
// the underlying error is retained for diagnostics only.
func (c *Classifier) Classify(ctx context.Context, text string, history []models.ConversationTurn, userCtx *models.UserContext) models.Intent {
	raw, err := c.complete(ctx, text, history, userCtx)
	if err != nil {
		c.logger.Error("classification backend call failed", map[string]interface{}{
			"error": err.Error(),
		})
		metrics.IntentsClassified.WithLabelValues(string(models.IntentGeneral)).Inc()
		return models.Intent{Kind: models.IntentGeneral, Message: apologyMessage}
	}

	intent := c.parse(raw)
	metrics.IntentsClassified.WithLabelValues(string(intent.Kind)).Inc()
	return intent
}

func (c *Classifier) complete(ctx context.Context, text string, history []models.ConversationTurn, userCtx *models.UserContext) (string, error) {
	reqBody := completionRequest{
		Model:       c.config.Model,
		Messages:    buildMessages(buildSystemPrompt(userCtx), text, history, c.config.HistoryWindow),
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}

	body, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return "", errors.NewTransportError("genai", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.NewTransportError("genai", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", errors.NewTransportError("genai", fmt.Errorf("status %d: %s", resp.StatusCode, string(b)))
	}

	var completion completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", errors.NewMalformedResponseError(err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.NewMalformedResponseError(fmt.Errorf("empty choices"))
	}

	return completion.Choices[0].Message.Content, nil
}

// parse applies the defensive parsing policy: unwrap fenced blocks, attempt a
// strict envelope parse, and fall back to a general intent carrying the
// sanitized raw text.
func (c *Classifier) parse(raw string) models.Intent {
	candidate := raw
	if m := fencedBlockRe.FindStringSubmatch(raw); m != nil {
		candidate = m[1]
	}

	env, err := parseEnvelope(candidate)
	if err != nil || env.Intent == "" {
		if err != nil {
			c.logger.Warn("falling back to general intent", map[string]interface{}{
				"error": errors.NewMalformedResponseError(err).Error(),
			})
		}
		return models.Intent{
			Kind:    models.IntentGeneral,
			Message: sanitizeMessage(raw),
		}
	}

	return c.toIntent(env)
}

func parseEnvelope(candidate string) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(candidate), &env); err != nil {
		return nil, err
	}

	result, err := gojsonschema.Validate(envelopeSchema, gojsonschema.NewStringLoader(candidate))
	if err != nil {
		return nil, err
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return nil, fmt.Errorf("envelope validation failed: %v", errs)
	}

	return &env, nil
}

// sanitizeMessage strips residual structural wrapper markers so the user never
// sees raw structured-output syntax.
func sanitizeMessage(msg string) string {
	msg = fenceMarkerRe.ReplaceAllString(msg, "")
	msg = strings.TrimSpace(msg)
	if loneJSONRe.MatchString(msg) {
		return ""
	}
	return msg
}

func (c *Classifier) toIntent(env *envelope) models.Intent {
	kind := models.IntentKind(env.Intent)
	if !models.KnownIntent(kind) {
		kind = models.IntentGeneral
	}

	out := models.Intent{
		Kind:    kind,
		Message: sanitizeMessage(env.Message),
	}

	switch kind {
	case models.IntentTransfer:
		out.Transfer = &models.TransferIntent{
			Recipient: stringField(env.Data, "recipient"),
			Amount:    stringField(env.Data, "amount"),
		}
	case models.IntentSearchProduct:
		out.Search = &models.SearchIntent{
			Query: stringField(env.Data, "query"),
		}
	case models.IntentBuyProduct:
		out.Buy = &models.BuyIntent{
			ProductID:   stringField(env.Data, "product_id"),
			ProductName: stringField(env.Data, "product_name"),
			Price:       stringField(env.Data, "price"),
		}
	}

	return out
}

// stringField reads a data field that the backend may emit as either a JSON
// string or a number.
func stringField(data map[string]interface{}, key string) string {
	if data == nil {
		return ""
	}
	switch v := data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
