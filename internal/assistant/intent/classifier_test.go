package intent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-assistant/internal/common/logger"
	"payment-assistant/internal/models"
)

func testConfig(baseURL string) *Config {
	return &Config{
		BaseURL:       baseURL,
		Model:         "llama-3.1-8b-instant",
		Temperature:   0.2,
		MaxTokens:     500,
		HistoryWindow: 6,
		Timeout:       5 * time.Second,
	}
}

// completionServer answers the chat-completions endpoint with content as the
// assistant message.
func completionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestClassify_TransferEnvelope(t *testing.T) {
	content := `{"intent":"transfer","message":"Please confirm sending $50.00 to bob.","data":{"recipient":"bob","amount":"50"}}`
	server := completionServer(t, content)
	defer server.Close()

	c := NewClassifier(testConfig(server.URL), logger.NewTestLogger(t))
	intent := c.Classify(context.Background(), "send $50 to bob", nil, nil)

	assert.Equal(t, models.IntentTransfer, intent.Kind)
	require.NotNil(t, intent.Transfer)
	assert.Equal(t, "bob", intent.Transfer.Recipient)
	assert.Equal(t, "50", intent.Transfer.Amount)
	assert.Equal(t, "Please confirm sending $50.00 to bob.", intent.Message)
}

func TestClassify_FencedEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "json fence",
			content: "```json\n{\"intent\":\"check_balance\",\"message\":\"Checking your balance.\"}\n```",
		},
		{
			name:    "bare fence",
			content: "```\n{\"intent\":\"check_balance\",\"message\":\"Checking your balance.\"}\n```",
		},
		{
			name:    "fence with surrounding prose",
			content: "Sure thing!\n```json\n{\"intent\":\"check_balance\",\"message\":\"Checking your balance.\"}\n```\nHope that helps.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := completionServer(t, tt.content)
			defer server.Close()

			c := NewClassifier(testConfig(server.URL), logger.NewTestLogger(t))
			intent := c.Classify(context.Background(), "balance?", nil, nil)

			assert.Equal(t, models.IntentCheckBalance, intent.Kind)
			assert.Equal(t, "Checking your balance.", intent.Message)
		})
	}
}

func TestClassify_NumericAmountInData(t *testing.T) {
	content := `{"intent":"transfer","message":"ok","data":{"recipient":"alice","amount":25.5}}`
	server := completionServer(t, content)
	defer server.Close()

	c := NewClassifier(testConfig(server.URL), logger.NewTestLogger(t))
	intent := c.Classify(context.Background(), "send alice 25.50", nil, nil)

	require.NotNil(t, intent.Transfer)
	assert.Equal(t, "25.5", intent.Transfer.Amount)
}

func TestClassify_MalformedOutputDegradesToGeneral(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantMessage string
	}{
		{
			name:        "plain prose",
			content:     "Hello! How can I help you today?",
			wantMessage: "Hello! How can I help you today?",
		},
		{
			name:        "truncated json",
			content:     `{"intent":"transfer","mess`,
			wantMessage: `{"intent":"transfer","mess`,
		},
		{
			name:        "missing required intent field",
			content:     `{"message":"hello"}`,
			wantMessage: "",
		},
		{
			name:        "residual fence markers are stripped",
			content:     "```json\nplease try again\n",
			wantMessage: "please try again",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := completionServer(t, tt.content)
			defer server.Close()

			c := NewClassifier(testConfig(server.URL), logger.NewTestLogger(t))
			intent := c.Classify(context.Background(), "hi", nil, nil)

			assert.Equal(t, models.IntentGeneral, intent.Kind)
			assert.Equal(t, tt.wantMessage, intent.Message)
			assert.Nil(t, intent.Transfer)
		})
	}
}

func TestClassify_UnknownIntentDegradesToGeneral(t *testing.T) {
	content := `{"intent":"order_pizza","message":"On it."}`
	server := completionServer(t, content)
	defer server.Close()

	c := NewClassifier(testConfig(server.URL), logger.NewTestLogger(t))
	intent := c.Classify(context.Background(), "pizza please", nil, nil)

	assert.Equal(t, models.IntentGeneral, intent.Kind)
	assert.Equal(t, "On it.", intent.Message)
}

func TestClassify_BackendFailureYieldsApology(t *testing.T) {
	tests := []struct {
		name   string
		server *httptest.Server
	}{
		{
			name: "non-200",
			server: httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			})),
		},
		{
			name: "empty choices",
			server: httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
			})),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer tt.server.Close()

			c := NewClassifier(testConfig(tt.server.URL), logger.NewTestLogger(t))
			intent := c.Classify(context.Background(), "send $50 to bob", nil, nil)

			assert.Equal(t, models.IntentGeneral, intent.Kind)
			assert.Equal(t, apologyMessage, intent.Message)
		})
	}
}

func TestClassify_BackendUnreachableYieldsApology(t *testing.T) {
	server := completionServer(t, "{}")
	server.Close()

	c := NewClassifier(testConfig(server.URL), logger.NewTestLogger(t))
	intent := c.Classify(context.Background(), "hi", nil, nil)

	assert.Equal(t, models.IntentGeneral, intent.Kind)
	assert.Equal(t, apologyMessage, intent.Message)
}

func TestClassify_SendsHistoryWindowAndAuth(t *testing.T) {
	var captured completionRequest
	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": `{"intent":"general","message":"hi"}`}},
			},
		})
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.APIKey = "secret"
	cfg.HistoryWindow = 2

	history := []models.ConversationTurn{
		{Sender: models.SenderUser, Text: "one"},
		{Sender: models.SenderAssistant, Text: "two"},
		{Sender: models.SenderUser, Text: "three"},
	}

	c := NewClassifier(cfg, logger.NewTestLogger(t))
	c.Classify(context.Background(), "latest", history, &models.UserContext{Username: "alice"})

	assert.Equal(t, "Bearer secret", authHeader)
	// system prompt + 2 history turns + current message
	require.Len(t, captured.Messages, 4)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "two", captured.Messages[1].Content)
	assert.Equal(t, "three", captured.Messages[2].Content)
	assert.Equal(t, "latest", captured.Messages[3].Content)
	assert.Contains(t, captured.Messages[0].Content, "alice")
}

func TestSanitizeMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "hello", "hello"},
		{"fence markers removed", "```json\nhello```", "hello"},
		{"lone json blob suppressed", `{"intent":"x"}`, ""},
		{"whitespace trimmed", "  hi  ", "hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeMessage(tt.in))
		})
	}
}
