package intent

// chatMessage is one OpenAI-style chat message.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// completionRequest is the chat-completions request body.
type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// completionResponse is the subset of the chat-completions response we read.
type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// envelope is the structured payload the backend is asked to emit. The
// backend is not contract-bound to comply, so every field is re-validated
// before use.
type envelope struct {
	Intent  string                 `json:"intent"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
}
