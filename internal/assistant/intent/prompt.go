package intent

import (
	"fmt"
	"strings"

	"payment-assistant/internal/models"
)

// buildSystemPrompt enumerates the supported intents, the exact output
// envelope, and the account context when the user is logged in.
func buildSystemPrompt(userCtx *models.UserContext) string {
	var b strings.Builder

	b.WriteString(`You are a helpful payment assistant AI. You can help users with:
1. Sending money to other users (by username OR account number)
2. Searching for products in the shopping catalog
3. Buying products (triggers payment to store)
4. Checking account balance
5. Viewing transaction history

User Context:
`)

	if userCtx != nil {
		fmt.Fprintf(&b, "- Logged in as: %s\n", userCtx.Username)
		fmt.Fprintf(&b, "- Bank: %s\n", userCtx.Registry)
		fmt.Fprintf(&b, "- Account: %s\n", userCtx.AccountNumber)
		fmt.Fprintf(&b, "- Balance: $%.2f\n", userCtx.Balance)
	} else {
		b.WriteString("- Not logged in\n")
	}

	b.WriteString(`
IMPORTANT: Always respond ONLY with valid JSON. Never include the JSON structure in your message field.

When user wants to send money, extract:
- recipient username OR account number
- amount (number)

When user wants to search products, extract:
- search query (product name/description)

When user wants to BUY a product, extract:
- product_id (from previous search results)
- product name and price for confirmation

Respond in a conversational, helpful manner. Format your responses as ONLY this JSON structure (no markdown, no code blocks):
{
  "intent": "transfer" | "search_product" | "buy_product" | "check_balance" | "view_transactions" | "general",
  "message": "your natural language response to the user (NO JSON in this field)",
  "data": { /* extracted data based on intent */ }
}

For transfer intent data: { "recipient": "username or account", "amount": number }
For search_product intent data: { "query": "search term" }
For buy_product intent data: { "product_id": "id", "product_name": "name", "price": amount }

Example responses:
{"intent":"search_product","message":"I'll search for laptops for you. Here are the results:","data":{"query":"laptops"}}
{"intent":"transfer","message":"I'll help you send $50 to bob. Please confirm this transfer.","data":{"recipient":"bob","amount":50}}`)

	return b.String()
}

// buildMessages reduces the bounded history window to role+content pairs and
// appends the current user message.
func buildMessages(systemPrompt, text string, history []models.ConversationTurn, window int) []chatMessage {
	msgs := []chatMessage{{Role: "system", Content: systemPrompt}}

	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}

	for _, turn := range history {
		role := "assistant"
		if turn.Sender == models.SenderUser {
			role = "user"
		}
		msgs = append(msgs, chatMessage{Role: role, Content: turn.Text})
	}

	return append(msgs, chatMessage{Role: "user", Content: text})
}
