// Package models holds the domain types shared across the assistant.
package models

import (
	"time"

	"github.com/google/uuid"
)

// TurnSender identifies who produced a conversation turn.
type TurnSender string

const (
	SenderUser      TurnSender = "user"
	SenderAssistant TurnSender = "assistant"
	SenderSystem    TurnSender = "system"
	SenderProducts  TurnSender = "product-result"
)

// ConversationTurn is one immutable entry of the session transcript.
type ConversationTurn struct {
	Sender    TurnSender  `json:"sender"`
	Text      string      `json:"text"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// IntentKind enumerates the supported classified intents.
type IntentKind string

const (
	IntentTransfer         IntentKind = "transfer"
	IntentSearchProduct    IntentKind = "search_product"
	IntentBuyProduct       IntentKind = "buy_product"
	IntentCheckBalance     IntentKind = "check_balance"
	IntentViewTransactions IntentKind = "view_transactions"
	IntentGeneral          IntentKind = "general"
)

// KnownIntent reports whether k is one of the supported intent kinds.
func KnownIntent(k IntentKind) bool {
	switch k {
	case IntentTransfer, IntentSearchProduct, IntentBuyProduct,
		IntentCheckBalance, IntentViewTransactions, IntentGeneral:
		return true
	}
	return false
}

// Intent is the classified purpose of a user utterance. Only the variant
// matching Kind is populated; the rest stay nil.
type Intent struct {
	Kind    IntentKind
	Message string

	Transfer *TransferIntent
	Search   *SearchIntent
	Buy      *BuyIntent
}

// TransferIntent carries the extracted transfer parameters. Recipient is a
// raw token, either a username or a canonical account number; Amount stays a
// string until the orchestrator validates it.
type TransferIntent struct {
	Recipient string
	Amount    string
}

type SearchIntent struct {
	Query string
}

type BuyIntent struct {
	ProductID   string
	ProductName string
	Price       string
}

// UserContext is the active session's login state. Balance is a display
// cache, optimistically decremented on confirmed transfers and never re-synced
// from the ledger.
type UserContext struct {
	Username      string  `json:"username"`
	AccountNumber string  `json:"account_number"`
	Registry      string  `json:"registry"`
	Balance       float64 `json:"balance"`
	Token         string  `json:"-"`
}

// PendingTransaction is the single in-flight, unconfirmed transfer or
// purchase awaiting explicit user approval. ID is its identity for
// stale-confirm detection; a superseded pending transaction's ID never
// matches again.
type PendingTransaction struct {
	ID          uuid.UUID `json:"id"`
	ToAccount   string    `json:"to_account"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`
	IsPurchase  bool      `json:"is_purchase"`
	Product     *Product  `json:"product,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Product is one catalog entry as returned by the catalog service.
type Product struct {
	ProductID   string  `json:"product_id"`
	Name        string  `json:"name"`
	Brand       string  `json:"brand"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Stock       int     `json:"stock"`
	ImageURL    string  `json:"image_url,omitempty"`
}

// RegistryUser is one account registry entry. Read-only to this service.
type RegistryUser struct {
	Username      string  `json:"username"`
	AccountNumber string  `json:"account_number"`
	Balance       float64 `json:"balance"`
}
