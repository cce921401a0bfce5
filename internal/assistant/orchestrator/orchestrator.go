// Package orchestrator owns the pending-transaction state machine: intent ->
// recipient/amount resolution -> user confirmation -> settlement -> outcome.
// No settlement call ever happens without an explicit confirmation of a
// pending transaction with a positive finite amount and a non-empty
// destination.
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"payment-assistant/internal/assistant/directory"
	"payment-assistant/internal/assistant/session"
	"payment-assistant/internal/assistant/settlement"
	"payment-assistant/internal/common/logger"
	"payment-assistant/internal/common/metrics"
	"payment-assistant/internal/common/observability"
	"payment-assistant/internal/models"
)

// Classifier turns a user turn into a typed intent.
type Classifier interface {
	Classify(ctx context.Context, text string, history []models.ConversationTurn, userCtx *models.UserContext) models.Intent
}

// Resolver maps a recipient token to a canonical account number.
type Resolver interface {
	Resolve(ctx context.Context, token string) directory.Resolution
}

// Catalog searches products and knows the store account.
type Catalog interface {
	Search(ctx context.Context, query string) []models.Product
	StoreAccount(ctx context.Context) (string, error)
}

// Settler submits confirmed transfers.
type Settler interface {
	Submit(ctx context.Context, req settlement.Request) (*settlement.Result, error)
}

type Orchestrator struct {
	classifier Classifier
	resolver   Resolver
	catalog    Catalog
	settler    Settler
	logger     logger.Logger
	obs        *observability.Observability
}

func New(classifier Classifier, resolver Resolver, catalog Catalog, settler Settler, log logger.Logger, obs *observability.Observability) *Orchestrator {
	return &Orchestrator{
		classifier: classifier,
		resolver:   resolver,
		catalog:    catalog,
		settler:    settler,
		logger: log.With(map[string]interface{}{
			"component": "orchestrator",
		}),
		obs: obs,
	}
}

// HandleMessage processes one user turn to completion: classify, dispatch on
// the intent, and append the resulting turns to the transcript.
func (o *Orchestrator) HandleMessage(ctx context.Context, sess *session.Session, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	start := time.Now()
	history := sess.Transcript()
	sess.Append(models.SenderUser, text, nil)

	intent := o.classifier.Classify(ctx, text, history, sess.User())

	o.logger.Info("intent classified", map[string]interface{}{
		"sessionId": sess.ID,
		"intent":    string(intent.Kind),
	})

	switch intent.Kind {
	case models.IntentTransfer:
		o.handleTransfer(ctx, sess, intent, text)
	case models.IntentSearchProduct:
		o.handleSearch(ctx, sess, intent)
	case models.IntentBuyProduct:
		o.handleBuy(ctx, sess, intent)
	case models.IntentCheckBalance:
		o.handleCheckBalance(sess, intent)
	case models.IntentViewTransactions:
		o.handleViewTransactions(sess, intent)
	default:
		o.handleGeneral(sess, intent)
	}

	metrics.MessageDuration.WithLabelValues(string(intent.Kind)).Observe(time.Since(start).Seconds())
	if o.obs != nil {
		o.obs.RecordTurnProcessed(ctx, string(intent.Kind))
		o.obs.RecordTurnDuration(ctx, time.Since(start), string(intent.Kind))
	}
}

// handleTransfer drives Idle -> RecipientResolving -> AwaitingConfirmation.
func (o *Orchestrator) handleTransfer(ctx context.Context, sess *session.Session, intent models.Intent, text string) {
	user := sess.User()
	if user == nil {
		sess.Append(models.SenderAssistant, "Please login first to make transfers.", nil)
		sess.SetLoginPrompt()
		return
	}
	if intent.Transfer == nil {
		sess.Append(models.SenderAssistant, "I couldn't work out the transfer details. Could you rephrase?", nil)
		return
	}

	amount, err := parseAmount(intent.Transfer.Amount)
	if err != nil {
		// Malformed intent payload: un-correctable here, stay in Idle.
		sess.Append(models.SenderAssistant, fmt.Sprintf("That amount doesn't look valid (%s). Please tell me how much to send.", intent.Transfer.Amount), nil)
		return
	}

	sess.SetState(session.StateRecipientResolving)
	res := o.resolver.Resolve(ctx, intent.Transfer.Recipient)
	if !res.Found {
		if res.Err != nil {
			o.logger.Warn("recipient resolution degraded to not-found", map[string]interface{}{
				"sessionId": sess.ID,
				"error":     res.Err.Error(),
			})
		}
		sess.SetState(session.StateIdle)
		sess.Append(models.SenderAssistant, fmt.Sprintf("I couldn't find a user named %q. Please check the name and try again.", intent.Transfer.Recipient), nil)
		return
	}

	tx := &models.PendingTransaction{
		ID:          uuid.New(),
		ToAccount:   res.AccountNumber,
		Amount:      amount,
		Description: text,
		CreatedAt:   time.Now().UTC(),
	}
	if superseded := sess.SetPending(tx); superseded {
		metrics.PendingSuperseded.Inc()
		o.logger.Info("pending transaction superseded", map[string]interface{}{
			"sessionId": sess.ID,
		})
	}

	msg := intent.Message
	if msg == "" {
		msg = fmt.Sprintf("Please confirm sending $%.2f to %s.", amount, res.AccountNumber)
	}
	sess.Append(models.SenderAssistant, msg, nil)
}

func (o *Orchestrator) handleSearch(ctx context.Context, sess *session.Session, intent models.Intent) {
	if intent.Message != "" {
		sess.Append(models.SenderAssistant, intent.Message, nil)
	}

	query := ""
	if intent.Search != nil {
		query = intent.Search.Query
	}

	products := o.catalog.Search(ctx, query)
	if len(products) == 0 {
		sess.Append(models.SenderAssistant, "I couldn't find any matching products right now.", nil)
		return
	}

	sess.Append(models.SenderProducts, fmt.Sprintf("Found %d products:", len(products)), products)
}

// handleBuy goes straight to AwaitingConfirmation: the destination is the
// fixed store account.
func (o *Orchestrator) handleBuy(ctx context.Context, sess *session.Session, intent models.Intent) {
	user := sess.User()
	if user == nil {
		sess.Append(models.SenderAssistant, "Please login first to make purchases.", nil)
		sess.SetLoginPrompt()
		return
	}
	if intent.Buy == nil {
		sess.Append(models.SenderAssistant, "I couldn't work out which product you want to buy.", nil)
		return
	}

	price, err := parseAmount(intent.Buy.Price)
	if err != nil {
		sess.Append(models.SenderAssistant, fmt.Sprintf("The price for %s doesn't look valid. Try searching for it again.", intent.Buy.ProductName), nil)
		return
	}

	storeAccount, err := o.catalog.StoreAccount(ctx)
	if err != nil {
		o.logger.Error("store account unavailable", map[string]interface{}{
			"sessionId": sess.ID,
			"error":     err.Error(),
		})
		sess.SetState(session.StateIdle)
		sess.Append(models.SenderAssistant, "Store account not available. Please try again.", nil)
		return
	}

	tx := &models.PendingTransaction{
		ID:          uuid.New(),
		ToAccount:   storeAccount,
		Amount:      price,
		Description: "Purchase: " + intent.Buy.ProductName,
		IsPurchase:  true,
		Product: &models.Product{
			ProductID: intent.Buy.ProductID,
			Name:      intent.Buy.ProductName,
			Price:     price,
		},
		CreatedAt: time.Now().UTC(),
	}
	if superseded := sess.SetPending(tx); superseded {
		metrics.PendingSuperseded.Inc()
	}

	msg := intent.Message
	if msg == "" {
		msg = fmt.Sprintf("Please confirm buying %s for $%.2f.", intent.Buy.ProductName, price)
	}
	sess.Append(models.SenderAssistant, msg, nil)
}

// BuyProduct creates a pending purchase directly from a catalog entry (the
// presentation layer's buy button), bypassing classification.
func (o *Orchestrator) BuyProduct(ctx context.Context, sess *session.Session, product models.Product) {
	o.handleBuy(ctx, sess, models.Intent{
		Kind: models.IntentBuyProduct,
		Buy: &models.BuyIntent{
			ProductID:   product.ProductID,
			ProductName: product.Name,
			Price:       strconv.FormatFloat(product.Price, 'f', -1, 64),
		},
	})
}

func (o *Orchestrator) handleCheckBalance(sess *session.Session, intent models.Intent) {
	user := sess.User()
	if user == nil {
		sess.Append(models.SenderAssistant, "Please login first to check your balance.", nil)
		sess.SetLoginPrompt()
		return
	}
	sess.Append(models.SenderAssistant, fmt.Sprintf("Your balance is $%.2f on account %s.", user.Balance, user.AccountNumber), nil)
}

func (o *Orchestrator) handleViewTransactions(sess *session.Session, intent models.Intent) {
	msg := intent.Message
	if msg == "" {
		msg = "Your confirmed transfers appear in this conversation as they settle."
	}
	sess.Append(models.SenderAssistant, msg, nil)
}

func (o *Orchestrator) handleGeneral(sess *session.Session, intent models.Intent) {
	msg := intent.Message
	if msg == "" {
		msg = "Sorry, I didn't catch that. Could you rephrase?"
	}
	sess.Append(models.SenderAssistant, msg, nil)
}

// Confirm moves AwaitingConfirmation -> Submitting -> outcome for the pending
// transaction identified by pendingID. A stale or duplicate confirm is a
// no-op; exactly one settlement call happens per pending transaction.
func (o *Orchestrator) Confirm(ctx context.Context, sess *session.Session, pendingID uuid.UUID) bool {
	user := sess.User()
	if user == nil {
		return false
	}

	tx := sess.TakePending(pendingID)
	if tx == nil {
		o.logger.Debug("ignoring stale confirm", map[string]interface{}{
			"sessionId": sess.ID,
			"pendingId": pendingID.String(),
		})
		return false
	}

	if math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) || tx.Amount <= 0 || tx.ToAccount == "" {
		sess.SetState(session.StateIdle)
		sess.Append(models.SenderSystem, "Payment failed: invalid transaction details.", nil)
		return false
	}

	result, err := o.settler.Submit(ctx, settlement.Request{
		FromAccount: user.AccountNumber,
		ToAccount:   tx.ToAccount,
		Amount:      tx.Amount,
		Token:       user.Token,
		Description: tx.Description,
	})

	// Failed is not a dead-end: both failure categories absorb back into
	// Idle so the user can retry.
	sess.SetState(session.StateIdle)

	if err != nil {
		o.logger.Error("settlement attempt failed", map[string]interface{}{
			"sessionId": sess.ID,
			"error":     err.Error(),
		})
		sess.Append(models.SenderSystem, "Payment failed: the payment service could not be reached.", nil)
		return false
	}
	if !result.Success {
		sess.Append(models.SenderSystem, "Payment failed: "+result.Message, nil)
		return false
	}

	sess.DebitBalance(tx.Amount)
	if tx.IsPurchase {
		sess.Append(models.SenderSystem, fmt.Sprintf("Purchase successful! Paid $%.2f. Transaction ID: %s", tx.Amount, result.TransactionID), nil)
	} else {
		sess.Append(models.SenderSystem, fmt.Sprintf("Transfer successful! Transaction ID: %s", result.TransactionID), nil)
	}
	return true
}

// Abort discards the pending transaction identified by pendingID. A
// mismatched id is a no-op.
func (o *Orchestrator) Abort(sess *session.Session, pendingID uuid.UUID) bool {
	if !sess.DiscardPending(pendingID) {
		return false
	}
	sess.Append(models.SenderSystem, "Transaction cancelled.", nil)
	return true
}

// parseAmount parses a user- or model-supplied amount. Currency symbols and
// thousands separators are tolerated; anything non-positive or non-finite is
// rejected.
func parseAmount(raw string) (float64, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return 0, fmt.Errorf("empty amount")
	}

	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", raw)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, fmt.Errorf("amount must be positive: %v", amount)
	}
	return amount, nil
}
