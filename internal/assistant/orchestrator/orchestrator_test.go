package orchestrator

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-assistant/internal/assistant/directory"
	"payment-assistant/internal/assistant/session"
	"payment-assistant/internal/assistant/settlement"
	"payment-assistant/internal/common/errors"
	"payment-assistant/internal/common/logger"
	"payment-assistant/internal/models"
)

// ==========================
// Test doubles
// ==========================

type fakeClassifier struct {
	intent models.Intent
}

func (f *fakeClassifier) Classify(ctx context.Context, text string, history []models.ConversationTurn, userCtx *models.UserContext) models.Intent {
	return f.intent
}

type fakeResolver struct {
	resolution directory.Resolution
	calls      int32
}

func (f *fakeResolver) Resolve(ctx context.Context, token string) directory.Resolution {
	atomic.AddInt32(&f.calls, 1)
	return f.resolution
}

type fakeCatalog struct {
	products     []models.Product
	storeAccount string
	storeErr     error
}

func (f *fakeCatalog) Search(ctx context.Context, query string) []models.Product {
	return f.products
}

func (f *fakeCatalog) StoreAccount(ctx context.Context) (string, error) {
	return f.storeAccount, f.storeErr
}

type fakeSettler struct {
	result *settlement.Result
	err    error
	calls  int32
	last   settlement.Request
}

func (f *fakeSettler) Submit(ctx context.Context, req settlement.Request) (*settlement.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	f.last = req
	return f.result, f.err
}

func newTestOrchestrator(t *testing.T, c Classifier, r Resolver, cat Catalog, s Settler) *Orchestrator {
	t.Helper()
	if c == nil {
		c = &fakeClassifier{}
	}
	if r == nil {
		r = &fakeResolver{}
	}
	if cat == nil {
		cat = &fakeCatalog{}
	}
	if s == nil {
		s = &fakeSettler{}
	}
	return New(c, r, cat, s, logger.NewTestLogger(t), nil)
}

func loggedInSession(balance float64) *session.Session {
	sess := session.New()
	sess.SetUser(&models.UserContext{
		Username:      "alice",
		AccountNumber: "BANK100000001",
		Registry:      "BANK1",
		Balance:       balance,
		Token:         "tok",
	})
	return sess
}

func transferIntent(recipient, amount string) models.Intent {
	return models.Intent{
		Kind:     models.IntentTransfer,
		Transfer: &models.TransferIntent{Recipient: recipient, Amount: amount},
	}
}

func lastTurn(t *testing.T, sess *session.Session) models.ConversationTurn {
	t.Helper()
	transcript := sess.Transcript()
	require.NotEmpty(t, transcript)
	return transcript[len(transcript)-1]
}

// ==========================
// Transfer flow
// ==========================

func TestTransfer_HappyPath(t *testing.T) {
	classifier := &fakeClassifier{intent: transferIntent("bob", "50")}
	resolver := &fakeResolver{resolution: directory.Resolution{AccountNumber: "BANK100000002", Found: true}}
	settler := &fakeSettler{result: &settlement.Result{Success: true, TransactionID: "txn-1"}}

	o := newTestOrchestrator(t, classifier, resolver, nil, settler)
	sess := loggedInSession(5000)

	o.HandleMessage(context.Background(), sess, "send $50 to bob")

	require.Equal(t, session.StateAwaitingConfirmation, sess.State())
	tx := sess.Pending()
	require.NotNil(t, tx)
	assert.Equal(t, "BANK100000002", tx.ToAccount)
	assert.Equal(t, 50.0, tx.Amount)

	settled := o.Confirm(context.Background(), sess, tx.ID)

	assert.True(t, settled)
	assert.Equal(t, session.StateIdle, sess.State())
	assert.Nil(t, sess.Pending())
	assert.Equal(t, 4950.0, sess.User().Balance)
	assert.EqualValues(t, 1, atomic.LoadInt32(&settler.calls))
	assert.Equal(t, "BANK100000001", settler.last.FromAccount)
	assert.Equal(t, "tok", settler.last.Token)

	turn := lastTurn(t, sess)
	assert.Equal(t, models.SenderSystem, turn.Sender)
	assert.Contains(t, turn.Text, "Transfer successful")
	assert.Contains(t, turn.Text, "txn-1")
}

func TestTransfer_RequiresLogin(t *testing.T) {
	classifier := &fakeClassifier{intent: transferIntent("bob", "50")}
	resolver := &fakeResolver{}

	o := newTestOrchestrator(t, classifier, resolver, nil, nil)
	sess := session.New()

	o.HandleMessage(context.Background(), sess, "send $50 to bob")

	assert.True(t, sess.LoginPrompt())
	assert.Nil(t, sess.Pending())
	assert.EqualValues(t, 0, atomic.LoadInt32(&resolver.calls))
	assert.Contains(t, lastTurn(t, sess).Text, "login")
}

func TestTransfer_RecipientNotFound(t *testing.T) {
	classifier := &fakeClassifier{intent: transferIntent("nobody123", "50")}
	resolver := &fakeResolver{resolution: directory.Resolution{Found: false}}

	o := newTestOrchestrator(t, classifier, resolver, nil, nil)
	sess := loggedInSession(5000)

	o.HandleMessage(context.Background(), sess, "send $50 to nobody123")

	assert.Equal(t, session.StateIdle, sess.State())
	assert.Nil(t, sess.Pending())
	assert.Contains(t, lastTurn(t, sess).Text, "nobody123")
}

func TestTransfer_ResolutionTransportFailureReadsAsNotFound(t *testing.T) {
	classifier := &fakeClassifier{intent: transferIntent("bob", "50")}
	resolver := &fakeResolver{resolution: directory.Resolution{
		Found: false,
		Err:   errors.NewTransportError("registry", assert.AnError),
	}}

	o := newTestOrchestrator(t, classifier, resolver, nil, nil)
	sess := loggedInSession(5000)

	o.HandleMessage(context.Background(), sess, "send $50 to bob")

	assert.Equal(t, session.StateIdle, sess.State())
	assert.Nil(t, sess.Pending())
}

func TestTransfer_AmountValidation(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		pending bool
	}{
		{"zero rejected", "0", false},
		{"negative rejected", "-5", false},
		{"non-numeric rejected", "abc", false},
		{"empty rejected", "", false},
		{"decimal accepted", "50.00", true},
		{"currency symbol accepted", "$50", true},
		{"thousands separator accepted", "1,250.50", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classifier := &fakeClassifier{intent: transferIntent("bob", tt.amount)}
			resolver := &fakeResolver{resolution: directory.Resolution{AccountNumber: "BANK100000002", Found: true}}

			o := newTestOrchestrator(t, classifier, resolver, nil, nil)
			sess := loggedInSession(5000)

			o.HandleMessage(context.Background(), sess, "send money to bob")

			if tt.pending {
				require.NotNil(t, sess.Pending())
				assert.Equal(t, session.StateAwaitingConfirmation, sess.State())
			} else {
				assert.Nil(t, sess.Pending())
				assert.Equal(t, session.StateIdle, sess.State())
				assert.EqualValues(t, 0, atomic.LoadInt32(&resolver.calls), "invalid amounts must not trigger resolution")
			}
		})
	}
}

// ==========================
// Confirmation semantics
// ==========================

func TestConfirm_DoubleConfirmSettlesOnce(t *testing.T) {
	classifier := &fakeClassifier{intent: transferIntent("bob", "50")}
	resolver := &fakeResolver{resolution: directory.Resolution{AccountNumber: "BANK100000002", Found: true}}
	settler := &fakeSettler{result: &settlement.Result{Success: true, TransactionID: "txn-1"}}

	o := newTestOrchestrator(t, classifier, resolver, nil, settler)
	sess := loggedInSession(5000)

	o.HandleMessage(context.Background(), sess, "send $50 to bob")
	tx := sess.Pending()
	require.NotNil(t, tx)

	assert.True(t, o.Confirm(context.Background(), sess, tx.ID))
	assert.False(t, o.Confirm(context.Background(), sess, tx.ID))

	assert.EqualValues(t, 1, atomic.LoadInt32(&settler.calls))
	assert.Equal(t, 4950.0, sess.User().Balance, "balance debited exactly once")
}

func TestConfirm_StaleIDAfterSupersede(t *testing.T) {
	resolver := &fakeResolver{resolution: directory.Resolution{AccountNumber: "BANK100000002", Found: true}}
	settler := &fakeSettler{result: &settlement.Result{Success: true, TransactionID: "txn-2"}}

	classifier := &fakeClassifier{intent: transferIntent("bob", "50")}
	o := newTestOrchestrator(t, classifier, resolver, nil, settler)
	sess := loggedInSession(5000)

	o.HandleMessage(context.Background(), sess, "send $50 to bob")
	first := sess.Pending()
	require.NotNil(t, first)

	classifier.intent = transferIntent("bob", "75")
	o.HandleMessage(context.Background(), sess, "actually make it $75")
	second := sess.Pending()
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)

	// Confirming the superseded transaction is a no-op.
	assert.False(t, o.Confirm(context.Background(), sess, first.ID))
	assert.EqualValues(t, 0, atomic.LoadInt32(&settler.calls))
	require.NotNil(t, sess.Pending())

	// The live one settles with its own amount.
	assert.True(t, o.Confirm(context.Background(), sess, second.ID))
	assert.Equal(t, 75.0, settler.last.Amount)
	assert.Equal(t, 4925.0, sess.User().Balance)
}

func TestConfirm_WithoutLoginIsNoOp(t *testing.T) {
	settler := &fakeSettler{result: &settlement.Result{Success: true}}
	o := newTestOrchestrator(t, nil, nil, nil, settler)
	sess := session.New()

	assert.False(t, o.Confirm(context.Background(), sess, uuid.New()))
	assert.EqualValues(t, 0, atomic.LoadInt32(&settler.calls))
}

func TestConfirm_TransportFailureAbsorbsIntoIdle(t *testing.T) {
	classifier := &fakeClassifier{intent: transferIntent("bob", "50")}
	resolver := &fakeResolver{resolution: directory.Resolution{AccountNumber: "BANK100000002", Found: true}}
	settler := &fakeSettler{err: errors.NewTransportError("gateway", assert.AnError)}

	o := newTestOrchestrator(t, classifier, resolver, nil, settler)
	sess := loggedInSession(5000)

	o.HandleMessage(context.Background(), sess, "send $50 to bob")
	tx := sess.Pending()
	require.NotNil(t, tx)

	assert.False(t, o.Confirm(context.Background(), sess, tx.ID))
	assert.Equal(t, session.StateIdle, sess.State())
	assert.Equal(t, 5000.0, sess.User().Balance, "no debit on failure")

	turn := lastTurn(t, sess)
	assert.Equal(t, models.SenderSystem, turn.Sender)
	assert.Contains(t, turn.Text, "could not be reached")
}

func TestConfirm_BusinessRejectionCarriesReason(t *testing.T) {
	classifier := &fakeClassifier{intent: transferIntent("bob", "50")}
	resolver := &fakeResolver{resolution: directory.Resolution{AccountNumber: "BANK100000002", Found: true}}
	settler := &fakeSettler{result: &settlement.Result{Success: false, Message: "Insufficient funds"}}

	o := newTestOrchestrator(t, classifier, resolver, nil, settler)
	sess := loggedInSession(5000)

	o.HandleMessage(context.Background(), sess, "send $50 to bob")
	tx := sess.Pending()
	require.NotNil(t, tx)

	assert.False(t, o.Confirm(context.Background(), sess, tx.ID))
	assert.Equal(t, session.StateIdle, sess.State())
	assert.Equal(t, 5000.0, sess.User().Balance)
	assert.Contains(t, lastTurn(t, sess).Text, "Insufficient funds")
}

func TestAbort(t *testing.T) {
	classifier := &fakeClassifier{intent: transferIntent("bob", "50")}
	resolver := &fakeResolver{resolution: directory.Resolution{AccountNumber: "BANK100000002", Found: true}}
	settler := &fakeSettler{result: &settlement.Result{Success: true}}

	o := newTestOrchestrator(t, classifier, resolver, nil, settler)
	sess := loggedInSession(5000)

	o.HandleMessage(context.Background(), sess, "send $50 to bob")
	tx := sess.Pending()
	require.NotNil(t, tx)

	assert.False(t, o.Abort(sess, uuid.New()), "mismatched id must not abort")
	require.NotNil(t, sess.Pending())

	assert.True(t, o.Abort(sess, tx.ID))
	assert.Nil(t, sess.Pending())
	assert.Equal(t, session.StateIdle, sess.State())
	assert.Contains(t, lastTurn(t, sess).Text, "cancelled")

	// The aborted transaction can never settle.
	assert.False(t, o.Confirm(context.Background(), sess, tx.ID))
	assert.EqualValues(t, 0, atomic.LoadInt32(&settler.calls))
}

// ==========================
// Catalog flows
// ==========================

func TestSearch_AppendsProductTurn(t *testing.T) {
	classifier := &fakeClassifier{intent: models.Intent{
		Kind:    models.IntentSearchProduct,
		Message: "Here are the results:",
		Search:  &models.SearchIntent{Query: "laptop"},
	}}
	catalog := &fakeCatalog{products: []models.Product{
		{ProductID: "p1", Name: "Laptop Pro", Price: 1299.99},
	}}

	o := newTestOrchestrator(t, classifier, nil, catalog, nil)
	sess := session.New()

	o.HandleMessage(context.Background(), sess, "show me laptops")

	turn := lastTurn(t, sess)
	assert.Equal(t, models.SenderProducts, turn.Sender)
	products, ok := turn.Payload.([]models.Product)
	require.True(t, ok)
	assert.Equal(t, "Laptop Pro", products[0].Name)
}

func TestSearch_EmptyResultGetsFriendlyMessage(t *testing.T) {
	classifier := &fakeClassifier{intent: models.Intent{
		Kind:   models.IntentSearchProduct,
		Search: &models.SearchIntent{Query: "unobtainium"},
	}}

	o := newTestOrchestrator(t, classifier, nil, &fakeCatalog{}, nil)
	sess := session.New()

	o.HandleMessage(context.Background(), sess, "find unobtainium")

	turn := lastTurn(t, sess)
	assert.Equal(t, models.SenderAssistant, turn.Sender)
	assert.Contains(t, turn.Text, "couldn't find any matching products")
}

func TestBuy_CreatesPurchasePending(t *testing.T) {
	classifier := &fakeClassifier{intent: models.Intent{
		Kind: models.IntentBuyProduct,
		Buy:  &models.BuyIntent{ProductID: "p1", ProductName: "Laptop Pro", Price: "1299.99"},
	}}
	catalog := &fakeCatalog{storeAccount: "BANK199999999"}
	settler := &fakeSettler{result: &settlement.Result{Success: true, TransactionID: "txn-9"}}

	o := newTestOrchestrator(t, classifier, nil, catalog, settler)
	sess := loggedInSession(5000)

	o.HandleMessage(context.Background(), sess, "buy the laptop pro")

	tx := sess.Pending()
	require.NotNil(t, tx)
	assert.True(t, tx.IsPurchase)
	assert.Equal(t, "BANK199999999", tx.ToAccount)
	assert.Equal(t, 1299.99, tx.Amount)

	assert.True(t, o.Confirm(context.Background(), sess, tx.ID))
	assert.Contains(t, lastTurn(t, sess).Text, "Purchase successful")
	assert.InDelta(t, 3700.01, sess.User().Balance, 0.001)
}

func TestBuy_RequiresLogin(t *testing.T) {
	classifier := &fakeClassifier{intent: models.Intent{
		Kind: models.IntentBuyProduct,
		Buy:  &models.BuyIntent{ProductID: "p1", ProductName: "Laptop Pro", Price: "1299.99"},
	}}

	o := newTestOrchestrator(t, classifier, nil, &fakeCatalog{storeAccount: "BANK199999999"}, nil)
	sess := session.New()

	o.HandleMessage(context.Background(), sess, "buy the laptop pro")

	assert.True(t, sess.LoginPrompt())
	assert.Nil(t, sess.Pending())
}

func TestBuy_StoreAccountUnavailable(t *testing.T) {
	classifier := &fakeClassifier{intent: models.Intent{
		Kind: models.IntentBuyProduct,
		Buy:  &models.BuyIntent{ProductID: "p1", ProductName: "Laptop Pro", Price: "1299.99"},
	}}
	catalog := &fakeCatalog{storeErr: errors.NewStoreAccountUnavailableError(assert.AnError)}

	o := newTestOrchestrator(t, classifier, nil, catalog, nil)
	sess := loggedInSession(5000)

	o.HandleMessage(context.Background(), sess, "buy the laptop pro")

	assert.Nil(t, sess.Pending())
	assert.Equal(t, session.StateIdle, sess.State())
	assert.Contains(t, lastTurn(t, sess).Text, "Store account not available")
}

func TestBuyProduct_DirectPathFromCatalogEntry(t *testing.T) {
	catalog := &fakeCatalog{storeAccount: "BANK199999999"}
	o := newTestOrchestrator(t, nil, nil, catalog, nil)
	sess := loggedInSession(5000)

	o.BuyProduct(context.Background(), sess, models.Product{
		ProductID: "p2",
		Name:      "Laptop Air",
		Price:     999,
	})

	tx := sess.Pending()
	require.NotNil(t, tx)
	assert.True(t, tx.IsPurchase)
	assert.Equal(t, 999.0, tx.Amount)
	require.NotNil(t, tx.Product)
	assert.Equal(t, "p2", tx.Product.ProductID)
}

// ==========================
// Other intents
// ==========================

func TestCheckBalance(t *testing.T) {
	classifier := &fakeClassifier{intent: models.Intent{Kind: models.IntentCheckBalance}}
	o := newTestOrchestrator(t, classifier, nil, nil, nil)

	sess := loggedInSession(1234.56)
	o.HandleMessage(context.Background(), sess, "what's my balance")
	assert.Contains(t, lastTurn(t, sess).Text, "$1234.56")

	anon := session.New()
	o.HandleMessage(context.Background(), anon, "what's my balance")
	assert.True(t, anon.LoginPrompt())
}

func TestGeneralIntent_EchoesMessage(t *testing.T) {
	classifier := &fakeClassifier{intent: models.Intent{
		Kind:    models.IntentGeneral,
		Message: "Hello! How can I help?",
	}}
	o := newTestOrchestrator(t, classifier, nil, nil, nil)
	sess := session.New()

	o.HandleMessage(context.Background(), sess, "hi")

	turn := lastTurn(t, sess)
	assert.Equal(t, models.SenderAssistant, turn.Sender)
	assert.Equal(t, "Hello! How can I help?", turn.Text)
}

func TestHandleMessage_EmptyInputIgnored(t *testing.T) {
	o := newTestOrchestrator(t, nil, nil, nil, nil)
	sess := session.New()

	o.HandleMessage(context.Background(), sess, "   ")

	assert.Empty(t, sess.Transcript())
}

func TestHandleMessage_UserTurnPrecedesReply(t *testing.T) {
	classifier := &fakeClassifier{intent: models.Intent{Kind: models.IntentGeneral, Message: "hi"}}
	o := newTestOrchestrator(t, classifier, nil, nil, nil)
	sess := session.New()

	o.HandleMessage(context.Background(), sess, "hello")

	transcript := sess.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, models.SenderUser, transcript[0].Sender)
	assert.Equal(t, "hello", transcript[0].Text)
	assert.Equal(t, models.SenderAssistant, transcript[1].Sender)
}
