// Package session holds the mutable per-conversation state: the transcript,
// the login context and the single pending transaction. A session is a
// single-writer value; the mutex only exists so that asynchronous completions
// (classification, search, settlement) can append to the transcript in
// completion order.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"payment-assistant/internal/models"
)

// State enumerates the transaction orchestrator's states. Settled, Aborted
// and Failed are transient outcomes absorbed back into Idle.
type State string

const (
	StateIdle                 State = "idle"
	StateRecipientResolving   State = "recipient_resolving"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateSubmitting           State = "submitting"
)

type Session struct {
	ID string

	mu          sync.Mutex
	state       State
	transcript  []models.ConversationTurn
	user        *models.UserContext
	pending     *models.PendingTransaction
	loginPrompt bool
}

func New() *Session {
	return &Session{
		ID:    uuid.NewString(),
		state: StateIdle,
	}
}

// Append adds a turn to the transcript. Safe for out-of-order completions of
// concurrent in-flight calls.
func (s *Session) Append(sender models.TurnSender, text string, payload interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, models.ConversationTurn{
		Sender:    sender,
		Text:      text,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
}

// Transcript returns a copy of the transcript.
func (s *Session) Transcript() []models.ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ConversationTurn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// User returns the active login context, or nil.
func (s *Session) User() *models.UserContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// SetUser installs the login context produced by the login backend.
func (s *Session) SetUser(user *models.UserContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
	s.loginPrompt = false
}

// ClearUser drops the login context and any unconfirmed pending transaction.
func (s *Session) ClearUser() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.pending = nil
	s.state = StateIdle
}

// DebitBalance applies the optimistic local decrement after a confirmed
// transfer. The balance is a display cache, not a source of truth.
func (s *Session) DebitBalance(amount float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user != nil {
		s.user.Balance -= amount
	}
}

// Pending returns the current pending transaction, or nil.
func (s *Session) Pending() *models.PendingTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// SetPending installs tx as the sole pending transaction, discarding any
// unconfirmed prior one (last-writer-wins). Reports whether a prior pending
// transaction was superseded.
func (s *Session) SetPending(tx *models.PendingTransaction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	superseded := s.pending != nil
	s.pending = tx
	s.state = StateAwaitingConfirmation
	return superseded
}

// TakePending atomically claims the pending transaction matching id and moves
// the session to Submitting. A stale or duplicate confirm (id mismatch, or
// pending already claimed) yields nil: identity comparison, not a non-nil
// check.
func (s *Session) TakePending(id uuid.UUID) *models.PendingTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil || s.pending.ID != id {
		return nil
	}
	tx := s.pending
	s.pending = nil
	s.state = StateSubmitting
	return tx
}

// DiscardPending drops the pending transaction matching id, returning the
// session to Idle. A mismatched id is a no-op.
func (s *Session) DiscardPending(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil || s.pending.ID != id {
		return false
	}
	s.pending = nil
	s.state = StateIdle
	return true
}

// SetLoginPrompt marks that the presentation layer should open the login
// form.
func (s *Session) SetLoginPrompt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginPrompt = true
}

func (s *Session) LoginPrompt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginPrompt
}
