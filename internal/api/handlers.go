// Package api is the HTTP presentation surface. It carries no transaction
// state of its own: every state transition happens inside the orchestrator
// and the session.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"payment-assistant/internal/assistant/authn"
	"payment-assistant/internal/assistant/orchestrator"
	"payment-assistant/internal/assistant/session"
	"payment-assistant/internal/common/logger"
	"payment-assistant/internal/models"
)

type Handler struct {
	sessions *session.Manager
	orch     *orchestrator.Orchestrator
	login    *authn.Client
	logger   logger.Logger
}

func NewHandler(sessions *session.Manager, orch *orchestrator.Orchestrator, login *authn.Client, log logger.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		orch:     orch,
		login:    login,
		logger:   log.With(map[string]interface{}{"component": "api"}),
	}
}

// Router wires all routes.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/api/sessions", h.CreateSession).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/messages", h.PostMessage).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/confirm", h.Confirm).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/abort", h.Abort).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/buy", h.Buy).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/logout", h.Logout).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/transcript", h.Transcript).Methods(http.MethodGet)
	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Create()
	respondWithJSON(w, http.StatusCreated, map[string]string{"session_id": sess.ID})
}

func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		respondWithError(w, http.StatusBadRequest, "text is required")
		return
	}

	h.orch.HandleMessage(r.Context(), sess, req.Text)
	respondWithJSON(w, http.StatusOK, h.snapshot(sess))
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	id, ok := h.pendingID(w, r)
	if !ok {
		return
	}

	settled := h.orch.Confirm(r.Context(), sess, id)
	resp := h.snapshot(sess)
	resp["settled"] = settled
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) Abort(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	id, ok := h.pendingID(w, r)
	if !ok {
		return
	}

	aborted := h.orch.Abort(sess, id)
	resp := h.snapshot(sess)
	resp["aborted"] = aborted
	respondWithJSON(w, http.StatusOK, resp)
}

// Buy creates a pending purchase directly from a product card.
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var product models.Product
	if err := json.NewDecoder(r.Body).Decode(&product); err != nil || product.ProductID == "" {
		respondWithError(w, http.StatusBadRequest, "product is required")
		return
	}

	h.orch.BuyProduct(r.Context(), sess, product)
	respondWithJSON(w, http.StatusOK, h.snapshot(sess))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		Registry string `json:"registry"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		respondWithError(w, http.StatusBadRequest, "registry, username and password are required")
		return
	}

	user, err := h.login.Login(r.Context(), req.Registry, req.Username, req.Password)
	if err != nil {
		h.logger.Warn("login failed", map[string]interface{}{
			"sessionId": sess.ID,
			"registry":  req.Registry,
			"error":     err.Error(),
		})
		respondWithError(w, http.StatusUnauthorized, "login failed")
		return
	}

	sess.SetUser(user)
	sess.Append(models.SenderSystem,
		"Welcome "+user.Username+"! You're logged in with account "+user.AccountNumber+".", nil)
	respondWithJSON(w, http.StatusOK, h.snapshot(sess))
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	sess.ClearUser()
	sess.Append(models.SenderSystem, "You have been logged out.", nil)
	respondWithJSON(w, http.StatusOK, h.snapshot(sess))
}

func (h *Handler) Transcript(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, h.snapshot(sess))
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := mux.Vars(r)["id"]
	sess, ok := h.sessions.Get(id)
	if !ok {
		respondWithError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

func (h *Handler) pendingID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var req struct {
		PendingID string `json:"pending_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PendingID == "" {
		respondWithError(w, http.StatusBadRequest, "pending_id is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(req.PendingID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "pending_id is not a valid uuid")
		return uuid.Nil, false
	}
	return id, true
}

// snapshot is the state the presentation layer renders after each action.
func (h *Handler) snapshot(sess *session.Session) map[string]interface{} {
	out := map[string]interface{}{
		"session_id":   sess.ID,
		"state":        string(sess.State()),
		"transcript":   sess.Transcript(),
		"login_prompt": sess.LoginPrompt(),
	}
	if user := sess.User(); user != nil {
		out["user"] = user
	}
	if pending := sess.Pending(); pending != nil {
		out["pending"] = pending
	}
	return out
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
