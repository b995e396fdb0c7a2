// Package channel exposes the orchestrator over the transports users
// talk through: an HTTP gateway and a Telegram bot.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"novabot/internal/agent"
	"novabot/internal/domain"
)

// Web serves the HTTP API over the orchestrator.
type Web struct {
	orch   *agent.Orchestrator
	addr   string
	logger *slog.Logger
	server *http.Server
}

type WebConfig struct {
	Orchestrator *agent.Orchestrator
	Addr         string // default :8080
	Logger       *slog.Logger
}

func NewWeb(cfg WebConfig) *Web {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Web{
		orch:   cfg.Orchestrator,
		addr:   cfg.Addr,
		logger: cfg.Logger,
	}
}

// Routes builds the HTTP handler. Exposed separately so tests can
// exercise the API without a listener.
func (w *Web) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", w.handleRoot)
	r.Get("/health", w.handleRoot)
	r.Get("/stats", w.handleStats)
	r.Post("/stats/reset", w.handleResetStats)

	r.Post("/chat", w.handleChat)
	r.Get("/profile/{user_id}", w.handleGetProfile)
	r.Post("/profile/{user_id}", w.handleUpsertProfile)
	r.Get("/history/{user_id}", w.handleHistory)
	r.Post("/clear-session/{user_id}", w.handleClearSession)
	r.Get("/memories/{user_id}", w.handleMemories)
	r.Delete("/user/{user_id}", w.handleForgetUser)

	return r
}

// Start runs the HTTP server until ctx is cancelled.
func (w *Web) Start(ctx context.Context) error {
	w.server = &http.Server{
		Addr:              w.addr,
		Handler:           w.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		w.logger.Info("http gateway listening", "addr", w.addr)
		errCh <- w.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return w.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (w *Web) handleRoot(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]string{"status": "online", "bot": "Nova"})
}

func (w *Web) handleStats(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, http.StatusOK, w.orch.Stats())
}

func (w *Web) handleResetStats(rw http.ResponseWriter, _ *http.Request) {
	w.orch.ResetUsage()
	writeJSON(rw, http.StatusOK, map[string]string{"status": "usage counters reset"})
}

type chatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

func (w *Web) handleChat(rw http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(rw, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		writeError(rw, http.StatusBadRequest, "user_id is required")
		return
	}

	res, err := w.orch.Chat(r.Context(), req.UserID, req.Message)
	if err != nil {
		w.logger.Error("chat failed", "user_id", req.UserID, "error", err)
		writeError(rw, http.StatusInternalServerError, "chat failed")
		return
	}
	writeJSON(rw, http.StatusOK, res)
}

func (w *Web) handleGetProfile(rw http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	p, err := w.orch.Profile(r.Context(), userID)
	if err != nil {
		w.logger.Error("profile load failed", "user_id", userID, "error", err)
		writeError(rw, http.StatusInternalServerError, "profile load failed")
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"user_id": userID, "profile": p})
}

type profileUpdateRequest struct {
	Field string `json:"field"`
	Value any    `json:"value"`
	Force bool   `json:"force,omitempty"`
}

func (w *Web) handleUpsertProfile(rw http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	var req profileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(rw, http.StatusBadRequest, "invalid JSON body")
		return
	}
	field, err := domain.ParseProfileField(req.Field)
	if err != nil {
		writeError(rw, http.StatusBadRequest, err.Error())
		return
	}

	err = w.orch.UpsertProfile(r.Context(), userID, field, req.Value, req.Force)
	switch {
	case err == nil:
		writeJSON(rw, http.StatusOK, map[string]string{"status": "updated"})
	case errors.Is(err, domain.ErrConflict):
		var ce *domain.ConflictError
		detail := "stored value differs, confirm change explicitly"
		if errors.As(err, &ce) {
			detail = "existing value is '" + ce.Existing + "', confirm change explicitly"
		}
		writeError(rw, http.StatusConflict, detail)
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidField):
		writeError(rw, http.StatusBadRequest, err.Error())
	default:
		w.logger.Error("profile update failed", "user_id", userID, "error", err)
		writeError(rw, http.StatusInternalServerError, "profile update failed")
	}
}

func (w *Web) handleHistory(rw http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	writeJSON(rw, http.StatusOK, map[string]any{
		"user_id":  userID,
		"messages": w.orch.History(userID),
	})
}

func (w *Web) handleClearSession(rw http.ResponseWriter, r *http.Request) {
	w.orch.ClearSession(chi.URLParam(r, "user_id"))
	writeJSON(rw, http.StatusOK, map[string]string{"status": "cleared"})
}

func (w *Web) handleMemories(rw http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	limit := 5
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	items := w.orch.RecentMemories(userID, limit)
	memories := make([]map[string]any, 0, len(items))
	for _, m := range items {
		memories = append(memories, map[string]any{
			"text":      m.Text,
			"timestamp": m.Timestamp.Format(time.RFC3339),
		})
	}
	writeJSON(rw, http.StatusOK, map[string]any{"user_id": userID, "memories": memories})
}

func (w *Web) handleForgetUser(rw http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	removed, err := w.orch.ForgetUser(r.Context(), userID)
	if err != nil {
		w.logger.Error("forget user failed", "user_id", userID, "error", err)
		writeError(rw, http.StatusInternalServerError, "forget user failed")
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"status": "forgotten", "memories_removed": removed})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, detail string) {
	writeJSON(rw, status, map[string]string{"error": detail})
}
