package task

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/rohilsavliya09/smarty-dash/internal/auth"
)

// Handler exposes the owner's tasks under /api/tasks. The owner is always
// the bearer token subject.
type Handler struct {
	svc    *Service
	tokens auth.TokenParser
	logger *zap.SugaredLogger
	dev    bool
}

func NewHandler(svc *Service, tokens auth.TokenParser, logger *zap.SugaredLogger, dev bool) *Handler {
	return &Handler{svc: svc, tokens: tokens, logger: logger, dev: dev}
}

func (h *Handler) Routes(mux *http.ServeMux) {
	guard := auth.RequireUser(h.tokens, h.logger)
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, guard(fn))
	}
	handle("GET /api/tasks", h.Today)
	handle("GET /api/tasks/all", h.All)
	handle("POST /api/tasks", h.Create)
	handle("PUT /api/tasks/{id}", h.Edit)
	handle("PATCH /api/tasks/{id}/toggle-done", h.ToggleDone)
	handle("PUT /api/tasks/{id}/done", h.MarkDone)
	handle("DELETE /api/tasks/{id}", h.Delete)
}

type CreateRequest struct {
	ID         string `json:"id"`
	Task       string `json:"task"`
	AssignDate string `json:"assigndate"`
	AssignTime string `json:"assigntime"`
}

type EditRequest struct {
	Task string `json:"task"`
}

type DoneRequest struct {
	Done *bool `json:"done"`
}

func owner(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

func (h *Handler) Today(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.svc.Today(r.Context(), owner(r))
	if err != nil {
		h.writeError(w, "list today", err)
		return
	}
	h.writeJSON(w, http.StatusOK, tasks)
}

func (h *Handler) All(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.svc.All(r.Context(), owner(r))
	if err != nil {
		h.writeError(w, "list tasks", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task payload"})
		return
	}
	t, err := h.svc.Create(r.Context(), owner(r), CreateInput{
		ID:         req.ID,
		Text:       req.Task,
		AssignDate: req.AssignDate,
		AssignTime: req.AssignTime,
	})
	if err != nil {
		h.writeError(w, "create task", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	var req EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task payload"})
		return
	}
	t, err := h.svc.EditText(r.Context(), owner(r), r.PathValue("id"), req.Task)
	if err != nil {
		h.writeError(w, "edit task", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": t})
}

func (h *Handler) ToggleDone(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.ToggleDone(r.Context(), owner(r), r.PathValue("id"))
	if err != nil {
		h.writeError(w, "toggle done", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": t})
}

func (h *Handler) MarkDone(w http.ResponseWriter, r *http.Request) {
	var req DoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Done == nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "done is required"})
		return
	}
	t, err := h.svc.MarkDone(r.Context(), owner(r), r.PathValue("id"), *req.Done)
	if err != nil {
		h.writeError(w, "mark done", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": t})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), owner(r), r.PathValue("id")); err != nil {
		h.writeError(w, "delete task", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrConflict):
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		h.logger.Errorw(op+" failed", "err", err)
		body := map[string]string{"error": "internal server error"}
		if h.dev {
			body["detail"] = err.Error()
		}
		h.writeJSON(w, http.StatusInternalServerError, body)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
