package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/felixge/httpsnoop"

	"example.com/teamboard/internal/auth"
	"example.com/teamboard/internal/storage"
	"example.com/teamboard/internal/usecase"
	"example.com/teamboard/pkg/response"
)

type ctxKey int

const ctxKeyUserID ctxKey = 0

type Handler struct {
	mux    *http.ServeMux
	tasks  *usecase.TaskService
	users  *usecase.UserService
	tokens *auth.TokenManager
	sync   http.Handler
	logger *slog.Logger
}

// New builds the REST surface plus the push-channel endpoint. sync is the
// websocket upgrade handler; it does its own handshake auth.
func New(tasks *usecase.TaskService, users *usecase.UserService, tokens *auth.TokenManager, sync http.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		mux:    http.NewServeMux(),
		tasks:  tasks,
		users:  users,
		tokens: tokens,
		sync:   sync,
		logger: logger,
	}
	h.routes()
	return h
}

func (h *Handler) routes() {
	h.mux.HandleFunc("GET /api/health", h.health)
	h.mux.HandleFunc("POST /api/auth/register", h.register)
	h.mux.HandleFunc("POST /api/auth/login", h.login)
	h.mux.HandleFunc("GET /api/auth/me", h.requireAuth(h.me))
	h.mux.HandleFunc("GET /api/users", h.requireAuth(h.listUsers))
	h.mux.HandleFunc("GET /api/tasks", h.requireAuth(h.listTasks))
	h.mux.HandleFunc("POST /api/tasks", h.requireAuth(h.createTask))
	h.mux.HandleFunc("GET /api/tasks/{id}", h.requireAuth(h.getTask))
	h.mux.HandleFunc("PUT /api/tasks/{id}", h.requireAuth(h.updateTask))
	h.mux.HandleFunc("DELETE /api/tasks/{id}", h.requireAuth(h.deleteTask))
	h.mux.HandleFunc("POST /api/tasks/{id}/comments", h.requireAuth(h.addComment))
	if h.sync != nil {
		h.mux.Handle("GET /ws", h.sync)
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m := httpsnoop.CaptureMetrics(h.mux, w, r)
	h.logger.Info("handled",
		"method", r.Method,
		"url", r.URL.Path,
		"status", m.Code,
		"duration", m.Duration,
	)
}

func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := h.tokens.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKeyUserID, userID)))
	}
}

func actorID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKeyUserID).(string)
	return id
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "json")
		return
	}
	user, token, err := h.users.Register(req.Name, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidUser):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, usecase.ErrEmailTaken):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.serverError(w, "register", err)
		}
		return
	}
	response.JSON(w, http.StatusCreated, map[string]any{"user": user, "token": token})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "json")
		return
	}
	user, token, err := h.users.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.serverError(w, "login", err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"user": user, "token": token})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(actorID(r))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		h.serverError(w, "me", err)
		return
	}
	response.JSON(w, http.StatusOK, user)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	items, err := h.users.List()
	if err != nil {
		h.serverError(w, "list users", err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	items, err := h.tasks.List()
	if err != nil {
		h.serverError(w, "list tasks", err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	item, err := h.tasks.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		h.serverError(w, "get task", err)
		return
	}
	response.JSON(w, http.StatusOK, item)
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string     `json:"title"`
		Description string     `json:"description"`
		Status      string     `json:"status"`
		Priority    string     `json:"priority"`
		AssigneeID  string     `json:"assignee_id"`
		DueAt       *time.Time `json:"due_at"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "json")
		return
	}
	item, err := h.tasks.Create(actorID(r), usecase.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		AssigneeID:  req.AssigneeID,
		DueAt:       req.DueAt,
	})
	if err != nil {
		h.taskError(w, "create task", err)
		return
	}
	response.JSON(w, http.StatusCreated, item)
}

func (h *Handler) updateTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       *string    `json:"title"`
		Description *string    `json:"description"`
		Status      *string    `json:"status"`
		Priority    *string    `json:"priority"`
		AssigneeID  *string    `json:"assignee_id"`
		DueAt       *time.Time `json:"due_at"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "json")
		return
	}
	item, err := h.tasks.Update(actorID(r), r.PathValue("id"), usecase.UpdateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		AssigneeID:  req.AssigneeID,
		DueAt:       req.DueAt,
	})
	if err != nil {
		h.taskError(w, "update task", err)
		return
	}
	response.JSON(w, http.StatusOK, item)
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.Delete(actorID(r), r.PathValue("id")); err != nil {
		h.taskError(w, "delete task", err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"message": "task deleted"})
}

func (h *Handler) addComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "json")
		return
	}
	comment, err := h.tasks.AddComment(actorID(r), r.PathValue("id"), req.Content)
	if err != nil {
		h.taskError(w, "add comment", err)
		return
	}
	response.JSON(w, http.StatusCreated, comment)
}

func (h *Handler) taskError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, usecase.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, usecase.ErrInvalidTitle),
		errors.Is(err, usecase.ErrInvalidStatus),
		errors.Is(err, usecase.ErrInvalidPriority),
		errors.Is(err, usecase.ErrInvalidContent):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.serverError(w, op, err)
	}
}

func (h *Handler) serverError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, "err", err)
	writeError(w, http.StatusInternalServerError, "server error")
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data")
	}
	return nil
}

func writeError(w http.ResponseWriter, code int, msg string) {
	response.JSON(w, code, map[string]string{"error": msg})
}
