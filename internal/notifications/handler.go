package notifications

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/bissquit/notify-garden/internal/domain"
	"github.com/bissquit/notify-garden/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrNotFound, Status: http.StatusNotFound, Message: "notification not found"},
	{Error: ErrQueueUnavailable, Status: http.StatusServiceUnavailable, Message: "delivery queue unavailable, try again later"},
	{Error: ErrChannelUnavailable, Status: http.StatusServiceUnavailable, Message: "notification channel unavailable"},
	{Error: ErrUnknownAction, Status: http.StatusUnprocessableEntity, Message: "action must be read or unread"},
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Handler handles HTTP requests for the notifications module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new notifications handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers notification routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Post("/", h.CreateNotification)
		r.Get("/", h.ListNotifications)
		r.Post("/bulk", h.BulkMark)
		r.Get("/{id}", h.GetNotification)
		r.Post("/{id}/retry", h.RetryNotification)
		r.Delete("/{id}", h.DeleteNotification)
	})
}

// CreateNotificationRequest represents request body for creating a notification.
type CreateNotificationRequest struct {
	Title    string            `json:"title" validate:"required,max=255"`
	Body     string            `json:"body" validate:"required"`
	Channel  string            `json:"channel" validate:"required,oneof=email webhook in-app"`
	Metadata map[string]string `json:"metadata"`
}

// BulkMarkRequest represents request body for bulk read-state updates.
type BulkMarkRequest struct {
	Action string `json:"action" validate:"required,oneof=read unread"`
}

// dispatchResponse is the acceptance payload for a newly created notification.
type dispatchResponse struct {
	NotificationID string `json:"notification_id"`
	JobID          string `json:"job_id"`
	CorrelationID  string `json:"correlation_id"`
}

// CreateNotification handles POST /notifications.
func (h *Handler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())

	var req CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	n, jobID, err := h.service.Create(r.Context(), CreateInput{
		UserID:   userID,
		Title:    req.Title,
		Body:     req.Body,
		Channel:  domain.Channel(req.Channel),
		Metadata: req.Metadata,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusAccepted, dispatchResponse{
		NotificationID: n.ID,
		JobID:          jobID,
		CorrelationID:  n.CorrelationID,
	})
}

// ListNotifications handles GET /notifications.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())

	params := ListParams{Limit: defaultListLimit}

	if v := r.URL.Query().Get("status"); v != "" {
		status := domain.Status(v)
		if status != domain.StatusPending && status != domain.StatusSent && status != domain.StatusFailed {
			httputil.Error(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		params.Status = status
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxListLimit {
			httputil.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		params.Limit = limit
	}

	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			httputil.Error(w, http.StatusBadRequest, "invalid offset")
			return
		}
		params.Offset = offset
	}

	items, err := h.service.List(r.Context(), userID, params)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, items)
}

// GetNotification handles GET /notifications/{id}.
func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	id := chi.URLParam(r, "id")

	n, err := h.service.Get(r.Context(), id, userID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, n)
}

// BulkMark handles POST /notifications/bulk.
func (h *Handler) BulkMark(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())

	var req BulkMarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	updated, err := h.service.MarkAll(r.Context(), userID, req.Action)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"updated": updated,
	})
}

// RetryNotification handles POST /notifications/{id}/retry.
func (h *Handler) RetryNotification(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	id := chi.URLParam(r, "id")

	if _, _, err := h.service.Retry(r.Context(), id, userID); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]bool{"ok": true})
}

// DeleteNotification handles DELETE /notifications/{id}.
func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), id, userID); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
