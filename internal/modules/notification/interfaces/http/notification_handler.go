package http

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/saransh1220/tableside-sync/internal/modules/notification/application"
	"github.com/saransh1220/tableside-sync/internal/modules/notification/domain"
	"github.com/saransh1220/tableside-sync/internal/shared/httpapi"
	"github.com/saransh1220/tableside-sync/internal/shared/pagination"
	"github.com/saransh1220/tableside-sync/internal/shared/utils"
)

type NotificationHandler struct {
	feed *application.Feed
}

func NewNotificationHandler(feed *application.Feed) *NotificationHandler {
	return &NotificationHandler{feed: feed}
}

func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, h.feed.Snapshot())
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]int{"count": h.feed.Unread()})
}

func (h *NotificationHandler) GoToPage(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("page"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid page index", err)
		return
	}
	if err := h.feed.GoTo(r.Context(), index); err != nil {
		writeFeedError(w, "failed to change page", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, h.feed.Snapshot())
}

func (h *NotificationHandler) JumpToPage(w http.ResponseWriter, r *http.Request) {
	if err := h.feed.Jump(r.Context(), r.URL.Query().Get("page")); err != nil {
		writeFeedError(w, "failed to jump to page", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, h.feed.Snapshot())
}

func (h *NotificationHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.feed.Refresh(r.Context()); err != nil {
		writeFeedError(w, "failed to refresh notifications", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, h.feed.Snapshot())
}

func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid notification id", err)
		return
	}

	if err := h.feed.MarkAsRead(r.Context(), id); err != nil {
		writeFeedError(w, "failed to mark notification as read", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	if err := h.feed.MarkAllAsRead(r.Context()); err != nil {
		writeFeedError(w, "failed to mark all notifications as read", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeFeedError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, pagination.ErrBusy):
		utils.WriteError(w, http.StatusConflict, msg, err)
	case errors.Is(err, pagination.ErrPageOutOfRange),
		errors.Is(err, pagination.ErrJumpNotNumeric),
		errors.Is(err, pagination.ErrJumpOutOfRange),
		errors.Is(err, pagination.ErrInvalidPage),
		errors.Is(err, domain.ErrInvalidNotificationID):
		utils.WriteError(w, http.StatusBadRequest, msg, err)
	case errors.Is(err, domain.ErrNotificationNotFound):
		utils.WriteError(w, http.StatusNotFound, "notification not found", err)
	case errors.Is(err, domain.ErrFeedClosed):
		utils.WriteError(w, http.StatusServiceUnavailable, msg, err)
	default:
		var apiErr *httpapi.APIError
		if errors.As(err, &apiErr) {
			log.Printf("[NotificationHandler] %s: backend answered %d", msg, apiErr.Status)
		} else {
			log.Printf("[NotificationHandler] %s: %v", msg, err)
		}
		utils.WriteError(w, http.StatusBadGateway, msg, err)
	}
}
