package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/saransh1220/tableside-sync/internal/modules/notification/domain"
	"github.com/saransh1220/tableside-sync/internal/shared/httpapi"
	"github.com/saransh1220/tableside-sync/internal/shared/pagination"
)

const basePath = "/api/notifications"

// NotificationAPI talks to the backend notification endpoints.
type NotificationAPI struct {
	client *httpapi.Client
}

func NewNotificationAPI(client *httpapi.Client) *NotificationAPI {
	return &NotificationAPI{client: client}
}

var _ domain.NotificationAPI = (*NotificationAPI)(nil)

func (a *NotificationAPI) List(ctx context.Context, req pagination.Request) (pagination.Page[domain.Notification], error) {
	return httpapi.GetPage[domain.Notification](ctx, a.client, basePath, req)
}

// UnreadCount accepts either a bare number or {"count": n}.
func (a *NotificationAPI) UnreadCount(ctx context.Context) (int, error) {
	var raw json.RawMessage
	if err := a.client.Do(ctx, http.MethodGet, basePath+"/unread-count", nil, nil, &raw); err != nil {
		return 0, err
	}

	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var wrapped struct {
		Count *int `json:"count"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil || wrapped.Count == nil {
		return 0, fmt.Errorf("unexpected unread count payload %q", string(raw))
	}
	return *wrapped.Count, nil
}

// MarkAsRead returns the backend's updated record, or nil when the backend
// confirmed with an empty body.
func (a *NotificationAPI) MarkAsRead(ctx context.Context, id int64) (*domain.Notification, error) {
	path := basePath + "/" + strconv.FormatInt(id, 10) + "/read"

	var raw json.RawMessage
	if err := a.client.Do(ctx, http.MethodPatch, path, nil, nil, &raw); err != nil {
		if httpapi.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %w", domain.ErrNotificationNotFound, err)
		}
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var n domain.Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("decoding notification %d: %w", id, err)
	}
	if n.ID != id {
		return nil, fmt.Errorf("backend answered for notification %d, expected %d", n.ID, id)
	}
	return &n, nil
}

func (a *NotificationAPI) MarkAllAsRead(ctx context.Context) error {
	return a.client.Do(ctx, http.MethodPatch, basePath+"/read-all", nil, nil, nil)
}
