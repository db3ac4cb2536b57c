package domain

import (
	"context"

	"github.com/saransh1220/tableside-sync/internal/shared/pagination"
)

// NotificationAPI is the backend surface the feed talks to.
type NotificationAPI interface {
	List(ctx context.Context, req pagination.Request) (pagination.Page[Notification], error)
	UnreadCount(ctx context.Context) (int, error)
	// MarkAsRead returns the server's representation of the updated record,
	// or nil when the backend confirmed without one.
	MarkAsRead(ctx context.Context, id int64) (*Notification, error)
	MarkAllAsRead(ctx context.Context) error
}
