package notification

import (
	"context"
	"log"

	"github.com/saransh1220/tableside-sync/internal/modules/notification/application"
	"github.com/saransh1220/tableside-sync/internal/modules/notification/domain"
	"github.com/saransh1220/tableside-sync/internal/modules/notification/infrastructure/rest"
	notification_http "github.com/saransh1220/tableside-sync/internal/modules/notification/interfaces/http"
	"github.com/saransh1220/tableside-sync/internal/shared/httpapi"
	"github.com/saransh1220/tableside-sync/internal/shared/realtime"
	"github.com/saransh1220/tableside-sync/internal/shared/store"
)

type Module struct {
	feed    *application.Feed
	handler *notification_http.NotificationHandler
}

func NewModule(client *httpapi.Client, transport realtime.Transport, pageSize int) *Module {
	api := rest.NewNotificationAPI(client)
	feed := application.NewFeed(api, transport, pageSize)
	handler := notification_http.NewNotificationHandler(feed)

	return &Module{
		feed:    feed,
		handler: handler,
	}
}

// Start loads the first page and subscribes to the user's topic. A failed
// first load is logged and left for a manual refresh.
func (m *Module) Start(ctx context.Context, userID string) error {
	if err := m.feed.Load(ctx, 0); err != nil {
		log.Printf("[Notification Module] Initial load failed: %v", err)
	}
	return m.feed.Bind(userID)
}

func (m *Module) HTTPHandler() *notification_http.NotificationHandler {
	return m.handler
}

func (m *Module) Feed() *application.Feed {
	return m.feed
}

func (m *Module) Shutdown() {
	m.feed.Close()
}

// Broadcast forwards every list and counter change to the hub's
// notifications channel. The returned func stops forwarding.
func (m *Module) Broadcast(hub *realtime.Hub) (stop func()) {
	stopItems := m.feed.Watch(func(c store.Change[domain.Notification]) {
		if err := hub.PublishJSON(realtime.ChannelNotifications, realtime.StreamMessage{
			Kind:  string(c.Kind),
			Items: c.Items,
		}); err != nil {
			log.Printf("[Notification Module] Broadcast failed: %v", err)
		}
	})
	stopUnread := m.feed.WatchUnread(func(n int) {
		if err := hub.PublishJSON(realtime.ChannelNotifications, realtime.StreamMessage{Kind: "unread", Unread: &n}); err != nil {
			log.Printf("[Notification Module] Broadcast failed: %v", err)
		}
	})
	return func() {
		stopItems()
		stopUnread()
	}
}
