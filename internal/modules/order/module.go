package order

import (
	"context"
	"log"

	"github.com/saransh1220/tableside-sync/internal/modules/order/application"
	"github.com/saransh1220/tableside-sync/internal/modules/order/domain"
	"github.com/saransh1220/tableside-sync/internal/modules/order/infrastructure/rest"
	order_http "github.com/saransh1220/tableside-sync/internal/modules/order/interfaces/http"
	"github.com/saransh1220/tableside-sync/internal/shared/httpapi"
	"github.com/saransh1220/tableside-sync/internal/shared/realtime"
	"github.com/saransh1220/tableside-sync/internal/shared/store"
)

type Module struct {
	board   *application.Board
	handler *order_http.OrderHandler
}

func NewModule(client *httpapi.Client, transport realtime.Transport, pageSize int) *Module {
	api := rest.NewOrderAPI(client)
	board := application.NewBoard(api, transport, pageSize)

	return &Module{
		board:   board,
		handler: order_http.NewOrderHandler(board),
	}
}

// Start subscribes to the order and menu topics, then loads the first page.
func (m *Module) Start(ctx context.Context) error {
	if err := m.board.Start(); err != nil {
		return err
	}
	if err := m.board.Load(ctx, 0); err != nil {
		log.Printf("[Order Module] Initial load failed: %v", err)
	}
	return nil
}

func (m *Module) HTTPHandler() *order_http.OrderHandler {
	return m.handler
}

func (m *Module) Board() *application.Board {
	return m.board
}

func (m *Module) Shutdown() {
	m.board.Close()
}

// Broadcast forwards every board change to the hub's orders channel.
func (m *Module) Broadcast(hub *realtime.Hub) (stop func()) {
	return m.board.Watch(func(c store.Change[domain.Order]) {
		if err := hub.PublishJSON(realtime.ChannelOrders, realtime.StreamMessage{
			Kind:  string(c.Kind),
			Items: c.Items,
		}); err != nil {
			log.Printf("[Order Module] Broadcast failed: %v", err)
		}
	})
}
