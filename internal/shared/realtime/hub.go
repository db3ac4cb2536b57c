package realtime

import (
	"encoding/json"
	"log"
	"sync"
)

const (
	ChannelNotifications = "notifications"
	ChannelOrders        = "orders"
)

// StreamMessage is what local listeners receive for every store change.
type StreamMessage struct {
	Kind   string `json:"kind"`
	Items  any    `json:"items,omitempty"`
	Unread *int   `json:"unread,omitempty"`
}

// KnownChannel reports whether channel is one the hub serves.
func KnownChannel(channel string) bool {
	return channel == ChannelNotifications || channel == ChannelOrders
}

// ChannelMessage is a payload addressed to every local listener of one channel.
type ChannelMessage struct {
	Channel string
	Message []byte
}

// Hub maintains the set of local websocket listeners and fans store changes
// out to the ones watching the matching channel.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Outbound messages for one channel.
	publish chan ChannelMessage

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Channel to signal termination
	stop     chan struct{}
	stopOnce sync.Once
}

func NewHub() *Hub {
	return &Hub{
		publish:    make(chan ChannelMessage, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),

		clients: make(map[*Client]bool),
		stop:    make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			log.Printf("[WebSocket Hub] Client registered: %s (channel: %s)", client.addr(), client.channel)
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Printf("[WebSocket Hub] Client unregistered: %s (channel: %s)", client.addr(), client.channel)
			}
		case msg := <-h.publish:
			for client := range h.clients {
				if client.channel != msg.Channel {
					continue
				}
				select {
				case client.send <- msg.Message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		case <-h.stop:
			log.Println("[WebSocket Hub] Stopping hub")
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return
		}
	}
}

// Publish queues message for every listener of channel.
func (h *Hub) Publish(channel string, message []byte) {
	select {
	case h.publish <- ChannelMessage{Channel: channel, Message: message}:
	case <-h.stop:
	}
}

// PublishJSON marshals v and queues it for every listener of channel.
func (h *Hub) PublishJSON(channel string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Publish(channel, data)
	return nil
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
}
