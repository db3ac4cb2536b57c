package domain

import "time"

// Notification is one back-office alert as the backend serves it. IDs are
// assigned by the server and unique within the loaded set.
type Notification struct {
	ID            int64     `json:"id"`
	Message       string    `json:"message"`
	Type          string    `json:"type,omitempty"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"createdAt"`
	OrderID       *int64    `json:"orderId,omitempty"`
	ReservationID *int64    `json:"reservationId,omitempty"`
}

func (n Notification) Key() int64 { return n.ID }

func (n Notification) Unread() bool { return !n.Read }
