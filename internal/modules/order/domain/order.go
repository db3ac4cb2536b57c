package domain

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusApproved   Status = "APPROVED"
	StatusDelivering Status = "DELIVERING"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

var statuses = []Status{StatusPending, StatusApproved, StatusDelivering, StatusDelivered, StatusCancelled}

func (s Status) Valid() bool {
	for _, known := range statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus accepts any letter case; empty input yields "" (no filter).
func ParseStatus(value string) (Status, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	s := Status(strings.ToUpper(value))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidOrderStatus, value)
	}
	return s, nil
}

// LineItem is one menu item inside an order. Status is the item's
// availability as pushed by the menu channel.
type LineItem struct {
	ItemID    int64   `json:"itemId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	Status    string  `json:"status,omitempty"`
}

// Order is the backend's view of a customer order. Transitions between
// statuses are decided by the backend; pushes overwrite local state.
type Order struct {
	ID           int64      `json:"id"`
	CreatedAt    time.Time  `json:"createdAt"`
	Status       Status     `json:"status"`
	TotalAmount  float64    `json:"totalAmount"`
	CustomerName string     `json:"customerName,omitempty"`
	TableNumber  *int       `json:"tableNumber,omitempty"`
	Items        []LineItem `json:"items"`
}

func (o Order) Key() int64 { return o.ID }

// Clone returns a copy that shares no line item storage with o.
func (o Order) Clone() Order {
	if o.Items != nil {
		items := make([]LineItem, len(o.Items))
		copy(items, o.Items)
		o.Items = items
	}
	return o
}

func (o Order) HasItem(itemID int64) bool {
	for _, item := range o.Items {
		if item.ItemID == itemID {
			return true
		}
	}
	return false
}
