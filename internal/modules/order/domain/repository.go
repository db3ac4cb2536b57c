package domain

import (
	"context"

	"github.com/saransh1220/tableside-sync/internal/shared/pagination"
)

// OrderAPI is the backend surface the board talks to.
type OrderAPI interface {
	List(ctx context.Context, req pagination.Request) (pagination.Page[Order], error)
	UpdateStatus(ctx context.Context, id int64, status Status) (*Order, error)
	// Reorder places a copy of order id and returns the new order.
	Reorder(ctx context.Context, id int64) (*Order, error)
}
