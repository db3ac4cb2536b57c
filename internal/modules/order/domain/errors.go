package domain

import "errors"

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidOrderID     = errors.New("order id must be positive")
	ErrInvalidOrderStatus = errors.New("invalid order status")
	ErrUnknownEvent       = errors.New("unknown order event")
	ErrMissingOrderID     = errors.New("order event carries no id")
	ErrMissingItemID      = errors.New("menu event carries no item id")
	ErrBoardClosed        = errors.New("order board closed")
)
