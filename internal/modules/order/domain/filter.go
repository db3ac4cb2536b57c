package domain

import (
	"strings"
	"time"

	"github.com/saransh1220/tableside-sync/internal/shared/pagination"
)

// Filter narrows the order list. Zero fields do not filter.
type Filter struct {
	Keyword string    `json:"keyword,omitempty"`
	Status  Status    `json:"status,omitempty"`
	From    time.Time `json:"from,omitzero"`
	To      time.Time `json:"to,omitzero"`
}

func (f Filter) Request(page, size int) pagination.Request {
	return pagination.Request{
		Page:    page,
		Size:    size,
		Keyword: strings.TrimSpace(f.Keyword),
		Status:  string(f.Status),
		From:    f.From,
		To:      f.To,
	}
}

func (f Filter) Validate() error {
	if f.Status != "" && !f.Status.Valid() {
		return ErrInvalidOrderStatus
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return pagination.ErrInvalidRange
	}
	return nil
}

// Admits reports whether a pushed order belongs to the filtered list. Only
// the status filter is checked locally; keyword and date matching belong to
// the backend and are applied on the next fetch.
func (f Filter) Admits(o Order) bool {
	return f.Status == "" || f.Status == o.Status
}
