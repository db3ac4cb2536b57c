package pagination

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidPage    = errors.New("page index must be non-negative")
	ErrInvalidSize    = errors.New("page size must be positive")
	ErrInvalidRange   = errors.New("date range start is after its end")
	ErrPageOutOfRange = errors.New("page index out of range")
	ErrJumpNotNumeric = errors.New("page number is not numeric")
	ErrJumpOutOfRange = errors.New("page number out of range")
	ErrBusy           = errors.New("a page fetch is already in progress")
)

const dateLayout = "2006-01-02"

// Page is a bounded, ordered slice of a larger server-side collection.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Number        int   `json:"number"`
	TotalPages    int   `json:"totalPages"`
	TotalElements int64 `json:"totalElements"`
	Size          int   `json:"size"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
	Empty         bool  `json:"empty"`
}

// NewPage cuts page number out of the full ordered set all.
func NewPage[T any](all []T, number, size int) Page[T] {
	total := len(all)
	totalPages := 0
	if size > 0 {
		totalPages = (total + size - 1) / size
	}

	start := number * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}

	content := make([]T, end-start)
	copy(content, all[start:end])

	return Page[T]{
		Content:       content,
		Number:        number,
		TotalPages:    totalPages,
		TotalElements: int64(total),
		Size:          size,
		First:         number == 0,
		Last:          number >= totalPages-1,
		Empty:         len(content) == 0,
	}
}

// Request describes one page fetch and its optional filters.
type Request struct {
	Page    int
	Size    int
	Keyword string
	Status  string
	From    time.Time
	To      time.Time
}

// Validate rejects requests that must never reach the network.
func (r Request) Validate() error {
	if r.Page < 0 {
		return ErrInvalidPage
	}
	if r.Size <= 0 {
		return ErrInvalidSize
	}
	if !r.From.IsZero() && !r.To.IsZero() && r.From.After(r.To) {
		return ErrInvalidRange
	}
	return nil
}

// Query encodes the request as backend query parameters.
func (r Request) Query() url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(r.Page))
	q.Set("size", strconv.Itoa(r.Size))
	if kw := strings.TrimSpace(r.Keyword); kw != "" {
		q.Set("keyword", kw)
	}
	if r.Status != "" {
		q.Set("status", r.Status)
	}
	if !r.From.IsZero() {
		q.Set("from", r.From.Format(dateLayout))
	}
	if !r.To.IsZero() {
		q.Set("to", r.To.Format(dateLayout))
	}
	return q
}

// ParseJump translates a 1-based, human-entered page number into a 0-based
// index. Anything outside 1..totalPages is rejected.
func ParseJump(input string, totalPages int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return 0, ErrJumpNotNumeric
	}
	if n < 1 || n > totalPages {
		return 0, ErrJumpOutOfRange
	}
	return n - 1, nil
}

// ParseDate reads a yyyy-mm-dd filter value. Empty input yields the zero time.
func ParseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, value)
}
