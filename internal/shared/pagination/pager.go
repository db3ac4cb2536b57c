package pagination

import (
	"context"
	"sync"
)

// Fetcher loads the page at index and reports the index the server actually
// resolved together with the total page count.
type Fetcher func(ctx context.Context, index int) (resolved int, totalPages int, err error)

// Pager tracks the current page of one list and serializes page changes.
// While a fetch is outstanding every other page change is refused.
type Pager struct {
	fetch Fetcher

	mu         sync.Mutex
	current    int
	totalPages int
	busy       bool
}

func NewPager(fetch Fetcher) *Pager {
	return &Pager{fetch: fetch}
}

func (p *Pager) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Pager) TotalPages() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalPages
}

// Busy reports whether a fetch is in flight; page controls are disabled meanwhile.
func (p *Pager) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}

// GoTo moves to index. Indices outside [0, totalPages) leave state untouched.
func (p *Pager) GoTo(ctx context.Context, index int) error {
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return ErrBusy
	}
	if index < 0 || index >= p.totalPages {
		p.mu.Unlock()
		return ErrPageOutOfRange
	}
	p.busy = true
	p.mu.Unlock()

	return p.load(ctx, index)
}

// Jump navigates using a 1-based page number typed by a person.
func (p *Pager) Jump(ctx context.Context, input string) error {
	index, err := ParseJump(input, p.TotalPages())
	if err != nil {
		return err
	}
	return p.GoTo(ctx, index)
}

// Refresh reloads the current page.
func (p *Pager) Refresh(ctx context.Context) error {
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return ErrBusy
	}
	p.busy = true
	index := p.current
	p.mu.Unlock()

	return p.load(ctx, index)
}

// Load fetches index without checking it against the known page count, so
// it can be used before the first page arrives. The server may clamp it.
func (p *Pager) Load(ctx context.Context, index int) error {
	if index < 0 {
		return ErrInvalidPage
	}

	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return ErrBusy
	}
	p.busy = true
	p.mu.Unlock()

	return p.load(ctx, index)
}

// Reset loads the first page. Used on first mount.
func (p *Pager) Reset(ctx context.Context) error {
	return p.Load(ctx, 0)
}

// ResetWith claims the pager, runs swap and then loads the first page. swap
// runs only when the pager was idle, so nothing else can fetch between it and
// the load. When the load fails the func swap returned is called to put the
// previous query back.
func (p *Pager) ResetWith(ctx context.Context, swap func() (restore func())) error {
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return ErrBusy
	}
	p.busy = true
	p.mu.Unlock()

	restore := swap()
	if err := p.load(ctx, 0); err != nil {
		if restore != nil {
			restore()
		}
		return err
	}
	return nil
}

func (p *Pager) load(ctx context.Context, index int) error {
	resolved, total, err := p.fetch(ctx, index)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy = false
	if err != nil {
		return err
	}

	if total <= 0 {
		total, resolved = 0, 0
	} else if resolved >= total {
		resolved = total - 1
	} else if resolved < 0 {
		resolved = 0
	}
	p.current = resolved
	p.totalPages = total
	return nil
}
