package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/saransh1220/tableside-sync/internal/modules/order/domain"
	"github.com/saransh1220/tableside-sync/internal/shared/infrastructure/metrics"
	"github.com/saransh1220/tableside-sync/internal/shared/pagination"
	"github.com/saransh1220/tableside-sync/internal/shared/realtime"
	"github.com/saransh1220/tableside-sync/internal/shared/store"
)

const boardName = "orders"

type Snapshot struct {
	Items         []domain.Order    `json:"items"`
	Page          int               `json:"page"`
	TotalPages    int               `json:"totalPages"`
	Busy          bool              `json:"busy"`
	Filter        domain.Filter     `json:"filter"`
	Subscriptions map[string]string `json:"subscriptions"`
	LastError     string            `json:"lastError,omitempty"`
}

// Board keeps the filtered, paginated order list in sync with the backend,
// the order topic and the menu availability topic.
type Board struct {
	api       domain.OrderAPI
	transport realtime.Transport
	pageSize  int

	items *store.Collection[int64, domain.Order]
	pager *pagination.Pager

	ctx    context.Context
	cancel context.CancelFunc

	applyMu sync.Mutex

	mu      sync.Mutex
	filter  domain.Filter
	lastErr error
	subs    []*realtime.Subscription
}

func NewBoard(api domain.OrderAPI, transport realtime.Transport, pageSize int) *Board {
	if pageSize <= 0 {
		pageSize = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Board{
		api:       api,
		transport: transport,
		pageSize:  pageSize,
		items:     store.New(domain.Order.Key),
		ctx:       ctx,
		cancel:    cancel,
	}
	b.pager = pagination.NewPager(b.fetch)
	return b
}

// Start subscribes to the order and menu topics. Calling it again is a no-op.
func (b *Board) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed() {
		return domain.ErrBoardClosed
	}
	if len(b.subs) > 0 {
		return nil
	}

	for _, topic := range []string{domain.TopicOrders, domain.TopicMenu} {
		sub, err := b.transport.Subscribe(topic, b.handle)
		if err != nil {
			for _, s := range b.subs {
				s.Unsubscribe()
			}
			b.subs = nil
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		b.subs = append(b.subs, sub)
	}
	log.Printf("[OrderBoard] Subscribed to %s and %s", domain.TopicOrders, domain.TopicMenu)
	return nil
}

func (b *Board) Load(ctx context.Context, index int) error {
	return b.pager.Load(ctx, index)
}

func (b *Board) GoTo(ctx context.Context, index int) error {
	return b.pager.GoTo(ctx, index)
}

func (b *Board) Jump(ctx context.Context, input string) error {
	return b.pager.Jump(ctx, input)
}

func (b *Board) Refresh(ctx context.Context) error {
	return b.pager.Refresh(ctx)
}

// SetFilter replaces the active filter and reloads from the first page. An
// invalid filter is rejected without touching the network; a failed reload
// keeps the previous filter. Pushes that land during the reload are
// superseded by the fresh page.
func (b *Board) SetFilter(ctx context.Context, filter domain.Filter) error {
	if err := filter.Validate(); err != nil {
		return err
	}

	return b.pager.ResetWith(ctx, func() (restore func()) {
		b.mu.Lock()
		previous := b.filter
		b.filter = filter
		b.mu.Unlock()

		return func() {
			b.mu.Lock()
			b.filter = previous
			b.mu.Unlock()
		}
	})
}

func (b *Board) Filter() domain.Filter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filter
}

func (b *Board) fetch(ctx context.Context, index int) (int, int, error) {
	if b.closed() {
		return 0, 0, domain.ErrBoardClosed
	}
	ctx, cancel := b.scope(ctx)
	defer cancel()

	req := b.Filter().Request(index, b.pageSize)

	start := time.Now()
	page, err := b.api.List(ctx, req)
	metrics.FetchDuration.WithLabelValues(boardName, "list", metrics.Result(err)).Observe(time.Since(start).Seconds())
	if b.closed() {
		return 0, 0, domain.ErrBoardClosed
	}
	b.setLastError(err)
	if err != nil {
		log.Printf("[OrderBoard] Failed to load page %d: %v", index, err)
		return 0, 0, fmt.Errorf("loading orders page %d: %w", index, err)
	}

	b.applyMu.Lock()
	b.items.Replace(page.Content)
	b.applyMu.Unlock()
	return page.Number, page.TotalPages, nil
}

func (b *Board) handle(env realtime.Envelope) {
	if err := b.Apply(env); err != nil {
		log.Printf("[OrderBoard] Ignoring %s event: %v", env.Type, err)
	}
}

// Apply reconciles one push event from the order or menu topic.
func (b *Board) Apply(env realtime.Envelope) error {
	b.applyMu.Lock()
	defer b.applyMu.Unlock()

	var (
		applied bool
		err     error
	)
	switch env.Type {
	case domain.EventNewOrder:
		applied, err = b.applyNew(env)
	case domain.EventOrderUpdated:
		applied, err = b.applyUpdated(env)
	case domain.EventMenuItemStatus:
		applied, err = b.applyMenuStatus(env)
	default:
		err = fmt.Errorf("%w: %q", domain.ErrUnknownEvent, env.Type)
	}

	outcome := "applied"
	switch {
	case errors.Is(err, domain.ErrUnknownEvent):
		outcome = "unknown"
	case err != nil:
		outcome = "malformed"
	case !applied:
		outcome = "ignored"
	}
	metrics.EventsApplied.WithLabelValues(boardName, env.Type, outcome).Inc()
	return err
}

func (b *Board) applyNew(env realtime.Envelope) (bool, error) {
	var o domain.Order
	if err := env.Decode(&o); err != nil {
		return false, err
	}
	if o.ID == 0 {
		return false, domain.ErrMissingOrderID
	}
	if !b.Filter().Admits(o) {
		return false, nil
	}
	b.items.Upsert(o, true)
	return true, nil
}

func (b *Board) applyUpdated(env realtime.Envelope) (bool, error) {
	var o domain.Order
	if err := env.Decode(&o); err != nil {
		return false, err
	}
	if o.ID == 0 {
		return false, domain.ErrMissingOrderID
	}
	return b.replaceLocked(o), nil
}

// replaceLocked overwrites a loaded order, or drops it when it no longer
// passes the status filter. Orders that are not loaded are left alone.
// Callers hold applyMu.
func (b *Board) replaceLocked(o domain.Order) bool {
	if !b.Filter().Admits(o) {
		return b.items.Remove(o.ID)
	}
	return b.items.Patch(o.ID, func(current *domain.Order) bool {
		*current = o
		return true
	})
}

func (b *Board) applyMenuStatus(env realtime.Envelope) (bool, error) {
	var change domain.MenuItemStatus
	if err := env.Decode(&change); err != nil {
		return false, err
	}
	if change.ItemID == 0 {
		return false, domain.ErrMissingItemID
	}
	if b.items.Count(func(o domain.Order) bool { return o.HasItem(change.ItemID) }) == 0 {
		return false, nil
	}

	changed := b.items.PatchAll(func(o *domain.Order) bool {
		hit := false
		for i, item := range o.Items {
			if item.ItemID != change.ItemID || item.Status == change.Status {
				continue
			}
			if !hit {
				// line items may be shared with earlier snapshots
				*o = o.Clone()
				hit = true
			}
			o.Items[i].Status = change.Status
		}
		return hit
	})
	return len(changed) > 0, nil
}

// UpdateStatus asks the backend to move order id to status, applies the
// returned order once confirmed and hands it back. The order does not have to
// be on the current page.
func (b *Board) UpdateStatus(ctx context.Context, id int64, status domain.Status) (*domain.Order, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidOrderID
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidOrderStatus, status)
	}
	ctx, cancel := b.scope(ctx)
	defer cancel()

	start := time.Now()
	updated, err := b.api.UpdateStatus(ctx, id, status)
	metrics.FetchDuration.WithLabelValues(boardName, "update_status", metrics.Result(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		log.Printf("[OrderBoard] Status update of order %d failed: %v", id, err)
		return nil, fmt.Errorf("updating order %d to %s: %w", id, status, err)
	}
	if b.closed() {
		return nil, domain.ErrBoardClosed
	}

	b.applyMu.Lock()
	b.replaceLocked(*updated)
	b.applyMu.Unlock()

	result := updated.Clone()
	return &result, nil
}

// Reorder places a copy of order id. The new order is shown at the top once
// the backend returns it.
func (b *Board) Reorder(ctx context.Context, id int64) (*domain.Order, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidOrderID
	}
	ctx, cancel := b.scope(ctx)
	defer cancel()

	start := time.Now()
	created, err := b.api.Reorder(ctx, id)
	metrics.FetchDuration.WithLabelValues(boardName, "reorder", metrics.Result(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		log.Printf("[OrderBoard] Reorder of order %d failed: %v", id, err)
		return nil, fmt.Errorf("reordering order %d: %w", id, err)
	}
	if b.closed() {
		return nil, domain.ErrBoardClosed
	}

	if b.Filter().Admits(*created) {
		b.applyMu.Lock()
		b.items.Upsert(*created, true)
		b.applyMu.Unlock()
	}
	return created, nil
}

// Close drops both subscriptions and aborts in-flight requests.
func (b *Board) Close() {
	b.cancel()

	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	log.Println("[OrderBoard] Closed")
}

// Items returns copies that share no storage with the board.
func (b *Board) Items() []domain.Order {
	items := b.items.Items()
	for i := range items {
		items[i] = items[i].Clone()
	}
	return items
}

func (b *Board) Get(id int64) (domain.Order, bool) {
	o, ok := b.items.Get(id)
	return o.Clone(), ok
}

func (b *Board) Page() int { return b.pager.Current() }

func (b *Board) TotalPages() int { return b.pager.TotalPages() }

func (b *Board) Busy() bool { return b.pager.Busy() }

func (b *Board) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// SubscriptionStates reports the state of each topic subscription.
func (b *Board) SubscriptionStates() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	states := make(map[string]string, len(b.subs))
	for _, sub := range b.subs {
		states[sub.Topic()] = sub.State().String()
	}
	return states
}

func (b *Board) Snapshot() Snapshot {
	s := Snapshot{
		Items:         b.Items(),
		Page:          b.Page(),
		TotalPages:    b.TotalPages(),
		Busy:          b.Busy(),
		Filter:        b.Filter(),
		Subscriptions: b.SubscriptionStates(),
	}
	if err := b.LastError(); err != nil {
		s.LastError = err.Error()
	}
	return s
}

func (b *Board) Watch(fn func(store.Change[domain.Order])) (cancel func()) {
	return b.items.Watch(fn)
}

func (b *Board) setLastError(err error) {
	b.mu.Lock()
	b.lastErr = err
	b.mu.Unlock()
}

func (b *Board) closed() bool {
	return b.ctx.Err() != nil
}

func (b *Board) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(b.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
