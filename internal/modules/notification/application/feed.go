package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saransh1220/tableside-sync/internal/modules/notification/domain"
	"github.com/saransh1220/tableside-sync/internal/shared/infrastructure/metrics"
	"github.com/saransh1220/tableside-sync/internal/shared/pagination"
	"github.com/saransh1220/tableside-sync/internal/shared/realtime"
	"github.com/saransh1220/tableside-sync/internal/shared/store"
)

const feedName = "notifications"

// Snapshot is a consistent-enough read of the feed for local consumers.
type Snapshot struct {
	Items        []domain.Notification `json:"items"`
	Page         int                   `json:"page"`
	TotalPages   int                   `json:"totalPages"`
	Unread       int                   `json:"unread"`
	Busy         bool                  `json:"busy"`
	Subscription string                `json:"subscription"`
	LastError    string                `json:"lastError,omitempty"`
}

// Feed keeps one page of notifications in sync with the backend and with the
// per-user notification topic.
//
// Every change to the local list and to the unread counter goes through the
// reducer paths (page load, Apply, MarkAsRead, MarkAllAsRead), which are
// serialized by applyMu.
type Feed struct {
	api       domain.NotificationAPI
	transport realtime.Transport
	pageSize  int

	items *store.Collection[int64, domain.Notification]
	pager *pagination.Pager

	ctx    context.Context
	cancel context.CancelFunc

	applyMu sync.Mutex
	unread  atomic.Int64

	stateMu sync.Mutex
	lastErr error

	bindMu sync.Mutex
	userID string
	sub    atomic.Pointer[realtime.Subscription]

	watchMu        sync.Mutex
	unreadWatchers map[int]func(int)
	nextWatcher    int
}

func NewFeed(api domain.NotificationAPI, transport realtime.Transport, pageSize int) *Feed {
	if pageSize <= 0 {
		pageSize = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	f := &Feed{
		api:            api,
		transport:      transport,
		pageSize:       pageSize,
		items:          store.New(domain.Notification.Key),
		ctx:            ctx,
		cancel:         cancel,
		unreadWatchers: make(map[int]func(int)),
	}
	f.pager = pagination.NewPager(f.fetch)
	return f
}

// Load fetches page index (0-based) and replaces the local content with it.
func (f *Feed) Load(ctx context.Context, index int) error {
	return f.pager.Load(ctx, index)
}

// GoTo moves to index; out-of-range indices are a no-op.
func (f *Feed) GoTo(ctx context.Context, index int) error {
	return f.pager.GoTo(ctx, index)
}

// Jump navigates to a 1-based page number typed by a person.
func (f *Feed) Jump(ctx context.Context, input string) error {
	return f.pager.Jump(ctx, input)
}

func (f *Feed) Refresh(ctx context.Context) error {
	return f.pager.Refresh(ctx)
}

func (f *Feed) fetch(ctx context.Context, index int) (int, int, error) {
	if f.closed() {
		return 0, 0, domain.ErrFeedClosed
	}
	ctx, cancel := f.scope(ctx)
	defer cancel()

	start := time.Now()
	page, err := f.api.List(ctx, pagination.Request{Page: index, Size: f.pageSize})
	metrics.FetchDuration.WithLabelValues(feedName, "list", metrics.Result(err)).Observe(time.Since(start).Seconds())
	if f.closed() {
		return 0, 0, domain.ErrFeedClosed
	}
	if err != nil {
		f.setLastError(err)
		log.Printf("[NotificationFeed] Failed to load page %d: %v", index, err)
		return 0, 0, fmt.Errorf("loading notifications page %d: %w", index, err)
	}

	count, countErr := f.api.UnreadCount(ctx)
	if f.closed() {
		return 0, 0, domain.ErrFeedClosed
	}
	if countErr != nil {
		log.Printf("[NotificationFeed] Unread count unavailable, keeping %d: %v", f.Unread(), countErr)
	}

	f.applyMu.Lock()
	f.items.Replace(page.Content)
	if countErr == nil {
		f.setUnread(int64(count))
	}
	f.applyMu.Unlock()

	f.setLastError(countErr)
	return page.Number, page.TotalPages, nil
}

// Bind attaches the feed to the notification topic of userID. An empty id
// only drops the current subscription; binding the same id again is a no-op.
func (f *Feed) Bind(userID string) error {
	f.bindMu.Lock()
	defer f.bindMu.Unlock()

	if f.closed() {
		return domain.ErrFeedClosed
	}
	if userID == f.userID && (userID == "" || f.sub.Load() != nil) {
		return nil
	}

	if old := f.sub.Swap(nil); old != nil {
		old.Unsubscribe()
	}
	f.userID = ""

	topic := domain.TopicFor(userID)
	if topic == "" {
		return nil
	}

	sub, err := f.transport.Subscribe(topic, f.handle)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	f.userID = userID
	f.sub.Store(sub)
	log.Printf("[NotificationFeed] Bound to %s", topic)
	return nil
}

func (f *Feed) handle(env realtime.Envelope) {
	if err := f.Apply(env); err != nil {
		log.Printf("[NotificationFeed] Ignoring %s event: %v", env.Type, err)
	}
}

// Apply reconciles one push event into the local list and the unread counter.
func (f *Feed) Apply(env realtime.Envelope) error {
	f.applyMu.Lock()
	defer f.applyMu.Unlock()

	var err error
	outcome := "applied"
	switch env.Type {
	case domain.EventNewNotification:
		err = f.applyNew(env)
	case domain.EventNotificationRead:
		err = f.applyRead(env)
	case domain.EventAllNotificationsRead:
		f.markAllLocal()
	default:
		err = fmt.Errorf("%w: %q", domain.ErrUnknownEvent, env.Type)
	}

	switch {
	case errors.Is(err, domain.ErrUnknownEvent):
		outcome = "unknown"
	case err != nil:
		outcome = "malformed"
	}
	metrics.EventsApplied.WithLabelValues(feedName, env.Type, outcome).Inc()
	return err
}

func (f *Feed) applyNew(env realtime.Envelope) error {
	var n domain.Notification
	if err := env.Decode(&n); err != nil {
		return err
	}
	if n.ID == 0 {
		return domain.ErrMissingNotificationID
	}

	prev, existed := f.items.Upsert(n, true)
	switch {
	case !existed && n.Unread():
		f.adjustUnread(1)
	case existed && prev.Unread() && n.Read:
		f.adjustUnread(-1)
	case existed && prev.Read && n.Unread():
		f.adjustUnread(1)
	}
	return nil
}

func (f *Feed) applyRead(env realtime.Envelope) error {
	var ref domain.Notification
	if err := env.Decode(&ref); err != nil {
		return err
	}
	if ref.ID == 0 {
		return domain.ErrMissingNotificationID
	}

	wasUnread := false
	found := f.items.Patch(ref.ID, func(n *domain.Notification) bool {
		if n.Read {
			return false
		}
		wasUnread = true
		n.Read = true
		return true
	})
	// An entry outside the loaded page still counted as unread on the server.
	if !found || wasUnread {
		f.adjustUnread(-1)
	}
	return nil
}

func (f *Feed) markAllLocal() {
	f.items.PatchAll(func(n *domain.Notification) bool {
		if n.Read {
			return false
		}
		n.Read = true
		return true
	})
	f.setUnread(0)
}

// MarkAsRead asks the backend to mark id read and applies the server's
// answer. Nothing changes locally until the backend confirms.
func (f *Feed) MarkAsRead(ctx context.Context, id int64) error {
	if id <= 0 {
		return domain.ErrInvalidNotificationID
	}
	ctx, cancel := f.scope(ctx)
	defer cancel()

	start := time.Now()
	updated, err := f.api.MarkAsRead(ctx, id)
	metrics.FetchDuration.WithLabelValues(feedName, "mark_read", metrics.Result(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		log.Printf("[NotificationFeed] Mark as read %d failed: %v", id, err)
		return fmt.Errorf("marking notification %d as read: %w", id, err)
	}
	if f.closed() {
		return domain.ErrFeedClosed
	}

	f.applyMu.Lock()
	defer f.applyMu.Unlock()

	wasUnread := false
	found := f.items.Patch(id, func(n *domain.Notification) bool {
		wasUnread = n.Unread()
		if updated == nil {
			// confirmed without a record: only the read flag is known
			n.Read = true
			return wasUnread
		}
		*n = *updated
		return true
	})
	if found && wasUnread && (updated == nil || updated.Read) {
		f.adjustUnread(-1)
	}
	return nil
}

func (f *Feed) MarkAllAsRead(ctx context.Context) error {
	ctx, cancel := f.scope(ctx)
	defer cancel()

	start := time.Now()
	err := f.api.MarkAllAsRead(ctx)
	metrics.FetchDuration.WithLabelValues(feedName, "mark_all_read", metrics.Result(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		log.Printf("[NotificationFeed] Mark all as read failed: %v", err)
		return fmt.Errorf("marking all notifications as read: %w", err)
	}
	if f.closed() {
		return domain.ErrFeedClosed
	}

	f.applyMu.Lock()
	f.markAllLocal()
	f.applyMu.Unlock()
	return nil
}

// Close drops the subscription and aborts in-flight requests. Results that
// arrive afterwards are discarded.
func (f *Feed) Close() {
	f.cancel()

	f.bindMu.Lock()
	if sub := f.sub.Swap(nil); sub != nil {
		sub.Unsubscribe()
	}
	f.userID = ""
	f.bindMu.Unlock()
	log.Println("[NotificationFeed] Closed")
}

func (f *Feed) Items() []domain.Notification { return f.items.Items() }

func (f *Feed) Get(id int64) (domain.Notification, bool) { return f.items.Get(id) }

func (f *Feed) Unread() int { return int(f.unread.Load()) }

func (f *Feed) Page() int { return f.pager.Current() }

func (f *Feed) TotalPages() int { return f.pager.TotalPages() }

func (f *Feed) Busy() bool { return f.pager.Busy() }

// SubscriptionState reports the state of the current topic subscription.
func (f *Feed) SubscriptionState() realtime.State {
	if sub := f.sub.Load(); sub != nil {
		return sub.State()
	}
	return realtime.StateUnsubscribed
}

func (f *Feed) LastError() error {
	f.stateMu.Lock()
	defer f.stateMu.Unlock()
	return f.lastErr
}

func (f *Feed) Snapshot() Snapshot {
	s := Snapshot{
		Items:        f.Items(),
		Page:         f.Page(),
		TotalPages:   f.TotalPages(),
		Unread:       f.Unread(),
		Busy:         f.Busy(),
		Subscription: f.SubscriptionState().String(),
	}
	if err := f.LastError(); err != nil {
		s.LastError = err.Error()
	}
	return s
}

// Watch registers fn for every change of the local list.
func (f *Feed) Watch(fn func(store.Change[domain.Notification])) (cancel func()) {
	return f.items.Watch(fn)
}

// WatchUnread registers fn for every change of the unread counter.
func (f *Feed) WatchUnread(fn func(int)) (cancel func()) {
	f.watchMu.Lock()
	id := f.nextWatcher
	f.nextWatcher++
	f.unreadWatchers[id] = fn
	f.watchMu.Unlock()

	return func() {
		f.watchMu.Lock()
		delete(f.unreadWatchers, id)
		f.watchMu.Unlock()
	}
}

func (f *Feed) adjustUnread(delta int64) {
	n := f.unread.Load() + delta
	if n < 0 {
		n = 0
	}
	f.setUnread(n)
}

// setUnread must be called with applyMu held.
func (f *Feed) setUnread(n int64) {
	if f.unread.Swap(n) == n {
		return
	}
	metrics.UnreadNotifications.Set(float64(n))

	f.watchMu.Lock()
	fns := make([]func(int), 0, len(f.unreadWatchers))
	for _, fn := range f.unreadWatchers {
		fns = append(fns, fn)
	}
	f.watchMu.Unlock()

	for _, fn := range fns {
		fn(int(n))
	}
}

func (f *Feed) setLastError(err error) {
	f.stateMu.Lock()
	f.lastErr = err
	f.stateMu.Unlock()
}

func (f *Feed) closed() bool {
	return f.ctx.Err() != nil
}

// scope ties ctx to the feed lifetime so Close aborts it.
func (f *Feed) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(f.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
