package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/saransh1220/tableside-sync/internal/modules/order/domain"
	"github.com/saransh1220/tableside-sync/internal/shared/pagination"
	"github.com/saransh1220/tableside-sync/internal/shared/realtime"
	"github.com/saransh1220/tableside-sync/internal/shared/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderAPIStub struct {
	mu       sync.Mutex
	requests []pagination.Request

	listFn         func(context.Context, pagination.Request) (pagination.Page[domain.Order], error)
	updateStatusFn func(context.Context, int64, domain.Status) (*domain.Order, error)
	reorderFn      func(context.Context, int64) (*domain.Order, error)
}

func (s *orderAPIStub) List(ctx context.Context, req pagination.Request) (pagination.Page[domain.Order], error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return s.listFn(ctx, req)
}

func (s *orderAPIStub) UpdateStatus(ctx context.Context, id int64, status domain.Status) (*domain.Order, error) {
	return s.updateStatusFn(ctx, id, status)
}

func (s *orderAPIStub) Reorder(ctx context.Context, id int64) (*domain.Order, error) {
	return s.reorderFn(ctx, id)
}

func (s *orderAPIStub) lastRequest() pagination.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func sampleOrders() []domain.Order {
	return []domain.Order{
		{ID: 3, Status: domain.StatusPending, TotalAmount: 24.5, Items: []domain.LineItem{
			{ItemID: 100, Name: "Margherita", Quantity: 2, UnitPrice: 9.5, Status: "AVAILABLE"},
			{ItemID: 101, Name: "Lemonade", Quantity: 1, UnitPrice: 5.5, Status: "AVAILABLE"},
		}},
		{ID: 2, Status: domain.StatusApproved, TotalAmount: 12, Items: []domain.LineItem{
			{ItemID: 102, Name: "Tiramisu", Quantity: 2, UnitPrice: 6, Status: "AVAILABLE"},
		}},
		{ID: 1, Status: domain.StatusDelivered, TotalAmount: 9.5, Items: []domain.LineItem{
			{ItemID: 100, Name: "Margherita", Quantity: 1, UnitPrice: 9.5, Status: "AVAILABLE"},
		}},
	}
}

func pagedOrders(all []domain.Order) *orderAPIStub {
	return &orderAPIStub{
		listFn: func(_ context.Context, req pagination.Request) (pagination.Page[domain.Order], error) {
			return pagination.NewPage(all, req.Page, req.Size), nil
		},
	}
}

func event(t *testing.T, eventType string, data any) realtime.Envelope {
	t.Helper()
	env, err := realtime.NewEnvelope(eventType, data)
	require.NoError(t, err)
	return env
}

func loadedBoard(t *testing.T, api *orderAPIStub) (*Board, *realtime.MemoryTransport) {
	t.Helper()
	bus := realtime.NewMemoryTransport()
	b := NewBoard(api, bus, 10)
	t.Cleanup(b.Close)
	require.NoError(t, b.Start())
	require.NoError(t, b.Load(context.Background(), 0))
	return b, bus
}

func TestBoard_StartSubscribesOnce(t *testing.T) {
	b, bus := loadedBoard(t, pagedOrders(sampleOrders()))
	require.NoError(t, b.Start())

	assert.Equal(t, 1, bus.Subscribers(domain.TopicOrders))
	assert.Equal(t, 1, bus.Subscribers(domain.TopicMenu))
	assert.Equal(t, map[string]string{
		domain.TopicOrders: "subscribed",
		domain.TopicMenu:   "subscribed",
	}, b.SubscriptionStates())
}

func TestBoard_NewOrderPrependsAndDedups(t *testing.T) {
	b, bus := loadedBoard(t, pagedOrders(sampleOrders()))

	created := domain.Order{ID: 4, Status: domain.StatusPending, Items: []domain.LineItem{{ItemID: 103, Name: "Soup"}}}
	bus.Publish(domain.TopicOrders, event(t, domain.EventNewOrder, created))
	bus.Publish(domain.TopicOrders, event(t, domain.EventNewOrder, created))

	items := b.Items()
	require.Len(t, items, 4)
	assert.EqualValues(t, 4, items[0].ID)
}

func TestBoard_OrderUpdatedReplacesInPlace(t *testing.T) {
	b, bus := loadedBoard(t, pagedOrders(sampleOrders()))

	bus.Publish(domain.TopicOrders, event(t, domain.EventOrderUpdated, domain.Order{ID: 2, Status: domain.StatusDelivering, TotalAmount: 12}))
	items := b.Items()
	require.Len(t, items, 3)
	assert.EqualValues(t, 2, items[1].ID)
	assert.Equal(t, domain.StatusDelivering, items[1].Status)

	// unknown ids are not inserted
	bus.Publish(domain.TopicOrders, event(t, domain.EventOrderUpdated, domain.Order{ID: 77, Status: domain.StatusCancelled}))
	assert.Len(t, b.Items(), 3)
	_, ok := b.Get(77)
	assert.False(t, ok)
}

func TestBoard_MenuItemStatusPatchesNestedItems(t *testing.T) {
	b, bus := loadedBoard(t, pagedOrders(sampleOrders()))
	before := b.Items()

	bus.Publish(domain.TopicMenu, event(t, domain.EventMenuItemStatus, domain.MenuItemStatus{ItemID: 100, Status: "UNAVAILABLE"}))

	o3, _ := b.Get(3)
	assert.Equal(t, "UNAVAILABLE", o3.Items[0].Status)
	assert.Equal(t, "AVAILABLE", o3.Items[1].Status)
	o1, _ := b.Get(1)
	assert.Equal(t, "UNAVAILABLE", o1.Items[0].Status)
	o2, _ := b.Get(2)
	assert.Equal(t, before[1], o2)

	// earlier snapshots are not mutated behind the caller's back
	assert.Equal(t, "AVAILABLE", before[0].Items[0].Status)

	// an item that is not loaded changes nothing and announces nothing
	notified := false
	cancel := b.Watch(func(store.Change[domain.Order]) { notified = true })
	defer cancel()
	assert.NoError(t, b.Apply(event(t, domain.EventMenuItemStatus, domain.MenuItemStatus{ItemID: 999, Status: "UNAVAILABLE"})))
	assert.Len(t, b.Items(), 3)
	assert.False(t, notified)
}

func TestBoard_MalformedEvents(t *testing.T) {
	b, _ := loadedBoard(t, pagedOrders(sampleOrders()))

	assert.ErrorIs(t, b.Apply(realtime.Envelope{Type: "ORDER_DELETED"}), domain.ErrUnknownEvent)
	assert.ErrorIs(t, b.Apply(realtime.Envelope{Type: domain.EventNewOrder}), realtime.ErrMalformedMessage)
	assert.ErrorIs(t, b.Apply(event(t, domain.EventNewOrder, map[string]string{"status": "PENDING"})), domain.ErrMissingOrderID)
	assert.ErrorIs(t, b.Apply(event(t, domain.EventMenuItemStatus, map[string]string{"status": "X"})), domain.ErrMissingItemID)
	assert.Len(t, b.Items(), 3)
}

func TestBoard_FilterAppliesToFetchAndPushes(t *testing.T) {
	api := pagedOrders(sampleOrders())
	b, bus := loadedBoard(t, api)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	require.NoError(t, b.SetFilter(context.Background(), domain.Filter{Keyword: " pizza ", Status: domain.StatusPending, From: from, To: to}))

	req := api.lastRequest()
	assert.Equal(t, 0, req.Page)
	assert.Equal(t, "pizza", req.Keyword)
	assert.Equal(t, "PENDING", req.Status)
	assert.Equal(t, "2026-03-01", req.Query().Get("from"))

	bus.Publish(domain.TopicOrders, event(t, domain.EventNewOrder, domain.Order{ID: 9, Status: domain.StatusApproved}))
	_, ok := b.Get(9)
	assert.False(t, ok)

	bus.Publish(domain.TopicOrders, event(t, domain.EventNewOrder, domain.Order{ID: 10, Status: domain.StatusPending}))
	_, ok = b.Get(10)
	assert.True(t, ok)
}

func TestBoard_InvalidFilterRejectedLocally(t *testing.T) {
	api := pagedOrders(sampleOrders())
	b, _ := loadedBoard(t, api)
	calls := len(api.requests)

	err := b.SetFilter(context.Background(), domain.Filter{Status: "LOST"})
	assert.ErrorIs(t, err, domain.ErrInvalidOrderStatus)

	err = b.SetFilter(context.Background(), domain.Filter{
		From: time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, pagination.ErrInvalidRange)
	assert.Len(t, api.requests, calls)
	assert.Equal(t, domain.Filter{}, b.Filter())
}

func TestBoard_FailedFilterReloadRestoresFilter(t *testing.T) {
	api := pagedOrders(sampleOrders())
	b, _ := loadedBoard(t, api)

	api.listFn = func(context.Context, pagination.Request) (pagination.Page[domain.Order], error) {
		return pagination.Page[domain.Order]{}, errors.New("gateway timeout")
	}
	err := b.SetFilter(context.Background(), domain.Filter{Status: domain.StatusCancelled})
	require.Error(t, err)
	assert.Equal(t, domain.Filter{}, b.Filter())
	assert.Len(t, b.Items(), 3)
	assert.Error(t, b.LastError())
}

func TestBoard_Paging(t *testing.T) {
	var all []domain.Order
	for i := 25; i >= 1; i-- {
		all = append(all, domain.Order{ID: int64(i), Status: domain.StatusPending})
	}
	bus := realtime.NewMemoryTransport()
	b := NewBoard(pagedOrders(all), bus, 10)
	defer b.Close()
	ctx := context.Background()

	require.NoError(t, b.Load(ctx, 0))
	assert.Equal(t, 3, b.TotalPages())
	require.NoError(t, b.Jump(ctx, "3"))
	assert.Equal(t, 2, b.Page())
	assert.Len(t, b.Items(), 5)
	assert.ErrorIs(t, b.GoTo(ctx, 3), pagination.ErrPageOutOfRange)
	require.NoError(t, b.Refresh(ctx))
	assert.Equal(t, 2, b.Page())
}

func TestBoard_UpdateStatus(t *testing.T) {
	api := pagedOrders(sampleOrders())
	api.updateStatusFn = func(_ context.Context, id int64, status domain.Status) (*domain.Order, error) {
		if id == 1 {
			return nil, errors.New("order already delivered")
		}
		return &domain.Order{ID: id, Status: status, TotalAmount: 12}, nil
	}
	b, _ := loadedBoard(t, api)
	ctx := context.Background()

	updated, err := b.UpdateStatus(ctx, 2, domain.StatusDelivering)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivering, updated.Status)
	o, _ := b.Get(2)
	assert.Equal(t, domain.StatusDelivering, o.Status)

	_, err = b.UpdateStatus(ctx, 1, domain.StatusCancelled)
	require.Error(t, err)
	o, _ = b.Get(1)
	assert.Equal(t, domain.StatusDelivered, o.Status)

	_, err = b.UpdateStatus(ctx, 2, "LOST")
	assert.ErrorIs(t, err, domain.ErrInvalidOrderStatus)
	_, err = b.UpdateStatus(ctx, 0, domain.StatusPending)
	assert.ErrorIs(t, err, domain.ErrInvalidOrderID)
}

func TestBoard_UpdateStatusOfOrderOffPage(t *testing.T) {
	api := pagedOrders(sampleOrders())
	api.updateStatusFn = func(_ context.Context, id int64, status domain.Status) (*domain.Order, error) {
		return &domain.Order{ID: id, Status: status, TotalAmount: 30}, nil
	}
	b, _ := loadedBoard(t, api)

	updated, err := b.UpdateStatus(context.Background(), 42, domain.StatusApproved)
	require.NoError(t, err)
	assert.EqualValues(t, 42, updated.ID)
	assert.Equal(t, domain.StatusApproved, updated.Status)
	assert.Equal(t, 30.0, updated.TotalAmount)

	_, ok := b.Get(42)
	assert.False(t, ok)
	assert.Len(t, b.Items(), 3)
}

func TestBoard_UpdateLeavingFilterDropsOrder(t *testing.T) {
	api := pagedOrders(sampleOrders())
	api.updateStatusFn = func(_ context.Context, id int64, status domain.Status) (*domain.Order, error) {
		return &domain.Order{ID: id, Status: status}, nil
	}
	b, bus := loadedBoard(t, api)
	require.NoError(t, b.SetFilter(context.Background(), domain.Filter{Status: domain.StatusPending}))

	var removed []int64
	cancel := b.Watch(func(c store.Change[domain.Order]) {
		if c.Kind == store.ChangeRemoved {
			removed = append(removed, c.Items[0].ID)
		}
	})
	defer cancel()

	// still pending: replaced in place
	bus.Publish(domain.TopicOrders, event(t, domain.EventOrderUpdated, domain.Order{ID: 3, Status: domain.StatusPending, TotalAmount: 50}))
	o, ok := b.Get(3)
	require.True(t, ok)
	assert.Equal(t, 50.0, o.TotalAmount)

	// approved no longer matches the pending filter
	bus.Publish(domain.TopicOrders, event(t, domain.EventOrderUpdated, domain.Order{ID: 3, Status: domain.StatusApproved}))
	_, ok = b.Get(3)
	assert.False(t, ok)

	// same through a confirmed status change
	_, err := b.UpdateStatus(context.Background(), 2, domain.StatusDelivering)
	require.NoError(t, err)
	_, ok = b.Get(2)
	assert.False(t, ok)

	assert.Equal(t, []int64{3, 2}, removed)
}

func TestBoard_SetFilterWhileBusyKeepsFilter(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	api := pagedOrders(sampleOrders())
	b, _ := loadedBoard(t, api)
	api.listFn = func(_ context.Context, req pagination.Request) (pagination.Page[domain.Order], error) {
		started <- struct{}{}
		<-release
		return pagination.NewPage(sampleOrders(), req.Page, req.Size), nil
	}

	done := make(chan error, 1)
	go func() { done <- b.Refresh(context.Background()) }()
	<-started

	err := b.SetFilter(context.Background(), domain.Filter{Status: domain.StatusApproved})
	assert.ErrorIs(t, err, pagination.ErrBusy)
	assert.Equal(t, domain.Filter{}, b.Filter())

	close(release)
	require.NoError(t, <-done)
}

func TestBoard_Reorder(t *testing.T) {
	api := pagedOrders(sampleOrders())
	api.reorderFn = func(_ context.Context, id int64) (*domain.Order, error) {
		if id == 404 {
			return nil, domain.ErrOrderNotFound
		}
		return &domain.Order{ID: 50, Status: domain.StatusPending}, nil
	}
	b, _ := loadedBoard(t, api)

	created, err := b.Reorder(context.Background(), 3)
	require.NoError(t, err)
	assert.EqualValues(t, 50, created.ID)
	assert.EqualValues(t, 50, b.Items()[0].ID)

	_, err = b.Reorder(context.Background(), 404)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	assert.Len(t, b.Items(), 4)
}

func TestBoard_CloseStopsEverything(t *testing.T) {
	started := make(chan struct{})
	api := &orderAPIStub{
		listFn: func(ctx context.Context, _ pagination.Request) (pagination.Page[domain.Order], error) {
			close(started)
			<-ctx.Done()
			return pagination.NewPage(sampleOrders(), 0, 10), nil
		},
	}
	bus := realtime.NewMemoryTransport()
	b := NewBoard(api, bus, 10)
	require.NoError(t, b.Start())

	done := make(chan error, 1)
	go func() { done <- b.Load(context.Background(), 0) }()
	<-started
	b.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrBoardClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch was not aborted")
	}
	assert.Empty(t, b.Items())
	assert.Equal(t, 0, bus.Subscribers(domain.TopicOrders))
	assert.Equal(t, 0, bus.Publish(domain.TopicOrders, event(t, domain.EventNewOrder, domain.Order{ID: 1})))
	assert.ErrorIs(t, b.Start(), domain.ErrBoardClosed)
}

func TestBoard_Watch(t *testing.T) {
	b, bus := loadedBoard(t, pagedOrders(sampleOrders()))

	var got []store.Change[domain.Order]
	cancel := b.Watch(func(c store.Change[domain.Order]) { got = append(got, c) })
	defer cancel()

	bus.Publish(domain.TopicMenu, event(t, domain.EventMenuItemStatus, domain.MenuItemStatus{ItemID: 100, Status: "UNAVAILABLE"}))
	require.Len(t, got, 1)
	assert.Equal(t, store.ChangeUpdated, got[0].Kind)
	assert.Len(t, got[0].Items, 2)
}
