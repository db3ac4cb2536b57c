package realtime

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokerEvent struct {
	command     string
	id          string
	destination string
}

// fakeBroker is a minimal STOMP-over-websocket server. Every accepted
// connection is handed to the test through conns. The first silent
// connections stop reading and writing right after CONNECTED.
type fakeBroker struct {
	t         *testing.T
	server    *httptest.Server
	events    chan brokerEvent
	conns     chan *websocket.Conn
	cookies   chan string
	upgrader  websocket.Upgrader
	heartBeat string
	silent    atomic.Int32
	hold      chan struct{}
}

func newFakeBroker(t *testing.T) *fakeBroker {
	b := &fakeBroker{
		t:       t,
		events:  make(chan brokerEvent, 32),
		conns:   make(chan *websocket.Conn, 4),
		cookies: make(chan string, 4),
		hold:    make(chan struct{}),
	}
	b.server = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.server.Close)
	t.Cleanup(func() { close(b.hold) })
	return b
}

func (b *fakeBroker) url() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http")
}

func (b *fakeBroker) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	b.cookies <- r.Header.Get("Cookie")

	f, err := readFrame(conn, 0)
	if err != nil || f.Command != frame.CONNECT {
		conn.Close()
		return
	}
	connected := frame.New(frame.CONNECTED, frame.Version, "1.2")
	if b.heartBeat != "" {
		connected.Header.Set(frame.HeartBeat, b.heartBeat)
	}
	data, _ := encodeFrame(connected)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return
	}
	b.conns <- conn

	if b.silent.Add(-1) >= 0 {
		<-b.hold
		conn.Close()
		return
	}

	for {
		f, err := readFrame(conn, 0)
		if err != nil {
			return
		}
		b.events <- brokerEvent{
			command:     f.Command,
			id:          f.Header.Get(frame.Id),
			destination: f.Header.Get(frame.Destination),
		}
	}
}

func (b *fakeBroker) nextEvent(command string) brokerEvent {
	b.t.Helper()
	for {
		select {
		case ev := <-b.events:
			if ev.command == command {
				return ev
			}
		case <-time.After(2 * time.Second):
			b.t.Fatalf("broker never received %s", command)
		}
	}
}

func (b *fakeBroker) nextConn() *websocket.Conn {
	b.t.Helper()
	select {
	case conn := <-b.conns:
		return conn
	case <-time.After(2 * time.Second):
		b.t.Fatal("client never connected")
		return nil
	}
}

func publish(t *testing.T, conn *websocket.Conn, subID, destination, body string) {
	t.Helper()
	f := frame.New(frame.MESSAGE,
		frame.Subscription, subID,
		frame.Destination, destination,
		frame.MessageId, "m-1",
		frame.ContentType, "application/json",
	)
	f.Body = []byte(body)
	data, err := encodeFrame(f)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

type recorder struct {
	mu   sync.Mutex
	got  []Envelope
	seen chan struct{}
}

func newRecorder() *recorder {
	return &recorder{seen: make(chan struct{}, 16)}
}

func (r *recorder) handle(env Envelope) {
	r.mu.Lock()
	r.got = append(r.got, env)
	r.mu.Unlock()
	r.seen <- struct{}{}
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.seen:
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func TestStompClient_SubscribeAndDeliver(t *testing.T) {
	broker := newFakeBroker(t)
	header := http.Header{}
	header.Set("Cookie", "JSESSIONID=abc")
	client := NewStompClient(StompConfig{URL: broker.url(), Header: header, ReconnectDelay: 20 * time.Millisecond})
	go client.Run()
	defer client.Stop()

	rec := newRecorder()
	sub, err := client.Subscribe("/topic/notifications/7", rec.handle)
	require.NoError(t, err)

	conn := broker.nextConn()
	assert.Equal(t, "JSESSIONID=abc", <-broker.cookies)

	ev := broker.nextEvent(frame.SUBSCRIBE)
	assert.Equal(t, sub.ID(), ev.id)
	assert.Equal(t, "/topic/notifications/7", ev.destination)

	publish(t, conn, sub.ID(), sub.Topic(), `{"type":"NEW_NOTIFICATION","data":{"id":1}}`)
	rec.wait(t)

	assert.Equal(t, "NEW_NOTIFICATION", rec.got[0].Type)
	assert.JSONEq(t, `{"id":1}`, string(rec.got[0].Data))
	assert.Equal(t, StateSubscribed, sub.State())
}

func TestStompClient_EmptyTopicNeverSubscribes(t *testing.T) {
	client := NewStompClient(StompConfig{URL: "ws://127.0.0.1:1/ws"})

	sub, err := client.Subscribe("", func(Envelope) {})
	assert.ErrorIs(t, err, ErrEmptyTopic)
	assert.Nil(t, sub)
	assert.Empty(t, client.subs)
}

func TestStompClient_UnsubscribeStopsDelivery(t *testing.T) {
	broker := newFakeBroker(t)
	client := NewStompClient(StompConfig{URL: broker.url(), ReconnectDelay: 20 * time.Millisecond})
	go client.Run()
	defer client.Stop()

	rec := newRecorder()
	sub, err := client.Subscribe("/topic/order", rec.handle)
	require.NoError(t, err)
	conn := broker.nextConn()
	broker.nextEvent(frame.SUBSCRIBE)

	sub.Unsubscribe()
	ev := broker.nextEvent(frame.UNSUBSCRIBE)
	assert.Equal(t, sub.ID(), ev.id)
	assert.Equal(t, StateUnsubscribed, sub.State())

	publish(t, conn, sub.ID(), "/topic/order", `{"type":"NEW_ORDER","data":{}}`)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, rec.count())

	// idempotent
	sub.Unsubscribe()
}

func TestStompClient_ReconnectRestoresSubscriptions(t *testing.T) {
	broker := newFakeBroker(t)
	client := NewStompClient(StompConfig{URL: broker.url(), ReconnectDelay: 20 * time.Millisecond})
	go client.Run()
	defer client.Stop()

	rec := newRecorder()
	sub, err := client.Subscribe("/topic/menu", rec.handle)
	require.NoError(t, err)

	first := broker.nextConn()
	broker.nextEvent(frame.SUBSCRIBE)

	first.Close()

	second := broker.nextConn()
	ev := broker.nextEvent(frame.SUBSCRIBE)
	assert.Equal(t, sub.ID(), ev.id)

	publish(t, second, sub.ID(), "/topic/menu", `{"type":"MENU_ITEM_STATUS","data":{"itemId":3}}`)
	rec.wait(t)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, StateSubscribed, sub.State())
}

func TestStompClient_MalformedMessageIsDropped(t *testing.T) {
	broker := newFakeBroker(t)
	client := NewStompClient(StompConfig{URL: broker.url(), ReconnectDelay: 20 * time.Millisecond})
	go client.Run()
	defer client.Stop()

	rec := newRecorder()
	sub, err := client.Subscribe("/topic/order", rec.handle)
	require.NoError(t, err)
	conn := broker.nextConn()
	broker.nextEvent(frame.SUBSCRIBE)

	publish(t, conn, sub.ID(), "/topic/order", `not json`)
	publish(t, conn, sub.ID(), "/topic/order", `{"type":"ORDER_UPDATED","data":{"id":2}}`)
	rec.wait(t)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, "ORDER_UPDATED", rec.got[0].Type)
}

func TestStompClient_StopTearsDownSubscriptions(t *testing.T) {
	client := NewStompClient(StompConfig{URL: "ws://127.0.0.1:1/ws", ReconnectDelay: time.Hour})
	sub, err := client.Subscribe("/topic/order", func(Envelope) {})
	require.NoError(t, err)
	assert.Equal(t, StateSubscribing, sub.State())

	client.Stop()
	assert.Equal(t, StateUnsubscribed, sub.State())

	_, err = client.Subscribe("/topic/order", func(Envelope) {})
	assert.ErrorIs(t, err, ErrTransportStopped)
}

func TestEncodeFrame_RoundTrip(t *testing.T) {
	f := frame.New(frame.SEND, frame.Destination, "/app/ping")
	f.Body = []byte(`{"ok":true}`)

	data, err := encodeFrame(f)
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(data, []byte{0}))

	got, err := frame.NewReader(bytes.NewReader(data)).Read()
	require.NoError(t, err)
	assert.Equal(t, frame.SEND, got.Command)
	assert.Equal(t, "/app/ping", got.Header.Get(frame.Destination))
	assert.Equal(t, `{"ok":true}`, string(got.Body))
}

func TestStompClient_SilentBrokerTriggersReconnect(t *testing.T) {
	tests := []struct {
		name      string
		heartBeat string
	}{
		{name: "stomp heart-beats", heartBeat: "30,30"},
		{name: "websocket pings", heartBeat: "0,0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broker := newFakeBroker(t)
			broker.heartBeat = tt.heartBeat
			broker.silent.Store(1)
			client := NewStompClient(StompConfig{
				URL:            broker.url(),
				ReconnectDelay: 300 * time.Millisecond,
				HeartBeat:      30 * time.Millisecond,
			})
			go client.Run()
			defer client.Stop()

			rec := newRecorder()
			sub, err := client.Subscribe("/topic/order", rec.handle)
			require.NoError(t, err)
			broker.nextConn()

			require.Eventually(t, func() bool {
				return sub.State() == StateDisconnected
			}, 2*time.Second, 5*time.Millisecond)

			second := broker.nextConn()
			ev := broker.nextEvent(frame.SUBSCRIBE)
			assert.Equal(t, sub.ID(), ev.id)

			publish(t, second, sub.ID(), "/topic/order", `{"type":"ORDER_UPDATED","data":{"id":4}}`)
			rec.wait(t)
			assert.Equal(t, StateSubscribed, sub.State())
		})
	}
}

func TestStompClient_ResponsiveBrokerStaysConnected(t *testing.T) {
	broker := newFakeBroker(t)
	client := NewStompClient(StompConfig{
		URL:            broker.url(),
		ReconnectDelay: 20 * time.Millisecond,
		HeartBeat:      20 * time.Millisecond,
	})
	go client.Run()
	defer client.Stop()

	sub, err := client.Subscribe("/topic/order", func(Envelope) {})
	require.NoError(t, err)
	broker.nextConn()
	broker.nextEvent(frame.SUBSCRIBE)

	// pongs from the broker keep extending the read deadline
	time.Sleep(300 * time.Millisecond)
	select {
	case <-broker.conns:
		t.Fatal("client reconnected to a live broker")
	default:
	}
	assert.Equal(t, StateSubscribed, sub.State())
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   keepalive
	}{
		{
			name:   "broker matches the offer",
			header: "10000,10000",
			want:   keepalive{every: 10 * time.Second, heartBeat: true, wait: 20 * time.Second},
		},
		{
			name:   "broker asks for slower beats",
			header: "30000,15000",
			want:   keepalive{every: 15 * time.Second, heartBeat: true, wait: 60 * time.Second},
		},
		{
			name:   "broker sends but does not listen",
			header: "5000,0",
			want:   keepalive{every: 10 * time.Second, wait: 20 * time.Second},
		},
		{
			name:   "heart-beats declined",
			header: "0,0",
			want:   keepalive{every: 10 * time.Second, ping: true, wait: 30 * time.Second},
		},
		{
			name:   "missing header",
			header: "",
			want:   keepalive{every: 10 * time.Second, ping: true, wait: 30 * time.Second},
		},
		{
			name:   "garbage header",
			header: "soon,later",
			want:   keepalive{every: 10 * time.Second, ping: true, wait: 30 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, negotiate(10*time.Second, tt.header))
		})
	}
}
