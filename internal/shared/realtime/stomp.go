package realtime

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"github.com/saransh1220/tableside-sync/internal/shared/infrastructure/metrics"
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultHeartBeat      = 10 * time.Second
)

// StompConfig holds the realtime endpoint settings. HeartBeat is the interval
// offered to the broker in both directions; the broker may ask for a longer one.
type StompConfig struct {
	URL              string
	Header           http.Header
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	HeartBeat        time.Duration
}

// StompClient speaks STOMP 1.2 over a single websocket connection and keeps
// every live subscription attached across reconnects. Messages published
// while the connection is down are lost.
type StompClient struct {
	cfg    StompConfig
	host   string
	dialer *websocket.Dialer

	mu   sync.Mutex
	subs map[string]*Subscription
	conn *websocket.Conn

	writeMu sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
}

func NewStompClient(cfg StompConfig) *StompClient {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.HeartBeat <= 0 {
		cfg.HeartBeat = defaultHeartBeat
	}

	host := ""
	if u, err := url.Parse(cfg.URL); err == nil {
		host = u.Hostname()
	}

	return &StompClient{
		cfg:  cfg,
		host: host,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		subs: make(map[string]*Subscription),
		stop: make(chan struct{}),
	}
}

// Run keeps the connection up until Stop is called, retrying after the
// configured delay whenever it drops.
func (c *StompClient) Run() {
	for {
		err := c.session()
		if c.stopped() {
			return
		}
		log.Printf("[StompClient] Connection lost: %v (retrying in %s)", err, c.cfg.ReconnectDelay)
		c.setAll(StateDisconnected)

		select {
		case <-c.stop:
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}
		c.setAll(StateReconnecting)
	}
}

// Stop closes the connection and tears down every subscription.
func (c *StompClient) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)

		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		subs := c.subs
		c.subs = make(map[string]*Subscription)
		c.mu.Unlock()

		for _, sub := range subs {
			sub.once.Do(sub.markClosed)
		}

		if conn != nil {
			_ = c.writeFrame(conn, frame.New(frame.DISCONNECT))
			conn.Close()
		}
		log.Println("[StompClient] Stopped")
	})
}

// Subscribe registers handler for topic. The SUBSCRIBE frame is sent right
// away when connected, otherwise on the next successful connect.
func (c *StompClient) Subscribe(topic string, handler Handler) (*Subscription, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	if c.stopped() {
		return nil, ErrTransportStopped
	}

	sub := newSubscription(topic, handler, c.release)

	c.mu.Lock()
	c.subs[sub.id] = sub
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		if err := c.sendSubscribe(conn, sub); err != nil {
			log.Printf("[StompClient] Subscribe %s deferred until reconnect: %v", topic, err)
		}
	}
	return sub, nil
}

func (c *StompClient) release(sub *Subscription) {
	c.mu.Lock()
	delete(c.subs, sub.id)
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		_ = c.writeFrame(conn, frame.New(frame.UNSUBSCRIBE, frame.Id, sub.id))
	}
	log.Printf("[StompClient] Unsubscribed from %s", sub.topic)
}

func (c *StompClient) session() error {
	conn, _, err := c.dialer.Dial(c.cfg.URL, c.cfg.Header)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.cfg.URL, err)
	}
	defer conn.Close()

	beat := strconv.FormatInt(c.cfg.HeartBeat.Milliseconds(), 10)
	connect := frame.New(frame.CONNECT,
		frame.AcceptVersion, "1.2",
		frame.Host, c.host,
		frame.HeartBeat, beat+","+beat,
	)
	if err := c.writeFrame(conn, connect); err != nil {
		return fmt.Errorf("sending CONNECT: %w", err)
	}

	f, err := readFrame(conn, c.cfg.HandshakeTimeout)
	if err != nil {
		return fmt.Errorf("awaiting CONNECTED: %w", err)
	}
	if f.Command == frame.ERROR {
		return fmt.Errorf("broker refused connection: %s", f.Header.Get(frame.Message))
	}
	if f.Command != frame.CONNECTED {
		return fmt.Errorf("unexpected %s frame during handshake", f.Command)
	}

	ka := negotiate(c.cfg.HeartBeat, f.Header.Get(frame.HeartBeat))
	if ka.ping {
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(ka.wait))
		})
	}
	done := make(chan struct{})
	defer close(done)
	go c.keepAlive(conn, ka, done)

	c.mu.Lock()
	if c.stopped() {
		c.mu.Unlock()
		return ErrTransportStopped
	}
	c.conn = conn
	pending := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		pending = append(pending, sub)
	}
	c.mu.Unlock()

	log.Printf("[StompClient] Connected to %s, restoring %d subscriptions", c.cfg.URL, len(pending))
	for _, sub := range pending {
		if err := c.sendSubscribe(conn, sub); err != nil {
			c.detach(conn)
			return fmt.Errorf("restoring subscription %s: %w", sub.topic, err)
		}
	}

	for {
		f, err := readFrame(conn, ka.wait)
		if err != nil {
			c.detach(conn)
			return err
		}

		switch f.Command {
		case frame.MESSAGE:
			c.dispatch(f)
		case frame.ERROR:
			c.detach(conn)
			return fmt.Errorf("broker error: %s", f.Header.Get(frame.Message))
		}
	}
}

// keepalive is the liveness contract agreed in the CONNECT exchange.
type keepalive struct {
	every     time.Duration // client write interval
	heartBeat bool          // send STOMP EOL heart-beats
	ping      bool          // send websocket pings; the broker sends no heart-beats
	wait      time.Duration // longest silence tolerated from the broker
}

// negotiate applies the STOMP 1.2 heart-beat rules to the broker's
// "sx,sy" answer. A broker that will not send heart-beats is checked with
// websocket pings instead, so a dead peer is still noticed.
func negotiate(want time.Duration, header string) keepalive {
	sx, sy := parseHeartBeat(header)
	ka := keepalive{every: want}
	if sy > 0 {
		ka.heartBeat = true
		ka.every = max(want, sy)
	}
	if sx > 0 {
		ka.wait = 2 * max(want, sx)
	} else {
		ka.ping = true
		ka.wait = 3 * ka.every
	}
	return ka
}

func parseHeartBeat(header string) (time.Duration, time.Duration) {
	sx, sy, ok := strings.Cut(header, ",")
	if !ok {
		return 0, 0
	}
	x, errX := strconv.Atoi(strings.TrimSpace(sx))
	y, errY := strconv.Atoi(strings.TrimSpace(sy))
	if errX != nil || errY != nil || x < 0 || y < 0 {
		return 0, 0
	}
	return time.Duration(x) * time.Millisecond, time.Duration(y) * time.Millisecond
}

func (c *StompClient) keepAlive(conn *websocket.Conn, ka keepalive, done <-chan struct{}) {
	ticker := time.NewTicker(ka.every)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.stop:
			return
		case <-ticker.C:
		}

		if ka.heartBeat {
			if err := c.writeRaw(conn, []byte("\n")); err != nil {
				return
			}
		}
		if ka.ping {
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (c *StompClient) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
}

func (c *StompClient) dispatch(f *frame.Frame) {
	c.mu.Lock()
	sub := c.subs[f.Header.Get(frame.Subscription)]
	c.mu.Unlock()

	if sub == nil {
		metrics.MessagesReceived.WithLabelValues("stomp", "orphaned").Inc()
		return
	}

	env, err := DecodeEnvelope(f.Body)
	if err != nil {
		metrics.MessagesReceived.WithLabelValues("stomp", "malformed").Inc()
		log.Printf("[StompClient] Dropping message on %s: %v", sub.topic, err)
		return
	}

	if sub.deliver(env) {
		metrics.MessagesReceived.WithLabelValues("stomp", "delivered").Inc()
	}
}

func (c *StompClient) sendSubscribe(conn *websocket.Conn, sub *Subscription) error {
	f := frame.New(frame.SUBSCRIBE,
		frame.Id, sub.id,
		frame.Destination, sub.topic,
		frame.Ack, "auto",
	)
	if err := c.writeFrame(conn, f); err != nil {
		return err
	}
	sub.setLiveState(StateSubscribed)
	return nil
}

func (c *StompClient) setAll(st State) {
	c.mu.Lock()
	subs := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		sub.setLiveState(st)
	}
}

func (c *StompClient) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

func (c *StompClient) writeFrame(conn *websocket.Conn, f *frame.Frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}
	return c.writeRaw(conn, data)
}

func (c *StompClient) writeRaw(conn *websocket.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func encodeFrame(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// readFrame returns the next non heart-beat frame. Each websocket message
// carries exactly one STOMP frame. A positive wait bounds the silence before
// every message, heart-beats included.
func readFrame(conn *websocket.Conn, wait time.Duration) (*frame.Frame, error) {
	for {
		if wait > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(wait))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}

		f, err := frame.NewReader(bytes.NewReader(data)).Read()
		if err != nil {
			return nil, fmt.Errorf("decoding frame: %w", err)
		}
		if f == nil {
			continue
		}
		return f, nil
	}
}
