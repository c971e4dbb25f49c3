package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

const responseType = "response"

// Message is the envelope for requests, responses and notifications.
// Responses carry the request ID and either Result or Error.
type Message struct {
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// RemoteError is an error reported by the signaling server.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("signal %s: %s", e.Method, e.Message)
}

type NotificationHandler func(method string, params json.RawMessage)

type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

func (o *Options) withDefaults() {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
}

// Client is a websocket signaling connection to the room server.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	opts Options

	mu       sync.RWMutex
	closed   bool
	pending  map[string]chan Message
	onNotify NotificationHandler

	cancel context.CancelFunc
	done   chan struct{}
}

func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signal %s: %w", url, err)
	}
	log.Info().Str("module", "signal").Str("url", url).Msg("connected")
	return NewClient(ctx, ws, opts), nil
}

// NewClient takes ownership of ws and starts its pumps. The connection lives
// until ctx is done or Close is called.
func NewClient(ctx context.Context, ws *websocket.Conn, opts Options) *Client {
	opts.withDefaults()
	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		conn:    ws,
		send:    make(chan []byte, opts.SendBuffer),
		opts:    opts,
		pending: make(map[string]chan Message),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.writePump(ctx)
	go c.readPump(ctx)
	return c
}

// OnNotification sets the handler for server-initiated messages.
func (c *Client) OnNotification(fn NotificationHandler) {
	c.mu.Lock()
	c.onNotify = fn
	c.mu.Unlock()
}

func (c *Client) TrySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

// Notify sends a message that expects no response.
func (c *Client) Notify(method string, params any) error {
	return c.write(Message{Type: method}, params)
}

// Request sends method and waits for the matching response. result may be
// nil when the caller does not need the payload.
func (c *Client) Request(ctx context.Context, method string, params, result any) error {
	id := uuid.NewString()
	ch := make(chan Message, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(Message{Type: method, ID: id}, params); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("signal %s: %w", method, ctx.Err())
	case resp, ok := <-ch:
		if !ok {
			return ErrClosed
		}
		if resp.Error != "" {
			return &RemoteError{Method: method, Message: resp.Error}
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("signal %s: decode result: %w", method, err)
			}
		}
		return nil
	}
}

func (c *Client) write(msg Message, params any) error {
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("signal %s: encode params: %w", msg.Type, err)
		}
		msg.Params = b
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("signal %s: encode: %w", msg.Type, err)
	}
	return c.TrySend(b)
}

// Close fails pending requests and closes the socket. Safe to call twice.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
	c.cancel()
	close(c.done)
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) deliver(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.pending[msg.ID]
	if !ok || c.closed {
		log.Warn().Str("module", "signal").Str("id", msg.ID).Msg("response without pending request")
		return
	}
	delete(c.pending, msg.ID)
	ch <- msg
}

func (c *Client) notify(msg Message) {
	c.mu.RLock()
	fn := c.onNotify
	c.mu.RUnlock()
	if fn == nil {
		log.Debug().Str("module", "signal").Str("type", msg.Type).Msg("notification without handler")
		return
	}
	fn(msg.Type, msg.Params)
}
