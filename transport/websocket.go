package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loomchat/loom/core"
	"github.com/loomchat/loom/logging"
	"github.com/loomchat/loom/run"
)

// closeGracePeriod bounds how long Cancel waits for the close frame write.
const closeGracePeriod = time.Second

// WebSocketOptions holds configuration overrides passed to NewWebSocket.
type WebSocketOptions struct {
	// Dialer performs the WebSocket handshake. Defaults to
	// websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// Header is sent with the handshake request (auth tokens, client info).
	Header http.Header
	// Logger receives transport diagnostics.
	Logger logging.Logger
}

// WebSocket opens runs over a WebSocket connection to the chat backend. Each
// run gets its own connection: the client sends a single start frame, then
// the server streams one JSON frame per protocol event until a terminal
// frame.
type WebSocket struct {
	url      string
	registry *run.Registry
	dialer   *websocket.Dialer
	header   http.Header
	logger   logging.Logger
}

// NewWebSocket constructs a WebSocket transport posting terminal results to
// registry.
func NewWebSocket(url string, registry *run.Registry, optFns ...func(o *WebSocketOptions)) *WebSocket {
	opts := WebSocketOptions{
		Dialer: websocket.DefaultDialer,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &WebSocket{
		url:      url,
		registry: registry,
		dialer:   opts.Dialer,
		header:   opts.Header,
		logger:   opts.Logger,
	}
}

// Open dials the backend, sends the start frame and returns a handle wired to
// the reading goroutine. The caller registers the handle; terminal frames and
// connection failures are reported through the registry, where the stale
// guard drops them if the run was superseded in the meantime.
func (t *WebSocket) Open(ctx context.Context, req OpenRequest) (*run.Handle, error) {
	conn, resp, err := t.dialer.DialContext(ctx, t.url, t.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", t.url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", t.url, err)
	}

	start := startFrame{
		Type:     "start",
		RoomID:   req.RoomID,
		ThreadID: req.ThreadID,
		Message:  req.UserMessage,
		RunID:    req.ExistingRunID,
	}
	if err := conn.WriteJSON(start); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send start frame: %w", err)
	}

	sub := newWSSubscription(conn)
	h := run.NewHandle(req.Key(), req.SeedConversation(), sub, func(o *run.HandleOptions) {
		if req.ExistingRunID != "" {
			o.RunID = req.ExistingRunID
		}
		o.Logger = t.logger
	})

	go t.readLoop(h, conn, sub)

	t.logger.Debug("run stream opened key=%s run_id=%s", req.Key(), h.RunID())
	return h, nil
}

// readLoop drains the connection, folding each decoded event into the handle.
// It exits on the terminal frame, on connection failure, or on cancellation
// through the subscription.
func (t *WebSocket) readLoop(h *run.Handle, conn *websocket.Conn, sub *wsSubscription) {
	defer close(sub.done)
	defer sub.closeConn()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if sub.isCancelled() {
				return
			}
			// The run did not finish; surface the broken stream as a failure.
			t.registry.Complete(h, core.Failed{
				Err:        fmt.Errorf("event stream closed: %w", err),
				StackTrace: logging.CaptureStack(),
			})
			return
		}

		ev, err := DecodeFrame(data)
		if err != nil {
			t.logger.Warn("dropping undecodable frame key=%s err=%v", h.Key(), err)
			continue
		}

		h.Fold(ev)

		switch e := ev.(type) {
		case core.RunFinishedEvent:
			t.registry.Complete(h, core.Success{Conversation: e.Conversation})
			return
		case core.RunErrorEvent:
			t.registry.Complete(h, core.Failed{Err: e.Err, StackTrace: e.StackTrace})
			return
		}
	}
}

// wsSubscription tears down one run's connection and reader goroutine. Cancel
// never touches the registry; the read loop's own completion path goes
// through the stale guard instead.
type wsSubscription struct {
	conn *websocket.Conn
	done chan struct{}

	mu        sync.Mutex
	cancelled bool
	closeOnce sync.Once
}

func newWSSubscription(conn *websocket.Conn) *wsSubscription {
	return &wsSubscription{conn: conn, done: make(chan struct{})}
}

func (s *wsSubscription) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *wsSubscription) closeConn() {
	s.closeOnce.Do(func() { _ = s.conn.Close() })
}

// Cancel closes the connection and waits for the reader goroutine to exit.
// Idempotent; bounded by ctx.
func (s *wsSubscription) Cancel(ctx context.Context) error {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()

	deadline := time.Now().Add(closeGracePeriod)
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		deadline,
	)
	s.closeConn()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
