package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pfpgofer/internal/jsonrpc"
)

var errWSClosed = errors.New("WebSocket connection closed")

// wsTransport multiplexes JSON-RPC requests over one WebSocket connection.
// The connection is dialed on first use and redialed after it drops.
type wsTransport struct {
	url         string
	readTimeout time.Duration
	logger      zerolog.Logger

	conn    *websocket.Conn
	connMu  sync.Mutex
	writeMu sync.Mutex

	pending   map[int64]chan *jsonrpc.Response
	pendingMu sync.Mutex
	reqID     int64

	closed atomic.Bool
}

func newWSTransport(url string, readTimeout time.Duration, logger zerolog.Logger) *wsTransport {
	return &wsTransport{
		url:         url,
		readTimeout: readTimeout,
		logger:      logger,
		pending:     make(map[int64]chan *jsonrpc.Response),
	}
}

// connect returns the live connection, dialing if needed
func (t *wsTransport) connect(ctx context.Context) (*websocket.Conn, error) {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.closed.Load() {
		return nil, errWSClosed
	}
	if t.conn != nil {
		return t.conn, nil
	}

	t.logger.Debug().Str("url", t.url).Msg("WebSocket connecting")
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect WebSocket: %w", err)
	}

	t.conn = conn
	go t.readLoop(conn)
	t.logger.Debug().Str("url", t.url).Msg("WebSocket connected")
	return conn, nil
}

// Execute sends a request and waits for the response with the matching id
func (t *wsTransport) Execute(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	conn, err := t.connect(ctx)
	if err != nil {
		return nil, err
	}

	reqID := atomic.AddInt64(&t.reqID, 1)
	respChan := make(chan *jsonrpc.Response, 1)

	t.pendingMu.Lock()
	t.pending[reqID] = respChan
	t.pendingMu.Unlock()

	reqBytes, err := req.WithID(jsonrpc.NewIDInt(reqID)).Bytes()
	if err != nil {
		t.dropPending(reqID)
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	t.writeMu.Lock()
	writeErr := conn.WriteMessage(websocket.TextMessage, reqBytes)
	t.writeMu.Unlock()
	if writeErr != nil {
		t.dropPending(reqID)
		return nil, fmt.Errorf("failed to send request: %w", writeErr)
	}

	select {
	case resp := <-respChan:
		if resp == nil {
			return nil, errWSClosed
		}
		resp.ID = req.ID
		return resp, nil
	case <-ctx.Done():
		t.dropPending(reqID)
		return nil, ctx.Err()
	}
}

func (t *wsTransport) dropPending(id int64) {
	t.pendingMu.Lock()
	delete(t.pending, id)
	t.pendingMu.Unlock()
}

func (t *wsTransport) readLoop(conn *websocket.Conn) {
	defer t.reset(conn)

	for {
		if t.readTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(t.readTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !t.closed.Load() {
				t.logger.Warn().Err(err).Str("url", t.url).Msg("WebSocket read failed")
			}
			return
		}

		resp, err := jsonrpc.ParseResponse(data)
		if err != nil {
			t.logger.Debug().Err(err).Msg("ignoring unparseable WebSocket message")
			continue
		}
		id, ok := resp.ID.Int()
		if !ok {
			continue
		}

		t.pendingMu.Lock()
		ch, found := t.pending[id]
		delete(t.pending, id)
		t.pendingMu.Unlock()

		if found {
			ch <- resp
		}
	}
}

// reset drops a dead connection and fails every request still waiting on it
func (t *wsTransport) reset(conn *websocket.Conn) {
	t.connMu.Lock()
	if t.conn == conn {
		t.conn = nil
	}
	t.connMu.Unlock()
	conn.Close()

	t.pendingMu.Lock()
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
	t.pendingMu.Unlock()
}

// Close closes the connection; subsequent requests fail
func (t *wsTransport) Close() {
	t.closed.Store(true)
	t.connMu.Lock()
	conn := t.conn
	t.conn = nil
	t.connMu.Unlock()

	if conn != nil {
		t.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		t.writeMu.Unlock()
		conn.Close()
	}
}
