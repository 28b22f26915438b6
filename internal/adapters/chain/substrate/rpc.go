// Package substrate reads blocks from a Substrate node over JSON-RPC on a
// websocket and finds the balance transfers of a wallet.
package substrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/dotrep/internal/adapters/chain"
	"github.com/okian/dotrep/pkg/metrics"
)

const (
	writeWait    = 10 * time.Second
	maxReadBytes = 16 << 20
)

var errClientClosed = errors.New("rpc connection closed")

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client is a JSON-RPC 2.0 client multiplexing calls over one websocket.
// It is safe for concurrent use.
type Client struct {
	conn   *websocket.Conn
	nextID atomic.Uint64

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint64]chan response
	err     error
	closed  chan struct{}
}

// Dial connects to a websocket RPC endpoint.
func Dial(ctx context.Context, endpoint string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", chain.ErrUpstream, endpoint, err)
	}
	conn.SetReadLimit(maxReadBytes)

	c := &Client{
		conn:    conn,
		pending: make(map[uint64]chan response),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Call invokes method and decodes the result into out. A nil out discards the
// result.
func (c *Client) Call(ctx context.Context, out any, method string, params ...any) error {
	err := c.call(ctx, out, method, params)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordRPCCall(method, status)
	return err
}

func (c *Client) call(ctx context.Context, out any, method string, params []any) error {
	if params == nil {
		params = []any{}
	}
	id := c.nextID.Add(1)
	ch := make(chan response, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return fmt.Errorf("%w: %s: %w", chain.ErrUpstream, method, err)
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer c.forget(id)

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteJSON(request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %s: write: %w", chain.ErrUpstream, method, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return fmt.Errorf("%w: %s: rpc error %d: %s", chain.ErrUpstream, method, resp.Error.Code, resp.Error.Message)
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("%w: %s: decode result: %w", chain.ErrUpstream, method, err)
		}
		return nil
	case <-c.closed:
		return fmt.Errorf("%w: %s: %w", chain.ErrUpstream, method, c.Err())
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	for {
		var resp response
		if err := c.conn.ReadJSON(&resp); err != nil {
			c.fail(err)
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		c.mu.Unlock()
		// Responses for abandoned calls and subscription pushes have no
		// waiter. A repeated id finds the slot taken and is dropped.
		if ok {
			select {
			case ch <- resp:
			default:
			}
		}
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		err = errClientClosed
	}
	c.err = err
	close(c.closed)
}

// Err returns the error that broke the connection, or nil while it is usable.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close closes the connection. Pending calls fail.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.writeMu.Unlock()
	err := c.conn.Close()
	c.fail(errClientClosed)
	return err
}
