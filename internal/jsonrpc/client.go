// Copyright (c) 2025 Osql Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package jsonrpc

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"go.uber.org/zap"

	oserrors "osql/cli/internal/errors"
)

// pendingResult is the single-use outcome of one request: a result payload
// or an error, never both.
type pendingResult struct {
	result json.RawMessage
	err    error
}

// Pending identifies one in-flight request. The embedded channel is buffered
// so fulfilling it from the reader loop never blocks.
type Pending struct {
	ID uint64
	ch chan pendingResult
}

// Client correlates outbound requests with inbound responses over one framed
// connection and hands notifications to its Router. Exactly one background
// reader goroutine drains the inbound stream.
type Client struct {
	writer *Writer
	reader *Reader
	router *Router
	logger *zap.Logger

	mu      sync.Mutex
	pending map[uint64]*Pending
	nextID  uint64
	fatal   error

	closed   chan struct{}
	failOnce sync.Once
	onFatal  func(error)
}

// NewClient builds a Client over the given streams. Call Start to begin
// draining the inbound stream.
func NewClient(r io.Reader, w io.Writer, router *Router, logger *zap.Logger) *Client {
	return &Client{
		writer:  NewWriter(w),
		reader:  NewReader(r),
		router:  router,
		logger:  logger,
		pending: make(map[uint64]*Pending),
		closed:  make(chan struct{}),
	}
}

// OnFatal registers a hook invoked once when the connection dies. The hook
// runs after every pending request has been fulfilled with the fatal error.
// Must be called before Start.
func (c *Client) OnFatal(fn func(error)) { c.onFatal = fn }

// Start launches the background reader goroutine.
func (c *Client) Start() {
	go c.readLoop()
}

// Done is closed when the connection has failed and all waiters were released.
func (c *Client) Done() <-chan struct{} { return c.closed }

// Err returns the fatal connection error, or nil while the connection is live.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal
}

// SendRequest assigns a unique id, registers a pending entry, and writes the
// request. The entry is registered before the first byte goes out so a fast
// response can never race past its waiter.
func (c *Client) SendRequest(method string, params any) (*Pending, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, oserrors.Wrap(oserrors.Framing, "encode request params", err)
	}

	c.mu.Lock()
	if c.fatal != nil {
		err := c.fatal
		c.mu.Unlock()
		return nil, err
	}
	c.nextID++
	p := &Pending{ID: c.nextID, ch: make(chan pendingResult, 1)}
	c.pending[p.ID] = p
	c.mu.Unlock()

	if err := c.writer.Write(NewRequest(p.ID, method, payload)); err != nil {
		c.abandon(p.ID)
		return nil, err
	}
	c.logger.Debug("sent request", zap.Uint64("id", p.ID), zap.String("method", method))
	return p, nil
}

// SendNotification writes a fire-and-forget notification.
func (c *Client) SendNotification(method string, params any) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return oserrors.Wrap(oserrors.Framing, "encode notification params", err)
	}
	return c.writer.Write(NewNotification(method, payload))
}

// AwaitResponse suspends the caller until the request is fulfilled, the
// context expires, or the connection closes. An expired deadline abandons
// the pending entry so the table never leaks.
func (c *Client) AwaitResponse(ctx context.Context, p *Pending) (json.RawMessage, error) {
	select {
	case out := <-p.ch:
		return out.result, out.err
	case <-ctx.Done():
		c.abandon(p.ID)
		if ctx.Err() == context.DeadlineExceeded {
			return nil, oserrors.Wrap(oserrors.Timeout, "request did not resolve in time", ctx.Err())
		}
		return nil, ctx.Err()
	}
}

// Call sends a request and waits for its response.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	p, err := c.SendRequest(method, params)
	if err != nil {
		return nil, err
	}
	return c.AwaitResponse(ctx, p)
}

// Close tears the connection down, fulfilling every outstanding request with
// a ConnectionClosed error so no caller blocks forever. The owner of the
// underlying pipes is responsible for closing them.
func (c *Client) Close() {
	c.fail(oserrors.New(oserrors.ConnectionClosed, "client shut down"))
}

// abandon removes one pending entry without fulfilling it.
func (c *Client) abandon(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// readLoop is the sole decoder of the inbound stream. It dispatches each
// message and never blocks on a consumer: responses go into buffered
// one-shot channels, notifications into handlers that only enqueue.
func (c *Client) readLoop() {
	for {
		msg, err := c.reader.Read()
		if err != nil {
			c.fail(err)
			return
		}
		switch {
		case msg.IsResponse():
			c.fulfill(msg)
		case msg.IsNotification():
			c.router.dispatch(msg.Method, msg.Params)
		default:
			// Protocol violation; log and keep the reader alive.
			c.logger.Warn("discarding message that is neither response nor notification")
		}
	}
}

// fulfill resolves the pending entry matching the response id. A response
// carrying an unknown id is a protocol violation: reported, not fatal.
func (c *Client) fulfill(msg *Message) {
	id := *msg.ID
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		c.logger.Warn("response with no pending request", zap.Uint64("id", id))
		return
	}
	if msg.Error != nil {
		p.ch <- pendingResult{err: oserrors.Wrap(oserrors.RequestRejected, msg.Error.Message, msg.Error)}
		return
	}
	p.ch <- pendingResult{result: msg.Result}
}

// fail records the fatal error, drains the pending table by fulfilling every
// outstanding entry, and runs the fatal hook. Only the first failure wins.
func (c *Client) fail(err error) {
	c.failOnce.Do(func() {
		c.mu.Lock()
		c.fatal = err
		drained := make([]*Pending, 0, len(c.pending))
		for _, p := range c.pending {
			drained = append(drained, p)
		}
		c.pending = make(map[uint64]*Pending)
		c.mu.Unlock()

		for _, p := range drained {
			p.ch <- pendingResult{err: err}
		}
		close(c.closed)
		if c.onFatal != nil {
			c.onFatal(err)
		}
		c.logger.Debug("connection failed", zap.Error(err))
	})
}
