// Copyright (c) 2025 Osql Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package client implements the connection lifecycle manager: it owns one
// logical tools service connection, issues connect/disconnect/cancel/reset
// requests through the protocol client, and exposes query execution as a
// lazy sequence of batches. The terminal layer consumes this package and
// never reaches into the correlator or framer directly.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"osql/cli/internal/config"
	"osql/cli/internal/contracts"
	oserrors "osql/cli/internal/errors"
	"osql/cli/internal/jsonrpc"
	"osql/cli/internal/querysession"
	"osql/cli/internal/telemetry"
	"osql/cli/internal/toolsservice"
)

// defaultConnectTimeout bounds Connect when the caller's context has no deadline.
const defaultConnectTimeout = 30 * time.Second

// defaultCancelTimeout bounds the advisory query/cancel round trip.
const defaultCancelTimeout = 5 * time.Second

// Options configure a Client.
type Options struct {
	Config config.Config
	Logger *zap.Logger
	// OwnerURI is the opaque token identifying this logical connection on
	// the backend. Defaults to a generated UUID.
	OwnerURI string
	// ExtraParams are caller-supplied extension parameters forwarded
	// opaquely into every connect request.
	ExtraParams map[string]any
	// Telemetry receives read-only summary events; may be nil.
	Telemetry *telemetry.Session
	// Reader and Writer override the protocol streams (used by tests and
	// callers that manage the subprocess themselves). When nil, a tools
	// service process is started and owned by the Client.
	Reader io.Reader
	Writer io.Writer
}

// Client drives one logical database connection on the tools service.
type Client struct {
	cfg         config.Config
	logger      *zap.Logger
	ownerURI    string
	extraParams map[string]any
	telemetry   *telemetry.Session

	proc     *toolsservice.Process
	rpc      *jsonrpc.Client
	router   *jsonrpc.Router
	registry *querysession.Registry

	// cancelGrace bounds the wait for query/complete after an acknowledged
	// cancel; shortened by tests.
	cancelGrace time.Duration

	mu         sync.Mutex
	connected  bool
	details    contracts.ConnectionDetails
	serverInfo *contracts.ServerInfo
	connWaiter chan contracts.ConnectionCompleteParams
}

// New builds a Client. Unless protocol streams are supplied, the tools
// service subprocess is started and owned by the returned Client.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.OwnerURI == "" {
		opts.OwnerURI = uuid.NewString()
	}

	c := &Client{
		cfg:         opts.Config,
		logger:      opts.Logger,
		ownerURI:    opts.OwnerURI,
		extraParams: opts.ExtraParams,
		telemetry:   opts.Telemetry,
		cancelGrace: defaultCancelTimeout,
	}

	r, w := opts.Reader, opts.Writer
	if r == nil || w == nil {
		proc, err := toolsservice.Start(ctx, opts.Config.ToolsServicePath, opts.Logger)
		if err != nil {
			return nil, err
		}
		c.proc = proc
		r, w = proc.Stdout(), proc.Stdin()
	}

	c.registry = querysession.NewRegistry(opts.Logger)
	c.router = jsonrpc.NewRouter(opts.Logger)
	c.registerHandlers()
	c.rpc = jsonrpc.NewClient(r, w, c.router, opts.Logger)
	c.rpc.OnFatal(c.onFatal)
	c.rpc.Start()
	return c, nil
}

// OwnerURI returns the connection token seen by the backend. Its identity is
// stable across Reset.
func (c *Client) OwnerURI() string { return c.ownerURI }

// ServerInfo returns the backend-reported server details after Connect.
func (c *Client) ServerInfo() *contracts.ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// Connect opens the database connection described by details, blocking until
// the backend resolves it to ready or failed.
func (c *Client) Connect(ctx context.Context, details contracts.ConnectionDetails) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
	}

	details.Options = mergeOptions(details.Options, c.extraParams)

	waiter := make(chan contracts.ConnectionCompleteParams, 1)
	c.mu.Lock()
	c.details = details
	c.connWaiter = waiter
	c.mu.Unlock()

	// Deregister the waiter on every exit path so a stray late
	// connection/complete cannot be delivered into an abandoned attempt or
	// misattributed to the next one.
	defer func() {
		c.mu.Lock()
		if c.connWaiter == waiter {
			c.connWaiter = nil
		}
		c.mu.Unlock()
	}()

	if _, err := c.rpc.Call(ctx, contracts.MethodConnect, contracts.ConnectParams{
		OwnerURI:   c.ownerURI,
		Connection: details,
	}); err != nil {
		return err
	}

	select {
	case complete := <-waiter:
		if complete.ErrorMessage != "" {
			return oserrors.New(oserrors.RequestRejected, complete.ErrorMessage)
		}
		c.mu.Lock()
		c.connected = true
		c.serverInfo = complete.ServerInfo
		c.mu.Unlock()
		if c.telemetry != nil {
			c.telemetry.SetServerInformation(complete.ServerInfo)
		}
		c.logger.Info("connected", zap.String("owner", c.ownerURI))
		return nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return oserrors.Wrap(oserrors.Timeout, "connection did not complete in time", ctx.Err())
		}
		return ctx.Err()
	case <-c.rpc.Done():
		return c.rpc.Err()
	}
}

// ExecuteQuery submits sqlText for execution and returns the session whose
// Batches channel yields one batch per statement, in backend order. The
// caller must consume the sequence to exhaustion (or Drain it) to release
// the session.
func (c *Client) ExecuteQuery(ctx context.Context, sqlText string) (*querysession.Session, error) {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return nil, fmt.Errorf("not connected")
	}

	session := querysession.New(c.ownerURI, sqlText, querysession.Options{
		BufferSize:       c.cfg.BatchBufferSize,
		EmitEmptyBatches: c.cfg.EmitEmptyBatches,
		Logger:           c.logger,
	})
	if err := c.registry.Register(session); err != nil {
		session.Fail(err)
		return nil, err
	}

	if _, err := c.rpc.Call(ctx, contracts.MethodExecuteString, contracts.ExecuteStringParams{
		OwnerURI: c.ownerURI,
		Query:    sqlText,
	}); err != nil {
		c.registry.Remove(c.ownerURI)
		session.Fail(err)
		return nil, err
	}
	return session, nil
}

// Cancel asks the backend to abandon the in-flight query. The request is
// advisory: on a timely acknowledgement the session still terminates through
// its own query/complete, while an unresponsive backend fails the session
// with a timeout so it can never hang.
func (c *Client) Cancel(ctx context.Context) error {
	session, inFlight := c.registry.Lookup(c.ownerURI)

	ctx, cancel := context.WithTimeout(ctx, defaultCancelTimeout)
	defer cancel()

	_, err := c.rpc.Call(ctx, contracts.MethodCancel, contracts.CancelParams{OwnerURI: c.ownerURI})
	if err != nil {
		if inFlight {
			c.registry.Expire(session, oserrors.Wrap(oserrors.Timeout, "cancel did not resolve", err))
		}
		return err
	}

	// An acknowledged cancel still resolves through the session's own
	// query/complete. A backend that acknowledges and then goes silent must
	// not strand the consumer, so the session expires after a grace period
	// when completion never arrives.
	if inFlight {
		time.AfterFunc(c.cancelGrace, func() {
			if c.registry.Expire(session, oserrors.New(oserrors.Timeout, "query did not complete after cancel")) {
				c.logger.Warn("query did not complete after acknowledged cancel", zap.String("owner", c.ownerURI))
			}
		})
	}
	return nil
}

// Reset tears down and re-establishes the backend connection without
// changing the owner token callers hold. An in-flight query session is
// finalized with a connection-closed error.
func (c *Client) Reset(ctx context.Context) error {
	c.registry.FailAll(oserrors.New(oserrors.ConnectionClosed, "connection reset"))

	c.mu.Lock()
	details := c.details
	c.connected = false
	c.mu.Unlock()

	if _, err := c.rpc.Call(ctx, contracts.MethodDisconnect, contracts.DisconnectParams{OwnerURI: c.ownerURI}); err != nil {
		c.logger.Warn("disconnect during reset failed", zap.Error(err))
	}
	return c.Connect(ctx, details)
}

// Disconnect invalidates the connection handle and releases all pending
// state. In-flight sessions are finalized with a connection-closed error.
func (c *Client) Disconnect(ctx context.Context) error {
	c.registry.FailAll(oserrors.New(oserrors.ConnectionClosed, "disconnected"))

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	_, err := c.rpc.Call(ctx, contracts.MethodDisconnect, contracts.DisconnectParams{OwnerURI: c.ownerURI})
	return err
}

// Shutdown releases the protocol client and stops the tools service process
// when this Client owns it. Every outstanding waiter is fulfilled with a
// connection-closed error.
func (c *Client) Shutdown() {
	c.rpc.Close()
	c.registry.FailAll(oserrors.New(oserrors.ConnectionClosed, "client shut down"))
	if c.proc != nil {
		c.proc.Stop()
	}
}

// onFatal broadcasts a fatal connection failure to the connect waiter and
// every in-flight query session.
func (c *Client) onFatal(err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.registry.FailAll(err)
}

// registerHandlers binds the notification methods of the wire contract to
// the session registry. Handlers run on the reader goroutine and only
// enqueue; they must never block.
func (c *Client) registerHandlers() {
	c.router.Register(contracts.MethodConnectionComplete, func(raw json.RawMessage) {
		var params contracts.ConnectionCompleteParams
		if !c.decode(contracts.MethodConnectionComplete, raw, &params) {
			return
		}
		c.mu.Lock()
		waiter := c.connWaiter
		c.connWaiter = nil
		c.mu.Unlock()
		if waiter == nil {
			c.logger.Warn("connection complete with no waiter", zap.String("owner", params.OwnerURI))
			return
		}
		waiter <- params
	})

	c.router.Register(contracts.MethodQueryStart, func(raw json.RawMessage) {
		var params contracts.QueryStartParams
		if !c.decode(contracts.MethodQueryStart, raw, &params) {
			return
		}
		if s, ok := c.registry.Lookup(params.OwnerURI); ok {
			s.OnQueryStart(params)
		}
	})

	c.router.Register(contracts.MethodBatchStart, func(raw json.RawMessage) {
		var params contracts.BatchStartParams
		if !c.decode(contracts.MethodBatchStart, raw, &params) {
			return
		}
		if s, ok := c.registry.Lookup(params.OwnerURI); ok {
			s.OnBatchStart(params)
		}
	})

	c.router.Register(contracts.MethodResultSetAvailable, func(raw json.RawMessage) {
		var params contracts.ResultSetAvailableParams
		if !c.decode(contracts.MethodResultSetAvailable, raw, &params) {
			return
		}
		if s, ok := c.registry.Lookup(params.OwnerURI); ok {
			s.OnResultSetAvailable(params)
		}
	})

	c.router.Register(contracts.MethodRowData, func(raw json.RawMessage) {
		var params contracts.RowDataParams
		if !c.decode(contracts.MethodRowData, raw, &params) {
			return
		}
		if s, ok := c.registry.Lookup(params.OwnerURI); ok {
			s.OnRowData(params)
		}
	})

	c.router.Register(contracts.MethodMessage, func(raw json.RawMessage) {
		var params contracts.MessageParams
		if !c.decode(contracts.MethodMessage, raw, &params) {
			return
		}
		if s, ok := c.registry.Lookup(params.OwnerURI); ok {
			s.OnMessage(params)
		}
	})

	c.router.Register(contracts.MethodBatchComplete, func(raw json.RawMessage) {
		var params contracts.BatchCompleteParams
		if !c.decode(contracts.MethodBatchComplete, raw, &params) {
			return
		}
		if s, ok := c.registry.Lookup(params.OwnerURI); ok {
			s.OnBatchComplete(params)
		}
	})

	c.router.Register(contracts.MethodQueryComplete, func(raw json.RawMessage) {
		var params contracts.QueryCompleteParams
		if !c.decode(contracts.MethodQueryComplete, raw, &params) {
			return
		}
		if s, ok := c.registry.Lookup(params.OwnerURI); ok {
			s.OnQueryComplete(params)
			c.registry.Remove(params.OwnerURI)
		}
	})
}

// decode unmarshals notification params, logging and dropping bad payloads
// so one malformed notification cannot kill the reader loop.
func (c *Client) decode(method string, raw json.RawMessage, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		c.logger.Warn("malformed notification params", zap.String("method", method), zap.Error(err))
		return false
	}
	return true
}

// mergeOptions overlays extension params onto connection options without
// mutating either input.
func mergeOptions(base, extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return base
	}
	merged := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
