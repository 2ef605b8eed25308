// Copyright (c) 2025 Osql Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package jsonrpc

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// NotificationHandler consumes one notification payload. Handlers run on the
// connection's reader goroutine and must only enqueue work and return; the
// query session machinery is the actual consumer of timing-sensitive events.
type NotificationHandler func(params json.RawMessage)

// Router maps notification method names to handlers and delivers
// notifications in the order they arrive from the reader loop.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]NotificationHandler
	logger   *zap.Logger
}

// NewRouter returns an empty Router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[string]NotificationHandler),
		logger:   logger,
	}
}

// Register installs the handler for method, replacing any previous one.
// Each notification is delivered to at most one handler.
func (r *Router) Register(method string, handler NotificationHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = handler
}

// Unregister removes the handler for method, if any.
func (r *Router) Unregister(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, method)
}

// dispatch delivers one notification. Methods without a registered handler
// are dropped with a diagnostic: the protocol may introduce notifications
// this client version does not need.
func (r *Router) dispatch(method string, params json.RawMessage) {
	r.mu.RLock()
	handler, ok := r.handlers[method]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debug("dropping notification with no handler", zap.String("method", method))
		return
	}
	handler(params)
}
