// Copyright (c) 2025 Osql Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package jsonrpc implements the client side of the length-framed JSON-RPC
// protocol spoken by the SQL tools service over its stdin/stdout pipes.
// It provides message framing, request/response correlation against a
// pending-request table, and routing of unsolicited notifications to
// registered handlers.
//
// One Client owns one connection: a single reader goroutine is the sole
// decoder of the inbound stream, and concurrent request senders are
// serialized onto the outbound stream. Fulfilling a pending request is a
// non-blocking handoff so a slow caller can never stall delivery of
// unrelated messages.
package jsonrpc

import "encoding/json"

// Version is the JSON-RPC protocol version sent with every message.
const Version = "2.0"

// RPCError is the error payload of a failed response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

// Message is the wire form shared by requests, responses, and notifications.
// The variant is discriminated by field presence: a request has an ID and a
// method, a response has an ID and no method, a notification has a method
// and no ID.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// IsResponse reports whether the message answers an outstanding request.
func (m *Message) IsResponse() bool { return m.ID != nil && m.Method == "" }

// IsNotification reports whether the message is an unsolicited notification.
func (m *Message) IsNotification() bool { return m.ID == nil && m.Method != "" }

// NewRequest builds a request message with the given id, method and encoded params.
func NewRequest(id uint64, method string, params json.RawMessage) *Message {
	return &Message{JSONRPC: Version, ID: &id, Method: method, Params: params}
}

// NewNotification builds a notification message.
func NewNotification(method string, params json.RawMessage) *Message {
	return &Message{JSONRPC: Version, Method: method, Params: params}
}
