// Copyright (c) 2025 Osql Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package jsonrpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	oserrors "osql/cli/internal/errors"
)

// headerContentLength is the only header the tools service requires. The
// exact casing, separator, and CRLF conventions are a wire compatibility
// contract and must not be changed.
const headerContentLength = "Content-Length"

// Writer frames and writes protocol messages onto the outbound stream.
// Writes are serialized; interleaved byte writes would corrupt framing.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter returns a Writer framing messages onto w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write serializes msg and writes it with a Content-Length header so the
// reader can determine the exact byte extent without scanning the payload.
func (fw *Writer) Write(msg *Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return oserrors.Wrap(oserrors.Framing, "encode message", err)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if _, err := fmt.Fprintf(fw.w, "%s: %d\r\n\r\n", headerContentLength, len(payload)); err != nil {
		return oserrors.Wrap(oserrors.ConnectionClosed, "write frame header", err)
	}
	if _, err := fw.w.Write(payload); err != nil {
		return oserrors.Wrap(oserrors.ConnectionClosed, "write frame payload", err)
	}
	return nil
}

// Reader decodes framed protocol messages from the inbound stream.
// It is not safe for concurrent use; exactly one reader drains a connection.
type Reader struct {
	br *bufio.Reader
}

// NewReader returns a Reader decoding messages from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Read blocks until one full message is available and decodes it.
// A malformed header, truncated payload, or invalid JSON is a Framing
// error and is fatal to the connection: partial frames cannot be
// resynchronized. A clean EOF before any header byte is reported as
// ConnectionClosed.
func (fr *Reader) Read() (*Message, error) {
	contentLen := -1
	first := true
	for {
		line, err := fr.br.ReadString('\n')
		if err != nil {
			if err == io.EOF && first && line == "" {
				return nil, oserrors.Wrap(oserrors.ConnectionClosed, "stream closed", io.EOF)
			}
			return nil, oserrors.Wrap(oserrors.Framing, "read frame header", err)
		}
		first = false
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, oserrors.New(oserrors.Framing, fmt.Sprintf("malformed header line %q", line))
		}
		if strings.EqualFold(strings.TrimSpace(name), headerContentLength) {
			n, convErr := strconv.Atoi(strings.TrimSpace(value))
			if convErr != nil || n < 0 {
				return nil, oserrors.New(oserrors.Framing, fmt.Sprintf("invalid content length %q", strings.TrimSpace(value)))
			}
			contentLen = n
		}
		// Unknown headers are tolerated for forward compatibility.
	}
	if contentLen < 0 {
		return nil, oserrors.New(oserrors.Framing, "missing Content-Length header")
	}

	payload := make([]byte, contentLen)
	if _, err := io.ReadFull(fr.br, payload); err != nil {
		return nil, oserrors.Wrap(oserrors.Framing, "truncated frame payload", err)
	}

	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, oserrors.Wrap(oserrors.Framing, "decode message payload", err)
	}
	return &msg, nil
}
