// Copyright (c) 2025 Osql Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package querysession

import (
	"sync"

	"go.uber.org/zap"

	"osql/cli/internal/contracts"
	oserrors "osql/cli/internal/errors"
)

// State enumerates the phases of a query session.
type State int

const (
	// StateIdle is the phase before the backend acknowledges the query.
	StateIdle State = iota
	// StateAwaitingBatchStart waits for the next batch-start notification.
	StateAwaitingBatchStart
	// StateAccumulatingRows collects result sets, rows, and messages for the
	// currently open batch.
	StateAccumulatingRows
	// StateQueryComplete is terminal; all batches have been yielded.
	StateQueryComplete
)

// Options configure a Session.
type Options struct {
	// BufferSize is the capacity of the caller-facing batch channel.
	// Completed batches beyond it accumulate in an internal queue, bounded
	// by memory rather than by protocol deadline.
	BufferSize int
	// EmitEmptyBatches controls whether a batch with no result set and no
	// message appears in the output sequence.
	EmitEmptyBatches bool
	Logger           *zap.Logger
}

// Session owns the ordered batch buffer for one submitted SQL text.
// Notification callbacks run on the connection's reader goroutine and only
// append to the internal queue; a pump goroutine moves finished batches onto
// the bounded output channel the consumer iterates.
type Session struct {
	ownerURI  string
	queryText string
	emitEmpty bool
	logger    *zap.Logger

	mu           sync.Mutex
	cond         *sync.Cond
	state        State
	current      *Batch
	hasResultSet bool
	queue        []Batch
	finished     bool
	err          error

	out  chan Batch
	done chan struct{}
}

// New creates a Session for queryText on the connection identified by
// ownerURI and starts its pump goroutine.
func New(ownerURI, queryText string, opts Options) *Session {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 16
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Session{
		ownerURI:  ownerURI,
		queryText: queryText,
		emitEmpty: opts.EmitEmptyBatches,
		logger:    opts.Logger,
		state:     StateIdle,
		out:       make(chan Batch, opts.BufferSize),
		done:      make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.pump()
	return s
}

// OwnerURI returns the connection token this session belongs to.
func (s *Session) OwnerURI() string { return s.ownerURI }

// QueryText returns the SQL text submitted for this session.
func (s *Session) QueryText() string { return s.queryText }

// Batches returns the ordered, single-pass sequence of finished batches.
// The channel closes after the final batch; check Err afterwards. Consuming
// the sequence to exhaustion releases the session.
func (s *Session) Batches() <-chan Batch { return s.out }

// Done is closed once the session reached a terminal state and the output
// channel has been drained and closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the terminal error, if any. Valid after Batches closes.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Drain consumes any remaining batches. Callers abandoning iteration early
// must still drain (or cancel) so backend-side execution does not leak.
func (s *Session) Drain() {
	for range s.out {
	}
}

// pump moves finished batches from the internal queue onto the output
// channel. Blocking here is fine; the reader goroutine never enters pump.
func (s *Session) pump() {
	defer close(s.done)
	defer close(s.out)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.finished {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		b := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		s.out <- b
	}
}

// OnQueryStart handles the query/start notification.
func (s *Session) OnQueryStart(params contracts.QueryStartParams) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		s.logger.Warn("query start in unexpected state", zap.Int("state", int(s.state)))
	}
	s.state = StateAwaitingBatchStart
}

// OnBatchStart opens a new batch attributed to the backend-reported source
// text. The client never splits the submitted query on delimiters itself.
func (s *Session) OnBatchStart(params contracts.BatchStartParams) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	if s.current != nil {
		// Missing batch-complete; flush rather than lose accumulated data.
		s.logger.Warn("batch start while previous batch still open", zap.String("owner", s.ownerURI))
		s.enqueueLocked(*s.current)
	}
	s.current = &Batch{SourceText: params.SourceText}
	s.hasResultSet = false
	s.state = StateAccumulatingRows
}

// OnResultSetAvailable records column metadata for the open batch. A second
// result set inside the same backend batch (e.g. a stored procedure with two
// SELECTs) is surfaced as a distinct batch sharing the source text.
func (s *Session) OnResultSetAvailable(params contracts.ResultSetAvailableParams) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished || s.current == nil {
		s.logger.Warn("result set with no open batch", zap.String("owner", s.ownerURI))
		return
	}
	if s.hasResultSet {
		sourceText := s.current.SourceText
		s.enqueueLocked(*s.current)
		s.current = &Batch{SourceText: sourceText}
	}
	cols := make([]Column, 0, len(params.Columns))
	for _, c := range params.Columns {
		cols = append(cols, Column{Name: c.Name, DataType: c.DataType})
	}
	s.current.Columns = cols
	s.hasResultSet = true
}

// OnRowData appends a chunk of rows to the open batch. Order within a batch
// equals arrival order across however many chunks the backend sends.
func (s *Session) OnRowData(params contracts.RowDataParams) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished || s.current == nil {
		s.logger.Warn("row data with no open batch", zap.String("owner", s.ownerURI))
		return
	}
	s.current.Rows = append(s.current.Rows, params.Rows...)
}

// OnMessage attaches informational or error text. A message arriving outside
// any batch (a query-level failure) becomes its own error batch so the
// caller still sees it in sequence.
func (s *Session) OnMessage(params contracts.MessageParams) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	if s.current == nil {
		s.enqueueLocked(Batch{
			Message:    params.Message,
			SourceText: s.queryText,
			IsError:    params.IsError,
		})
		return
	}
	if s.current.Message == "" {
		s.current.Message = params.Message
	} else {
		s.current.Message += "\n" + params.Message
	}
	if params.IsError {
		s.current.IsError = true
	}
}

// OnBatchComplete freezes the open batch and yields it to the output
// sequence (subject to the empty-batch configuration).
func (s *Session) OnBatchComplete(params contracts.BatchCompleteParams) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished || s.current == nil {
		s.logger.Warn("batch complete with no open batch", zap.String("owner", s.ownerURI))
		return
	}
	if params.HasError {
		s.current.IsError = true
	}
	b := *s.current
	s.current = nil
	s.hasResultSet = false
	s.state = StateAwaitingBatchStart
	if b.empty() && !s.emitEmpty {
		return
	}
	s.enqueueLocked(b)
}

// OnQueryComplete signals end-of-sequence. A query producing zero batches
// (a no-op statement list) still terminates here.
func (s *Session) OnQueryComplete(params contracts.QueryCompleteParams) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	if s.current != nil {
		// Backend skipped batch-complete; surface what was accumulated.
		s.enqueueLocked(*s.current)
		s.current = nil
	}
	s.finished = true
	s.state = StateQueryComplete
	s.cond.Signal()
}

// Fail finalizes a mid-flight session with err. Batches already queued are
// still delivered, then the sequence ends and Err reports the failure, so no
// consumer blocks indefinitely.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	if s.err == nil {
		if oserrors.IsKind(err, oserrors.ConnectionClosed) || oserrors.IsKind(err, oserrors.Framing) || oserrors.IsKind(err, oserrors.Timeout) {
			s.err = err
		} else {
			s.err = oserrors.Wrap(oserrors.ConnectionClosed, "query session aborted", err)
		}
	}
	s.current = nil
	s.finished = true
	s.state = StateQueryComplete
	s.cond.Signal()
}

// enqueueLocked appends a finished batch and wakes the pump.
// Caller must hold s.mu.
func (s *Session) enqueueLocked(b Batch) {
	s.queue = append(s.queue, b)
	s.cond.Signal()
}
