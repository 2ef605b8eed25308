// Copyright (c) 2025 Osql Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package client

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"osql/cli/internal/config"
	"osql/cli/internal/contracts"
	oserrors "osql/cli/internal/errors"
	"osql/cli/internal/jsonrpc"
	"osql/cli/internal/querysession"
)

// fakeService scripts the far side of the protocol: it answers connect,
// disconnect, and executeString requests and plays back the notification
// sequences a real tools service would emit.
type fakeService struct {
	reader *jsonrpc.Reader
	writer *jsonrpc.Writer

	// connectError, when set, is reported through connection/complete.
	connectError string
	// onExecute emits the query notification sequence for one submission.
	// rejectConnect makes the connect request itself fail instead of
	// resolving through connection/complete. Both guarded by mu so tests
	// can swap scripts between calls.
	mu            sync.Mutex
	onExecute     func(svc *fakeService, owner string)
	rejectConnect string
	// ignoreCancel drops query/cancel requests without answering.
	ignoreCancel bool

	toClient *io.PipeWriter
}

func (svc *fakeService) setOnExecute(fn func(svc *fakeService, owner string)) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.onExecute = fn
}

func (svc *fakeService) execute() func(svc *fakeService, owner string) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.onExecute
}

func (svc *fakeService) setRejectConnect(msg string) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.rejectConnect = msg
}

func (svc *fakeService) rejectConnectMessage() string {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.rejectConnect
}

// newClientWithService wires a Client to a fakeService over synchronous
// pipes and starts the service loop.
func newClientWithService(t *testing.T, svc *fakeService) *Client {
	t.Helper()

	serverOutR, serverOutW := io.Pipe()
	clientOutR, clientOutW := io.Pipe()

	svc.reader = jsonrpc.NewReader(clientOutR)
	svc.writer = jsonrpc.NewWriter(serverOutW)
	svc.toClient = serverOutW
	go svc.run()

	c, err := New(context.Background(), Options{
		Config: config.Config{
			BatchBufferSize:  4,
			EmitEmptyBatches: true,
		},
		Logger:   zap.NewNop(),
		OwnerURI: "test-owner",
		Reader:   serverOutR,
		Writer:   clientOutW,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		c.Shutdown()
		serverOutW.Close()
		clientOutW.Close()
	})
	return c
}

func (svc *fakeService) run() {
	for {
		msg, err := svc.reader.Read()
		if err != nil {
			return
		}
		switch msg.Method {
		case contracts.MethodConnect:
			var params contracts.ConnectParams
			_ = json.Unmarshal(msg.Params, &params)
			if reject := svc.rejectConnectMessage(); reject != "" {
				svc.respondError(msg, -32000, reject)
				continue
			}
			svc.respond(msg, `true`)
			complete := contracts.ConnectionCompleteParams{
				OwnerURI:     params.OwnerURI,
				ConnectionID: "fake-connection",
				ServerInfo:   &contracts.ServerInfo{ServerVersion: "16.0.1000", ServerEdition: "Developer"},
			}
			if svc.connectError != "" {
				complete = contracts.ConnectionCompleteParams{
					OwnerURI:     params.OwnerURI,
					ErrorMessage: svc.connectError,
				}
			}
			svc.notify(contracts.MethodConnectionComplete, complete)
		case contracts.MethodExecuteString:
			var params contracts.ExecuteStringParams
			_ = json.Unmarshal(msg.Params, &params)
			svc.respond(msg, `{}`)
			if fn := svc.execute(); fn != nil {
				fn(svc, params.OwnerURI)
			}
		case contracts.MethodDisconnect:
			svc.respond(msg, `{}`)
		case contracts.MethodCancel:
			if !svc.ignoreCancel {
				svc.respond(msg, `{"messages":"canceled"}`)
			}
		default:
			svc.respond(msg, `{}`)
		}
	}
}

func (svc *fakeService) respond(req *jsonrpc.Message, result string) {
	_ = svc.writer.Write(&jsonrpc.Message{
		JSONRPC: jsonrpc.Version,
		ID:      req.ID,
		Result:  json.RawMessage(result),
	})
}

func (svc *fakeService) respondError(req *jsonrpc.Message, code int, message string) {
	_ = svc.writer.Write(&jsonrpc.Message{
		JSONRPC: jsonrpc.Version,
		ID:      req.ID,
		Error:   &jsonrpc.RPCError{Code: code, Message: message},
	})
}

func (svc *fakeService) notify(method string, params any) {
	payload, _ := json.Marshal(params)
	_ = svc.writer.Write(jsonrpc.NewNotification(method, payload))
}

// emitSingleSelect plays the notification sequence for `select <n>`.
func emitSingleSelect(svc *fakeService, owner string, n int, text string) {
	svc.notify(contracts.MethodQueryStart, contracts.QueryStartParams{OwnerURI: owner})
	svc.notify(contracts.MethodBatchStart, contracts.BatchStartParams{OwnerURI: owner, SourceText: text})
	svc.notify(contracts.MethodResultSetAvailable, contracts.ResultSetAvailableParams{
		OwnerURI: owner,
		Columns:  []contracts.ColumnInfo{{Name: "n", DataType: "int"}},
	})
	svc.notify(contracts.MethodRowData, contracts.RowDataParams{OwnerURI: owner, Rows: [][]any{{n}}})
	svc.notify(contracts.MethodBatchComplete, contracts.BatchCompleteParams{OwnerURI: owner})
	svc.notify(contracts.MethodQueryComplete, contracts.QueryCompleteParams{OwnerURI: owner, BatchCount: 1})
}

func collectBatches(t *testing.T, s *querysession.Session) []querysession.Batch {
	t.Helper()
	var out []querysession.Batch
	timeout := time.After(5 * time.Second)
	for {
		select {
		case b, ok := <-s.Batches():
			if !ok {
				return out
			}
			out = append(out, b)
		case <-timeout:
			t.Fatalf("session did not terminate; got %d batches", len(out))
		}
	}
}

func testDetails() contracts.ConnectionDetails {
	return contracts.ConnectionDetails{
		ServerName:         "localhost",
		DatabaseName:       "master",
		UserName:           "sa",
		Password:           "Secret123",
		AuthenticationType: "SqlLogin",
	}
}

func TestConnectRoundTrip(t *testing.T) {
	t.Parallel()

	c := newClientWithService(t, &fakeService{})

	require.NoError(t, c.Connect(context.Background(), testDetails()))
	info := c.ServerInfo()
	require.NotNil(t, info)
	assert.Equal(t, "16.0.1000", info.ServerVersion)
	assert.Equal(t, "test-owner", c.OwnerURI())
}

func TestConnectReportsBackendFailure(t *testing.T) {
	t.Parallel()

	c := newClientWithService(t, &fakeService{
		connectError: "Login failed for user 'sa'.",
	})

	err := c.Connect(context.Background(), testDetails())
	require.Error(t, err)
	assert.True(t, oserrors.IsKind(err, oserrors.RequestRejected))
	assert.Contains(t, err.Error(), "Login failed")
	assert.Nil(t, c.ServerInfo())
}

func TestExecuteQueryFullFlow(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		onExecute: func(svc *fakeService, owner string) {
			svc.notify(contracts.MethodQueryStart, contracts.QueryStartParams{OwnerURI: owner})

			svc.notify(contracts.MethodBatchStart, contracts.BatchStartParams{OwnerURI: owner, SourceText: "select 1 as A union all select 2"})
			svc.notify(contracts.MethodResultSetAvailable, contracts.ResultSetAvailableParams{
				OwnerURI: owner,
				Columns:  []contracts.ColumnInfo{{Name: "A", DataType: "int"}},
			})
			svc.notify(contracts.MethodRowData, contracts.RowDataParams{OwnerURI: owner, Rows: [][]any{{1}, {2}}})
			svc.notify(contracts.MethodBatchComplete, contracts.BatchCompleteParams{OwnerURI: owner})

			svc.notify(contracts.MethodBatchStart, contracts.BatchStartParams{OwnerURI: owner, SourceText: "select 'x' as B"})
			svc.notify(contracts.MethodResultSetAvailable, contracts.ResultSetAvailableParams{
				OwnerURI: owner,
				Columns:  []contracts.ColumnInfo{{Name: "B", DataType: "varchar"}},
			})
			svc.notify(contracts.MethodRowData, contracts.RowDataParams{OwnerURI: owner, Rows: [][]any{{"x"}}})
			svc.notify(contracts.MethodBatchComplete, contracts.BatchCompleteParams{OwnerURI: owner})

			svc.notify(contracts.MethodQueryComplete, contracts.QueryCompleteParams{OwnerURI: owner, BatchCount: 2})
		},
	}
	c := newClientWithService(t, svc)
	require.NoError(t, c.Connect(context.Background(), testDetails()))

	session, err := c.ExecuteQuery(context.Background(), "select 1 as A union all select 2; select 'x' as B;")
	require.NoError(t, err)

	batches := collectBatches(t, session)
	require.Len(t, batches, 2)
	assert.Equal(t, "A", batches[0].Columns[0].Name)
	assert.Equal(t, [][]any{{float64(1)}, {float64(2)}}, batches[0].Rows)
	assert.Equal(t, "B", batches[1].Columns[0].Name)
	assert.Equal(t, [][]any{{"x"}}, batches[1].Rows)
	assert.NoError(t, session.Err())

	// query/complete released the registration; the connection accepts the
	// next query.
	svc.setOnExecute(func(svc *fakeService, owner string) {
		emitSingleSelect(svc, owner, 3, "select 3")
	})
	next, err := c.ExecuteQuery(context.Background(), "select 3")
	require.NoError(t, err)
	assert.Len(t, collectBatches(t, next), 1)
}

func TestExecuteQueryRequiresConnection(t *testing.T) {
	t.Parallel()

	c := newClientWithService(t, &fakeService{})
	_, err := c.ExecuteQuery(context.Background(), "select 1")
	require.Error(t, err)
}

func TestSecondConcurrentQueryRefused(t *testing.T) {
	t.Parallel()

	// The first query never completes, keeping its registration alive.
	svc := &fakeService{
		onExecute: func(svc *fakeService, owner string) {
			svc.notify(contracts.MethodQueryStart, contracts.QueryStartParams{OwnerURI: owner})
		},
	}
	c := newClientWithService(t, svc)
	require.NoError(t, c.Connect(context.Background(), testDetails()))

	first, err := c.ExecuteQuery(context.Background(), "waitfor delay '00:01'")
	require.NoError(t, err)

	_, err = c.ExecuteQuery(context.Background(), "select 1")
	require.Error(t, err, "one query per connection")

	first.Fail(oserrors.New(oserrors.ConnectionClosed, "test teardown"))
	first.Drain()
}

func TestServiceDeathFailsInFlightQuery(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		onExecute: func(svc *fakeService, owner string) {
			svc.notify(contracts.MethodQueryStart, contracts.QueryStartParams{OwnerURI: owner})
			svc.notify(contracts.MethodBatchStart, contracts.BatchStartParams{OwnerURI: owner, SourceText: "select 1"})
			// Process dies mid-query.
			svc.toClient.Close()
		},
	}
	c := newClientWithService(t, svc)
	require.NoError(t, c.Connect(context.Background(), testDetails()))

	session, err := c.ExecuteQuery(context.Background(), "select 1")
	require.NoError(t, err)

	collectBatches(t, session)
	err = session.Err()
	require.Error(t, err)
	assert.True(t, oserrors.IsConnectionClosed(err), "want connection closed, got %v", err)

	// The dead connection refuses further work.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = c.ExecuteQuery(ctx, "select 2")
	require.Error(t, err)
}

func TestCancelTimeoutFailsSession(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		ignoreCancel: true,
		onExecute: func(svc *fakeService, owner string) {
			svc.notify(contracts.MethodQueryStart, contracts.QueryStartParams{OwnerURI: owner})
		},
	}
	c := newClientWithService(t, svc)
	require.NoError(t, c.Connect(context.Background(), testDetails()))

	session, err := c.ExecuteQuery(context.Background(), "waitfor delay '00:01'")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = c.Cancel(ctx)
	require.Error(t, err)

	collectBatches(t, session)
	assert.True(t, oserrors.IsTimeout(session.Err()), "want timeout, got %v", session.Err())
}

func TestAcknowledgedCancelWithoutCompletionTimesOut(t *testing.T) {
	t.Parallel()

	// The backend acknowledges query/cancel but the canceled statement's
	// query/complete never shows up.
	svc := &fakeService{
		onExecute: func(svc *fakeService, owner string) {
			svc.notify(contracts.MethodQueryStart, contracts.QueryStartParams{OwnerURI: owner})
		},
	}
	c := newClientWithService(t, svc)
	c.cancelGrace = 200 * time.Millisecond
	require.NoError(t, c.Connect(context.Background(), testDetails()))

	session, err := c.ExecuteQuery(context.Background(), "waitfor delay '00:01'")
	require.NoError(t, err)

	require.NoError(t, c.Cancel(context.Background()))

	collectBatches(t, session)
	assert.True(t, oserrors.IsTimeout(session.Err()), "want timeout, got %v", session.Err())

	// The expired registration is released; the connection takes new work.
	svc.setOnExecute(func(svc *fakeService, owner string) {
		emitSingleSelect(svc, owner, 1, "select 1")
	})
	next, err := c.ExecuteQuery(context.Background(), "select 1")
	require.NoError(t, err)
	assert.Len(t, collectBatches(t, next), 1)
}

func TestCancelCompletionBeatsGracePeriod(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		onExecute: func(svc *fakeService, owner string) {
			svc.notify(contracts.MethodQueryStart, contracts.QueryStartParams{OwnerURI: owner})
		},
	}
	c := newClientWithService(t, svc)
	require.NoError(t, c.Connect(context.Background(), testDetails()))

	session, err := c.ExecuteQuery(context.Background(), "waitfor delay '00:01'")
	require.NoError(t, err)

	require.NoError(t, c.Cancel(context.Background()))
	svc.notify(contracts.MethodQueryComplete, contracts.QueryCompleteParams{OwnerURI: c.OwnerURI()})

	assert.Empty(t, collectBatches(t, session))
	assert.NoError(t, session.Err(), "completion after cancel is a normal end, not a timeout")
}

func TestConnectFailureClearsCompletionWaiter(t *testing.T) {
	t.Parallel()

	svc := &fakeService{rejectConnect: "connection limit reached"}
	c := newClientWithService(t, svc)

	err := c.Connect(context.Background(), testDetails())
	require.Error(t, err)

	c.mu.Lock()
	waiter := c.connWaiter
	c.mu.Unlock()
	assert.Nil(t, waiter, "failed connect must deregister its completion waiter")

	// A stray completion for the dead attempt is dropped rather than held
	// for the next one.
	svc.notify(contracts.MethodConnectionComplete, contracts.ConnectionCompleteParams{
		OwnerURI:     c.OwnerURI(),
		ErrorMessage: "stale failure",
	})
	time.Sleep(100 * time.Millisecond) // let the reader loop dispatch it

	svc.setRejectConnect("")
	require.NoError(t, c.Connect(context.Background(), testDetails()))
	info := c.ServerInfo()
	require.NotNil(t, info)
	assert.Equal(t, "16.0.1000", info.ServerVersion)
}

func TestDisconnectFailsInFlightSessions(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		onExecute: func(svc *fakeService, owner string) {
			svc.notify(contracts.MethodQueryStart, contracts.QueryStartParams{OwnerURI: owner})
		},
	}
	c := newClientWithService(t, svc)
	require.NoError(t, c.Connect(context.Background(), testDetails()))

	session, err := c.ExecuteQuery(context.Background(), "waitfor delay '00:01'")
	require.NoError(t, err)

	require.NoError(t, c.Disconnect(context.Background()))
	collectBatches(t, session)
	assert.True(t, oserrors.IsConnectionClosed(session.Err()))

	_, err = c.ExecuteQuery(context.Background(), "select 1")
	require.Error(t, err, "disconnected handle must refuse queries")
}

func TestResetKeepsOwnerURI(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		onExecute: func(svc *fakeService, owner string) {
			svc.notify(contracts.MethodQueryStart, contracts.QueryStartParams{OwnerURI: owner})
		},
	}
	c := newClientWithService(t, svc)
	require.NoError(t, c.Connect(context.Background(), testDetails()))
	owner := c.OwnerURI()

	session, err := c.ExecuteQuery(context.Background(), "waitfor delay '00:01'")
	require.NoError(t, err)

	require.NoError(t, c.Reset(context.Background()))
	assert.Equal(t, owner, c.OwnerURI())

	collectBatches(t, session)
	assert.True(t, oserrors.IsConnectionClosed(session.Err()))

	// The re-established connection runs queries again.
	svc.setOnExecute(func(svc *fakeService, owner string) {
		emitSingleSelect(svc, owner, 1, "select 1")
	})
	next, err := c.ExecuteQuery(context.Background(), "select 1")
	require.NoError(t, err)
	assert.Len(t, collectBatches(t, next), 1)
}
