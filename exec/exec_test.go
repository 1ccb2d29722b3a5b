// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

package exec

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mastermind1981/eventql/engine"
	"github.com/mastermind1981/eventql/qtree"
)

// localTable is a TableExpression that just writes a fixed row, the local
// shard side of PipelinedExpression.
type localTable struct {
	row engine.Row
}

func (t localTable) Execute(ctx context.Context, out engine.RowWriter) error {
	return out.WriteRow(t.row)
}

// collectWriter is a concurrency-safe RowWriter, matching the contract
// PipelinedExpression.Execute documents for its argument.
type collectWriter struct {
	mu   sync.Mutex
	rows []engine.Row
}

func (w *collectWriter) WriteRow(row engine.Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = append(w.rows, row)
	return nil
}

func (w *collectWriter) Rows() []engine.Row {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]engine.Row(nil), w.rows...)
}

// fakeTransport dispatches by consulting a table of host -> outcome: a
// fixed row to write, or an error to return. Every call is counted so
// tests can assert on which hosts were actually tried.
type fakeTransport struct {
	mu       sync.Mutex
	calls    map[string]int
	rowFor   map[string]engine.Row
	errFor   map[string]error
	blockAll chan struct{} // if non-nil, Dispatch blocks on it before proceeding
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		calls:  make(map[string]int),
		rowFor: make(map[string]engine.Row),
		errFor: make(map[string]error),
	}
}

func (f *fakeTransport) Dispatch(ctx context.Context, host string, auth engine.AuthContext, stmt qtree.Node, out engine.RowWriter) error {
	f.mu.Lock()
	f.calls[host]++
	f.mu.Unlock()

	if f.blockAll != nil {
		select {
		case <-f.blockAll:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err, ok := f.errFor[host]; ok {
		return err
	}
	if row, ok := f.rowFor[host]; ok {
		return out.WriteRow(row)
	}
	return nil
}

func (f *fakeTransport) callCount(host string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[host]
}

func TestPipelinedExpressionRunsLocalAndRemoteShards(t *testing.T) {
	transport := newFakeTransport()
	transport.rowFor["replica-1"] = engine.Row{"host": "remote"}

	p := NewPipelinedExpression("demo", transport, nil, 4, nil)
	p.AddLocalQuery(localTable{row: engine.Row{"host": "local"}})
	p.AddRemoteQuery(&qtree.SequentialScan{TableName: "events"}, []string{"replica-1"})

	require.Equal(t, 2, p.NumShards())

	var out collectWriter
	require.NoError(t, p.Execute(context.Background(), &out))

	rows := out.Rows()
	require.Len(t, rows, 2)
	hosts := []string{rows[0]["host"].(string), rows[1]["host"].(string)}
	require.ElementsMatch(t, []string{"local", "remote"}, hosts)
}

func TestPipelinedExpressionFailsOverToNextReplica(t *testing.T) {
	transport := newFakeTransport()
	transport.errFor["replica-1"] = errors.New("connection refused")
	transport.rowFor["replica-2"] = engine.Row{"host": "replica-2"}

	p := NewPipelinedExpression("demo", transport, nil, 4, nil)
	p.AddRemoteQuery(&qtree.SequentialScan{TableName: "events"}, []string{"replica-1", "replica-2"})

	var out collectWriter
	require.NoError(t, p.Execute(context.Background(), &out))

	rows := out.Rows()
	require.Len(t, rows, 1)
	require.Equal(t, "replica-2", rows[0]["host"])
	require.GreaterOrEqual(t, transport.callCount("replica-1"), 1)
	require.GreaterOrEqual(t, transport.callCount("replica-2"), 1)
}

func TestPipelinedExpressionReturnsErrorWhenAllReplicasFail(t *testing.T) {
	transport := newFakeTransport()
	transport.errFor["replica-1"] = errors.New("boom")
	transport.errFor["replica-2"] = errors.New("boom")

	p := NewPipelinedExpression("demo", transport, nil, 4, nil)
	p.AddRemoteQuery(&qtree.SequentialScan{TableName: "events"}, []string{"replica-1", "replica-2"})

	var out collectWriter
	err := p.Execute(context.Background(), &out)

	require.Error(t, err)
	require.Empty(t, out.Rows())
}

func TestPipelinedExpressionNoHostsIsAnError(t *testing.T) {
	transport := newFakeTransport()

	p := NewPipelinedExpression("demo", transport, nil, 4, nil)
	p.AddRemoteQuery(&qtree.SequentialScan{TableName: "events"}, nil)

	var out collectWriter
	err := p.Execute(context.Background(), &out)

	require.Error(t, err)
}

func TestPipelinedExpressionBoundsConcurrency(t *testing.T) {
	const maxConcurrency = 2
	const numShards = 8

	var current, peak int64
	transport := newFakeTransport()
	gate := make(chan struct{})
	transport.blockAll = gate

	p := NewPipelinedExpression("demo", transport, nil, maxConcurrency, nil)
	for i := 0; i < numShards; i++ {
		p.AddRemoteQuery(&qtree.SequentialScan{TableName: "events"}, []string{"replica"})
	}

	// wrap Dispatch via a second fake that tracks concurrency, since
	// fakeTransport itself blocks on the shared gate channel.
	tracker := &trackingTransport{inner: transport, current: &current, peak: &peak}
	p.Transport = tracker

	done := make(chan error, 1)
	var out collectWriter
	go func() { done <- p.Execute(context.Background(), &out) }()

	// open the gate right away; only the semaphore limits how many
	// Dispatch calls overlap, so the recorded peak must stay within it.
	close(gate)
	require.NoError(t, <-done)

	require.LessOrEqual(t, atomic.LoadInt64(&peak), int64(maxConcurrency))
}

type trackingTransport struct {
	inner   Transport
	current *int64
	peak    *int64
}

func (t *trackingTransport) Dispatch(ctx context.Context, host string, auth engine.AuthContext, stmt qtree.Node, out engine.RowWriter) error {
	n := atomic.AddInt64(t.current, 1)
	for {
		p := atomic.LoadInt64(t.peak)
		if n <= p || atomic.CompareAndSwapInt64(t.peak, p, n) {
			break
		}
	}
	defer atomic.AddInt64(t.current, -1)
	return t.inner.Dispatch(ctx, host, auth, stmt, out)
}

func TestPipelinedExpressionCancelsRemainingShardsOnFirstError(t *testing.T) {
	transport := newFakeTransport()
	transport.errFor["bad"] = errors.New("boom")

	block := make(chan struct{})
	blocked := &blockingTransport{ch: block}

	p := NewPipelinedExpression("demo", transport, nil, 8, nil)
	p.Transport = &mixedTransport{bad: transport, blocked: blocked}
	p.AddRemoteQuery(&qtree.SequentialScan{TableName: "events"}, []string{"bad"})
	p.AddRemoteQuery(&qtree.SequentialScan{TableName: "events"}, []string{"slow"})

	var out collectWriter
	err := p.Execute(context.Background(), &out)
	require.Error(t, err)
}

type blockingTransport struct{ ch chan struct{} }

func (b *blockingTransport) Dispatch(ctx context.Context, host string, auth engine.AuthContext, stmt qtree.Node, out engine.RowWriter) error {
	select {
	case <-b.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mixedTransport routes "bad" to an immediately-failing transport and
// everything else to one that blocks until the group's context is
// cancelled, proving Execute's errgroup cancels sibling shards on the
// first failure rather than waiting for them to finish normally.
type mixedTransport struct {
	bad     Transport
	blocked Transport
}

func (m *mixedTransport) Dispatch(ctx context.Context, host string, auth engine.AuthContext, stmt qtree.Node, out engine.RowWriter) error {
	if host == "bad" {
		return m.bad.Dispatch(ctx, host, auth, stmt, out)
	}
	return m.blocked.Dispatch(ctx, host, auth, stmt, out)
}
