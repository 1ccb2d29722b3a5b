// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

// Package exec implements the pipelined executor: the component that
// fans a split aggregation out across local and remote shards, with
// bounded concurrency, replica failover, and first-error cancellation.
// It is the direct counterpart of the original source's
// PipelinedExpression.
package exec

import (
	"context"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/mastermind1981/eventql/engine"
	"github.com/mastermind1981/eventql/eqerr"
	"github.com/mastermind1981/eventql/qtree"
)

// DefaultMaxConcurrency is the pipelined executor's default bound on the
// number of shards dispatched at once (Open Question 4, resolved in
// DESIGN.md).
const DefaultMaxConcurrency = 32

// Transport dispatches a cloned query subtree to a remote host and writes
// the rows it streams back to out. Package transport supplies a
// wire-capable implementation; spec.md declares the RPC layer itself out
// of scope, so Transport is the narrow interface the executor needs
// rather than a concrete dependency on it.
type Transport interface {
	Dispatch(ctx context.Context, host string, auth engine.AuthContext, stmt qtree.Node, out engine.RowWriter) error
}

// Shard is one partition's worth of a split plan: either a local
// TableExpression ready to execute in-process, or a cloned query subtree
// plus its replica host list to dispatch remotely.
type Shard struct {
	IsLocal bool

	// Local is set when IsLocal is true: the already-built partial
	// aggregation expression to run in-process.
	Local engine.TableExpression

	// Stmt and Hosts are set when IsLocal is false: the cloned subtree to
	// dispatch, and the ordered list of replica hosts to try.
	Stmt  qtree.Node
	Hosts []string
}

// PipelinedExpression runs a set of shards with bounded concurrency,
// collecting every shard's output rows into a single RowWriter. It
// implements engine.TableExpression, so it composes into the expression
// tree the same way any other TableExpression does (typically wrapped by
// expression.GroupByMerge, which re-aggregates the partial rows it
// produces).
type PipelinedExpression struct {
	Namespace      string
	Transport      Transport
	Auth           engine.AuthContext
	MaxConcurrency int
	Logger         *zap.Logger

	shards []Shard
}

// NewPipelinedExpression returns a PipelinedExpression dispatching
// through the given Transport on behalf of auth, bounding concurrency to
// maxConcurrency (DefaultMaxConcurrency if <= 0).
func NewPipelinedExpression(namespace string, transport Transport, auth engine.AuthContext, maxConcurrency int, logger *zap.Logger) *PipelinedExpression {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PipelinedExpression{
		Namespace:      namespace,
		Transport:      transport,
		Auth:           auth,
		MaxConcurrency: maxConcurrency,
		Logger:         logger,
	}
}

// AddLocalQuery registers a shard to be executed in-process.
func (p *PipelinedExpression) AddLocalQuery(expr engine.TableExpression) {
	p.shards = append(p.shards, Shard{IsLocal: true, Local: expr})
}

// AddRemoteQuery registers a shard to be dispatched to one of hosts.
func (p *PipelinedExpression) AddRemoteQuery(stmt qtree.Node, hosts []string) {
	p.shards = append(p.shards, Shard{IsLocal: false, Stmt: stmt, Hosts: hosts})
}

// NumShards returns the number of shards registered so far.
func (p *PipelinedExpression) NumShards() int { return len(p.shards) }

// Execute runs every registered shard, bounding the number running
// concurrently to MaxConcurrency, and writes every row any shard produces
// to out. The RowWriter must be safe for concurrent use: shards write to
// it from separate goroutines. If any shard fails (a remote shard only
// after exhausting its replicas), Execute cancels the remaining shards
// and returns the first error observed; a remote shard's error combines
// the failures of each of its replica hosts.
func (p *PipelinedExpression) Execute(ctx context.Context, out engine.RowWriter) error {
	sem := semaphore.NewWeighted(int64(p.MaxConcurrency))
	group, gctx := errgroup.WithContext(ctx)

	for i := range p.shards {
		shard := p.shards[i]
		group.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			return p.runShard(gctx, shard, out)
		})
	}

	return group.Wait()
}

func (p *PipelinedExpression) runShard(ctx context.Context, shard Shard, out engine.RowWriter) error {
	if shard.IsLocal {
		return shard.Local.Execute(ctx, out)
	}
	return p.dispatchRemote(ctx, shard, out)
}

// dispatchRemote tries each of shard.Hosts in order, backing off between
// attempts, until one succeeds or the list is exhausted.
func (p *PipelinedExpression) dispatchRemote(ctx context.Context, shard Shard, out engine.RowWriter) error {
	if len(shard.Hosts) == 0 {
		return eqerr.ErrShardDispatchFailed.New("no replica hosts configured")
	}

	var errs error
	for _, host := range shard.Hosts {
		b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
		err := backoff.Retry(func() error {
			return p.Transport.Dispatch(ctx, host, p.Auth, shard.Stmt, out)
		}, b)
		if err == nil {
			return nil
		}
		p.Logger.Warn("shard dispatch failed, trying next replica",
			zap.String("host", host), zap.Error(err))
		errs = multierror.Append(errs, fmt.Errorf("host %s: %w", host, err))
	}
	return fmt.Errorf("%w: %v", eqerr.ErrShardDispatchFailed.New(strings.Join(shard.Hosts, ",")), errs)
}
