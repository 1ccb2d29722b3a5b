// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

// Package eqerr defines the named error categories the scheduler raises.
// Each Kind wraps a message with errors.NewKind so callers can test for a
// category with the Kind's Is method (e.g. ErrTableNotFound.Is(err))
// rather than matching on string text.
package eqerr

import goerrors "gopkg.in/src-d/go-errors.v1"

var (
	// ErrTableNotFound is raised when a table reference cannot be resolved
	// against the partition map.
	ErrTableNotFound = goerrors.NewKind("table not found: %s")

	// ErrIllegalState is raised when the scheduler is asked to do something
	// its invariants forbid, e.g. splitting a plan with no authenticated
	// transaction.
	ErrIllegalState = goerrors.NewKind("illegal state: %s")

	// ErrRuntime is raised for failures during expression building or
	// execution that are not attributable to a single shard.
	ErrRuntime = goerrors.NewKind("runtime error: %s")

	// ErrShardDispatchFailed is raised when every replica of a shard fails
	// to produce a result.
	ErrShardDispatchFailed = goerrors.NewKind("shard dispatch failed for %s: all replicas exhausted")

	// ErrCompilation is raised when the compiler collaborator rejects a
	// value expression.
	ErrCompilation = goerrors.NewKind("compilation error: %s")
)
