// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/mastermind1981/eventql/engine"
	"github.com/mastermind1981/eventql/qtree"
)

// startRequest is the framestart payload: a per-dispatch query ID for log
// correlation across the coordinator and the replica, the principal
// presented to the remote replica (see engine.AuthContext), and the
// cloned subtree to run there.
type startRequest struct {
	QueryID   string `msgpack:"query_id"`
	Principal string `msgpack:"principal"`
	Node      []byte `msgpack:"node"` // a nested, already-EncodeNode-encoded tree
}

// Client dials a remote replica and runs one query per Dispatch call. It
// implements exec.Transport; package exec depends only on that interface,
// not on this concrete type, so any other RPC implementation can be
// substituted.
type Client struct {
	// DialTimeout bounds how long Dial may take to establish the
	// connection to a replica.
	DialTimeout time.Duration
}

// NewClient returns a Client with a 5 second dial timeout.
func NewClient() *Client {
	return &Client{DialTimeout: 5 * time.Second}
}

// Dispatch implements exec.Transport: it dials host, sends stmt framed as
// a start request, and streams the rows the remote replica writes back
// into out until it sends a fin or err frame.
func (c *Client) Dispatch(ctx context.Context, host string, auth engine.AuthContext, stmt qtree.Node, out engine.RowWriter) error {
	dialer := net.Dialer{Timeout: c.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return fmt.Errorf("transport: dialing %s: %w", host, err)
	}
	defer conn.Close()

	nodeBytes, err := EncodeNode(stmt)
	if err != nil {
		return fmt.Errorf("transport: encoding query for %s: %w", host, err)
	}

	var principal string
	if auth != nil {
		principal = auth.Principal()
	}
	queryID := uuid.New().String()
	reqBytes, err := encodeStartRequest(startRequest{QueryID: queryID, Principal: principal, Node: nodeBytes})
	if err != nil {
		return fmt.Errorf("transport: encoding request for %s: %w", host, err)
	}
	if err := writeFrame(conn, frameStart, reqBytes); err != nil {
		return fmt.Errorf("transport: sending request %s to %s: %w", queryID, host, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		kind, payload, err := readFrame(conn)
		if err != nil {
			return fmt.Errorf("transport: reading response for %s from %s: %w", queryID, host, err)
		}
		switch kind {
		case frameData:
			row, err := DecodeRow(payload)
			if err != nil {
				return fmt.Errorf("transport: decoding row for %s from %s: %w", queryID, host, err)
			}
			if err := out.WriteRow(row); err != nil {
				return err
			}
		case frameErr:
			return fmt.Errorf("transport: %s reported an error for %s: %s", host, queryID, string(payload))
		case frameFin:
			return nil
		default:
			return fmt.Errorf("transport: unexpected frame %d from %s for %s", kind, host, queryID)
		}
	}
}
