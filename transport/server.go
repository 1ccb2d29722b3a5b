// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

package transport

import (
	"context"
	"fmt"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/mastermind1981/eventql/engine"
)

// Handler builds and executes the shard of a split plan a remote
// dispatch request carries, given the principal the dispatching
// coordinator presented. It is supplied by the process embedding this
// package's server (typically by wiring scheduler.Build against a local
// Transaction scoped to principal).
type Handler func(ctx context.Context, principal string, stmtPayload []byte, out engine.RowWriter) error

// Server serves dispatch requests on a listener, one connection and one
// query at a time per connection, mirroring the teacher's plan.Serve.
type Server struct {
	Handler Handler
	Logger  *zap.Logger
}

// NewServer returns a Server invoking handler for each request.
func NewServer(handler Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Handler: handler, Logger: logger}
}

// Serve accepts connections on lis until it returns a permanent error or
// ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		lis.Close()
	}()
	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	for {
		kind, payload, err := readFrame(conn)
		if err != nil {
			if err != io.EOF {
				s.Logger.Warn("transport: reading request frame", zap.Error(err))
			}
			return
		}
		if kind != frameStart {
			s.sendErr(conn, fmt.Errorf("unexpected frame %d", kind))
			return
		}
		if err := s.runOne(ctx, conn, payload); err != nil {
			s.sendErr(conn, err)
			return
		}
	}
}

func (s *Server) runOne(ctx context.Context, conn net.Conn, payload []byte) error {
	req, err := decodeStartRequest(payload)
	if err != nil {
		return err
	}
	sink := &frameRowWriter{conn: conn}
	if err := s.Handler(ctx, req.Principal, req.Node, sink); err != nil {
		s.Logger.Warn("transport: handler failed", zap.String("query_id", req.QueryID), zap.Error(err))
		return err
	}
	return writeFrame(conn, frameFin, nil)
}

func (s *Server) sendErr(conn net.Conn, err error) {
	if werr := writeFrame(conn, frameErr, []byte(err.Error())); werr != nil {
		s.Logger.Warn("transport: sending error frame", zap.Error(werr))
	}
}

// frameRowWriter adapts a connection to engine.RowWriter by encoding each
// row as a frameData frame.
type frameRowWriter struct {
	conn io.Writer
}

func (w *frameRowWriter) WriteRow(row engine.Row) error {
	data, err := EncodeRow(row)
	if err != nil {
		return err
	}
	return writeFrame(w.conn, frameData, data)
}
