// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

// Package transport implements a concrete, wire-capable Transport for
// dispatching a cloned query subtree to a remote host: a small framed
// protocol over any io.ReadWriteCloser, carrying msgpack-encoded
// payloads. It mirrors the teacher's tenant/tnproto and plan.Client/
// server framing, substituting msgpack for the teacher's bespoke binary
// encoding (see DESIGN.md).
//
// spec.md places the RPC transport outside the scheduler's scope; this
// package exists to give that external collaborator a working reference
// implementation so the scheduler can be exercised end to end.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// frameKind distinguishes the messages exchanged over a connection.
type frameKind uint32

const (
	_ frameKind = iota // zero frame is invalid

	// frameStart is the one client-to-server frame: a dispatch request.
	frameStart

	// Server-to-client frames.
	frameData // one encoded output row
	frameErr  // the query failed; payload is the error text
	frameFin  // no more data follows
)

const frameHeaderSize = 8 // 4 bytes kind + 4 bytes payload length

const maxFrame = (1 << 28) - 1 // generous bound; guards against a corrupt length field

func putFrameHeader(dst []byte, kind frameKind, length int) {
	binary.LittleEndian.PutUint32(dst[0:4], uint32(kind))
	binary.LittleEndian.PutUint32(dst[4:8], uint32(length))
}

func getFrameHeader(src []byte) (frameKind, int) {
	return frameKind(binary.LittleEndian.Uint32(src[0:4])), int(binary.LittleEndian.Uint32(src[4:8]))
}

// writeFrame writes one frame (header + payload) to w.
func writeFrame(w io.Writer, kind frameKind, payload []byte) error {
	if len(payload) > maxFrame {
		return fmt.Errorf("transport: frame payload of %d bytes exceeds limit", len(payload))
	}
	hdr := make([]byte, frameHeaderSize)
	putFrameHeader(hdr, kind, len(payload))
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads one frame from r.
func readFrame(r io.Reader) (frameKind, []byte, error) {
	hdr := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return 0, nil, err
	}
	kind, length := getFrameHeader(hdr)
	if length < 0 || length > maxFrame {
		return 0, nil, fmt.Errorf("transport: invalid frame length %d", length)
	}
	if length == 0 {
		return kind, nil, nil
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("transport: reading frame payload: %w", err)
	}
	return kind, payload, nil
}
