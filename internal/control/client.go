package control

import (
	"encoding/binary"
	"io"
)

// writeSimpleQuery, writeCopyData, and writeCopyDone are the one place
// this core acts as a wire-protocol *client* rather than server
// (request_push dials a peer pageserver and issues a push command
// against it). The FE message framing is the same length-prefixed shape
// internal/wire already implements server-side; this file exists only
// because wire.Writer's Queue* methods are BE-message helpers, and a
// one-off FE Query + CopyData sender doesn't earn a new exported type in
// that package.
func writeSimpleQuery(w io.Writer, query string) error {
	body := append([]byte(query), 0)
	return writeFrame(w, 'Q', body)
}

func writeCopyData(w io.Writer, payload []byte) error {
	return writeFrame(w, 'd', payload)
}

func writeCopyDone(w io.Writer) error {
	return writeFrame(w, 'c', nil)
}

func writeFrame(w io.Writer, typ byte, body []byte) error {
	if _, err := w.Write([]byte{typ}); err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)+4))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	_, err := w.Write(body)
	return err
}
