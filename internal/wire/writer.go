package wire

import (
	"bufio"
	"encoding/binary"
	"io"
)

// Writer accumulates BE messages in a buffer and exposes two write paths:
// a non-flushing path that lets a caller queue several messages and
// flush once at the end of a query, and a flushing path used by COPY
// streaming where the client needs to observe each message as soon as
// it is produced. The accumulate-then-flush shape mirrors transport/pdu.go's
// pdu type (a byte buffer with a write offset, drained in one shot by
// the underlying stream).
type Writer struct {
	bw  *bufio.Writer
	err error
}

func NewWriter(w io.Writer) *Writer { return &Writer{bw: bufio.NewWriterSize(w, 16*1024)} }

// Err returns the first write error encountered, if any; once set, every
// subsequent WriteX call is a no-op, matching the fail-fast behavior a
// buffered accumulate-writer needs so callers don't have to check errors
// after every single field write.
func (w *Writer) Err() error { return w.err }

func (w *Writer) putMsg(typ byte, body []byte) *Writer {
	if w.err != nil {
		return w
	}
	if typ != 0 {
		w.bw.WriteByte(typ)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)+4))
	w.bw.Write(lenBuf[:])
	_, w.err = w.bw.Write(body)
	return w
}

// Flush forces any buffered messages onto the wire.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	if err := w.bw.Flush(); err != nil {
		w.err = err
	}
	return w.err
}

// --- non-flushing path: queue, caller flushes explicitly ---

func (w *Writer) QueueAuthenticationOk() *Writer {
	return w.putMsg(beAuthenticationOk, []byte{0, 0, 0, 0})
}

func (w *Writer) QueueReadyForQuery(status byte) *Writer {
	return w.putMsg(beReadyForQuery, []byte{status})
}

func (w *Writer) QueueRowDescription(cols []RowDescriptor) *Writer {
	body := make([]byte, 0, 32)
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(cols)))
	body = append(body, n[:]...)
	for _, c := range cols {
		body = append(body, []byte(c.Name)...)
		body = append(body, 0)
		// table OID, col attr, type OID, typlen, typmod, format code:
		// all zero/"unknown" since no catalog backs these synthetic rows.
		body = append(body, make([]byte, 4+2+4)...)
		body = append(body, 0xFF, 0xFF) // typlen = -1 (variable length)
		body = append(body, 0, 0, 0, 0) // typmod
		body = append(body, 0, 0)       // format: text
	}
	return w.putMsg(beRowDescription, body)
}

func (w *Writer) QueueDataRow(cols [][]byte) *Writer {
	body := make([]byte, 0, 64)
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(cols)))
	body = append(body, n[:]...)
	for _, c := range cols {
		if c == nil {
			body = append(body, 0xFF, 0xFF, 0xFF, 0xFF) // -1: NULL
			continue
		}
		var l [4]byte
		binary.BigEndian.PutUint32(l[:], uint32(len(c)))
		body = append(body, l[:]...)
		body = append(body, c...)
	}
	return w.putMsg(beDataRow, body)
}

func (w *Writer) QueueCommandComplete(tag string) *Writer {
	body := append([]byte(tag), 0)
	return w.putMsg(beCommandComplete, body)
}

func (w *Writer) QueueErrorResponse(code, message string) *Writer {
	body := make([]byte, 0, 64)
	body = append(body, 'S')
	body = append(body, []byte("ERROR")...)
	body = append(body, 0)
	body = append(body, 'C')
	body = append(body, []byte(code)...)
	body = append(body, 0)
	body = append(body, 'M')
	body = append(body, []byte(message)...)
	body = append(body, 0)
	body = append(body, 0) // terminator
	return w.putMsg(beErrorResponse, body)
}

func (w *Writer) QueueCopyBothResponse() *Writer {
	return w.putMsg(beCopyBothResponse, []byte{0, 0, 0})
}

func (w *Writer) QueueCopyOutResponse() *Writer {
	return w.putMsg(beCopyOutResponse, []byte{0, 0, 0})
}

func (w *Writer) QueueCopyInResponse() *Writer {
	return w.putMsg(beCopyInResponse, []byte{0, 0, 0})
}

func (w *Writer) QueueCopyDone() *Writer {
	return w.putMsg(beCopyDone, nil)
}

// --- flushing path: one message, flushed immediately ---

// WriteCopyData sends a single CopyData frame and flushes it, so the
// client observes progress with minimal latency: each response is
// enqueued and flushed on its own rather than batched.
func (w *Writer) WriteCopyData(payload []byte) error {
	w.putMsg(beCopyData, payload)
	return w.Flush()
}

// WriteReject answers a libpq SSLRequest probe with a single 'N' byte —
// the codec's plaintext-only negotiation.
func (w *Writer) WriteReject() error {
	if w.err != nil {
		return w.err
	}
	if _, err := w.bw.Write([]byte{'N'}); err != nil {
		w.err = err
	}
	return w.Flush()
}
