// Package basebackup streams a tar snapshot of a timeline through CopyOut.
// Reconstructing a full Postgres data directory belongs to an external
// basebackup producer, which this core does not implement; this package
// builds the minimal, well-formed tarball that its own collaborator
// boundary (internal/repo.Timeline) can actually supply content for — a
// control file and a backup label — and chunks it onto the wire.
package basebackup

import (
	"archive/tar"
	"context"
	"fmt"

	"github.com/zenithdb/pageserver/internal/ids"
	"github.com/zenithdb/pageserver/internal/repo"
	"github.com/zenithdb/pageserver/internal/wire"
)

// chunkSize bounds each CopyData frame; the wire format only requires
// the chunk fit in 32 bits, 64 KiB keeps frames well clear of that limit
// without forcing a large intermediate buffer.
const chunkSize = 64 * 1024

// FrontendWriter is the subset of wire.Writer the handler needs.
type FrontendWriter interface {
	QueueCopyOutResponse() *wire.Writer
	QueueCopyDone() *wire.Writer
	QueueCommandComplete(tag string) *wire.Writer
	Flush() error
	WriteCopyData(payload []byte) error
}

// Handle writes CopyOutResponse, streams a tar snapshot of tl as of lsn (or
// tl's last-valid LSN if lsn is ids.InvalidLSN), then CopyDone and
// CommandComplete.
func Handle(ctx context.Context, fw FrontendWriter, tl repo.Timeline, lsn ids.LSN) error {
	fw.QueueCopyOutResponse()
	if err := fw.Flush(); err != nil {
		return err
	}

	if !lsn.IsValid() {
		lsn = tl.GetLastValidLSN()
	}

	cw := &chunkedWriter{flush: fw.WriteCopyData}
	tw := tar.NewWriter(cw)

	if err := writeControlFile(tw, tl); err != nil {
		return err
	}
	if err := writeBackupLabel(tw, lsn); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	if err := cw.flushTail(); err != nil {
		return err
	}

	fw.QueueCopyDone()
	fw.QueueCommandComplete("COPY")
	return fw.Flush()
}

func writeControlFile(tw *tar.Writer, tl repo.Timeline) error {
	data := tl.ControlFile()
	hdr := &tar.Header{
		Name: "global/pg_control",
		Mode: 0600,
		Size: int64(len(data)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

func writeBackupLabel(tw *tar.Writer, lsn ids.LSN) error {
	body := []byte(fmt.Sprintf("START WAL LOCATION: %s\nBACKUP METHOD: streamed\n", lsn))
	hdr := &tar.Header{
		Name: "backup_label",
		Mode: 0600,
		Size: int64(len(body)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(body)
	return err
}

// chunkedWriter accumulates tar bytes and flushes them as CopyData frames
// of at most chunkSize bytes, so the client sees progress as the archive
// is produced rather than all at once at the end.
type chunkedWriter struct {
	buf   []byte
	flush func([]byte) error
}

func (c *chunkedWriter) Write(p []byte) (int, error) {
	n := len(p)
	c.buf = append(c.buf, p...)
	for len(c.buf) >= chunkSize {
		if err := c.flush(c.buf[:chunkSize]); err != nil {
			return 0, err
		}
		c.buf = c.buf[chunkSize:]
	}
	return n, nil
}

func (c *chunkedWriter) flushTail() error {
	if len(c.buf) == 0 {
		return nil
	}
	err := c.flush(c.buf)
	c.buf = nil
	return err
}
