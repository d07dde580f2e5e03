package pagestream

import (
	"context"
	"io"

	"github.com/zenithdb/pageserver/internal/ids"
	"github.com/zenithdb/pageserver/internal/metrics"
	"github.com/zenithdb/pageserver/internal/nlog"
	"github.com/zenithdb/pageserver/internal/repo"
	"github.com/zenithdb/pageserver/internal/wire"
)

// FrontendReader is the subset of wire.Reader the handler needs; narrowed
// to an interface so tests can drive it without a real socket.
type FrontendReader interface {
	ReadMessage() (wire.FrontendMessage, error)
}

// FrontendWriter is the subset of wire.Writer the handler needs.
type FrontendWriter interface {
	QueueCopyBothResponse() *wire.Writer
	Flush() error
	WriteCopyData(payload []byte) error
}

// Handle drives the pagestream request/response loop for one already
// looked-up timeline. The caller is responsible for the tenant/timeline
// lookup, which must fail before entering COPY — see internal/serve's
// dispatchQuery.
//
// Responses are emitted in the exact order their requests were read;
// processing of one request never overlaps the next on this connection,
// since this loop is a plain sequential for loop with no goroutine
// fan-out.
func Handle(ctx context.Context, fr FrontendReader, fw FrontendWriter, tl repo.Timeline, m *metrics.Registry) error {
	fw.QueueCopyBothResponse()
	if err := fw.Flush(); err != nil {
		return err
	}

	for {
		msg, err := fr.ReadMessage()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch {
		case msg.IsCopyData():
			resp, err := dispatch(ctx, msg.Body, tl, m)
			if err != nil {
				// Malformed framing ends the session; per-request repository
				// failures never reach here — dispatch degrades those to an
				// ok=false sentinel itself.
				return err
			}
			if err := fw.WriteCopyData(resp.Encode()); err != nil {
				return err
			}
		case msg.IsCopyDone(), msg.IsTerminate():
			return nil
		default:
			// Sync, Flush, and anything else is ignored and does not
			// advance the request queue.
		}
	}
}

func dispatch(ctx context.Context, body []byte, tl repo.Timeline, m *metrics.Registry) (Response, error) {
	req, err := DecodeRequest(body)
	if err != nil {
		return Response{}, err
	}

	if m != nil {
		m.PagestreamRequests.WithLabelValues(req.Kind.String()).Inc()
	}

	switch req.Kind {
	case KindExists:
		ok, err := tl.RelExists(ctx, req.Buf.Rel, req.LSN)
		if err != nil {
			// Absence is not an error for Exists; any other repository
			// error also degrades to ok=false here
			// since Exists has no other channel to report it on.
			nlog.Warningf("pagestream: rel_exists(%s, %s): %v", req.Buf.Rel, req.LSN, err)
			return StatusResponse(false, 0), nil
		}
		return StatusResponse(ok, 0), nil

	case KindNblocks:
		n, err := tl.RelSize(ctx, req.Buf.Rel, req.LSN)
		if err != nil {
			nlog.Warningf("pagestream: rel_size(%s, %s): %v", req.Buf.Rel, req.LSN, err)
			return NblocksResponse(true, 0), nil
		}
		return NblocksResponse(true, n), nil

	case KindRead:
		page, err := tl.GetPageAtLSN(ctx, req.Buf, req.LSN)
		if err != nil {
			if m != nil {
				m.PagestreamErrors.WithLabelValues(req.Kind.String()).Inc()
			}
			nlog.Warningf("pagestream: get_page_at_lsn(%s, %s): %v", req.Buf, req.LSN, err)
			return ReadResponse(false, ids.ZeroPage()), nil
		}
		return ReadResponse(true, page), nil

	default:
		return Response{}, errUnreachable
	}
}

type unreachableErr struct{}

func (unreachableErr) Error() string { return "pagestream: unreachable request kind" }

var errUnreachable = unreachableErr{}
