// Package walrecv implements the safekeeper-side WAL receive endpoint:
// a CopyBoth channel whose first message must be a Greeting, after which
// every subsequent message is a consensus exchange bridged to the
// target timeline's process_msg hook.
package walrecv

import (
	"context"
	"io"

	"github.com/zenithdb/pageserver/internal/ids"
	"github.com/zenithdb/pageserver/internal/nlog"
	"github.com/zenithdb/pageserver/internal/perr"
	"github.com/zenithdb/pageserver/internal/repo"
	"github.com/zenithdb/pageserver/internal/wire"
)

// FrontendReader is the subset of wire.Reader the handler needs.
type FrontendReader interface {
	ReadMessage() (wire.FrontendMessage, error)
}

// FrontendWriter is the subset of wire.Writer the handler needs.
type FrontendWriter interface {
	QueueCopyBothResponse() *wire.Writer
	Flush() error
	WriteCopyData(payload []byte) error
}

// TimelineLookup resolves a Greeting's (tenant, timeline) to the
// Timeline this session streams to.
type TimelineLookup func(tenant ids.TenantId, timeline ids.TimelineId) (repo.Timeline, error)

// Subscriber registers the callmemaybe subscription a Greeting's
// optional downstream connection string names; the production wiring
// is *internal/control/subscribe.Registry.
type Subscriber interface {
	Subscribe(ctx context.Context, tenant ids.TenantId, timeline ids.TimelineId, connstr string) (bool, error)
}

// State is the session state machine: AwaitGreeting -> Streaming ->
// Terminated.
type State int

const (
	StateAwaitGreeting State = iota
	StateStreaming
	StateTerminated
)

// Handle drives one WAL-receive session end to end. The scoped release
// (tl.StopStreaming) runs on every exit path once ContinueStreaming has
// succeeded — clean EOF, a decode/I/O error, or a panic recovered by the
// caller's connection supervisor all reach the deferred call.
func Handle(ctx context.Context, fr FrontendReader, fw FrontendWriter, lookup TimelineLookup, sub Subscriber) error {
	fw.QueueCopyBothResponse()
	if err := fw.Flush(); err != nil {
		return err
	}

	msg, err := fr.ReadMessage()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	if !msg.IsCopyData() {
		return perr.Framing("walrecv: expected Greeting, got message type %q", msg.Type)
	}

	greeting, connstr, err := DecodeGreeting(msg.Body)
	if err != nil {
		return perr.Framing("walrecv: malformed greeting: %v", err)
	}

	tl, err := lookup(greeting.Tenant, greeting.Timeline)
	if err != nil {
		return err
	}
	if err := tl.ContinueStreaming(greeting); err != nil {
		return perr.Repository(err, "walrecv: continue_streaming")
	}
	defer tl.StopStreaming()

	if connstr != "" && sub != nil {
		if _, err := sub.Subscribe(ctx, greeting.Tenant, greeting.Timeline, connstr); err != nil {
			nlog.Warningf("walrecv: callmemaybe subscribe for %s/%s: %v", greeting.Tenant, greeting.Timeline, err)
		}
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
			reply, err := tl.ProcessMsg(repo.ProposerAcceptorMessage(msg.Body))
			if err != nil {
				return perr.Repository(err, "walrecv: process_msg")
			}
			if len(reply) > 0 {
				if err := fw.WriteCopyData(reply); err != nil {
					return err
				}
			}
		case msg.IsCopyDone(), msg.IsTerminate():
			return nil
		default:
			// ignored, mirroring the pagestream handler's treatment of
			// Sync/Flush: this session has no other meaningful message
			// kinds to act on.
		}
	}
}
