package serve

import (
	"context"
	"io"
	"net"

	"github.com/zenithdb/pageserver/internal/basebackup"
	"github.com/zenithdb/pageserver/internal/command"
	"github.com/zenithdb/pageserver/internal/config"
	"github.com/zenithdb/pageserver/internal/control"
	"github.com/zenithdb/pageserver/internal/ids"
	"github.com/zenithdb/pageserver/internal/metrics"
	"github.com/zenithdb/pageserver/internal/nlog"
	"github.com/zenithdb/pageserver/internal/pagestream"
	"github.com/zenithdb/pageserver/internal/perr"
	"github.com/zenithdb/pageserver/internal/repo"
	"github.com/zenithdb/pageserver/internal/tenant"
	"github.com/zenithdb/pageserver/internal/wire"
)

// PageserverDeps bundles the process-wide collaborators a pageserver
// connection needs: the tenant registry it looks up before entering
// pagestream/basebackup COPY, the control-verb dispatcher for every
// other simple-query verb, and the shared config and metrics handles.
type PageserverDeps struct {
	Reg     *tenant.Registry
	Control *control.Dispatcher
	Metrics *metrics.Registry
	Cfg     *config.Static
}

// ListenAndServePageserver opens cfg's pageserver listen address and runs
// the connection supervisor against it until ctx is cancelled.
func ListenAndServePageserver(ctx context.Context, addr string, deps PageserverDeps) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return perr.FatalIO(err, "pageserver: listen on %s", addr)
	}
	nlog.Infof("pageserver: listening on %s", addr)
	return Supervise(ctx, ln, func(ctx context.Context, conn net.Conn) {
		handlePageserverConn(ctx, conn, deps)
	})
}

func handlePageserverConn(ctx context.Context, conn net.Conn, deps PageserverDeps) {
	r := wire.NewReader(conn)
	w := wire.NewWriter(conn)

	params, err := negotiateStartup(r, w)
	if err != nil {
		nlog.Warningf("pageserver: startup from %s: %v", conn.RemoteAddr(), err)
		return
	}
	if err := authenticate(params, deps.Cfg.AuthToken, w); err != nil {
		w.QueueErrorResponse(errCode(err), err.Error())
		_ = w.Flush()
		return
	}

	if deps.Metrics != nil {
		deps.Metrics.ActiveConnections.Inc()
		defer deps.Metrics.ActiveConnections.Dec()
	}

	for {
		msg, err := r.ReadMessage()
		if err == io.EOF {
			return
		}
		if err != nil {
			nlog.Warningf("pageserver: read from %s: %v", conn.RemoteAddr(), err)
			return
		}
		if msg.IsTerminate() {
			return
		}
		if !msg.IsQuery() {
			// Sync/Flush with nothing queued: ignored, same treatment the
			// pagestream loop gives them mid-COPY.
			continue
		}

		cmd, err := command.Parse(string(msg.Body))
		if err != nil {
			w.QueueErrorResponse(errCode(err), err.Error())
			w.QueueReadyForQuery(wire.TxIdle)
			if err := w.Flush(); err != nil {
				return
			}
			continue
		}

		if err := dispatchQuery(ctx, cmd, r, w, deps); err != nil {
			w.QueueErrorResponse(errCode(err), err.Error())
		}
		w.QueueReadyForQuery(wire.TxIdle)
		if err := w.Flush(); err != nil {
			return
		}
	}
}

// dispatchQuery is the query-level fork: pagestream and basebackup
// require a successful tenant/timeline lookup before entering COPY, so
// that lookup happens here rather than inside
// either handler. Every other verb goes straight to the control
// dispatcher, which owns its own tenant lookups per verb.
func dispatchQuery(ctx context.Context, cmd command.Command, r *wire.Reader, w *wire.Writer, deps PageserverDeps) error {
	switch cmd.Verb {
	case command.VerbPagestream:
		tl, err := lookupTimeline(deps.Reg, cmd.Tenant, cmd.Timeline)
		if err != nil {
			return err
		}
		return pagestream.Handle(ctx, r, w, tl, deps.Metrics)

	case command.VerbBasebackup:
		tl, err := lookupTimeline(deps.Reg, cmd.Tenant, cmd.Timeline)
		if err != nil {
			return err
		}
		lsn := ids.InvalidLSN
		if cmd.HasLSN {
			lsn = cmd.LSN
		}
		return basebackup.Handle(ctx, w, tl, lsn)

	default:
		return deps.Control.Dispatch(ctx, cmd, r, w)
	}
}

func lookupTimeline(reg *tenant.Registry, tenantID ids.TenantId, timelineID ids.TimelineId) (repo.Timeline, error) {
	repository, err := reg.Get(tenantID)
	if err != nil {
		return nil, err
	}
	return repository.GetTimeline(timelineID)
}
