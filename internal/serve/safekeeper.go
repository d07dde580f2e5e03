package serve

import (
	"context"
	"net"

	"github.com/zenithdb/pageserver/internal/config"
	"github.com/zenithdb/pageserver/internal/control/subscribe"
	"github.com/zenithdb/pageserver/internal/ids"
	"github.com/zenithdb/pageserver/internal/nlog"
	"github.com/zenithdb/pageserver/internal/perr"
	"github.com/zenithdb/pageserver/internal/repo"
	"github.com/zenithdb/pageserver/internal/tenant"
	"github.com/zenithdb/pageserver/internal/walrecv"
	"github.com/zenithdb/pageserver/internal/wire"
)

// SafekeeperDeps bundles the collaborators the WAL receive endpoint
// needs: the tenant registry the Greeting's (tenant, timeline) pair
// resolves against, and the callmemaybe subscription registry a
// Greeting's connection string may register against.
type SafekeeperDeps struct {
	Reg *tenant.Registry
	Sub *subscribe.Registry
	Cfg *config.Static
}

// ListenAndServeSafekeeper opens cfg's WAL receive listen address and
// runs the connection supervisor against it until ctx is cancelled.
func ListenAndServeSafekeeper(ctx context.Context, addr string, deps SafekeeperDeps) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return perr.FatalIO(err, "safekeeper: listen on %s", addr)
	}
	nlog.Infof("safekeeper: listening on %s", addr)
	return Supervise(ctx, ln, func(ctx context.Context, conn net.Conn) {
		handleSafekeeperConn(ctx, conn, deps)
	})
}

// handleSafekeeperConn runs the FE/BE handshake and then immediately
// enters the WAL-receive CopyBoth session: unlike the pageserver
// listener, this endpoint never dispatches on a simple-query verb — a
// safekeeper connection's entire purpose is the WAL receive endpoint, so
// the startup handshake is this session's only non-CopyBoth exchange.
func handleSafekeeperConn(ctx context.Context, conn net.Conn, deps SafekeeperDeps) {
	r := wire.NewReader(conn)
	w := wire.NewWriter(conn)

	params, err := negotiateStartup(r, w)
	if err != nil {
		nlog.Warningf("safekeeper: startup from %s: %v", conn.RemoteAddr(), err)
		return
	}
	if err := authenticate(params, deps.Cfg.AuthToken, w); err != nil {
		w.QueueErrorResponse(errCode(err), err.Error())
		_ = w.Flush()
		return
	}

	lookup := func(tenantID ids.TenantId, timelineID ids.TimelineId) (repo.Timeline, error) {
		repository, err := deps.Reg.Get(tenantID)
		if err != nil {
			return nil, err
		}
		return repository.GetTimeline(timelineID)
	}

	if err := walrecv.Handle(ctx, r, w, lookup, deps.Sub); err != nil {
		nlog.Warningf("safekeeper: session with %s: %v", conn.RemoteAddr(), err)
	}
}
