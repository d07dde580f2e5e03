// Package subscribe implements the callmemaybe subscription table: a
// process-lifetime registry of (tenant, timeline) -> connection string,
// each backed by a long-lived WAL-receiver fan-out worker. Registration
// is idempotent per key.
package subscribe

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/tidwall/buntdb"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/zenithdb/pageserver/internal/ids"
	"github.com/zenithdb/pageserver/internal/nlog"
)

// Dialer opens the outbound connection a subscription worker holds open.
// A real worker dials the peer pageserver named by the connstr and speaks
// the WAL-receiver side of the protocol; that exchange is out of scope
// here, so the default Dialer just keeps a TCP connection alive for the
// lifetime of
// the subscription. Tests substitute a Dialer that never touches the
// network.
type Dialer func(ctx context.Context, connstr string) (net.Conn, error)

// DefaultDialer treats connstr as a bare "host:port" address, the
// simplest reading of a free-text connection string.
func DefaultDialer(ctx context.Context, connstr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", connstr)
}

// Registry is the callmemaybe subscription table. Keyed in an in-memory
// buntdb index (grounded on cmd/authn/main.go's kvdb.NewBuntDB pattern)
// since subscriptions are process-lifetime only — nothing here needs to
// survive a restart.
type Registry struct {
	db     *buntdb.DB
	sf     singleflight.Group
	group  *errgroup.Group
	dialer Dialer
}

func New(dialer Dialer) (*Registry, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("subscribe: open buntdb: %w", err)
	}
	if dialer == nil {
		dialer = DefaultDialer
	}
	return &Registry{db: db, group: &errgroup.Group{}, dialer: dialer}, nil
}

func key(tenant ids.TenantId, timeline ids.TimelineId) string {
	return tenant.String() + "/" + timeline.String()
}

// Subscribe registers (tenant, timeline) -> connstr if not already
// present, starting a fan-out worker on first registration. Returns
// whether this call created a new subscription (false means it was
// already registered — callmemaybe is required to be idempotent under
// repetition).
func (r *Registry) Subscribe(ctx context.Context, tenant ids.TenantId, timeline ids.TimelineId, connstr string) (bool, error) {
	k := key(tenant, timeline)
	v, err, _ := r.sf.Do(k, func() (interface{}, error) {
		var exists bool
		_ = r.db.View(func(tx *buntdb.Tx) error {
			_, getErr := tx.Get(k)
			exists = getErr == nil
			return nil
		})
		if exists {
			return false, nil
		}
		if err := r.db.Update(func(tx *buntdb.Tx) error {
			_, _, err := tx.Set(k, connstr, nil)
			return err
		}); err != nil {
			return false, fmt.Errorf("subscribe: register %s: %w", k, err)
		}
		r.group.Go(func() error {
			return r.runWorker(ctx, k, connstr)
		})
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (r *Registry) runWorker(ctx context.Context, k, connstr string) error {
	conn, err := r.dialer(ctx, connstr)
	if err != nil {
		nlog.Warningf("subscribe: %s: dial %s: %v", k, connstr, err)
		return nil
	}
	defer conn.Close()

	nlog.Infof("subscribe: %s: streaming to %s", k, connstr)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 4096)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(30 * time.Second)); err != nil {
			return nil
		}
		if _, err := conn.Read(buf); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() && ctx.Err() == nil {
				continue
			}
			nlog.Infof("subscribe: %s: worker exiting: %v", k, err)
			return nil
		}
	}
}

// Wait blocks until every spawned worker has returned.
func (r *Registry) Wait() error { return r.group.Wait() }

func (r *Registry) Close() error { return r.db.Close() }
