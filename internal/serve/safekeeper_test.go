package serve

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/zenithdb/pageserver/internal/config"
	"github.com/zenithdb/pageserver/internal/control/subscribe"
	"github.com/zenithdb/pageserver/internal/ids"
	"github.com/zenithdb/pageserver/internal/repo"
	"github.com/zenithdb/pageserver/internal/repo/memrepo"
	"github.com/zenithdb/pageserver/internal/tenant"
	"github.com/zenithdb/pageserver/internal/walrecv"
)

func newTestSafekeeperDeps(t *testing.T) (SafekeeperDeps, ids.TenantId, ids.TimelineId) {
	t.Helper()
	reg := tenant.New()
	repository := memrepo.New()
	tenantID := ids.TenantId{0x07}
	timelineID := ids.TimelineId{0x08}
	if err := reg.Insert(tenantID, repository); err != nil {
		t.Fatal(err)
	}
	if _, err := repository.CreateEmptyTimeline(timelineID, 0); err != nil {
		t.Fatal(err)
	}

	sub, err := subscribe.New(subscribe.DefaultDialer)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sub.Close() })

	return SafekeeperDeps{
		Reg: reg,
		Sub: sub,
		Cfg: config.Load("", "", "", ""),
	}, tenantID, timelineID
}

func TestHandleSafekeeperConnStreamsGreetingThenMessage(t *testing.T) {
	deps, tenantID, timelineID := newTestSafekeeperDeps(t)
	client, server := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		handleSafekeeperConn(ctx, server, deps)
		close(done)
	}()

	writeStartup(client, nil)
	readFrame(t, client) // AuthenticationOk
	readFrame(t, client) // ReadyForQuery

	typ, _ := readFrame(t, client) // CopyBothResponse
	if typ != 'W' {
		t.Fatalf("expected CopyBothResponse, got %q", typ)
	}

	greeting := walrecv.EncodeGreeting(repo.Greeting{Tenant: tenantID, Timeline: timelineID}, "")
	writeCopyDataFrame(client, greeting)
	writeCopyDataFrame(client, []byte("consensus-message"))

	typ, body := readFrame(t, client) // echoed CopyData reply
	if typ != 'd' {
		t.Fatalf("expected CopyData reply, got %q", typ)
	}
	if string(body) != "consensus-message" {
		t.Fatalf("got %q", body)
	}

	client.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handleSafekeeperConn did not return after client close")
	}
}

func writeCopyDataFrame(conn net.Conn, payload []byte) {
	msg := make([]byte, 5+len(payload))
	msg[0] = 'd'
	binary.BigEndian.PutUint32(msg[1:5], uint32(len(payload)+4))
	copy(msg[5:], payload)
	conn.Write(msg)
}
