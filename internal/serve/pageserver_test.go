package serve

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/zenithdb/pageserver/internal/config"
	"github.com/zenithdb/pageserver/internal/control"
	"github.com/zenithdb/pageserver/internal/control/subscribe"
	"github.com/zenithdb/pageserver/internal/ids"
	"github.com/zenithdb/pageserver/internal/metrics"
	"github.com/zenithdb/pageserver/internal/repo"
	"github.com/zenithdb/pageserver/internal/repo/memrepo"
	"github.com/zenithdb/pageserver/internal/tenant"
)

func writeStartup(conn net.Conn, params map[string]string) {
	body := make([]byte, 0, 64)
	var code [4]byte
	binary.BigEndian.PutUint32(code[:], 196608)
	body = append(body, code[:]...)
	for k, v := range params {
		body = append(body, []byte(k)...)
		body = append(body, 0)
		body = append(body, []byte(v)...)
		body = append(body, 0)
	}
	body = append(body, 0)
	msg := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(msg[:4], uint32(len(msg)))
	copy(msg[4:], body)
	conn.Write(msg)
}

func writeQuery(conn net.Conn, q string) {
	body := append([]byte(q), 0)
	msg := make([]byte, 5+len(body))
	msg[0] = 'Q'
	binary.BigEndian.PutUint32(msg[1:5], uint32(len(body)+4))
	copy(msg[5:], body)
	conn.Write(msg)
}

func readFrame(t *testing.T, conn net.Conn) (byte, []byte) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	hdr := make([]byte, 5)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		t.Fatalf("read frame header: %v", err)
	}
	l := binary.BigEndian.Uint32(hdr[1:5])
	body := make([]byte, l-4)
	if _, err := io.ReadFull(conn, body); err != nil {
		t.Fatalf("read frame body: %v", err)
	}
	return hdr[0], body
}

func newTestPageserverDeps(t *testing.T) (PageserverDeps, ids.TenantId, ids.TimelineId) {
	t.Helper()
	reg := tenant.New()
	repository := memrepo.New()
	tenantID := ids.TenantId{0x01}
	timelineID := ids.TimelineId{0x02}
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

	disp := &control.Dispatcher{
		Reg:           reg,
		Sub:           sub,
		Cfg:           config.Load("", "", "", ""),
		Metrics:       metrics.NewRegistry(),
		NewRepository: func() repo.Repository { return memrepo.New() },
	}
	return PageserverDeps{
		Reg:     reg,
		Control: disp,
		Metrics: metrics.NewRegistry(),
		Cfg:     disp.Cfg,
	}, tenantID, timelineID
}

func TestHandlePageserverConnStatusQuery(t *testing.T) {
	deps, _, _ := newTestPageserverDeps(t)
	client, server := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		handlePageserverConn(ctx, server, deps)
		close(done)
	}()

	writeStartup(client, map[string]string{"user": "compute"})
	typ, _ := readFrame(t, client) // AuthenticationOk
	if typ != 'R' {
		t.Fatalf("expected AuthenticationOk, got %q", typ)
	}
	typ, _ = readFrame(t, client) // ReadyForQuery
	if typ != 'Z' {
		t.Fatalf("expected ReadyForQuery, got %q", typ)
	}

	writeQuery(client, "status")
	typ, _ = readFrame(t, client) // RowDescription
	if typ != 'T' {
		t.Fatalf("expected RowDescription, got %q", typ)
	}
	typ, _ = readFrame(t, client) // DataRow
	if typ != 'D' {
		t.Fatalf("expected DataRow, got %q", typ)
	}
	typ, _ = readFrame(t, client) // CommandComplete
	if typ != 'C' {
		t.Fatalf("expected CommandComplete, got %q", typ)
	}
	typ, _ = readFrame(t, client) // ReadyForQuery
	if typ != 'Z' {
		t.Fatalf("expected ReadyForQuery, got %q", typ)
	}

	client.Close()
	<-done
}

func TestHandlePageserverConnPagestreamEntersCopyBoth(t *testing.T) {
	deps, tenantID, timelineID := newTestPageserverDeps(t)
	client, server := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		handlePageserverConn(ctx, server, deps)
		close(done)
	}()

	writeStartup(client, nil)
	readFrame(t, client) // AuthenticationOk
	readFrame(t, client) // ReadyForQuery

	writeQuery(client, "pagestream "+tenantID.String()+" "+timelineID.String())
	typ, _ := readFrame(t, client)
	if typ != 'W' {
		t.Fatalf("expected CopyBothResponse, got %q", typ)
	}

	client.Close()
	<-done
}

func TestHandlePageserverConnUnknownVerbReturnsError(t *testing.T) {
	deps, _, _ := newTestPageserverDeps(t)
	client, server := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		handlePageserverConn(ctx, server, deps)
		close(done)
	}()

	writeStartup(client, nil)
	readFrame(t, client) // AuthenticationOk
	readFrame(t, client) // ReadyForQuery

	writeQuery(client, "nonsense")
	typ, _ := readFrame(t, client)
	if typ != 'E' {
		t.Fatalf("expected ErrorResponse, got %q", typ)
	}
	typ, _ = readFrame(t, client)
	if typ != 'Z' {
		t.Fatalf("expected ReadyForQuery after error, got %q", typ)
	}

	client.Close()
	<-done
}
