package walrecv

import (
	"context"
	"io"
	"testing"

	"github.com/zenithdb/pageserver/internal/ids"
	"github.com/zenithdb/pageserver/internal/repo"
	"github.com/zenithdb/pageserver/internal/repo/memrepo"
	"github.com/zenithdb/pageserver/internal/wire"
)

func TestGreetingEncodeDecodeRoundTrip(t *testing.T) {
	g := repo.Greeting{
		SystemID:        42,
		Tli:             7,
		Tenant:          ids.TenantId{0x01},
		Timeline:        ids.TimelineId{0x02},
		ProtocolVersion: 1,
	}
	gotG, gotConn, err := DecodeGreeting(EncodeGreeting(g, "peer:5432"))
	if err != nil {
		t.Fatal(err)
	}
	if gotG != g || gotConn != "peer:5432" {
		t.Fatalf("round-trip mismatch: got %+v %q", gotG, gotConn)
	}
}

type fakeFE struct {
	msgs []wire.FrontendMessage
	i    int
}

func (f *fakeFE) push(typ byte, body []byte) {
	f.msgs = append(f.msgs, wire.FrontendMessage{Type: typ, Body: body})
}

func (f *fakeFE) ReadMessage() (wire.FrontendMessage, error) {
	if f.i >= len(f.msgs) {
		return wire.FrontendMessage{}, io.EOF
	}
	m := f.msgs[f.i]
	f.i++
	return m, nil
}

type fakeBE struct {
	copyData [][]byte
}

func (b *fakeBE) QueueCopyBothResponse() *wire.Writer { return nil }
func (b *fakeBE) Flush() error                        { return nil }
func (b *fakeBE) WriteCopyData(payload []byte) error {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	b.copyData = append(b.copyData, cp)
	return nil
}

type fakeSub struct {
	calls int
}

func (s *fakeSub) Subscribe(ctx context.Context, tenant ids.TenantId, timeline ids.TimelineId, connstr string) (bool, error) {
	s.calls++
	return true, nil
}

func TestHandleStreamsGreetingThenMessages(t *testing.T) {
	r := memrepo.New()
	tenant := ids.TenantId{0x03}
	timeline := ids.TimelineId{0x04}
	tl, err := r.CreateEmptyTimeline(timeline, 0)
	if err != nil {
		t.Fatal(err)
	}

	fe := &fakeFE{}
	g := repo.Greeting{Tenant: tenant, Timeline: timeline}
	fe.push('d', EncodeGreeting(g, "peer:5432"))
	fe.push('d', []byte("consensus-message"))
	be := &fakeBE{}
	sub := &fakeSub{}

	lookup := func(tid ids.TenantId, tlid ids.TimelineId) (repo.Timeline, error) {
		if tid != tenant || tlid != timeline {
			t.Fatalf("unexpected lookup %s/%s", tid, tlid)
		}
		return tl, nil
	}

	if err := Handle(context.Background(), fe, be, lookup, sub); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if sub.calls != 1 {
		t.Fatalf("expected one subscribe call, got %d", sub.calls)
	}
	if len(be.copyData) != 1 || string(be.copyData[0]) != "consensus-message" {
		t.Fatalf("expected echoed reply, got %+v", be.copyData)
	}
}

func TestHandleRejectsNonGreetingFirstMessage(t *testing.T) {
	fe := &fakeFE{}
	fe.push('S', nil)
	be := &fakeBE{}
	lookup := func(ids.TenantId, ids.TimelineId) (repo.Timeline, error) { t.Fatal("lookup should not be called"); return nil, nil }

	if err := Handle(context.Background(), fe, be, lookup, nil); err == nil {
		t.Fatal("expected a protocol error for a non-Greeting first message")
	}
}

func TestHandleCallsStopStreamingOnCleanEOF(t *testing.T) {
	r := memrepo.New()
	tenant := ids.TenantId{0x05}
	timeline := ids.TimelineId{0x06}
	tl, err := r.CreateEmptyTimeline(timeline, 0)
	if err != nil {
		t.Fatal(err)
	}

	fe := &fakeFE{}
	fe.push('d', EncodeGreeting(repo.Greeting{Tenant: tenant, Timeline: timeline}, ""))
	// no further messages: clean EOF.
	be := &fakeBE{}
	lookup := func(ids.TenantId, ids.TimelineId) (repo.Timeline, error) { return tl, nil }

	if err := Handle(context.Background(), fe, be, lookup, nil); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	mtl := tl.(*memrepo.Timeline)
	if mtl.IsStreaming() {
		t.Fatal("expected StopStreaming to have been called on clean EOF")
	}
}
