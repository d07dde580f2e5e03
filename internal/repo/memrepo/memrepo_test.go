package memrepo

import (
	"context"
	"testing"

	"github.com/zenithdb/pageserver/internal/ids"
	"github.com/zenithdb/pageserver/internal/repo"
)

func mustTimeline(t *testing.T, r *Repository, id ids.TimelineId) *Timeline {
	t.Helper()
	tl, err := r.CreateEmptyTimeline(id, 0)
	if err != nil {
		t.Fatalf("CreateEmptyTimeline: %v", err)
	}
	return tl.(*Timeline)
}

func TestGetTimelineNotFound(t *testing.T) {
	r := New()
	var tlID ids.TimelineId
	if _, err := r.GetTimeline(tlID); err != repo.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRelExistsAndSizeAbsent(t *testing.T) {
	r := New()
	tl := mustTimeline(t, r, ids.TimelineId{1})
	ctx := context.Background()
	rel := ids.RelTag{SpcNode: 1663, DbNode: 5, RelNode: 999}

	exists, err := tl.RelExists(ctx, rel, 100)
	if err != nil || exists {
		t.Fatalf("expected absent relation, got exists=%v err=%v", exists, err)
	}
	n, err := tl.RelSize(ctx, rel, 100)
	if err != nil || n != 0 {
		t.Fatalf("expected n_blocks=0 for absent relation, got %d err=%v", n, err)
	}
}

func TestSeedPageThenRead(t *testing.T) {
	r := New()
	tl := mustTimeline(t, r, ids.TimelineId{2})
	ctx := context.Background()
	tag := ids.BufferTag{Rel: ids.RelTag{SpcNode: 1663, DbNode: 5, RelNode: 999}, BlkNum: 0}
	var page ids.Page
	page[0] = 0xAB

	tl.SeedPage(tag, 0x1000, page)

	got, err := tl.GetPageAtLSN(ctx, tag, 0x2000)
	if err != nil {
		t.Fatalf("GetPageAtLSN: %v", err)
	}
	if got[0] != 0xAB {
		t.Fatalf("page content mismatch")
	}

	exists, err := tl.RelExists(ctx, tag.Rel, 0x2000)
	if err != nil || !exists {
		t.Fatalf("expected relation to exist, got exists=%v err=%v", exists, err)
	}
}

func TestGetPageAtLSNMissingVersion(t *testing.T) {
	r := New()
	tl := mustTimeline(t, r, ids.TimelineId{3})
	tag := ids.BufferTag{Rel: ids.RelTag{SpcNode: 1, DbNode: 1, RelNode: 1}, BlkNum: 0}
	if _, err := tl.GetPageAtLSN(context.Background(), tag, 5); err == nil {
		t.Fatal("expected error for unknown page")
	}
}

func TestAdvanceLastValidLSN(t *testing.T) {
	r := New()
	tl := mustTimeline(t, r, ids.TimelineId{4})
	tl.AdvanceLastValidLSN(10)
	tl.AdvanceLastValidLSN(30)
	tl.AdvanceLastValidLSN(20) // must not regress
	if tl.GetLastValidLSN() != 30 {
		t.Fatalf("expected 30, got %v", tl.GetLastValidLSN())
	}
}

func TestCreateEmptyTimelineConflict(t *testing.T) {
	r := New()
	id := ids.TimelineId{5}
	mustTimeline(t, r, id)
	if _, err := r.CreateEmptyTimeline(id, 0); err == nil {
		t.Fatal("expected conflict on re-creation")
	}
}

func TestBranchCreateAndList(t *testing.T) {
	r := New()
	parent := ids.TimelineId{6}
	mustTimeline(t, r, parent)

	info, err := r.BranchCreate("main", parent)
	if err != nil {
		t.Fatalf("BranchCreate: %v", err)
	}
	if info.Name != "main" {
		t.Fatalf("unexpected branch info: %+v", info)
	}

	list, err := r.BranchList()
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one branch, got %+v err=%v", list, err)
	}
}

func TestGCIterationCounts(t *testing.T) {
	r := New()
	tl := mustTimeline(t, r, ids.TimelineId{7})
	stats, err := tl.GCIteration(context.Background(), 1024, true)
	if err != nil {
		t.Fatalf("GCIteration: %v", err)
	}
	if stats.NRelations != 0 {
		t.Fatalf("expected zero relations on empty timeline, got %d", stats.NRelations)
	}
}
