// Package memrepo is an in-memory reference implementation of the
// repo.Repository/repo.Timeline collaborator interfaces, used by tests and
// the demo command binaries. A real page cache / repository engine is
// out of scope here; this package exists only so the wire-protocol
// layer above it can be exercised end-to-end without a real
// LSM-backed storage engine.
package memrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/zenithdb/pageserver/internal/ids"
	"github.com/zenithdb/pageserver/internal/repo"
)

// Repository is a tenant-scoped, in-memory collection of timelines.
type Repository struct {
	mu          sync.RWMutex
	timelines   map[ids.TimelineId]*Timeline
	branches    map[string]ids.TimelineId
	controlFile []byte
}

func New() *Repository {
	return &Repository{
		timelines:   make(map[ids.TimelineId]*Timeline),
		branches:    make(map[string]ids.TimelineId),
		controlFile: []byte("memrepo-control-file-v1"),
	}
}

func (r *Repository) GetTimeline(id ids.TimelineId) (repo.Timeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tl, ok := r.timelines[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return tl, nil
}

func (r *Repository) CreateEmptyTimeline(id ids.TimelineId, startLSN ids.LSN) (repo.Timeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.timelines[id]; ok {
		return nil, errors.Errorf("timeline %s already exists", id)
	}
	tl := &Timeline{
		id:           id,
		lastValid:    startLSN,
		pages:        make(map[ids.BufferTag]map[ids.LSN]ids.Page),
		relBlocks:    make(map[ids.RelTag]map[ids.LSN]uint32),
		controlFile:  r.controlFile,
	}
	r.timelines[id] = tl
	return tl, nil
}

func (r *Repository) Timelines() []ids.TimelineId {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ids.TimelineId, 0, len(r.timelines))
	for id := range r.timelines {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (r *Repository) BranchCreate(name string, startpoint ids.TimelineId) (repo.BranchInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.branches[name]; exists {
		return repo.BranchInfo{}, errors.Errorf("branch %q already exists", name)
	}
	src, ok := r.timelines[startpoint]
	if !ok {
		return repo.BranchInfo{}, repo.ErrNotFound
	}
	newID := ids.TimelineId(deriveID(startpoint, name))
	tl := &Timeline{
		id:          newID,
		lastValid:   src.GetLastValidLSN(),
		pages:       cloneLatest(src),
		relBlocks:   cloneBlocks(src),
		controlFile: r.controlFile,
	}
	r.timelines[newID] = tl
	r.branches[name] = newID
	return repo.BranchInfo{
		Name:       name,
		TimelineID: newID.String(),
		LatestLSN:  tl.GetLastValidLSN().String(),
	}, nil
}

func (r *Repository) BranchList() ([]repo.BranchInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]repo.BranchInfo, 0, len(r.branches))
	for name, id := range r.branches {
		tl := r.timelines[id]
		out = append(out, repo.BranchInfo{Name: name, TimelineID: id.String(), LatestLSN: tl.GetLastValidLSN().String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Timeline is a single in-memory, versioned page store: every Put keeps
// the prior versions so GetPageAtLSN can answer "what would Postgres have
// observed at lsn".
type Timeline struct {
	mu sync.RWMutex

	id          ids.TimelineId
	lastValid   ids.LSN
	prevRecord  ids.LSN
	pages       map[ids.BufferTag]map[ids.LSN]ids.Page
	relBlocks   map[ids.RelTag]map[ids.LSN]uint32
	history     []repo.Modification
	controlFile []byte

	streaming bool
}

func (t *Timeline) RelExists(_ context.Context, rel ids.RelTag, lsn ids.LSN) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	versions, ok := t.relBlocks[rel]
	if !ok {
		return false, nil
	}
	return versionAtOrBefore(versions, lsn) != nil, nil
}

func (t *Timeline) RelSize(_ context.Context, rel ids.RelTag, lsn ids.LSN) (uint32, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	versions, ok := t.relBlocks[rel]
	if !ok {
		return 0, nil // absent relation: ok=true, n_blocks=0
	}
	n := versionAtOrBefore(versions, lsn)
	if n == nil {
		return 0, nil
	}
	return *n, nil
}

func (t *Timeline) GetPageAtLSN(_ context.Context, tag ids.BufferTag, lsn ids.LSN) (ids.Page, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	versions, ok := t.pages[tag]
	if !ok {
		return ids.ZeroPage(), errors.Errorf("no such page %s", tag)
	}
	var best *ids.LSN
	for at := range versions {
		if at <= lsn && (best == nil || at > *best) {
			atCopy := at
			best = &atCopy
		}
	}
	if best == nil {
		return ids.ZeroPage(), errors.Errorf("no page version for %s at or before %s", tag, lsn)
	}
	return versions[*best], nil
}

func (t *Timeline) GetLastValidLSN() ids.LSN {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastValid
}

func (t *Timeline) GetPrevRecordLSN() ids.LSN {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.prevRecord
}

func (t *Timeline) AdvanceLastValidLSN(lsn ids.LSN) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if lsn > t.lastValid {
		t.prevRecord = t.lastValid
		t.lastValid = lsn
	}
}

// PutRawData appends a modification to this timeline's history. The
// reference implementation treats the payload as opaque — the real
// repository engine would replay it into its page store, which is out
// of scope here — so callers that want push-then-read coverage seed
// pages directly via SeedPage.
func (t *Timeline) PutRawData(_ context.Context, m repo.Modification) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = append(t.history, m)
	return nil
}

// SeedPage installs a page version directly, bypassing PutRawData; used
// by tests exercising the pagestream/basebackup handlers against known
// content.
func (t *Timeline) SeedPage(tag ids.BufferTag, lsn ids.LSN, page ids.Page) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pages[tag] == nil {
		t.pages[tag] = make(map[ids.LSN]ids.Page)
	}
	t.pages[tag][lsn] = page
	if t.relBlocks[tag.Rel] == nil {
		t.relBlocks[tag.Rel] = make(map[ids.LSN]uint32)
	}
	if n, ok := t.relBlocks[tag.Rel][lsn]; !ok || tag.BlkNum+1 > n {
		t.relBlocks[tag.Rel][lsn] = tag.BlkNum + 1
	}
	if lsn > t.lastValid {
		t.lastValid = lsn
	}
}

func (t *Timeline) History(_ context.Context) ([]repo.Modification, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]repo.Modification, len(t.history))
	copy(out, t.history)
	sort.SliceStable(out, func(i, j int) bool { return out[i].LSN < out[j].LSN })
	return out, nil
}

func (t *Timeline) GCIteration(_ context.Context, _ uint64, _ bool) (repo.GCStats, error) {
	start := time.Now()
	t.mu.RLock()
	nRel := len(t.relBlocks)
	t.mu.RUnlock()
	return repo.GCStats{
		NRelations: uint64(nRel),
		ElapsedMs:  uint64(time.Since(start).Milliseconds()),
	}, nil
}

func (t *Timeline) ControlFile() []byte { return t.controlFile }

func (t *Timeline) ContinueStreaming(_ repo.Greeting) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.streaming = true
	return nil
}

func (t *Timeline) StopStreaming() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.streaming = false
}

// IsStreaming reports whether ContinueStreaming has been called without a
// matching StopStreaming; test-only, mirroring SeedPage's purpose of
// letting callers observe state the interface itself doesn't expose.
func (t *Timeline) IsStreaming() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.streaming
}

func (t *Timeline) ProcessMsg(msg repo.ProposerAcceptorMessage) (repo.AcceptorProposerMessage, error) {
	// A real acceptor would run consensus bookkeeping here; that belongs
	// to the safekeeper's consensus algorithm, out of scope for this
	// reference implementation, which only acknowledges.
	if len(msg) == 0 {
		return nil, nil
	}
	ack := make(repo.AcceptorProposerMessage, len(msg))
	copy(ack, msg)
	return ack, nil
}

func versionAtOrBefore(versions map[ids.LSN]uint32, lsn ids.LSN) *uint32 {
	var best *ids.LSN
	for at := range versions {
		if at <= lsn && (best == nil || at > *best) {
			atCopy := at
			best = &atCopy
		}
	}
	if best == nil {
		return nil
	}
	v := versions[*best]
	return &v
}

func cloneLatest(src *Timeline) map[ids.BufferTag]map[ids.LSN]ids.Page {
	src.mu.RLock()
	defer src.mu.RUnlock()
	out := make(map[ids.BufferTag]map[ids.LSN]ids.Page, len(src.pages))
	for tag, versions := range src.pages {
		cp := make(map[ids.LSN]ids.Page, len(versions))
		for lsn, p := range versions {
			cp[lsn] = p
		}
		out[tag] = cp
	}
	return out
}

func cloneBlocks(src *Timeline) map[ids.RelTag]map[ids.LSN]uint32 {
	src.mu.RLock()
	defer src.mu.RUnlock()
	out := make(map[ids.RelTag]map[ids.LSN]uint32, len(src.relBlocks))
	for rel, versions := range src.relBlocks {
		cp := make(map[ids.LSN]uint32, len(versions))
		for lsn, n := range versions {
			cp[lsn] = n
		}
		out[rel] = cp
	}
	return out
}

func deriveID(parent ids.TimelineId, name string) [16]byte {
	var out [16]byte
	copy(out[:], parent[:])
	for i, c := range []byte(name) {
		out[i%16] ^= c
	}
	return out
}
