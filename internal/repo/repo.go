// Package repo names the external collaborator interfaces this service
// calls across: the on-disk page cache / repository engine and its
// per-timeline view. Both are external collaborators whose real
// implementation is out of scope here; this package only fixes the
// boundary this core calls across, plus (in the memrepo subpackage) an
// in-memory reference implementation used by tests and the demo
// binaries.
package repo

import (
	"context"

	"github.com/zenithdb/pageserver/internal/ids"
)

// Modification is one entry of the push stream: each CopyData payload
// is a length-self-describing serialization of one
// Modification{ObjectTag, Lsn, Bytes}.
type Modification struct {
	Tag  uint8
	LSN  ids.LSN
	Data []byte
}

// GCStats is the counter set do_gc returns, one column per field in
// this order.
type GCStats struct {
	NRelations  uint64
	Truncated   uint64
	Deleted     uint64
	PrepDeleted uint64
	SlruDeleted uint64
	ChkpDeleted uint64
	Dropped     uint64
	ElapsedMs   uint64
}

// ProposerAcceptorMessage and AcceptorProposerMessage are opaque,
// length-framed payloads exchanged with the WAL proposer once a Greeting
// has been processed. Their internal structure belongs to the
// safekeeper consensus algorithm, out of scope here; we pass them
// through uninterpreted.
type ProposerAcceptorMessage []byte
type AcceptorProposerMessage []byte

// Greeting is the first message of a WAL-receive session, enriched with
// the original proposer-greeting's additional fields (system id,
// timeline history id, protocol version).
type Greeting struct {
	SystemID        uint64
	Tli             uint32
	Tenant          ids.TenantId
	Timeline        ids.TimelineId
	ProtocolVersion uint32
}

// Timeline is the per-(tenant,timeline) view this core calls into.
type Timeline interface {
	RelExists(ctx context.Context, rel ids.RelTag, lsn ids.LSN) (bool, error)
	RelSize(ctx context.Context, rel ids.RelTag, lsn ids.LSN) (uint32, error)
	GetPageAtLSN(ctx context.Context, tag ids.BufferTag, lsn ids.LSN) (ids.Page, error)

	GetLastValidLSN() ids.LSN
	GetPrevRecordLSN() ids.LSN
	AdvanceLastValidLSN(lsn ids.LSN)

	PutRawData(ctx context.Context, m Modification) error

	// History returns the full sequence of modifications applied so far,
	// in LSN order; used by request_push to forward local history to a
	// peer pageserver.
	History(ctx context.Context) ([]Modification, error)

	GCIteration(ctx context.Context, horizon uint64, compact bool) (GCStats, error)

	ControlFile() []byte

	// Safekeeper-side hooks.
	ContinueStreaming(g Greeting) error
	StopStreaming()
	ProcessMsg(msg ProposerAcceptorMessage) (AcceptorProposerMessage, error)
}

// BranchInfo is the JSON-encodable shape branch_create/branch_list
// return.
type BranchInfo struct {
	Name       string `json:"name"`
	TimelineID string `json:"timeline_id"`
	LatestLSN  string `json:"latest_valid_lsn"`
}

// Repository is the tenant-scoped storage engine handle.
type Repository interface {
	GetTimeline(id ids.TimelineId) (Timeline, error)
	CreateEmptyTimeline(id ids.TimelineId, startLSN ids.LSN) (Timeline, error)

	// Timelines enumerates every timeline this repository currently
	// knows about. Within a single tenant's repository the only
	// meaningful iteration is over its timelines (branches), so that is
	// what this enumerates — see DESIGN.md's Open Question resolution.
	Timelines() []ids.TimelineId

	BranchCreate(name string, startpoint ids.TimelineId) (BranchInfo, error)
	BranchList() ([]BranchInfo, error)
}

// ErrNotFound is returned by GetTimeline when the timeline id is unknown
// (tenant lookups go through internal/tenant and return a perr
// ResourceNotFound error instead), distinguished from other errors so callers can map it onto
// the ResourceNotFound error kind without string matching.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "repo: not found" }
