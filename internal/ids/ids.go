// Package ids provides the identifiers of the data model: tenant and
// timeline identifiers, log sequence numbers, and the relation/page tags
// that index into them.
package ids

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// TenantId is a 128-bit opaque value, canonical form lowercase hex.
// Backed by google/uuid since both are 128-bit values with the same
// canonical textual form modulo the dashes, which we strip on output.
type TenantId uuid.UUID

// TimelineId is a 128-bit opaque value, same representation as TenantId.
type TimelineId uuid.UUID

// TenantTimelineId is the ordered pair (tenant, timeline).
type TenantTimelineId struct {
	Tenant   TenantId
	Timeline TimelineId
}

var (
	ZeroTenantId   TenantId
	ZeroTimelineId TimelineId
)

// ParseTenantId parses a 32-character lowercase-hex string (no dashes).
func ParseTenantId(hex string) (TenantId, error) {
	u, err := parseHex128(hex)
	if err != nil {
		return ZeroTenantId, fmt.Errorf("tenant id: %w", err)
	}
	return TenantId(u), nil
}

func ParseTimelineId(hex string) (TimelineId, error) {
	u, err := parseHex128(hex)
	if err != nil {
		return ZeroTimelineId, fmt.Errorf("timeline id: %w", err)
	}
	return TimelineId(u), nil
}

func parseHex128(s string) (uuid.UUID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 32 {
		return uuid.UUID{}, fmt.Errorf("expected 32 hex chars, got %d", len(s))
	}
	// google/uuid.Parse wants dashes or none; it accepts the bare 32-char form.
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, err
	}
	return u, nil
}

func (t TenantId) String() string { return strings.ReplaceAll(uuid.UUID(t).String(), "-", "") }
func (t TimelineId) String() string {
	return strings.ReplaceAll(uuid.UUID(t).String(), "-", "")
}

func (t TenantId) IsZero() bool   { return t == ZeroTenantId }
func (t TimelineId) IsZero() bool { return t == ZeroTimelineId }

func (t TenantTimelineId) String() string {
	return t.Tenant.String() + "/" + t.Timeline.String()
}

// LSN is a 64-bit monotonically non-decreasing log position. LSN(0) is the
// sentinel "unset".
type LSN uint64

const InvalidLSN LSN = 0

func (l LSN) IsValid() bool { return l != InvalidLSN }

func (l LSN) String() string {
	return fmt.Sprintf("%X/%X", uint64(l)>>32, uint64(l)&0xFFFFFFFF)
}

// MaxLSN returns the larger of two LSNs.
func MaxLSN(a, b LSN) LSN {
	if a > b {
		return a
	}
	return b
}

// BLCKSZ is the fixed Postgres page size this system materializes.
const BLCKSZ = 8192

// Page is a fixed-size page image.
type Page [BLCKSZ]byte

// ZeroPage is the sentinel returned on a failed Read.
func ZeroPage() Page { return Page{} }

// RelTag uniquely identifies a relation fork.
type RelTag struct {
	SpcNode uint32
	DbNode  uint32
	RelNode uint32
	ForkNum uint8
}

func (r RelTag) String() string {
	return fmt.Sprintf("%d/%d/%d.%d", r.SpcNode, r.DbNode, r.RelNode, r.ForkNum)
}

// BufferTag uniquely identifies a page within a relation.
type BufferTag struct {
	Rel    RelTag
	BlkNum uint32
}

func (b BufferTag) String() string { return fmt.Sprintf("%s[%d]", b.Rel, b.BlkNum) }

// PutBytes / LSNFromBytes are small helpers kept local to avoid importing
// encoding/binary at every call site that only needs LSN<->bytes.
func (l LSN) PutBytes(b []byte) { binary.BigEndian.PutUint64(b, uint64(l)) }

func LSNFromBytes(b []byte) LSN { return LSN(binary.BigEndian.Uint64(b)) }
