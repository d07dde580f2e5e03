package walrecv

import (
	"encoding/binary"
	"fmt"

	"github.com/zenithdb/pageserver/internal/repo"
)

// greeting wire layout: system_id(8) + tli(4) + protocol_version(4) +
// tenant(16) + timeline(16) + connstr_len(4) + connstr. Fixed-width
// except for the trailing connstr, carried through from the original
// safekeeper's ProposerGreeting fields (system_id, tli, protocol
// version) plus an optional downstream pageserver connection string a
// safekeeper can use to call back when it later needs one.
const greetingFixedLen = 8 + 4 + 4 + 16 + 16 + 4

// EncodeGreeting is the inverse of DecodeGreeting; used by tests and any
// in-process WAL proposer exercising this endpoint.
func EncodeGreeting(g repo.Greeting, connstr string) []byte {
	b := make([]byte, greetingFixedLen+len(connstr))
	binary.BigEndian.PutUint64(b[0:8], g.SystemID)
	binary.BigEndian.PutUint32(b[8:12], g.Tli)
	binary.BigEndian.PutUint32(b[12:16], g.ProtocolVersion)
	copy(b[16:32], g.Tenant[:])
	copy(b[32:48], g.Timeline[:])
	binary.BigEndian.PutUint32(b[48:52], uint32(len(connstr)))
	copy(b[52:], connstr)
	return b
}

// DecodeGreeting parses the first CopyData payload of a WAL-receive
// session. Any other shape is a protocol error.
func DecodeGreeting(b []byte) (repo.Greeting, string, error) {
	if len(b) < greetingFixedLen {
		return repo.Greeting{}, "", fmt.Errorf("walrecv: greeting too short: %d bytes", len(b))
	}
	var g repo.Greeting
	g.SystemID = binary.BigEndian.Uint64(b[0:8])
	g.Tli = binary.BigEndian.Uint32(b[8:12])
	g.ProtocolVersion = binary.BigEndian.Uint32(b[12:16])
	copy(g.Tenant[:], b[16:32])
	copy(g.Timeline[:], b[32:48])
	connLen := binary.BigEndian.Uint32(b[48:52])
	if uint32(len(b)-greetingFixedLen) != connLen {
		return repo.Greeting{}, "", fmt.Errorf("walrecv: greeting connstr length mismatch: header says %d, have %d", connLen, len(b)-greetingFixedLen)
	}
	connstr := string(b[greetingFixedLen:])
	return g, connstr, nil
}
