// Package pagestream implements the binary request/response loop
// multiplexed inside libpq CopyData: the pagestream wire format itself,
// and the strictly-ordered, partial-failure-tolerant dispatch loop on
// top of it.
package pagestream

import (
	"encoding/binary"
	"fmt"

	"github.com/zenithdb/pageserver/internal/ids"
)

type RequestKind uint8

const (
	KindExists  RequestKind = 0
	KindNblocks RequestKind = 1
	KindRead    RequestKind = 2
)

func (k RequestKind) String() string {
	switch k {
	case KindExists:
		return "exists"
	case KindNblocks:
		return "nblocks"
	case KindRead:
		return "read"
	default:
		return "unknown"
	}
}

// requestLen is the fixed wire size of a Request: 1 + 4 + 4 + 4 + 1 + 4 + 8.
const requestLen = 1 + 4 + 4 + 4 + 1 + 4 + 8

// Request is the decoded form of a 26-byte pagestream request.
type Request struct {
	Kind RequestKind
	Buf  ids.BufferTag
	LSN  ids.LSN
}

// DecodeRequest parses the fixed 26-byte big-endian request. On malformed
// framing (wrong length, unknown kind) it returns an error and the
// session must end.
func DecodeRequest(b []byte) (Request, error) {
	if len(b) != requestLen {
		return Request{}, fmt.Errorf("pagestream: malformed request: want %d bytes, got %d", requestLen, len(b))
	}
	kind := RequestKind(b[0])
	if kind != KindExists && kind != KindNblocks && kind != KindRead {
		return Request{}, fmt.Errorf("pagestream: unknown request kind %d", b[0])
	}
	return Request{
		Kind: kind,
		Buf: ids.BufferTag{
			Rel: ids.RelTag{
				SpcNode: binary.BigEndian.Uint32(b[1:5]),
				DbNode:  binary.BigEndian.Uint32(b[5:9]),
				RelNode: binary.BigEndian.Uint32(b[9:13]),
				ForkNum: b[13],
			},
			BlkNum: binary.BigEndian.Uint32(b[14:18]),
		},
		LSN: ids.LSNFromBytes(b[18:26]),
	}, nil
}

// EncodeRequest is the inverse of DecodeRequest; exported for tests and
// for any in-process client exercising the protocol.
func EncodeRequest(r Request) []byte {
	b := make([]byte, requestLen)
	b[0] = byte(r.Kind)
	binary.BigEndian.PutUint32(b[1:5], r.Buf.Rel.SpcNode)
	binary.BigEndian.PutUint32(b[5:9], r.Buf.Rel.DbNode)
	binary.BigEndian.PutUint32(b[9:13], r.Buf.Rel.RelNode)
	b[13] = r.Buf.Rel.ForkNum
	binary.BigEndian.PutUint32(b[14:18], r.Buf.BlkNum)
	r.LSN.PutBytes(b[18:26])
	return b
}

const (
	tagStatus  = 100
	tagNblocks = 101
	tagRead    = 102
)

// Response is the tagged reply union. Exactly one of the three shapes
// is meaningful per Tag.
type Response struct {
	Tag     uint8
	OK      bool
	NBlocks uint32
	Page    ids.Page // only meaningful for Tag == tagRead
}

func StatusResponse(ok bool, nBlocks uint32) Response {
	return Response{Tag: tagStatus, OK: ok, NBlocks: nBlocks}
}

func NblocksResponse(ok bool, nBlocks uint32) Response {
	return Response{Tag: tagNblocks, OK: ok, NBlocks: nBlocks}
}

func ReadResponse(ok bool, page ids.Page) Response {
	return Response{Tag: tagRead, OK: ok, Page: page}
}

// Encode serializes a Response to its wire form: 6 bytes for
// Status/Nblocks, 8198 bytes for Read. The page field is always
// present and exactly 8192 bytes, zero-filled on failure.
func (r Response) Encode() []byte {
	var okByte byte
	if r.OK {
		okByte = 1
	}
	if r.Tag == tagRead {
		b := make([]byte, 1+1+4+ids.BLCKSZ)
		b[0] = tagRead
		b[1] = okByte
		binary.BigEndian.PutUint32(b[2:6], r.NBlocks)
		copy(b[6:], r.Page[:])
		return b
	}
	b := make([]byte, 1+1+4)
	b[0] = r.Tag
	b[1] = okByte
	binary.BigEndian.PutUint32(b[2:6], r.NBlocks)
	return b
}

// DecodeResponse is the inverse of Encode; exported for tests and for any
// in-process client exercising the protocol.
func DecodeResponse(b []byte) (Response, error) {
	if len(b) < 6 {
		return Response{}, fmt.Errorf("pagestream: malformed response: too short (%d bytes)", len(b))
	}
	tag := b[0]
	ok := b[1] != 0
	nBlocks := binary.BigEndian.Uint32(b[2:6])
	switch tag {
	case tagStatus:
		return StatusResponse(ok, nBlocks), nil
	case tagNblocks:
		return NblocksResponse(ok, nBlocks), nil
	case tagRead:
		if len(b) != 1+1+4+ids.BLCKSZ {
			return Response{}, fmt.Errorf("pagestream: malformed read response: want %d bytes, got %d", 1+1+4+ids.BLCKSZ, len(b))
		}
		var page ids.Page
		copy(page[:], b[6:])
		return Response{Tag: tagRead, OK: ok, NBlocks: nBlocks, Page: page}, nil
	default:
		return Response{}, fmt.Errorf("pagestream: unknown response tag %d", tag)
	}
}
