package control

import (
	"github.com/tinylib/msgp/msgp"

	"github.com/zenithdb/pageserver/internal/ids"
	"github.com/zenithdb/pageserver/internal/repo"
)

// EncodeModification and DecodeModification serialize a push-stream
// Modification{Tag, LSN, Data} record using msgp's hand-writable
// Append/Read primitives directly, rather than the codegen path — the
// library's own documented alternative and all this three-field record
// needs.
func EncodeModification(m repo.Modification) []byte {
	b := msgp.AppendArrayHeader(nil, 3)
	b = msgp.AppendUint8(b, m.Tag)
	b = msgp.AppendUint64(b, uint64(m.LSN))
	b = msgp.AppendBytes(b, m.Data)
	return b
}

func DecodeModification(b []byte) (repo.Modification, error) {
	sz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return repo.Modification{}, err
	}
	if sz != 3 {
		return repo.Modification{}, msgp.ArrayError{Wanted: 3, Got: sz}
	}
	tag, b, err := msgp.ReadUint8Bytes(b)
	if err != nil {
		return repo.Modification{}, err
	}
	lsn, b, err := msgp.ReadUint64Bytes(b)
	if err != nil {
		return repo.Modification{}, err
	}
	data, _, err := msgp.ReadBytesBytes(b, nil)
	if err != nil {
		return repo.Modification{}, err
	}
	return repo.Modification{Tag: tag, LSN: ids.LSN(lsn), Data: data}, nil
}
