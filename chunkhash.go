package vpk

import "fmt"

// HashKind identifies which digest a ChunkHashEntry's checksum uses.
type HashKind uint16

const (
	HashKindMD5    HashKind = 0
	HashKindBlake3 HashKind = 1

	// legacyEmbeddedHashKind is the on-disk marker for the legacy
	// (chunk-index=0, hash-kind=0x8000) encoding, rewritten on read to
	// (chunk-index=embeddedChunk, hash-kind=HashKindMD5) per spec §3/§4.4.
	// Its semantics beyond "treat as embedded MD5" are not documented
	// elsewhere; the rewrite is retained as-is (spec §9 Open Question b).
	legacyEmbeddedHashKind HashKind = 0x8000
)

// chunkHashRecordSize is the packed on-disk size of one hash-table record:
// u16 chunk-index, u16 hash-kind, u32 offset, u32 length, 16-byte checksum.
const chunkHashRecordSize = 2 + 2 + 4 + 4 + 16

// ChunkHashEntry is one record of the per-chunk hash table (spec §3, §4.4).
type ChunkHashEntry struct {
	ChunkIndex uint16
	Kind       HashKind
	Offset     uint32
	Length     uint32
	Checksum   [16]byte
}

// parseChunkHashTable decodes the packed per-chunk hash section.
func parseChunkHashTable(data []byte) ([]ChunkHashEntry, error) {
	if len(data)%chunkHashRecordSize != 0 {
		return nil, newErr(KindInvalidFormat,
			"per-chunk hash table size %d is not a multiple of the %d-byte record size", len(data), chunkHashRecordSize)
	}
	n := len(data) / chunkHashRecordSize
	out := make([]ChunkHashEntry, n)

	r := newReader(bytesReader(data))
	for i := 0; i < n; i++ {
		e := ChunkHashEntry{}
		e.ChunkIndex = r.u16()
		e.Kind = HashKind(r.u16())
		e.Offset = r.u32()
		e.Length = r.u32()
		copy(e.Checksum[:], r.bytesN(16))
		if r.Err() != nil {
			return nil, wrapErr(r.Err(), KindInvalidFormat, "failed to read chunk hash record %d", i)
		}

		if e.ChunkIndex == 0 && e.Kind == legacyEmbeddedHashKind {
			e.ChunkIndex = embeddedChunk
			e.Kind = HashKindMD5
		}

		out[i] = e
	}
	return out, nil
}

func encodeChunkHashTable(entries []ChunkHashEntry) []byte {
	buf := make([]byte, 0, len(entries)*chunkHashRecordSize)
	for _, e := range entries {
		buf = appendU16(buf, e.ChunkIndex)
		buf = appendU16(buf, uint16(e.Kind))
		buf = appendU32(buf, e.Offset)
		buf = appendU32(buf, e.Length)
		buf = append(buf, e.Checksum[:]...)
	}
	return buf
}

func appendU16(buf []byte, v uint16) []byte {
	return append(buf, byte(v), byte(v>>8))
}

func appendU32(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// newChunkHasher returns a fresh hasher for the given kind. Unknown kinds
// fail with InvalidFormat rather than silently defaulting (spec §9 "Hash
// abstraction").
func newChunkHasher(kind HashKind) (hasher, error) {
	switch kind {
	case HashKindMD5:
		return newMD5Hasher(), nil
	case HashKindBlake3:
		return newBlake3Hasher(), nil
	default:
		return nil, newErr(KindInvalidFormat, "unknown chunk hash kind %d", kind)
	}
}

func (k HashKind) String() string {
	switch k {
	case HashKindMD5:
		return "MD5"
	case HashKindBlake3:
		return "Blake3"
	default:
		return fmt.Sprintf("HashKind(%d)", uint16(k))
	}
}
