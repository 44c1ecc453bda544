package vpk

// Magic bytes of a VPK directory/single file, read as a little-endian u32.
const headerMagic = 0x55AA1234

// respawnVersion is the Titanfall/Apex "0x00030002" dialect, explicitly
// rejected by this package (spec §1 Non-goals, §4.4).
const respawnVersion = 0x00030002

// headerSizeV1 is the size of the version-1 header (magic, version,
// tree-size); headerSizeV2 adds four more u32 fields.
const (
	headerSizeV1 = 12
	headerSizeV2 = 28
)

// Header holds the fixed on-disk header fields. FileData/ArchiveMD5/OtherMD5
// /Signature section sizes are zero for version 1 archives, which carry no
// such sections.
type Header struct {
	Version  uint32
	TreeSize uint32

	FileDataSectionSize   uint32
	ArchiveMD5SectionSize uint32
	OtherMD5SectionSize   uint32
	SignatureSectionSize  uint32
}

// Size returns the on-disk byte size of the header itself.
func (h *Header) Size() int64 {
	if h.Version == 1 {
		return headerSizeV1
	}
	return headerSizeV2
}

// parseHeader reads and validates the fixed header. Magic mismatch, the
// rejected Respawn dialect, and any other unknown version each produce a
// distinct Kind (spec §4.4).
func parseHeader(r *reader) (*Header, error) {
	magic := r.u32()
	version := r.u32()
	if r.Err() != nil {
		return nil, wrapErr(r.Err(), KindInvalidFormat, "failed to read VPK header")
	}
	if magic != headerMagic {
		return nil, newErr(KindInvalidMagic, "not a VPK archive: bad magic 0x%08X", magic)
	}
	switch version {
	case respawnVersion:
		return nil, newErr(KindUnsupported, "Respawn VPK dialect (version 0x%08X) is not supported", version)
	case 1, 2:
		// supported
	default:
		return nil, newErr(KindInvalidVersion, "unsupported VPK version %d", version)
	}

	h := &Header{Version: version}
	h.TreeSize = r.u32()
	if version == 2 {
		h.FileDataSectionSize = r.u32()
		h.ArchiveMD5SectionSize = r.u32()
		h.OtherMD5SectionSize = r.u32()
		h.SignatureSectionSize = r.u32()
	}
	if r.Err() != nil {
		return nil, wrapErr(r.Err(), KindInvalidFormat, "failed to read VPK header")
	}
	return h, nil
}

// parseTree reads the three-level (type/directory/filename) nested list
// terminated by empty strings at each level, adding every entry it finds to
// store. It returns the realized tree size: the number of bytes actually
// consumed, which the caller uses instead of the declared Header.TreeSize to
// tolerate tampering (spec §4.4).
func parseTree(r *reader, store *entryStore) (realizedSize int64, err error) {
	var consumed countingCounter

	for {
		typ := r.cstring()
		consumed.addString(typ)
		if r.Err() != nil {
			return 0, wrapErr(r.Err(), KindInvalidFormat, "failed to read tree type")
		}
		if typ == "" {
			break
		}

		for {
			dir := r.cstring()
			consumed.addString(dir)
			if r.Err() != nil {
				return 0, wrapErr(r.Err(), KindInvalidFormat, "failed to read tree directory")
			}
			if dir == "" {
				break
			}

			for {
				name := r.cstring()
				consumed.addString(name)
				if r.Err() != nil {
					return 0, wrapErr(r.Err(), KindInvalidFormat, "failed to read tree file name")
				}
				if name == "" {
					break
				}

				e := &Entry{
					Type:      typ,
					Directory: dir,
					FileName:  name,
				}
				e.CRC32 = r.u32()
				smallDataSize := r.u16()
				e.ChunkIndex = r.u16()
				e.Offset = r.u32()
				e.Length = r.u32()
				terminator := r.u16()
				consumed.add(4 + 2 + 2 + 4 + 4 + 2)

				if r.Err() != nil {
					return 0, wrapErr(r.Err(), KindInvalidFormat, "failed to read tree entry record for %q", name)
				}
				if terminator != treeTerminator {
					return 0, newErr(KindInvalidFormat,
						"invalid tree terminator for %q: expected 0x%04X, got 0x%04X", name, treeTerminator, terminator)
				}

				if smallDataSize > 0 {
					e.SmallData = r.bytesN(int(smallDataSize))
					consumed.add(int64(smallDataSize))
					if r.Err() != nil {
						return 0, wrapErr(r.Err(), KindInvalidFormat, "failed to read preload data for %q", name)
					}
				}

				store.add(e)
			}
		}
	}

	return consumed.n, nil
}

// countingCounter is a trivial running total, kept as a named type instead
// of a bare int64 so parseTree's bookkeeping reads clearly at each call site.
type countingCounter struct{ n int64 }

func (c *countingCounter) add(n int64) { c.n += n }
func (c *countingCounter) addString(s string) {
	c.n += int64(len(s)) + 1 // +1 for the terminating 0x00
}

// OtherMD5 holds the three whole-section MD5 summaries (spec §4.4, §4.7).
// Present only when the corresponding section is exactly 48 bytes; legacy
// archives that declare any other size carry no OtherMD5 block.
type OtherMD5 struct {
	TreeChecksum      [16]byte
	HashTableChecksum [16]byte
	WholeFileChecksum [16]byte
}

// parseOtherMD5 decodes a 48-byte other-MD5 block, or returns nil if data is
// not exactly that size (legacy tolerance).
func parseOtherMD5(data []byte) *OtherMD5 {
	if len(data) != 48 {
		return nil
	}
	om := &OtherMD5{}
	copy(om.TreeChecksum[:], data[0:16])
	copy(om.HashTableChecksum[:], data[16:32])
	copy(om.WholeFileChecksum[:], data[32:48])
	return om
}

func (om *OtherMD5) encode() []byte {
	buf := make([]byte, 0, 48)
	buf = append(buf, om.TreeChecksum[:]...)
	buf = append(buf, om.HashTableChecksum[:]...)
	buf = append(buf, om.WholeFileChecksum[:]...)
	return buf
}
