package vpk

// embeddedChunk is the sentinel chunk index meaning "this entry's bytes live
// in the directory file's own data region" rather than in an external
// _NNN.vpk chunk (spec §3).
const embeddedChunk = 0x7FFF

// maxChunkIndex is the largest number of external chunk files an archive
// may have (0x7FFE, so chunk indices stay below the embedded sentinel).
const maxChunkIndex = 0x7FFE

// treeTerminator is the 16-bit value that must follow every tree entry
// record.
const treeTerminator = 0xFFFF

// Entry describes a single logical file inside a VPK archive, addressable
// by (Directory, FileName, Type).
type Entry struct {
	FileName  string // without extension
	Directory string // normalized; noneMarker when root
	Type      string // extension without the dot; noneMarker when absent

	CRC32      uint32
	Length     uint32 // archive-resident byte count
	Offset     uint32 // within the chunk, or within the embedded data region
	ChunkIndex uint16 // embeddedChunk (0x7FFF) means "in the directory file"
	SmallData  []byte // preload bytes stored inline in the tree; may be empty
}

// TotalLength is the full size of the entry's content: preload plus
// archive-resident bytes.
func (e *Entry) TotalLength() uint64 {
	return uint64(e.Length) + uint64(len(e.SmallData))
}

// IsEmbedded reports whether the entry's bytes live in the directory file's
// data region rather than an external chunk file.
func (e *Entry) IsEmbedded() bool {
	return e.ChunkIndex == embeddedChunk
}

// FullPath recomposes the entry's canonical logical path.
func (e *Entry) FullPath() string {
	return joinPath(e.Type, e.Directory, e.FileName)
}
