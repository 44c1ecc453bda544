package vpk

import (
	"crypto/md5"
	"hash"
	"io"
	"os"
)

// fractionSize is the chunk-hash fraction length the writer records hashes
// over: 1 MiB, matching the reference writer (spec §4.8 step 5).
const fractionSize = 1 << 20

// placement assigns an entry its on-disk chunk index, offset, and total
// byte length, computed by the next-fit placement pass below.
type placement struct {
	entry      *Entry
	chunkIndex uint16
	offset     uint32
	length     uint32
}

// computePlacement flattens entries (already in insertion order) and
// assigns each one a chunk index and offset with a simple next-fit
// algorithm: each entry goes at the current offset of the current chunk,
// and once the running offset reaches or exceeds chunkSize the next entry
// starts a new chunk, so a chunk can end up larger than chunkSize. A single entry larger than chunkSize
// still occupies its own contiguous region rather than being split (spec
// §4.8, §9 Open Question a). chunked=false places every entry embedded
// (chunkIndex = embeddedChunk) instead.
func computePlacement(entries []*Entry, chunkSize uint32, chunked bool) ([]placement, int, error) {
	out := make([]placement, len(entries))

	if !chunked {
		var offset uint32
		for i, e := range entries {
			total := uint32(e.TotalLength())
			out[i] = placement{entry: e, chunkIndex: embeddedChunk, offset: offset, length: total}
			offset += total
		}
		return out, 0, nil
	}

	var (
		chunkIndex uint16
		offset     uint32
	)
	for i, e := range entries {
		total := uint32(e.TotalLength())
		out[i] = placement{entry: e, chunkIndex: chunkIndex, offset: offset, length: total}
		offset += total
		if offset >= chunkSize {
			chunkIndex++
			offset = 0
		}
	}

	chunkCount := int(chunkIndex)
	if offset > 0 || len(entries) == 0 {
		chunkCount++
	}
	if chunkCount > maxChunkIndex {
		return nil, 0, newErr(KindTooManyChunks, "archive needs %d chunks, more than the %d maximum", chunkCount, maxChunkIndex)
	}
	return out, chunkCount, nil
}

// treeTypeGroup and treeDirGroup preserve first-seen order while grouping
// entries hierarchically for tree emission; placement already fixed each
// entry's chunk index/offset, so this grouping only affects the codec's
// nested name lists, not content layout.
type treeDirGroup struct {
	name    string
	entries []*Entry
}

type treeTypeGroup struct {
	name string
	dirs []treeDirGroup
}

func groupForTree(entries []*Entry) []treeTypeGroup {
	var types []treeTypeGroup
	typeIdx := make(map[string]int)
	dirIdx := make(map[string]map[string]int)

	for _, e := range entries {
		ti, ok := typeIdx[e.Type]
		if !ok {
			types = append(types, treeTypeGroup{name: e.Type})
			ti = len(types) - 1
			typeIdx[e.Type] = ti
			dirIdx[e.Type] = make(map[string]int)
		}
		di, ok := dirIdx[e.Type][e.Directory]
		if !ok {
			types[ti].dirs = append(types[ti].dirs, treeDirGroup{name: e.Directory})
			di = len(types[ti].dirs) - 1
			dirIdx[e.Type][e.Directory] = di
		}
		types[ti].dirs[di].entries = append(types[ti].dirs[di].entries, e)
	}
	return types
}

// entryContent returns the full bytes (preload + archive-resident) for an
// entry about to be written. Entries added via Add carry their whole
// content inline in SmallData pre-write (spec §9 "Preload handling on
// write"); entries carried over from a source this Archive was opened for
// reading are pulled through Extract instead, so writing out an
// already-open archive to a new location works without the caller manually
// re-reading every file.
func (a *Archive) entryContent(e *Entry) ([]byte, error) {
	if a.mode == modeRead {
		return a.Extract(e, false)
	}
	return e.SmallData, nil
}

// fractionHasher computes an MD5 over consecutive fractionSize-byte windows
// of whatever is written to it, appending a ChunkHashEntry to records each
// time a window completes or (via finish) when the stream ends mid-window.
type fractionHasher struct {
	chunkIndex uint16
	pos        int64
	fracStart  int64
	h          hasher
	records    *[]ChunkHashEntry
}

func newFractionHasher(chunkIndex uint16, records *[]ChunkHashEntry) *fractionHasher {
	return &fractionHasher{chunkIndex: chunkIndex, h: newMD5Hasher(), records: records}
}

func (fh *fractionHasher) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		remain := fractionSize - (fh.pos - fh.fracStart)
		n := int64(len(p))
		if n > remain {
			n = remain
		}
		fh.h.Write(p[:n])
		fh.pos += n
		p = p[n:]
		if fh.pos-fh.fracStart == fractionSize {
			fh.flush()
		}
	}
	return total, nil
}

func (fh *fractionHasher) flush() {
	length := fh.pos - fh.fracStart
	if length == 0 {
		return
	}
	*fh.records = append(*fh.records, ChunkHashEntry{
		ChunkIndex: fh.chunkIndex,
		Kind:       HashKindMD5,
		Offset:     uint32(fh.fracStart),
		Length:     uint32(length),
		Checksum:   fh.h.Sum16(),
	})
	fh.fracStart = fh.pos
	fh.h = newMD5Hasher()
}

func (fh *fractionHasher) finish() { fh.flush() }

// WriteSingleFile writes every entry currently in the archive into a single
// self-contained file at targetPath.
func (a *Archive) WriteSingleFile(targetPath string) error {
	return a.write(targetPath, 0, false)
}

// WriteChunked writes every entry currently in the archive as a directory
// file plus external chunk files of at most chunkSize bytes each.
func (a *Archive) WriteChunked(targetPath string, chunkSize uint32) error {
	if chunkSize == 0 {
		return newErr(KindOutOfRange, "chunk size must be positive")
	}
	return a.write(targetPath, chunkSize, true)
}

func (a *Archive) write(targetPath string, chunkSize uint32, chunked bool) (err error) {
	entries := a.store.orderedAll()
	if len(entries) == 0 {
		return newErr(KindInvalidState, "cannot write an empty archive")
	}

	placements, chunkCount, perr := computePlacement(entries, chunkSize, chunked)
	if perr != nil {
		return perr
	}

	base, _ := deriveBaseName(targetPath)
	dirPath := base + ".vpk"
	if chunked {
		dirPath = base + "_dir.vpk"
	}

	dirFile, err := os.Create(dirPath)
	if err != nil {
		return wrapErr(err, KindInvalidState, "failed to create %s", dirPath)
	}
	opened := []*os.File{dirFile}
	defer func() {
		if err != nil {
			for _, f := range opened {
				f.Truncate(0)
				f.Close()
			}
		}
	}()

	// Step 1: placeholder header.
	if err = writePlaceholderHeader(dirFile); err != nil {
		return err
	}

	// Step 2: tree.
	treeStart, terr := dirFile.Seek(0, io.SeekCurrent)
	if terr != nil {
		return wrapErr(terr, KindInvalidState, "failed to seek after header")
	}
	if err = emitTree(dirFile, groupForTree(entries), placements); err != nil {
		return err
	}
	treeEnd, terr := dirFile.Seek(0, io.SeekCurrent)
	if terr != nil {
		return wrapErr(terr, KindInvalidState, "failed to seek after tree")
	}
	treeSize := treeEnd - treeStart

	var hashRecords []ChunkHashEntry
	var fileDataSize int64

	if !chunked {
		fh := newFractionHasher(embeddedChunk, &hashRecords)
		w := io.MultiWriter(dirFile, fh)
		for _, pl := range placements {
			content, cerr := a.entryContent(pl.entry)
			if cerr != nil {
				err = cerr
				return err
			}
			if _, werr := w.Write(content); werr != nil {
				err = wrapErr(werr, KindInvalidState, "failed to write entry %q", pl.entry.FullPath())
				return err
			}
		}
		fh.finish()
		fileDataSize = fh.pos
	} else {
		byChunk := make([][]placement, chunkCount)
		for _, pl := range placements {
			byChunk[pl.chunkIndex] = append(byChunk[pl.chunkIndex], pl)
		}
		for idx := 0; idx < chunkCount; idx++ {
			chunkPath := chunkFileName(base, uint16(idx))
			cf, cerr := os.Create(chunkPath)
			if cerr != nil {
				err = wrapErr(cerr, KindInvalidState, "failed to create %s", chunkPath)
				return err
			}
			opened = append(opened, cf)

			fh := newFractionHasher(uint16(idx), &hashRecords)
			w := io.MultiWriter(cf, fh)
			for _, pl := range byChunk[idx] {
				content, cerr := a.entryContent(pl.entry)
				if cerr != nil {
					err = cerr
					return err
				}
				if _, werr := w.Write(content); werr != nil {
					err = wrapErr(werr, KindInvalidState, "failed to write entry %q", pl.entry.FullPath())
					return err
				}
			}
			fh.finish()
			if cerr := cf.Close(); cerr != nil {
				err = wrapErr(cerr, KindInvalidState, "failed to close %s", chunkPath)
				return err
			}
			a.progress.Report("wrote chunk " + chunkPath)
		}
	}

	// Step 5: hash table.
	hashTableBytes := encodeChunkHashTable(hashRecords)
	if _, werr := dirFile.Write(hashTableBytes); werr != nil {
		err = wrapErr(werr, KindInvalidState, "failed to write hash table")
		return err
	}
	otherMD5Offset, terr := dirFile.Seek(0, io.SeekCurrent)
	if terr != nil {
		return wrapErr(terr, KindInvalidState, "failed to seek after hash table")
	}

	// Step 6: go back and fill in the real header.
	finalHeader := &Header{
		Version:               2,
		TreeSize:              uint32(treeSize),
		FileDataSectionSize:   uint32(fileDataSize),
		ArchiveMD5SectionSize: uint32(len(hashTableBytes)),
		OtherMD5SectionSize:   48,
		SignatureSectionSize:  0,
	}
	if err = rewriteHeader(dirFile, finalHeader); err != nil {
		return err
	}

	// Step 7: the three whole-section MD5 summaries. Whole-file covers
	// everything up to the whole-file checksum itself, which includes the
	// tree- and hash-table-checksum bytes ahead of it even though those
	// bytes aren't on disk yet (mirrors VerifyWholeFileChecksum's boundary
	// of otherMD5Offset+32, not otherMD5Offset).
	treeSum, terr := md5OfFileRange(dirFile, treeStart, treeSize)
	if terr != nil {
		return wrapErr(terr, KindInvalidState, "failed to hash tree region")
	}
	hashTableSum := md5Sum16(hashTableBytes)

	wholeFileHasher := md5.New()
	if terr = hashFileRangeInto(wholeFileHasher, dirFile, 0, otherMD5Offset); terr != nil {
		return wrapErr(terr, KindInvalidState, "failed to hash whole-file region")
	}
	wholeFileHasher.Write(treeSum[:])
	wholeFileHasher.Write(hashTableSum[:])
	var wholeFileSum [16]byte
	copy(wholeFileSum[:], wholeFileHasher.Sum(nil))

	om := &OtherMD5{TreeChecksum: treeSum, HashTableChecksum: hashTableSum, WholeFileChecksum: wholeFileSum}
	if _, terr = dirFile.Seek(otherMD5Offset, io.SeekStart); terr != nil {
		return wrapErr(terr, KindInvalidState, "failed to seek to write other-MD5 block")
	}
	if _, werr := dirFile.Write(om.encode()); werr != nil {
		err = wrapErr(werr, KindInvalidState, "failed to write other-MD5 block")
		return err
	}

	if cerr := dirFile.Close(); cerr != nil {
		err = wrapErr(cerr, KindInvalidState, "failed to close %s", dirPath)
		return err
	}

	a.log.Debugw("wrote VPK archive",
		"path", dirPath, "chunked", chunked, "entries", len(entries), "chunks", chunkCount)
	return nil
}

// writePlaceholderHeader reserves headerSizeV2 bytes with just magic and
// version filled in; rewriteHeader backfills the rest once the section
// sizes are known (spec §4.8 steps 1 and 6).
func writePlaceholderHeader(w io.Writer) error {
	if err := writeU32(w, headerMagic); err != nil {
		return err
	}
	if err := writeU32(w, 2); err != nil {
		return err
	}
	zeros := make([]byte, headerSizeV2-8)
	_, err := w.Write(zeros)
	return err
}

func rewriteHeader(f *os.File, h *Header) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return wrapErr(err, KindInvalidState, "failed to seek to header")
	}
	fields := []uint32{
		headerMagic, h.Version, h.TreeSize,
		h.FileDataSectionSize, h.ArchiveMD5SectionSize, h.OtherMD5SectionSize, h.SignatureSectionSize,
	}
	for _, v := range fields {
		if err := writeU32(f, v); err != nil {
			return wrapErr(err, KindInvalidState, "failed to rewrite header")
		}
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return wrapErr(err, KindInvalidState, "failed to seek to end of file")
	}
	return nil
}

func emitTree(w io.Writer, types []treeTypeGroup, placements []placement) error {
	byEntry := make(map[*Entry]placement, len(placements))
	for _, pl := range placements {
		byEntry[pl.entry] = pl
	}

	for _, t := range types {
		if err := writeCString(w, t.name); err != nil {
			return wrapErr(err, KindInvalidState, "failed to write tree type %q", t.name)
		}
		for _, d := range t.dirs {
			if err := writeCString(w, d.name); err != nil {
				return wrapErr(err, KindInvalidState, "failed to write tree directory %q", d.name)
			}
			for _, e := range d.entries {
				pl := byEntry[e]
				if err := writeCString(w, e.FileName); err != nil {
					return wrapErr(err, KindInvalidState, "failed to write tree file name %q", e.FileName)
				}
				if err := writeU32(w, e.CRC32); err != nil {
					return err
				}
				if err := writeU16(w, 0); err != nil { // small-data-size: preload is redistributed, not re-emitted
					return err
				}
				if err := writeU16(w, pl.chunkIndex); err != nil {
					return err
				}
				if err := writeU32(w, pl.offset); err != nil {
					return err
				}
				if err := writeU32(w, pl.length); err != nil {
					return err
				}
				if err := writeU16(w, treeTerminator); err != nil {
					return err
				}
			}
			if err := writeCString(w, ""); err != nil { // close file-name list
				return err
			}
		}
		if err := writeCString(w, ""); err != nil { // close directory list
			return err
		}
	}
	return writeCString(w, "") // close type list
}

// hashFileRangeInto hashes [off, off+length) of f into h without finalizing
// it, so callers can feed in further bytes that aren't on disk yet (the
// whole-file summary needs the tree- and hash-table-checksum bytes ahead of
// where it's written, before those bytes exist on disk).
func hashFileRangeInto(h hash.Hash, f *os.File, off, length int64) error {
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return err
	}
	if length > 0 {
		if _, err := io.CopyN(h, f, length); err != nil {
			return err
		}
	}
	return nil
}

func md5OfFileRange(f *os.File, off, length int64) ([16]byte, error) {
	h := md5.New()
	if err := hashFileRangeInto(h, f, off, length); err != nil {
		return [16]byte{}, err
	}
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}
