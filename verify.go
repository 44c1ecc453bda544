package vpk

import (
	"fmt"
	"io"
	"sort"

	"go.uber.org/multierr"
)

// VerifyTreeChecksum recomputes the MD5 over [headerSize, headerSize+
// treeSize) and compares it to OtherMD5.TreeChecksum (spec §4.7). Returns
// nil if the archive carries no OtherMD5 block (legacy tolerance) or if the
// checksum matches.
func (a *Archive) VerifyTreeChecksum() error {
	if a.otherMD5 == nil {
		return nil
	}
	sum, err := a.hashRegionMD5(a.headerSize, a.dataRegionOffset-a.headerSize)
	if err != nil {
		return err
	}
	return compareChecksum("tree", sum, a.otherMD5.TreeChecksum)
}

// VerifyHashTableChecksum recomputes the MD5 over the raw per-chunk hash
// section bytes and compares it to OtherMD5.HashTableChecksum. An absent
// hash section hashes as empty input, matching the writer's own behavior
// when it has nothing to hash (spec §4.7, §4.8 step 7).
func (a *Archive) VerifyHashTableChecksum() error {
	if a.otherMD5 == nil {
		return nil
	}
	sum, err := a.hashRegionMD5(a.archiveMD5Offset, int64(a.header.ArchiveMD5SectionSize))
	if err != nil {
		return err
	}
	return compareChecksum("hash-table", sum, a.otherMD5.HashTableChecksum)
}

// VerifyWholeFileChecksum recomputes the MD5 over everything from offset 0
// up to (but excluding) the whole-file checksum field itself, and compares
// it to OtherMD5.WholeFileChecksum.
func (a *Archive) VerifyWholeFileChecksum() error {
	if a.otherMD5 == nil {
		return nil
	}
	boundary := a.otherMD5Offset + 32 // past tree-checksum and hash-table-checksum
	sum, err := a.hashRegionMD5(0, boundary)
	if err != nil {
		return err
	}
	return compareChecksum("whole-file", sum, a.otherMD5.WholeFileChecksum)
}

func (a *Archive) hashRegionMD5(off, length int64) ([16]byte, error) {
	if length <= 0 {
		return md5Sum16(nil), nil
	}
	h := newMD5Hasher()
	if err := hashRegion(a.primary, off, length, h, nil); err != nil {
		return [16]byte{}, wrapErr(err, KindInvalidFormat, "failed to hash region")
	}
	return h.Sum16(), nil
}

func compareChecksum(name string, got, want [16]byte) error {
	if got == want {
		return nil
	}
	return newErr(KindHashMismatch, "%s checksum mismatch (expected %s, got %s)",
		name, hexUpper(want[:]), hexUpper(got[:]))
}

func hexUpper(b []byte) string {
	const hexDigits = "0123456789ABCDEF"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0xF]
	}
	return string(out)
}

// VerifyChunkHashes walks the per-chunk hash table and re-hashes each
// recorded fraction of its chunk stream, comparing against the recorded
// checksum. Records are grouped by ChunkIndex and visited in (chunk-index,
// offset) order; each chunk file is opened once per group and closed on
// transition. Embedded records are read through the archive's primary
// source, which this path never closes (spec §4.7, §5).
func (a *Archive) VerifyChunkHashes() error {
	if len(a.chunkHashes) == 0 {
		return nil
	}

	groups := groupByChunk(a.chunkHashes)

	var errs error
	for _, idx := range sortedChunkIndices(groups) {
		if err := a.verifyChunkGroup(idx, groups[idx]); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (a *Archive) verifyChunkGroup(idx uint16, records []ChunkHashEntry) error {
	sort.Slice(records, func(i, j int) bool { return records[i].Offset < records[j].Offset })

	var (
		src        io.ReaderAt
		closer     io.Closer
		baseOffset int64
	)
	if idx == embeddedChunk {
		// Embedded chunk-hash offsets are relative to the start of the data
		// region, the same convention Entry.Offset uses for embedded entries
		// (resolver.go's dataSource adds dataRegionOffset there too).
		src, closer, baseOffset = a.primaryReaderAt, noopCloser{}, a.dataRegionOffset
	} else {
		f, err := openChunkFile(a.baseName, idx)
		if err != nil {
			return err
		}
		src, closer = f, f
	}
	defer closer.Close()

	for _, rec := range records {
		h, err := newChunkHasher(rec.Kind)
		if err != nil {
			return err
		}
		if err := copyAtInto(h, src, baseOffset+int64(rec.Offset), int64(rec.Length)); err != nil {
			return wrapErr(err, KindInvalidFormat, "failed to read chunk %d fraction at offset %d", idx, rec.Offset).
				withDetail("chunk_index", idx)
		}
		sum := h.Sum16()
		if sum != rec.Checksum {
			return newErr(KindHashMismatch,
				"chunk %d fraction at offset %d (%s) mismatch: expected %s, got %s",
				idx, rec.Offset, rec.Kind, hexUpper(rec.Checksum[:]), hexUpper(sum[:])).
				withDetail("chunk_index", idx)
		}
		a.progress.Report(fmt.Sprintf("verified chunk %d fraction at offset %d", idx, rec.Offset))
	}
	return nil
}

func copyAtInto(w io.Writer, src io.ReaderAt, off, length int64) error {
	buf := make([]byte, 64*1024)
	remaining := length
	pos := off
	for remaining > 0 {
		n := int64(len(buf))
		if n > remaining {
			n = remaining
		}
		read, err := src.ReadAt(buf[:n], pos)
		if read > 0 {
			if _, werr := w.Write(buf[:read]); werr != nil {
				return werr
			}
		}
		pos += int64(read)
		remaining -= int64(read)
		if err != nil {
			if err == io.EOF && remaining == 0 {
				break
			}
			return err
		}
	}
	return nil
}

func groupByChunk(entries []ChunkHashEntry) map[uint16][]ChunkHashEntry {
	groups := make(map[uint16][]ChunkHashEntry)
	for _, e := range entries {
		groups[e.ChunkIndex] = append(groups[e.ChunkIndex], e)
	}
	return groups
}

func sortedChunkIndices(groups map[uint16][]ChunkHashEntry) []uint16 {
	out := make([]uint16, 0, len(groups))
	for idx := range groups {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// VerifyFileCRCs iterates every entry, grouped and ordered by (chunk-index,
// offset), and extracts each with CRC validation enabled, returning every
// mismatch combined (spec §4.7).
func (a *Archive) VerifyFileCRCs() error {
	entries := a.store.all()
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ChunkIndex != entries[j].ChunkIndex {
			return entries[i].ChunkIndex < entries[j].ChunkIndex
		}
		return entries[i].Offset < entries[j].Offset
	})

	var errs error
	for _, e := range entries {
		if _, err := a.Extract(e, true); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", e.FullPath(), err))
		}
		a.progress.Report("checked CRC for " + e.FullPath())
	}
	return errs
}

// IsSignatureValid reports whether the archive's signature verifies,
// without returning an error for an invalid (as opposed to malformed)
// signature. An archive with no signature is reported valid (spec §4.7).
func (a *Archive) IsSignatureValid() (bool, error) {
	if a.signature == nil {
		return true, nil
	}
	return verifySignature(a.signature, a.primary, a.signatureOffset)
}

// VerifyAll runs every integrity check and combines every failure,
// including signature invalidity (unlike IsSignatureValid, which reports it
// as a plain boolean) into a single error (spec §7).
func (a *Archive) VerifyAll() error {
	var errs error

	if err := a.VerifyTreeChecksum(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := a.VerifyHashTableChecksum(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := a.VerifyWholeFileChecksum(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := a.VerifyChunkHashes(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := a.VerifyFileCRCs(); err != nil {
		errs = multierr.Append(errs, err)
	}

	valid, err := a.IsSignatureValid()
	if err != nil {
		errs = multierr.Append(errs, err)
	} else if !valid {
		errs = multierr.Append(errs, newErr(KindSignatureInvalid, "RSA signature verification failed"))
	}

	if errs != nil {
		a.log.Warnw("VPK verification failed", "base_name", a.baseName, "error", errs)
	}
	return errs
}
