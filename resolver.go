package vpk

import (
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
)

// chunkFileName builds the sibling chunk file name for a given index:
// <base>_NNN.vpk, NNN zero-padded to three digits (spec §6).
func chunkFileName(base string, index uint16) string {
	return fmt.Sprintf("%s_%03d.vpk", base, index)
}

// openChunkFile opens a fresh handle to the external chunk file for index.
// Per spec §5, a new handle is opened for every external-chunk read rather
// than being cached on the archive.
func openChunkFile(base string, index uint16) (*os.File, error) {
	name := chunkFileName(base, index)
	f, err := os.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, wrapErr(err, KindNotFound, "chunk file %s not found", name)
		}
		return nil, wrapErr(err, KindNotFound, "failed to open chunk file %s", name)
	}
	return f, nil
}

// dataSource locates the byte source and absolute offset for an entry's
// archive-resident bytes, returning a closer that must be released once the
// caller is done reading (a no-op for embedded entries, since those read
// through the archive's shared primary source).
func (a *Archive) dataSource(e *Entry) (src io.ReaderAt, closer io.Closer, absOffset int64, err error) {
	if e.IsEmbedded() {
		if a.primaryReaderAt == nil {
			return nil, nil, 0, newErr(KindInvalidState, "archive has no primary byte source")
		}
		return a.primaryReaderAt, noopCloser{}, a.dataRegionOffset + int64(e.Offset), nil
	}

	f, err := openChunkFile(a.baseName, e.ChunkIndex)
	if err != nil {
		return nil, nil, 0, err
	}
	return f, f, int64(e.Offset), nil
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }

// mmapCacheKey is the cache key for the archive's memory-map cache: the
// chunk index, with embeddedChunk standing in for "the directory file
// itself" (spec §3 "a cache of memory-mapped chunks keyed by chunk index").
type mmapCacheKey = uint16

// mappedChunk owns a memory map and, for external chunk files, the file
// handle it was taken over. Both are released together.
type mappedChunk struct {
	m mmap.MMap
	f *os.File // nil for the embedded/primary mapping
}

func (mc *mappedChunk) close() error {
	err := mc.m.Unmap()
	if mc.f != nil {
		if cerr := mc.f.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// smallInline is the threshold under (or at) which mapped reads return an
// owned in-memory copy instead of a real mmap view (spec §4.5).
const smallInline = 4096

// mappedBytes returns a read-only view of an entry's archive-resident
// bytes (excluding preload), preferring a memory map and falling back to an
// owned buffer for small entries or non-file-backed primary sources.
func (a *Archive) mappedBytes(e *Entry) ([]byte, error) {
	if e.TotalLength() <= smallInline || len(e.SmallData) > 0 {
		return a.readIntoMemory(e)
	}

	if e.IsEmbedded() {
		if a.primaryFile == nil {
			// Primary isn't file-backed; no map possible, fall back.
			return a.readIntoMemory(e)
		}
		mc, err := a.mappedChunkFor(embeddedChunk, a.primaryFile, false)
		if err != nil {
			return nil, err
		}
		start := a.dataRegionOffset + int64(e.Offset)
		end := start + int64(e.Length)
		if end > int64(len(mc.m)) {
			return nil, newErr(KindOutOfRange, "entry %q extends past mapped directory file", e.FullPath())
		}
		return mc.m[start:end], nil
	}

	f, err := openChunkFile(a.baseName, e.ChunkIndex)
	if err != nil {
		return nil, err
	}
	mc, err := a.mappedChunkFor(e.ChunkIndex, f, true)
	if err != nil {
		return nil, err
	}
	start := int64(e.Offset)
	end := start + int64(e.Length)
	if end > int64(len(mc.m)) {
		return nil, newErr(KindOutOfRange, "entry %q extends past mapped chunk file", e.FullPath())
	}
	return mc.m[start:end], nil
}

// mappedChunkFor returns the cached mapping for index, creating it (and
// taking ownership of f, if ownsFile) on first use.
func (a *Archive) mappedChunkFor(index mmapCacheKey, f *os.File, ownsFile bool) (*mappedChunk, error) {
	a.mmapMu.Lock()
	defer a.mmapMu.Unlock()

	if mc, ok := a.mmapCache[index]; ok {
		if ownsFile {
			f.Close() // reusing the cached mapping; this handle isn't needed
		}
		return mc, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		if ownsFile {
			f.Close()
		}
		return nil, wrapErr(err, KindInvalidFormat, "failed to memory-map chunk %d", index)
	}

	mc := &mappedChunk{m: m}
	if ownsFile {
		mc.f = f
	}
	a.mmapCache[index] = mc
	return mc, nil
}

// readIntoMemory reads an entry's archive-resident bytes into an owned
// buffer without mapping, used for small entries and stream-backed
// archives (spec §4.5, §9 "Memory maps and lifetimes").
func (a *Archive) readIntoMemory(e *Entry) ([]byte, error) {
	src, closer, off, err := a.dataSource(e)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	buf := make([]byte, e.Length)
	if len(buf) > 0 {
		if _, err := src.ReadAt(buf, off); err != nil && err != io.EOF {
			return nil, wrapErr(err, KindInvalidFormat, "failed to read entry %q", e.FullPath())
		}
	}
	return buf, nil
}
