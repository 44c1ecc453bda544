package vpk

import (
	"hash/crc32"
	"io"
)

// crc32Of computes the IEEE CRC32 used throughout the format (entry
// checksums, CRC validation on extract).
func crc32Of(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// Extract returns the full content of e: its preload bytes (if any)
// followed by its archive-resident bytes. When validateCRC is true, the
// produced bytes are CRC32-checked against e.CRC32 and a KindCrcMismatch
// error is returned on mismatch (spec §4.6).
func (a *Archive) Extract(e *Entry, validateCRC bool) ([]byte, error) {
	out := make([]byte, e.TotalLength())
	n, err := a.extractInto(e, out)
	if err != nil {
		return nil, err
	}
	out = out[:n]

	if validateCRC {
		actual := crc32.ChecksumIEEE(out)
		if actual != e.CRC32 {
			return nil, newErr(KindCrcMismatch,
				"CRC32 mismatch for read data (expected %08X, got %08X).", e.CRC32, actual).
				withDetail("path", e.FullPath())
		}
	}
	return out, nil
}

// ExtractInto writes e's full content (preload then archive bytes) into
// dst, which must be at least e.TotalLength() bytes long, or the call fails
// with KindOutOfRange (spec §4.6). Returns the number of bytes written.
func (a *Archive) ExtractInto(e *Entry, dst []byte) (int, error) {
	if uint64(len(dst)) < e.TotalLength() {
		return 0, newErr(KindOutOfRange,
			"output buffer too small for entry %q: need %d, have %d", e.FullPath(), e.TotalLength(), len(dst))
	}
	return a.extractInto(e, dst)
}

func (a *Archive) extractInto(e *Entry, dst []byte) (int, error) {
	n := copy(dst, e.SmallData)

	if e.Length == 0 {
		return n, nil
	}

	src, closer, off, err := a.dataSource(e)
	if err != nil {
		return 0, err
	}
	defer closer.Close()

	body := dst[n : n+int(e.Length)]
	if _, err := src.ReadAt(body, off); err != nil && err != io.EOF {
		return 0, wrapErr(err, KindInvalidFormat, "failed to read entry %q", e.FullPath())
	}
	return n + int(e.Length), nil
}
