package vpk

import (
	"crypto/md5"
	"hash"

	"github.com/zeebo/blake3"
)

// hasher is the small streaming capability set the per-chunk verifier and
// writer need: accumulate bytes, then produce the archive's fixed 16-byte
// checksum. Kept as an interface (spec §9 "Hash abstraction") so MD5 and
// Blake3 records walk through identical driving code in verify.go and
// writer.go.
type hasher interface {
	Write(p []byte) (int, error)
	Sum16() [16]byte
}

type md5Hasher struct{ h hash.Hash }

func newMD5Hasher() hasher { return &md5Hasher{h: md5.New()} }

func (m *md5Hasher) Write(p []byte) (int, error) { return m.h.Write(p) }

func (m *md5Hasher) Sum16() [16]byte {
	var out [16]byte
	copy(out[:], m.h.Sum(nil))
	return out
}

// blake3Hasher truncates Blake3's default 32-byte digest to the archive's
// fixed 16-byte checksum field. Reference VPK tooling stores a 16-byte
// checksum regardless of hash kind; there is no published full-width Blake3
// variant of the format, so this package follows the same truncation.
type blake3Hasher struct{ h *blake3.Hasher }

func newBlake3Hasher() hasher { return &blake3Hasher{h: blake3.New()} }

func (b *blake3Hasher) Write(p []byte) (int, error) { return b.h.Write(p) }

func (b *blake3Hasher) Sum16() [16]byte {
	var out [16]byte
	full := b.h.Sum(nil)
	copy(out[:], full[:16])
	return out
}

// md5Sum16 is a one-shot convenience for the three whole-section MD5
// summaries (spec §4.7), which are always MD5 regardless of per-chunk kind.
func md5Sum16(data []byte) [16]byte {
	return md5.Sum(data)
}
