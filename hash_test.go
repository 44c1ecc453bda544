package vpk

import (
	"crypto/md5"
	"testing"
)

func TestMD5HasherMatchesStdlib(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	h := newMD5Hasher()
	h.Write(data)

	want := md5.Sum(data)
	if got := h.Sum16(); got != want {
		t.Fatalf("md5Hasher.Sum16() = %x, want %x", got, want)
	}
}

func TestBlake3HasherDeterministic(t *testing.T) {
	data := []byte("archive contents")
	h1 := newBlake3Hasher()
	h1.Write(data)
	h2 := newBlake3Hasher()
	h2.Write(data)

	if h1.Sum16() != h2.Sum16() {
		t.Fatal("blake3Hasher not deterministic across instances")
	}
}

func TestBlake3HasherDiffersFromMD5(t *testing.T) {
	data := []byte("archive contents")
	m := newMD5Hasher()
	m.Write(data)
	b := newBlake3Hasher()
	b.Write(data)

	if m.Sum16() == b.Sum16() {
		t.Fatal("MD5 and Blake3 checksums collided unexpectedly")
	}
}

func TestMD5Sum16Empty(t *testing.T) {
	want := md5.Sum(nil)
	if got := md5Sum16(nil); got != want {
		t.Fatalf("md5Sum16(nil) = %x, want %x", got, want)
	}
}
