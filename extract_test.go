package vpk

import (
	"hash/crc32"
	"path/filepath"
	"testing"
)

func TestExtractIntoBufferTooSmall(t *testing.T) {
	dir := t.TempDir()
	build := NewArchive()
	if _, err := build.Add("a.dat", []byte("hello world")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	target := filepath.Join(dir, "pak01")
	if err := build.WriteSingleFile(target); err != nil {
		t.Fatalf("WriteSingleFile: %v", err)
	}

	a, err := NewFromFile(target)
	if err != nil {
		t.Fatalf("NewFromFile: %v", err)
	}
	defer a.Close()

	e := a.Find("a.dat")
	if e == nil {
		t.Fatal("entry not found")
	}

	small := make([]byte, 2)
	if _, err := a.ExtractInto(e, small); err == nil {
		t.Fatal("expected error for undersized buffer")
	} else if !IsKind(err, KindOutOfRange) {
		t.Fatalf("expected KindOutOfRange, got %v", err)
	}

	dst := make([]byte, e.TotalLength())
	n, err := a.ExtractInto(e, dst)
	if err != nil {
		t.Fatalf("ExtractInto: %v", err)
	}
	if string(dst[:n]) != "hello world" {
		t.Fatalf("ExtractInto content = %q, want %q", dst[:n], "hello world")
	}
}

func TestCRC32OfMatchesChecksumIEEE(t *testing.T) {
	data := []byte("checksum me")
	if got, want := crc32Of(data), crc32.ChecksumIEEE(data); got != want {
		t.Fatalf("crc32Of = %08X, want crc32.ChecksumIEEE = %08X", got, want)
	}
	if crc32Of(data) == 0 {
		t.Fatal("crc32Of returned zero for non-empty input")
	}
	if crc32Of(data) != crc32Of(append([]byte(nil), data...)) {
		t.Fatal("crc32Of not deterministic across equal inputs")
	}
}
