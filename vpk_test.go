package vpk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddRejectsOnReadOnlyArchive(t *testing.T) {
	dir := t.TempDir()
	build := NewArchive()
	_, err := build.Add("readme.txt", []byte("hello"))
	require.NoError(t, err)
	require.NoError(t, build.WriteSingleFile(filepath.Join(dir, "pak01")))

	a, err := NewFromFile(filepath.Join(dir, "pak01"))
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Add("more.txt", []byte("data"))
	require.Error(t, err)
	require.True(t, IsKind(err, KindInvalidState))
}

func TestSingleFileWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	build := NewArchive()

	contents := map[string][]byte{
		"readme.txt":             []byte("hello world"),
		"models/player/hat.mdl":  []byte("mdl-bytes-for-hat-xxxxxxxxxxxxxxxxxxxxxxxxx"),
		"models/player/head.mdl": []byte("mdl-bytes-for-head"),
		"sound/click.wav":        []byte("wav-data"),
	}
	for path, data := range contents {
		_, err := build.Add(path, data)
		require.NoError(t, err)
	}

	target := filepath.Join(dir, "pak01")
	require.NoError(t, build.WriteSingleFile(target))

	a, err := NewFromFile(target)
	require.NoError(t, err)
	defer a.Close()

	require.Equal(t, len(contents), a.store.count())

	for path, want := range contents {
		e := a.Find(path)
		require.NotNilf(t, e, "entry %q not found after round trip", path)
		got, err := a.Extract(e, true)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	require.NoError(t, a.VerifyTreeChecksum())
	require.NoError(t, a.VerifyHashTableChecksum())
	require.NoError(t, a.VerifyWholeFileChecksum())
	require.NoError(t, a.VerifyChunkHashes())
	require.NoError(t, a.VerifyFileCRCs())
	require.NoError(t, a.VerifyAll())
}

func TestChunkedWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	build := NewArchive()

	// Three entries, each exactly the chunk size, so under next-fit
	// placement each one fills a chunk and lands in its own chunk.
	entries := []struct {
		path string
		data []byte
	}{
		{"a.dat", fillBytes(64, 0xAA)},
		{"b.dat", fillBytes(64, 0xBB)},
		{"c.dat", fillBytes(64, 0xCC)},
	}
	for _, e := range entries {
		_, err := build.Add(e.path, e.data)
		require.NoError(t, err)
	}

	target := filepath.Join(dir, "pak01")
	require.NoError(t, build.WriteChunked(target, 64))

	a, err := NewFromFile(target + "_dir.vpk")
	require.NoError(t, err)
	defer a.Close()

	for _, e := range entries {
		entry := a.Find(e.path)
		require.NotNilf(t, entry, "entry %q not found", e.path)
		require.Falsef(t, entry.IsEmbedded(), "entry %q should be external, placed in its own chunk", e.path)

		got, err := a.Extract(entry, true)
		require.NoError(t, err)
		require.Equal(t, e.data, got)
	}

	for idx := 0; idx < len(entries); idx++ {
		chunkPath := chunkFileName(a.baseName, uint16(idx))
		_, err := os.Stat(chunkPath)
		require.NoErrorf(t, err, "expected chunk file %s to exist", chunkPath)
	}

	require.NoError(t, a.VerifyAll())
}

func TestWriteEmptyArchiveFails(t *testing.T) {
	dir := t.TempDir()
	build := NewArchive()
	err := build.WriteSingleFile(filepath.Join(dir, "empty"))
	require.Error(t, err)
	require.True(t, IsKind(err, KindInvalidState))
}

func TestWriteChunkedZeroSizeFails(t *testing.T) {
	dir := t.TempDir()
	build := NewArchive()
	_, err := build.Add("a.dat", []byte("x"))
	require.NoError(t, err)
	err = build.WriteChunked(filepath.Join(dir, "pak01"), 0)
	require.Error(t, err)
	require.True(t, IsKind(err, KindOutOfRange))
}

func TestExtractCRCMismatchMessage(t *testing.T) {
	dir := t.TempDir()
	build := NewArchive()
	_, err := build.Add("a.dat", []byte("hello"))
	require.NoError(t, err)
	target := filepath.Join(dir, "pak01")
	require.NoError(t, build.WriteSingleFile(target))

	a, err := NewFromFile(target)
	require.NoError(t, err)
	defer a.Close()

	e := a.Find("a.dat")
	require.NotNil(t, e)
	e.CRC32 ^= 0xFFFFFFFF // corrupt the recorded checksum

	_, err = a.Extract(e, true)
	require.Error(t, err)
	require.True(t, IsKind(err, KindCrcMismatch))
	require.Contains(t, err.Error(), "CRC32 mismatch for read data (expected")
}

func TestRemoveEntry(t *testing.T) {
	build := NewArchive()
	_, err := build.Add("a.dat", []byte("x"))
	require.NoError(t, err)

	require.True(t, build.RemoveEntry("a.dat"))
	require.Nil(t, build.Find("a.dat"))
	require.False(t, build.RemoveEntry("a.dat"))
}

func fillBytes(n int, fill byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = fill
	}
	return b
}
