package vpk

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifyDetectsTamperedTreeChecksum(t *testing.T) {
	dir := t.TempDir()
	build := NewArchive()
	_, err := build.Add("a.dat", []byte("hello world, this is a reasonably sized payload"))
	require.NoError(t, err)
	target := filepath.Join(dir, "pak01")
	require.NoError(t, build.WriteSingleFile(target))

	a, err := NewFromFile(target)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.VerifyTreeChecksum())

	a.otherMD5.TreeChecksum[0] ^= 0xFF
	err = a.VerifyTreeChecksum()
	require.Error(t, err)
	require.True(t, IsKind(err, KindHashMismatch))
}

func TestIsSignatureValidNoSignature(t *testing.T) {
	dir := t.TempDir()
	build := NewArchive()
	_, err := build.Add("a.dat", []byte("data"))
	require.NoError(t, err)
	target := filepath.Join(dir, "pak01")
	require.NoError(t, build.WriteSingleFile(target))

	a, err := NewFromFile(target)
	require.NoError(t, err)
	defer a.Close()

	valid, err := a.IsSignatureValid()
	require.NoError(t, err)
	require.True(t, valid)
}

func TestVerifyAllCombinesFailures(t *testing.T) {
	dir := t.TempDir()
	build := NewArchive()
	_, err := build.Add("a.dat", []byte("data"))
	require.NoError(t, err)
	_, err = build.Add("b.dat", []byte("more data here"))
	require.NoError(t, err)
	target := filepath.Join(dir, "pak01")
	require.NoError(t, build.WriteSingleFile(target))

	a, err := NewFromFile(target)
	require.NoError(t, err)
	defer a.Close()

	a.Find("a.dat").CRC32 ^= 0xFFFFFFFF
	a.otherMD5.WholeFileChecksum[0] ^= 0xFF

	err = a.VerifyAll()
	require.Error(t, err)
	require.True(t, IsKind(err, KindCrcMismatch) && IsKind(err, KindHashMismatch))
}
