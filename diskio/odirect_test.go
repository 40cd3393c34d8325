package diskio

import (
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/eygilbert/egdb/catalog"
	"github.com/stretchr/testify/require"
)

func TestAlignedBufferIsPageAligned(t *testing.T) {
	buf := AlignedBuffer(100)
	require.Len(t, buf, 100)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	require.Zero(t, addr%alignment)
}

func TestReadBlockAndNumBlocks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.cpr")

	data := make([]byte, 2*catalog.CacheBlockSize+10)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))

	bf, err := Open(path)
	require.NoError(t, err)
	defer bf.Close()

	require.Equal(t, uint32(3), bf.NumBlocks())

	buf := make([]byte, catalog.CacheBlockSize)
	require.NoError(t, bf.ReadBlock(0, buf))
	require.Equal(t, data[:catalog.CacheBlockSize], buf)

	require.NoError(t, bf.ReadBlock(1, buf))
	require.Equal(t, data[catalog.CacheBlockSize:2*catalog.CacheBlockSize], buf)

	// Last block is short on disk; the first 10 bytes must still match.
	require.NoError(t, bf.ReadBlock(2, buf))
	require.Equal(t, data[2*catalog.CacheBlockSize:], buf[:10])
}

func TestReadAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "whole.cpr")
	data := []byte("some compressed-looking bytes, repeated enough to matter")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	bf, err := Open(path)
	require.NoError(t, err)
	defer bf.Close()

	all, err := bf.ReadAll()
	require.NoError(t, err)
	require.Equal(t, data, all)
}
