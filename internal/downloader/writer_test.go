package downloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirectWriterWriteAtThenClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.bin")

	w := NewDirectWriter()
	require.NoError(t, w.PreAllocate(path, 10))
	require.NoError(t, w.WriteAt(path, []byte("hello"), 0))
	require.NoError(t, w.WriteAt(path, []byte("world"), 5))
	require.NoError(t, w.CloseFile(path, 10))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "helloworld", string(got))
}

func TestJoinWriterReassemblesInOffsetOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.bin")

	w := NewJoinWriter()
	require.NoError(t, w.WriteAt(path, []byte("world"), 5))
	require.NoError(t, w.WriteAt(path, []byte("hello"), 0))
	require.NoError(t, w.CloseFile(path, 10))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "helloworld", string(got))

	_, err = os.Stat(segmentDir(path))
	require.True(t, os.IsNotExist(err), "segment dir should be removed after join")
}
