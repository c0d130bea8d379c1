package downloader

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	writes map[int64][]byte
}

func newRecordingWriter() *recordingWriter { return &recordingWriter{writes: make(map[int64][]byte)} }

func (r *recordingWriter) WriteAt(path string, data []byte, offset int64) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	r.writes[offset] = cp
	return nil
}
func (r *recordingWriter) PreAllocate(path string, size int64) error      { return nil }
func (r *recordingWriter) CloseFile(path string, finalSize int64) error { return nil }

func TestArticleCacheDisabledWritesThrough(t *testing.T) {
	rw := newRecordingWriter()
	c := NewArticleCache(0, rw)
	require.False(t, c.Enabled())

	path := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, c.Put(path, 0, []byte("abc")))
	require.Equal(t, "abc", string(rw.writes[0]))
}

func TestArticleCacheFlushWritesCachedEntries(t *testing.T) {
	rw := newRecordingWriter()
	c := NewArticleCache(64, rw)
	require.True(t, c.Enabled())

	path := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, c.Put(path, 0, []byte("abc")))
	require.Empty(t, rw.writes, "cached writes must not hit the underlying writer before flush")

	require.NoError(t, c.Flush(path))
	require.Equal(t, "abc", string(rw.writes[0]))
}

func TestArticleCacheEvictsOverBudget(t *testing.T) {
	rw := newRecordingWriter()
	c := NewArticleCache(0, rw) // budget of 0MB once forced nonzero below
	c.budget = 10               // 10 bytes, test-only override

	path := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, c.Put(path, 0, make([]byte, 6)))
	require.NoError(t, c.Put(path, 6, make([]byte, 6)))

	require.NotEmpty(t, rw.writes, "oldest entry should have been evicted (written through) once over budget")
}
