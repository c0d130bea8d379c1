package yenc

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte("hello usenet"),
		bytes.Repeat([]byte{0x00, 0x0a, 0x0d, '='}, 50),
		make([]byte, 500),
	}
	for i := range payloads[2] {
		payloads[2][i] = byte(i)
	}

	for _, want := range payloads {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, "part.bin", want))

		dec := NewDecoder(&buf)
		require.NoError(t, dec.DiscardHeader())

		got, err := io.ReadAll(dec)
		require.ErrorIs(t, err, io.EOF)
		require.Equal(t, want, got)
		require.NoError(t, dec.Verify())
	}
}

func TestDecodeToleratesChunkBoundaryInsideEscape(t *testing.T) {
	want := []byte{0x00, 0x0a, 'A', 'B'}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, "x", want))

	// Feed the decoder one byte at a time to force every possible split
	// point, including mid-escape-sequence.
	r := &oneByteReader{data: buf.Bytes()}
	dec := NewDecoder(r)
	require.NoError(t, dec.DiscardHeader())

	got, err := io.ReadAll(dec)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, want, got)
	require.NoError(t, dec.Verify())
}

type oneByteReader struct {
	data []byte
	pos  int
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	p[0] = r.data[r.pos]
	r.pos++
	return 1, nil
}

func TestVerifyFailsOnMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, "x", []byte("abc")))
	corrupted := bytes.Replace(buf.Bytes(), []byte("crc32="), []byte("crc32="), 1)
	// Flip a hex digit in the trailer to force a mismatch.
	idx := bytes.LastIndex(corrupted, []byte("crc32="))
	require.GreaterOrEqual(t, idx, 0)
	corrupted[idx+6] ^= 0x01

	dec := NewDecoder(bytes.NewReader(corrupted))
	require.NoError(t, dec.DiscardHeader())
	_, err := io.ReadAll(dec)
	require.ErrorIs(t, err, io.EOF)
	require.Error(t, dec.Verify())
}
