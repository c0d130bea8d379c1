package yenc

import (
	"bufio"
	"fmt"
	"hash/crc32"
	"io"
)

// lineLength mirrors the conventional 128-byte yEnc line; not wire
// mandated, only a formatting choice the encoder and decoder must agree
// on for the round-trip law.
const lineLength = 128

// Encode writes data as a single-part yEnc article (begin/body/end) to w,
// the inverse of Decoder, used by the round-trip law test (spec §8: "yEnc
// encode ∘ yEnc decode = identity on binary payloads").
func Encode(w io.Writer, name string, data []byte) error {
	bw := bufio.NewWriter(w)
	crc := crc32.ChecksumIEEE(data)

	if _, err := fmt.Fprintf(bw, "=ybegin line=%d size=%d name=%s\r\n", lineLength, len(data), name); err != nil {
		return err
	}

	col := 0
	for _, b := range data {
		enc := b + 42
		needsEscape := enc == '=' || enc == '\x00' || enc == '\r' || enc == '\n'
		if needsEscape {
			if err := bw.WriteByte('='); err != nil {
				return err
			}
			enc += 64
			col++
		}
		if err := bw.WriteByte(enc); err != nil {
			return err
		}
		col++
		if col >= lineLength {
			if _, err := bw.WriteString("\r\n"); err != nil {
				return err
			}
			col = 0
		}
	}
	if col > 0 {
		if _, err := bw.WriteString("\r\n"); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(bw, "=yend size=%d crc32=%08x\r\n", len(data), crc); err != nil {
		return err
	}
	return bw.Flush()
}
