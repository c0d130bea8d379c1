package repair

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// par2Header is a PAR2 packet's fixed 64-byte header, ported from
// javi11-altmount's parser/par2.PacketHeader (built for streaming over a
// usenet segment reader there; here it reads a plain local *os.File
// instead, since PAR-rename runs after the set is already on disk).
type par2Header struct {
	Magic      [8]byte
	Length     uint64
	MD5Hash    [16]byte
	RecoveryID [16]byte
	Type       [16]byte
}

var (
	par2Magic      = [8]byte{'P', 'A', 'R', '2', 0, 'P', 'K', 'T'}
	par2FileDesc   = [16]byte{'P', 'A', 'R', ' ', '2', '.', '0', 0, 'F', 'i', 'l', 'e', 'D', 'e', 's', 'c'}
)

const par2HeaderSize = 64

// fileDescriptor is the subset of a PAR2 FileDesc packet PAR-rename needs:
// the file's declared length, the MD5 of its first 16KB (used to match a
// partially-renamed local file back to its recorded name), and that name.
type fileDescriptor struct {
	Hash16k [16]byte
	Length  uint64
	Name    string
}

// readFileDescriptors streams every FileDesc packet out of a local PAR2
// file. Grounded on javi11-altmount's reader.go/descriptor.go, adapted to
// read from a local io.Reader instead of a sequential usenet reader.
func readFileDescriptors(parPath string) ([]fileDescriptor, error) {
	f, err := os.Open(parPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []fileDescriptor
	for {
		var hdr par2Header
		if err := binary.Read(f, binary.LittleEndian, &hdr); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return out, err
		}
		if hdr.Magic != par2Magic {
			return out, fmt.Errorf("repair: %s: bad PAR2 magic", parPath)
		}
		if hdr.Length < par2HeaderSize || hdr.Length%4 != 0 {
			return out, fmt.Errorf("repair: %s: invalid packet length %d", parPath, hdr.Length)
		}
		body := hdr.Length - par2HeaderSize

		if hdr.Type != par2FileDesc {
			if _, err := io.CopyN(io.Discard, f, int64(body)); err != nil {
				return out, err
			}
			continue
		}

		if body < 56 {
			return out, fmt.Errorf("repair: %s: FileDesc packet too small", parPath)
		}
		var desc fileDescriptor
		fields := []any{}
		var fileID [16]byte
		var fileMD5 [16]byte
		fields = append(fields, &fileID, &fileMD5, &desc.Hash16k, &desc.Length)
		for _, field := range fields {
			if err := binary.Read(f, binary.LittleEndian, field); err != nil {
				return out, err
			}
		}

		nameLen := body - 56
		nameBuf := make([]byte, nameLen)
		if _, err := io.ReadFull(f, nameBuf); err != nil {
			return out, err
		}
		end := len(nameBuf)
		for end > 0 && (nameBuf[end-1] == 0 || nameBuf[end-1] < 32) {
			end--
		}
		desc.Name = string(nameBuf[:end])
		out = append(out, desc)
	}
	return out, nil
}

// hash16kOf returns the MD5 of a local file's first 16KB, the same key
// PAR2 FileDesc packets index by.
func hash16kOf(path string) ([16]byte, error) {
	var zero [16]byte
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()

	buf := make([]byte, 16*1024)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return zero, err
	}
	sum := md5.Sum(buf[:n])
	return sum, nil
}

// RenamePlan pairs a file currently on disk with the canonical name a
// PAR2 descriptor recorded for it.
type RenamePlan struct {
	CurrentPath string
	TargetName  string
}

// PlanRename scans destDir for every local file and matches it against
// parFile's recorded FileDesc packets by (length, hash16k) — spec §4.5
// PAR-rename: "read par2 packet filenames, and rename downloaded files to
// their recorded canonical names". Files that already carry their
// recorded name are skipped.
func PlanRename(destDir, parFile string) ([]RenamePlan, error) {
	descs, err := readFileDescriptors(filepath.Join(destDir, parFile))
	if err != nil {
		return nil, err
	}
	if len(descs) == 0 {
		return nil, nil
	}

	entries, err := os.ReadDir(destDir)
	if err != nil {
		return nil, err
	}

	var plans []RenamePlan
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		for _, desc := range descs {
			if uint64(info.Size()) != desc.Length || entry.Name() == desc.Name {
				continue
			}
			sum, err := hash16kOf(filepath.Join(destDir, entry.Name()))
			if err != nil {
				continue
			}
			if sum == desc.Hash16k {
				plans = append(plans, RenamePlan{CurrentPath: entry.Name(), TargetName: desc.Name})
				break
			}
		}
	}
	return plans, nil
}

// ApplyRename executes a rename plan built by PlanRename.
func ApplyRename(destDir string, plans []RenamePlan) error {
	for _, p := range plans {
		if err := os.Rename(filepath.Join(destDir, p.CurrentPath), filepath.Join(destDir, p.TargetName)); err != nil {
			return fmt.Errorf("repair: rename %s -> %s: %w", p.CurrentPath, p.TargetName, err)
		}
	}
	return nil
}
