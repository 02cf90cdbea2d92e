package artifacts

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

var (
	// ErrNotFound reports a cache file that does not exist.
	ErrNotFound = errors.New("artifact not found")
	// ErrCorrupt reports a cache file that cannot be decoded.
	ErrCorrupt = errors.New("artifact corrupt")
)

var magic = [4]byte{'M', 'G', 'C', '1'}

const headerSize = 4 + 1 + 4 + 32

// Checksum is the BLAKE3-256 digest of b.
func Checksum(b []byte) [32]byte {
	return blake3.Sum256(b)
}

// seal frames payload with a header and compresses it.
func seal(payload []byte, c Compression) ([]byte, error) {
	body, applied, err := compress(payload, c)
	if err != nil {
		return nil, err
	}
	sum := Checksum(payload)

	out := make([]byte, headerSize, headerSize+len(body))
	copy(out[0:4], magic[:])
	out[4] = byte(applied)
	binary.BigEndian.PutUint32(out[5:9], uint32(len(payload)))
	copy(out[9:headerSize], sum[:])
	return append(out, body...), nil
}

// open validates the header and returns the uncompressed payload.
func open(data []byte) ([]byte, error) {
	if len(data) < headerSize || !bytes.Equal(data[0:4], magic[:]) {
		return nil, fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	c := Compression(data[4])
	size := int(binary.BigEndian.Uint32(data[5:9]))
	payload, err := decompress(data[headerSize:], c, size)
	if err != nil {
		return nil, err
	}
	if sum := Checksum(payload); !bytes.Equal(sum[:], data[9:headerSize]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return payload, nil
}

// WriteFile writes data to path atomically, creating parent directories.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}

// ReadFile reads path, mapping a missing file to ErrNotFound.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}
