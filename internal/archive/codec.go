package archive

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/wincloud/wincloud/internal/common"
)

// Artifact layout:
//
//	offset 0   size 8   magic, ASCII, "WCLOUD" + format revision
//	offset 8   size 4   little-endian uint32 metadata length N
//	offset 12  size N   UTF-8 JSON manifest
//	offset 12+N  rest   concatenated local parts, manifest order
const (
	// Magic is the tag this build writes.
	Magic = "WCLOUD10"
	// magicPrefix is what a tag must start with to be recognized at all;
	// the trailing bytes carry the format revision.
	magicPrefix = "WCLOUD"

	magicSize  = 8
	headerSize = magicSize + 4
)

// Encode serializes a manifest and its local payload into artifact bytes.
func Encode(m *Manifest, payload []byte) ([]byte, error) {
	meta, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if len(meta) > math.MaxUint32 {
		return nil, fmt.Errorf("encode manifest: metadata too large (%d bytes)", len(meta))
	}

	out := make([]byte, 0, headerSize+len(meta)+len(payload))
	out = append(out, Magic...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(meta)))
	out = append(out, meta...)
	out = append(out, payload...)
	return out, nil
}

// Decode parses artifact bytes into the manifest and the local payload. The
// declared metadata length is bounds-checked against the actual size before
// any slice is materialized.
func Decode(raw []byte) (*Manifest, []byte, error) {
	if len(raw) < headerSize {
		return nil, nil, fmt.Errorf("%w: %d bytes is smaller than the header", common.ErrTruncatedArchive, len(raw))
	}
	if !bytes.HasPrefix(raw, []byte(magicPrefix)) {
		return nil, nil, fmt.Errorf("%w: %q", common.ErrBadMagic, raw[:magicSize])
	}

	metaLen := binary.LittleEndian.Uint32(raw[magicSize:headerSize])
	if uint64(metaLen) > uint64(len(raw)-headerSize) {
		return nil, nil, fmt.Errorf("%w: declared metadata length %d exceeds file size %d",
			common.ErrTruncatedArchive, metaLen, len(raw))
	}

	var m Manifest
	if err := json.Unmarshal(raw[headerSize:headerSize+int(metaLen)], &m); err != nil {
		return nil, nil, fmt.Errorf("decode manifest: %w", err)
	}

	return &m, raw[headerSize+int(metaLen):], nil
}

// WriteFile encodes and writes the artifact to path in one shot.
func WriteFile(path string, m *Manifest, payload []byte) error {
	raw, err := Encode(m, payload)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write archive %s: %w", path, err)
	}
	return nil
}

// ReadFile reads and decodes the artifact at path.
func ReadFile(path string) (*Manifest, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read archive %s: %w", path, err)
	}
	return Decode(raw)
}
