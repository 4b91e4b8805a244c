// Package compress implements the two-stage compression pipeline: a fast
// LZ4 frame pass followed by a high-ratio zstd pass over the LZ4 output.
// Decompression inverts in reverse order. The pipeline is exactly invertible
// for arbitrary byte content, including empty input.
package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/wincloud/wincloud/internal/common"
)

// PipelineID identifies the compression scheme in archive manifests.
// Changing it breaks compatibility with existing archives.
const PipelineID = "lz4+zstd"

// lz4Levels maps the config scale 0..9 onto lz4 compression levels.
var lz4Levels = []lz4.CompressionLevel{
	lz4.Fast,
	lz4.Level1, lz4.Level2, lz4.Level3,
	lz4.Level4, lz4.Level5, lz4.Level6,
	lz4.Level7, lz4.Level8, lz4.Level9,
}

// zstdEncoder and zstdDecoder are reused across calls to avoid repeated
// initialization overhead. Both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedBestCompression),
	)
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("compress: zstd decoder initialization failed: " + err.Error())
	}
}

// Pipeline compresses and decompresses blobs. The stage-A level is fixed at
// construction; stage B always runs at the zstd best-compression level.
type Pipeline struct {
	level lz4.CompressionLevel
}

// New returns a Pipeline whose LZ4 pass runs at the given level, 0 (fastest)
// through 9 (highest ratio).
func New(level int) (*Pipeline, error) {
	if level < 0 || level >= len(lz4Levels) {
		return nil, common.ErrInvalidLevel
	}
	return &Pipeline{level: lz4Levels[level]}, nil
}

// ID returns the pipeline identifier recorded in manifests.
func (p *Pipeline) ID() string { return PipelineID }

// Compress runs both stages over data.
func (p *Pipeline) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	zw := lz4.NewWriter(&buf)
	if err := zw.Apply(lz4.CompressionLevelOption(p.level)); err != nil {
		return nil, fmt.Errorf("lz4 options: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("lz4 close: %w", err)
	}

	return zstdEncoder.EncodeAll(buf.Bytes(), nil), nil
}

// Decompress inverts Compress: zstd first, then the LZ4 frame.
func (p *Pipeline) Decompress(data []byte) ([]byte, error) {
	inner, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}

	zr := lz4.NewReader(bytes.NewReader(inner))
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	return out, nil
}
