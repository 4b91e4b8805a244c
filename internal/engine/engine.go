// Package engine orchestrates archive creation and extraction: it feeds
// files through the compression pipeline, splits the output into local and
// cloud fractions, encrypts and ships the cloud fraction, and writes or
// reads the local artifact. All work happens on a dedicated worker
// goroutine; callers observe it through the returned Operation.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"

	"github.com/wincloud/wincloud/internal/archive"
	"github.com/wincloud/wincloud/internal/common"
	"github.com/wincloud/wincloud/internal/compress"
	"github.com/wincloud/wincloud/internal/cryptox"
	"github.com/wincloud/wincloud/internal/filex"
	"github.com/wincloud/wincloud/internal/logging"
	"github.com/wincloud/wincloud/internal/splitter"
	"github.com/wincloud/wincloud/internal/transfer"
)

// Transfer is the remote-store surface the engine needs. *transfer.Client
// satisfies it; tests substitute fakes.
type Transfer interface {
	Upload(ctx context.Context, data []byte) (*transfer.UploadResult, error)
	Download(ctx context.Context, archiveID string) ([]byte, error)
}

// Config holds the engine's tunables.
type Config struct {
	// CompressionLevel is the stage-A level, 0 (fastest) to 9 (max).
	CompressionLevel int
	// LocalPercentage is the share of compressed bytes kept in the local
	// artifact, 0 to 100.
	LocalPercentage int
}

// Engine runs at most one operation at a time. Concurrent requests against
// the same instance are rejected, not queued.
type Engine struct {
	cfg      Config
	pipeline *compress.Pipeline
	crypto   *cryptox.Manager
	remote   Transfer
	log      logging.Logger
	busy     atomic.Bool
}

func New(cfg Config, crypto *cryptox.Manager, remote Transfer, log logging.Logger) (*Engine, error) {
	if cfg.LocalPercentage < 0 || cfg.LocalPercentage > 100 {
		return nil, common.ErrInvalidPercentage
	}
	pipeline, err := compress.New(cfg.CompressionLevel)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:      cfg,
		pipeline: pipeline,
		crypto:   crypto,
		remote:   remote,
		log:      log.With("component", "engine"),
	}, nil
}

// CreateArchive starts archiving paths into archivePath and returns
// immediately. Progress and the outcome arrive on the Operation.
func (e *Engine) CreateArchive(ctx context.Context, paths []string, archivePath string) *Operation {
	if !e.busy.CompareAndSwap(false, true) {
		return finished(&Result{Message: "another operation is already running", Err: common.ErrBusy})
	}

	op := newOperation(statTotal(paths))
	go func() {
		defer e.busy.Store(false)
		e.runCreate(ctx, op, paths, archivePath)
	}()
	return op
}

// ExtractArchive starts restoring archivePath into outputDir and returns
// immediately.
func (e *Engine) ExtractArchive(ctx context.Context, archivePath, outputDir string) *Operation {
	if !e.busy.CompareAndSwap(false, true) {
		return finished(&Result{Message: "another operation is already running", Err: common.ErrBusy})
	}

	op := newOperation(0)
	go func() {
		defer e.busy.Store(false)
		e.runExtract(ctx, op, archivePath, outputDir)
	}()
	return op
}

func statTotal(paths []string) int64 {
	var total int64
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	return total
}

func (e *Engine) runCreate(ctx context.Context, op *Operation, paths []string, archivePath string) {
	op.emit(StageInit, 0, fmt.Sprintf("archiving %d files", len(paths)))
	e.log.Info(ctx, "create started", "files", len(paths), "archive", archivePath)

	manifest := archive.NewManifest(e.pipeline.ID())
	var (
		localBuf, cloudBuf []byte
		localOff, cloudOff int64
		skipped            []string
		fileErrs           error
	)

	for i, path := range paths {
		if op.isCancelled() {
			e.finishCancelled(ctx, op, "creation cancelled")
			return
		}

		rec, local, cloud, err := e.packFile(path, localOff, cloudOff)
		if err != nil {
			e.log.Warn(ctx, "skipping file", "path", path, "error", err)
			skipped = append(skipped, path)
			fileErrs = multierror.Append(fileErrs, fmt.Errorf("%s: %w", path, err))
			continue
		}

		localBuf = append(localBuf, local...)
		cloudBuf = append(cloudBuf, cloud...)
		localOff += rec.LocalSize
		cloudOff += rec.CloudSize
		manifest.Files = append(manifest.Files, *rec)
		manifest.TotalSize += rec.Size
		op.processed += rec.Size

		op.emit(StageCompress, (i+1)*stageCompressEnd/len(paths),
			fmt.Sprintf("compressed %s", rec.Name))
	}

	if len(manifest.Files) == 0 {
		err := fmt.Errorf("no files could be archived: %w", fileErrs)
		e.finishErr(ctx, op, &Result{ArchivePath: archivePath, Skipped: skipped}, "nothing to archive", err)
		return
	}

	if op.isCancelled() {
		e.finishCancelled(ctx, op, "creation cancelled")
		return
	}

	op.emit(StageUpload, stageCompressEnd, "uploading cloud data")
	if err := e.uploadCloudPart(ctx, manifest, cloudBuf); err != nil {
		// Keep the run alive: the artifact is still written, holding only
		// the local fraction, and the failure is recorded in the manifest.
		e.log.Warn(ctx, "cloud upload failed, writing local-only artifact", "error", err)
		manifest.CloudArchiveID = nil
		manifest.CloudError = err.Error()
	}

	op.emit(StageWrite, stageWritePoint, "writing archive")
	if err := archive.WriteFile(archivePath, manifest, localBuf); err != nil {
		e.finishErr(ctx, op, &Result{Manifest: manifest, ArchivePath: archivePath, Skipped: skipped},
			"failed to write archive", fmt.Errorf("write archive: %w", err))
		return
	}

	res := &Result{
		OK:           true,
		ArchivePath:  archivePath,
		Manifest:     manifest,
		Skipped:      skipped,
		OriginalSize: manifest.TotalSize,
		ArchiveSize:  localOff + cloudOff,
	}
	switch {
	case manifest.CloudError != "":
		res.Message = fmt.Sprintf("archive created without cloud copy (%s); only the local fraction is recoverable", manifest.CloudError)
	case len(skipped) > 0:
		res.Message = fmt.Sprintf("archive created, %d of %d files skipped", len(skipped), len(paths))
	default:
		res.Message = fmt.Sprintf("archive created, %d files, ratio %.2f", len(manifest.Files), res.Ratio())
	}

	op.emit(StageDone, 100, res.Message)
	e.log.Info(ctx, "create finished",
		"files", len(manifest.Files), "skipped", len(skipped),
		"original_bytes", res.OriginalSize, "archive_bytes", res.ArchiveSize)
	op.finish(res)
}

// progress checkpoints for creation: the per-file loop owns 0..80, upload
// sits at 80, the final write at 95.
const (
	stageCompressEnd = 80
	stageWritePoint  = 95
)

// packFile reads, hashes, compresses, and splits one input file. Errors here
// are per-file: the caller skips the file and moves on.
func (e *Engine) packFile(path string, localOff, cloudOff int64) (*archive.FileRecord, []byte, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read: %w", err)
	}

	checksum := cryptox.HashData(data)

	compressed, err := e.pipeline.Compress(data)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("compress: %w", err)
	}

	parts, err := splitter.Split(compressed, e.cfg.LocalPercentage)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("split: %w", err)
	}

	rec := &archive.FileRecord{
		Name:           filepath.Base(path),
		Path:           path,
		Size:           int64(len(data)),
		CompressedSize: int64(len(compressed)),
		LocalOffset:    localOff,
		LocalSize:      int64(parts.LocalSize),
		CloudOffset:    cloudOff,
		CloudSize:      int64(parts.CloudSize),
		Checksum:       checksum,
	}
	return rec, parts.Local, parts.Cloud, nil
}

// uploadCloudPart encrypts the concatenated cloud fractions and ships them.
// On success it stamps the manifest with the remote ids.
func (e *Engine) uploadCloudPart(ctx context.Context, m *archive.Manifest, cloudBuf []byte) error {
	encrypted, err := e.crypto.Encrypt(cloudBuf)
	if err != nil {
		return fmt.Errorf("encrypt cloud data: %w", err)
	}

	res, err := e.remote.Upload(ctx, encrypted)
	if err != nil {
		return err
	}

	id := res.ArchiveID
	m.CloudArchiveID = &id
	if len(res.FileIDs) == len(m.Files) {
		for i := range m.Files {
			m.Files[i].CloudID = &res.FileIDs[i]
		}
	}
	return nil
}

func (e *Engine) runExtract(ctx context.Context, op *Operation, archivePath, outputDir string) {
	op.emit(StageInit, 0, "reading archive")
	e.log.Info(ctx, "extract started", "archive", archivePath, "output", outputDir)

	manifest, localPayload, err := archive.ReadFile(archivePath)
	if err != nil {
		e.finishErr(ctx, op, &Result{OutputDir: outputDir}, "failed to read archive", err)
		return
	}
	op.emit(StageRead, stageReadPoint, fmt.Sprintf("archive holds %d files", len(manifest.Files)))
	op.total = manifest.TotalSize

	if manifest.CloudArchiveID == nil {
		msg := "archive has no cloud copy; the cloud-held fraction is unrecoverable"
		if manifest.CloudError != "" {
			msg = fmt.Sprintf("%s (upload failed: %s)", msg, manifest.CloudError)
		}
		e.finishErr(ctx, op, &Result{Manifest: manifest, OutputDir: outputDir}, msg, common.ErrNoCloudData)
		return
	}

	op.emit(StageDownload, stageDownloadPoint, "downloading cloud data")
	blob, err := e.remote.Download(ctx, *manifest.CloudArchiveID)
	if err != nil {
		e.finishErr(ctx, op, &Result{Manifest: manifest, OutputDir: outputDir}, "cloud download failed", err)
		return
	}

	cloudPayload, err := e.crypto.Decrypt(blob)
	if err != nil {
		e.finishErr(ctx, op, &Result{Manifest: manifest, OutputDir: outputDir}, "cloud data failed authentication", err)
		return
	}

	if err := filex.EnsureDir(outputDir); err != nil {
		e.finishErr(ctx, op, &Result{Manifest: manifest, OutputDir: outputDir}, "cannot create output directory", err)
		return
	}

	for i, rec := range manifest.Files {
		if op.isCancelled() {
			e.finishCancelled(ctx, op, "extraction cancelled")
			return
		}

		if err := e.restoreFile(&rec, localPayload, cloudPayload, outputDir); err != nil {
			e.finishErr(ctx, op, &Result{Manifest: manifest, OutputDir: outputDir},
				fmt.Sprintf("failed to restore %s", rec.Name), err)
			return
		}
		op.processed += rec.Size

		percent := stageExtractStart + (i+1)*(stageExtractEnd-stageExtractStart)/len(manifest.Files)
		op.emit(StageReassemble, percent, fmt.Sprintf("restored %s", rec.Name))
	}

	res := &Result{
		OK:           true,
		Message:      fmt.Sprintf("extracted %d files", len(manifest.Files)),
		OutputDir:    outputDir,
		Manifest:     manifest,
		OriginalSize: manifest.TotalSize,
	}
	op.emit(StageDone, 100, res.Message)
	e.log.Info(ctx, "extract finished", "files", len(manifest.Files), "bytes", op.processed)
	op.finish(res)
}

// progress checkpoints for extraction.
const (
	stageReadPoint     = 10
	stageDownloadPoint = 15
	stageExtractStart  = 20
	stageExtractEnd    = 95
)

// restoreFile reassembles one file from its recorded slices and writes it
// under outputDir. Any failure, including a checksum mismatch, aborts the
// whole extraction.
func (e *Engine) restoreFile(rec *archive.FileRecord, localPayload, cloudPayload []byte, outputDir string) error {
	local, err := slicePart(localPayload, rec.LocalOffset, rec.LocalSize)
	if err != nil {
		return fmt.Errorf("local part of %s: %w", rec.Name, err)
	}
	cloud, err := slicePart(cloudPayload, rec.CloudOffset, rec.CloudSize)
	if err != nil {
		return fmt.Errorf("cloud part of %s: %w", rec.Name, err)
	}

	data, err := e.pipeline.Decompress(splitter.Merge(local, cloud))
	if err != nil {
		return fmt.Errorf("decompress %s: %w", rec.Name, err)
	}

	if cryptox.HashData(data) != rec.Checksum {
		return fmt.Errorf("%s: %w", rec.Name, common.ErrChecksumMismatch)
	}

	outPath, err := filex.JoinInside(outputDir, rec.Name)
	if err != nil {
		return fmt.Errorf("%s: %w", rec.Name, err)
	}
	if err := filex.WriteFile(outPath, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", rec.Name, err)
	}
	return nil
}

func slicePart(payload []byte, offset, size int64) ([]byte, error) {
	if offset < 0 || size < 0 || offset+size > int64(len(payload)) {
		return nil, common.ErrTruncatedArchive
	}
	return payload[offset : offset+size], nil
}

func (e *Engine) finishCancelled(ctx context.Context, op *Operation, msg string) {
	e.log.Info(ctx, "operation cancelled")
	op.emit(StageCancelled, op.lastPercent(), msg)
	op.finish(&Result{Message: msg, Err: common.ErrCancelled})
}

func (e *Engine) finishErr(ctx context.Context, op *Operation, res *Result, msg string, err error) {
	e.log.Error(ctx, msg, "error", err)
	res.Message = msg
	res.Err = err
	op.finish(res)
}
