package engine

import (
	"sync/atomic"
	"time"

	"github.com/wincloud/wincloud/internal/archive"
)

// Stage identifies where an operation currently is in its state machine.
type Stage string

const (
	StageInit       Stage = "init"
	StageCompress   Stage = "compress"
	StageUpload     Stage = "upload"
	StageWrite      Stage = "write"
	StageRead       Stage = "read"
	StageDownload   Stage = "download"
	StageReassemble Stage = "reassemble"
	StageDone       Stage = "done"
	StageCancelled  Stage = "cancelled"
)

// Stats accompanies every progress event.
type Stats struct {
	SpeedMBps float64
	Processed int64
	Remaining int64
}

// Event is one progress notification. Events arrive in emission order on the
// operation's channel.
type Event struct {
	Stage   Stage
	Percent int
	Status  string
	Stats   Stats
}

// Result is the terminal outcome of an operation. Exactly one of the success
// and failure shapes applies: on success OK is true and Err is nil; on
// failure Err carries the classified cause. Message is human-readable either
// way.
type Result struct {
	OK      bool
	Message string

	// ArchivePath is set for create operations, OutputDir for extract.
	ArchivePath string
	OutputDir   string

	Manifest *archive.Manifest

	// Skipped lists input paths dropped during creation because they could
	// not be read or compressed.
	Skipped []string

	OriginalSize int64
	ArchiveSize  int64

	Err error
}

// Ratio reports archive size as a fraction of the original input size, or
// zero when nothing was archived.
func (r *Result) Ratio() float64 {
	if r.OriginalSize == 0 {
		return 0
	}
	return float64(r.ArchiveSize) / float64(r.OriginalSize)
}

// Operation is a handle to one in-flight create or extract. The caller
// consumes Events until the channel closes, then reads the outcome with
// Wait. Cancel is cooperative: the worker observes it between files, never
// mid-compression or mid-transfer.
type Operation struct {
	events    chan Event
	done      chan struct{}
	result    *Result
	cancelled atomic.Bool

	started   time.Time
	processed int64
	total     int64
	percent   int
}

func newOperation(total int64) *Operation {
	return &Operation{
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
		started: time.Now(),
		total:   total,
	}
}

const eventBuffer = 64

// Events returns the progress stream. The channel is closed when the
// operation reaches a terminal state.
func (o *Operation) Events() <-chan Event {
	return o.events
}

// Cancel requests cooperative cancellation. It returns immediately; the
// operation keeps running until the worker reaches its next checkpoint.
func (o *Operation) Cancel() {
	o.cancelled.Store(true)
}

// Wait blocks until the operation finishes and returns its result.
func (o *Operation) Wait() *Result {
	<-o.done
	return o.result
}

func (o *Operation) isCancelled() bool {
	return o.cancelled.Load()
}

func (o *Operation) lastPercent() int {
	return o.percent
}

// emit publishes a progress event. A slow consumer loses intermediate
// events instead of stalling the worker.
func (o *Operation) emit(stage Stage, percent int, status string) {
	o.percent = percent
	ev := Event{Stage: stage, Percent: percent, Status: status, Stats: o.stats()}
	select {
	case o.events <- ev:
	default:
	}
}

func (o *Operation) stats() Stats {
	s := Stats{Processed: o.processed, Remaining: o.total - o.processed}
	if s.Remaining < 0 {
		s.Remaining = 0
	}
	if elapsed := time.Since(o.started).Seconds(); elapsed > 0 {
		s.SpeedMBps = float64(o.processed) / (1024 * 1024) / elapsed
	}
	return s
}

func (o *Operation) finish(r *Result) {
	o.result = r
	close(o.events)
	close(o.done)
}

// finished builds an already-terminal operation, used when a request is
// rejected before a worker ever starts.
func finished(r *Result) *Operation {
	o := newOperation(0)
	o.finish(r)
	return o
}
