// Package imgpress compresses batches of transport-encoded images.
//
// Each image is decoded, optionally resized to fit a bounding box,
// optionally rebuilt without metadata, and re-encoded as JPEG, PNG, GIF or
// WebP. With Optimize set, the encoder quality is not taken from the caller
// but picked from the image itself:
//
//   - Edge density: share of sampled points with a strong luminance gradient
//   - Colour diversity: share of a 32-level RGB palette the image touches
//   - Pixel count: larger images tolerate lower quality
//
// Batches fan out over a bounded worker pool. Every image succeeds or fails
// on its own; a batch only fails as a whole when its options cannot be
// parsed.
package imgpress

import (
	"context"
	"runtime"

	"go.uber.org/zap"
)

// Stage names a step of the per-image pipeline for timing.
type Stage string

const (
	StageDecoding   Stage = "decoding"
	StageResizing   Stage = "resizing"
	StageStripping  Stage = "stripping"
	StageOptimizing Stage = "optimizing"
	StageEncoding   Stage = "encoding"
)

// Recorder receives pipeline measurements. Implementations must be safe for
// concurrent use.
type Recorder interface {
	// StartImage is called when an image enters the pipeline. The returned
	// function is called once with the image's final error, nil on success.
	StartImage() func(err error)

	// StartStage is called at the beginning of a stage; the returned
	// function marks its end.
	StartStage(stage Stage) func()

	// InputFormat reports the MIME type sniffed from the raw input.
	InputFormat(mime string)

	// Quality reports the quality handed to the encoder.
	Quality(q int)

	// Bytes reports raw input and encoded output sizes.
	Bytes(in, out int)
}

type nopRecorder struct{}

func (nopRecorder) StartImage() func(error) { return func(error) {} }
func (nopRecorder) StartStage(Stage) func() { return func() {} }
func (nopRecorder) InputFormat(string)      {}
func (nopRecorder) Quality(int)             {}
func (nopRecorder) Bytes(int, int)          {}

// Config configures a Processor. The zero value is usable.
type Config struct {
	// Workers bounds concurrent images per batch. 0 = runtime.GOMAXPROCS(0).
	Workers int

	// MaxInputSize is the largest decoded input in bytes.
	// 0 = DefaultMaxInputSize, negative = unlimited.
	MaxInputSize int

	// Logger receives structured logs. nil discards them.
	Logger *zap.Logger

	// Recorder receives metrics. nil discards them.
	Recorder Recorder

	// OnItem is called after each batch item completes (for progress
	// reporting). It receives the completed and total counts.
	OnItem func(completed, total int)
}

// Processor runs the image pipeline. It holds no per-request state and is
// safe for concurrent use.
type Processor struct {
	workers      int
	maxInputSize int
	log          *zap.Logger
	rec          Recorder
	onItem       func(completed, total int)
}

// New returns a Processor for cfg.
func New(cfg Config) *Processor {
	p := &Processor{
		workers:      cfg.Workers,
		maxInputSize: cfg.MaxInputSize,
		log:          cfg.Logger,
		rec:          cfg.Recorder,
		onItem:       cfg.OnItem,
	}
	if p.workers <= 0 {
		p.workers = runtime.GOMAXPROCS(0)
	}
	switch {
	case p.maxInputSize == 0:
		p.maxInputSize = DefaultMaxInputSize
	case p.maxInputSize < 0:
		p.maxInputSize = 0
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	if p.rec == nil {
		p.rec = nopRecorder{}
	}
	return p
}

var defaultProcessor = New(Config{})

// Process runs a single image through the default Processor.
func Process(ctx context.Context, input string, opts ImageOptions) (*ProcessResult, error) {
	return defaultProcessor.Process(ctx, input, opts)
}

// ProcessBatch runs a batch through the default Processor.
func ProcessBatch(ctx context.Context, inputs []string, opts ImageOptions) *BatchProcessResult {
	return defaultProcessor.ProcessBatch(ctx, inputs, opts)
}

// ProcessRequest parses optionsJSON and runs the batch through the default
// Processor.
func ProcessRequest(ctx context.Context, inputs []string, optionsJSON []byte) (*BatchProcessResult, error) {
	return defaultProcessor.ProcessRequest(ctx, inputs, optionsJSON)
}
