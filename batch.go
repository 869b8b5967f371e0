package imgpress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result for one input of a batch: either Result or Err is set.
type Outcome struct {
	// Index is the position in the original input slice.
	Index int
	// Result is the processed image (nil if Err is non-nil).
	Result *ProcessResult
	// Err is the *ProcessError that failed the image.
	Err error
}

// Failure is the serialisable form of a failed Outcome.
type Failure struct {
	Index   int    `json:"index"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// BatchProcessResult aggregates a batch.
type BatchProcessResult struct {
	// Results holds successful images in completion order, not input order.
	Results []ProcessResult `json:"results"`

	SuccessCount int `json:"success_count"`
	FailedCount  int `json:"failed_count"`

	// Failures lists failed inputs by index.
	Failures []Failure `json:"failures,omitempty"`

	// Outcomes has one entry per input, in input order.
	Outcomes []Outcome `json:"-"`
}

// Err combines the errors of all failed images, or returns nil.
func (b *BatchProcessResult) Err() error {
	var err error
	for _, o := range b.Outcomes {
		err = multierr.Append(err, o.Err)
	}
	return err
}

// String returns a human-readable batch summary.
func (b *BatchProcessResult) String() string {
	var out int64
	for _, r := range b.Results {
		out += int64(r.Size)
	}
	return fmt.Sprintf("Batch: %d/%d succeeded | %s written",
		b.SuccessCount, b.SuccessCount+b.FailedCount, HumanBytes(out))
}

// ProcessBatch processes every input concurrently with the same options.
// A failing image only increments FailedCount; SuccessCount+FailedCount is
// always len(inputs). Inputs not yet started when ctx is done fail with
// KindCanceled.
func (p *Processor) ProcessBatch(ctx context.Context, inputs []string, opts ImageOptions) *BatchProcessResult {
	res := &BatchProcessResult{
		Results:  make([]ProcessResult, 0, len(inputs)),
		Outcomes: make([]Outcome, len(inputs)),
	}
	if len(inputs) == 0 {
		return res
	}

	log := p.log.With(zap.String("batch_id", uuid.NewString()))
	log.Info("batch started",
		zap.Int("size", len(inputs)),
		zap.Stringer("format", opts.Format),
		zap.Bool("optimize", opts.Optimize),
	)
	start := time.Now()

	workers := p.workers
	if workers > len(inputs) {
		workers = len(inputs)
	}

	var (
		mu        sync.Mutex
		completed int
		g         errgroup.Group
	)
	g.SetLimit(workers)

	for i := range inputs {
		i := i
		g.Go(func() error {
			// opts is copied into every call; no invocation sees another's changes.
			result, err := p.Process(ctx, inputs[i], opts)
			res.Outcomes[i] = Outcome{Index: i, Result: result, Err: err}

			if err != nil {
				log.Debug("image failed", zap.Int("index", i), zap.Error(err))
			} else {
				log.Debug("image processed",
					zap.Int("index", i),
					zap.String("format", result.Format),
					zap.Int("quality", result.Quality),
					zap.Int("size", result.Size),
				)
			}

			mu.Lock()
			if err == nil {
				res.Results = append(res.Results, *result)
			}
			completed++
			c := completed
			mu.Unlock()

			if p.onItem != nil {
				p.onItem(c, len(inputs))
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range res.Outcomes {
		if o.Err != nil {
			res.FailedCount++
			res.Failures = append(res.Failures, Failure{
				Index:   o.Index,
				Kind:    KindOf(o.Err).String(),
				Message: o.Err.Error(),
			})
		}
	}
	res.SuccessCount = len(res.Results)

	log.Info("batch finished",
		zap.Int("succeeded", res.SuccessCount),
		zap.Int("failed", res.FailedCount),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res
}

// ProcessRequest parses optionsJSON once and processes the batch with the
// result. An unparsable options record fails the whole request with an
// *OptionsError before any image is touched.
func (p *Processor) ProcessRequest(ctx context.Context, inputs []string, optionsJSON []byte) (*BatchProcessResult, error) {
	opts, err := ParseOptions(optionsJSON)
	if err != nil {
		p.log.Warn("rejected batch options", zap.Error(err))
		return nil, err
	}
	return p.ProcessBatch(ctx, inputs, opts), nil
}
