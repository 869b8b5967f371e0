package imgpress

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Process transforms one transport-encoded image according to opts.
//
// The input may carry a data URI header, which is discarded. Failures are
// returned as *ProcessError; no partial result is ever returned.
func (p *Processor) Process(ctx context.Context, input string, opts ImageOptions) (result *ProcessResult, err error) {
	finish := p.rec.StartImage()
	defer func() {
		if pnk := recover(); pnk != nil {
			result = nil
			err = newError(KindInternal, fmt.Sprintf("panic at runtime: %v", pnk), nil)
		}
		finish(err)
	}()

	if err := ctx.Err(); err != nil {
		return nil, newError(KindCanceled, "not started", err)
	}

	done := p.rec.StartStage(StageDecoding)
	raw, err := DecodeTransport(input, p.maxInputSize)
	if err != nil {
		done()
		return nil, err
	}
	if t, err := sniff(raw); err == nil {
		p.rec.InputFormat(t.MIME.Value)
	}
	src, err := decodeImage(raw)
	done()
	if err != nil {
		return nil, err
	}

	w, h := src.size()
	p.log.Debug("decoded image",
		zap.String("format", src.format),
		zap.String("color_model", src.model.String()),
		zap.Int("width", w),
		zap.Int("height", h),
		zap.Int("bytes", len(raw)),
	)

	done = p.rec.StartStage(StageResizing)
	src.img = resizeIfNeeded(src.img, opts.MaxWidth, opts.MaxHeight)
	done()

	if opts.StripMetadata {
		done = p.rec.StartStage(StageStripping)
		src.img = stripMetadata(src.img, src.model)
		done()
	}

	w, h = src.size()
	if opts.Optimize {
		done = p.rec.StartStage(StageOptimizing)
		stats := AnalyzeComplexity(src.img)
		opts.Quality = SelectQuality(uint64(w)*uint64(h), stats.Class)
		done()

		p.log.Debug("selected quality",
			zap.Float64("edge_density", stats.EdgeDensity),
			zap.Float64("color_diversity", stats.ColorDiversity),
			zap.Stringer("complexity", stats.Class),
			zap.Int("quality", opts.Quality),
		)
	}

	format, err := resolveFormat(opts.Format, src.raw)
	if err != nil {
		return nil, err
	}
	if opts.Progressive && format == JPEG {
		p.log.Debug("progressive jpeg not supported, writing baseline")
	}

	done = p.rec.StartStage(StageEncoding)
	data, err := encodeToBytes(src.img, format, opts.Quality)
	done()
	if err != nil {
		return nil, err
	}

	p.rec.Quality(opts.Quality)
	p.rec.Bytes(len(raw), len(data))

	return &ProcessResult{
		Data:    EncodeTransport(data, format),
		Format:  format.Label(),
		Size:    len(data),
		Width:   w,
		Height:  h,
		Quality: opts.Quality,
	}, nil
}
