package main

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"go.uber.org/multierr"
	"golang.org/x/crypto/sha3"

	"github.com/shamspias/imgpress"
)

// processFiles runs every readable path through one batch and writes each
// result beside its input, or into outDir when set. It reports one line per
// file to w and returns the combined errors of all failed files.
func processFiles(ctx context.Context, proc *imgpress.Processor, paths []string, opts imgpress.ImageOptions, outDir string, w io.Writer) error {
	var (
		errs   error
		inputs []string
		names  []string
	)
	for _, p := range paths {
		s, err := readInput(p)
		if err != nil {
			fmt.Fprintf(w, "✗ %s: %v\n", p, err)
			errs = multierr.Append(errs, err)
			continue
		}
		inputs = append(inputs, s)
		names = append(names, p)
	}

	res := proc.ProcessBatch(ctx, inputs, opts)
	for _, o := range res.Outcomes {
		name := names[o.Index]
		if o.Err != nil {
			fmt.Fprintf(w, "✗ %s: %v\n", name, o.Err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, o.Err))
			continue
		}

		out, sum, err := writeResult(name, outDir, o.Result)
		if err != nil {
			fmt.Fprintf(w, "✗ %s: %v\n", name, err)
			errs = multierr.Append(errs, err)
			continue
		}
		fmt.Fprintf(w, "✓ %s → %s | %s | sha3 %s\n", name, out, o.Result, sum[:16])
	}

	fmt.Fprintln(w, res)
	return errs
}

// readInput loads a file as a data URI.
func readInput(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	mime := "application/octet-stream"
	if t, err := filetype.Match(b); err == nil && t != filetype.Unknown {
		mime = t.MIME.Value
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}

// writeResult decodes r and writes it to its output path. It returns the
// path and the hex SHA3-256 digest of the written bytes.
func writeResult(input, outDir string, r *imgpress.ProcessResult) (string, string, error) {
	raw, err := imgpress.DecodeTransport(r.Data, 0)
	if err != nil {
		return "", "", err
	}

	path := outputPath(input, outDir, r.Format)
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return "", "", err
		}
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", "", err
	}
	return path, digest(raw), nil
}

// outputPath names the output <base>_processed.<label>, in dir or beside
// the input.
func outputPath(input, dir, label string) string {
	base := filepath.Base(input)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, base+"_processed."+label)
}

func digest(b []byte) string {
	sum := sha3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// analyzeFiles prints the complexity measurements and the quality an
// optimized run would pick for each path.
func analyzeFiles(w io.Writer, paths []string) error {
	var errs error
	for i, p := range paths {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := analyzeFile(w, p); err != nil {
			fmt.Fprintf(w, "✗ %s: %v\n", p, err)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func analyzeFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	img, format, err := imgpress.Decode(f)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	b := img.Bounds()
	stats := imgpress.AnalyzeComplexity(img)
	quality := imgpress.SelectQuality(uint64(b.Dx())*uint64(b.Dy()), stats.Class)

	fmt.Fprintf(w, "📐 File:            %s\n", path)
	if info, err := f.Stat(); err == nil {
		fmt.Fprintf(w, "💾 Size:            %s\n", imgpress.HumanBytes(info.Size()))
	}
	fmt.Fprintf(w, "🖼  Format:          %s\n", format)
	fmt.Fprintf(w, "📏 Dimensions:      %d × %d\n", b.Dx(), b.Dy())
	fmt.Fprintf(w, "🔲 Edge density:    %.1f%%\n", stats.EdgeDensity*100)
	fmt.Fprintf(w, "🎨 Color diversity: %.1f%%\n", stats.ColorDiversity*100)
	fmt.Fprintf(w, "📊 Complexity:      %s\n", stats.Class)
	fmt.Fprintf(w, "💡 Recommended quality: %d\n", quality)
	return nil
}
