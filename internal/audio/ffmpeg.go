// Package audio wraps the ffmpeg binary for the two external steps of the
// recording pipeline: transcoding uploads to the canonical capture format and
// extracting signal-quality metrics from the result.
//
// Both operations shell out to ffmpeg rather than linking a binding; the
// filter-graph output is read back from stderr, which is ffmpeg's documented
// reporting channel for astats and silencedetect.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"time"
)

// Metrics is the signal-quality snapshot for one standardized recording.
// Pointer fields distinguish "ffmpeg did not report this value" from a
// measured zero.
type Metrics struct {
	// PeakDbfs is the overall peak level in dBFS, nil when not reported.
	PeakDbfs *float64

	// RMSDbfs is the overall RMS level in dBFS, nil when not reported.
	RMSDbfs *float64

	// ClippingCount is the number of clipped samples, never negative.
	ClippingCount int

	// SilenceDuration is the total seconds of detected silence, summed over
	// every silencedetect interval.
	SilenceDuration float64

	// SNRDb approximates the signal-to-noise ratio as RMSDbfs minus the
	// -40 dB silencedetect threshold. It is not a measured noise estimate;
	// nil whenever RMSDbfs is nil.
	SNRDb *float64
}

// FFmpeg invokes a local ffmpeg binary. Safe for concurrent use.
type FFmpeg struct {
	path    string
	timeout time.Duration
}

// NewFFmpeg returns an FFmpeg that runs the binary at path. Each invocation
// is bounded by timeout when it is positive; a run that exceeds the bound is
// reported as a normal error.
func NewFFmpeg(path string, timeout time.Duration) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{path: path, timeout: timeout}
}

// Path returns the configured ffmpeg binary path.
func (f *FFmpeg) Path() string { return f.path }

// Standardize transcodes inPath to the canonical capture format at outPath:
// mono, 16 kHz, signed 16-bit PCM, with an 80 Hz high-pass filter to strip
// handling rumble. The output file exists only after a successful return.
func (f *FFmpeg) Standardize(ctx context.Context, inPath, outPath string) error {
	ctx, cancel := f.bound(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.path,
		"-y",
		"-i", inPath,
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-af", "highpass=f=80",
		outPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// A partial output file must not look like a finished standardization.
		os.Remove(outPath)
		if ctx.Err() != nil {
			return fmt.Errorf("audio: standardize %q: %w", inPath, ctx.Err())
		}
		return fmt.Errorf("audio: standardize %q: %w: %s", inPath, err, tail(stderr.Bytes()))
	}
	return nil
}

var (
	peakRe    = regexp.MustCompile(`lavfi\.astats\.Overall\.Peak_level=([-\d.]+)`)
	rmsRe     = regexp.MustCompile(`lavfi\.astats\.Overall\.RMS_level=([-\d.]+)`)
	clipRe    = regexp.MustCompile(`lavfi\.astats\.Overall\.Clipped_samples=([-\d.]+)`)
	silenceRe = regexp.MustCompile(`silence_duration:\s*([\d.]+)`)
)

// Analyze runs the astats and silencedetect filters over the file at path and
// parses the report from ffmpeg's stderr. Exit code 1 is tolerated: ffmpeg
// returns it when the null muxer ends the stream early, after the report has
// already been printed. Any other nonzero exit is an extraction error.
func (f *FFmpeg) Analyze(ctx context.Context, path string) (*Metrics, error) {
	ctx, cancel := f.bound(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.path,
		"-i", path,
		"-af", "astats=metadata=1:reset=1"+
			",ametadata=print:key=lavfi.astats.Overall.Peak_level"+
			",ametadata=print:key=lavfi.astats.Overall.RMS_level"+
			",ametadata=print:key=lavfi.astats.Overall.Clipped_samples"+
			",silencedetect=noise=-40dB:d=0.3",
		"-f", "null", "-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("audio: analyze %q: %w", path, ctx.Err())
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
			return nil, fmt.Errorf("audio: analyze %q: %w: %s", path, err, tail(stderr.Bytes()))
		}
	}
	return ParseReport(stderr.String()), nil
}

// ParseReport extracts a [Metrics] from an astats/silencedetect stderr
// report. Values that do not appear in the report stay nil; unparseable
// matches are treated as absent.
func ParseReport(report string) *Metrics {
	m := &Metrics{
		PeakDbfs: matchFloat(peakRe, report),
		RMSDbfs:  matchFloat(rmsRe, report),
	}

	if clip := matchFloat(clipRe, report); clip != nil {
		if n := int(math.Round(*clip)); n > 0 {
			m.ClippingCount = n
		}
	}

	for _, sm := range silenceRe.FindAllStringSubmatch(report, -1) {
		if v, err := strconv.ParseFloat(sm[1], 64); err == nil {
			m.SilenceDuration += v
		}
	}

	if m.RMSDbfs != nil {
		snr := *m.RMSDbfs - (-40)
		m.SNRDb = &snr
	}
	return m
}

func matchFloat(re *regexp.Regexp, s string) *float64 {
	sm := re.FindStringSubmatch(s)
	if sm == nil {
		return nil
	}
	v, err := strconv.ParseFloat(sm[1], 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func (f *FFmpeg) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout > 0 {
		return context.WithTimeout(ctx, f.timeout)
	}
	return context.WithCancel(ctx)
}

// FileSizeKB returns the size of the file at path in whole kilobytes,
// rounded up.
func FileSizeKB(path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("audio: stat %q: %w", path, err)
	}
	return int((info.Size() + 1023) / 1024), nil
}

// tail returns the last few lines of ffmpeg output for error messages.
func tail(b []byte) []byte {
	const maxTail = 512
	b = bytes.TrimSpace(b)
	if len(b) > maxTail {
		b = b[len(b)-maxTail:]
	}
	return b
}
