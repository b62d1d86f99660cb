package recording

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/chenxu-corpus/chenxuvox/internal/audio"
	"github.com/chenxu-corpus/chenxuvox/internal/observe"
	"github.com/chenxu-corpus/chenxuvox/internal/quality"
)

// Transcoder converts an upload to the canonical capture format.
// [audio.FFmpeg] satisfies this interface.
type Transcoder interface {
	Standardize(ctx context.Context, inPath, outPath string) error
}

// Analyzer extracts a signal-metrics snapshot from a standardized file.
// [audio.FFmpeg] satisfies this interface.
type Analyzer interface {
	Analyze(ctx context.Context, path string) (*audio.Metrics, error)
}

const (
	rawSubdir       = "raw"
	processedSubdir = "processed"
)

// Pipeline runs the synchronous upload chain: persist raw bytes, standardize,
// analyze, classify, store. Each upload is handled as one logical task with
// no internal parallelism; isolation between concurrent uploads comes from
// the unique per-attempt ID.
type Pipeline struct {
	transcoder Transcoder
	analyzer   Analyzer
	store      Store
	dataDir    string
	metrics    *observe.Metrics
	log        *slog.Logger
}

// NewPipeline creates a Pipeline rooted at dataDir, creating the raw and
// processed subdirectories if needed. A nil logger falls back to
// [slog.Default]; nil metrics fall back to [observe.DefaultMetrics].
func NewPipeline(t Transcoder, a Analyzer, store Store, dataDir string, metrics *observe.Metrics, log *slog.Logger) (*Pipeline, error) {
	for _, sub := range []string{rawSubdir, processedSubdir} {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("recording: create %s dir: %w", sub, err)
		}
	}
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Pipeline{
		transcoder: t,
		analyzer:   a,
		store:      store,
		dataDir:    dataDir,
		metrics:    metrics,
		log:        log,
	}, nil
}

// Upload describes one incoming take.
type Upload struct {
	// PromptID is the corpus paragraph being read. Defaults to "unknown".
	PromptID string

	// SpeakerID identifies the speaker session. Defaults to "default_speaker".
	SpeakerID string

	// Data is the raw upload body.
	Data io.Reader
}

// Process runs the full chain for one upload and returns the stored attempt.
//
// Standardization or analysis failures do not fail the request: the attempt
// is still stored with the conservative too_quiet verdict so the take remains
// auditable. Only a failure to persist the raw bytes or the attempt row is
// returned as an error.
func (p *Pipeline) Process(ctx context.Context, up Upload) (*Attempt, error) {
	if up.PromptID == "" {
		up.PromptID = "unknown"
	}
	if up.SpeakerID == "" {
		up.SpeakerID = "default_speaker"
	}

	id := uuid.NewString()
	rawRel := filepath.Join(rawSubdir, id+".webm")
	processedRel := filepath.Join(processedSubdir, id+".wav")
	rawAbs := filepath.Join(p.dataDir, rawRel)
	processedAbs := filepath.Join(p.dataDir, processedRel)

	if err := writeFile(rawAbs, up.Data); err != nil {
		return nil, fmt.Errorf("recording: save raw upload: %w", err)
	}

	metrics := p.standardizeAndAnalyze(ctx, id, rawAbs, processedAbs)
	verdict := quality.Classify(metrics)
	p.metrics.RecordVerdict(ctx, string(verdict))

	sizeKB, err := audio.FileSizeKB(rawAbs)
	if err != nil {
		p.log.Warn("failed to stat raw upload", "id", id, "error", err)
	}

	attempt := &Attempt{
		ID:        id,
		PromptID:  up.PromptID,
		SpeakerID: up.SpeakerID,
		RawPath:   rawRel,
		SizeKB:    sizeKB,
		Status:    verdict,
	}
	if metrics != nil {
		attempt.SNRDb = metrics.SNRDb
		attempt.PeakDbfs = metrics.PeakDbfs
		attempt.RMSDbfs = metrics.RMSDbfs
		attempt.ClippingCount = metrics.ClippingCount
		attempt.SilenceSeconds = metrics.SilenceDuration
	}
	if verdict == quality.Accepted {
		attempt.ProcessedPath = &processedRel
	}

	if err := p.store.Create(ctx, attempt); err != nil {
		return nil, err
	}

	p.log.Info("recording attempt stored",
		"id", id,
		"prompt", up.PromptID,
		"speaker", up.SpeakerID,
		"status", verdict,
		"size_kb", sizeKB,
	)
	return attempt, nil
}

// standardizeAndAnalyze returns the metrics snapshot for the take, or nil
// when either external step failed. Failures are logged, never returned: the
// caller classifies nil conservatively.
func (p *Pipeline) standardizeAndAnalyze(ctx context.Context, id, rawAbs, processedAbs string) *audio.Metrics {
	start := time.Now()
	if err := p.transcoder.Standardize(ctx, rawAbs, processedAbs); err != nil {
		p.log.Warn("standardization failed", "id", id, "error", err)
		return nil
	}
	p.metrics.StandardizeDuration.Record(ctx, time.Since(start).Seconds())

	start = time.Now()
	m, err := p.analyzer.Analyze(ctx, processedAbs)
	if err != nil {
		p.log.Warn("signal analysis failed", "id", id, "error", err)
		return nil
	}
	p.metrics.AnalyzeDuration.Record(ctx, time.Since(start).Seconds())
	return m
}

// AbsolutePath resolves a stored relative path against the pipeline's data
// directory.
func (p *Pipeline) AbsolutePath(rel string) string {
	return filepath.Join(p.dataDir, rel)
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
