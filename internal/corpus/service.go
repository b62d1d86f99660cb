package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/chenxu-corpus/chenxuvox/internal/config"
	"github.com/chenxu-corpus/chenxuvox/internal/observe"
	"github.com/chenxu-corpus/chenxuvox/internal/phonetic"
	"github.com/chenxu-corpus/chenxuvox/pkg/textgen"
)

// Candidates scoring at least this are counted as high quality in summaries.
const highQualityScore = 60

// ErrNoGenerator is returned by Generate when no backend is configured.
var ErrNoGenerator = errors.New("corpus: no generation provider configured")

// ErrNoPrompts is returned by Next when the canonical corpus is empty.
var ErrNoPrompts = errors.New("corpus: no prompts available")

const (
	maxGenerateCount     = 50
	defaultGenerateCount = 10
)

// RecordingCounter reports, per prompt id, how many recordings a speaker has
// made. Satisfied by the recording store.
type RecordingCounter interface {
	PromptCounts(ctx context.Context, speakerID string) (map[string]int, error)
}

// Service drives the corpus workflow: LLM generation and review of sentence
// candidates, seed imports, and prompt selection for speakers.
type Service struct {
	store      Store
	recordings RecordingCounter
	generator  textgen.Generator
	metrics    *observe.Metrics
	log        *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithGenerator sets the text generation backend. Without one, Generate
// returns an error and the rest of the service still works.
func WithGenerator(g textgen.Generator) Option {
	return func(s *Service) { s.generator = g }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// NewService creates a corpus service.
func NewService(store Store, recordings RecordingCounter, opts ...Option) *Service {
	s := &Service{store: store, recordings: recordings}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// GenerateRequest describes one batch of sentences to generate.
type GenerateRequest struct {
	// Topic steers the content (e.g. 赶场, 农事).
	Topic string `json:"topic"`

	// Difficulty is easy, medium, or hard.
	Difficulty config.Difficulty `json:"difficulty"`

	// Count is the number of sentences to request. Defaults to 10,
	// capped at 50.
	Count int `json:"count"`

	// SpecificFeatures, when set, are phonetic markers every sentence
	// must contain.
	SpecificFeatures []string `json:"specificFeatures,omitempty"`
}

// Validate checks the request and applies the count default.
func (r *GenerateRequest) Validate() error {
	var errs []error
	if strings.TrimSpace(r.Topic) == "" {
		errs = append(errs, errors.New("corpus: topic must not be empty"))
	}
	if !r.Difficulty.IsValid() {
		errs = append(errs, fmt.Errorf("corpus: difficulty %q is invalid", r.Difficulty))
	}
	if r.Count == 0 {
		r.Count = defaultGenerateCount
	}
	if r.Count < 1 || r.Count > maxGenerateCount {
		errs = append(errs, fmt.Errorf("corpus: count %d out of range [1,%d]", r.Count, maxGenerateCount))
	}
	return errors.Join(errs...)
}

// Summary aggregates one generation batch.
type Summary struct {
	Total             int     `json:"total"`
	HighQuality       int     `json:"highQuality"`
	AvgRushengDensity float64 `json:"avgRushengDensity"`
}

// GenerateResult is the outcome of one Generate call. Candidates are sorted
// by authenticity score, best first.
type GenerateResult struct {
	Candidates []Candidate `json:"data"`
	Summary    Summary     `json:"summary"`
}

// Generate asks the configured backend for a batch of dialect sentences,
// scores each one, stages the batch for review, and returns it best first.
// If the model output yields no usable sentence, nothing is staged and an
// error is returned.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if s.generator == nil {
		return nil, ErrNoGenerator
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := s.generator.Generate(ctx, textgen.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   buildUserPrompt(req),
		Temperature:  0.8,
		JSONOnly:     true,
	})
	elapsed := time.Since(start)
	provider := s.generator.Name()
	s.metrics.GenerationDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("provider", provider)))
	if err != nil {
		s.metrics.RecordProviderRequest(ctx, provider, "error")
		s.metrics.RecordProviderError(ctx, provider)
		return nil, fmt.Errorf("corpus: generate: %w", err)
	}
	s.metrics.RecordProviderRequest(ctx, provider, "ok")

	sentences, err := parseSentences(resp.Content)
	if err != nil {
		return nil, err
	}
	if len(sentences) == 0 {
		return nil, errors.New("corpus: generation produced no usable sentences")
	}

	candidates := make([]Candidate, 0, len(sentences))
	for _, sent := range sentences {
		candidates = append(candidates, Candidate{
			ID:         uuid.NewString(),
			Text:       sent.Text,
			Topic:      req.Topic,
			Difficulty: req.Difficulty,
			Features:   sent.Features,
			Analysis:   phonetic.Analyze(sent.Text),
			Heatmap:    phonetic.Heatmap(sent.Text),
			Status:     StatusPending,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Analysis.Score > candidates[j].Analysis.Score
	})

	if err := s.store.StageCandidates(ctx, candidates); err != nil {
		return nil, err
	}
	s.metrics.CandidatesStaged.Add(ctx, int64(len(candidates)),
		metric.WithAttributes(attribute.String("provider", provider)))

	summary := Summary{Total: len(candidates)}
	var densitySum float64
	for i := range candidates {
		if candidates[i].Analysis.Score >= highQualityScore {
			summary.HighQuality++
		}
		densitySum += candidates[i].Analysis.RushengDensity
	}
	summary.AvgRushengDensity = densitySum / float64(len(candidates))

	s.log.InfoContext(ctx, "generated corpus candidates",
		slog.String("provider", provider),
		slog.String("topic", req.Topic),
		slog.Int("total", summary.Total),
		slog.Int("high_quality", summary.HighQuality),
		slog.Duration("elapsed", elapsed),
	)
	return &GenerateResult{Candidates: candidates, Summary: summary}, nil
}

// Approve promotes the pending candidates among ids into the canonical prompt
// table. Returns how many were promoted.
func (s *Service) Approve(ctx context.Context, ids []string) (int, error) {
	n, err := s.store.ApproveCandidates(ctx, ids)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.InfoContext(ctx, "approved corpus candidates", slog.Int("approved", n))
	}
	return n, nil
}

// Reject marks the pending candidates among ids rejected. Returns how many
// were rejected.
func (s *Service) Reject(ctx context.Context, ids []string) (int, error) {
	n, err := s.store.RejectCandidates(ctx, ids)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.InfoContext(ctx, "rejected corpus candidates", slog.Int("rejected", n))
	}
	return n, nil
}

// Prompts returns every canonical prompt.
func (s *Service) Prompts(ctx context.Context) ([]Prompt, error) {
	return s.store.ListPrompts(ctx)
}

// Candidates returns staged candidates, optionally filtered by status.
func (s *Service) Candidates(ctx context.Context, status CandidateStatus) ([]Candidate, error) {
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("corpus: status %q is invalid", status)
	}
	return s.store.ListCandidates(ctx, status)
}

// Progress summarises a speaker's coverage of the prompt corpus.
type Progress struct {
	// Total is the number of canonical prompts.
	Total int `json:"total"`

	// Completed is the number of distinct prompts the speaker has
	// recorded at least once.
	Completed int `json:"completed"`

	// ByCategory counts completed prompts per category. Every known
	// category appears, zero or not.
	ByCategory map[string]int `json:"byCategory"`
}

// NextPrompt is the prompt a speaker should read next, with reading-time and
// progress context.
type NextPrompt struct {
	Prompt            Prompt            `json:"paragraph"`
	Difficulty        config.Difficulty `json:"difficulty"`
	EstimatedDuration int               `json:"estimatedDuration"`
	Progress          Progress          `json:"progress"`
}

// Next returns the first prompt the speaker has not recorded yet. Once every
// prompt is covered it wraps around to the first prompt.
func (s *Service) Next(ctx context.Context, speakerID string) (*NextPrompt, error) {
	prompts, err := s.store.ListPrompts(ctx)
	if err != nil {
		return nil, err
	}
	if len(prompts) == 0 {
		return nil, ErrNoPrompts
	}

	counts, err := s.recordings.PromptCounts(ctx, speakerID)
	if err != nil {
		return nil, fmt.Errorf("corpus: next prompt: %w", err)
	}

	next := &prompts[0]
	for i := range prompts {
		if counts[prompts[i].ID] == 0 {
			next = &prompts[i]
			break
		}
	}

	byCategory := make(map[string]int)
	for i := range prompts {
		cat := prompts[i].Category
		if _, ok := byCategory[cat]; !ok {
			byCategory[cat] = 0
		}
		if counts[prompts[i].ID] > 0 {
			byCategory[cat]++
		}
	}

	return &NextPrompt{
		Prompt:            *next,
		Difficulty:        next.Difficulty(),
		EstimatedDuration: next.EstimatedDuration(),
		Progress: Progress{
			Total:      len(prompts),
			Completed:  len(counts),
			ByCategory: byCategory,
		},
	}, nil
}

// seedEntry is one record in a seed corpus file.
type seedEntry struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Difficulty config.Difficulty `json:"difficulty"`

	// EstimatedDuration in seed files is advisory; reading time is
	// recomputed from content length.
	EstimatedDuration int `json:"estimatedDuration"`
}

// ImportSeedDir loads every *.json file in dir into the canonical prompt
// table. The file name (sans extension) becomes the category and title;
// existing prompt ids are left untouched. Returns the number of prompts
// inserted.
func (s *Service) ImportSeedDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("corpus: read seed dir %q: %w", dir, err)
	}

	var prompts []Prompt
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		category := strings.TrimSuffix(name, ".json")

		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return 0, fmt.Errorf("corpus: read seed file %q: %w", name, err)
		}
		var seeds []seedEntry
		if err := json.Unmarshal(raw, &seeds); err != nil {
			return 0, fmt.Errorf("corpus: parse seed file %q: %w", name, err)
		}

		for _, seed := range seeds {
			if seed.ID == "" || seed.Content == "" {
				return 0, fmt.Errorf("corpus: seed file %q has an entry with empty id or content", name)
			}
			prompts = append(prompts, Prompt{
				ID:              seed.ID,
				Title:           category,
				Content:         seed.Content,
				Category:        category,
				DifficultyScore: DifficultyScore(seed.Difficulty),
				Source:          "local",
			})
		}
	}

	inserted, err := s.store.ImportPrompts(ctx, prompts)
	if err != nil {
		return 0, err
	}
	s.log.InfoContext(ctx, "imported seed corpus",
		slog.String("dir", dir),
		slog.Int("loaded", len(prompts)),
		slog.Int("inserted", inserted),
	)
	return inserted, nil
}

// fenceOpenRe strips a leading markdown code fence with an optional language
// tag.
var fenceOpenRe = regexp.MustCompile("^```[a-zA-Z]*\n?")

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = fenceOpenRe.ReplaceAllString(trimmed, "")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

// rawSentence is one usable item from the model output.
type rawSentence struct {
	Text     string   `json:"text"`
	Features []string `json:"features"`
}

// parseSentences decodes the model output. Accepted shapes are a bare JSON
// array or an object with a "sentences" array; items may be plain strings or
// {"text": ..., "features": [...]} objects. Items without usable text are
// skipped.
func parseSentences(content string) ([]rawSentence, error) {
	payload := stripFences(content)
	if payload == "" {
		return nil, errors.New("corpus: empty generation output")
	}

	var items []json.RawMessage
	if strings.HasPrefix(payload, "[") {
		if err := json.Unmarshal([]byte(payload), &items); err != nil {
			return nil, fmt.Errorf("corpus: parse generation output: %w", err)
		}
	} else {
		var envelope struct {
			Sentences []json.RawMessage `json:"sentences"`
		}
		if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
			return nil, fmt.Errorf("corpus: parse generation output: %w", err)
		}
		items = envelope.Sentences
	}

	var out []rawSentence
	for _, item := range items {
		var text string
		if err := json.Unmarshal(item, &text); err == nil {
			if text != "" {
				out = append(out, rawSentence{Text: text})
			}
			continue
		}
		var sent rawSentence
		if err := json.Unmarshal(item, &sent); err != nil || sent.Text == "" {
			continue
		}
		out = append(out, sent)
	}
	return out, nil
}
