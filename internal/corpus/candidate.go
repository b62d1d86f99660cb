// Package corpus maintains the prompt corpus: the canonical paragraph table
// speakers read from, and the staging workflow that turns LLM-generated
// sentence candidates into canonical prompts after human review.
package corpus

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/chenxu-corpus/chenxuvox/internal/config"
	"github.com/chenxu-corpus/chenxuvox/internal/phonetic"
)

// CandidateStatus is the review state of a generated sentence.
// pending is the only non-terminal state; approve and reject each fire at
// most once per candidate.
type CandidateStatus string

const (
	StatusPending  CandidateStatus = "pending"
	StatusApproved CandidateStatus = "approved"
	StatusRejected CandidateStatus = "rejected"
)

// IsValid reports whether s is a recognised candidate status.
func (s CandidateStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Candidate is one generated sentence staged for review.
type Candidate struct {
	// ID uniquely identifies the candidate.
	ID string `json:"id"`

	// Text is the generated sentence.
	Text string `json:"text"`

	// Topic and Difficulty echo the generation request.
	Topic      string            `json:"topic"`
	Difficulty config.Difficulty `json:"difficulty"`

	// Features lists the markers the model claims the sentence contains.
	// Informational only; the authoritative feature list is in Analysis.
	Features []string `json:"features,omitempty"`

	// Analysis is the dialect authenticity report for Text.
	Analysis phonetic.Analysis `json:"analysis"`

	// Heatmap is the per-character shading for review UIs. Derived from
	// Text on demand; not persisted.
	Heatmap []phonetic.HeatmapCell `json:"heatmap,omitempty"`

	// Status is the review state.
	Status CandidateStatus `json:"status"`

	// CreatedAt is set by the store on insert.
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// Validate checks that the candidate has the fields the store requires.
func (c *Candidate) Validate() error {
	var errs []error
	if c.ID == "" {
		errs = append(errs, errors.New("corpus: candidate id must not be empty"))
	}
	if c.Text == "" {
		errs = append(errs, errors.New("corpus: candidate text must not be empty"))
	}
	if !c.Status.IsValid() {
		errs = append(errs, fmt.Errorf("corpus: candidate status %q is invalid", c.Status))
	}
	return errors.Join(errs...)
}

// Prompt is one canonical corpus paragraph offered to speakers.
type Prompt struct {
	// ID uniquely identifies the paragraph.
	ID string `json:"id"`

	// Title is a short display label; seed imports and approvals use the
	// category or topic.
	Title string `json:"title"`

	// Content is the text the speaker reads aloud.
	Content string `json:"content"`

	// Category groups prompts for progress reporting (seed file name or
	// generation topic).
	Category string `json:"category"`

	// DifficultyScore is 1 (easy), 2 (medium), or 3 (hard).
	DifficultyScore int `json:"difficultyScore"`

	// Source records provenance: "local" for seed files, "llm_generated"
	// for approved candidates.
	Source string `json:"source"`
}

// Difficulty maps the numeric score back to its tag.
func (p *Prompt) Difficulty() config.Difficulty {
	switch {
	case p.DifficultyScore >= 3:
		return config.DifficultyHard
	case p.DifficultyScore == 2:
		return config.DifficultyMedium
	}
	return config.DifficultyEasy
}

// EstimatedDuration returns the expected reading time in seconds: a quarter
// second per character, with a three second floor.
func (p *Prompt) EstimatedDuration() int {
	secs := (utf8.RuneCountInString(p.Content) + 3) / 4
	if secs < 3 {
		return 3
	}
	return secs
}

// DifficultyScore maps a difficulty tag to the numeric score stored on
// canonical prompts. Unknown tags score 1.
func DifficultyScore(d config.Difficulty) int {
	switch d {
	case config.DifficultyHard:
		return 3
	case config.DifficultyMedium:
		return 2
	}
	return 1
}
