// Package recording implements the quality-gated ingestion pipeline for
// read-aloud takes: raw upload persistence, standardization and signal
// analysis through ffmpeg, verdict classification, and the recordings store.
package recording

import (
	"errors"
	"fmt"
	"time"

	"github.com/chenxu-corpus/chenxuvox/internal/quality"
)

// Attempt is one persisted recording attempt. Every upload produces exactly
// one Attempt regardless of verdict, so rejected takes remain auditable.
type Attempt struct {
	// ID uniquely identifies the attempt.
	ID string

	// PromptID references the corpus paragraph the speaker read.
	PromptID string

	// SpeakerID identifies the speaker session.
	SpeakerID string

	// RawPath is the stored raw upload, relative to the data directory
	// (e.g. "raw/<id>.webm"). Always set.
	RawPath string

	// ProcessedPath is the standardized capture, relative to the data
	// directory. Nil unless the attempt was accepted.
	ProcessedPath *string

	// DurationMs is the take length in milliseconds when known.
	DurationMs *int64

	// SizeKB is the raw upload size in whole kilobytes, rounded up.
	SizeKB int

	// Signal metrics snapshot. Nil pointers mean the value was not measured.
	SNRDb          *float64
	PeakDbfs       *float64
	RMSDbfs        *float64
	ClippingCount  int
	SilenceSeconds float64

	// Transcript is reserved for future annotation tooling. The pipeline
	// never populates it.
	Transcript *string

	// Status is the gating verdict for this take.
	Status quality.Verdict

	// CreatedAt is set by the store on insert.
	CreatedAt time.Time
}

// Validate checks that the attempt has the fields the store requires.
func (a *Attempt) Validate() error {
	var errs []error
	if a.ID == "" {
		errs = append(errs, errors.New("recording: id must not be empty"))
	}
	if a.PromptID == "" {
		errs = append(errs, errors.New("recording: prompt id must not be empty"))
	}
	if a.SpeakerID == "" {
		errs = append(errs, errors.New("recording: speaker id must not be empty"))
	}
	if a.RawPath == "" {
		errs = append(errs, errors.New("recording: raw path must not be empty"))
	}
	if !a.Status.IsValid() {
		errs = append(errs, fmt.Errorf("recording: status %q is not a valid verdict", a.Status))
	}
	return errors.Join(errs...)
}

// Accepted reports whether this take passed the signal gates.
func (a *Attempt) Accepted() bool {
	return a.Status == quality.Accepted
}
