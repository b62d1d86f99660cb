// Package quality turns a signal-metrics snapshot into an accept/reject
// verdict for one recording attempt. Classification is a pure function of the
// snapshot so the same measurements always gate the same way.
package quality

import "github.com/chenxu-corpus/chenxuvox/internal/audio"

// Verdict is the gating outcome for a recording attempt.
type Verdict string

const (
	// Accepted means the take passed every signal gate and its standardized
	// file enters the dataset pool.
	Accepted Verdict = "accepted"

	// ClippingDetected means the take peaked above -1 dBFS or contained
	// clipped samples.
	ClippingDetected Verdict = "clipping_detected"

	// TooQuiet means the RMS level fell below -35 dBFS, or metrics could not
	// be extracted at all. It is the conservative default: an unmeasurable
	// take is never accepted.
	TooQuiet Verdict = "too_quiet"
)

// IsValid reports whether v is a recognised verdict.
func (v Verdict) IsValid() bool {
	switch v {
	case Accepted, ClippingDetected, TooQuiet:
		return true
	}
	return false
}

// Thresholds for the two signal gates, in dBFS.
const (
	peakCeiling = -1
	rmsFloor    = -35

	// absentLevel substitutes for a missing peak or RMS measurement. At
	// -60 dBFS it clears the clipping gate and trips the quiet gate, so a
	// half-reported snapshot still rejects conservatively.
	absentLevel = -60
)

// Classify returns the verdict for a metrics snapshot. The clipping gate is
// checked before the quiet gate; a take that trips both reports clipping.
// A nil snapshot means extraction failed and classifies as [TooQuiet].
func Classify(m *audio.Metrics) Verdict {
	if m == nil {
		return TooQuiet
	}
	peak := valueOr(m.PeakDbfs, absentLevel)
	rms := valueOr(m.RMSDbfs, absentLevel)

	if peak > peakCeiling || m.ClippingCount > 0 {
		return ClippingDetected
	}
	if rms < rmsFloor {
		return TooQuiet
	}
	return Accepted
}

func valueOr(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}
