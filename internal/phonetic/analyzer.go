// Package phonetic scores written prompts for Chenxu (辰溆) dialect
// authenticity. It classifies individual characters against fixed feature
// tables (checked-tone survivals, retroflex-initial shifts, dialect lexicon)
// and aggregates them into a 0-100 score plus a per-character heatmap.
//
// All tables are read-only after package initialization; every function here
// is pure and safe for concurrent use.
package phonetic

import (
	"math"
	"strings"

	"github.com/mozillazg/go-pinyin"
)

// Analysis is the feature report for one text.
type Analysis struct {
	// CharCount is the number of code points in the text.
	CharCount int `json:"charCount"`

	// RushengCount is the number of checked-tone character occurrences.
	RushengCount int `json:"rushengCount"`

	// RushengDensity is RushengCount / CharCount rounded to three decimals,
	// 0 for empty text.
	RushengDensity float64 `json:"rushengDensity"`

	// ZhuzhuangCount is the number of retroflex-initial character occurrences.
	ZhuzhuangCount int `json:"zhuzhuangCount"`

	// DialectWords lists matched lexicon entries in table order.
	DialectWords []string `json:"dialectWords"`

	// Score is the aggregate authenticity score, 0 to 100.
	Score int `json:"score"`

	// Features lists every matched marker: 入声:X per checked-tone
	// occurrence, then 知组:X per retroflex occurrence, then 方言:W per
	// matched word.
	Features []string `json:"features"`
}

// Analyze computes the dialect feature report for text.
//
// Scoring: checked-tone density above 0.15 earns 40 points, above 0.10 earns
// 20; any retroflex-shift character earns 20; any dialect word earns 20; a
// length of 12 to 20 characters earns 20. The total is clamped to 100.
func Analyze(text string) Analysis {
	chars := []rune(text)

	var rusheng, zhuzhuang []rune
	for _, r := range chars {
		if _, ok := rushengChars[r]; ok {
			rusheng = append(rusheng, r)
		}
		if _, ok := zhuzhuangChars[r]; ok {
			zhuzhuang = append(zhuzhuang, r)
		}
	}

	var density float64
	if len(chars) > 0 {
		density = float64(len(rusheng)) / float64(len(chars))
	}

	var matched []string
	for _, dw := range dialectWords {
		if strings.Contains(text, dw.Word) {
			matched = append(matched, dw.Word)
		}
	}

	score := 0
	switch {
	case density > 0.15:
		score += 40
	case density > 0.1:
		score += 20
	}
	if len(zhuzhuang) > 0 {
		score += 20
	}
	if len(matched) > 0 {
		score += 20
	}
	if len(chars) >= 12 && len(chars) <= 20 {
		score += 20
	}
	if score > 100 {
		score = 100
	}

	features := make([]string, 0, len(rusheng)+len(zhuzhuang)+len(matched))
	for _, r := range rusheng {
		features = append(features, "入声:"+string(r))
	}
	for _, r := range zhuzhuang {
		features = append(features, "知组:"+string(r))
	}
	for _, w := range matched {
		features = append(features, "方言:"+w)
	}

	return Analysis{
		CharCount:      len(chars),
		RushengCount:   len(rusheng),
		RushengDensity: math.Round(density*1000) / 1000,
		ZhuzhuangCount: len(zhuzhuang),
		DialectWords:   matched,
		Score:          score,
		Features:       features,
	}
}

// CellType classifies one heatmap cell.
type CellType string

const (
	CellRusheng   CellType = "rusheng"
	CellZhuzhuang CellType = "zhuzhuang"
	CellDialect   CellType = "dialect"
	CellNormal    CellType = "normal"
)

// HeatmapCell is one character's shading in reading order.
type HeatmapCell struct {
	Index     int      `json:"index"`
	Char      string   `json:"char"`
	Type      CellType `json:"type"`
	Intensity float64  `json:"intensity"`
}

// Heatmap returns one cell per code point of text. Classification precedence:
// checked tone (intensity 1), then retroflex shift (0.8), then membership in
// any dialect word (0.6), then normal (0). Independent of whole-text scoring.
func Heatmap(text string) []HeatmapCell {
	chars := []rune(text)
	cells := make([]HeatmapCell, len(chars))
	for i, r := range chars {
		cell := HeatmapCell{Index: i, Char: string(r), Type: CellNormal, Intensity: 0}
		if _, ok := rushengChars[r]; ok {
			cell.Type, cell.Intensity = CellRusheng, 1
		} else if _, ok := zhuzhuangChars[r]; ok {
			cell.Type, cell.Intensity = CellZhuzhuang, 0.8
		} else if _, ok := dialectRunes[r]; ok {
			cell.Type, cell.Intensity = CellDialect, 0.6
		}
		cells[i] = cell
	}
	return cells
}

var romanizeArgs = func() pinyin.Args {
	a := pinyin.NewArgs()
	a.Fallback = func(r rune, _ pinyin.Args) []string {
		return []string{string(r)}
	}
	return a
}()

// Romanize returns the Mandarin pinyin reading of text, one syllable per Han
// character. Non-Han runes pass through unchanged. Used to annotate matched
// features for reviewers who do not read the script fluently.
func Romanize(text string) []string {
	return pinyin.LazyConvert(text, &romanizeArgs)
}
