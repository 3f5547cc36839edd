package reward

import (
	"math"
	"regexp"
	"strings"
)

// Sections is the checklist of headings a complete review is expected to cover.
var Sections = []string{
	"summary",
	"bugs",
	"errors",
	"code quality",
	"suggestions",
	"improvements",
	"tests",
	"positive",
	"final review",
}

var (
	bulletRe     = regexp.MustCompile(`(?m)^\s*[-•*]\s+`)
	bugRe        = regexp.MustCompile(`(?i)\bbug\b|\berror\b|\bfail\b|\bissue\b`)
	suggestionRe = regexp.MustCompile(`(?i)\bsuggest\b|\brecommend\b|\bconsider\b|\bfix\b|\baction\b`)
)

// Heuristics are cheap deterministic measurements of a review's text.
type Heuristics struct {
	LengthChars        int             `json:"length_chars"`
	LengthWords        int             `json:"length_words"`
	BulletCount        int             `json:"bullet_points"`
	MentionsBug        bool            `json:"mentions_bug"`
	MentionsSuggestion bool            `json:"mentions_suggest"`
	Sections           map[string]bool `json:"sections_presence"`
}

// ComputeHeuristics measures a review. It is pure and never fails.
func ComputeHeuristics(review string) Heuristics {
	lowered := strings.ToLower(review)
	sections := make(map[string]bool, len(Sections))
	for _, s := range Sections {
		sections[s] = strings.Contains(lowered, s)
	}

	return Heuristics{
		LengthChars:        len(review),
		LengthWords:        len(strings.Fields(review)),
		BulletCount:        len(bulletRe.FindAllStringIndex(review, -1)),
		MentionsBug:        bugRe.MatchString(review),
		MentionsSuggestion: suggestionRe.MatchString(review),
		Sections:           sections,
	}
}

// SectionFraction is the share of checklist sections present.
func (h Heuristics) SectionFraction() float64 {
	if len(Sections) == 0 {
		return 0
	}
	present := 0
	for _, s := range Sections {
		if h.Sections[s] {
			present++
		}
	}
	return float64(present) / float64(len(Sections))
}

// Score maps the heuristics onto [0, 10].
func (h Heuristics) Score() float64 {
	bullets := math.Min(float64(h.BulletCount), 10) / 10

	s := 0.45*h.SectionFraction() +
		0.25*bullets +
		0.25*lengthScore(h.LengthWords) +
		0.1*boolScore(h.MentionsBug) +
		0.1*boolScore(h.MentionsSuggestion)

	return 10 * clamp(s, 0, 1)
}

// lengthScore favours reviews between 80 and 800 words.
func lengthScore(words int) float64 {
	w := float64(words)
	switch {
	case words < 80:
		return w / 80
	case words <= 800:
		return 1
	default:
		return math.Max(0, 1-(w-800)/2000)
	}
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
