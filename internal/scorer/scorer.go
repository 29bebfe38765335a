// Package scorer computes confidence scores between free text and catalog templates.
// Every function here is deterministic and side-effect free.
package scorer

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/dyluth/atelier/pkg/catalog"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Default thresholds and bonuses.
const (
	DefaultMinRelevance   = 0.3
	DefaultNameFloor      = 0.9
	DefaultNameBonus      = 0.3
	DefaultCategoryBonus  = 0.1
	DefaultDedupThreshold = 0.85
)

// Config holds scoring parameters. Zero values take the defaults.
type Config struct {
	MinRelevance   float64 // Rank drops candidates scoring below this
	NameFloor      float64 // Minimum score when the display name appears in the text
	NameBonus      float64 // Added before applying the floor when the name appears
	CategoryBonus  float64 // Added when the category appears in the text
	DedupThreshold float64 // Similarity at or above which two names are duplicates
}

// Scorer scores text against templates. It holds only configuration.
type Scorer struct {
	cfg Config
}

// New creates a Scorer, filling zero config values with defaults.
func New(cfg Config) *Scorer {
	if cfg.MinRelevance == 0 {
		cfg.MinRelevance = DefaultMinRelevance
	}
	if cfg.NameFloor == 0 {
		cfg.NameFloor = DefaultNameFloor
	}
	if cfg.NameBonus == 0 {
		cfg.NameBonus = DefaultNameBonus
	}
	if cfg.CategoryBonus == 0 {
		cfg.CategoryBonus = DefaultCategoryBonus
	}
	if cfg.DedupThreshold == 0 {
		cfg.DedupThreshold = DefaultDedupThreshold
	}
	return &Scorer{cfg: cfg}
}

// Config returns the effective configuration.
func (s *Scorer) Config() Config {
	return s.cfg
}

// CandidateMatch is a template's relevance against some text.
type CandidateMatch struct {
	TemplateID    string   `json:"template_id"`
	Score         float64  `json:"score"`
	Matched       []string `json:"matched"` // Keywords found in the text, in template order
	NameMatch     bool     `json:"name_match"`
	CategoryMatch bool     `json:"category_match"`
}

// Validate checks the score range.
func (m CandidateMatch) Validate() error {
	if m.Score < 0 || m.Score > 1 || m.Score != m.Score {
		return &ScoreOutOfRangeError{TemplateID: m.TemplateID, Score: m.Score}
	}
	return nil
}

// ScoreOutOfRangeError reports a score outside [0,1]. Scores are clamped when
// computed, so this only surfaces for hand-built matches.
type ScoreOutOfRangeError struct {
	TemplateID string
	Score      float64
}

func (e *ScoreOutOfRangeError) Error() string {
	return fmt.Sprintf("score %v for template %s is outside [0,1]", e.Score, e.TemplateID)
}

// Score returns the confidence in [0,1] that text describes template.
func (s *Scorer) Score(text string, template *catalog.TemplateDescriptor) float64 {
	return s.Match(text, template).Score
}

// Match scores text against template and explains the result.
//
// The base score is the fraction of template keywords contained in the normalized
// text. A contained category adds CategoryBonus. A contained display name adds
// NameBonus and lifts the score to at least NameFloor. The result is clamped.
func (s *Scorer) Match(text string, template *catalog.TemplateDescriptor) CandidateMatch {
	m := CandidateMatch{TemplateID: template.ID, Matched: []string{}}
	haystack := " " + Normalize(text) + " "

	var score float64
	keywords := 0
	for _, kw := range template.Keywords {
		n := Normalize(kw)
		if n == "" {
			continue
		}
		keywords++
		if strings.Contains(haystack, n) {
			m.Matched = append(m.Matched, kw)
		}
	}
	if keywords > 0 {
		score = float64(len(m.Matched)) / float64(keywords)
	}

	if cat := Normalize(template.Category); cat != "" && strings.Contains(haystack, cat) {
		m.CategoryMatch = true
		score += s.cfg.CategoryBonus
	}

	if name := Normalize(template.Name); name != "" && strings.Contains(haystack, name) {
		m.NameMatch = true
		score += s.cfg.NameBonus
		if score < s.cfg.NameFloor {
			score = s.cfg.NameFloor
		}
	}

	m.Score = Clamp(score)
	return m
}

// Rank scores text against every template and returns the matches at or above
// MinRelevance, sorted by score descending then template id ascending.
func (s *Scorer) Rank(text string, templates []*catalog.TemplateDescriptor) []CandidateMatch {
	out := make([]CandidateMatch, 0, len(templates))
	for _, t := range templates {
		m := s.Match(text, t)
		if m.Score >= s.cfg.MinRelevance {
			out = append(out, m)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].TemplateID < out[j].TemplateID
	})
	return out
}

// Similarity compares two task names: 1.0 when they normalize to the same text,
// at least NameFloor when one contains the other, otherwise the Dice coefficient
// of their token sets.
func (s *Scorer) Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	ta, tb := tokenSet(na), tokenSet(nb)
	shared := 0
	for tok := range ta {
		if tb[tok] {
			shared++
		}
	}
	dice := 2 * float64(shared) / float64(len(ta)+len(tb))

	if containsWord(" "+na+" ", nb) || containsWord(" "+nb+" ", na) {
		if dice < s.cfg.NameFloor {
			dice = s.cfg.NameFloor
		}
	}
	return Clamp(dice)
}

// IsDuplicate reports whether two task names are similar enough to merge.
func (s *Scorer) IsDuplicate(a, b string) (float64, bool) {
	sim := s.Similarity(a, b)
	return sim, sim >= s.cfg.DedupThreshold
}

// Clamp bounds v to [0,1]; NaN becomes 0.
func Clamp(v float64) float64 {
	switch {
	case v != v:
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lower-cases s, strips diacritics and collapses every run of
// non-alphanumeric characters into a single space.
func Normalize(s string) string {
	stripped, _, err := transform.String(accentStripper, s)
	if err != nil {
		stripped = s
	}

	var b strings.Builder
	b.Grow(len(stripped))
	space := true
	for _, r := range strings.ToLower(stripped) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// containsWord reports whether needle occurs in the space-padded haystack on
// word boundaries.
func containsWord(paddedHaystack, needle string) bool {
	return strings.Contains(paddedHaystack, " "+needle+" ")
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}
