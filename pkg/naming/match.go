package naming

import (
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"
)

// Confidence buckets a similarity score.
type Confidence int

const (
	ConfidenceNone   Confidence = iota // Score < 0.70
	ConfidenceLow                      // Score >= 0.70
	ConfidenceMedium                   // Score >= 0.85
	ConfidenceHigh                     // Score >= 0.95
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceLow:
		return "low"
	default:
		return "none"
	}
}

func confidenceFor(score float64) Confidence {
	switch {
	case score >= 0.95:
		return ConfidenceHigh
	case score >= 0.85:
		return ConfidenceMedium
	case score >= 0.70:
		return ConfidenceLow
	default:
		return ConfidenceNone
	}
}

// Match is one scored candidate.
type Match struct {
	Name       string
	Score      float64
	Confidence Confidence
}

// Similarity scores two names after folding. A folded query that is a
// substring of the folded name scores 1.
func Similarity(query, name string) float64 {
	q, n := Fold(query), Fold(name)
	if q == "" || n == "" {
		return 0
	}
	if strings.Contains(n, q) {
		return 1
	}
	return float64(edlib.JaroWinklerSimilarity(q, n))
}

// Rank scores every candidate against query and returns those at or above
// min, best first. Ties keep candidate order.
func Rank(query string, candidates []string, min Confidence) []Match {
	var out []Match
	for _, c := range candidates {
		score := Similarity(query, c)
		conf := confidenceFor(score)
		if conf < min || conf == ConfidenceNone {
			continue
		}
		out = append(out, Match{Name: c, Score: score, Confidence: conf})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
