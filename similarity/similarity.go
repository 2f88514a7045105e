// Package similarity scores text pairs by normalized edit distance and
// merges near-duplicate entries before they reach a reviewer or an
// external tracker.
package similarity

import "strings"

// DefaultThreshold marks a pair as duplicates when their similarity
// reaches 80%.
const DefaultThreshold = 0.8

// Similarity returns a score in [0, 1] where 1 means the two strings
// are identical after trimming and case folding. The score is
// 1 - levenshtein(a, b) / max(len(a), len(b)).
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}

	left := strings.ToLower(strings.TrimSpace(a))
	right := strings.ToLower(strings.TrimSpace(b))
	if left == right {
		return 1
	}

	lr := []rune(left)
	rr := []rune(right)
	maxLen := len(lr)
	if len(rr) > maxLen {
		maxLen = len(rr)
	}
	if maxLen == 0 {
		return 1
	}

	score := 1 - float64(levenshtein(lr, rr))/float64(maxLen)
	if score < 0 {
		return 0
	}
	return score
}

func levenshtein(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return len(a)
	}

	previous := make([]int, len(b)+1)
	current := make([]int, len(b)+1)
	for j := range previous {
		previous[j] = j
	}

	for i, ca := range a {
		current[0] = i + 1
		for j, cb := range b {
			insertion := previous[j+1] + 1
			deletion := current[j] + 1
			substitution := previous[j]
			if ca != cb {
				substitution++
			}
			current[j+1] = minInt(insertion, deletion, substitution)
		}
		previous, current = current, previous
	}

	return previous[len(b)]
}

func minInt(values ...int) int {
	min := values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

// Detector flags and merges duplicate entries using a configurable
// similarity threshold.
type Detector struct {
	Threshold float64
}

// NewDetector builds a detector. A threshold outside (0, 1] falls back
// to DefaultThreshold.
func NewDetector(threshold float64) *Detector {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Detector{Threshold: threshold}
}

// IsDuplicate reports whether two titles are close enough to describe
// the same work item.
func (d *Detector) IsDuplicate(a, b string) bool {
	return Similarity(a, b) >= d.threshold()
}

func (d *Detector) threshold() float64 {
	if d == nil || d.Threshold <= 0 || d.Threshold > 1 {
		return DefaultThreshold
	}
	return d.Threshold
}

// Match points an existing title at the candidate it resembles.
type Match struct {
	Index int
	Title string
	Score float64
}

// FindExisting returns the known titles the candidate collides with,
// best match first. Callers use it to warn a reviewer before creating
// a tracker entry that probably already exists.
func (d *Detector) FindExisting(candidate string, existing []string) []Match {
	var matches []Match
	for i, title := range existing {
		score := Similarity(candidate, title)
		if score < d.threshold() {
			continue
		}
		matches = append(matches, Match{Index: i, Title: title, Score: score})
	}
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].Score > matches[j-1].Score; j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}
	return matches
}
