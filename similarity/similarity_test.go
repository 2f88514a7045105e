package similarity

import (
	"math"
	"testing"
)

func TestSimilarity_IdenticalAfterNormalization(t *testing.T) {
	cases := []struct {
		name string
		a    string
		b    string
	}{
		{"exact", "Fix login bug", "Fix login bug"},
		{"trailing space", "Fix login bug", "fix login bug "},
		{"case folded", "DEPLOY SERVICE", "deploy service"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Similarity(tc.a, tc.b); got != 1 {
				t.Fatalf("expected similarity 1.0, got %f", got)
			}
		})
	}
}

func TestSimilarity_Identity(t *testing.T) {
	for _, s := range []string{"a", "Fix login bug", "日本語のタイトル"} {
		if got := Similarity(s, s); got != 1 {
			t.Fatalf("similarity(%q, %q) = %f, want 1.0", s, s, got)
		}
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"Fix login bug", "Fix logout bug"},
		{"Deploy new service", "Deploy service"},
		{"short", "a much longer unrelated title"},
	}
	for _, pair := range pairs {
		forward := Similarity(pair[0], pair[1])
		backward := Similarity(pair[1], pair[0])
		if forward != backward {
			t.Fatalf("similarity not symmetric for %q/%q: %f vs %f", pair[0], pair[1], forward, backward)
		}
		if forward < 0 || forward > 1 {
			t.Fatalf("similarity out of range for %q/%q: %f", pair[0], pair[1], forward)
		}
	}
}

func TestSimilarity_EmptyInput(t *testing.T) {
	if got := Similarity("", "anything"); got != 0 {
		t.Fatalf("expected 0 for empty input, got %f", got)
	}
	if got := Similarity("anything", ""); got != 0 {
		t.Fatalf("expected 0 for empty input, got %f", got)
	}
}

func TestSimilarity_NormalizedDistance(t *testing.T) {
	// One substitution over five runes.
	got := Similarity("abcde", "abxde")
	want := 1 - 1.0/5.0
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %f, got %f", want, got)
	}
}

func TestDetector_IsDuplicate(t *testing.T) {
	detector := NewDetector(0)
	if detector.Threshold != DefaultThreshold {
		t.Fatalf("expected default threshold, got %f", detector.Threshold)
	}

	if !detector.IsDuplicate("Fix login bug", "fix login bug ") {
		t.Fatal("expected near-identical titles to be duplicates")
	}
	if detector.IsDuplicate("Fix login bug", "Deploy new service") {
		t.Fatal("expected unrelated titles to pass")
	}
}

func TestDetector_FindExisting(t *testing.T) {
	detector := NewDetector(DefaultThreshold)
	existing := []string{
		"Deploy new service",
		"Fix login bug",
		"fix login bug",
	}

	matches := detector.FindExisting("Fix login bug", existing)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Index != 1 && matches[0].Index != 2 {
		t.Fatalf("unexpected best match index %d", matches[0].Index)
	}
	if matches[0].Score < matches[1].Score {
		t.Fatal("expected matches sorted best first")
	}

	if got := detector.FindExisting("Rotate signing keys", existing); len(got) != 0 {
		t.Fatalf("expected no matches, got %d", len(got))
	}
}
