package tagging

import (
	"path/filepath"
	"testing"
)

func newTestSuggester(t *testing.T) *Suggester {
	t.Helper()
	return NewSuggester(filepath.Join(t.TempDir(), "learned_rules.json"))
}

func TestKeywordSuggestion(t *testing.T) {
	s := newTestSuggester(t)
	sug := s.Suggest("answering email", "")
	if sug == nil {
		t.Fatal("expected a suggestion")
	}
	if sug.Category != "Admin" || sug.Source != "keyword" {
		t.Errorf("got %+v, want Admin via keyword", sug)
	}
}

func TestRegexBeatsKeyword(t *testing.T) {
	s := newTestSuggester(t)
	// "standup" matches a regex rule; "meeting" is only a keyword.
	sug := s.Suggest("standup meeting", "")
	if sug == nil {
		t.Fatal("expected a suggestion")
	}
	if sug.Source != "regex" || sug.Category != "Work" {
		t.Errorf("got %+v, want Work via regex", sug)
	}
}

func TestNoSuggestionForUnknownText(t *testing.T) {
	s := newTestSuggester(t)
	if sug := s.Suggest("zzzz qqqq", ""); sug != nil {
		t.Errorf("expected nil, got %+v", sug)
	}
}

func TestLearnedOverridesBuiltins(t *testing.T) {
	s := newTestSuggester(t)
	// The user repeatedly files "reading" under Break, not Study.
	for i := 0; i < 3; i++ {
		if err := s.Learn("reading fiction", "", "Break"); err != nil {
			t.Fatalf("Learn: %v", err)
		}
	}
	sug := s.Suggest("reading fiction", "")
	if sug == nil {
		t.Fatal("expected a suggestion")
	}
	if sug.Source != "learned" || sug.Category != "Break" {
		t.Errorf("got %+v, want Break via learned", sug)
	}
	if sug.Confidence < 0.5 {
		t.Errorf("confidence = %v, want >= 0.5", sug.Confidence)
	}
}

func TestSingleObservationIsNotLearned(t *testing.T) {
	s := newTestSuggester(t)
	if err := s.Learn("qqqq", "", "Work"); err != nil {
		t.Fatalf("Learn: %v", err)
	}
	sug := s.Suggest("qqqq", "")
	if sug != nil && sug.Source == "learned" {
		t.Errorf("one observation should not drive a learned suggestion: %+v", sug)
	}
}

func TestLearnedTableSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learned_rules.json")
	s := NewSuggester(path)
	for i := 0; i < 3; i++ {
		if err := s.Learn("woodworking bench", "", "Chores"); err != nil {
			t.Fatalf("Learn: %v", err)
		}
	}

	reloaded := NewSuggester(path)
	sug := reloaded.Suggest("woodworking", "")
	if sug == nil || sug.Category != "Chores" {
		t.Errorf("reloaded suggester lost learned data: %+v", sug)
	}
}

func TestTokenize(t *testing.T) {
	tokens := tokenize("Fix the CI, then fix it again (CI!)")
	for _, tok := range tokens {
		if len(tok) < 4 {
			t.Errorf("short token leaked: %q", tok)
		}
	}
	// "the" and "CI" are too short; "Fix" too.
	want := []string{"then", "again"}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %v, want %v", tokens, want)
	}
}
