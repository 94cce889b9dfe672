// Package tagging suggests a category for a check-in from its activity
// text. Three sources feed a suggestion, in order of trust: learned
// token counts (built from the user's own corrections), built-in regex
// rules, and built-in keyword rules. The learned table is a token →
// category → count map persisted as a flat JSON document; it has a
// single writer (the prompt flow) so no locking is needed.
package tagging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/vthunder/hourglass/internal/logging"
)

// Suggestion is a category guess with its provenance.
type Suggestion struct {
	Category   string
	Confidence float64
	Source     string // "learned", "regex", "keyword"
}

var tokenPattern = regexp.MustCompile(`[a-zA-Z]{4,}`)

const maxTokens = 20

// tokenize extracts the first 20 lowercase words of 4+ letters. Short
// words carry almost no category signal and bloat the learned table.
func tokenize(text string) []string {
	matches := tokenPattern.FindAllString(strings.ToLower(text), maxTokens)
	return matches
}

type regexRule struct {
	pattern  *regexp.Regexp
	category string
}

var baseRegexRules = []regexRule{
	{regexp.MustCompile(`(?i)\b(standup|sprint|retro|1:1|one-on-one)\b`), "Work"},
	{regexp.MustCompile(`(?i)\b(gym|run|running|yoga|swim|workout)\b`), "Exercise"},
	{regexp.MustCompile(`(?i)\b(lunch|dinner|breakfast|coffee break)\b`), "Break"},
	{regexp.MustCompile(`(?i)\b(laundry|dishes|cleaning|groceries)\b`), "Chores"},
}

var baseKeywords = map[string]string{
	"meeting": "Work", "coding": "Work", "email": "Admin", "emails": "Admin",
	"invoice": "Admin", "taxes": "Admin", "paperwork": "Admin",
	"reading": "Study", "course": "Study", "studying": "Study", "lecture": "Study",
	"walk": "Break", "nap": "Break", "browsing": "Break",
	"friends": "Social", "family": "Social", "call": "Social", "party": "Social",
	"cooking": "Chores", "shopping": "Chores",
}

// Suggester maps activity text to categories and learns from overrides.
type Suggester struct {
	path    string
	learned map[string]map[string]int // token -> category -> count
}

// NewSuggester loads the learned table from stateDir, starting empty if
// the file is missing or corrupt.
func NewSuggester(path string) *Suggester {
	s := &Suggester{path: path, learned: make(map[string]map[string]int)}
	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	if err := json.Unmarshal(data, &s.learned); err != nil {
		logging.Info("tagging", "learned rules unreadable, starting fresh: %v", err)
		s.learned = make(map[string]map[string]int)
	}
	return s
}

// Suggest returns the best category guess for the text, or nil when no
// source has an opinion.
func (s *Suggester) Suggest(activity, notes string) *Suggestion {
	text := activity + " " + notes

	if sug := s.suggestLearned(text); sug != nil {
		return sug
	}
	for _, rule := range baseRegexRules {
		if rule.pattern.MatchString(text) {
			return &Suggestion{Category: rule.category, Confidence: 0.7, Source: "regex"}
		}
	}
	for _, token := range tokenize(text) {
		if cat, ok := baseKeywords[token]; ok {
			return &Suggestion{Category: cat, Confidence: 0.5, Source: "keyword"}
		}
	}
	return nil
}

// suggestLearned votes each token's learned counts into a per-category
// tally. Confidence is the winning category's share of the vote.
func (s *Suggester) suggestLearned(text string) *Suggestion {
	votes := make(map[string]int)
	total := 0
	for _, token := range tokenize(text) {
		for cat, count := range s.learned[token] {
			votes[cat] += count
			total += count
		}
	}
	if total < 2 {
		// One observation is noise, not a pattern.
		return nil
	}
	best, bestVotes := "", 0
	for cat, v := range votes {
		if v > bestVotes {
			best, bestVotes = cat, v
		}
	}
	conf := float64(bestVotes) / float64(total)
	if conf < 0.5 {
		return nil
	}
	return &Suggestion{Category: best, Confidence: conf, Source: "learned"}
}

// Learn records that the user filed this text under category, and
// persists the table.
func (s *Suggester) Learn(activity, notes, category string) error {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil
	}
	for _, token := range tokenize(activity + " " + notes) {
		if s.learned[token] == nil {
			s.learned[token] = make(map[string]int)
		}
		s.learned[token][category]++
	}
	return s.save()
}

func (s *Suggester) save() error {
	data, err := json.MarshalIndent(s.learned, "", "  ")
	if err != nil {
		return fmt.Errorf("tagging: marshal learned rules: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("tagging: create state dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("tagging: write learned rules: %w", err)
	}
	return nil
}
