package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/vthunder/hourglass/internal/timelog"
)

// CategoryHours is one ranked category with its summed hours.
type CategoryHours struct {
	Category string
	Hours    float64
}

// ActivityCount is one ranked activity string with its occurrence count.
type ActivityCount struct {
	Activity string
	Count    int
}

// DailySummary is the per-calendar-day rollup. The bucket key is the
// block's end date.
type DailySummary struct {
	Date          string // "2006-01-02"
	TotalHours    float64
	TopCategories []CategoryHours // top 3
	AvgEnergy     float64
	AvgFocus      float64
	Narrative     string
	Suggestions   []string // always exactly 3
}

// WeeklySummary is the per-ISO-week rollup, keyed by the Monday of the
// week containing each block's end date.
type WeeklySummary struct {
	WeekOf        string // Monday, "2006-01-02"
	TotalHours    float64
	TopCategories []CategoryHours // top 5
	TopActivities []ActivityCount // top 7
	TimeSinks     []CategoryHours // top 5
	AvgEnergy     float64
	AvgFocus      float64
	Narrative     string
	Suggestions   []string
}

// MissedReport flags a day whose check-in density fell short of the
// configured cadence.
type MissedReport struct {
	Date            string
	Expected        int
	Actual          int
	Missed          int
	LargestGapHours float64
}

// Summarizer produces an optional narrative for a bucket. Implementations
// must honor ctx; the aggregator falls back to the heuristic narrative on
// any error or empty result.
type Summarizer interface {
	Summarize(ctx context.Context, input string) (narrative string, suggestions []string, err error)
}

const dayLayout = "2006-01-02"

// weekMonday returns the Monday of the week containing t.
func weekMonday(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -offset)
}

// bucket accumulates blocks sharing a grouping key.
type bucket struct {
	key        string
	hours      map[string]float64
	catOrder   []string // first-encounter order, tiebreaker for ranking
	activities map[string]int
	actOrder   []string
	total      float64
	energySum  int
	focusSum   int
	count      int
}

func newBucket(key string) *bucket {
	return &bucket{
		key:        key,
		hours:      make(map[string]float64),
		activities: make(map[string]int),
	}
}

func (b *bucket) add(blk Block) {
	h := blk.Hours()
	cat := blk.Category
	if cat == "" {
		cat = "Other"
	}
	if _, seen := b.hours[cat]; !seen {
		b.catOrder = append(b.catOrder, cat)
	}
	b.hours[cat] += h
	b.total += h

	act := strings.TrimSpace(blk.Activity)
	if act != "" {
		if _, seen := b.activities[act]; !seen {
			b.actOrder = append(b.actOrder, act)
		}
		b.activities[act]++
	}

	b.energySum += blk.Energy
	b.focusSum += blk.Focus
	b.count++
}

// topCategories ranks by hours descending; ties keep first-encounter
// order (the sort is stable over catOrder).
func (b *bucket) topCategories(n int) []CategoryHours {
	ranked := make([]CategoryHours, 0, len(b.catOrder))
	for _, cat := range b.catOrder {
		ranked = append(ranked, CategoryHours{Category: cat, Hours: b.hours[cat]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Hours > ranked[j].Hours
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func (b *bucket) topActivities(n int) []ActivityCount {
	ranked := make([]ActivityCount, 0, len(b.actOrder))
	for _, act := range b.actOrder {
		ranked = append(ranked, ActivityCount{Activity: act, Count: b.activities[act]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func (b *bucket) avgEnergy() float64 {
	if b.count == 0 {
		return 0
	}
	return float64(b.energySum) / float64(b.count)
}

func (b *bucket) avgFocus() float64 {
	if b.count == 0 {
		return 0
	}
	return float64(b.focusSum) / float64(b.count)
}

func groupBlocks(blocks []Block, keyFn func(time.Time) string) map[string]*bucket {
	buckets := make(map[string]*bucket)
	for _, blk := range blocks {
		key := keyFn(blk.End)
		b, ok := buckets[key]
		if !ok {
			b = newBucket(key)
			buckets[key] = b
		}
		b.add(blk)
	}
	return buckets
}

func sortedKeys(buckets map[string]*bucket) []string {
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DailySummaries groups blocks by end date and builds one summary per
// day, ascending by date.
func DailySummaries(blocks []Block, summarizer Summarizer, timeout time.Duration) []DailySummary {
	buckets := groupBlocks(blocks, func(t time.Time) string {
		return t.Format(dayLayout)
	})

	var out []DailySummary
	for _, key := range sortedKeys(buckets) {
		b := buckets[key]
		s := DailySummary{
			Date:          key,
			TotalHours:    b.total,
			TopCategories: b.topCategories(3),
			AvgEnergy:     b.avgEnergy(),
			AvgFocus:      b.avgFocus(),
		}
		s.Narrative, s.Suggestions = narrativeFor(b, "day", summarizer, timeout)
		out = append(out, s)
	}
	return out
}

// WeeklySummaries groups blocks by the Monday of their end date's week.
func WeeklySummaries(blocks []Block, summarizer Summarizer, timeout time.Duration) []WeeklySummary {
	buckets := groupBlocks(blocks, func(t time.Time) string {
		return weekMonday(t).Format(dayLayout)
	})

	var out []WeeklySummary
	for _, key := range sortedKeys(buckets) {
		b := buckets[key]
		s := WeeklySummary{
			WeekOf:        key,
			TotalHours:    b.total,
			TopCategories: b.topCategories(5),
			TopActivities: b.topActivities(7),
			TimeSinks:     b.topCategories(5),
			AvgEnergy:     b.avgEnergy(),
			AvgFocus:      b.avgFocus(),
		}
		s.Narrative, s.Suggestions = narrativeFor(b, "week", summarizer, timeout)
		out = append(out, s)
	}
	return out
}

// narrativeFor tries the external summarizer first, bounded by timeout;
// its answer is only used when it returns a non-empty narrative. Either
// way the suggestion list comes back with exactly three items.
func narrativeFor(b *bucket, period string, summarizer Summarizer, timeout time.Duration) (string, []string) {
	narrative := heuristicNarrative(b, period)
	var suggestions []string

	if summarizer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		n, sugg, err := summarizer.Summarize(ctx, summaryInput(b, period))
		cancel()
		if err == nil && strings.TrimSpace(n) != "" {
			narrative = strings.TrimSpace(n)
			suggestions = sugg
		}
	}
	return narrative, padSuggestions(suggestions)
}

// summaryInput renders the bucket as plain text for the summarizer.
func summaryInput(b *bucket, period string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Time tracked for the %s of %s: %.1f hours total.\n", period, b.key, b.total)
	sb.WriteString("Hours by category:\n")
	for _, ch := range b.topCategories(len(b.catOrder)) {
		fmt.Fprintf(&sb, "- %s: %.1f\n", ch.Category, ch.Hours)
	}
	if len(b.actOrder) > 0 {
		sb.WriteString("Sample activities:\n")
		for i, act := range b.actOrder {
			if i >= 10 {
				break
			}
			fmt.Fprintf(&sb, "- %s\n", act)
		}
	}
	fmt.Fprintf(&sb, "Average energy %.1f/5, average focus %.1f/5.\n", b.avgEnergy(), b.avgFocus())
	return sb.String()
}

// heuristicNarrative is the deterministic fallback when no summarizer is
// available.
func heuristicNarrative(b *bucket, period string) string {
	top := b.topCategories(3)
	if len(top) == 0 {
		return fmt.Sprintf("No tracked time for this %s.", period)
	}
	names := make([]string, len(top))
	for i, ch := range top {
		names[i] = fmt.Sprintf("%s (%.1fh)", ch.Category, ch.Hours)
	}
	return fmt.Sprintf("You tracked %.1f hours this %s, mostly on %s. Average energy was %.1f/5 and focus %.1f/5.",
		b.total, period, strings.Join(names, ", "), b.avgEnergy(), b.avgFocus())
}

var genericSuggestions = []string{
	"Review your largest category and decide whether it matches your priorities.",
	"Schedule your hardest work during your higher-energy hours.",
	"Batch small administrative tasks into a single block to cut context switching.",
}

// padSuggestions guarantees exactly three suggestions.
func padSuggestions(s []string) []string {
	out := make([]string, 0, 3)
	for _, v := range s {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
		if len(out) == 3 {
			return out
		}
	}
	for _, g := range genericSuggestions {
		if len(out) == 3 {
			break
		}
		out = append(out, g)
	}
	return out
}

// EstimateMissedCheckIns inspects each day's check-in timestamps and
// reports days where the observed cadence fell short. The expected count
// comes from the day's observed span, not a fixed 24 hours: a day with
// three hours of check-ins is judged against a three-hour expectation.
// Days with fewer than two check-ins carry no signal and are skipped.
func EstimateMissedCheckIns(entries []timelog.Entry, intervalHours, gapBreakHours float64) []MissedReport {
	if intervalHours <= 0 {
		return nil
	}
	byDay := make(map[string][]time.Time)
	for _, e := range entries {
		ts, err := ParseTimestamp(e.Timestamp)
		if err != nil {
			continue
		}
		key := ts.Format(dayLayout)
		byDay[key] = append(byDay[key], ts)
	}

	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)

	var out []MissedReport
	for _, day := range days {
		stamps := byDay[day]
		if len(stamps) < 2 {
			continue
		}
		sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

		span := stamps[len(stamps)-1].Sub(stamps[0]).Hours()
		if span < 1.0 {
			span = 1.0
		}
		expected := int(math.Floor(span/intervalHours)) + 1
		actual := len(stamps)
		missed := expected - actual
		if missed < 0 {
			missed = 0
		}

		largest := 0.0
		for i := 1; i < len(stamps); i++ {
			if gap := stamps[i].Sub(stamps[i-1]).Hours(); gap > largest {
				largest = gap
			}
		}

		if missed > 0 || largest >= gapBreakHours {
			out = append(out, MissedReport{
				Date:            day,
				Expected:        expected,
				Actual:          actual,
				Missed:          missed,
				LargestGapHours: largest,
			})
		}
	}
	return out
}
