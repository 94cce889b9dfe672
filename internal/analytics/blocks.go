// Package analytics reconstructs time blocks from check-in records and
// aggregates them into daily and weekly summaries.
//
// A check-in is a point-in-time sample of what the user was doing; the
// duration has to be inferred afterwards. Two tunables drive the
// reconstruction: entry_span_hours (assumed duration per check-in) and
// gap_break_hours (a gap at least this long is an absence, not continuous
// activity).
package analytics

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/vthunder/hourglass/internal/config"
	"github.com/vthunder/hourglass/internal/timelog"
)

// Block is one reconstructed span of activity.
type Block struct {
	Start    time.Time
	End      time.Time
	Category string
	Activity string
	Energy   int
	Focus    int
}

// Hours returns the block duration in hours.
func (b Block) Hours() float64 {
	return b.End.Sub(b.Start).Hours()
}

var errUnparseable = errors.New("analytics: unparseable timestamp")

// Timestamp layouts accepted from user-editable cells, most common first.
var tsLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC3339,
}

// ParseTimestamp parses a recorded timestamp tolerantly: date-only,
// date-time with a space or T separator, optional trailing Z. Times are
// interpreted in local time since check-ins happen on the user's machine.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errUnparseable
	}
	trimmed := strings.TrimSuffix(s, "Z")
	for _, layout := range tsLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
		if trimmed != s {
			if t, err := time.ParseInLocation(layout, trimmed, time.Local); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, errUnparseable
}

type stampedEntry struct {
	ts    time.Time
	entry timelog.Entry
}

// EntriesToBlocks reconstructs time blocks from raw check-in rows.
// Records with timestamps that do not parse are dropped and counted, not
// treated as a hard error; the count comes back so callers can surface a
// warning.
func EntriesToBlocks(entries []timelog.Entry, rules config.AnalyticsRules) ([]Block, int) {
	span := time.Duration(rules.EntrySpanHours * float64(time.Hour))

	var stamped []stampedEntry
	failures := 0
	for _, e := range entries {
		ts, err := ParseTimestamp(e.Timestamp)
		if err != nil {
			failures++
			continue
		}
		stamped = append(stamped, stampedEntry{ts: ts, entry: e})
	}
	sort.SliceStable(stamped, func(i, j int) bool {
		return stamped[i].ts.Before(stamped[j].ts)
	})

	blocks := make([]Block, 0, len(stamped))
	for i, se := range stamped {
		end := se.ts
		start := end.Add(-span)

		if i+1 < len(stamped) {
			next := stamped[i+1].ts
			gap := next.Sub(se.ts).Hours()
			// A long gap means an absence follows; the block must not
			// extend into it. Otherwise the block never reaches past the
			// next recorded check-in.
			if gap < rules.GapBreakHours {
				end = minTime(se.ts, next)
			}
		}
		if !end.After(start) {
			start = end.Add(-span)
		}

		blocks = append(blocks, Block{
			Start:    start,
			End:      end,
			Category: se.entry.Category,
			Activity: se.entry.Activity,
			Energy:   se.entry.Energy,
			Focus:    se.entry.Focus,
		})
	}
	return blocks, failures
}

func minTime(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}
