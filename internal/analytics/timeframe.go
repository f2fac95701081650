package analytics

import (
	"fmt"
	"strings"
	"time"

	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain"
)

// Granularity is the bucket width used for the dashboard series.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

const (
	day     = 24 * time.Hour
	maxSpan = 731 * day
)

var presets = map[string]int{"7d": 7, "30d": 30, "90d": 90}

// Timeframe is a half-open UTC window [Start, End) plus bucketing granularity.
type Timeframe struct {
	Label       string      `json:"label"`
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	Granularity Granularity `json:"granularity"`
}

// Signature identifies the timeframe in cache keys.
func (tf Timeframe) Signature() string {
	return fmt.Sprintf("%d-%d-%s", tf.Start.UnixNano(), tf.End.UnixNano(), tf.Granularity)
}

// Contains reports whether t falls inside the window.
func (tf Timeframe) Contains(t time.Time) bool {
	return !t.Before(tf.Start) && t.Before(tf.End)
}

func invalidTimeframe(format string, args ...any) error {
	return domain.NewError(domain.KindInvalidTimeframe, fmt.Sprintf(format, args...))
}

// ParseTimeframe normalizes raw (7d, 30d, 90d or custom:start,end) relative
// to now. Preset windows end at the next UTC midnight so they include today.
// Custom bounds accept YYYY-MM-DD or RFC3339; a date-only end includes that
// whole day, an RFC3339 end is exclusive. An empty granularity is derived
// from the window length.
func ParseTimeframe(raw, granularity string, now time.Time) (Timeframe, error) {
	raw = strings.TrimSpace(raw)
	var tf Timeframe

	if days, ok := presets[raw]; ok {
		end := now.UTC().Truncate(day).Add(day)
		tf = Timeframe{Label: raw, Start: end.Add(-time.Duration(days) * day), End: end}
	} else if window, ok := strings.CutPrefix(raw, "custom:"); ok {
		startRaw, endRaw, found := strings.Cut(window, ",")
		if !found {
			return Timeframe{}, invalidTimeframe("custom timeframe must be custom:start,end")
		}
		start, _, err := parseBound(startRaw)
		if err != nil {
			return Timeframe{}, err
		}
		end, dateOnly, err := parseBound(endRaw)
		if err != nil {
			return Timeframe{}, err
		}
		if dateOnly {
			end = end.Add(day)
		}
		if !start.Before(end) {
			return Timeframe{}, invalidTimeframe("timeframe start must be before end")
		}
		if end.Sub(start) > maxSpan {
			return Timeframe{}, invalidTimeframe("timeframe may span at most %d days", int(maxSpan/day))
		}
		tf = Timeframe{Label: raw, Start: start, End: end}
	} else {
		return Timeframe{}, invalidTimeframe("unsupported timeframe %q", raw)
	}

	switch Granularity(granularity) {
	case "":
		tf.Granularity = defaultGranularity(tf.End.Sub(tf.Start))
	case GranularityDay, GranularityWeek, GranularityMonth:
		tf.Granularity = Granularity(granularity)
	default:
		return Timeframe{}, invalidTimeframe("unsupported granularity %q", granularity)
	}
	return tf, nil
}

func parseBound(raw string) (time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t.UTC(), true, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), false, nil
	}
	return time.Time{}, false, invalidTimeframe("invalid timeframe bound %q", raw)
}

func defaultGranularity(span time.Duration) Granularity {
	switch {
	case span <= 31*day:
		return GranularityDay
	case span <= 180*day:
		return GranularityWeek
	default:
		return GranularityMonth
	}
}

// bucketStart returns the start of the bucket containing t. Weeks start on Monday.
func bucketStart(t time.Time, g Granularity) time.Time {
	t = t.UTC()
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch g {
	case GranularityWeek:
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -offset)
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return d
	}
}

func nextBucket(start time.Time, g Granularity) time.Time {
	switch g {
	case GranularityWeek:
		return start.AddDate(0, 0, 7)
	case GranularityMonth:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}
