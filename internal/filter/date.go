package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	dps "github.com/markusmobius/go-dateparser"
)

var (
	isoDateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	digitsRegex  = regexp.MustCompile(`^\d{10,}$`)

	// tried in order by ExtractDateFromText
	labeledDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:posted|published|date)\s*(?:on|:)?\s*([A-Za-z]+\s+\d{1,2},?\s+\d{4})`),
		regexp.MustCompile(`(?i)(?:posted|published|date)\s*(?:on|:)?\s*(\d{4}-\d{2}-\d{2})`),
		regexp.MustCompile(`(?i)(?:posted|published)\s+(\d+\s+(?:day|week|month)s?\s+ago)`),
		regexp.MustCompile(`(?i)(?:posted|published)\s+(yesterday|today)`),
	}
)

// ParseDate turns epoch, ISO and natural-language dates into a UTC time.
// It returns nil when nothing sensible can be read.
func ParseDate(raw string) *time.Time {
	return ParseDateAt(raw, time.Now())
}

// ParseDateAt is ParseDate with relative phrases resolved against now.
func ParseDateAt(raw string, now time.Time) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	//case 1: epoch seconds or milliseconds
	if digitsRegex.MatchString(raw) {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil
		}
		var t time.Time
		if n > 1e12 {
			t = time.UnixMilli(n).UTC()
		} else {
			t = time.Unix(n, 0).UTC()
		}
		return &t
	}

	//case 2: RFC3339 / plain ISO date
	if isoDateRegex.MatchString(raw) {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			t = t.UTC()
			return &t
		}
		if t, err := time.Parse("2006-01-02", raw[:10]); err == nil && len(raw) == 10 {
			return &t
		}
	}

	//case 3: everything else, ambiguous phrases resolved into the past
	dt, err := dps.Parse(&dps.Configuration{
		CurrentTime:         now,
		DefaultTimezone:     time.UTC,
		PreferredDateSource: dps.Past,
		StrictParsing:       false,
	}, raw)
	if err != nil || dt.Time.IsZero() {
		return nil
	}
	t := dt.Time.UTC()
	return &t
}

// IsWithinDays reports whether t is no older than days before now.
// An unknown date is never recent.
func IsWithinDays(t *time.Time, days int, now time.Time) bool {
	if t == nil {
		return false
	}
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
	return !t.Before(cutoff)
}

// ExtractDateFromText finds the first labeled date ("Posted on ...") in free text.
func ExtractDateFromText(text string, now time.Time) *time.Time {
	for _, p := range labeledDatePatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if t := ParseDateAt(m[1], now); t != nil {
			return t
		}
	}
	return nil
}

// FormatRelative renders a posting date for humans: Today, Yesterday, N days ago...
func FormatRelative(t *time.Time, now time.Time) string {
	if t == nil {
		return "Unknown"
	}
	days := int(now.Sub(*t).Hours() / 24)
	switch {
	case days <= 0:
		return "Today"
	case days == 1:
		return "Yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	case days < 14:
		return "1 week ago"
	case days < 30:
		return fmt.Sprintf("%d weeks ago", days/7)
	default:
		return t.Format("2006-01-02")
	}
}
