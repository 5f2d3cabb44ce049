// Package dateparse provides natural language date parsing for audit
// and reporting ranges.
package dateparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Parse parses a natural language date string and returns a date in
// YYYY-MM-DD format. Range filters look backward, so the vocabulary is
// anchored in the past:
//   - today, yesterday
//   - last week, last month (7 days / 1 month back)
//   - start of week / sow (most recent Monday)
//   - start of month / som, start of quarter / soq, start of year / soy
//   - -N (N days back)
//   - N days ago, N weeks ago, N months ago
//   - YYYY-MM-DD (passthrough)
//
// Unrecognized input is returned as-is so callers can forward full
// timestamps straight to the backend.
func Parse(input string) string {
	return ParseFrom(input, time.Now())
}

// ParseFrom parses a date relative to the given reference time.
// This is useful for testing and for parsing relative to a specific date.
func ParseFrom(input string, now time.Time) string {
	// Keep the original for passthrough; full timestamps must survive
	// unmangled.
	normalized := strings.ToLower(strings.TrimSpace(input))

	switch normalized {
	case "today":
		return formatDate(now)
	case "yesterday":
		return formatDate(now.AddDate(0, 0, -1))
	case "last week", "lastweek":
		return formatDate(now.AddDate(0, 0, -7))
	case "last month", "lastmonth":
		return formatDate(now.AddDate(0, -1, 0))
	case "start of week", "sow":
		return formatDate(startOfWeek(now))
	case "start of month", "som":
		return formatDate(startOfMonth(now))
	case "start of quarter", "soq":
		return formatDate(startOfQuarter(now))
	case "start of year", "soy":
		return formatDate(startOfYear(now))
	}

	// -N days format
	if strings.HasPrefix(normalized, "-") {
		if days, err := strconv.Atoi(normalized[1:]); err == nil && days >= 0 {
			return formatDate(now.AddDate(0, 0, -days))
		}
	}

	// "N days ago" format
	if match := daysAgoPattern.FindStringSubmatch(normalized); match != nil {
		if days, err := strconv.Atoi(match[1]); err == nil {
			return formatDate(now.AddDate(0, 0, -days))
		}
	}

	// "N weeks ago" format
	if match := weeksAgoPattern.FindStringSubmatch(normalized); match != nil {
		if weeks, err := strconv.Atoi(match[1]); err == nil {
			return formatDate(now.AddDate(0, 0, -weeks*7))
		}
	}

	// "N months ago" format
	if match := monthsAgoPattern.FindStringSubmatch(normalized); match != nil {
		if months, err := strconv.Atoi(match[1]); err == nil {
			return formatDate(now.AddDate(0, -months, 0))
		}
	}

	// YYYY-MM-DD passthrough
	if datePattern.MatchString(normalized) {
		return normalized
	}

	// Return as-is if not recognized
	return input
}

var (
	datePattern      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	daysAgoPattern   = regexp.MustCompile(`^(\d+) days? ago$`)
	weeksAgoPattern  = regexp.MustCompile(`^(\d+) weeks? ago$`)
	monthsAgoPattern = regexp.MustCompile(`^(\d+) months? ago$`)
)

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// startOfWeek returns the most recent Monday, or today if it is Monday.
func startOfWeek(now time.Time) time.Time {
	daysBack := (int(now.Weekday()) - int(time.Monday) + 7) % 7
	return now.AddDate(0, 0, -daysBack)
}

// startOfMonth returns the first day of the current month.
func startOfMonth(now time.Time) time.Time {
	year, month, _ := now.Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, now.Location())
}

// startOfQuarter returns the first day of the current quarter.
func startOfQuarter(now time.Time) time.Time {
	year, month, _ := now.Date()
	quarterStart := time.Month((int(month)-1)/3*3 + 1)
	return time.Date(year, quarterStart, 1, 0, 0, 0, 0, now.Location())
}

// startOfYear returns January 1st of the current year.
func startOfYear(now time.Time) time.Time {
	return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
}

// IsValid returns true if the input is a recognized date format.
func IsValid(input string) bool {
	result := Parse(input)
	// If the result matches the YYYY-MM-DD pattern, it was successfully parsed
	return datePattern.MatchString(result)
}
