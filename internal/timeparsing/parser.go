// Package timeparsing turns the due-date expressions staff type when
// receiving a loan into calendar dates.
//
// Input is tried against three layers in order:
//  1. Compact duration (+3w, 10d, -1d)
//  2. Absolute date (2024-05-01, RFC3339)
//  3. Natural language (tomorrow, in 3 weeks, next friday)
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// DateLayout is how due dates are stored as attributes.
const DateLayout = "2006-01-02"

// compactDurationRe matches [+-]?(\d+)([hdwmy]).
var compactDurationRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// ParseCompactDuration applies a compact duration to now.
// Units: h hours, d days, w weeks, m months, y years. No sign means forward.
func ParseCompactDuration(s string, now time.Time) (time.Time, error) {
	matches := compactDurationRe.FindStringSubmatch(s)
	if matches == nil {
		return time.Time{}, fmt.Errorf("not a compact duration: %q", s)
	}
	amount, err := strconv.Atoi(matches[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration amount: %q", matches[2])
	}
	if matches[1] == "-" {
		amount = -amount
	}

	switch matches[3] {
	case "h":
		return now.Add(time.Duration(amount) * time.Hour), nil
	case "d":
		return now.AddDate(0, 0, amount), nil
	case "w":
		return now.AddDate(0, 0, amount*7), nil
	case "m":
		return now.AddDate(0, amount, 0), nil
	default:
		return now.AddDate(amount, 0, 0), nil
	}
}

// IsCompactDuration reports whether s uses compact duration syntax.
func IsCompactDuration(s string) bool {
	return compactDurationRe.MatchString(s)
}

var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	DateLayout,
}

// ParseAbsolute parses an absolute timestamp or date in now's location.
func ParseAbsolute(s string, now time.Time) (time.Time, error) {
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not an absolute date: %q", s)
}

var parser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseNaturalLanguage parses English expressions such as "tomorrow",
// "in 3 weeks" or "next monday at 2pm" relative to now.
func ParseNaturalLanguage(s string, now time.Time) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}
	r, err := parser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("no time expression in %q", s)
	}
	return r.Time, nil
}

// ParseRelativeTime tries every layer in order.
func ParseRelativeTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if IsCompactDuration(s) {
		return ParseCompactDuration(s, now)
	}
	if t, err := ParseAbsolute(s, now); err == nil {
		return t, nil
	}
	t, err := ParseNaturalLanguage(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised date %q (try 2024-05-01, +3w or \"in 3 weeks\")", s)
	}
	return t, nil
}

// ParseDueDate resolves s and formats it as a stored due date.
// Empty input yields an empty date.
func ParseDueDate(s string, now time.Time) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	t, err := ParseRelativeTime(s, now)
	if err != nil {
		return "", err
	}
	return t.Format(DateLayout), nil
}
