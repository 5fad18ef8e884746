// Package interval parses the compact duration tokens used by the scheduling
// commands ("1d2h30m") and the named repeat intervals (hourly, daily, weekly).
package interval

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidDuration = errors.New("invalid duration")

const (
	Hourly = time.Hour
	Daily  = 24 * time.Hour
	Weekly = 7 * Daily
)

var named = map[string]time.Duration{
	"hourly": Hourly,
	"daily":  Daily,
	"weekly": Weekly,
}

var units = map[rune]int64{
	'd': 86400,
	'h': 3600,
	'm': 60,
}

// Parse reads a stream of <digits><unit> pairs. Characters that are neither
// digits nor a known unit are skipped and do not reset the pending digits;
// digits that never meet a unit count for nothing.
func Parse(s string) (time.Duration, error) {
	var (
		total   int64
		current strings.Builder
	)
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			current.WriteRune(c)
		case units[c] != 0 && current.Len() > 0:
			n, err := strconv.ParseInt(current.String(), 10, 64)
			if err != nil || n > maxSeconds/units[c] {
				return 0, fmt.Errorf("%w: %q is too long", ErrInvalidDuration, s)
			}
			current.Reset()
			total += n * units[c]
			if total > maxSeconds {
				return 0, fmt.Errorf("%w: %q is too long", ErrInvalidDuration, s)
			}
		}
	}
	if total <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	return time.Duration(total) * time.Second, nil
}

const maxSeconds = int64(1<<63-1) / int64(time.Second)

// ParseRepeat accepts either a named interval or a compact token.
func ParseRepeat(s string) (time.Duration, error) {
	if d, ok := named[strings.ToLower(strings.TrimSpace(s))]; ok {
		return d, nil
	}
	return Parse(s)
}

// IsToken reports whether s looks like a repeat argument rather than the
// start of a message.
func IsToken(s string) bool {
	if _, ok := named[strings.ToLower(s)]; ok {
		return true
	}
	if s == "" {
		return false
	}
	sawUnit := false
	pending := false
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			pending = true
		case units[c] != 0 && pending:
			pending = false
			sawUnit = true
		default:
			return false
		}
	}
	return sawUnit && !pending
}

// Format renders d in the compact form accepted by Parse. Seconds are dropped.
func Format(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 60 {
		return "0m"
	}
	var b strings.Builder
	for _, u := range []struct {
		unit rune
		size int64
	}{{'d', 86400}, {'h', 3600}, {'m', 60}} {
		if n := secs / u.size; n > 0 {
			b.WriteString(strconv.FormatInt(n, 10))
			b.WriteRune(u.unit)
			secs %= u.size
		}
	}
	return b.String()
}

// Name returns "hourly", "daily" or "weekly" when d matches one of them, and
// the compact form otherwise.
func Name(d time.Duration) string {
	for name, v := range named {
		if v == d {
			return name
		}
	}
	return Format(d)
}
