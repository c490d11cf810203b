package db

import "time"

// NormalizeTimestamp rewrites a timestamp string into the canonical form the
// store's date comparison accepts. Trackers and bulk exports disagree on the
// zone offset encoding: `+09:00`, `+0900` and `Z` all occur. If the string
// ends in a 5-character sign-prefixed 4-digit offset with no colon, a colon
// is inserted before the final two digits; anything else passes through
// unchanged. Strings that match neither recognized pattern may fail to parse
// downstream — a documented limitation, not corrected here.
func NormalizeTimestamp(s string) string {
	if len(s) < 5 {
		return s
	}
	off := s[len(s)-5:]
	if off[0] != '+' && off[0] != '-' {
		return s
	}
	for _, c := range off[1:] {
		if c < '0' || c > '9' {
			return s
		}
	}
	return s[:len(s)-2] + ":" + s[len(s)-2:]
}

// ParseTimestamp normalizes s and parses it as RFC 3339. The returned instant
// is the comparison key stored alongside the original string, so `+0900` and
// `+09:00` (and `Z` and `+00:00`) compare as simultaneous. ok is false when
// the normalized string still does not parse.
func ParseTimestamp(s string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, NormalizeTimestamp(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
