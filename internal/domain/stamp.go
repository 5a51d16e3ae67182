package domain

import "time"

// StampLayout is the wire format for conflict-resolution timestamps:
// RFC 3339 with millisecond precision, always UTC.
const StampLayout = "2006-01-02T15:04:05.000Z"

func FormatStamp(t time.Time) string {
	return t.UTC().Format(StampLayout)
}

// ParseStamp returns the zero time for an empty or malformed stamp. A zero
// stamp never supersedes an existing record.
func ParseStamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// Supersedes reports whether an incoming write wins over the stored one.
// One rule everywhere: the incoming stamp must be strictly newer at
// millisecond resolution; equal stamps keep the existing record. A zero
// existing stamp means "no record", which any write wins against, including
// one with no stamp at all (first write always lands).
func Supersedes(incoming, existing time.Time) bool {
	if existing.IsZero() {
		return true
	}
	if incoming.IsZero() {
		return false
	}
	return incoming.Truncate(time.Millisecond).After(existing.Truncate(time.Millisecond))
}

// SupersedesStamp is Supersedes over wire-format stamps.
func SupersedesStamp(incoming, existing string) bool {
	return Supersedes(ParseStamp(incoming), ParseStamp(existing))
}
