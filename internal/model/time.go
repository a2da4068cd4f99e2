package model

import (
	"strings"
	"time"
)

// TimestampLayout is RFC 3339 with a fixed nine-digit fraction, so stamps
// taken within one second still order correctly as strings.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// CompareTimestamps orders two RFC 3339 stamps by the instant they name.
// Stamps that do not parse fall back to plain string order.
func CompareTimestamps(a, b string) int {
	ta, errA := time.Parse(time.RFC3339Nano, a)
	tb, errB := time.Parse(time.RFC3339Nano, b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	return ta.Compare(tb)
}
