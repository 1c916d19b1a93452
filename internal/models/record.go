package models

import "time"

// TimestampLayout is the on-disk format of Record timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// Record is the persisted dedup state for one matched paragraph.
type Record struct {
	Key       string    `json:"record_key"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	// Revision is a store-specific token used for conditional overwrites.
	Revision string `json:"-"`
}

// FormatTimestamp renders ts in UTC using TimestampLayout.
func FormatTimestamp(ts time.Time) string {
	return ts.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a TimestampLayout string as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, raw, time.UTC)
}
