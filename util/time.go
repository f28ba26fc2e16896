package util

import "time"

func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// FromMillis reads a database timestamp back as UTC.
func FromMillis(m int64) time.Time {
	return time.UnixMilli(m).UTC()
}
