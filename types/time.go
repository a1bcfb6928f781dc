package types

import "time"

// MicrosToTime converts a chain timestamp (microseconds since the
// Unix epoch) to a time.Time (UTC).
func MicrosToTime(us uint64) time.Time {
	return time.UnixMicro(int64(us)).UTC()
}

// TimeToMicros converts a time.Time to a chain timestamp.
func TimeToMicros(t time.Time) uint64 {
	us := t.UnixMicro()
	if us < 0 {
		return 0
	}
	return uint64(us)
}
