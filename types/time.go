package types

import "time"

// Timestamp is the proposal time as carried on the wire: whole seconds
// since the Unix epoch and the nanoseconds within that second.
type Timestamp struct {
	Seconds int64 `cramberry:"1"`
	Nanos   int32 `cramberry:"2"`
}

// TimeToTimestamp truncates t to its wire form.
func TimeToTimestamp(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// ToTime returns ts in UTC. Nanos outside [0, 1e9) carry into the
// seconds.
func (ts Timestamp) ToTime() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanos)).UTC()
}

