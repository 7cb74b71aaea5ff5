package types

import "time"

// tai64Epoch is the TAI64 label of 1970-01-01T00:00:00 TAI, i.e. the
// offset added to a Unix second count to obtain a Tai64Timestamp.
const tai64Epoch uint64 = 1 << 62

// Tai64Timestamp is a 64-bit count of seconds since the Tai64 epoch.
// Block timestamps are required to be non-decreasing across accepted
// blocks; the type supports plain integer comparison for that check.
type Tai64Timestamp uint64

// Tai64FromUnix converts a Unix second count to a Tai64Timestamp.
func Tai64FromUnix(sec int64) Tai64Timestamp {
	return Tai64Timestamp(uint64(sec) + tai64Epoch)
}

// Tai64Now returns the current wall-clock time as a Tai64Timestamp.
func Tai64Now() Tai64Timestamp {
	return Tai64FromUnix(time.Now().Unix())
}

// Unix returns the Unix second count represented by t.
func (t Tai64Timestamp) Unix() int64 {
	return int64(uint64(t) - tai64Epoch)
}

// Time returns t as a time.Time in UTC.
func (t Tai64Timestamp) Time() time.Time {
	return time.Unix(t.Unix(), 0).UTC()
}

// Add returns t advanced by d, saturating at the Tai64Timestamp maximum.
func (t Tai64Timestamp) Add(d time.Duration) Tai64Timestamp {
	secs := uint64(d / time.Second)
	sum := uint64(t) + secs
	if sum < uint64(t) { // overflow
		return Tai64Timestamp(^uint64(0))
	}
	return Tai64Timestamp(sum)
}
