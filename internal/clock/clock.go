package clock

import "time"

// DefaultEpochLength is used when no epoch length is configured.
const DefaultEpochLength = 24 * time.Hour

// Clock supplies informational timestamps. Nothing correctness-related reads it.
type Clock interface {
	Now() time.Time
	Epoch(t time.Time) uint64
}

// System reads the wall clock.
type System struct {
	EpochLength time.Duration
}

func New(epochLength time.Duration) System {
	return System{EpochLength: epochLength}
}

func (s System) Now() time.Time {
	return time.Now().UTC()
}

func (s System) Epoch(t time.Time) uint64 {
	return epochOf(t, s.EpochLength)
}

// Fixed always reports the same instant. Advance moves it forward.
type Fixed struct {
	T           time.Time
	EpochLength time.Duration
}

func (f *Fixed) Now() time.Time {
	return f.T
}

func (f *Fixed) Epoch(t time.Time) uint64 {
	return epochOf(t, f.EpochLength)
}

func (f *Fixed) Advance(d time.Duration) {
	if d > 0 {
		f.T = f.T.Add(d)
	}
}

func epochOf(t time.Time, length time.Duration) uint64 {
	if length <= 0 {
		length = DefaultEpochLength
	}
	unix := t.Unix()
	if unix <= 0 {
		return 0
	}
	secs := uint64(length / time.Second)
	if secs == 0 {
		secs = 1
	}
	return uint64(unix) / secs
}
