package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Clock provides wall-clock time for values that leave the process, such as
// presence timestamps. Engine timers do not use it; they run on the reactor's
// own clock.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// UnixMillis is a UTC instant in milliseconds since the epoch, the only
// timestamp representation written to Redis.
type UnixMillis int64

// NowMillis reads c, dropping the monotonic reading and sub-millisecond part.
func NowMillis(c Clock) UnixMillis {
	return UnixMillis(c.Now().UnixMilli())
}

// Time converts back to a UTC time.Time.
func (m UnixMillis) Time() time.Time {
	return time.UnixMilli(int64(m)).UTC()
}

func (m UnixMillis) String() string {
	return strconv.FormatInt(int64(m), 10)
}

// ParseUnixMillis reads a stored timestamp. Anything but a non-negative
// decimal integer is ErrInvalidInput.
func ParseUnixMillis(s string) (UnixMillis, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms < 0 {
		return 0, fmt.Errorf("timestamp %q: %w", s, ErrInvalidInput)
	}
	return UnixMillis(ms), nil
}

var _ Clock = RealClock{}
