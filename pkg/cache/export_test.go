package cache

import "time"

// SetClock overrides the memory tier's time source for expiry tests.
func (m *Memory) SetClock(now func() time.Time) {
	m.now = now
}
