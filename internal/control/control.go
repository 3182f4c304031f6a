// Package control holds process-wide control-state flags as atomic
// scalars: pause/resume and uptime tracking.
package control

import (
	"sync/atomic"
	"time"
)

// State is the process-wide control state. Zero value is usable but
// StartedAt should be set via MarkStarted before Uptime is meaningful.
type State struct {
	paused    atomic.Bool
	startedAt atomic.Int64 // unix nanos
}

// New returns a State with StartedAt set to now.
func New() *State {
	s := &State{}
	s.MarkStarted(time.Now())
	return s
}

// MarkStarted records the process start time.
func (s *State) MarkStarted(t time.Time) {
	s.startedAt.Store(t.UnixNano())
}

// Pause forbids add() and consolidate() from touching the store.
func (s *State) Pause() { s.paused.Store(true) }

// Resume lifts a prior Pause.
func (s *State) Resume() { s.paused.Store(false) }

// Paused reports whether mutation is currently forbidden.
func (s *State) Paused() bool { return s.paused.Load() }

// StartedAt returns the recorded process start time.
func (s *State) StartedAt() time.Time {
	return time.Unix(0, s.startedAt.Load())
}

// Uptime returns how long the process has been running.
func (s *State) Uptime() time.Duration {
	return time.Since(s.StartedAt())
}

// UptimeHuman formats Uptime in a human-readable "Xd Yh Zm" form.
func (s *State) UptimeHuman() string {
	d := s.Uptime()
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	out := ""
	if days > 0 {
		out += itoa(days) + "d "
	}
	if hours > 0 || days > 0 {
		out += itoa(hours) + "h "
	}
	out += itoa(minutes) + "m"
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
