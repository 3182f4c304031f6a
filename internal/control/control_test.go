package control

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPauseResumeToggle(t *testing.T) {
	t.Parallel()
	s := New()
	assert.False(t, s.Paused())
	s.Pause()
	assert.True(t, s.Paused())
	s.Resume()
	assert.False(t, s.Paused())
}

func TestUptimeGrowsFromMarkStarted(t *testing.T) {
	t.Parallel()
	s := New()
	s.MarkStarted(time.Now().Add(-90 * time.Minute))
	assert.GreaterOrEqual(t, s.Uptime(), 90*time.Minute)
}

func TestUptimeHumanFormatsDaysHoursMinutes(t *testing.T) {
	t.Parallel()
	s := New()
	s.MarkStarted(time.Now().Add(-(25*time.Hour + 5*time.Minute)))
	got := s.UptimeHuman()
	assert.Contains(t, got, "1d")
	assert.Contains(t, got, "1h")
}

func TestUptimeHumanUnderAnHour(t *testing.T) {
	t.Parallel()
	s := New()
	s.MarkStarted(time.Now().Add(-5 * time.Minute))
	got := s.UptimeHuman()
	assert.NotContains(t, got, "d ")
	assert.NotContains(t, got, "h ")
	assert.Contains(t, got, "m")
}
