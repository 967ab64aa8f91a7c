package escalation

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"facility-alerting/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRules(t *testing.T) {
	rules := DefaultRules()

	assert.Equal(t, 5*time.Minute, rules.Delay(models.SeverityCritical))
	assert.Equal(t, 15*time.Minute, rules.Delay(models.SeverityHigh))
	assert.Equal(t, time.Hour, rules.Delay(models.SeverityMedium))
	assert.Zero(t, rules.Delay(models.SeverityLow))

	critical := rules.For(models.SeverityCritical)
	assert.Len(t, critical.Levels, 3)
	assert.True(t, critical.HasNext(0))
	assert.True(t, critical.HasNext(1))
	assert.False(t, critical.HasNext(2))

	assert.False(t, rules.For(models.SeverityLow).HasNext(0))
	assert.Equal(t, models.SeverityLow, rules.For("unknown").Severity)
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `
high:
  escalation_minutes: 2
  levels:
    - channels: [email]
      recipients: [facility_manager]
    - channels: [sms]
      recipients: [operations_manager]
    - channels: [telegram]
      recipients: [director]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)

	high := rules.For(models.SeverityHigh)
	assert.Equal(t, 2*time.Minute, high.Delay())
	require.Len(t, high.Levels, 3)
	assert.Equal(t, 2, high.Levels[2].Level)
	assert.Equal(t, []string{"director"}, high.Levels[2].Recipients)

	assert.Equal(t, 5*time.Minute, rules.Delay(models.SeverityCritical))
}

func TestLoadRulesRejectsUnknownSeverity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("urgent:\n  levels:\n    - channels: [email]\n"), 0o644))

	_, err := LoadRules(path)
	assert.Error(t, err)
}

func TestLoadRulesEmptyPath(t *testing.T) {
	rules, err := LoadRules("")
	require.NoError(t, err)
	assert.Len(t, rules, 4)
}

func TestSchedulerFires(t *testing.T) {
	fired := make(chan int64, 1)
	s := NewScheduler(func(id int64) { fired <- id })

	s.Schedule(7, 10*time.Millisecond)
	assert.Equal(t, 1, s.Pending())

	select {
	case id := <-fired:
		assert.Equal(t, int64(7), id)
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSchedulerReplaceAndCancel(t *testing.T) {
	var count atomic.Int32
	s := NewScheduler(func(int64) { count.Add(1) })

	s.Schedule(1, 20*time.Millisecond)
	s.Schedule(1, 40*time.Millisecond)
	assert.Equal(t, 1, s.Pending())

	s.Schedule(2, 20*time.Millisecond)
	s.Cancel(2)

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())
}

func TestSchedulerStop(t *testing.T) {
	var count atomic.Int32
	s := NewScheduler(func(int64) { count.Add(1) })

	s.Schedule(1, 20*time.Millisecond)
	s.Stop()
	s.Schedule(2, 10*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, count.Load())
	assert.Zero(t, s.Pending())
}
