package captcha

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsagger/pkg/logger"
)

func newTestManager(t *testing.T) (*Manager, *time.Time) {
	t.Helper()
	m := NewManager(60*time.Minute, logger.NewNopLogger())
	current := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return current }
	return m, &current
}

func TestCanProceedInitially(t *testing.T) {
	m, _ := newTestManager(t)

	ok, reason := m.CanProceed()
	assert.True(t, ok)
	assert.Empty(t, reason)
	assert.Equal(t, 0, m.TriggerCount())
}

func TestRecordBlocksUntilExpiry(t *testing.T) {
	m, now := newTestManager(t)

	m.Record("search/pages/results/")

	ok, reason := m.CanProceed()
	require.False(t, ok)
	assert.Contains(t, reason, "Global cooling-off active")
	assert.Contains(t, reason, "60.0 minutes remaining")
	assert.Contains(t, reason, "search/pages/results/")

	// Still blocked just before expiry
	*now = now.Add(59 * time.Minute)
	ok, reason = m.CanProceed()
	require.False(t, ok)
	assert.Contains(t, reason, "1.0 minutes remaining")

	// Clear after expiry
	*now = now.Add(2 * time.Minute)
	ok, _ = m.CanProceed()
	assert.True(t, ok)
}

func TestSecondCaptchaExtendsWindow(t *testing.T) {
	m, now := newTestManager(t)

	m.Record("batches.json")
	firstUntil := m.CoolingOffUntil()

	// A second CAPTCHA 30 minutes in extends the deadline to now+60m,
	// not to firstUntil+60m
	*now = now.Add(30 * time.Minute)
	m.Record("batches.json")

	assert.Equal(t, now.Add(60*time.Minute), m.CoolingOffUntil())
	assert.Equal(t, firstUntil.Add(30*time.Minute), m.CoolingOffUntil())
	assert.Equal(t, 2, m.TriggerCount())

	ok, _ := m.CanProceed()
	assert.False(t, ok)

	*now = now.Add(61 * time.Minute)
	ok, _ = m.CanProceed()
	assert.True(t, ok)
}

func TestReset(t *testing.T) {
	m, _ := newTestManager(t)

	m.Record("lccn/sn86069873.json")
	m.Reset()

	ok, reason := m.CanProceed()
	assert.True(t, ok)
	assert.Empty(t, reason)
	assert.Equal(t, 0, m.TriggerCount())
	assert.True(t, m.CoolingOffUntil().IsZero())
}

func TestDefaultPeriodFallback(t *testing.T) {
	m := NewManager(0, logger.NewNopLogger())
	m.Record("newspapers.json")

	_, reason := m.CanProceed()
	if !strings.Contains(reason, "60.0 minutes remaining") {
		t.Errorf("expected default 60 minute window, got reason %q", reason)
	}
}
