package captcha

import (
	"fmt"
	"sync"
	"time"

	"newsagger/pkg/logger"
)

// DefaultCoolingOffPeriod is how long all request paths pause after a
// CAPTCHA challenge.
const DefaultCoolingOffPeriod = 60 * time.Minute

// Manager is the process-wide CAPTCHA cooling-off state. One instance is
// constructed per process and passed to every component that issues
// requests; all mutation funnels through Record and Reset.
//
// Invariant: exactly one cooling-off window is active at a time. A new
// CAPTCHA while cooling off extends the window, it never stacks.
type Manager struct {
	mu              sync.Mutex
	coolingOffFor   time.Duration
	coolingOffUntil time.Time
	triggerCount    int
	lastEndpoint    string
	logger          logger.Logger

	// now is swappable for tests
	now func() time.Time
}

// NewManager creates a CAPTCHA manager with the given cooling-off period.
// A non-positive period falls back to the default.
func NewManager(period time.Duration, log logger.Logger) *Manager {
	if period <= 0 {
		period = DefaultCoolingOffPeriod
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Manager{
		coolingOffFor: period,
		logger:        log,
		now:           time.Now,
	}
}

// Record registers a CAPTCHA challenge on the given endpoint and starts (or
// extends) the cooling-off window.
func (m *Manager) Record(endpoint string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.triggerCount++
	m.lastEndpoint = endpoint
	m.coolingOffUntil = m.now().Add(m.coolingOffFor)

	m.logger.WarnWithFields("CAPTCHA detected, entering global cooling-off", map[string]interface{}{
		"endpoint":      endpoint,
		"trigger_count": m.triggerCount,
		"until":         m.coolingOffUntil,
	})
}

// CanProceed reports whether requests may be issued. While the cooling-off
// window is active it returns false with a human-readable reason.
func (m *Manager) CanProceed() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Before(m.coolingOffUntil) {
		remaining := m.coolingOffUntil.Sub(now)
		reason := fmt.Sprintf("Global cooling-off active: %.1f minutes remaining (triggered by %s)",
			remaining.Minutes(), m.lastEndpoint)
		return false, reason
	}
	return true, ""
}

// TriggerCount returns how many CAPTCHA challenges have been recorded
func (m *Manager) TriggerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triggerCount
}

// CoolingOffUntil returns the end of the current window, zero if none
func (m *Manager) CoolingOffUntil() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coolingOffUntil
}

// Reset clears the cooling-off state, for recovery and tests
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.coolingOffUntil = time.Time{}
	m.triggerCount = 0
	m.lastEndpoint = ""
	m.logger.Info("CAPTCHA cooling-off state reset")
}
