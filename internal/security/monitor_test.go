package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alert struct {
	severity, title, message string
}

type recordingAlerter struct {
	alerts []alert
}

func (r *recordingAlerter) SendAlert(_ context.Context, severity, title, message string) error {
	r.alerts = append(r.alerts, alert{severity, title, message})
	return nil
}

func TestSecurityMonitor_Thresholds(t *testing.T) {
	tests := []struct {
		name         string
		record       func(*SecurityMonitor, string)
		wantSeverity string
		wantTitle    string
	}{
		{"login failures", (*SecurityMonitor).MonitorLoginFailure, "HIGH", "Repeated login failures"},
		{"token misses", (*SecurityMonitor).MonitorTokenMiss, "MEDIUM", "Public form token probing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := bufferedLogger()
			config := DefaultSecurityConfig()
			config.AlertThresholdFailures = 3
			config.AlertThresholdTokenMiss = 3
			alerter := &recordingAlerter{}
			monitor := NewSecurityMonitor(logger, config, alerter)

			tt.record(monitor, "10.0.0.7")
			tt.record(monitor, "10.0.0.7")
			tt.record(monitor, "10.0.0.8")
			assert.Empty(t, alerter.alerts, "below threshold per address")

			tt.record(monitor, "10.0.0.7")
			tt.record(monitor, "10.0.0.7")

			require.Len(t, alerter.alerts, 1, "one alert per crossing")
			assert.Equal(t, tt.wantSeverity, alerter.alerts[0].severity)
			assert.Equal(t, tt.wantTitle, alerter.alerts[0].title)
			assert.Contains(t, alerter.alerts[0].message, "10.0.0.7")
		})
	}
}

func TestSecurityMonitor_NilAlerterLogs(t *testing.T) {
	logger, buf := bufferedLogger()
	config := DefaultSecurityConfig()
	config.AlertThresholdFailures = 1

	NewSecurityMonitor(logger, config, nil).MonitorLoginFailure("10.0.0.7")

	entry := lastEntry(t, buf)
	assert.Equal(t, LogLevelCritical, entry.Level)
	assert.Contains(t, entry.Message, "[HIGH] Repeated login failures")
}

func TestSecurityMonitor_ResetCounters(t *testing.T) {
	logger, _ := bufferedLogger()
	config := DefaultSecurityConfig()
	config.AlertThresholdTokenMiss = 2
	alerter := &recordingAlerter{}
	monitor := NewSecurityMonitor(logger, config, alerter)

	monitor.MonitorLoginFailure("10.0.0.7")
	monitor.MonitorTokenMiss("10.0.0.7")

	monitor.ResetCounters()
	assert.Equal(t, 1, monitor.failedLogins["10.0.0.7"], "too early to reset")

	monitor.lastReset = time.Now().Add(-config.MonitoringInterval - time.Second)
	monitor.ResetCounters()
	assert.Empty(t, monitor.failedLogins)
	assert.Empty(t, monitor.tokenMisses)

	// a fresh interval needs the full threshold again
	monitor.MonitorTokenMiss("10.0.0.7")
	assert.Empty(t, alerter.alerts)
}
