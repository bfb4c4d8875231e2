package security

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Alerter delivers security alerts to people (email, chat, SIEM).
type Alerter interface {
	SendAlert(ctx context.Context, severity, title, message string) error
}

// LogAlerter writes alerts to the security log. Used when no external
// alerting channel is configured.
type LogAlerter struct {
	Logger *Logger
}

// SendAlert logs the alert at CRITICAL level.
func (a LogAlerter) SendAlert(_ context.Context, severity, title, message string) error {
	a.Logger.Critical(fmt.Sprintf("[%s] %s: %s", severity, title, message), nil)
	return nil
}

// SecurityMonitor counts suspicious activity per IP and alerts once a
// threshold is crossed within one monitoring interval.
type SecurityMonitor struct {
	logger  *Logger
	config  *SecurityConfig
	alerter Alerter

	mu           sync.Mutex
	failedLogins map[string]int
	tokenMisses  map[string]int
	lastReset    time.Time
}

// NewSecurityMonitor creates a monitor. alerter may be nil, in which case
// alerts go to the log.
func NewSecurityMonitor(logger *Logger, config *SecurityConfig, alerter Alerter) *SecurityMonitor {
	if alerter == nil {
		alerter = LogAlerter{Logger: logger}
	}
	return &SecurityMonitor{
		logger:       logger,
		config:       config,
		alerter:      alerter,
		failedLogins: make(map[string]int),
		tokenMisses:  make(map[string]int),
		lastReset:    time.Now(),
	}
}

// MonitorLoginFailure counts a failed login from ipAddress.
func (m *SecurityMonitor) MonitorLoginFailure(ipAddress string) {
	m.mu.Lock()
	m.failedLogins[ipAddress]++
	count := m.failedLogins[ipAddress]
	m.mu.Unlock()

	if count == m.config.AlertThresholdFailures {
		m.alert("HIGH", "Repeated login failures",
			fmt.Sprintf("%d failed logins from %s within %s", count, ipAddress, m.config.MonitoringInterval))
	}
}

// MonitorTokenMiss counts a request for an unknown public form token. Many
// misses from one IP means someone is guessing share links.
func (m *SecurityMonitor) MonitorTokenMiss(ipAddress string) {
	m.mu.Lock()
	m.tokenMisses[ipAddress]++
	count := m.tokenMisses[ipAddress]
	m.mu.Unlock()

	if count == m.config.AlertThresholdTokenMiss {
		m.alert("MEDIUM", "Public form token probing",
			fmt.Sprintf("%d unknown form tokens requested from %s", count, ipAddress))
	}
}

// ResetCounters clears the counters once the monitoring interval has passed.
func (m *SecurityMonitor) ResetCounters() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastReset) < m.config.MonitoringInterval {
		return
	}
	m.failedLogins = make(map[string]int)
	m.tokenMisses = make(map[string]int)
	m.lastReset = time.Now()
}

func (m *SecurityMonitor) alert(severity, title, message string) {
	if err := m.alerter.SendAlert(context.Background(), severity, title, message); err != nil {
		m.logger.Error("Failed to send security alert", err)
	}
}
