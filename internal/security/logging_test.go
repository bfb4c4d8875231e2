package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bufferedLogger returns a logger writing into the returned buffer.
func bufferedLogger() (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := NewLogger()
	logger.output = log.New(&buf, "", 0)
	return logger, &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) LogEntry {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry LogEntry
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry), "every line is one JSON object")
	return entry
}

func TestLogger_Entries(t *testing.T) {
	tests := []struct {
		name      string
		write     func(*Logger)
		wantLevel LogLevel
		wantError string
		wantExtra map[string]interface{}
	}{
		{"info", func(l *Logger) { l.Info("page saved") }, LogLevelInfo, "", nil},
		{"info with fields", func(l *Logger) {
			l.InfoWith("page saved", map[string]interface{}{"page_key": "spouse"})
		}, LogLevelInfo, "", map[string]interface{}{"page_key": "spouse"}},
		{"warn", func(l *Logger) { l.Warn("field quarantined") }, LogLevelWarning, "", nil},
		{"error", func(l *Logger) { l.Error("save failed", errors.New("connection reset")) }, LogLevelError, "connection reset", nil},
		{"error without cause", func(l *Logger) { l.Error("save failed", nil) }, LogLevelError, "", nil},
		{"critical", func(l *Logger) { l.Critical("storage unwritable", nil) }, LogLevelCritical, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := bufferedLogger()
			tt.write(logger)

			entry := lastEntry(t, buf)
			assert.Equal(t, tt.wantLevel, entry.Level)
			assert.NotEmpty(t, entry.Message)
			assert.False(t, entry.Timestamp.IsZero())
			assert.Equal(t, tt.wantError, entry.Error)
			assert.Equal(t, tt.wantExtra, entry.Extra)
		})
	}
}

func TestLogger_SecurityEvent(t *testing.T) {
	logger, buf := bufferedLogger()
	actorID := 7

	logger.SecurityEvent(EventFormCompleted, &actorID, "ada@example.com", "10.1.2.3", "Mozilla/5.0",
		map[string]interface{}{"form_id": "f-1", "pages": 4})

	entry := lastEntry(t, buf)
	assert.Equal(t, LogLevelSecurity, entry.Level)
	assert.Equal(t, EventFormCompleted, entry.EventType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, 7, *entry.ActorID)
	assert.Equal(t, "ada@example.com", entry.ActorEmail)
	assert.Equal(t, "10.1.2.3", entry.IPAddress)
	assert.Equal(t, "Mozilla/5.0", entry.UserAgent)
	assert.Equal(t, "f-1", entry.Extra["form_id"])
	assert.Equal(t, float64(4), entry.Extra["pages"])
}

func TestLogger_HTTPRequest(t *testing.T) {
	logger, buf := bufferedLogger()

	logger.HTTPRequest("POST", "/api/forms/sessions/abc/submit", 200, 245, "10.1.2.3", "curl/8.0")

	entry := lastEntry(t, buf)
	assert.Equal(t, "POST", entry.Method)
	assert.Equal(t, "/api/forms/sessions/abc/submit", entry.Path)
	assert.Equal(t, 200, entry.Status)
	assert.Equal(t, int64(245), entry.LatencyMS)
	assert.Contains(t, entry.Message, "POST")
	assert.Contains(t, entry.Message, "200")
}

func TestLogger_LevelFilter(t *testing.T) {
	logger, buf := bufferedLogger()
	logger.SetLevel(ParseLogLevel("error"))

	logger.Info("dropped")
	logger.Warn("dropped")
	assert.Zero(t, buf.Len())

	logger.SecurityEvent(EventLogout, nil, "", "", "", nil)
	assert.NotZero(t, buf.Len(), "security events ignore the level")
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   LogLevelDebug,
		"info":    LogLevelInfo,
		"warn":    LogLevelWarning,
		"WARNING": LogLevelWarning,
		"error":   LogLevelError,
		"":        LogLevelInfo,
		"verbose": LogLevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLogLevel(in), in)
	}
}

func TestSecurityEventTypes_Unique(t *testing.T) {
	events := []SecurityEventType{
		EventLoginSuccess, EventLoginFailure, EventLogout, EventSessionExpired,
		EventAccountLocked, EventUnauthorizedAccess, EventPrivilegeEscalation,
		EventFormSessionStart, EventFormSubmit, EventFormSkip, EventFormCompleted,
		EventFormSaveFailed, EventPublicTokenMiss,
		EventTemplateImport, EventOverlayEdit, EventPDFUpload, EventAvatarUpload, EventUploadRejected,
		EventRateLimitExceeded, EventCSRFViolation, EventSQLInjectionAttempt, EventXSSAttempt, EventSessionFixation,
	}

	seen := make(map[SecurityEventType]bool, len(events))
	for _, event := range events {
		assert.NotEmpty(t, string(event))
		assert.False(t, seen[event], "%s defined twice", event)
		seen[event] = true
	}
}

func BenchmarkLogger_SecurityEvent(b *testing.B) {
	logger := NewLogger()
	logger.output = log.New(&bytes.Buffer{}, "", 0)
	actorID := 7
	extra := map[string]interface{}{"form_id": "f-1"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.SecurityEvent(EventFormSubmit, &actorID, "ada@example.com", "10.1.2.3", "Mozilla/5.0", extra)
	}
}

func BenchmarkLogger_HTTPRequest(b *testing.B) {
	logger := NewLogger()
	logger.output = log.New(&bytes.Buffer{}, "", 0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.HTTPRequest("POST", "/api/forms/sessions", 200, 150, "10.1.2.3", "Mozilla/5.0")
	}
}
