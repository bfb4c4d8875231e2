package security

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel is the severity of a log entry.
type LogLevel string

const (
	LogLevelDebug    LogLevel = "DEBUG"
	LogLevelInfo     LogLevel = "INFO"
	LogLevelWarning  LogLevel = "WARNING"
	LogLevelError    LogLevel = "ERROR"
	LogLevelCritical LogLevel = "CRITICAL"
	LogLevelSecurity LogLevel = "SECURITY"
)

var levelRank = map[LogLevel]int{
	LogLevelDebug:    0,
	LogLevelInfo:     1,
	LogLevelWarning:  2,
	LogLevelError:    3,
	LogLevelCritical: 4,
	LogLevelSecurity: 5,
}

// ParseLogLevel converts a config value (debug, info, warn, error) into a LogLevel.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarning
	case "error":
		return LogLevelError
	}
	return LogLevelInfo
}

// SecurityEventType identifies an auditable event.
type SecurityEventType string

const (
	// Authentication
	EventLoginSuccess        SecurityEventType = "LOGIN_SUCCESS"
	EventLoginFailure        SecurityEventType = "LOGIN_FAILURE"
	EventLogout              SecurityEventType = "LOGOUT"
	EventSessionExpired      SecurityEventType = "SESSION_EXPIRED"
	EventAccountLocked       SecurityEventType = "ACCOUNT_LOCKED"
	EventUnauthorizedAccess  SecurityEventType = "UNAUTHORIZED_ACCESS"
	EventPrivilegeEscalation SecurityEventType = "PRIVILEGE_ESCALATION"

	// Forms
	EventFormSessionStart SecurityEventType = "FORM_SESSION_START"
	EventFormSubmit       SecurityEventType = "FORM_SUBMIT"
	EventFormSkip         SecurityEventType = "FORM_SKIP"
	EventFormCompleted    SecurityEventType = "FORM_COMPLETED"
	EventFormSaveFailed   SecurityEventType = "FORM_SAVE_FAILED"
	EventPublicTokenMiss  SecurityEventType = "PUBLIC_TOKEN_INVALID"

	// Templates and files
	EventTemplateImport SecurityEventType = "TEMPLATE_IMPORT"
	EventOverlayEdit    SecurityEventType = "OVERLAY_EDIT"
	EventPDFUpload      SecurityEventType = "PDF_UPLOAD"
	EventAvatarUpload   SecurityEventType = "AVATAR_UPLOAD"
	EventUploadRejected SecurityEventType = "UPLOAD_REJECTED"

	// Attacks
	EventRateLimitExceeded   SecurityEventType = "RATE_LIMIT_EXCEEDED"
	EventCSRFViolation       SecurityEventType = "CSRF_VIOLATION"
	EventSQLInjectionAttempt SecurityEventType = "SQL_INJECTION_ATTEMPT"
	EventXSSAttempt          SecurityEventType = "XSS_ATTEMPT"
	EventSessionFixation     SecurityEventType = "SESSION_FIXATION"
)

// LogEntry is one JSON log line.
type LogEntry struct {
	Timestamp  time.Time              `json:"timestamp"`
	Level      LogLevel               `json:"level"`
	Message    string                 `json:"message"`
	EventType  SecurityEventType      `json:"event_type,omitempty"`
	ActorID    *int                   `json:"actor_id,omitempty"`
	ActorEmail string                 `json:"actor_email,omitempty"`
	IPAddress  string                 `json:"ip_address,omitempty"`
	UserAgent  string                 `json:"user_agent,omitempty"`
	Method     string                 `json:"method,omitempty"`
	Path       string                 `json:"path,omitempty"`
	Status     int                    `json:"status,omitempty"`
	LatencyMS  int64                  `json:"latency_ms,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Extra      map[string]interface{} `json:"extra,omitempty"`
}

// Logger writes LogEntry values as JSON lines, one entry per line, so logs can
// be shipped to a SIEM unchanged. Safe for concurrent use.
type Logger struct {
	output   *log.Logger
	minLevel LogLevel
	mu       sync.Mutex
}

// NewLogger creates a logger writing to stdout at INFO level.
func NewLogger() *Logger {
	return &Logger{
		output:   log.New(os.Stdout, "", 0),
		minLevel: LogLevelInfo,
	}
}

// SetLevel drops entries below level. SECURITY entries are always written.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

func (l *Logger) write(entry LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if levelRank[entry.Level] < levelRank[l.minLevel] {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		l.output.Printf(`{"level":"ERROR","message":"failed to marshal log entry: %s"}`, err)
		return
	}
	l.output.Println(string(data))
}

// Debug logs a debug message.
func (l *Logger) Debug(message string) {
	l.write(LogEntry{Level: LogLevelDebug, Message: message})
}

// Info logs an informational message.
func (l *Logger) Info(message string) {
	l.write(LogEntry{Level: LogLevelInfo, Message: message})
}

// InfoWith logs an informational message with extra fields.
func (l *Logger) InfoWith(message string, extra map[string]interface{}) {
	l.write(LogEntry{Level: LogLevelInfo, Message: message, Extra: extra})
}

// Warn logs a warning.
func (l *Logger) Warn(message string) {
	l.write(LogEntry{Level: LogLevelWarning, Message: message})
}

// WarnWith logs a warning with extra fields.
func (l *Logger) WarnWith(message string, extra map[string]interface{}) {
	l.write(LogEntry{Level: LogLevelWarning, Message: message, Extra: extra})
}

// Error logs an error. err may be nil.
func (l *Logger) Error(message string, err error) {
	l.write(LogEntry{Level: LogLevelError, Message: message, Error: errString(err)})
}

// Critical logs a failure that needs immediate attention. err may be nil.
func (l *Logger) Critical(message string, err error) {
	l.write(LogEntry{Level: LogLevelCritical, Message: message, Error: errString(err)})
}

// SecurityEvent logs an auditable event.
func (l *Logger) SecurityEvent(eventType SecurityEventType, actorID *int, actorEmail, ipAddress, userAgent string, extra map[string]interface{}) {
	l.write(LogEntry{
		Level:      LogLevelSecurity,
		Message:    fmt.Sprintf("Security event: %s", eventType),
		EventType:  eventType,
		ActorID:    actorID,
		ActorEmail: actorEmail,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Extra:      extra,
	})
}

// HTTPRequest logs a completed HTTP request.
func (l *Logger) HTTPRequest(method, path string, status int, latencyMS int64, ipAddress, userAgent string) {
	level := LogLevelInfo
	switch {
	case status >= 500:
		level = LogLevelError
	case status >= 400:
		level = LogLevelWarning
	}
	l.write(LogEntry{
		Level:     level,
		Message:   fmt.Sprintf("%s %s %d", method, path, status),
		Method:    method,
		Path:      path,
		Status:    status,
		LatencyMS: latencyMS,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
