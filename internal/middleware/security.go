package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/avissapr/advisordesk/internal/security"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
)

const (
	// KeyCSRFToken holds the CSRF token in the session and in template locals.
	KeyCSRFToken = "csrf_token"
	// KeyLastSeen holds the unix time of the last request of a signed-in session.
	KeyLastSeen = "last_seen"

	csrfHeader = "X-CSRF-Token"
)

// SecurityMiddleware bundles the request-level protections: sessions, CSRF,
// brute force protection, rate limits, input screening and request logging.
type SecurityMiddleware struct {
	logger    *security.Logger
	config    *security.SecurityConfig
	limiter   *security.RateLimiter
	lockout   *security.AccountLockout
	validator *security.ValidationService
	monitor   *security.SecurityMonitor
	now       func() time.Time
}

// NewSecurityMiddleware creates a new security middleware instance. A nil
// alerter writes alerts to the security log.
func NewSecurityMiddleware(logger *security.Logger, config *security.SecurityConfig, alerter security.Alerter) *SecurityMiddleware {
	return &SecurityMiddleware{
		logger:    logger,
		config:    config,
		limiter:   security.NewRateLimiter(config.LoginRateLimit, 12*time.Second),
		lockout:   security.NewAccountLockout(config.AccountLockoutThreshold, config.AccountLockoutDuration),
		validator: security.NewValidationService(config),
		monitor:   security.NewSecurityMonitor(logger, config, alerter),
		now:       time.Now,
	}
}

// Validator returns the validation service built from the security config.
func (sm *SecurityMiddleware) Validator() *security.ValidationService {
	return sm.validator
}

// SessionConfig returns the session store settings derived from the security
// config. secure is false when the server runs without TLS.
func (sm *SecurityMiddleware) SessionConfig(secure bool) session.Config {
	return session.Config{
		Expiration:     sm.config.SessionTimeout,
		CookieName:     sm.config.SessionCookieName,
		CookieSecure:   sm.config.SessionSecure && secure,
		CookieHTTPOnly: sm.config.SessionHTTPOnly,
		CookieSameSite: sm.config.SessionSameSite,
		CookiePath:     "/",
	}
}

// StartMonitoring resets the monitor counters every monitoring interval until
// stop is closed.
func (sm *SecurityMiddleware) StartMonitoring(stop <-chan struct{}) {
	ticker := time.NewTicker(sm.config.MonitoringInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sm.monitor.ResetCounters()
			case <-stop:
				return
			}
		}
	}()
}

// event logs a security event with the request's address and user agent.
func (sm *SecurityMiddleware) event(c *fiber.Ctx, kind security.SecurityEventType, extra map[string]interface{}) {
	var actorID *int
	if id, ok := c.Locals(KeyUserID).(int); ok {
		actorID = &id
	}
	email, _ := c.Locals(KeyUserEmail).(string)
	sm.logger.SecurityEvent(kind, actorID, email, c.IP(), c.Get(fiber.HeaderUserAgent), extra)
}

// SecureSession drops signed-in sessions that have been idle longer than
// SessionIdleTimeout and refreshes the last-seen mark of active ones. The mark
// is written at most once a minute.
func (sm *SecurityMiddleware) SecureSession(store *session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := store.Get(c)
		if err != nil || sess.Get(KeyUserID) == nil {
			return c.Next()
		}

		now := sm.now().Unix()
		lastSeen, _ := sess.Get(KeyLastSeen).(int64)
		idle := time.Duration(now-lastSeen) * time.Second

		if lastSeen > 0 && sm.config.SessionIdleTimeout > 0 && idle > sm.config.SessionIdleTimeout {
			userID, _ := sess.Get(KeyUserID).(int)
			email, _ := sess.Get(KeyUserEmail).(string)
			sm.logger.SecurityEvent(security.EventSessionExpired, &userID, email, c.IP(), c.Get(fiber.HeaderUserAgent),
				map[string]interface{}{"idle": idle.String()})
			if err := sess.Destroy(); err != nil {
				sm.logger.Error("failed to destroy idle session", err)
			}
			return c.Next()
		}

		if now-lastSeen >= 60 {
			sess.Set(KeyLastSeen, now)
			if err := sess.Save(); err != nil {
				sm.logger.Error("failed to refresh session", err)
			}
		}
		return c.Next()
	}
}

// SetCSRFToken makes the session's CSRF token available to templates and to
// script clients through the X-CSRF-Token response header.
func (sm *SecurityMiddleware) SetCSRFToken(store *session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := store.Get(c)
		if err != nil {
			return c.Next()
		}

		token, _ := sess.Get(KeyCSRFToken).(string)
		if token == "" {
			token = newCSRFToken()
			sess.Set(KeyCSRFToken, token)
			if err := sess.Save(); err != nil {
				sm.logger.Error("failed to save session", err)
			}
		}

		c.Locals(KeyCSRFToken, token)
		c.Set(csrfHeader, token)
		return c.Next()
	}
}

// CSRFProtection rejects state-changing requests whose X-CSRF-Token header or
// csrf_token form value does not match the session token.
func (sm *SecurityMiddleware) CSRFProtection(store *session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		sess, err := store.Get(c)
		if err != nil {
			return c.Status(fiber.StatusForbidden).SendString("Invalid session")
		}

		expected, _ := sess.Get(KeyCSRFToken).(string)
		if expected == "" {
			sess.Set(KeyCSRFToken, newCSRFToken())
			_ = sess.Save()
			sm.csrfViolation(c, "missing_token")
			return c.Status(fiber.StatusForbidden).SendString("CSRF token missing")
		}

		got := c.Get(csrfHeader)
		if got == "" {
			got = c.FormValue(KeyCSRFToken)
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			sm.csrfViolation(c, "token_mismatch")
			return c.Status(fiber.StatusForbidden).SendString("CSRF token invalid")
		}

		return c.Next()
	}
}

func (sm *SecurityMiddleware) csrfViolation(c *fiber.Ctx, reason string) {
	sm.event(c, security.EventCSRFViolation, map[string]interface{}{
		"method": c.Method(),
		"path":   c.Path(),
		"reason": reason,
	})
}

func newCSRFToken() string {
	b := make([]byte, 32)
	// crypto/rand.Read does not fail on supported platforms
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// LoginRateLimit checks the per-IP login budget and the account lockout for
// email. The returned error is safe to show on the login page.
func (sm *SecurityMiddleware) LoginRateLimit(email, ipAddress string) error {
	if !sm.limiter.Allow(ipAddress) {
		sm.logger.SecurityEvent(security.EventRateLimitExceeded, nil, email, ipAddress, "",
			map[string]interface{}{
				"endpoint": "/login",
				"limit":    sm.config.LoginRateLimit,
			})
		return fmt.Errorf("too many login attempts, please try again later")
	}

	if sm.lockout.IsLocked(email) {
		remaining := sm.lockout.GetLockoutTimeRemaining(email)
		sm.logger.SecurityEvent(security.EventAccountLocked, nil, email, ipAddress, "",
			map[string]interface{}{"locked_for": remaining.String()})
		return fmt.Errorf("account is locked due to too many failed attempts, try again in %d minutes", int(remaining.Minutes())+1)
	}
	return nil
}

// RecordLoginFailure counts a failed login towards the lockout of email and
// the alert threshold of ipAddress.
func (sm *SecurityMiddleware) RecordLoginFailure(email, ipAddress string) {
	locked := sm.lockout.RecordFailedAttempt(email)
	sm.logger.SecurityEvent(security.EventLoginFailure, nil, email, ipAddress, "",
		map[string]interface{}{"locked": locked})
	sm.monitor.MonitorLoginFailure(ipAddress)
}

// RecordLoginSuccess clears the failed attempts of email.
func (sm *SecurityMiddleware) RecordLoginSuccess(email, ipAddress string, userID int) {
	sm.lockout.ResetAttempts(email)
	sm.logger.SecurityEvent(security.EventLoginSuccess, &userID, email, ipAddress, "", nil)
}

// RecordTokenMiss records a request for an unknown public form token.
func (sm *SecurityMiddleware) RecordTokenMiss(ipAddress, userAgent string) {
	sm.logger.SecurityEvent(security.EventPublicTokenMiss, nil, "", ipAddress, userAgent, nil)
	sm.monitor.MonitorTokenMiss(ipAddress)
}

// RateLimit spends one token of limiter per request. Signed-in users are
// limited per user id, everyone else per IP.
func (sm *SecurityMiddleware) RateLimit(limiter *security.RateLimiter, endpointName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identifier := c.IP()
		if userID := c.Locals(KeyUserID); userID != nil {
			identifier = fmt.Sprintf("user_%v", userID)
		}

		if limiter.Allow(identifier) {
			return c.Next()
		}

		sm.event(c, security.EventRateLimitExceeded, map[string]interface{}{
			"endpoint":   endpointName,
			"identifier": identifier,
		})
		c.Set(fiber.HeaderRetryAfter, "60")
		if isAPI(c) {
			return c.Status(fiber.StatusTooManyRequests).
				JSON(fiber.Map{"error": "rate limit exceeded, please try again later"})
		}
		return c.Status(fiber.StatusTooManyRequests).
			SendString("Rate limit exceeded, please try again later")
	}
}

// RequestLogger writes one HTTPRequest entry per request and a security event
// for every 403.
func (sm *SecurityMiddleware) RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		sm.logger.HTTPRequest(c.Method(), c.Path(), status, time.Since(start).Milliseconds(),
			c.IP(), c.Get(fiber.HeaderUserAgent))

		if status == fiber.StatusForbidden {
			sm.event(c, security.EventUnauthorizedAccess, map[string]interface{}{
				"method": c.Method(),
				"path":   c.Path(),
				"status": status,
			})
		}
		return err
	}
}

var secureHeaders = [][2]string{
	{"Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; font-src 'self'; connect-src 'self'; frame-ancestors 'none'"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-XSS-Protection", "1; mode=block"},
	{"X-Frame-Options", "DENY"},
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Permissions-Policy", "geolocation=(), microphone=(), camera=()"},
}

// SecureHeaders sets CSP, framing, sniffing and transport headers on every
// response.
func (sm *SecurityMiddleware) SecureHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		for _, h := range secureHeaders {
			c.Set(h[0], h[1])
		}
		return c.Next()
	}
}

var (
	sqlInjectionPatterns = []string{
		"' or '1'='1",
		"' or 1=1",
		"'; drop table",
		"'; delete from",
		"union select",
	}
	xssPatterns = []string{
		"<script",
		"javascript:",
		"onerror=",
		"onload=",
		"onclick=",
		"<iframe",
	}
)

// InputValidation rejects oversized bodies and bodies carrying common
// injection patterns. Multipart uploads are checked by the upload validators
// instead.
func (sm *SecurityMiddleware) InputValidation() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
			return c.Next()
		}
		if len(c.Body()) > sm.config.MaxSubmissionSize {
			return c.Status(fiber.StatusRequestEntityTooLarge).SendString("Request body too large")
		}

		body := strings.ToLower(string(c.Body()))
		kind, found := security.SecurityEventType(""), false
		switch {
		case containsAny(body, sqlInjectionPatterns):
			kind, found = security.EventSQLInjectionAttempt, true
		case containsAny(body, xssPatterns):
			kind, found = security.EventXSSAttempt, true
		}
		if found {
			sm.event(c, kind, map[string]interface{}{
				"path":   c.Path(),
				"method": c.Method(),
			})
			return c.Status(fiber.StatusBadRequest).SendString("Invalid input detected")
		}

		return c.Next()
	}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
