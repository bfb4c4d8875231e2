package stepper

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role is the kind of user driving a session.
type Role string

const (
	RoleClient    Role = "client"
	RoleAdvisor   Role = "advisor"
	RoleFirmAdmin Role = "firm_admin"
	RolePublic    Role = "public"
)

// IsStaff reports whether r belongs to the advisory firm.
func (r Role) IsStaff() bool {
	return r == RoleAdvisor || r == RoleFirmAdmin
}

// Meta identifies who a session belongs to and what it fills in.
type Meta struct {
	TemplateIDs []int
	FirmID      int
	ClientID    int
	UserID      int
	Role        Role
	Public      bool
}

// Session is one form-filling session. All mutations go through Dispatch,
// which serializes them, so concurrent requests against the same session see
// the same ordering a single event loop would give.
type Session struct {
	ID string
	Meta

	mu         sync.Mutex
	formID     string
	state      State
	lastActive time.Time
}

// Dispatch applies ev to the session state. On error the state is unchanged.
func (s *Session) Dispatch(ev Event) (Effects, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, fx, err := Reduce(s.state, ev)
	s.lastActive = time.Now()
	if err != nil {
		return Effects{}, err
	}
	s.state = next
	return fx, nil
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// FormID returns the id of the stored form, empty until the first save.
func (s *Session) FormID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.formID
}

// SetFormID records the id assigned by the first save.
func (s *Session) SetFormID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.formID = id
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActive)
}

// Registry holds the live sessions of the process keyed by session id.
// Sessions idle for longer than the configured timeout are swept periodically.
type Registry struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	idleTimeout time.Duration

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

// NewRegistry creates a registry and starts its idle sweeper.
//
// Parameters:
//   - idleTimeout: How long a session may go without a Dispatch before it is removed
//
// Example:
//
//	registry := NewRegistry(2 * time.Hour)
//	defer registry.Stop()
func NewRegistry(idleTimeout time.Duration) *Registry {
	r := &Registry{
		sessions:    make(map[string]*Session),
		idleTimeout: idleTimeout,
		stopCleanup: make(chan struct{}),
	}

	interval := idleTimeout / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	r.cleanupTicker = time.NewTicker(interval)
	go r.cleanup()

	return r
}

// Create registers a new session holding state under a fresh id. formID is
// empty for a form that has not been saved yet.
func (r *Registry) Create(meta Meta, formID string, state State) *Session {
	meta.TemplateIDs = append([]int(nil), meta.TemplateIDs...)
	s := &Session{
		ID:         uuid.New().String(),
		Meta:       meta,
		formID:     formID,
		state:      state,
		lastActive: time.Now(),
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Get returns the session with id, or false when it was never created or has
// been destroyed.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Contains reports whether s is still the registered session for its id.
func (r *Registry) Contains(s *Session) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[s.ID] == s
}

// Destroy removes the session. Destroying an unknown id is a no-op.
func (r *Registry) Destroy(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes sessions idle longer than the timeout and returns how many
// were removed.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, s := range r.sessions {
		if s.idleSince(now) > r.idleTimeout {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

func (r *Registry) cleanup() {
	for {
		select {
		case now := <-r.cleanupTicker.C:
			r.Sweep(now)
		case <-r.stopCleanup:
			return
		}
	}
}

// Stop stops the sweeper goroutine. Safe to call more than once.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		r.cleanupTicker.Stop()
		close(r.stopCleanup)
	})
}
