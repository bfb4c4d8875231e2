package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avissapr/advisordesk/internal/security"
)

// DraftSaver stores template editor drafts. Satisfied by *repository.TemplateRepository.
type DraftSaver interface {
	SaveDraft(ctx context.Context, id int, draft []byte) error
}

// Autosaver saves template drafts on a fixed interval. A draft is written on
// a tick only if it was marked dirty since the previous tick; a draft whose
// save fails stays dirty for the next tick unless a newer one replaced it.
type Autosaver struct {
	saver    DraftSaver
	logger   *security.Logger
	interval time.Duration
	timeout  time.Duration

	mu    sync.Mutex
	dirty map[int][]byte

	ticker   *time.Ticker
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewAutosaver creates an autosaver. Call Start to begin ticking.
//
// Example:
//
//	drafts := services.NewAutosaver(repository.NewTemplateRepository(), 30*time.Second, logger)
//	drafts.Start()
//	defer drafts.Stop()
func NewAutosaver(saver DraftSaver, interval time.Duration, logger *security.Logger) *Autosaver {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Autosaver{
		saver:    saver,
		logger:   logger,
		interval: interval,
		timeout:  10 * time.Second,
		dirty:    make(map[int][]byte),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Mark records the latest draft of a template and sets its dirty flag.
func (a *Autosaver) Mark(templateID int, draft []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dirty[templateID] = draft
}

// Pending returns the number of dirty drafts.
func (a *Autosaver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.dirty)
}

// Flush saves every dirty draft and returns how many were written.
func (a *Autosaver) Flush(ctx context.Context) int {
	a.mu.Lock()
	batch := a.dirty
	a.dirty = make(map[int][]byte)
	a.mu.Unlock()

	saved := 0
	for id, draft := range batch {
		saveCtx, cancel := context.WithTimeout(ctx, a.timeout)
		err := a.saver.SaveDraft(saveCtx, id, draft)
		cancel()
		if err != nil {
			a.logger.Error(fmt.Sprintf("failed to autosave draft of template %d", id), err)
			a.mu.Lock()
			if _, newer := a.dirty[id]; !newer {
				a.dirty[id] = draft
			}
			a.mu.Unlock()
			continue
		}
		saved++
	}
	return saved
}

// Start runs the ticker in a background goroutine.
func (a *Autosaver) Start() {
	a.ticker = time.NewTicker(a.interval)
	go func() {
		defer close(a.done)
		for {
			select {
			case <-a.ticker.C:
				if n := a.Flush(context.Background()); n > 0 {
					a.logger.Debug(fmt.Sprintf("autosaved %d template drafts", n))
				}
			case <-a.stop:
				a.ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the ticker and writes what is still dirty. Safe to call more
// than once.
func (a *Autosaver) Stop() {
	a.stopOnce.Do(func() {
		close(a.stop)
		if a.ticker != nil {
			<-a.done
		}
		a.Flush(context.Background())
	})
}
