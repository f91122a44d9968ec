package scanner

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// history keeps the most recent runs, oldest first.
type history struct {
	mu    sync.Mutex
	limit int
	runs  []*Run
}

func newHistory(limit int) *history {
	if limit < 1 {
		limit = 1
	}
	return &history{limit: limit}
}

// start records a new run and returns it. The returned pointer must only be
// mutated through update.
func (h *history) start(kind Kind, t target, trigger, status string, now time.Time) *Run {
	r := &Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		Tenant:    t.dir.Tenant,
		Env:       t.dir.Env,
		Trigger:   trigger,
		Status:    status,
		ScanPath:  t.scanPath,
		StartedAt: now.UTC(),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, r)
	if over := len(h.runs) - h.limit; over > 0 {
		clear(h.runs[:over])
		h.runs = h.runs[over:]
	}
	return r
}

func (h *history) update(r *Run, fn func(*Run)) Run {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(r)
	return *r
}

// snapshot copies the retained runs, newest first.
func (h *history) snapshot() []Run {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Run, 0, len(h.runs))
	for i := len(h.runs) - 1; i >= 0; i-- {
		out = append(out, *h.runs[i])
	}
	return out
}

func (h *history) find(id string) (Run, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.runs {
		if r.ID == id {
			return *r, true
		}
	}
	return Run{}, false
}
