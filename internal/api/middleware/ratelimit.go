package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type tenantLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// TriggerLimiter rate-limits on-demand scan triggers per landing directory.
type TriggerLimiter struct {
	mu       sync.Mutex
	limiters map[string]*tenantLimiter
	every    time.Duration
	burst    int
	now      func() time.Time
}

// NewTriggerLimiter allows perMinute triggers per directory with the given
// burst. Idle entries are evicted until ctx is canceled.
func NewTriggerLimiter(ctx context.Context, perMinute, burst int) *TriggerLimiter {
	if perMinute <= 0 {
		perMinute = 6
	}
	if burst <= 0 {
		burst = 1
	}
	tl := &TriggerLimiter{
		limiters: make(map[string]*tenantLimiter),
		every:    time.Minute / time.Duration(perMinute),
		burst:    burst,
		now:      time.Now,
	}
	go tl.cleanup(ctx)
	return tl
}

// Wrap rate-limits fn by its {dName} path value. It must wrap a handler
// registered on a pattern that declares {dName}.
func (tl *TriggerLimiter) Wrap(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.ToLower(r.PathValue("dName"))
		if key != "" && !tl.allow(key) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", retryAfter(tl.every))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"too many scan triggers for this directory"}`))
			return
		}
		fn(w, r)
	}
}

func (tl *TriggerLimiter) allow(key string) bool {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	entry, ok := tl.limiters[key]
	if !ok {
		entry = &tenantLimiter{limiter: rate.NewLimiter(rate.Every(tl.every), tl.burst)}
		tl.limiters[key] = entry
	}
	entry.lastSeen = tl.now()
	return entry.limiter.Allow()
}

func (tl *TriggerLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tl.evictIdle(15 * time.Minute)
		}
	}
}

func (tl *TriggerLimiter) evictIdle(idle time.Duration) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	cutoff := tl.now().Add(-idle)
	for key, entry := range tl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(tl.limiters, key)
		}
	}
}

func retryAfter(every time.Duration) string {
	secs := int(every.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
