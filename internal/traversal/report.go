package traversal

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Report accumulates the matches of one traversal. It is safe for
// concurrent use by classification goroutines.
type Report struct {
	total   atomic.Int64
	recent  atomic.Int64
	visited atomic.Int64

	mu           sync.Mutex
	groupsAll    map[string]*groupCount
	groupsRecent map[string]*groupCount
}

// groupCount keeps the first spelling seen for a case-folded group key.
type groupCount struct {
	path string
	n    int
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{
		groupsAll:    make(map[string]*groupCount),
		groupsRecent: make(map[string]*groupCount),
	}
}

// Total returns the number of matches recorded so far.
func (r *Report) Total() int64 { return r.total.Load() }

// Recent returns the number of recent matches recorded so far.
func (r *Report) Recent() int64 { return r.recent.Load() }

// Visited returns the number of nodes dispatched for classification.
func (r *Report) Visited() int64 { return r.visited.Load() }

// AddMatch records one match at path, attributing it to every group in
// groups other than path itself. It returns the new total.
//
// The recent counters are only ever touched together with the all counters,
// so Recent() <= Total() and every recent group count is bounded by its all
// count.
func (r *Report) AddMatch(path string, groups []string, recent bool) int64 {
	total := r.total.Add(1)
	if recent {
		r.recent.Add(1)
	}

	if len(groups) == 0 {
		return total
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range groups {
		if strings.EqualFold(g, path) {
			continue
		}
		bump(r.groupsAll, g)
		if recent {
			bump(r.groupsRecent, g)
		}
	}
	return total
}

func bump(m map[string]*groupCount, group string) {
	key := strings.ToLower(group)
	if gc, ok := m[key]; ok {
		gc.n++
		return
	}
	m[key] = &groupCount{path: group, n: 1}
}

// Counts is an immutable copy of a report.
type Counts struct {
	Total        int64
	Recent       int64
	GroupsAll    map[string]int
	GroupsRecent map[string]int
}

// Snapshot copies the current state of the report.
func (r *Report) Snapshot() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := Counts{
		Total:        r.total.Load(),
		Recent:       r.recent.Load(),
		GroupsAll:    make(map[string]int, len(r.groupsAll)),
		GroupsRecent: make(map[string]int, len(r.groupsRecent)),
	}
	for _, gc := range r.groupsAll {
		c.GroupsAll[gc.path] = gc.n
	}
	for _, gc := range r.groupsRecent {
		c.GroupsRecent[gc.path] = gc.n
	}
	return c
}
