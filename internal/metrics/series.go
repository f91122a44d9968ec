package metrics

import (
	"sort"
	"strings"
	"sync"
)

// Series identifies one published gauge series.
type Series struct {
	Family string
	Values []string
}

func (s Series) key() string {
	return s.Family + "\x01" + strings.Join(s.Values, "\x01")
}

// SeriesStore remembers which series each scan key published last cycle.
// Entries are replaced wholesale, never merged.
type SeriesStore struct {
	mu     sync.Mutex
	byScan map[string]map[string]Series
}

// NewSeriesStore returns an empty store.
func NewSeriesStore() *SeriesStore {
	return &SeriesStore{byScan: make(map[string]map[string]Series)}
}

// Replace stores current as the series set for scanKey and returns the
// series from the previous set that current no longer contains, in a
// stable order.
func (s *SeriesStore) Replace(scanKey string, current []Series) []Series {
	next := make(map[string]Series, len(current))
	for _, c := range current {
		next[c.key()] = c
	}

	s.mu.Lock()
	prev := s.byScan[scanKey]
	s.byScan[scanKey] = next
	s.mu.Unlock()

	var stale []Series
	for k, old := range prev {
		if _, ok := next[k]; !ok {
			stale = append(stale, old)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].key() < stale[j].key() })
	return stale
}

// Len returns the number of series stored for scanKey.
func (s *SeriesStore) Len(scanKey string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byScan[scanKey])
}
