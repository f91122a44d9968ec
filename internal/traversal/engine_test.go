package traversal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/michaelswisa/FileExporter/internal/fsprobe"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func mkdirs(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
}

func newEngine(opts Options) *Engine {
	return NewEngine(fsprobe.NewOS(testLogger()), opts, testLogger())
}

// recorder classifies every path as a match and remembers what it saw.
type recorder struct {
	mu     sync.Mutex
	paths  []string
	groups map[string][]string
}

func (r *recorder) classify(_ context.Context, path string, groups []string, report *Report) error {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	if r.groups == nil {
		r.groups = make(map[string][]string)
	}
	r.groups[path] = groups
	r.mu.Unlock()
	report.AddMatch(path, groups, false)
	return nil
}

func (r *recorder) sorted(root string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.paths))
	for _, p := range r.paths {
		rel, _ := filepath.Rel(root, p)
		out = append(out, filepath.ToSlash(rel))
	}
	sort.Strings(out)
	return out
}

func TestTraverse_FlatTenantStopsAtDepthOne(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "a/deep", "b")

	e := newEngine(Options{MaxDepth: 5, MaxConcurrent: 4})
	rec := &recorder{}
	report := e.Traverse(context.Background(), root, "flat", rec.classify)

	if got := rec.sorted(root); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("classified = %v, want [a b]", got)
	}
	if report.Total() != 2 {
		t.Errorf("total = %d, want 2", report.Total())
	}
	for p, g := range rec.groups {
		if len(g) != 1 || g[0] != p {
			t.Errorf("groups for %s = %v, want only itself", p, g)
		}
	}
}

func TestTraverse_GroupedTenantInheritsGroups(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "Group1/A", "Group1/B", "Group2/C")

	e := newEngine(Options{MaxDepth: 2, MaxConcurrent: 3, GroupedTenants: []string{"Alpha"}})
	report := e.Traverse(context.Background(), root, "alpha", func(_ context.Context, path string, groups []string, r *Report) error {
		switch filepath.Base(path) {
		case "A", "B", "C":
			r.AddMatch(path, groups, filepath.Base(path) == "A")
		}
		return nil
	})

	c := report.Snapshot()
	g1 := filepath.Join(root, "Group1")
	g2 := filepath.Join(root, "Group2")
	if c.GroupsAll[g1] != 2 || c.GroupsAll[g2] != 1 {
		t.Errorf("groups all = %v, want Group1=2 Group2=1", c.GroupsAll)
	}
	if c.GroupsRecent[g1] != 1 {
		t.Errorf("groups recent = %v, want Group1=1", c.GroupsRecent)
	}
	if _, ok := c.GroupsRecent[g2]; ok {
		t.Errorf("Group2 should have no recent entry: %v", c.GroupsRecent)
	}
	if c.Total != 3 || c.Recent != 1 {
		t.Errorf("total/recent = %d/%d, want 3/1", c.Total, c.Recent)
	}
}

func TestTraverse_RootNeverClassified(t *testing.T) {
	root := t.TempDir()
	e := newEngine(Options{MaxDepth: 3, MaxConcurrent: 2})
	rec := &recorder{}
	report := e.Traverse(context.Background(), root, "any", rec.classify)
	if len(rec.paths) != 0 || report.Total() != 0 {
		t.Errorf("empty root: classified %v, total %d", rec.paths, report.Total())
	}
}

func TestTraverse_SoftCap(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		mkdirs(t, root, fmt.Sprintf("d%02d", i))
	}
	const limit, gate = 5, 3

	e := newEngine(Options{MaxDepth: 1, MaxConcurrent: gate, MaxMatches: limit})
	report := e.Traverse(context.Background(), root, "t", (&recorder{}).classify)

	if got := report.Total(); got <= limit || got > limit+gate {
		t.Errorf("total = %d, want in (%d, %d]", got, limit, limit+gate)
	}
}

func TestTraverse_BoundedConcurrency(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 20; i++ {
		mkdirs(t, root, fmt.Sprintf("d%02d", i))
	}
	const gate = 4

	var inFlight, peak atomic.Int32
	e := newEngine(Options{MaxDepth: 1, MaxConcurrent: gate})
	report := e.Traverse(context.Background(), root, "t", func(_ context.Context, path string, groups []string, r *Report) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		r.AddMatch(path, groups, true)
		return nil
	})

	if got := peak.Load(); got > gate {
		t.Errorf("peak concurrency = %d, want <= %d", got, gate)
	}
	if report.Total() != 20 {
		t.Errorf("total = %d, want 20 (all joined before return)", report.Total())
	}
}

func TestTraverse_ErrorsAndPanicsDoNotAbort(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "bad", "boom", "good")

	e := newEngine(Options{MaxDepth: 1, MaxConcurrent: 2})
	report := e.Traverse(context.Background(), root, "t", func(_ context.Context, path string, groups []string, r *Report) error {
		switch filepath.Base(path) {
		case "bad":
			return errors.New("unreadable")
		case "boom":
			panic("classifier bug")
		}
		r.AddMatch(path, groups, false)
		return nil
	})

	if report.Total() != 1 {
		t.Errorf("total = %d, want 1", report.Total())
	}
}

func TestTraverse_CanceledContextStillCompletes(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "a", "b", "c")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newEngine(Options{MaxDepth: 1, MaxConcurrent: 1})
	report := e.Traverse(ctx, root, "t", (&recorder{}).classify)
	if report.Total() != 3 {
		t.Errorf("total = %d, want 3", report.Total())
	}
}

func TestTraverse_Idempotent(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "G1/x", "G1/y", "G2/z/w")

	e := newEngine(Options{MaxDepth: 3, MaxConcurrent: 4, GroupedTenants: []string{"t"}})
	classify := func(_ context.Context, path string, groups []string, r *Report) error {
		if !strings.HasPrefix(filepath.Base(path), "G") {
			r.AddMatch(path, groups, true)
		}
		return nil
	}
	first := e.Traverse(context.Background(), root, "t", classify).Snapshot()
	second := e.Traverse(context.Background(), root, "t", classify).Snapshot()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("snapshots differ:\n%+v\n%+v", first, second)
	}
}
