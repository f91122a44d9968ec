// Package traversal walks a tenant's directory tree with bounded
// concurrency and aggregates classifier matches into a Report.
package traversal

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/michaelswisa/FileExporter/internal/fsprobe"
)

// ClassifyFunc inspects one directory and records any match into report.
// It is called concurrently and must only add to the report.
type ClassifyFunc func(ctx context.Context, path string, groups []string, report *Report) error

// Options bound a traversal.
type Options struct {
	// MaxDepth is the depth limit for grouped tenants. Flat tenants stop at 1.
	MaxDepth int
	// MaxConcurrent is the number of classifications in flight at once.
	MaxConcurrent int
	// MaxMatches stops the walk once the total exceeds it. Zero disables.
	MaxMatches int64
	// GroupedTenants lists tenants walked to MaxDepth, compared case-insensitively.
	GroupedTenants []string
}

// Engine walks directory trees.
type Engine struct {
	fs     fsprobe.Provider
	opts   Options
	logger *slog.Logger
}

// NewEngine creates a traversal engine.
func NewEngine(fs fsprobe.Provider, opts Options, logger *slog.Logger) *Engine {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if opts.MaxDepth < 1 {
		opts.MaxDepth = 1
	}
	return &Engine{
		fs:     fs,
		opts:   opts,
		logger: logger.With(slog.String("component", "traversal")),
	}
}

// Grouped reports whether tenant is walked with multi-level grouping.
func (e *Engine) Grouped(tenant string) bool {
	return slices.ContainsFunc(e.opts.GroupedTenants, func(name string) bool {
		return strings.EqualFold(name, tenant)
	})
}

// MaxDepthFor returns the depth limit applied to tenant.
func (e *Engine) MaxDepthFor(tenant string) int {
	if e.Grouped(tenant) {
		return e.opts.MaxDepth
	}
	return 1
}

type node struct {
	path   string
	depth  int
	groups []string
}

// Traverse walks root depth-first and calls classify for every directory
// below it. The root itself is never classified. The depth-1 children of
// root become the group list inherited by their subtrees.
//
// The walk is not interrupted by ctx cancellation: a started traversal
// always completes and joins every classification before returning.
func (e *Engine) Traverse(ctx context.Context, root, tenant string, classify ClassifyFunc) *Report {
	ctx = context.WithoutCancel(ctx)
	report := NewReport()
	maxDepth := e.MaxDepthFor(tenant)
	gate := semaphore.NewWeighted(int64(e.opts.MaxConcurrent))
	start := time.Now()

	var wg sync.WaitGroup
	stack := []node{{path: root}}

	for len(stack) > 0 {
		if e.limitReached(report) {
			e.logger.Info("match limit reached, stopping traversal",
				"tenant", tenant, "root", root, "limit", e.opts.MaxMatches)
			break
		}

		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.depth > 0 {
			if err := gate.Acquire(ctx, 1); err != nil {
				e.logger.Error("acquiring classification slot", "path", n.path, "error", err)
				break
			}
			// Matches may have landed while waiting for the slot.
			if e.limitReached(report) {
				gate.Release(1)
				e.logger.Info("match limit reached, stopping traversal",
					"tenant", tenant, "root", root, "limit", e.opts.MaxMatches)
				break
			}
			report.visited.Add(1)
			wg.Add(1)
			go func(n node) {
				defer wg.Done()
				defer gate.Release(1)
				if err := e.classifySafe(ctx, classify, n, report); err != nil {
					e.logger.Error("classifying path", "path", n.path, "tenant", tenant, "error", err)
				}
			}(n)
		}

		if n.depth >= maxDepth {
			continue
		}
		subdirs := e.fs.SubDirectories(n.path)
		// Push in reverse so children pop in listing order.
		for i := len(subdirs) - 1; i >= 0; i-- {
			child := filepath.Join(n.path, subdirs[i])
			groups := n.groups
			if n.depth == 0 {
				groups = append(slices.Clone(n.groups), child)
			}
			stack = append(stack, node{path: child, depth: n.depth + 1, groups: groups})
		}
	}

	wg.Wait()

	e.logger.Debug("traversal complete",
		"tenant", tenant,
		"root", root,
		"visited", report.Visited(),
		"total", report.Total(),
		"recent", report.Recent(),
		"duration", time.Since(start),
	)
	return report
}

// limitReached implements the soft cap: classifications already dispatched
// still complete, so the final total may exceed MaxMatches by up to
// MaxConcurrent.
func (e *Engine) limitReached(report *Report) bool {
	return e.opts.MaxMatches > 0 && report.Total() > e.opts.MaxMatches
}

func (e *Engine) classifySafe(ctx context.Context, classify ClassifyFunc, n node, report *Report) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panicked: %v", r)
		}
	}()
	return classify(ctx, n.path, n.groups, report)
}
