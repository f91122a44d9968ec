package scanner

import (
	"time"

	"github.com/michaelswisa/FileExporter/internal/classify"
	"github.com/michaelswisa/FileExporter/internal/metrics"
)

// Kind is one of the four scans run against a tenant.
type Kind string

// Scan kinds.
const (
	KindFailures           Kind = "failures"
	KindObservedZombies    Kind = "zombies_observed"
	KindNonObservedZombies Kind = "zombies_non_observed"
	KindTranscoded         Kind = "transcoded"
)

// Kinds lists every scan kind in the order a full scan reports them.
var Kinds = []Kind{KindFailures, KindObservedZombies, KindNonObservedZombies, KindTranscoded}

// ZombieKind returns the scan kind for a zombie rule.
func ZombieKind(t classify.ZombieType) Kind {
	if t == classify.NonObserved {
		return KindNonObservedZombies
	}
	return KindObservedZombies
}

func (k Kind) category() metrics.Category {
	switch k {
	case KindFailures:
		return metrics.Failures
	case KindTranscoded:
		return metrics.Transcoded
	default:
		return metrics.Zombies
	}
}

func (k Kind) zombieType() classify.ZombieType {
	switch k {
	case KindObservedZombies:
		return classify.Observed
	case KindNonObservedZombies:
		return classify.NonObserved
	default:
		return ""
	}
}

// label is the human-readable name used in ScanAllResult messages.
func (k Kind) label() string {
	switch k {
	case KindFailures:
		return "Failure scan"
	case KindObservedZombies:
		return "Observed Zombie scan"
	case KindNonObservedZombies:
		return "Non-Observed Zombie scan"
	default:
		return "Transcoded scan"
	}
}

// Run statuses.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run triggers.
const (
	TriggerScheduled = "scheduled"
	TriggerOnDemand  = "on_demand"
)

// Run records one category scan of one tenant.
type Run struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	Tenant      string     `json:"tenant"`
	Env         string     `json:"env"`
	Trigger     string     `json:"trigger"`
	Status      string     `json:"status"`
	ScanPath    string     `json:"scan_path"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Total       int64      `json:"total"`
	Recent      int64      `json:"recent"`
	Error       string     `json:"error,omitempty"`
}

// ScanAllResult reports which of a tenant's four scans ran (or were queued).
type ScanAllResult struct {
	FailureScan           bool     `json:"failure_scan"`
	ObservedZombieScan    bool     `json:"observed_zombie_scan"`
	NonObservedZombieScan bool     `json:"non_observed_zombie_scan"`
	TranscodedScan        bool     `json:"transcoded_scan"`
	Messages              []string `json:"messages"`
	Runs                  []Run    `json:"runs,omitempty"`
}

// Any reports whether at least one scan ran or was queued.
func (r ScanAllResult) Any() bool {
	return r.FailureScan || r.ObservedZombieScan || r.NonObservedZombieScan || r.TranscodedScan
}

func (r *ScanAllResult) set(k Kind, ok bool) {
	switch k {
	case KindFailures:
		r.FailureScan = ok
	case KindObservedZombies:
		r.ObservedZombieScan = ok
	case KindNonObservedZombies:
		r.NonObservedZombieScan = ok
	case KindTranscoded:
		r.TranscodedScan = ok
	}
}

func (r ScanAllResult) get(k Kind) bool {
	switch k {
	case KindFailures:
		return r.FailureScan
	case KindObservedZombies:
		return r.ObservedZombieScan
	case KindNonObservedZombies:
		return r.NonObservedZombieScan
	default:
		return r.TranscodedScan
	}
}

// describe fills Messages in Kinds order, using done for kinds that ran and
// skipped for the rest.
func (r *ScanAllResult) describe(done, skipped string) {
	r.Messages = r.Messages[:0]
	for _, k := range Kinds {
		state := skipped
		if r.get(k) {
			state = done
		}
		r.Messages = append(r.Messages, k.label()+": "+state+".")
	}
}
