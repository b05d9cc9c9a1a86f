package ingest

import "sync"

// Phase indicates the current stage of a run.
type Phase string

const (
	PhaseStarting   Phase = "starting"
	PhaseReading    Phase = "reading"
	PhaseValidating Phase = "validating"
	PhaseResolving  Phase = "resolving"
	PhaseComplete   Phase = "complete"
	PhaseFailed     Phase = "failed"
	PhaseCancelled  Phase = "cancelled"
)

// Progress is a point-in-time view of a run, served on /status.
type Progress struct {
	RunID         string `json:"run_id"`
	FileName      string `json:"file_name"`
	DryRun        bool   `json:"dry_run"`
	Phase         Phase  `json:"phase"`
	TotalRows     int    `json:"total_rows"`
	TotalOrders   int    `json:"total_orders"`
	CurrentOrder  int    `json:"current_order"`
	OrdersCreated int    `json:"orders_created"`
	OrdersSkipped int    `json:"orders_skipped"`
	Errors        int    `json:"errors"`
	Error         string `json:"error,omitempty"` // Non-empty if Phase is PhaseFailed
	BytesRead     int64  `json:"bytes_read"`
}

// Percent returns order-level progress as a percentage (0-100).
func (p Progress) Percent() int {
	if p.TotalOrders > 0 {
		return (p.CurrentOrder * 100) / p.TotalOrders
	}
	if p.Phase == PhaseComplete {
		return 100
	}
	return 0
}

// Tracker holds the progress of the current run. It is safe for concurrent
// use; the coordinator writes and the status handler reads.
type Tracker struct {
	mu sync.RWMutex
	p  Progress
}

func NewTracker() *Tracker {
	return &Tracker{p: Progress{Phase: PhaseStarting}}
}

// Update applies fn to the progress under the lock. A nil tracker ignores
// updates.
func (t *Tracker) Update(fn func(p *Progress)) {
	if t == nil {
		return
	}
	t.mu.Lock()
	fn(&t.p)
	t.mu.Unlock()
}

// Snapshot returns a copy of the current progress.
func (t *Tracker) Snapshot() Progress {
	if t == nil {
		return Progress{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.p
}
