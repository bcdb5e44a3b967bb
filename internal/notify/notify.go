// Package notify carries progress and outcome signals from the sync core to
// whatever UI is listening.
package notify

import (
	"context"
	"sync"
	"time"
)

type Kind string

const (
	RefreshStarted   Kind = "refresh-started"
	RefreshSucceeded Kind = "refresh-succeeded"
	RefreshFailed    Kind = "refresh-failed"
	DrainStarted     Kind = "drain-started"
	DrainProgress    Kind = "drain-progress"
	DrainFinished    Kind = "drain-finished"
	EnqueueSucceeded Kind = "enqueue-succeeded"
	EnqueueRejected  Kind = "enqueue-rejected"
)

type Signal struct {
	Kind      Kind           `json:"kind"`
	Remaining *int           `json:"remaining,omitempty"`
	PendingID int64          `json:"pending_id,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Counts    map[string]int `json:"counts,omitempty"`
	At        time.Time      `json:"at"`
}

// WithRemaining returns a copy of s carrying the queue length.
func (s Signal) WithRemaining(n int) Signal {
	s.Remaining = &n
	return s
}

// Notifier delivers signals. Emit must not block the caller for long and its
// failures never fail the operation that emitted the signal.
type Notifier interface {
	Emit(ctx context.Context, signal Signal)
}

type Noop struct{}

func (Noop) Emit(context.Context, Signal) {}

// Multi fans a signal out to every notifier in order.
type Multi []Notifier

func (m Multi) Emit(ctx context.Context, signal Signal) {
	for _, n := range m {
		if n != nil {
			n.Emit(ctx, signal)
		}
	}
}

// Recorder keeps every signal it receives.
type Recorder struct {
	mu      sync.Mutex
	signals []Signal
}

func (r *Recorder) Emit(_ context.Context, signal Signal) {
	r.mu.Lock()
	r.signals = append(r.signals, signal)
	r.mu.Unlock()
}

func (r *Recorder) Signals() []Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Signal, len(r.signals))
	copy(out, r.signals)
	return out
}

func (r *Recorder) Kinds() []Kind {
	signals := r.Signals()
	kinds := make([]Kind, 0, len(signals))
	for _, s := range signals {
		kinds = append(kinds, s.Kind)
	}
	return kinds
}
