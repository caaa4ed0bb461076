package arbor

import (
	"context"
	"sync"
)

// Monitor receives progress reports from long-running operations and
// tells them when to stop. Every Monitor argument in this package may be
// nil, which disables reporting without changing behavior.
type Monitor interface {
	BeginTask(name string, total int)
	Worked(n int)
	Done()
	IsCancelled() bool
}

func beginTask(m Monitor, name string, total int) {
	if m != nil {
		m.BeginTask(name, total)
	}
}

func worked(m Monitor, n int) {
	if m != nil && n > 0 {
		m.Worked(n)
	}
}

func done(m Monitor) {
	if m != nil {
		m.Done()
	}
}

func isCancelled(m Monitor) bool {
	return m != nil && m.IsCancelled()
}

// SubMonitor maps all the work of a child task onto share units of its
// parent. The child's BeginTask total is scaled down to share; Done
// reports whatever part of share is still unreported.
type SubMonitor struct {
	parent    Monitor
	share     int
	mu        sync.Mutex
	total     int
	completed int
	reported  int
}

func NewSubMonitor(parent Monitor, share int) *SubMonitor {
	return &SubMonitor{parent: parent, share: share}
}

func (s *SubMonitor) BeginTask(_ string, total int) {
	s.mu.Lock()
	s.total = total
	s.mu.Unlock()
}

func (s *SubMonitor) Worked(n int) {
	s.mu.Lock()
	s.completed += n
	var target int
	if s.total > 0 {
		target = min(s.share*s.completed/s.total, s.share)
	}
	delta := target - s.reported
	s.reported = max(target, s.reported)
	s.mu.Unlock()
	worked(s.parent, delta)
}

func (s *SubMonitor) Done() {
	s.mu.Lock()
	delta := s.share - s.reported
	s.reported = s.share
	s.mu.Unlock()
	worked(s.parent, delta)
}

func (s *SubMonitor) IsCancelled() bool {
	return isCancelled(s.parent)
}

// ContextMonitor reports cancellation when either its context ends or the
// wrapped monitor is cancelled. Progress is forwarded to the wrapped
// monitor, which may be nil.
type ContextMonitor struct {
	ctx  context.Context
	next Monitor
}

func NewContextMonitor(ctx context.Context, next Monitor) *ContextMonitor {
	return &ContextMonitor{ctx: ctx, next: next}
}

func (c *ContextMonitor) BeginTask(name string, total int) { beginTask(c.next, name, total) }
func (c *ContextMonitor) Worked(n int)                     { worked(c.next, n) }
func (c *ContextMonitor) Done()                            { done(c.next) }

func (c *ContextMonitor) IsCancelled() bool {
	return c.ctx.Err() != nil || isCancelled(c.next)
}
