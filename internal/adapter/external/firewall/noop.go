package firewall

import (
	"context"
	"sync"
)

// Noop records drops in memory without touching the host firewall.
// Used in dry-run mode and in tests.
type Noop struct {
	mu      sync.Mutex
	dropped map[string]bool
}

// NewNoop creates an in-memory firewall
func NewNoop() *Noop {
	return &Noop{dropped: make(map[string]bool)}
}

// Name identifies the backend for logs
func (f *Noop) Name() string {
	return "noop"
}

// ApplyDrop records the IP as dropped
func (f *Noop) ApplyDrop(_ context.Context, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped[ip] = true
	return nil
}

// RemoveDrop removes the recorded drop
func (f *Noop) RemoveDrop(_ context.Context, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.dropped, ip)
	return nil
}

// IsDropped reports whether a drop is currently recorded for the IP
func (f *Noop) IsDropped(ip string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped[ip]
}

// DropCount returns the number of recorded drops
func (f *Noop) DropCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dropped)
}
