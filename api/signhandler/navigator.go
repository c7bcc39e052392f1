package signhandler

import (
	"context"
	"sync"

	"github.com/ruteri/wallet-custody-backend/interfaces"
)

// UINavigator is the queue's navigator for a remote sign UI. Presenting a request only
// records it; the UI picks it up by polling GET /api/sign/pending.
type UINavigator struct {
	mu        sync.Mutex
	presented int
	changed   chan struct{}
}

// NewUINavigator creates a navigator with nothing presented.
func NewUINavigator() *UINavigator {
	return &UINavigator{changed: make(chan struct{})}
}

// Navigate wakes every poller waiting for a new request.
func (n *UINavigator) Navigate(_ context.Context, _ string, _ interfaces.SignParams) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.presented++
	close(n.changed)
	n.changed = make(chan struct{})
	return nil
}

// Changed returns a channel closed by the next Navigate call.
func (n *UINavigator) Changed() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.changed
}

// Presented returns how many requests were presented so far.
func (n *UINavigator) Presented() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.presented
}
