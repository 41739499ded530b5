// ABOUTME: Chain-mode toggle and secondary agent selection for dual-agent sends
// ABOUTME: Decides whether a send dispatches to one agent or a chained pair

package chain

import (
	"sync"

	"github.com/parley-chat/parley/internal/store"
)

// Coordinator holds the chain-mode toggle and the selected secondary
// agent. State changes only through Enable/Disable, never inferred.
// Disabling mid-session does not affect an already-dispatched chained
// request; callers snapshot the pair at dispatch time via Pair.
type Coordinator struct {
	mu        sync.RWMutex
	enabled   bool
	secondary *store.Agent
}

// New creates a Coordinator with chaining disabled.
func New() *Coordinator {
	return &Coordinator{}
}

// Enable turns chain mode on with the given secondary agent.
func (c *Coordinator) Enable(secondary *store.Agent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = true
	c.secondary = secondary
}

// Disable turns chain mode off and clears the secondary agent, so a stale
// pairing cannot silently re-activate on a later Enable. Callers must
// select a secondary agent again.
func (c *Coordinator) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = false
	c.secondary = nil
}

// ShouldChain reports whether the next send is a dual-agent dispatch.
func (c *Coordinator) ShouldChain() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled && c.secondary != nil
}

// Pair returns the current chaining decision and the secondary agent in
// one read, so a send cannot observe enabled=true with a cleared agent.
func (c *Coordinator) Pair() (bool, *store.Agent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.enabled || c.secondary == nil {
		return false, nil
	}
	return true, c.secondary
}

// Secondary returns the selected secondary agent, or nil.
func (c *Coordinator) Secondary() *store.Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.secondary
}
