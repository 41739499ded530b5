// ABOUTME: Tests for the chain-mode coordinator
// ABOUTME: Verifies enable/disable transitions and the atomic pair snapshot

package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parley-chat/parley/internal/store"
)

func TestCoordinator_DisabledByDefault(t *testing.T) {
	c := New()

	assert.False(t, c.ShouldChain())
	assert.Nil(t, c.Secondary())

	chained, secondary := c.Pair()
	assert.False(t, chained)
	assert.Nil(t, secondary)
}

func TestCoordinator_Enable(t *testing.T) {
	c := New()
	legal := &store.Agent{ID: "legal", Name: "Legal"}

	c.Enable(legal)

	assert.True(t, c.ShouldChain())
	assert.Equal(t, legal, c.Secondary())

	chained, secondary := c.Pair()
	assert.True(t, chained)
	assert.Equal(t, "legal", secondary.ID)
}

func TestCoordinator_DisableClearsSecondary(t *testing.T) {
	c := New()
	c.Enable(&store.Agent{ID: "legal"})
	c.Disable()

	assert.False(t, c.ShouldChain())
	assert.Nil(t, c.Secondary())

	chained, secondary := c.Pair()
	assert.False(t, chained)
	assert.Nil(t, secondary)
}

func TestCoordinator_ReEnableReplacesSecondary(t *testing.T) {
	c := New()
	c.Enable(&store.Agent{ID: "legal"})
	c.Enable(&store.Agent{ID: "finance"})

	_, secondary := c.Pair()
	assert.Equal(t, "finance", secondary.ID)
}

func TestCoordinator_PairSnapshotStable(t *testing.T) {
	c := New()
	c.Enable(&store.Agent{ID: "legal"})

	// A snapshot taken before Disable keeps its agent
	chained, secondary := c.Pair()
	c.Disable()

	assert.True(t, chained)
	assert.Equal(t, "legal", secondary.ID)
}
