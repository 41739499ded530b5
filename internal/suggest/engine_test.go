// ABOUTME: Tests for the keyword-claim suggestion engine
// ABOUTME: Covers exclusion, keyword dedup, one-per-agent, and empty input

package suggest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parley-chat/parley/internal/store"
)

func testAgents() []*store.Agent {
	return []*store.Agent{
		{ID: "finance", Name: "Finance", Specialties: []string{"tax", "invoice"}},
		{ID: "legal", Name: "Legal", Specialties: []string{"tax", "contract"}},
		{ID: "support", Name: "Support", Specialties: []string{"refund"}},
	}
}

func TestSuggest_EmptyInput(t *testing.T) {
	assert.Nil(t, Suggest("", testAgents(), "support"))
	assert.Nil(t, Suggest("tax question", nil, "support"))
}

func TestSuggest_SingleMatch(t *testing.T) {
	got := Suggest("I need a refund", testAgents(), "finance")

	assert.Len(t, got, 1)
	assert.Equal(t, "support", got[0].AgentID)
	assert.Equal(t, "Support", got[0].Label)
	assert.Equal(t, "Matches: refund", got[0].Reason)
}

func TestSuggest_CurrentAgentExcluded(t *testing.T) {
	got := Suggest("invoice for my taxes", testAgents(), "finance")

	// Finance matches both keywords but is the current agent
	for _, s := range got {
		assert.NotEqual(t, "finance", s.AgentID)
	}
}

func TestSuggest_KeywordClaimedOnce(t *testing.T) {
	// "tax" appears in both Finance's and Legal's specialties. Finance
	// is scanned first and claims it; Legal falls through to "contract".
	got := Suggest("tax and contract advice", testAgents(), "support")

	assert.Len(t, got, 2)
	assert.Equal(t, "finance", got[0].AgentID)
	assert.Equal(t, "Matches: tax", got[0].Reason)
	assert.Equal(t, "legal", got[1].AgentID)
	assert.Equal(t, "Matches: contract", got[1].Reason)
}

func TestSuggest_ExcludedAgentClaimsNothing(t *testing.T) {
	// Finance is the current agent; it must not claim "tax" either, so
	// Legal matches on its first specialty, not its second.
	got := Suggest("tax and contract", testAgents(), "finance")

	assert.Equal(t, []Suggestion{
		{AgentID: "legal", Label: "Legal", Reason: "Matches: tax"},
	}, got)
}

func TestSuggest_ClaimedKeywordExcludesLaterAgent(t *testing.T) {
	// Only "tax" matches. Finance claims it; Legal has nothing left.
	got := Suggest("tax question", testAgents(), "support")

	assert.Len(t, got, 1)
	assert.Equal(t, "finance", got[0].AgentID)
}

func TestSuggest_OneSuggestionPerAgent(t *testing.T) {
	got := Suggest("tax on this invoice", testAgents(), "support")

	seen := make(map[string]int)
	for _, s := range got {
		seen[s.AgentID]++
	}
	for agentID, count := range seen {
		assert.Equal(t, 1, count, "agent %s suggested more than once", agentID)
	}
}

func TestSuggest_CaseInsensitive(t *testing.T) {
	got := Suggest("TAX QUESTION", testAgents(), "support")

	assert.Len(t, got, 1)
	assert.Equal(t, "Matches: tax", got[0].Reason)
}

func TestSuggest_NoSpecialtiesSkipped(t *testing.T) {
	agents := []*store.Agent{
		{ID: "blank", Name: "Blank"},
		{ID: "legal", Name: "Legal", Specialties: []string{"contract"}},
	}
	got := Suggest("contract review", agents, "")

	assert.Len(t, got, 1)
	assert.Equal(t, "legal", got[0].AgentID)
}

func TestSuggest_NoMatches(t *testing.T) {
	got := Suggest("hello there", testAgents(), "")
	assert.Empty(t, got)
}
