// ABOUTME: Agent suggestion engine matching in-progress input against specialties
// ABOUTME: Pure keyword-claim scan, safe to run on every keystroke

package suggest

import (
	"fmt"
	"strings"

	"github.com/parley-chat/parley/internal/store"
)

// Suggestion proposes an alternate agent while the user is composing a
// message. Suggestions are ephemeral: recomputed on every input change,
// never persisted. Callers must replace, not merge, the previous list.
type Suggestion struct {
	AgentID string `json:"agent_id"`
	Label   string `json:"label"`
	Reason  string `json:"reason"`
}

// Suggest scans the message against every agent's specialty keywords and
// returns ranked alternate-agent suggestions.
//
// Matching is case-insensitive substring containment. Agents are scanned
// in input order; each agent's specialties in declared order. An agent
// contributes at most one suggestion, and a keyword that already produced
// a suggestion is never reused by a later agent (dedup by keyword, not by
// agent). The current agent is never suggested. Agents with no
// specialties are skipped.
//
// Pure function: no side effects, nil on empty input or empty agent list.
func Suggest(message string, agents []*store.Agent, excludeAgentID string) []Suggestion {
	if message == "" || len(agents) == 0 {
		return nil
	}

	text := strings.ToLower(message)

	// Keywords already claimed by an earlier suggestion
	claimed := make(map[string]bool)
	var suggestions []Suggestion

	for _, agent := range agents {
		if agent.ID == excludeAgentID {
			continue
		}
		if len(agent.Specialties) == 0 {
			continue
		}

		for _, raw := range agent.Specialties {
			keyword := strings.ToLower(raw)
			if keyword == "" {
				continue
			}
			if strings.Contains(text, keyword) && !claimed[keyword] {
				claimed[keyword] = true
				suggestions = append(suggestions, Suggestion{
					AgentID: agent.ID,
					Label:   agent.Name,
					Reason:  fmt.Sprintf("Matches: %s", keyword),
				})
				// One suggestion per agent
				break
			}
		}
	}

	return suggestions
}
