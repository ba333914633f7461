package policy

import (
	"context"
	"fmt"

	"github.com/osinthq/inquest/internal/session"
)

// concludeAfterFindings is the finding count at which the heuristic
// concludes once no open leads remain.
const concludeAfterFindings = 3

// Heuristic is the deterministic fallback policy. Decision order:
//  1. no findings yet: seed with an entity search on the goal
//  2. top open lead names a tool: follow the lead
//  3. no leads and enough findings accumulated: conclude
//  4. otherwise: generic next step (news search on the goal)
type Heuristic struct{}

// NewHeuristic creates the heuristic policy.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

func (h *Heuristic) Decide(ctx context.Context, s *session.Session) Action {
	if len(s.Findings) == 0 {
		return Action{
			Tool:      "entity_search",
			Args:      map[string]interface{}{"query": s.Goal},
			Reasoning: "no findings yet, seeding with an entity search on the goal",
		}
	}

	open := s.OpenLeads()
	if len(open) > 0 {
		top := open[0]
		if top.Tool != "" {
			query := top.Query
			if query == "" {
				query = top.Description
			}
			return Action{
				Tool:      top.Tool,
				Args:      map[string]interface{}{"query": query, "lead_id": top.ID},
				Reasoning: fmt.Sprintf("following lead (priority %.2f): %s", top.Priority, top.Description),
			}
		}
		// Lead without a suggested tool: investigate it generically.
		return Action{
			Tool:      "news_search",
			Args:      map[string]interface{}{"query": top.Description, "lead_id": top.ID},
			Reasoning: fmt.Sprintf("lead has no suggested tool, checking news coverage: %s", top.Description),
		}
	}

	if len(s.Findings) >= concludeAfterFindings {
		return Action{
			Tool:      ToolConclude,
			Reasoning: fmt.Sprintf("no open leads and %d findings accumulated, concluding", len(s.Findings)),
		}
	}

	return Action{
		Tool:      "news_search",
		Args:      map[string]interface{}{"query": s.Goal},
		Reasoning: "no actionable leads, broadening with a news search on the goal",
	}
}
