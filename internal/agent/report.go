package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/osinthq/inquest/internal/session"
)

// BuildReport renders the final report text from the session. This is
// the raw report: the publication boundary scrubs it before it leaves
// the runtime.
func BuildReport(s *session.Session) string {
	var b strings.Builder
	sum := s.Summary()

	fmt.Fprintf(&b, "# Investigation Report\n\n")
	fmt.Fprintf(&b, "**Goal:** %s\n\n", s.Goal)
	fmt.Fprintf(&b, "**Started:** %s | **Turns:** %d | **Findings:** %d | **Entities:** %d\n\n",
		s.StartedAt.Format("2006-01-02 15:04 UTC"), sum.Turns, sum.FindingCount, sum.EntityCount)

	if len(s.Findings) > 0 {
		b.WriteString("## Findings\n\n")
		for i, f := range s.Findings {
			fmt.Fprintf(&b, "%d. [%s] %s (confidence %.2f)\n", i+1, f.Source, f.Summary, f.Confidence)
		}
		b.WriteString("\n")
	}

	open := s.OpenLeads()
	if len(open) > 0 {
		b.WriteString("## Open Leads\n\n")
		for _, l := range open {
			fmt.Fprintf(&b, "- (%.2f) %s\n", l.Priority, l.Description)
		}
		b.WriteString("\n")
	}

	if len(s.EntityIndex) > 0 {
		b.WriteString("## Entities\n\n")
		for _, id := range sortedKeys(s.EntityIndex) {
			e := s.EntityIndex[id]
			fmt.Fprintf(&b, "- %s (%s)\n", e.Name(), e.Schema)
		}
		b.WriteString("\n")
	}

	if len(s.ToolHistory) > 0 {
		fmt.Fprintf(&b, "## Method\n\nTools used: %s\n", strings.Join(sum.UniqueTools, ", "))
	}

	return b.String()
}

// SummaryLine renders the one-line completion summary for progress
// events and chat adapters.
func SummaryLine(s *session.Session) string {
	sum := s.Summary()
	return fmt.Sprintf("%d findings, %d entities, %d open leads after %d turns",
		sum.FindingCount, sum.EntityCount, sum.LeadsOpen, sum.Turns)
}

func sortedKeys(m map[string]*session.Entity) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
