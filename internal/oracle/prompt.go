package oracle

import (
	"fmt"
	"strings"

	"github.com/communityfix/maintenance-service/internal/domain"
)

// maxContextTickets caps how many recent tickets are embedded in the prompt.
const maxContextTickets = 20

// BuildPrompt renders the classification request for one ticket draft.
// The reply contract matches wireClassification in result.go.
func BuildPrompt(draft TicketDraft, cctx CommunityContext) string {
	var b strings.Builder

	b.WriteString("You triage maintenance tickets for a residential community.\n")
	b.WriteString("Analyze the new report below and respond with a single JSON object, no prose, with these fields:\n")
	b.WriteString(`predicted_category (one of: `)
	for i, cat := range domain.Categories {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(cat))
	}
	b.WriteString("), predicted_urgency (low|high), confidence (0..1), ")
	b.WriteString("is_spam (bool), spam_confidence (0..1), spam_reason, ")
	b.WriteString("similar_tickets (ids from the recent tickets list), should_merge (bool), merge_target_id, ")
	b.WriteString("recommended_technician (id), alternative_technicians (ids), ")
	b.WriteString("required_tools, required_materials, estimated_duration_minutes, difficulty_level (easy|medium|hard).\n")
	b.WriteString("Set should_merge only when the report clearly duplicates one of the recent tickets.\n\n")

	b.WriteString("New report:\n")
	fmt.Fprintf(&b, "Title: %s\n", draft.Title)
	fmt.Fprintf(&b, "Description: %s\n", draft.Description)
	fmt.Fprintf(&b, "Reporter category: %s\n", draft.Category)
	fmt.Fprintf(&b, "Location: %s\n", draft.Location)
	fmt.Fprintf(&b, "Reporter priority: %s\n", draft.Priority)
	if len(draft.Images) > 0 {
		fmt.Fprintf(&b, "Attached images (%d):\n", len(draft.Images))
		for _, img := range draft.Images {
			fmt.Fprintf(&b, "- %s\n", img)
		}
	}

	tickets := cctx.RecentTickets
	if len(tickets) > maxContextTickets {
		tickets = tickets[:maxContextTickets]
	}
	if len(tickets) > 0 {
		b.WriteString("\nRecent tickets in this community:\n")
		for _, t := range tickets {
			fmt.Fprintf(&b, "- id=%s status=%s category=%s location=%s title=%s\n",
				t.ID, t.Status, t.Category, t.Location, t.Title)
		}
	}

	if len(cctx.Technicians) > 0 {
		b.WriteString("\nTechnician roster:\n")
		for _, tech := range cctx.Technicians {
			skills := make([]string, 0, len(tech.Expertise))
			for _, s := range tech.Expertise {
				skills = append(skills, string(s))
			}
			fmt.Fprintf(&b, "- id=%s name=%s expertise=%s\n", tech.ID, tech.Name, strings.Join(skills, ","))
		}
	}

	return b.String()
}
