package dispatcher

import (
	"fmt"
	"strings"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/github"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/models"
)

// FooterPrefix starts the hidden marker appended to every issue body.
const FooterPrefix = "<!-- worksync:"

// IssueTitle returns "[<id>] <title>".
func IssueTitle(e *models.Entity) string {
	return fmt.Sprintf("[%s] %s", e.ID, e.Title)
}

// IssueBody summarizes the entity for the remote issue.
func IssueBody(e *models.Entity) string {
	var b strings.Builder
	b.WriteString("| Field | Value |\n|---|---|\n")
	row := func(name, value string) {
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(&b, "| %s | %s |\n", name, escapeCell(value))
	}
	row("ID", "`"+e.ID+"`")
	row("Kind", string(e.Kind))
	row("Type", e.Type)
	row("Status", e.Status)
	row("Priority", e.Priority)
	row("Component", e.Component)

	if desc := strings.TrimSpace(github.SanitizeContent(e.Description)); desc != "" {
		b.WriteString("\n")
		b.WriteString(desc)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\n%s%s -->\n", FooterPrefix, e.Ref())
	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
