package prompts

import (
	"fmt"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
)

// ChatBIContext is what the agent needs to know to draw charts.
type ChatBIContext struct {
	DataSource string
	EntitySet  string
	EntityType *models.EntityType
	Today      time.Time
}

// BuildChatBISystemPrompt creates the system prompt for the chart agent. It
// lists the semantic model so the model emits names that repair cleanly.
func BuildChatBISystemPrompt(c ChatBIContext) string {
	var prompt strings.Builder

	prompt.WriteString("# Data Analyst\n\n")
	prompt.WriteString("You answer business questions about one dataset. ")
	prompt.WriteString("Always answer by calling the answerQuestion tool exactly once. ")
	prompt.WriteString("Put a short explanation in `preface`. ")
	prompt.WriteString("Add `chartType`, `dimensions` and `measures` only when a chart helps; leave them out for purely textual answers.\n\n")

	if !c.Today.IsZero() {
		prompt.WriteString(fmt.Sprintf("Today is %s.\n\n", c.Today.Format("2006-01-02")))
	}

	et := c.EntityType
	if et == nil {
		prompt.WriteString("No dataset is selected. Ask the user which data they want to look at.\n")
		return prompt.String()
	}

	prompt.WriteString("## Dataset\n\n")
	prompt.WriteString(fmt.Sprintf("- dataSource: `%s`\n", c.DataSource))
	prompt.WriteString(fmt.Sprintf("- entitySet: `%s`", c.EntitySet))
	if et.Caption != "" {
		prompt.WriteString(fmt.Sprintf(" (%s)", et.Caption))
	}
	prompt.WriteString("\n\n")

	prompt.WriteString("## Dimensions\n\n")
	for _, d := range et.Dimensions {
		prompt.WriteString(fmt.Sprintf("- `%s`%s", d.Name, caption(d.Caption)))
		if d.IsTime() {
			prompt.WriteString(" [time]")
		}
		prompt.WriteString("\n")
		if len(d.Hierarchies) == 0 {
			continue
		}
		for _, h := range d.Hierarchies {
			levels := make([]string, len(h.Levels))
			for i, l := range h.Levels {
				levels[i] = l.Name
			}
			prompt.WriteString(fmt.Sprintf("  - hierarchy `%s`: %s\n", h.Name, strings.Join(levels, " > ")))
		}
	}
	prompt.WriteString("\n")

	prompt.WriteString("## Measures\n\n")
	for _, m := range et.Measures {
		prompt.WriteString(fmt.Sprintf("- `%s`%s (%s)\n", m.Name, caption(m.Caption), m.GetAggregator()))
	}
	prompt.WriteString("\n")

	if len(et.Variables) > 0 {
		prompt.WriteString("## Variables\n\n")
		for _, v := range et.Variables {
			prompt.WriteString(fmt.Sprintf("- `%s`%s filters `%s`\n", v.Name, caption(v.Caption), v.ReferenceDimension))
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("- Use the names above exactly as written.\n")
	prompt.WriteString("- Use `timeSlicers` for date filters, `slicers` for member filters.\n")
	prompt.WriteString("- When the tool returns an error, do not retry; ask the user for what is missing.\n")

	return prompt.String()
}

func caption(s string) string {
	if s == "" {
		return ""
	}
	return " - " + s
}
