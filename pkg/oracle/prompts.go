// pkg/oracle/prompts.go

package oracle

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/guidecap-cli/pkg/index"
)

const actionSchema = `Respond with a single JSON object and nothing else:
{
  "reasoning": "why this is the right next step",
  "action_type": "click" | "type" | "navigate" | "wait" | "scroll" | "done",
  "target": "[N]" (the marker of the element to act on, for click/type),
  "value": "text to type or URL to open",
  "should_capture_screenshot": true | false,
  "step_description": "one imperative sentence describing the step for a user guide",
  "scroll_direction": "up" | "down"
}
Rules:
- Act on exactly one element per step, referenced by its [N] marker.
- Use "done" only when the goal is fully achieved on the current page.
- If the page looks mid-load or empty, use "wait".
- Never invent markers that are not in the element list.
- Never write credential values into "value"; use the placeholder [password] for secrets.`

const loginSchema = `Respond with a single JSON object and nothing else:
{
  "is_login_page": true | false,
  "is_logged_in": true | false,
  "reasoning": "what the page state shows",
  "action": { "action_type": ..., "target": "[N]", "value": ..., "step_description": ... } or null
}
Include "action" only when a concrete step would move the login forward.
Never write credential values into "value"; use the placeholder [password].`

func buildActionPrompt(q Query, maxElements, historyWindow int) string {
	var b strings.Builder
	b.WriteString("You are driving a web browser to accomplish a goal, one action at a time.\n\n")
	fmt.Fprintf(&b, "GOAL: %s\n\n", q.Goal)
	fmt.Fprintf(&b, "CURRENT PAGE: %s\n", q.URL)
	if q.Title != "" {
		fmt.Fprintf(&b, "TITLE: %s\n", q.Title)
	}
	b.WriteString("\nINTERACTIVE ELEMENTS (marker, tag, label):\n")
	b.WriteString(formatElements(q.Elements, maxElements))
	if hist := formatHistory(q.History, historyWindow); hist != "" {
		b.WriteString("\nRECENT ACTIONS (oldest first):\n")
		b.WriteString(hist)
	}
	b.WriteString("\n")
	b.WriteString(actionSchema)
	return b.String()
}

func buildLoginPrompt(q LoginQuery, maxElements int) string {
	var b strings.Builder
	b.WriteString("You are assessing the authentication state of a web page.\n\n")
	fmt.Fprintf(&b, "CURRENT PAGE: %s\n", q.URL)
	if q.Title != "" {
		fmt.Fprintf(&b, "TITLE: %s\n", q.Title)
	}
	b.WriteString("\nINTERACTIVE ELEMENTS (marker, tag, label):\n")
	b.WriteString(formatElements(q.Elements, maxElements))
	b.WriteString("\n")
	b.WriteString(loginSchema)
	return b.String()
}

func formatElements(els []index.Descriptor, max int) string {
	if len(els) == 0 {
		return "(none found)\n"
	}
	if max > 0 && len(els) > max {
		els = els[:max]
	}
	var b strings.Builder
	for _, el := range els {
		fmt.Fprintf(&b, "[%d] <%s>", el.Marker, el.Tag)
		if el.InputType != "" {
			fmt.Fprintf(&b, " type=%s", el.InputType)
		}
		if el.Role != "" {
			fmt.Fprintf(&b, " role=%s", el.Role)
		}
		if label := el.Label(); label != "" && label != el.Tag {
			fmt.Fprintf(&b, " %q", label)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatHistory(history []StepSummary, window int) string {
	if len(history) == 0 {
		return ""
	}
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	var b strings.Builder
	for _, h := range history {
		outcome := "ok"
		if !h.Success {
			outcome = "failed"
		}
		fmt.Fprintf(&b, "- [%s] %s (%s)\n", h.Kind, h.Description, outcome)
	}
	return b.String()
}
