// pkg/oracle/oracle.go

// Package oracle asks a vision model what to do next on a page. The model
// sees the goal, the current URL, the marked elements, recent history, and a
// screenshot, and answers with a single structured action.
package oracle

import (
	"context"

	"github.com/xkilldash9x/guidecap-cli/pkg/action"
	"github.com/xkilldash9x/guidecap-cli/pkg/index"
)

// StepSummary is one line of recent history shown to the model.
type StepSummary struct {
	Description string
	Kind        action.Kind
	Success     bool
}

// Query carries everything the model needs to pick the next action.
type Query struct {
	Goal       string
	URL        string
	Title      string
	Elements   []index.Descriptor
	History    []StepSummary
	Screenshot []byte
}

// LoginQuery asks the model to assess an authentication page.
type LoginQuery struct {
	URL        string
	Title      string
	Elements   []index.Descriptor
	Screenshot []byte
}

// LoginDecision is the model's reading of a login flow's state. Action is the
// step it suggests when the flow is stuck; its value may contain the literal
// placeholder "[password]", which the caller substitutes before use.
type LoginDecision struct {
	IsLoginPage bool           `json:"is_login_page"`
	IsLoggedIn  bool           `json:"is_logged_in"`
	Reasoning   string         `json:"reasoning"`
	Action      *action.Action `json:"action,omitempty"`
}

// Oracle decides browser actions. Implementations must be safe for
// concurrent use.
type Oracle interface {
	// NextAction picks the next step toward the goal.
	NextAction(ctx context.Context, q Query) (action.Action, error)

	// AssessLogin classifies an authentication page and optionally suggests
	// a step to unstick the login flow.
	AssessLogin(ctx context.Context, q LoginQuery) (LoginDecision, error)
}
