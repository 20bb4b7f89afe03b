// pkg/oracle/parse.go

package oracle

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/guidecap-cli/pkg/action"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Models wrap JSON in markdown fences more often than not, even when asked
// for raw JSON. Pull the first object out of whatever came back.
var jsonBlockRegex = regexp.MustCompile("(?s)(?:```json\\s*|)(\\{.*\\})(?:```|)")

func extractJSON(raw string) (string, error) {
	match := jsonBlockRegex.FindStringSubmatch(raw)
	if len(match) < 2 {
		return "", fmt.Errorf("no JSON object in response: %.120q", raw)
	}
	return match[1], nil
}

// DecodeAction parses a model response into an Action. The target is
// normalized so a bare "7" and a bracketed "[7]" read the same.
func DecodeAction(raw string) (action.Action, error) {
	var a action.Action
	blob, err := extractJSON(raw)
	if err != nil {
		return a, err
	}
	if err := json.UnmarshalFromString(blob, &a); err != nil {
		return a, fmt.Errorf("decoding action: %w", err)
	}
	a.Kind = action.Kind(strings.ToLower(strings.TrimSpace(string(a.Kind))))
	a.Target = action.NormalizeTarget(a.Target)
	if err := a.Validate(); err != nil {
		return a, err
	}
	return a, nil
}

// DecodeLoginDecision parses a model response into a LoginDecision.
func DecodeLoginDecision(raw string) (LoginDecision, error) {
	var d LoginDecision
	blob, err := extractJSON(raw)
	if err != nil {
		return d, err
	}
	if err := json.UnmarshalFromString(blob, &d); err != nil {
		return d, fmt.Errorf("decoding login decision: %w", err)
	}
	if d.Action != nil {
		d.Action.Kind = action.Kind(strings.ToLower(strings.TrimSpace(string(d.Action.Kind))))
		d.Action.Target = action.NormalizeTarget(d.Action.Target)
	}
	return d, nil
}

// FallbackWait is the action used when the model's response cannot be
// parsed. Waiting is always safe and gives the page a chance to change.
func FallbackWait(reason string) action.Action {
	return action.Action{
		Kind:            action.KindWait,
		Reasoning:       reason,
		StepDescription: "Wait for the page to settle",
	}
}
