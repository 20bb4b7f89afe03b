// pkg/action/action.go

// Package action defines the vocabulary of page interactions the automation
// loop can perform, and an executor that carries them out against a live page.
package action

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind enumerates the supported action types.
type Kind string

const (
	KindClick    Kind = "click"
	KindType     Kind = "type"
	KindNavigate Kind = "navigate"
	KindWait     Kind = "wait"
	KindScroll   Kind = "scroll"
	KindDone     Kind = "done"
)

// Action is a single instruction decided by the oracle. Target references an
// element by its marker index in "[N]" form.
type Action struct {
	Kind              Kind   `json:"action_type"`
	Target            string `json:"target,omitempty"`
	Value             string `json:"value,omitempty"`
	Reasoning         string `json:"reasoning,omitempty"`
	StepDescription   string `json:"step_description,omitempty"`
	CaptureScreenshot bool   `json:"should_capture_screenshot,omitempty"`
	ScrollDirection   string `json:"scroll_direction,omitempty"`
}

// MarkerIndex parses the action target into an element index. Both "[7]" and
// a bare "7" are accepted. Negative indices are rejected.
func (a Action) MarkerIndex() (int, error) {
	raw := strings.TrimSpace(a.Target)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	if raw == "" {
		return 0, fmt.Errorf("action has no target marker")
	}
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid target marker %q: %w", a.Target, err)
	}
	if idx < 0 {
		return 0, fmt.Errorf("target marker must not be negative: %d", idx)
	}
	return idx, nil
}

// Validate checks that the action carries the fields its kind requires.
func (a Action) Validate() error {
	switch a.Kind {
	case KindClick:
		if _, err := a.MarkerIndex(); err != nil {
			return fmt.Errorf("click: %w", err)
		}
	case KindType:
		if _, err := a.MarkerIndex(); err != nil {
			return fmt.Errorf("type: %w", err)
		}
	case KindNavigate:
		if strings.TrimSpace(a.Value) == "" {
			return fmt.Errorf("navigate: value must contain a URL")
		}
	case KindScroll, KindWait, KindDone:
		// No required fields.
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return nil
}

// NormalizeTarget rewrites a bare numeric target into bracketed "[N]" form.
// Non-numeric targets are returned unchanged.
func NormalizeTarget(target string) string {
	trimmed := strings.TrimSpace(target)
	if trimmed == "" {
		return trimmed
	}
	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		return trimmed
	}
	if _, err := strconv.Atoi(trimmed); err == nil {
		return "[" + trimmed + "]"
	}
	return trimmed
}
