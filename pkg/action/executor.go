// pkg/action/executor.go
package action

import (
	"context"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/guidecap-cli/internal/config"
	"github.com/xkilldash9x/guidecap-cli/pkg/browser"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const scrollStep = 500

// Executor carries actions out against a page. Every Execute call reports
// success or failure; failures never abort a run, the caller's loop decides
// what to do next.
type Executor struct {
	page   browser.Page
	logger *zap.Logger
	net    config.NetworkConfig
}

// NewExecutor creates an executor bound to a page.
func NewExecutor(page browser.Page, logger *zap.Logger, net config.NetworkConfig) *Executor {
	return &Executor{
		page:   page,
		logger: logger.Named("executor"),
		net:    net,
	}
}

// Execute performs a single action and reports whether it succeeded.
func (e *Executor) Execute(ctx context.Context, a Action) bool {
	log := e.logger.With(zap.String("kind", string(a.Kind)), zap.String("target", a.Target))

	switch a.Kind {
	case KindClick:
		return e.click(ctx, a, log)
	case KindType:
		return e.typeValue(ctx, a, log)
	case KindNavigate:
		return e.navigate(ctx, a, log)
	case KindWait:
		return e.wait(ctx, log)
	case KindScroll:
		return e.scroll(ctx, a, log)
	case KindDone:
		// Completion signal; nothing to do on the page.
		return true
	default:
		log.Warn("Refusing to execute unknown action kind")
		return false
	}
}

// resolution describes a marker freshly located in the live DOM.
type resolution struct {
	Found     bool    `json:"found"`
	Tag       string  `json:"tag"`
	InputType string  `json:"inputType"`
	Editable  bool    `json:"editable"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// resolve locates a marker in the current DOM and scrolls it into view.
// Markers are re-resolved at action time because the page may have changed
// since the elements were indexed.
func (e *Executor) resolve(ctx context.Context, marker int) (resolution, error) {
	var res resolution
	err := e.page.Evaluate(ctx, fmt.Sprintf(resolveScriptTemplate, marker), &res)
	return res, err
}

// click resolves the marker and clicks it, preferring trusted input events
// and falling back to synthesized DOM events. When the marker cannot be
// resolved, the immediate neighbors (+1, then -1) are tried; vision models
// are frequently off by one on dense pages.
func (e *Executor) click(ctx context.Context, a Action, log *zap.Logger) bool {
	idx, err := a.MarkerIndex()
	if err != nil {
		log.Warn("Click rejected", zap.Error(err))
		return false
	}

	for _, candidate := range []int{idx, idx + 1, idx - 1} {
		if candidate < 0 {
			continue
		}
		res, err := e.resolve(ctx, candidate)
		if err != nil || !res.Found {
			continue
		}

		target := candidate
		// The model sometimes points a "click the button" step at the text
		// field right before the button. Probe the next marker when that happens.
		if candidate == idx && wantsButton(a.StepDescription) && isTextEntry(res) {
			if alt, altErr := e.resolve(ctx, idx+1); altErr == nil && alt.Found && !isTextEntry(alt) {
				log.Debug("Step intent disagrees with target element, using neighbor",
					zap.Int("marker", idx), zap.Int("neighbor", idx+1))
				target = idx + 1
				res = alt
			}
		}

		if e.clickAt(ctx, target, res, log) {
			if target != idx {
				log.Info("Clicked neighboring marker after resolution miss",
					zap.Int("requested", idx), zap.Int("clicked", target))
			}
			return true
		}
	}

	log.Warn("Click failed: no resolvable marker", zap.Int("marker", idx))
	return false
}

// clickAt performs the actual click on a resolved element.
func (e *Executor) clickAt(ctx context.Context, marker int, res resolution, log *zap.Logger) bool {
	if err := e.page.Click(ctx, res.X, res.Y); err == nil {
		return true
	} else {
		log.Debug("Trusted click failed, falling back to DOM events", zap.Error(err))
	}

	var ok bool
	if err := e.page.Evaluate(ctx, fmt.Sprintf(jsClickScriptTemplate, marker), &ok); err != nil {
		log.Debug("DOM event click failed", zap.Error(err))
		return false
	}
	return ok
}

// typeValue enters text into the element behind the marker. Non-text inputs
// trigger a short forward scan for the real field; contenteditable surfaces
// are focused and typed into with key events.
func (e *Executor) typeValue(ctx context.Context, a Action, log *zap.Logger) bool {
	idx, err := a.MarkerIndex()
	if err != nil {
		log.Warn("Type rejected", zap.Error(err))
		return false
	}

	marker := idx
	res, err := e.resolve(ctx, marker)
	if err != nil || !res.Found {
		log.Warn("Type failed: marker not resolvable", zap.Int("marker", idx))
		return false
	}

	// Checkboxes, radios, and buttons cannot take text. Scan forward a few
	// markers for a field that can.
	if !acceptsText(res) {
		found := false
		for offset := 1; offset <= 4; offset++ {
			alt, altErr := e.resolve(ctx, idx+offset)
			if altErr == nil && alt.Found && acceptsText(alt) {
				marker = idx + offset
				res = alt
				found = true
				log.Debug("Redirected typing to nearby text field",
					zap.Int("requested", idx), zap.Int("marker", marker))
				break
			}
		}
		if !found {
			log.Warn("Type failed: no text-accepting field near marker", zap.Int("marker", idx))
			return false
		}
	}

	// Rich-text editors ignore value assignment; click to focus, then type.
	if res.Editable || res.Tag == "div" {
		if err := e.page.Click(ctx, res.X, res.Y); err != nil {
			log.Warn("Type failed: could not focus editable surface", zap.Error(err))
			return false
		}
		if err := e.page.TypeText(ctx, a.Value); err != nil {
			log.Warn("Type failed: keyboard input rejected", zap.Error(err))
			return false
		}
		return true
	}

	// Standard inputs get a direct value assignment with input/change events
	// so framework bindings notice.
	quoted, err := json.Marshal(a.Value)
	if err != nil {
		log.Warn("Type failed: value not encodable", zap.Error(err))
		return false
	}
	var ok bool
	if err := e.page.Evaluate(ctx, fmt.Sprintf(setValueScriptTemplate, marker, string(quoted)), &ok); err == nil && ok {
		return true
	}

	// Fall back to focus-and-type.
	log.Debug("Value assignment failed, falling back to key events", zap.Int("marker", marker))
	if err := e.page.Click(ctx, res.X, res.Y); err != nil {
		return false
	}
	return e.page.TypeText(ctx, a.Value) == nil
}

// navigate loads the URL in the action value. Navigation timeouts are not
// fatal: slow pages are often usable well before onload fires.
func (e *Executor) navigate(ctx context.Context, a Action, log *zap.Logger) bool {
	url := strings.TrimSpace(a.Value)
	if url == "" {
		log.Warn("Navigate rejected: empty URL")
		return false
	}
	if err := e.page.Navigate(ctx, url); err != nil {
		log.Warn("Navigation did not complete cleanly, continuing", zap.String("url", url), zap.Error(err))
	}
	return true
}

// wait blocks until the network settles, then allows a short settle window.
// A quiescence timeout counts as success: endless analytics beacons should
// not stall the run.
func (e *Executor) wait(ctx context.Context, log *zap.Logger) bool {
	if err := e.page.WaitQuiescent(ctx, e.net.QuiescenceTimeout); err != nil {
		log.Debug("Network never fully settled", zap.Error(err))
	}
	select {
	case <-time.After(e.net.PostLoadSettle):
	case <-ctx.Done():
	}
	return true
}

// scroll moves the viewport by a fixed step in the requested direction.
func (e *Executor) scroll(ctx context.Context, a Action, log *zap.Logger) bool {
	delta := float64(scrollStep)
	if strings.EqualFold(a.ScrollDirection, "up") {
		delta = -delta
	}
	if err := e.page.ScrollBy(ctx, delta); err != nil {
		log.Warn("Scroll failed", zap.Error(err))
		return false
	}
	return true
}

// wantsButton reports whether a step description sounds like it is about
// pressing a button rather than filling a field.
func wantsButton(description string) bool {
	d := strings.ToLower(description)
	for _, kw := range []string{"button", "continue", "submit", "next", "sign in", "log in"} {
		if strings.Contains(d, kw) {
			return true
		}
	}
	return false
}

// isTextEntry reports whether the resolved element is a free-text field.
func isTextEntry(res resolution) bool {
	if res.Tag == "textarea" {
		return true
	}
	if res.Tag != "input" {
		return false
	}
	switch res.InputType {
	case "password", "text", "email":
		return true
	}
	return false
}

// acceptsText reports whether the resolved element can receive typed text.
func acceptsText(res resolution) bool {
	if res.Editable || res.Tag == "textarea" {
		return true
	}
	if res.Tag == "div" {
		return true
	}
	if res.Tag != "input" {
		return false
	}
	switch res.InputType {
	case "checkbox", "radio", "submit", "button":
		return false
	}
	return true
}
