// pkg/index/index.go

// Package index discovers the interactive elements on a page and overlays
// numbered visual markers on them, so a vision model can refer to elements
// by index instead of by selector.
package index

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/guidecap-cli/pkg/browser"
)

// Descriptor summarizes one marked interactive element.
type Descriptor struct {
	Marker      int    `json:"marker"`
	Tag         string `json:"tag"`
	Text        string `json:"text,omitempty"`
	Role        string `json:"role,omitempty"`
	AriaLabel   string `json:"ariaLabel,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	InputType   string `json:"inputType,omitempty"`
	Href        string `json:"href,omitempty"`
	Editable    bool   `json:"editable,omitempty"`
}

// Label renders a short human-readable identity for the element, preferring
// visible text, then accessibility attributes.
func (d Descriptor) Label() string {
	switch {
	case d.Text != "":
		return d.Text
	case d.AriaLabel != "":
		return d.AriaLabel
	case d.Placeholder != "":
		return d.Placeholder
	default:
		return d.Tag
	}
}

// Indexer marks and unmarks interactive elements on a page.
type Indexer struct {
	page   browser.Page
	logger *zap.Logger
}

// New creates an Indexer bound to a page.
func New(page browser.Page, logger *zap.Logger) *Indexer {
	return &Indexer{
		page:   page,
		logger: logger.Named("index"),
	}
}

// Mark scans the page for interactive elements, overlays numbered labels on
// them, and returns their descriptors in marker order. Indexing failures are
// not fatal: an empty slice is returned so callers can continue with a page
// that simply has nothing to interact with.
func (ix *Indexer) Mark(ctx context.Context) []Descriptor {
	var out []Descriptor
	if err := ix.page.Evaluate(ctx, markScript, &out); err != nil {
		ix.logger.Warn("Element indexing failed", zap.Error(err))
		return []Descriptor{}
	}
	if out == nil {
		out = []Descriptor{}
	}
	ix.logger.Debug("Marked interactive elements", zap.Int("count", len(out)))
	return out
}

// Unmark removes all marker overlays and tracking attributes. It is safe to
// call when no markers are present.
func (ix *Indexer) Unmark(ctx context.Context) {
	if err := ix.page.Evaluate(ctx, unmarkScript, nil); err != nil {
		ix.logger.Debug("Failed to remove markers", zap.Error(err))
	}
}

// Highlight briefly outlines the element behind a marker. Used to make
// screenshots show which element an action targeted.
func (ix *Indexer) Highlight(ctx context.Context, marker int) {
	script := fmt.Sprintf(highlightScriptTemplate, marker)
	if err := ix.page.Evaluate(ctx, script, nil); err != nil {
		ix.logger.Debug("Failed to highlight element", zap.Int("marker", marker), zap.Error(err))
	}
}
