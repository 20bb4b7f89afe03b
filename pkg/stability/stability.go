// pkg/stability/stability.go

// Package stability detects when a page has settled after an action, by
// polling a cheap content fingerprint until it stops changing.
package stability

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/guidecap-cli/internal/config"
	"github.com/xkilldash9x/guidecap-cli/pkg/browser"
)

// fingerprintWindow bounds how much of the document participates in the
// fingerprint. The leading slice is enough to notice meaningful changes and
// keeps hashing cheap on huge pages.
const fingerprintWindow = 2048

// Waiter polls the page fingerprint until it holds steady.
type Waiter struct {
	page   browser.Page
	logger *zap.Logger
	cfg    config.StabilityConfig
}

// NewWaiter creates a Waiter bound to a page.
func NewWaiter(page browser.Page, logger *zap.Logger, cfg config.StabilityConfig) *Waiter {
	return &Waiter{
		page:   page,
		logger: logger.Named("stability"),
		cfg:    cfg,
	}
}

// Fingerprint hashes the current URL plus the leading slice of the document.
func (w *Waiter) Fingerprint(ctx context.Context) (string, error) {
	loc, err := w.page.Location(ctx)
	if err != nil {
		return "", err
	}
	html, err := w.page.Content(ctx)
	if err != nil {
		return "", err
	}
	if len(html) > fingerprintWindow {
		html = html[:fingerprintWindow]
	}
	sum := sha1.Sum([]byte(loc.URL + html))
	return hex.EncodeToString(sum[:]), nil
}

// Wait blocks until the fingerprint has been identical for the configured
// number of consecutive polls, then gives the network a chance to settle.
// It reports false when the page never stabilized within the poll budget;
// callers typically proceed anyway.
func (w *Waiter) Wait(ctx context.Context) bool {
	var last string
	consecutive := 0

	for attempt := 0; attempt < w.cfg.MaxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(w.cfg.PollInterval):
		}

		fp, err := w.Fingerprint(ctx)
		if err != nil {
			w.logger.Debug("Fingerprint failed, restarting stability count", zap.Error(err))
			last = ""
			consecutive = 0
			continue
		}

		if fp == last {
			consecutive++
		} else {
			consecutive = 1
		}
		last = fp

		if consecutive >= w.cfg.StableThreshold {
			// Stable DOM; give outstanding requests a moment, but do not
			// block on pages that never go fully idle.
			if err := w.page.WaitQuiescent(ctx, w.cfg.QuiescenceTimeout); err != nil {
				w.logger.Debug("Network still active after DOM stabilized", zap.Error(err))
			}
			return true
		}
	}

	w.logger.Debug("Page did not stabilize within poll budget", zap.Int("polls", w.cfg.MaxPolls))
	return false
}
