// pkg/browser/session.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/guidecap-cli/internal/config"
)

// ensure Session implements the interface
var _ Page = (*Session)(nil)

// Session manages a single, isolated browser tab using CDP.
type Session struct {
	id      string
	logger  *zap.Logger
	persona Persona

	navigationTimeout time.Duration
	postLoadSettle    time.Duration

	// allocatorCtx is the context of the main browser process.
	allocatorCtx context.Context

	sessionCtx    context.Context
	sessionCancel context.CancelFunc

	// inflight tracks outstanding network requests for quiescence detection.
	inflight   map[network.RequestID]struct{}
	inflightMu sync.Mutex

	onClose  func()
	isClosed bool
	mu       sync.Mutex
}

// ID returns the unique identifier for this session.
func (s *Session) ID() string { return s.id }

// initialize creates the browser tab, applies stealth, and starts network tracking.
func (s *Session) initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.sessionCtx != nil {
		s.mu.Unlock()
		return fmt.Errorf("session already initialized")
	}
	sessionCtx, cancel := chromedp.NewContext(s.allocatorCtx)
	s.sessionCtx = sessionCtx
	s.sessionCancel = cancel
	s.mu.Unlock()

	// Track network activity so WaitQuiescent can observe in-flight requests.
	chromedp.ListenTarget(sessionCtx, func(ev interface{}) {
		s.inflightMu.Lock()
		defer s.inflightMu.Unlock()
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			s.inflight[e.RequestID] = struct{}{}
		case *network.EventLoadingFinished:
			delete(s.inflight, e.RequestID)
		case *network.EventLoadingFailed:
			delete(s.inflight, e.RequestID)
		}
	})

	if err := chromedp.Run(sessionCtx, applyStealth(s.persona, s.logger)); err != nil {
		s.Close(ctx)
		return fmt.Errorf("failed to apply stealth persona: %w", err)
	}

	s.logger.Info("Browser session initialized.")
	return nil
}

// Navigate loads a URL and waits for the document body to be ready, then
// allows a short settle window for async work.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating", zap.String("url", url))

	navCtx, cancel := s.boundedCtx(ctx, s.navigationTimeout)
	defer cancel()

	return chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.postLoadSettle),
	)
}

// Location returns the current URL and document title.
func (s *Session) Location(ctx context.Context) (Location, error) {
	runCtx, cancel := s.boundedCtx(ctx, 10*time.Second)
	defer cancel()

	var loc Location
	err := chromedp.Run(runCtx,
		chromedp.Location(&loc.URL),
		chromedp.Title(&loc.Title),
	)
	return loc, err
}

// Content returns the serialized HTML of the current document.
func (s *Session) Content(ctx context.Context) (string, error) {
	runCtx, cancel := s.boundedCtx(ctx, 20*time.Second)
	defer cancel()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", fmt.Errorf("failed to capture document content: %w", err)
	}
	return html, nil
}

// Screenshot captures the visible viewport as PNG bytes.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	runCtx, cancel := s.boundedCtx(ctx, 20*time.Second)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// Evaluate runs a JavaScript expression in the page context.
func (s *Session) Evaluate(ctx context.Context, expression string, out any) error {
	runCtx, cancel := s.boundedCtx(ctx, 20*time.Second)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.Evaluate(expression, out))
}

// Click dispatches a trusted mouse press/release pair at viewport coordinates.
func (s *Session) Click(ctx context.Context, x, y float64) error {
	runCtx, cancel := s.boundedCtx(ctx, 10*time.Second)
	defer cancel()

	return chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx); err != nil {
			return err
		}
		if err := input.DispatchMouseEvent(input.MousePressed, x, y).
			WithButton(input.Left).
			WithClickCount(1).
			Do(ctx); err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MouseReleased, x, y).
			WithButton(input.Left).
			WithClickCount(1).
			Do(ctx)
	}))
}

// TypeText sends the text to the focused element as individual key events.
func (s *Session) TypeText(ctx context.Context, text string) error {
	runCtx, cancel := s.boundedCtx(ctx, 30*time.Second)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.KeyEvent(text))
}

// PressKey dispatches a single named key to the focused element.
func (s *Session) PressKey(ctx context.Context, key string) error {
	runCtx, cancel := s.boundedCtx(ctx, 10*time.Second)
	defer cancel()

	switch key {
	case "Enter":
		return chromedp.Run(runCtx, chromedp.KeyEvent(kb.Enter))
	case "Tab":
		return chromedp.Run(runCtx, chromedp.KeyEvent(kb.Tab))
	case "Escape":
		return chromedp.Run(runCtx, chromedp.KeyEvent(kb.Escape))
	default:
		return fmt.Errorf("unsupported key: %q", key)
	}
}

// ScrollBy scrolls the viewport vertically by the given pixel delta.
func (s *Session) ScrollBy(ctx context.Context, deltaY float64) error {
	runCtx, cancel := s.boundedCtx(ctx, 10*time.Second)
	defer cancel()
	return chromedp.Run(runCtx,
		chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %v)", deltaY), nil),
	)
}

// quiescenceIdleWindow is how long the network must stay empty before the
// page is considered settled.
const quiescenceIdleWindow = 500 * time.Millisecond

// WaitQuiescent blocks until no network requests have been in flight for a
// continuous idle window, or the timeout elapses.
func (s *Session) WaitQuiescent(ctx context.Context, timeout time.Duration) error {
	waitCtx, cancel := s.boundedCtx(ctx, timeout)
	defer cancel()

	var idleSince time.Time
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		s.inflightMu.Lock()
		pending := len(s.inflight)
		s.inflightMu.Unlock()

		if pending == 0 {
			if idleSince.IsZero() {
				idleSince = time.Now()
			}
			if time.Since(idleSince) >= quiescenceIdleWindow {
				return nil
			}
		} else {
			idleSince = time.Time{}
		}

		select {
		case <-waitCtx.Done():
			return fmt.Errorf("network did not settle: %w", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

// Close safely terminates the browser tab and releases its manager slot.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	sessionCancel := s.sessionCancel
	sessionCtx := s.sessionCtx
	onClose := s.onClose
	s.mu.Unlock()

	if sessionCancel != nil {
		sessionCancel()
	}
	if onClose != nil {
		onClose()
	}

	if sessionCtx == nil {
		return nil
	}

	// Wait for the tab to be fully gone, respecting the caller's deadline.
	waitCtx, cancelWait := context.WithTimeout(ctx, 10*time.Second)
	defer cancelWait()
	select {
	case <-sessionCtx.Done():
	case <-waitCtx.Done():
		s.logger.Warn("Timed out waiting for session teardown", zap.Error(waitCtx.Err()))
	}
	return nil
}

// boundedCtx derives a session-scoped context limited by both the caller's
// context and the given timeout.
func (s *Session) boundedCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(s.sessionCtx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// newSession builds an uninitialized session bound to the manager's allocator.
func newSession(allocCtx context.Context, logger *zap.Logger, persona Persona, net config.NetworkConfig) *Session {
	id := uuid.New().String()
	return &Session{
		id:                id,
		logger:            logger.With(zap.String("session_id", id[:8])),
		persona:           persona,
		navigationTimeout: net.NavigationTimeout,
		postLoadSettle:    net.PostLoadSettle,
		allocatorCtx:      allocCtx,
		inflight:          make(map[network.RequestID]struct{}),
	}
}
