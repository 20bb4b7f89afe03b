// pkg/browser/stealth.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ScreenProperties defines the resolution of the spoofed display.
type ScreenProperties struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// Persona defines a consistent browser profile to present to the page.
type Persona struct {
	UserAgent string           `json:"userAgent"`
	Platform  string           `json:"platform"`
	Languages []string         `json:"languages"`
	Screen    ScreenProperties `json:"screen"`
}

// DefaultPersona is a plausible desktop Chrome profile.
func DefaultPersona() Persona {
	return Persona{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		Platform:  "Win32",
		Languages: []string{"en-US", "en"},
		Screen:    ScreenProperties{Width: 1920, Height: 1080},
	}
}

// evasionScript masks the most common automation tells before any page script
// runs. GUIDECAP_PERSONA is prepended at injection time.
const evasionScript = `
(() => {
    const persona = typeof GUIDECAP_PERSONA !== 'undefined' ? GUIDECAP_PERSONA : {};

    Object.defineProperty(Object.getPrototypeOf(navigator), 'webdriver', {
        get: () => undefined,
        configurable: true,
    });

    if (persona.platform) {
        Object.defineProperty(navigator, 'platform', { get: () => persona.platform });
    }
    if (persona.languages && persona.languages.length) {
        Object.defineProperty(navigator, 'languages', { get: () => persona.languages });
    }

    // Headless Chrome ships no plugins; real Chrome always has a few.
    Object.defineProperty(navigator, 'plugins', {
        get: () => [1, 2, 3],
    });

    // window.chrome is absent in headless mode.
    if (!window.chrome) {
        window.chrome = { runtime: {} };
    }

    // Notification permission queries behave differently under automation.
    const originalQuery = window.navigator.permissions.query.bind(window.navigator.permissions);
    window.navigator.permissions.query = (parameters) =>
        parameters.name === 'notifications'
            ? Promise.resolve({ state: Notification.permission })
            : originalQuery(parameters);
})();
`

// applyStealth orchestrates the stealth actions using chromedp.Tasks for
// sequential execution on a fresh session.
func applyStealth(persona Persona, logger *zap.Logger) chromedp.Action {
	l := logger.Named("stealth")
	return chromedp.Tasks{
		network.Enable(),
		setUserAgent(persona),
		injectEvasionScript(persona),
		page.SetWebLifecycleState(page.SetWebLifecycleStateStateActive),
		chromedp.ActionFunc(func(ctx context.Context) error {
			l.Debug("Stealth profile applied", zap.String("user_agent", persona.UserAgent))
			return nil
		}),
	}
}

// setUserAgent configures the UserAgent string and accept language.
func setUserAgent(persona Persona) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		return emulation.SetUserAgentOverride(persona.UserAgent).
			WithPlatform(persona.Platform).
			WithAcceptLanguage(strings.Join(persona.Languages, ",")).
			Do(ctx)
	})
}

// injectEvasionScript registers the JS evasions to run on every new document.
func injectEvasionScript(persona Persona) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		personaJSON, err := json.Marshal(persona)
		if err != nil {
			return fmt.Errorf("stealth: failed to marshal persona: %w", err)
		}

		script := fmt.Sprintf("const GUIDECAP_PERSONA = %s;\n%s", string(personaJSON), evasionScript)
		if _, err = page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
			return fmt.Errorf("stealth: failed to add script on new document: %w", err)
		}
		return nil
	})
}
