// pkg/browser/manager_test.go
package browser

import (
	"testing"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/xkilldash9x/guidecap-cli/internal/config"
)

func TestBuildAllocatorOptions(t *testing.T) {
	t.Parallel()

	m := &Manager{
		logger:  zap.NewNop(),
		persona: DefaultPersona(),
		cfg: config.BrowserConfig{
			Headless:     true,
			WindowWidth:  1280,
			WindowHeight: 800,
			ExtraFlags:   []string{"--proxy-server=localhost:8080", "--incognito"},
		},
	}

	opts := m.buildAllocatorOptions()

	// Defaults, the stealth and window overrides, and both extra flags.
	assert.Greater(t, len(opts), len(chromedp.DefaultExecAllocatorOptions)+6)
}

func TestBuildAllocatorOptionsNoExtraFlags(t *testing.T) {
	t.Parallel()

	m := &Manager{
		logger:  zap.NewNop(),
		persona: DefaultPersona(),
		cfg:     config.BrowserConfig{Headless: false, WindowWidth: 1920, WindowHeight: 1080},
	}

	assert.NotEmpty(t, m.buildAllocatorOptions())
}
