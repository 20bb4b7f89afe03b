// pkg/action/executor_test.go
package action

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/guidecap-cli/internal/config"
	"github.com/xkilldash9x/guidecap-cli/pkg/browser"
)

var markerPattern = regexp.MustCompile(`els\[(\d+)\]`)

func markerFrom(t *testing.T, script string) int {
	t.Helper()
	m := markerPattern.FindStringSubmatch(script)
	require.NotNil(t, m, "script should reference a marker: %s", script)
	idx, err := strconv.Atoi(m[1])
	require.NoError(t, err)
	return idx
}

type point struct{ X, Y float64 }

// fakePage simulates the resolution and input surface the executor drives.
type fakePage struct {
	browser.Page
	t *testing.T

	resolutions map[int]resolution

	clickErr   error
	clicks     []point
	jsClickOK  bool
	jsClicks   []int
	setValueOK bool
	setValues  []int

	typed     []string
	navigated []string
	navErr    error
	scrolled  []float64
	waitErr   error
	waits     int
}

func (f *fakePage) Evaluate(_ context.Context, script string, out any) error {
	switch {
	case strings.Contains(script, "scrollIntoView"):
		res := f.resolutions[markerFrom(f.t, script)]
		b, err := json.Marshal(res)
		require.NoError(f.t, err)
		return json.Unmarshal(b, out)
	case strings.Contains(script, "MouseEvent"):
		f.jsClicks = append(f.jsClicks, markerFrom(f.t, script))
		*(out.(*bool)) = f.jsClickOK
		return nil
	case strings.Contains(script, "getOwnPropertyDescriptor"):
		f.setValues = append(f.setValues, markerFrom(f.t, script))
		*(out.(*bool)) = f.setValueOK
		return nil
	}
	return nil
}

func (f *fakePage) Click(_ context.Context, x, y float64) error {
	if f.clickErr != nil {
		return f.clickErr
	}
	f.clicks = append(f.clicks, point{x, y})
	return nil
}

func (f *fakePage) TypeText(_ context.Context, text string) error {
	f.typed = append(f.typed, text)
	return nil
}

func (f *fakePage) Navigate(_ context.Context, url string) error {
	f.navigated = append(f.navigated, url)
	return f.navErr
}

func (f *fakePage) ScrollBy(_ context.Context, deltaY float64) error {
	f.scrolled = append(f.scrolled, deltaY)
	return nil
}

func (f *fakePage) WaitQuiescent(_ context.Context, _ time.Duration) error {
	f.waits++
	return f.waitErr
}

func newTestExecutor(page *fakePage) *Executor {
	return NewExecutor(page, zap.NewNop(), config.NetworkConfig{
		QuiescenceTimeout: 10 * time.Millisecond,
		PostLoadSettle:    time.Millisecond,
	})
}

func TestExecuteClick(t *testing.T) {
	t.Parallel()

	t.Run("clicks the resolved element center", func(t *testing.T) {
		t.Parallel()
		page := &fakePage{t: t, resolutions: map[int]resolution{
			7: {Found: true, Tag: "button", X: 10, Y: 20},
		}}
		ok := newTestExecutor(page).Execute(context.Background(), Action{Kind: KindClick, Target: "[7]"})
		require.True(t, ok)
		require.Len(t, page.clicks, 1)
		assert.Equal(t, point{10, 20}, page.clicks[0])
	})

	t.Run("retries the next then previous marker when resolution misses", func(t *testing.T) {
		t.Parallel()
		page := &fakePage{t: t, resolutions: map[int]resolution{
			6: {Found: true, Tag: "button", X: 1, Y: 2},
		}}
		ok := newTestExecutor(page).Execute(context.Background(), Action{Kind: KindClick, Target: "[7]"})
		require.True(t, ok)
		require.Len(t, page.clicks, 1)
		assert.Equal(t, point{1, 2}, page.clicks[0])
	})

	t.Run("never probes negative markers", func(t *testing.T) {
		t.Parallel()
		page := &fakePage{t: t, resolutions: map[int]resolution{}}
		ok := newTestExecutor(page).Execute(context.Background(), Action{Kind: KindClick, Target: "[0]"})
		assert.False(t, ok)
		assert.Empty(t, page.clicks)
	})

	t.Run("falls back to DOM events when the trusted click fails", func(t *testing.T) {
		t.Parallel()
		page := &fakePage{t: t,
			resolutions: map[int]resolution{7: {Found: true, Tag: "button", X: 10, Y: 20}},
			clickErr:    errors.New("node is obscured"),
			jsClickOK:   true,
		}
		ok := newTestExecutor(page).Execute(context.Background(), Action{Kind: KindClick, Target: "[7]"})
		require.True(t, ok)
		assert.Contains(t, page.jsClicks, 7)
	})

	t.Run("probes the neighbor when step intent wants a button but target is a field", func(t *testing.T) {
		t.Parallel()
		page := &fakePage{t: t, resolutions: map[int]resolution{
			3: {Found: true, Tag: "input", InputType: "password", X: 5, Y: 5},
			4: {Found: true, Tag: "button", X: 50, Y: 60},
		}}
		ok := newTestExecutor(page).Execute(context.Background(), Action{
			Kind:            KindClick,
			Target:          "[3]",
			StepDescription: "Click the Continue button",
		})
		require.True(t, ok)
		require.Len(t, page.clicks, 1)
		assert.Equal(t, point{50, 60}, page.clicks[0])
	})

	t.Run("rejects an unparsable target", func(t *testing.T) {
		t.Parallel()
		page := &fakePage{t: t}
		ok := newTestExecutor(page).Execute(context.Background(), Action{Kind: KindClick, Target: "the blue one"})
		assert.False(t, ok)
	})
}

func TestExecuteType(t *testing.T) {
	t.Parallel()

	t.Run("assigns the value to a standard input", func(t *testing.T) {
		t.Parallel()
		page := &fakePage{t: t,
			resolutions: map[int]resolution{2: {Found: true, Tag: "input", InputType: "email", X: 1, Y: 1}},
			setValueOK:  true,
		}
		ok := newTestExecutor(page).Execute(context.Background(), Action{
			Kind: KindType, Target: "[2]", Value: "user@example.com",
		})
		require.True(t, ok)
		assert.Equal(t, []int{2}, page.setValues)
		assert.Empty(t, page.typed)
	})

	t.Run("scans forward past non-text inputs", func(t *testing.T) {
		t.Parallel()
		page := &fakePage{t: t,
			resolutions: map[int]resolution{
				1: {Found: true, Tag: "input", InputType: "checkbox"},
				2: {Found: true, Tag: "input", InputType: "radio"},
				3: {Found: true, Tag: "input", InputType: "text", X: 9, Y: 9},
			},
			setValueOK: true,
		}
		ok := newTestExecutor(page).Execute(context.Background(), Action{
			Kind: KindType, Target: "[1]", Value: "hello",
		})
		require.True(t, ok)
		assert.Equal(t, []int{3}, page.setValues)
	})

	t.Run("gives up when no text field is within reach", func(t *testing.T) {
		t.Parallel()
		page := &fakePage{t: t, resolutions: map[int]resolution{
			1: {Found: true, Tag: "input", InputType: "checkbox"},
		}}
		ok := newTestExecutor(page).Execute(context.Background(), Action{
			Kind: KindType, Target: "[1]", Value: "hello",
		})
		assert.False(t, ok)
	})

	t.Run("focuses and types into contenteditable surfaces", func(t *testing.T) {
		t.Parallel()
		page := &fakePage{t: t, resolutions: map[int]resolution{
			5: {Found: true, Tag: "div", Editable: true, X: 30, Y: 40},
		}}
		ok := newTestExecutor(page).Execute(context.Background(), Action{
			Kind: KindType, Target: "[5]", Value: "note body",
		})
		require.True(t, ok)
		require.Len(t, page.clicks, 1)
		assert.Equal(t, []string{"note body"}, page.typed)
		assert.Empty(t, page.setValues)
	})

	t.Run("falls back to key events when value assignment fails", func(t *testing.T) {
		t.Parallel()
		page := &fakePage{t: t,
			resolutions: map[int]resolution{2: {Found: true, Tag: "input", InputType: "text", X: 1, Y: 1}},
			setValueOK:  false,
		}
		ok := newTestExecutor(page).Execute(context.Background(), Action{
			Kind: KindType, Target: "[2]", Value: "fallback",
		})
		require.True(t, ok)
		assert.Equal(t, []string{"fallback"}, page.typed)
	})
}

func TestExecuteNavigate(t *testing.T) {
	t.Parallel()

	t.Run("navigates to the value URL", func(t *testing.T) {
		t.Parallel()
		page := &fakePage{t: t}
		ok := newTestExecutor(page).Execute(context.Background(), Action{
			Kind: KindNavigate, Value: "https://app.example.com",
		})
		require.True(t, ok)
		assert.Equal(t, []string{"https://app.example.com"}, page.navigated)
	})

	t.Run("treats navigation timeouts as non-fatal", func(t *testing.T) {
		t.Parallel()
		page := &fakePage{t: t, navErr: context.DeadlineExceeded}
		ok := newTestExecutor(page).Execute(context.Background(), Action{
			Kind: KindNavigate, Value: "https://slow.example.com",
		})
		assert.True(t, ok)
	})

	t.Run("rejects an empty URL", func(t *testing.T) {
		t.Parallel()
		page := &fakePage{t: t}
		ok := newTestExecutor(page).Execute(context.Background(), Action{Kind: KindNavigate})
		assert.False(t, ok)
	})
}

func TestExecuteWaitAndScroll(t *testing.T) {
	t.Parallel()

	t.Run("wait succeeds even when the network never settles", func(t *testing.T) {
		t.Parallel()
		page := &fakePage{t: t, waitErr: context.DeadlineExceeded}
		ok := newTestExecutor(page).Execute(context.Background(), Action{Kind: KindWait})
		assert.True(t, ok)
		assert.Equal(t, 1, page.waits)
	})

	t.Run("scrolls down by default and up on request", func(t *testing.T) {
		t.Parallel()
		page := &fakePage{t: t}
		ex := newTestExecutor(page)

		require.True(t, ex.Execute(context.Background(), Action{Kind: KindScroll}))
		require.True(t, ex.Execute(context.Background(), Action{Kind: KindScroll, ScrollDirection: "up"}))
		assert.Equal(t, []float64{scrollStep, -scrollStep}, page.scrolled)
	})

	t.Run("done is a no-op success", func(t *testing.T) {
		t.Parallel()
		page := &fakePage{t: t}
		assert.True(t, newTestExecutor(page).Execute(context.Background(), Action{Kind: KindDone}))
	})
}
