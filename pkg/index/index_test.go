// pkg/index/index_test.go
package index

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/guidecap-cli/pkg/browser"
)

// fakePage implements just enough of browser.Page for the indexer. Calls to
// unimplemented methods panic via the embedded nil interface.
type fakePage struct {
	browser.Page

	evalResult string
	evalErr    error
	evaluated  []string
}

func (f *fakePage) Evaluate(_ context.Context, expression string, out any) error {
	f.evaluated = append(f.evaluated, expression)
	if f.evalErr != nil {
		return f.evalErr
	}
	if out == nil || f.evalResult == "" {
		return nil
	}
	return json.Unmarshal([]byte(f.evalResult), out)
}

func TestMark(t *testing.T) {
	t.Parallel()

	t.Run("returns descriptors in marker order", func(t *testing.T) {
		t.Parallel()
		page := &fakePage{evalResult: `[
			{"marker":0,"tag":"button","text":"Sign in"},
			{"marker":1,"tag":"input","inputType":"email","placeholder":"Email"},
			{"marker":2,"tag":"a","text":"Forgot password?","href":"/reset"}
		]`}
		ix := New(page, zap.NewNop())

		elements := ix.Mark(context.Background())
		require.Len(t, elements, 3)
		assert.Equal(t, 0, elements[0].Marker)
		assert.Equal(t, "button", elements[0].Tag)
		assert.Equal(t, "email", elements[1].InputType)
		assert.Equal(t, "/reset", elements[2].Href)
	})

	t.Run("returns empty slice on a page with no interactive elements", func(t *testing.T) {
		t.Parallel()
		page := &fakePage{evalResult: `[]`}
		ix := New(page, zap.NewNop())

		elements := ix.Mark(context.Background())
		require.NotNil(t, elements)
		assert.Empty(t, elements)
	})

	t.Run("returns empty slice when the scan script fails", func(t *testing.T) {
		t.Parallel()
		page := &fakePage{evalErr: errors.New("execution context destroyed")}
		ix := New(page, zap.NewNop())

		elements := ix.Mark(context.Background())
		require.NotNil(t, elements)
		assert.Empty(t, elements)
	})
}

func TestUnmark(t *testing.T) {
	t.Parallel()

	t.Run("removes overlays", func(t *testing.T) {
		t.Parallel()
		page := &fakePage{}
		ix := New(page, zap.NewNop())

		ix.Unmark(context.Background())
		require.Len(t, page.evaluated, 1)
		assert.True(t, strings.Contains(page.evaluated[0], "guidecap-marker"))
	})

	t.Run("tolerates script failure", func(t *testing.T) {
		t.Parallel()
		page := &fakePage{evalErr: errors.New("target closed")}
		ix := New(page, zap.NewNop())

		assert.NotPanics(t, func() { ix.Unmark(context.Background()) })
	})
}

func TestHighlight(t *testing.T) {
	t.Parallel()

	page := &fakePage{}
	ix := New(page, zap.NewNop())

	ix.Highlight(context.Background(), 7)
	require.Len(t, page.evaluated, 1)
	assert.Contains(t, page.evaluated[0], `data-guidecap-marker="7"`)
}

func TestDescriptorLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Sign in", Descriptor{Tag: "button", Text: "Sign in", AriaLabel: "x"}.Label())
	assert.Equal(t, "Close dialog", Descriptor{Tag: "button", AriaLabel: "Close dialog"}.Label())
	assert.Equal(t, "Email", Descriptor{Tag: "input", Placeholder: "Email"}.Label())
	assert.Equal(t, "div", Descriptor{Tag: "div"}.Label())
}
