// pkg/action/action_test.go
package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkerIndex(t *testing.T) {
	t.Parallel()

	t.Run("parses bracketed markers", func(t *testing.T) {
		t.Parallel()
		idx, err := Action{Target: "[7]"}.MarkerIndex()
		require.NoError(t, err)
		assert.Equal(t, 7, idx)
	})

	t.Run("parses bare numbers", func(t *testing.T) {
		t.Parallel()
		idx, err := Action{Target: "7"}.MarkerIndex()
		require.NoError(t, err)
		assert.Equal(t, 7, idx)
	})

	t.Run("rejects empty, descriptive, and negative targets", func(t *testing.T) {
		t.Parallel()
		_, err := Action{}.MarkerIndex()
		assert.Error(t, err)

		_, err = Action{Target: "the login button"}.MarkerIndex()
		assert.Error(t, err)

		_, err = Action{Target: "[-1]"}.MarkerIndex()
		assert.Error(t, err)
	})
}

func TestNormalizeTarget(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "[7]", NormalizeTarget("7"))
	assert.Equal(t, "[7]", NormalizeTarget(" 7 "))
	assert.Equal(t, "[7]", NormalizeTarget("[7]"))
	assert.Equal(t, "", NormalizeTarget(""))
	assert.Equal(t, "the button", NormalizeTarget("the button"))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Action{Kind: KindClick, Target: "[0]"}.Validate())
	assert.Error(t, Action{Kind: KindClick}.Validate())
	assert.NoError(t, Action{Kind: KindType, Target: "[2]", Value: "x"}.Validate())
	assert.Error(t, Action{Kind: KindNavigate}.Validate())
	assert.NoError(t, Action{Kind: KindNavigate, Value: "https://example.com"}.Validate())
	assert.NoError(t, Action{Kind: KindWait}.Validate())
	assert.NoError(t, Action{Kind: KindDone}.Validate())
	assert.Error(t, Action{Kind: Kind("explode")}.Validate())
}
