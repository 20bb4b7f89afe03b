// -- cmd/root_test.go --
package cmd

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/guidecap-cli/internal/config"
)

// Loading configuration with no config file on disk must succeed: defaults
// carry every value Validate checks, and env vars layer on top.
func TestInitializeConfigWithoutConfigFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Chdir(t.TempDir())

	require.NoError(t, initializeConfig())

	loaded, err := config.NewConfigFromViper(viper.GetViper())
	require.NoError(t, err)

	assert.Positive(t, loaded.Browser.MaxSessions)
	assert.Positive(t, loaded.Task.MaxSteps)
	assert.NotEmpty(t, loaded.Oracle.Model)
}

func TestInitializeConfigEnvOverride(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Chdir(t.TempDir())
	t.Setenv("GUIDECAP_TASK_MAX_STEPS", "7")

	require.NoError(t, initializeConfig())

	loaded, err := config.NewConfigFromViper(viper.GetViper())
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Task.MaxSteps)
}
