package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/shroud/internal/observability"
)

// execute runs the root command with the given args against fresh
// global viper/logger state and captures combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	observability.ResetForTest()

	// rootCmd is a shared global; flag values set by a previous Execute
	// (e.g. --version) persist, so reset them between runs.
	rootCmd.Flags().Visit(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	if args == nil {
		// SetArgs(nil) makes cobra fall back to os.Args, which here would
		// be the test binary's flags; an empty slice means "no arguments".
		args = []string{}
	}
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, Version)
}

func TestRootCmd_NoArgs(t *testing.T) {
	out, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "CDP interception proxy")
}

func TestProfileCmd(t *testing.T) {
	t.Run("same seed prints the same profile", func(t *testing.T) {
		first, err := execute(t, "profile", "--seed", "cmd-test-seed")
		require.NoError(t, err)
		second, err := execute(t, "profile", "--seed", "cmd-test-seed")
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Contains(t, first, `"seed": "cmd-test-seed"`)
		assert.Contains(t, first, `"user_agent"`)
		assert.Contains(t, first, `"webgl_renderer"`)
	})

	t.Run("script flag prints the override script", func(t *testing.T) {
		out, err := execute(t, "profile", "--seed", "cmd-test-seed", "--script")
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(out, "(() => {"))
		assert.Contains(t, out, "hardwareConcurrency")
	})

	t.Run("persist without store configured fails", func(t *testing.T) {
		_, err := execute(t, "profile", "--seed", "cmd-test-seed", "--script=false", "--persist")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "store is not enabled")
	})
}
