package testutils

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// FlagCase describes a flag expected on a cobra command.
type FlagCase struct {
	Name       string
	Short      string
	Default    string
	Persistent bool
}

// AssertFlag asserts that cmd declares the flag described by want.
func AssertFlag(t *testing.T, cmd *cobra.Command, want FlagCase) {
	t.Helper()

	flags := cmd.Flags()
	if want.Persistent {
		flags = cmd.PersistentFlags()
	}

	flag := flags.Lookup(want.Name)
	require.NotNil(t, flag, "Flag %q should be declared", want.Name)
	assert.Equal(t, want.Short, flag.Shorthand, "Unexpected shorthand for flag %q", want.Name)
	assert.Equal(t, want.Default, flag.DefValue, "Unexpected default value for flag %q", want.Name)
}
