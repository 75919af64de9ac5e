package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubcommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "sweep", "score", "zones", "migrate"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestZonesAddRequiresName(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"zones", "add"})
	require.NoError(t, err)

	flag := cmd.Flags().Lookup("name")
	require.NotNil(t, flag)
	require.NotEmpty(t, flag.Annotations[cobra.BashCompOneRequiredFlag])
	assert.Equal(t, "true", flag.Annotations[cobra.BashCompOneRequiredFlag][0])
}
