package util

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPathEmpty(t *testing.T) {
	got, err := ExpandPath("")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestExpandPathTilde(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	got, err := ExpandPath("~/infrawallet/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/tester", "infrawallet", "config.yaml"), got)
}

func TestExpandPathBareTilde(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	got, err := ExpandPath("~")
	require.NoError(t, err)
	assert.Equal(t, "/home/tester", got)
}

func TestExpandPathXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	got, err := ExpandPath("$XDG_CONFIG_HOME/infrawallet/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/custom/config", "infrawallet", "config.yaml"), got)
}

func TestExpandPathXDGFallsBackToHome(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("XDG_CONFIG_HOME", "")

	got, err := ExpandPath("$XDG_CONFIG_HOME/infrawallet")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/tester", ".config", "infrawallet"), got)
}

func TestExpandPathPlainIsCleaned(t *testing.T) {
	got, err := ExpandPath("./configs/../config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "config.yaml", got)
}
