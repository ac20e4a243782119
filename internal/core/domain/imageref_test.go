package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ParseImageRef Tests
// =============================================================================

func TestParseImageRef_RepoOnly(t *testing.T) {
	ref, err := ParseImageRef("timer-bot")

	require.NoError(t, err)
	assert.Empty(t, ref.Registry)
	assert.Equal(t, "timer-bot", ref.Repository)
	assert.Equal(t, "latest", ref.Tag)
	assert.Equal(t, "timer-bot:latest", ref.String())
}

func TestParseImageRef_RepoAndTag(t *testing.T) {
	ref, err := ParseImageRef("timer-bot:v2")

	require.NoError(t, err)
	assert.Equal(t, "timer-bot", ref.Repository)
	assert.Equal(t, "v2", ref.Tag)
}

func TestParseImageRef_WithRegistry(t *testing.T) {
	ref, err := ParseImageRef("registry.local:5000/apps/timer-bot:v2")

	require.NoError(t, err)
	assert.Equal(t, "registry.local:5000", ref.Registry)
	assert.Equal(t, "apps/timer-bot", ref.Repository)
	assert.Equal(t, "v2", ref.Tag)
	assert.Equal(t, "registry.local:5000/apps/timer-bot:v2", ref.String())
}

func TestParseImageRef_Localhost(t *testing.T) {
	ref, err := ParseImageRef("localhost/timer-bot")

	require.NoError(t, err)
	assert.Equal(t, "localhost", ref.Registry)
	assert.Equal(t, "timer-bot", ref.Repository)
}

func TestParseImageRef_NamespaceIsNotRegistry(t *testing.T) {
	ref, err := ParseImageRef("calfort/timer-bot")

	require.NoError(t, err)
	assert.Empty(t, ref.Registry)
	assert.Equal(t, "calfort/timer-bot", ref.Repository)
}

func TestParseImageRef_Empty(t *testing.T) {
	_, err := ParseImageRef("  ")

	assert.ErrorIs(t, err, ErrEmptyImageRef)
}

func TestParseImageRef_InvalidCharacter(t *testing.T) {
	_, err := ParseImageRef("Timer Bot:latest")

	assert.ErrorIs(t, err, ErrInvalidImageRef)
}

// =============================================================================
// Slugify Tests
// =============================================================================

func TestSlugify(t *testing.T) {
	assert.Equal(t, "timer-bot", Slugify("Timer Bot"))
	assert.Equal(t, "my-app-20", Slugify("My App 2.0!"))
	assert.Equal(t, "snake-case", Slugify("snake_case"))
	assert.Equal(t, "", Slugify("!!!"))
}
