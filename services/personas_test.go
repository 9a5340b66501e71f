package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPersonas(t *testing.T) {
	path := writeCatalog(t, `
default: jill
personas:
  jill:
    display_name: Jill
    system_prompt: You are Jill.
    first_greeting: Hi there.
    return_greeting: Welcome back.
  marcus:
    system_prompt: You are Marcus.
`)

	store, err := LoadPersonas(path)
	require.NoError(t, err)

	assert.Equal(t, "jill", store.DefaultKey())
	assert.ElementsMatch(t, []string{"jill", "marcus"}, store.Keys())

	jill := store.Get("jill")
	assert.Equal(t, "Jill", jill.DisplayName)
	assert.Equal(t, "Hi there.", jill.FirstGreeting)

	// Missing display name falls back to the capitalized key.
	assert.Equal(t, "Marcus", store.Get("marcus").DisplayName)
}

func TestLoadPersonasUnknownDefaultFallsBack(t *testing.T) {
	path := writeCatalog(t, `
default: nobody
personas:
  jill:
    system_prompt: You are Jill.
`)

	store, err := LoadPersonas(path)
	require.NoError(t, err)
	assert.Equal(t, "jill", store.DefaultKey())
}

func TestLoadPersonasEmptyCatalogErrors(t *testing.T) {
	path := writeCatalog(t, "default: jill\n")

	_, err := LoadPersonas(path)
	require.Error(t, err)
}

func TestLoadPersonasMissingFileErrors(t *testing.T) {
	_, err := LoadPersonas("/nonexistent/personas.yaml")
	require.Error(t, err)
}

func TestGetUnknownKeyReturnsDefault(t *testing.T) {
	store := testPersonas()
	assert.Equal(t, "jill", store.Get("missing").Key)
}
