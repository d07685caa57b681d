package speech

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSpeechFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "speech.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadValid(t *testing.T) {
	path := writeSpeechFile(t, `{
		"greeting": "Welcome.",
		"success": "Please leave a message.",
		"rejection": "This call cannot be completed.",
		"repeat": "Press any key to hear your message."
	}`)

	catalog, err := Load(path)
	require.NoError(t, err)

	text, ok := catalog.Prompt(Greeting)
	assert.True(t, ok)
	assert.Equal(t, "Welcome.", text)
	assert.Equal(t, "Press any key to hear your message.", catalog.MustPrompt(Repeat))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadBadJSON(t *testing.T) {
	path := writeSpeechFile(t, `{"greeting": `)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingPrompt(t *testing.T) {
	path := writeSpeechFile(t, `{
		"greeting": "Welcome.",
		"success": "Please leave a message.",
		"repeat": "Press any key."
	}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejection")
}

func TestPromptUnknownName(t *testing.T) {
	path := writeSpeechFile(t, `{
		"greeting": "a", "success": "b", "rejection": "c", "repeat": "d"
	}`)
	catalog, err := Load(path)
	require.NoError(t, err)

	_, ok := catalog.Prompt("farewell")
	assert.False(t, ok)
	assert.Panics(t, func() { catalog.MustPrompt("farewell") })
}
