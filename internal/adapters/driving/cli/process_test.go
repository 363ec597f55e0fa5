package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/marginalia/internal/core/domain"
)

func TestProcessCmd_AnswersEveryAnnotation(t *testing.T) {
	cfgDir, _ := useTempDirs(t)
	ollama := newFakeOllama(t, "Rayleigh scattering.")
	configureOllama(t, cfgDir, ollama.URL, nil)

	note := filepath.Join(t.TempDir(), "sky.txt")
	require.NoError(t, os.WriteFile(note, []byte(
		"The sky is blue [[@ask why?]] today.\n"+
			"Sunsets are red [[@ask# and this?]].\n"), 0600))

	out, err := execute(t, "", "process", note)

	require.NoError(t, err)
	assert.Contains(t, out, "Processed "+note)

	data, err := os.ReadFile(note)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[[@ask why?\n\nRayleigh scattering."+domain.AnsweredMarker+"]]")
	assert.Contains(t, string(data), "[[@ask# and this?\n\nRayleigh scattering."+domain.AnsweredMarker+"]]")
	assert.Equal(t, int64(2), ollama.generated.Load())
}

func TestProcessCmd_AlreadyAnswered(t *testing.T) {
	cfgDir, _ := useTempDirs(t)
	ollama := newFakeOllama(t, "unused")
	configureOllama(t, cfgDir, ollama.URL, nil)

	content := "Done [[@ask why?\n\nbecause" + domain.AnsweredMarker + "]]\n"
	note := filepath.Join(t.TempDir(), "done.md")
	require.NoError(t, os.WriteFile(note, []byte(content), 0600))

	_, err := execute(t, "", "process", note)

	require.NoError(t, err)
	data, _ := os.ReadFile(note)
	assert.Equal(t, content, string(data))
	assert.Zero(t, ollama.generated.Load())
}

func TestProcessCmd_Errors(t *testing.T) {
	t.Run("missing argument", func(t *testing.T) {
		useTempDirs(t)
		_, err := execute(t, "", "process")
		assert.Error(t, err)
	})

	t.Run("providers not configured", func(t *testing.T) {
		useTempDirs(t)
		_, err := execute(t, "", "process", filepath.Join(t.TempDir(), "a.txt"))
		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	})

	t.Run("invalid settings", func(t *testing.T) {
		cfgDir, _ := useTempDirs(t)
		configureOllama(t, cfgDir, "http://127.0.0.1:1", map[string]any{"watch.tick_period": "soon"})
		_, err := execute(t, "", "process", filepath.Join(t.TempDir(), "a.txt"))
		assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	})
}
