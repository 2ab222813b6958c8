package presetcfg

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavernkit/core/pkg/prompt"
)

const validPresetYAML = `
preset:
  name: default
  main_prompt: "You are {{char}}."
  context_window_tokens: 4096
  reserved_response_tokens: 256
  examples_behavior: trim
  effective_prompt_entries:
    - id: main_prompt
      name: Main Prompt
      enabled: true
      role: system
      position: relative
lorebooks:
  - name: world
    scan_depth: 3
    token_budget: 500
    source: global
    entries:
      - uid: "1"
        primary_keys: ["dragon"]
        logic: and_any
        position: before_char_defs
        content: "Dragons are ancient."
        probability: 100
`

const unknownFieldPresetYAML = `
preset:
  name: default
  main_promptt: "typo'd field"
  context_window_tokens: 4096
`

func writeTempFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "preset.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadDecodesPresetAndLoreBooks(t *testing.T) {
	path := writeTempFile(t, validPresetYAML)
	loader, err := NewLoader(path)
	require.NoError(t, err)

	result, err := loader.Load()
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)

	require.NotNil(t, result.Bundle.Preset)
	assert.Equal(t, "You are {{char}}.", result.Bundle.Preset.MainPrompt)
	assert.Equal(t, 4096, result.Bundle.Preset.ContextWindowTokens)
	assert.Equal(t, prompt.ExamplesTrim, result.Bundle.Preset.ExamplesBehavior)
	require.Len(t, result.Bundle.Preset.EffectivePromptEntries, 1)
	assert.Equal(t, prompt.RoleSystem, result.Bundle.Preset.EffectivePromptEntries[0].Role)

	require.Len(t, result.Bundle.LoreBooks, 1)
	book := result.Bundle.LoreBooks[0]
	assert.Equal(t, "world", book.Name)
	require.Len(t, book.Entries, 1)
	assert.Equal(t, []string{"dragon"}, book.Entries[0].PrimaryKeys)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempFile(t, `
preset:
  name: minimal
`)
	loader, err := NewLoader(path)
	require.NoError(t, err)

	result, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 8192, result.Bundle.Preset.ContextWindowTokens)
	assert.Equal(t, 8192, result.Bundle.Preset.MaxInputTokens)
	assert.Equal(t, prompt.ExamplesGraduallyPushOut, result.Bundle.Preset.ExamplesBehavior)
}

func TestLoadReportsUnknownFieldsAsWarningsNotErrors(t *testing.T) {
	path := writeTempFile(t, unknownFieldPresetYAML)
	loader, err := NewLoader(path)
	require.NoError(t, err)

	result, err := loader.Load()
	require.NoError(t, err, "an unrecognized knob must not fail the load")
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0].Message, "main_promptt")
	// The recognized fields still decoded correctly alongside the typo.
	assert.Equal(t, 4096, result.Bundle.Preset.ContextWindowTokens)
}

func TestWatchReloadsOnFileChange(t *testing.T) {
	path := writeTempFile(t, validPresetYAML)
	loader, err := NewLoader(path)
	require.NoError(t, err)
	defer loader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *LoadResult, 1)
	go func() {
		_ = loader.Watch(ctx, func(r *LoadResult) {
			select {
			case reloaded <- r:
			default:
			}
		})
	}()

	// Give the watcher time to attach before mutating the file.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`
preset:
  name: default
  main_prompt: "updated prompt"
  context_window_tokens: 2048
`), 0o644))

	select {
	case r := <-reloaded:
		assert.Equal(t, "updated prompt", r.Bundle.Preset.MainPrompt)
		assert.Equal(t, 2048, r.Bundle.Preset.ContextWindowTokens)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
