package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doorYAML = `
name: door
blackboard:
  open: false
root:
  name: door
  children:
    - name: opened
      mode: leaf
      conditions:
        - kind: equals
          key: open
          value: true
      tasks:
        - kind: run
    - name: closed
      mode: leaf
      tasks:
        - kind: run
`

func writeTree(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "door.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doorYAML), 0o644))
	return path
}

func TestLoadConfig_Layers(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := loadConfig()
	assert.Equal(t, ":4100", cfg.ListenAddr)
	assert.Equal(t, filepath.Join(home, ".statetree", "statetree.db"), cfg.DBPath)
	assert.Equal(t, 100*time.Millisecond, cfg.interval())

	require.NoError(t, os.MkdirAll(filepath.Join(home, ".statetree"), 0o700))
	require.NoError(t, os.WriteFile(settingsPath(), []byte(`{"pool_size": 3, "tick_interval": "50ms", "log_level": "debug"}`), 0o644))
	t.Setenv("STATETREE_LOG_LEVEL", "warn")
	t.Setenv("STATETREE_POOL_SIZE", "nope")

	cfg = loadConfig()
	assert.Equal(t, 3, cfg.PoolSize, "invalid env values are ignored")
	assert.Equal(t, 50*time.Millisecond, cfg.interval())
	assert.Equal(t, "warn", cfg.LogLevel, "env overrides settings.json")
}

func TestApplyFlags(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := loadConfig()

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("tick-policy", "", "")
	cmd.Flags().String("listen-addr", "", "")
	require.NoError(t, cmd.Flags().Set("tick-policy", "queue_on_completion"))

	applyFlags(cmd, &cfg)
	assert.Equal(t, "queue_on_completion", cfg.TickPolicy)
	assert.Equal(t, ":4100", cfg.ListenAddr, "unset flags keep the layered value")
}

func TestConfigInterval_Invalid(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, Config{TickInterval: "soon"}.interval())
	assert.Equal(t, 100*time.Millisecond, Config{TickInterval: "-1s"}.interval())
	assert.Equal(t, time.Second, Config{TickInterval: "1s"}.interval())
}

func TestParseSets(t *testing.T) {
	got, err := parseSets([]string{"open=true", "hp=3", "name=guard", "tags=[a, b]"})
	require.NoError(t, err)
	assert.Equal(t, true, got["open"])
	assert.Equal(t, 3, got["hp"])
	assert.Equal(t, "guard", got["name"])
	assert.Equal(t, []any{"a", "b"}, got["tags"])

	_, err = parseSets([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseSets([]string{"=1"})
	assert.Error(t, err)

	got, err = parseSets(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRunAgent(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg = loadConfig()
	cfg.TickInterval = "1ms"
	logger = slog.New(slog.DiscardHandler)

	var out bytes.Buffer
	err := runAgent(context.Background(), &out, writeTree(t), map[string]any{"open": true}, 2, false)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "agent_spawned")
	assert.Contains(t, text, "state_entered opened")
	assert.NotContains(t, text, "state_entered closed")
	assert.Contains(t, text, "agent_retired")
}

func TestRunAgent_JSON(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg = loadConfig()
	cfg.TickInterval = "1ms"
	logger = slog.New(slog.DiscardHandler)

	var out bytes.Buffer
	require.NoError(t, runAgent(context.Background(), &out, writeTree(t), nil, 1, true))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.NotEmpty(t, lines)
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, "{"), l)
	}
	assert.Contains(t, out.String(), `"state":"closed"`)
}

func TestRunAgent_MissingFile(t *testing.T) {
	logger = slog.New(slog.DiscardHandler)
	err := runAgent(context.Background(), &bytes.Buffer{}, filepath.Join(t.TempDir(), "none.yaml"), nil, 1, false)
	assert.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("name: bad\nroot:\n  name: bad\n  transitions:\n    - trigger: completed\n      target: state\n      state: nowhere\n"), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"validate", writeTree(t)})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), `tree "door" is valid`)

	out.Reset()
	rootCmd.SetArgs([]string{"validate", bad})
	assert.Error(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "nowhere")
}

func TestDiagramCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := writeTree(t)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"diagram", "--format", "mermaid", path})
	require.NoError(t, rootCmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "graph TD"))

	svg := filepath.Join(t.TempDir(), "door.svg")
	rootCmd.SetArgs([]string{"diagram", "--format", "svg", "--output", svg, path})
	require.NoError(t, rootCmd.Execute())
	data, err := os.ReadFile(svg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<svg")

	_, err = renderDiagram(nil, "pdf")
	assert.Error(t, err)
}
