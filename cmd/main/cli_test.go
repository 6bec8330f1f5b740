package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// runCLI executes the root command with args and returns its standard output.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	config := newTestConfig(t, backendBolt)
	config.Server.LogLevel = "error"
	data, err := yaml.Marshal(config)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestCLIModelCommands(t *testing.T) {
	config := writeTestConfig(t)
	corpusFile := filepath.Join(t.TempDir(), "corpus.txt")
	require.NoError(t, os.WriteFile(corpusFile, []byte(fishCorpus+"\n"), 0o644))

	out, err := runCLI(t, "", "--config", config, "create", "fish", "--order", "2", "--file", corpusFile, "--corpus", "")
	require.NoError(t, err)
	assert.Contains(t, out, `created "fish" (order 2, size 5)`)

	out, err = runCLI(t, "", "--config", config, "create", "fish", "--file", corpusFile, "--order", "2")
	require.ErrorIs(t, err, ErrModelExists)

	out, err = runCLI(t, "", "--config", config, "generate", "fish", "-n", "3", "--temperature=-1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.Contains(t, []string{"one fish two fish", "red fish blue fish"}, line)
	}

	out, err = runCLI(t, "green fish gold fish", "--config", config, "add", "fish", "--file", "-", "--corpus", "")
	require.NoError(t, err)
	assert.Contains(t, out, `updated "fish"`)

	exportPath := filepath.Join(t.TempDir(), "fish.json")
	out, err = runCLI(t, "", "--config", config, "export", "fish", "--out", exportPath)
	require.NoError(t, err)
	assert.Contains(t, out, exportPath)
	exported, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(exported, []byte(`[[["START","START"],`)))

	out, err = runCLI(t, string(exported), "--config", config, "import", "copy", "--order", "2", "--file", "-")
	require.NoError(t, err)
	assert.Contains(t, out, `imported "copy"`)

	out, err = runCLI(t, "", "--config", config, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "copy")
	assert.Contains(t, out, "fish")

	out, err = runCLI(t, "", "--config", config, "show", "copy")
	require.NoError(t, err)
	assert.Contains(t, out, `"starting_tokens": 3`)

	_, err = runCLI(t, "", "--config", config, "delete", "copy")
	require.NoError(t, err)
	_, err = runCLI(t, "", "--config", config, "show", "copy")
	assert.Error(t, err)
}

func TestReadCorpus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.txt")
	require.NoError(t, os.WriteFile(path, []byte("  from file  \n"), 0o644))

	got, err := readCorpus("inline", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "inline", got)

	got, err = readCorpus("", path, nil)
	require.NoError(t, err)
	assert.Equal(t, "from file", got)

	got, err = readCorpus("", "-", strings.NewReader("from stdin"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	got, err = readCorpus("", "", nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = readCorpus("inline", path, nil)
	assert.Error(t, err)
}
