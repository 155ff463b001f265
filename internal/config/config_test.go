package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsmostafa/pagetree/internal/pageindex"
)

// isolate keeps tests from reading a real home config or .env file.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
}

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFileAndEnv(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: from-file\nmax_concurrency: 4\nif_add_node_summary: true\n"), 0o644))
	t.Setenv("PAGETREE_MAX_CONCURRENCY", "16")

	l := NewLoader(path)
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, path, l.ConfigFile())
	assert.Equal(t, "from-file", cfg.Model)
	assert.Equal(t, 16, cfg.MaxConcurrency, "environment beats the file")
	assert.True(t, cfg.IfAddNodeSummary)
	assert.Equal(t, 20, cfg.TOCCheckPageNum, "unset keys keep defaults")
}

func TestLoadSearchesWorkingDirectory(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile("pagetree.yaml", []byte("pdf_parser: text\n"), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.PDFParser)
}

func TestLoadDotEnv(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(".env", []byte("PAGETREE_LOG_DIR=/tmp/pagetree-env\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("PAGETREE_LOG_DIR") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/pagetree-env", cfg.LogDir)
}

func TestFlagsOverrideEverything(t *testing.T) {
	isolate(t)
	t.Setenv("PAGETREE_MODEL", "from-env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("model", "", "")
	flags.Float64("accuracy-threshold", 0, "")
	require.NoError(t, flags.Parse([]string{"--model", "from-flag"}))

	l := NewLoader("")
	require.NoError(t, l.BindFlag("model", flags.Lookup("model")))
	require.NoError(t, l.BindFlag("accuracy_threshold", flags.Lookup("accuracy-threshold")))
	require.Error(t, l.BindFlag("log_dir", flags.Lookup("log-dir")))

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.Model)
	assert.Equal(t, 0.6, cfg.AccuracyThreshold, "an unset flag does not shadow the default")
}

func TestLoadRejectsInvalid(t *testing.T) {
	isolate(t)
	t.Setenv("PAGETREE_MAX_CONCURRENCY", "0")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrency")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{"empty model", func(c *Config) { c.Model = " " }, []string{"model"}},
		{"bad parser", func(c *Config) { c.PDFParser = "ocr" }, []string{"pdf_parser"}},
		{"bad strategy", func(c *Config) { c.Strategy = "guess" }, []string{"strategy"}},
		{"threshold", func(c *Config) { c.AccuracyThreshold = 1.5 }, []string{"accuracy_threshold"}},
		{"token budget", func(c *Config) { c.MaxTokenNumEachNode = 10 }, []string{"max_token_num_each_node"}},
		{"retained", func(c *Config) { c.LogEventsRetained = 0 }, []string{"log_events_retained"}},
		{"several", func(c *Config) {
			c.RetryAttempts = 11
			c.TimeoutSeconds = 0
			c.ChunkOverlapPages = 6
		}, []string{"retry_attempts", "timeout_seconds", "chunk_overlap_pages"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			lines := strings.Split(err.Error(), "\n")
			assert.Len(t, lines, len(tt.want), "one line per violated rule")
			for _, key := range tt.want {
				assert.Contains(t, err.Error(), key)
			}
		})
	}
}

func TestToPipelineOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = string(pageindex.StrategyNoTOC)
	cfg.AccuracyThreshold = 0.8
	cfg.IfAddNodeID = false
	cfg.IfAddNodeText = true
	cfg.MaxConcurrency = 2

	opts := cfg.ToPipelineOptions()
	assert.Equal(t, pageindex.StrategyNoTOC, opts.Strategy)
	assert.Equal(t, 0.8, opts.Index.AccuracyThreshold)
	assert.False(t, opts.Index.IfAddNodeID)
	assert.True(t, opts.Index.IfAddNodeText)
	assert.Equal(t, 2, opts.Index.MaxConcurrency)
	assert.Equal(t, pageindex.DefaultOptions().SummaryTokenThreshold, opts.Index.SummaryTokenThreshold)
}

func TestOracleConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	cfg := DefaultConfig()
	oc := cfg.OracleConfig()
	assert.Equal(t, "env-key", oc.APIKey)
	assert.Equal(t, 4, oc.Attempts)
	assert.Equal(t, 30*time.Second, oc.Timeout)

	cfg.APIKey = "file-key"
	assert.Equal(t, "file-key", cfg.OracleConfig().APIKey)
}

func TestWriteDefault(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "pagetree.yaml")
	require.NoError(t, WriteDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# pagetree configuration"))
	assert.Contains(t, string(data), "toc_check_page_num: 20")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	assert.Error(t, WriteDefault(path), "existing files are not overwritten")
}
