// Package config loads pagetree settings from flags, environment, a YAML
// file and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/itsmostafa/pagetree/internal/oracle"
	"github.com/itsmostafa/pagetree/internal/pageindex"
	"github.com/itsmostafa/pagetree/internal/pagesource"
	"github.com/itsmostafa/pagetree/internal/pipeline"
)

// EnvPrefix prefixes every environment override, e.g. PAGETREE_MODEL.
const EnvPrefix = "PAGETREE"

// Config holds every tunable setting.
type Config struct {
	Model          string `mapstructure:"model" yaml:"model"`
	APIKey         string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`
	LogDir         string `mapstructure:"log_dir" yaml:"log_dir"`
	RetryAttempts  int    `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	PDFParser      string `mapstructure:"pdf_parser" yaml:"pdf_parser"`

	// Strategy forces an extraction strategy; empty selects from the TOC
	Strategy string `mapstructure:"strategy" yaml:"strategy"`

	TOCCheckPageNum     int     `mapstructure:"toc_check_page_num" yaml:"toc_check_page_num"`
	MaxTokenNumEachNode int     `mapstructure:"max_token_num_each_node" yaml:"max_token_num_each_node"`
	ChunkOverlapPages   int     `mapstructure:"chunk_overlap_pages" yaml:"chunk_overlap_pages"`
	BatchTokenLimit     int     `mapstructure:"batch_token_limit" yaml:"batch_token_limit"`
	MaxConcurrency      int     `mapstructure:"max_concurrency" yaml:"max_concurrency"`
	MaxFixAttempts      int     `mapstructure:"max_fix_attempts" yaml:"max_fix_attempts"`
	AccuracyThreshold   float64 `mapstructure:"accuracy_threshold" yaml:"accuracy_threshold"`
	VerifySampleSize    int     `mapstructure:"verify_sample_size" yaml:"verify_sample_size"`
	RepairWindow        int     `mapstructure:"repair_window" yaml:"repair_window"`
	OffsetSamplePages   int     `mapstructure:"offset_sample_pages" yaml:"offset_sample_pages"`
	MaxPageNumEachNode  int     `mapstructure:"max_page_num_each_node" yaml:"max_page_num_each_node"`

	IfAddNodeID         bool `mapstructure:"if_add_node_id" yaml:"if_add_node_id"`
	IfAddNodeSummary    bool `mapstructure:"if_add_node_summary" yaml:"if_add_node_summary"`
	IfAddDocDescription bool `mapstructure:"if_add_doc_description" yaml:"if_add_doc_description"`
	IfAddNodeText       bool `mapstructure:"if_add_node_text" yaml:"if_add_node_text"`

	LogEventsRetained int `mapstructure:"log_events_retained" yaml:"log_events_retained"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	opts := pageindex.DefaultOptions()
	return &Config{
		Model:               "gpt-4o-mini",
		LogDir:              "./logs",
		RetryAttempts:       3,
		TimeoutSeconds:      30,
		PDFParser:           pagesource.Native,
		TOCCheckPageNum:     opts.TOCCheckPageNum,
		MaxTokenNumEachNode: opts.MaxTokenNumEachNode,
		ChunkOverlapPages:   opts.ChunkOverlapPages,
		BatchTokenLimit:     opts.BatchTokenLimit,
		MaxConcurrency:      opts.MaxConcurrency,
		MaxFixAttempts:      opts.MaxFixAttempts,
		AccuracyThreshold:   opts.AccuracyThreshold,
		VerifySampleSize:    opts.VerifySampleSize,
		RepairWindow:        opts.RepairWindow,
		OffsetSamplePages:   opts.OffsetSamplePages,
		MaxPageNumEachNode:  opts.MaxPageNumEachNode,
		IfAddNodeID:         opts.IfAddNodeID,
		IfAddNodeSummary:    opts.IfAddNodeSummary,
		IfAddDocDescription: opts.IfAddDocDescription,
		IfAddNodeText:       opts.IfAddNodeText,
		LogEventsRetained:   5,
	}
}

// Loader layers configuration sources. Precedence, highest first: bound
// flags that were set, PAGETREE_* environment, the config file, defaults.
type Loader struct {
	v    *viper.Viper
	file string
}

// NewLoader creates a Loader. An empty file searches ./pagetree.yaml and
// $HOME/.pagetree/pagetree.yaml; a missing searched file is not an error.
func NewLoader(file string) *Loader {
	v := viper.New()

	defaults := map[string]any{}
	data, _ := yaml.Marshal(DefaultConfig())
	_ = yaml.Unmarshal(data, &defaults)
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, file: file}
}

// BindFlag lets a command line flag override key when it is set.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag for config key %s", key)
	}
	return l.v.BindPFlag(key, flag)
}

// Load resolves every source into a validated Config.
func (l *Loader) Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	if l.file != "" {
		l.v.SetConfigFile(l.file)
	} else {
		l.v.SetConfigName("pagetree")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		l.v.AddConfigPath("$HOME/.pagetree")
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// ConfigFile returns the file that was read, or "" when none was.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Load is shorthand for NewLoader(file).Load().
func Load(file string) (*Config, error) {
	return NewLoader(file).Load()
}

// Validate reports every setting outside its allowed range.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	between := func(key string, v, lo, hi int) {
		check(v >= lo && v <= hi, "%s must be between %d and %d, got %d", key, lo, hi, v)
	}

	check(strings.TrimSpace(c.Model) != "", "model must not be empty")
	check(strings.TrimSpace(c.LogDir) != "", "log_dir must not be empty")
	between("retry_attempts", c.RetryAttempts, 0, 10)
	between("timeout_seconds", c.TimeoutSeconds, 1, 600)
	check(slices.Contains(pagesource.Names, c.PDFParser), "pdf_parser must be one of %s, got %q", strings.Join(pagesource.Names, ", "), c.PDFParser)
	check(c.Strategy == "" || pageindex.Strategy(c.Strategy).Valid(), "strategy %q is not a known strategy", c.Strategy)
	between("toc_check_page_num", c.TOCCheckPageNum, 1, 100)
	between("max_token_num_each_node", c.MaxTokenNumEachNode, 1000, 50000)
	between("chunk_overlap_pages", c.ChunkOverlapPages, 0, 5)
	between("batch_token_limit", c.BatchTokenLimit, 1000, 1000000)
	between("max_concurrency", c.MaxConcurrency, 1, 64)
	between("max_fix_attempts", c.MaxFixAttempts, 0, 10)
	check(c.AccuracyThreshold >= 0 && c.AccuracyThreshold <= 1, "accuracy_threshold must be between 0 and 1, got %g", c.AccuracyThreshold)
	between("verify_sample_size", c.VerifySampleSize, 1, 200)
	between("repair_window", c.RepairWindow, 1, 50)
	between("offset_sample_pages", c.OffsetSamplePages, 1, 100)
	between("max_page_num_each_node", c.MaxPageNumEachNode, 1, 1000)
	check(c.LogEventsRetained >= 1, "log_events_retained must be at least 1, got %d", c.LogEventsRetained)

	return errors.Join(errs...)
}

// ToPipelineOptions maps the config onto the pipeline and core options.
func (c *Config) ToPipelineOptions() pipeline.Options {
	opts := pageindex.DefaultOptions()
	opts.TOCCheckPageNum = c.TOCCheckPageNum
	opts.MaxTokenNumEachNode = c.MaxTokenNumEachNode
	opts.ChunkOverlapPages = c.ChunkOverlapPages
	opts.BatchTokenLimit = c.BatchTokenLimit
	opts.MaxConcurrency = c.MaxConcurrency
	opts.MaxFixAttempts = c.MaxFixAttempts
	opts.AccuracyThreshold = c.AccuracyThreshold
	opts.VerifySampleSize = c.VerifySampleSize
	opts.RepairWindow = c.RepairWindow
	opts.OffsetSamplePages = c.OffsetSamplePages
	opts.MaxPageNumEachNode = c.MaxPageNumEachNode
	opts.IfAddNodeID = c.IfAddNodeID
	opts.IfAddNodeSummary = c.IfAddNodeSummary
	opts.IfAddDocDescription = c.IfAddDocDescription
	opts.IfAddNodeText = c.IfAddNodeText
	return pipeline.Options{Index: opts, Strategy: pageindex.Strategy(c.Strategy)}
}

// OracleConfig returns the OpenAI settings. An empty api_key falls back to
// OPENAI_API_KEY.
func (c *Config) OracleConfig() oracle.OpenAIConfig {
	key := c.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	return oracle.OpenAIConfig{
		APIKey:   key,
		Model:    c.Model,
		BaseURL:  c.BaseURL,
		Attempts: c.RetryAttempts + 1,
		Timeout:  time.Duration(c.TimeoutSeconds) * time.Second,
	}
}

// WriteDefault writes the default configuration to path. An existing file
// is left untouched.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# pagetree configuration
# Every key can be overridden with a PAGETREE_ environment variable, e.g. PAGETREE_MODEL.
# api_key falls back to OPENAI_API_KEY when empty.

`)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if _, err := f.Write(append(header, data...)); err != nil {
		f.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return f.Close()
}
