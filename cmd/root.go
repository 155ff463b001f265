package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/itsmostafa/pagetree/internal/config"
	"github.com/itsmostafa/pagetree/internal/logger"
	"github.com/itsmostafa/pagetree/internal/pipeline"
	"github.com/itsmostafa/pagetree/internal/session"
	"github.com/itsmostafa/pagetree/internal/version"
)

var cfgFile string
var verbose bool

var rootCmd = &cobra.Command{
	Use:   "pagetree",
	Short: "Build a hierarchical section tree from long documents",
	Long: `pagetree turns a long PDF into a tree of titled sections, each bound to the
physical page range it covers. A language model reads the pages, the table of
contents is used when one exists, and every claimed location is verified
against the page text before the tree is assembled.

Each run is checkpointed under log_dir so it can be inspected with
"pagetree status" and "pagetree sessions".`,
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(fmt.Sprintf("pagetree %s\n", version.String()))

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./pagetree.yaml or $HOME/.pagetree/pagetree.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-dir", "", "Directory for session checkpoints")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// flagKeys maps config keys to the flags that override them.
var flagKeys = map[string]string{
	"log_dir":                "log-dir",
	"model":                  "model",
	"pdf_parser":             "parser",
	"strategy":               "strategy",
	"if_add_node_summary":    "add-summaries",
	"if_add_node_text":       "add-text",
	"if_add_doc_description": "add-description",
	"accuracy_threshold":     "accuracy-threshold",
}

// loadConfig resolves configuration for cmd, letting any of its flags
// that map to a config key take precedence.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	loader := config.NewLoader(cfgFile)
	for key, name := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := loader.BindFlag(key, f); err != nil {
				return nil, err
			}
		}
	}
	return loader.Load()
}

func newLogger() (*logger.Logger, error) {
	return logger.New(os.Getenv("PAGETREE_LOG_MODE"), verbose)
}

// readPipeline returns a pipeline that can only answer session queries.
func readPipeline(cfg *config.Config, log *logger.Logger) *pipeline.Pipeline {
	store := session.NewStore(cfg.LogDir, cfg.LogEventsRetained)
	return pipeline.New(nil, nil, store, cfg.ToPipelineOptions(), log)
}
