package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/itsmostafa/pagetree/internal/oracle"
	"github.com/itsmostafa/pagetree/internal/output"
	"github.com/itsmostafa/pagetree/internal/pagesource"
	"github.com/itsmostafa/pagetree/internal/pipeline"
	"github.com/itsmostafa/pagetree/internal/session"
)

var processOutput string
var noNodeIDs bool
var printTree bool

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Extract the section tree of a document",
	Long: `Extract the section tree of a document and write it as JSON.

The output defaults to <name>_structure.json in the current directory. On
failure the stage, recovery suggestions and checkpoint path are printed and
the command exits non-zero.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if noNodeIDs {
			cfg.IfAddNodeID = false
		}

		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync()

		source, err := pagesource.New(cfg.PDFParser)
		if err != nil {
			return err
		}

		oc := cfg.OracleConfig()
		oc.Logger = log
		llm, err := oracle.NewOpenAI(oc)
		if err != nil {
			return err
		}

		store := session.NewStore(cfg.LogDir, cfg.LogEventsRetained)
		p := pipeline.New(source, llm, store, cfg.ToPipelineOptions(), log)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		output.FormatHeader(out, filepath.Base(path), source.Name(), llm.Model())

		res, err := p.Process(ctx, path)
		if err != nil {
			var failure *pipeline.Failure
			if errors.As(err, &failure) {
				output.FormatFailure(cmd.ErrOrStderr(), failure)
			}
			return err
		}

		outPath := processOutput
		if outPath == "" {
			outPath = defaultOutputPath(path)
		}
		data, err := json.MarshalIndent(res.Document, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal structure: %w", err)
		}
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", outPath, err)
		}

		output.FormatResult(out, res, outPath)
		if printTree {
			output.FormatTree(out, res.Document.Structure)
		}
		return nil
	},
}

// defaultOutputPath names the output after the input, in the working
// directory.
func defaultOutputPath(input string) string {
	name := filepath.Base(input)
	return strings.TrimSuffix(name, filepath.Ext(name)) + "_structure.json"
}

func init() {
	f := processCmd.Flags()
	f.StringVarP(&processOutput, "output", "o", "", "Output JSON file (default <name>_structure.json)")
	f.String("model", "", "Model used for every oracle call")
	f.String("parser", "", "Page source backend (native, pdftotext, text)")
	f.String("strategy", "", "Force an extraction strategy (toc_with_pages, toc_no_pages, no_toc)")
	f.Bool("add-summaries", false, "Add a summary to every node")
	f.Bool("add-text", false, "Keep the page text of every node in the output")
	f.Bool("add-description", false, "Add a one-sentence document description")
	f.BoolVar(&noNodeIDs, "no-node-ids", false, "Do not assign node ids")
	f.Float64("accuracy-threshold", 0, "Verification accuracy below which repair runs")
	f.BoolVar(&printTree, "tree", false, "Print the section tree after the summary")

	rootCmd.AddCommand(processCmd)
}
