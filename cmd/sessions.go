package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/itsmostafa/pagetree/internal/output"
)

var sessionsJSON bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync()

		sessions, err := readPipeline(cfg, log).ListSessions()
		if err != nil {
			return err
		}
		if sessionsJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sessions)
		}
		output.FormatSessions(cmd.OutOrStdout(), sessions)
		return nil
	},
}

func init() {
	sessionsCmd.Flags().BoolVar(&sessionsJSON, "json", false, "Print the list as JSON")
	rootCmd.AddCommand(sessionsCmd)
}
