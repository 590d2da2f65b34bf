package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	dbPath     string
	verbose    bool
	ciMode     bool
	speaker    string
	emotion    string
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Conversational agent with long-term memory",
	Long: `Recall keeps every chat round in an association store and injects the
relevant past rounds as context when the agent answers.`,
	SilenceUsage: true,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (.yaml, .yml or .json)")
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	RootCmd.PersistentFlags().BoolVar(&ciMode, "ci", false, "CI mode: JSON logs and JSON output, non-interactive")
}

// addTurnFlags registers the flags describing the user side of a round.
func addTurnFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&speaker, "speaker", "s", defaultSpeaker(), "Speaker name")
	cmd.Flags().StringVarP(&emotion, "emotion", "e", "", "Emotion tag of the message")
}

func defaultSpeaker() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "user"
}
