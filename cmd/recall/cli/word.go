package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/recall/internal/memory"
)

var wordCmd = &cobra.Command{
	Use:   "word [message]",
	Short: "Ask for a single word about a message, without storing it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		a, err := newApp(ctx, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		word, err := a.runtime().Word(ctx, memory.Turn{
			Speaker: speaker,
			Message: strings.Join(args, " "),
			Emotion: emotion,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if ciMode {
			return json.NewEncoder(out).Encode(map[string]string{"word": word})
		}
		if word == "" {
			fmt.Fprintln(out, "(no word)")
			return nil
		}
		fmt.Fprintln(out, word)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(wordCmd)
	addTurnFlags(wordCmd)
}
