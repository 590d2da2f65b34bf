package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/recall/internal/memory"
)

var recallCmd = &cobra.Command{
	Use:   "recall [message]",
	Short: "Print the context a message would recall, without answering or storing it",
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

		rt := a.runtime()
		rec, err := rt.Recall(ctx, memory.Turn{
			Speaker: speaker,
			Message: strings.Join(args, " "),
			Emotion: emotion,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if rec.Context == "" {
			fmt.Fprintln(out, "(nothing recalled)")
			return nil
		}
		fmt.Fprint(out, rec.Context)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(recallCmd)
	addTurnFlags(recallCmd)
}
