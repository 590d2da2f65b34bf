package cli

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/recall/internal/provider"
)

// askResult is the --ci output of ask.
type askResult struct {
	Conversation     int64           `json:"conversation_id"`
	Recalled         []int64         `json:"recalled"`
	Associations     int             `json:"associations"`
	GenerationFailed bool            `json:"generation_failed"`
	Reply            *provider.Reply `json:"reply"`
}

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Run a single chat round",
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

		r := NewRunner(a.obs, a.runtime(), speaker, emotion, nil)
		round, err := r.Ask(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if !ciMode {
			writeReply(out, round)
			return nil
		}

		res := askResult{
			Conversation:     round.Conversation.ID,
			Recalled:         []int64{},
			Associations:     round.Associations,
			GenerationFailed: round.GenerationFailed,
			Reply:            round.Reply,
		}
		for _, c := range round.Conversations {
			res.Recalled = append(res.Recalled, c.ID)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	RootCmd.AddCommand(askCmd)
	addTurnFlags(askCmd)
}
