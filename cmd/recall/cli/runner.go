package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/felixgeelhaar/recall/internal/memory"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/runtime"
	"github.com/felixgeelhaar/recall/internal/ui"
)

// Runner feeds turns from a terminal into the runtime.
type Runner struct {
	Observer  *observe.Observer
	Runtime   *runtime.Runtime
	SessionID string
	Speaker   string
	Emotion   string
	UI        ui.UI
}

func NewRunner(obs *observe.Observer, rt *runtime.Runtime, speaker, emotion string, u ui.UI) *Runner {
	if u == nil {
		u = ui.SilentUI{}
	}
	rt.SetUI(u)
	return &Runner{
		Observer:  obs,
		Runtime:   rt,
		SessionID: fmt.Sprintf("session-%d", time.Now().Unix()),
		Speaker:   speaker,
		Emotion:   emotion,
		UI:        u,
	}
}

// Ask runs one round for message.
func (r *Runner) Ask(ctx context.Context, message string) (*memory.Round, error) {
	return r.Runtime.Round(ctx, r.SessionID, memory.Turn{
		Speaker: r.Speaker,
		Message: message,
		Emotion: r.Emotion,
	})
}

// Loop reads one message per line until EOF or "/quit". Failed rounds are
// reported and the loop goes on.
func (r *Runner) Loop(ctx context.Context, in io.Reader, out io.Writer) error {
	r.UI.UpdateStatus("Ready")
	scanner := bufio.NewScanner(in)
	fmt.Fprintf(out, "%s> ", r.Speaker)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "/quit" || line == "/exit":
			return nil
		case line == "":
		default:
			round, err := r.Ask(ctx, line)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				break
			}
			writeReply(out, round)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s> ", r.Speaker)
	}
	return scanner.Err()
}

func writeReply(out io.Writer, round *memory.Round) {
	if round.GenerationFailed {
		fmt.Fprintln(out, "(no reply, the round was stored empty)")
		return
	}
	name := round.Reply.MyNameIs
	if name == "" {
		name = "agent"
	}
	fmt.Fprintf(out, "%s %s: %s\n", name, round.Reply.Emotion, round.Reply.Answer)
	if round.Reply.Thought != "" {
		fmt.Fprintf(out, "  (%s)\n", round.Reply.Thought)
	}
}
