package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/recall/internal/memory"
	"github.com/felixgeelhaar/recall/internal/runtime"
	"github.com/felixgeelhaar/recall/internal/ui"
	"github.com/felixgeelhaar/recall/internal/ui/tui"
)

var (
	plain       bool
	metricsAddr string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the agent interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		interactive := !plain && !ciMode
		logOut := cmd.ErrOrStderr()
		if interactive {
			// Logs would tear the TUI; only errors go to stderr.
			verbose = false
		}

		a, err := newApp(ctx, logOut)
		if err != nil {
			return err
		}
		defer a.Close()

		rt := a.runtime()
		if metricsAddr != "" {
			srv := &http.Server{Addr: metricsAddr, Handler: rt.Metrics().Handler(), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.obs.Log().Error().Err(err).Msg("metrics server failed")
				}
			}()
			defer srv.Close()
		}

		if !interactive {
			if verbose {
				rt.Events().Subscribe(runtime.LogEvents(a.obs.Log()))
			}
			r := NewRunner(a.obs, rt, speaker, emotion, ui.NewLineUI(cmd.ErrOrStderr()))
			return r.Loop(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		}

		var r *Runner
		model := tui.NewModel("recall · "+a.engine.Name(), speaker, func(message string) (*memory.Round, error) {
			return r.Ask(ctx, message)
		})
		program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		r = NewRunner(a.obs, rt, speaker, emotion, tui.NewTUI(program))

		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return err
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(chatCmd)
	addTurnFlags(chatCmd)
	chatCmd.Flags().BoolVar(&plain, "plain", false, "Line-based chat instead of the TUI")
	chatCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
}
