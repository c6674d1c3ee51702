package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/agentctx/internal/agent"
	"github.com/opencode-ai/agentctx/internal/event"
	"github.com/opencode-ai/agentctx/internal/logging"
	"github.com/opencode-ai/agentctx/internal/server"
)

var (
	watchFormat      string
	watchMetricsAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch <agent>",
	Short: "Resolve an agent's resources and follow changes",
	Long: `Resolve the resource patterns of an agent, then watch the matching files
and print the list again whenever one of them is created, changed or deleted.

With --metrics-addr the HTTP API (including /metrics and /event) is served on
that address while watching.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchFormat, "format", "f", formatText, "Output format (text|json|yaml)")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve the HTTP API on this address (e.g. :9090)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, err := a.lookup(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.render(ctx, cmd, cfg); err != nil {
		return err
	}

	handle, err := a.service.Watch(cfg)
	if err != nil {
		return describe(err)
	}
	defer handle.Dispose()

	changed := make(chan event.ResourcesInvalidatedData, 1)
	unsub := a.bus.Subscribe(event.ResourcesInvalidated, func(e event.Event) {
		data, ok := e.Data.(event.ResourcesInvalidatedData)
		if !ok || data.Agent != cfg.Name {
			return
		}
		// Bursts collapse into one pending refresh.
		select {
		case changed <- data:
		default:
		}
	})
	defer unsub()

	if watchMetricsAddr != "" {
		srv := startServer(a, watchMetricsAddr, false)
		defer shutdownServer(srv)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %d pattern(s) of %s. Press Ctrl+C to stop.\n", len(cfg.Resources), cfg.Name)

	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-changed:
			logging.Debug().Str("op", data.Op).Str("path", data.Path).Msg("resources changed")
			fmt.Fprintf(cmd.ErrOrStderr(), "\n%s %s\n", data.Op, data.Path)
			if err := a.render(ctx, cmd, cfg); err != nil {
				return err
			}
		}
	}
}

// render resolves cfg and prints the list. Failures other than an
// interrupted command are reported without ending the watch.
func (a *app) render(ctx context.Context, cmd *cobra.Command, cfg *agent.Config) error {
	list, err := a.service.Resolve(ctx, cfg)
	switch {
	case err == nil:
		return printList(cmd.OutOrStdout(), list, watchFormat)
	case isCancelled(err):
		return nil
	default:
		fmt.Fprintln(cmd.ErrOrStderr(), describe(err))
		return nil
	}
}

// startServer runs the HTTP API in the background.
func startServer(a *app, addr string, cors bool) *server.Server {
	cfg := server.DefaultConfig()
	cfg.Addr = addr
	cfg.EnableCORS = cors

	srv := server.New(cfg, a.service, a.agents, a.bus)
	go func() {
		logging.Info().Str("addr", addr).Msg("HTTP API listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Str("addr", addr).Msg("HTTP API stopped")
		}
	}()
	return srv
}

func shutdownServer(srv *server.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn().Err(err).Msg("HTTP API shutdown")
	}
}
