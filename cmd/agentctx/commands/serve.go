package commands

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/agentctx/internal/logging"
	"github.com/opencode-ai/agentctx/internal/server"
)

var (
	serveAddr string
	serveCORS bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the resolution API over HTTP",
	Long: `Start an HTTP server that lists agents, resolves their resources, manages
watches and streams resource events (SSE on /event).

This is useful for editors and other tools that display agent context.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	defaults := server.DefaultConfig()
	serveCmd.Flags().StringVar(&serveAddr, "addr", defaults.Addr, "Address to listen on")
	serveCmd.Flags().BoolVar(&serveCORS, "cors", defaults.EnableCORS, "Allow cross-origin requests")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	logging.Info().
		Str("version", Version).
		Str("workspace", a.root).
		Int("agents", a.agents.Count()).
		Msg("starting agentctx server")

	cfg := server.DefaultConfig()
	cfg.Addr = serveAddr
	cfg.EnableCORS = serveCORS
	srv := server.New(cfg, a.service, a.agents, a.bus)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "agentctx listening on http://%s\n", serveAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-quit:
	}

	logging.Info().Msg("shutting down server")
	shutdownServer(srv)
	logging.Info().Msg("server stopped")
	return nil
}
