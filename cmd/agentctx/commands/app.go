package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/opencode-ai/agentctx/internal/agent"
	"github.com/opencode-ai/agentctx/internal/config"
	"github.com/opencode-ai/agentctx/internal/event"
	"github.com/opencode-ai/agentctx/internal/logging"
	"github.com/opencode-ai/agentctx/internal/project"
	"github.com/opencode-ai/agentctx/internal/resource"
)

// app wires the pieces every command needs.
type app struct {
	workDir string
	root    string
	cfg     *config.Config
	agents  *agent.Registry
	bus     *event.Bus
	service *resource.Service
	logs    io.Closer
}

// newApp loads configuration, initializes logging, reads the agent
// directories and starts a resolution service. A missing workspace is not an
// error here: global agents still load and Resolve reports the problem.
func newApp() (*app, error) {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, err := initLogging(cfg)
	if err != nil {
		return nil, err
	}

	resolver := project.NewResolver(dir)
	root, rootErr := resolver.Root()
	localDir := ""
	if rootErr == nil {
		localDir = config.LocalAgentDir(root)
	} else {
		logging.Warn().Err(rootErr).Str("dir", dir).Msg("no workspace, loading global agents only")
	}

	agents := agent.NewRegistry(localDir, config.GlobalAgentDir(), logging.Component("agent"))
	if err := agents.Reload(); err != nil {
		logs.Close()
		return nil, fmt.Errorf("load agents: %w", err)
	}

	bus := event.NewBus()
	svc := resource.NewService(resolver,
		resource.WithConfig(cfg),
		resource.WithBus(bus),
	)

	return &app{
		workDir: dir,
		root:    root,
		cfg:     cfg,
		agents:  agents,
		bus:     bus,
		service: svc,
		logs:    logs,
	}, nil
}

// initLogging logs to stderr with --print-logs and to the log file otherwise.
func initLogging(cfg *config.Config) (io.Closer, error) {
	lc := logging.DefaultConfig()
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	lc.Level = logging.ParseLevel(level)

	if printLogs {
		lc.Output = os.Stderr
		lc.Pretty = true
		lc.TimeFormat = time.Kitchen
	} else {
		lc.File = cfg.LogFile
		if lc.File == "" {
			lc.File = config.GetPaths().LogPath()
		}
	}
	return logging.Init(lc)
}

// lookup returns the configuration of the named agent.
func (a *app) lookup(name string) (*agent.Config, error) {
	item, err := a.agents.Get(name)
	if err != nil {
		if names := a.agents.Names(); len(names) > 0 {
			return nil, fmt.Errorf("%w (available: %s)", err, strings.Join(names, ", "))
		}
		return nil, err
	}
	return item.Config, nil
}

// Close stops the service and releases the log file.
func (a *app) Close() {
	a.service.Close()
	a.bus.Close()
	a.logs.Close()
}

// describe decorates a resolution error with its kind and the recovery
// actions that fit it.
func describe(err error) error {
	if err == nil {
		return nil
	}
	kind := resource.Classify(err)
	actions := resource.RecoveryActions(err)
	if len(actions) == 0 {
		return fmt.Errorf("%s error: %w", kind, err)
	}
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}
	return fmt.Errorf("%s error: %w (try: %s)", kind, err, strings.Join(names, ", "))
}

// isCancelled reports whether err only reflects an interrupted command.
func isCancelled(err error) bool {
	return resource.Classify(err) == resource.ErrorKindCancelled || errors.Is(err, resource.ErrClosed)
}
