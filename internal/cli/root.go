// Package cli wires the ollama-dash command line: the control panel server
// plus one-shot daemon commands for terminals.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ollama-dash/internal/config"
	"ollama-dash/internal/ollama"
)

type app struct {
	version string
	cfg     config.Config

	listen    string
	daemonURL string
	logLevel  string
}

// NewRootCommand builds the command tree. Running it without a subcommand serves the panel.
func NewRootCommand(version string) *cobra.Command {
	a := &app{version: version}
	root := &cobra.Command{
		Use:               "ollama-dash",
		Short:             "Control panel for a local Ollama daemon",
		SilenceUsage:      true,
		PersistentPreRunE: a.loadConfig,
		RunE:              a.runServe,
	}

	root.PersistentFlags().StringVar(&a.listen, "listen", "", "listen address (overrides LISTEN_ADDR)")
	root.PersistentFlags().StringVar(&a.daemonURL, "daemon", "", "daemon URL (overrides DAEMON_URL)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug|info|warn|error (overrides LOG_LEVEL)")

	root.AddCommand(
		a.serveCommand(),
		a.versionCommand(),
		a.listCommand(),
		a.psCommand(),
		a.showCommand(),
		a.rmCommand(),
		a.loadCommand(),
		a.unloadCommand(),
		a.pullCommand(),
		a.chatCommand(),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute(version string) {
	if err := NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment, then applies flag overrides.
func (a *app) loadConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if a.listen != "" {
		cfg.ListenAddr = a.listen
	}
	if a.daemonURL != "" {
		cfg.DaemonURL = a.daemonURL
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	a.cfg = cfg
	return nil
}

func (a *app) newClient() (*ollama.Client, error) {
	c, err := ollama.NewClient(a.cfg.DaemonURL)
	if err != nil {
		return nil, err
	}
	c.Timeouts = ollama.Timeouts{
		Metadata: a.cfg.MetadataTimeout,
		Show:     a.cfg.ShowTimeout,
		Load:     a.cfg.LoadTimeout,
	}
	return c, nil
}
