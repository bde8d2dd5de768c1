package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"evcal/internal/config"
	appLog "evcal/internal/log"
	"evcal/internal/recurrence"
)

const version = "0.1.0"

// rootFlags holds persistent CLI flag values.
type rootFlags struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		appLog.Error("command failed", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "evcal",
		Short:         "Recurring event calendar: expansion engine, occurrence index and feeds",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "/etc/evcal/config.yaml", "Path to config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (overrides config if set)")

	root.AddCommand(
		newServeCmd(flags),
		newExpandCmd(flags),
		newExportCmd(flags),
	)
	return root
}

// loadConfig loads the config file and applies the log level.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	level := conf.LogLevel
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	appLog.SetLevel(appLog.ParseLevel(level))
	return conf, nil
}

// newEngine builds the recurrence engine for conf.
func newEngine(conf *config.Config) (*recurrence.Engine, error) {
	loc, err := conf.Location()
	if err != nil {
		return nil, err
	}
	return recurrence.NewEngine(recurrence.Config{MaxRepeats: conf.MaxRepeats, Location: loc}), nil
}

// signalContext is cancelled on SIGINT / SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
