package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"wgenroll/internal/buildinfo"
	"wgenroll/internal/config"
	"wgenroll/internal/daemon/app"
	"wgenroll/internal/logging"
)

func main() {
	if err := logging.Configure(logging.LevelInfo, logging.FormatText); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
		cfg        config.Config
	)

	cmd := &cobra.Command{
		Use:          "wgenrolld",
		Short:        "WireGuard enrollment daemon",
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(configPath); err != nil {
				return err
			}
			level := cfg.Daemon.LogLevel
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level, cfg.Daemon.LogFormat)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx, cfg, slog.Default())
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("WGENROLL_CONFIG"), "YAML config file")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.AddCommand(dialStdioCmd(&cfg))
	return cmd
}
