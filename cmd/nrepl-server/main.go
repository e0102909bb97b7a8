package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	"github.com/zylisp/nrepl"
	"github.com/zylisp/nrepl/server"
)

func main() {
	baseLogger := pslog.LoggerFromEnv(
		pslog.WithEnvPrefix("NREPL_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	)
	if err := newRootCommand(baseLogger).Execute(); err != nil {
		baseLogger.Error("nrepl-server.failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "nrepl-server",
		Short:         "nrepl-server speaks the nREPL wire protocol over TCP for the zylisp runtime",
		SilenceErrors: true,
		Example: `
  # Bind an ephemeral port on loopback, write it to .nrepl-port
  nrepl-server

  # Fixed endpoint
  nrepl-server --host 0.0.0.0 --port 7888

  # Everything is also configurable via NREPL_* environment variables
  NREPL_PORT=7888 nrepl-server`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			if cfgFile := strings.TrimSpace(viper.GetString("config")); cfgFile != "" {
				viper.SetConfigFile(cfgFile)
				if err := viper.ReadInConfig(); err != nil {
					return fmt.Errorf("read config %s: %w", cfgFile, err)
				}
			}

			logger := baseLogger
			if level, ok := pslog.ParseLevel(strings.TrimSpace(viper.GetString("log-level"))); ok {
				logger = logger.LogLevel(level)
			}

			srv, err := nrepl.NewServer(nrepl.Config{
				Host:           viper.GetString("host"),
				Port:           viper.GetInt("port"),
				RecvBufferSize: viper.GetInt("recv-buffer-size"),
				PortFile:       viper.GetString("port-file"),
				Logger:         logger,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = srv.Start(ctx)
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				fmt.Println("Interrupt received; nREPL server shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Stop(shutdownCtx)
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.String("host", server.DefaultHost, "bind address")
	flags.Int("port", 0, "bind port (0 picks an ephemeral port)")
	flags.Int("recv-buffer-size", server.DefaultRecvBufferSize, "bytes requested per socket read")
	flags.String("port-file", server.DefaultPortFile, "file the bound port is written to (\"-\" disables)")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.String("config", "", "optional config file (yaml)")

	for _, name := range []string{"host", "port", "recv-buffer-size", "port-file", "log-level", "config"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("NREPL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	return cmd
}
