package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meterdock/meterdock"
)

// ServeFlags holds flags for the serve command
type ServeFlags struct {
	ConfigPath string
}

// createServeCommand creates the serve subcommand
func createServeCommand() *cobra.Command {
	serveFlags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the meterdock daemon",
		Long: `Start the meterdock daemon: the HTTP API, the execution dispatcher and,
when enabled, the Prometheus metrics listener. Without a config file the
daemon runs with defaults (sqlite store under ./data, two concurrent
executions, listening on :8080).

Examples:
  meterdock serve
  meterdock serve meterdock.toml
  meterdock serve --config=meterdock.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(serveFlags, args)
		},
	}

	cmd.Flags().StringVar(&serveFlags.ConfigPath, "config", "", "path to TOML config file (optional)")

	return cmd
}

func runServe(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}

	cfg := meterdock.DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = meterdock.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
	}

	meterdock.SetupLogging(cfg.Log.Level, cfg.Log.NoColor)

	if cfg.Metrics.Enabled {
		if err := meterdock.RegisterMetricsDefault(); err != nil {
			fmt.Printf("Warning: failed to register metrics: %v\n", err)
		}
		if cfg.Metrics.Listen != "" {
			go func() {
				if err := meterdock.ServeMetrics(cfg.Metrics.Listen); err != nil {
					fmt.Printf("Metrics server error: %v\n", err)
				}
			}()
		}
	}

	svc, err := meterdock.New(cfg)
	if err != nil {
		return err
	}
	if err := svc.Start(context.Background()); err != nil {
		_ = svc.Stop()
		return err
	}

	protocol := "HTTP"
	var server *http.Server
	if cfg.Server.TLS.Enabled {
		protocol = "HTTPS"
		server, err = meterdock.NewTLSServer(cfg, svc)
	} else {
		server, err = meterdock.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, svc)
	}
	if err != nil {
		_ = svc.Stop()
		return fmt.Errorf("failed to create %s server: %w", protocol, err)
	}

	fmt.Printf("Starting meterdock %s server on %s%s\n", protocol, cfg.Server.Listen, cfg.Server.BasePath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	_ = server.Close()
	return svc.Stop()
}
