package main

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

	"phobos.org.uk/foreman/internal/config"
	"phobos.org.uk/foreman/internal/service"
)

func newServeCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	var (
		port   int
		bind   string
		useTLS bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Port = port
			}
			if bind != "" {
				cfg.Bind = bind
			}
			if useTLS {
				cfg.TLS.Enabled = true
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.TokenHash == "" && cfg.Bind != "127.0.0.1" && cfg.Bind != "localhost" && cfg.Bind != "::1" {
				fmt.Fprintf(os.Stderr, "Warning: bind=%q exposes unauthenticated endpoints. Set token_hash or bind to 127.0.0.1.\n", cfg.Bind)
			}

			s := service.New(cfg, version, service.Options{})

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				fmt.Fprintf(os.Stderr, "\nShutting down...\n")
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				s.Shutdown(ctx)
			}()

			if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (overrides config)")
	cmd.Flags().StringVar(&bind, "bind", "", "Address to bind to (overrides config)")
	cmd.Flags().BoolVar(&useTLS, "tls", false, "Serve HTTPS with a self-signed certificate")
	return cmd
}
