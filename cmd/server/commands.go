package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jun/drivechat/internal/app"
	"github.com/jun/drivechat/internal/config"
	"github.com/jun/drivechat/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook and OAuth callback on a local HTTP server",
	RunE:  runServe,
}

var importTokenCmd = &cobra.Command{
	Use:   "import-token <identity> <refresh-token>",
	Short: "Authorize an identity from an existing refresh token",
	Long: `Stores an authorized record for a chat identity (e.g. whatsapp:+15550001)
from a refresh token obtained elsewhere. The first command from that
identity exchanges it for an access token.`,
	Args: cobra.ExactArgs(2),
	RunE: runImportToken,
}

var statusCmd = &cobra.Command{
	Use:   "status <identity>",
	Short: "Print the authorization state of an identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "Listen address (overrides config)")
}

// boot loads config and wires the application.
func boot(ctx context.Context) (*app.App, *config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := app.NewLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	a, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return a, cfg, logger, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cfg, logger, err := boot(ctx)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer a.Close()

	addr := cfg.Listen
	if listenAddr != "" {
		addr = listenAddr
	}
	srv := server.NewHTTPServer(a, logger)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Start(addr)
	}()

	select {
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	return srv.Shutdown(context.Background())
}

func runImportToken(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, _, logger, err := boot(ctx)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer a.Close()

	if err := a.Auth.ImportRefreshToken(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %s is authorized\n", args[0])
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, _, logger, err := boot(ctx)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer a.Close()

	status, err := a.Auth.Status(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], status)
	return nil
}
