package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantlabs/signalgate/internal/app"
	"github.com/quantlabs/signalgate/internal/config"
	"github.com/quantlabs/signalgate/internal/httpapi"
)

const (
	appName = "signalgate"
	version = "v1.2.0"
)

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Adaptive accept/reject engine for crypto trade signals",
		Version: version,
		Long: `signalgate scores candidate trade signals against regime-aware,
self-tuning thresholds and feeds realized outcomes back into the
threshold loop, bounded by degradation detection and emergency rollback.`,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/signalgate.yaml", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the decision engine and HTTP API",
		RunE:  runServe,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the status of a running instance",
		RunE:  runStatus,
	}

	rootCmd.AddCommand(runCmd, statusCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	svc, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Error().Err(err).Msg("Shutdown cleanup failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := httpapi.NewServer(cfg.HTTP.ListenAddr, svc)
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go func() {
		_ = svc.Run(ctx)
	}()

	log.Info().Str("version", version).Msg("signalgate started")

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("HTTP server failed")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	return nil
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	addr := cfg.HTTP.ListenAddr
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/status")
	if err != nil {
		return fmt.Errorf("instance unreachable at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("bad status response: %w", err)
	}

	pretty, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
