package cmd

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
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/denysvitali/filexchange/pkg/config"
	"github.com/denysvitali/filexchange/pkg/server"
	"github.com/denysvitali/filexchange/pkg/status"
	"github.com/denysvitali/filexchange/pkg/telemetry"
)

const shutdownTimeout = 30 * time.Second

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve a directory to filexchange clients",
	Long: `Start the file exchange server. It lists, sends and stores whole files in
its root directory on behalf of connected clients.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// Server-specific flags
	serverCmd.Flags().String("host", "", "Address to bind (empty for all interfaces)")
	serverCmd.Flags().IntP("port", "p", 8189, "Port to listen on")
	serverCmd.Flags().String("root-dir", "serverDir", "Directory served to clients")
	serverCmd.Flags().String("max-frame-size", "200MiB", "Largest accepted frame, e.g. 200MiB")
	serverCmd.Flags().Int("workers", 0, "Maximum concurrent connections (0 for no limit)")
	serverCmd.Flags().Bool("report-errors", true, "Reply with an error message when a request fails")
	serverCmd.Flags().Bool("status", false, "Serve /alive, /server_info and /metrics over HTTP")
	serverCmd.Flags().Int("status-port", 8190, "Port of the HTTP status server")
	serverCmd.Flags().Bool("enable-telemetry", false, "Enable OpenTelemetry tracing")
	serverCmd.Flags().String("otel-endpoint", "", "OpenTelemetry endpoint (if empty, uses auto-export)")

	// Bind flags to viper
	_ = viper.BindPFlag("server.host", serverCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serverCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.root_dir", serverCmd.Flags().Lookup("root-dir"))
	_ = viper.BindPFlag("server.max_frame_size", serverCmd.Flags().Lookup("max-frame-size"))
	_ = viper.BindPFlag("server.workers", serverCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("server.report_errors", serverCmd.Flags().Lookup("report-errors"))
	_ = viper.BindPFlag("status.enabled", serverCmd.Flags().Lookup("status"))
	_ = viper.BindPFlag("status.port", serverCmd.Flags().Lookup("status-port"))
	_ = viper.BindPFlag("telemetry.enabled", serverCmd.Flags().Lookup("enable-telemetry"))
	_ = viper.BindPFlag("telemetry.endpoint", serverCmd.Flags().Lookup("otel-endpoint"))
}

func runServer(cmd *cobra.Command, args []string) error {
	logger := GetLogger()
	logger.Info("Starting filexchange server")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize telemetry if enabled
	if cfg.Telemetry.Enabled {
		logger.Info("Initializing OpenTelemetry")
		cleanup, err := telemetry.Initialize(cfg.Telemetry, logger)
		if err != nil {
			logger.Warnf("Failed to initialize telemetry: %v", err)
		} else {
			defer cleanup()
		}
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := srv.Listen(); err != nil {
		return err
	}

	var statusSrv *status.Server
	if cfg.Status.Enabled {
		statusSrv = status.New(cfg, srv, logger)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(); err != nil && !errors.Is(err, server.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if statusSrv != nil {
		g.Go(func() error {
			if err := statusSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if statusSrv != nil {
			errs = append(errs, statusSrv.Shutdown(shutdownCtx))
		}
		errs = append(errs, srv.Shutdown(shutdownCtx))
		if err := errors.Join(errs...); err != nil {
			logger.Errorf("Shutdown error: %v", err)
			return err
		}

		logger.Info("Server stopped gracefully")
		return nil
	})

	return g.Wait()
}
