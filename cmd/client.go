package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/denysvitali/filexchange/pkg/browser"
	"github.com/denysvitali/filexchange/pkg/client"
	"github.com/denysvitali/filexchange/pkg/config"
	"github.com/denysvitali/filexchange/pkg/storage"
)

// clientCmd represents the interactive client command
var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Browse and transfer files with a filexchange server",
	Long: `Connect to a filexchange server and start an interactive session. Type help
for the list of commands.`,
	RunE: runClient,
}

func init() {
	rootCmd.AddCommand(clientCmd)

	clientCmd.Flags().StringP("address", "a", "localhost:8189", "Server address")
	clientCmd.Flags().String("root-dir", "clientDir", "Local directory for downloads and uploads")
	clientCmd.Flags().String("max-frame-size", "200MiB", "Largest accepted frame, e.g. 200MiB")
	clientCmd.Flags().Duration("request-timeout", 10*time.Second, "How long to wait for each server reply")
	clientCmd.Flags().Int("dial-attempts", 3, "Connection attempts at startup")

	_ = viper.BindPFlag("client.address", clientCmd.Flags().Lookup("address"))
	_ = viper.BindPFlag("client.root_dir", clientCmd.Flags().Lookup("root-dir"))
	_ = viper.BindPFlag("client.max_frame_size", clientCmd.Flags().Lookup("max-frame-size"))
	_ = viper.BindPFlag("client.request_timeout", clientCmd.Flags().Lookup("request-timeout"))
	_ = viper.BindPFlag("client.dial_attempts", clientCmd.Flags().Lookup("dial-attempts"))
}

func runClient(cmd *cobra.Command, args []string) error {
	logger := GetLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	local, err := storage.Open(cfg.Client.RootDir)
	if err != nil {
		return fmt.Errorf("failed to open local directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(cfg.Client, logger)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Close()

	b := browser.New(local, c, logger, cfg.Client.QueueSize)

	// Received commands are applied on one goroutine, in arrival order
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	go func() {
		if err := c.Run(runCtx, b.Handle); err != nil && runCtx.Err() == nil {
			logger.Warnf("Session ended: %v", err)
		}
	}()

	shell := browser.NewShell(b, cmd.OutOrStdout(), cfg.Client.RequestTimeout)
	fmt.Fprintf(cmd.OutOrStdout(), "Connected to %s, local directory %s\n", cfg.Client.Address, local.Path())
	if err := shell.Exec(ctx, "ls"); err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "error: %v\n", err)
	}

	if err := shell.Run(ctx, cmd.InOrStdin(), c.Done()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
