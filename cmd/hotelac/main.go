package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pch10086/BUPT-Hotel/internal/app"
	"github.com/pch10086/BUPT-Hotel/internal/config"
	"github.com/pch10086/BUPT-Hotel/internal/logger"
)

var version = "dev"

var (
	configFile      string
	shutdownTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "hotelac",
	Short: "Hotel central air-conditioning scheduler",
	Long: `hotelac runs the central air-conditioning service of the hotel:
guest panels power rooms on and off, the scheduler shares a limited number
of service units between rooms, and the front desk checks guests in and out
with itemized AC and lodging bills.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler and HTTP API",
	RunE:  runServe,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the database and the default rooms",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		n, err := app.Seed(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		fmt.Printf("seeded %d rooms into %s\n", n, cfg.Database.Path)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("hotelac", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to configuration file (default $"+config.EnvConfigPath+")")
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second, "Graceful shutdown timeout")
	rootCmd.AddCommand(serveCmd, seedCmd, versionCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := app.NewApp(cfg)
	if err := a.Initialize(ctx); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("收到退出信号，正在关闭")
	case err, ok := <-a.Done():
		if ok {
			serveErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Stop(shutdownCtx); err != nil {
		logger.Error("Stop error: %v", err)
	}
	return serveErr
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
