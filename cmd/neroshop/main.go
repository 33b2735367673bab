// Package main provides the entry point for the neroshop marketplace daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"

	"github.com/neroshop/neroshop-server/internal/config"
)

var log = logging.Logger("neroshop")

var rootCmd = &cobra.Command{
	Use:   "neroshop",
	Short: "neroshop - peer-to-peer Monero marketplace node",
	Long: `neroshop runs a marketplace peer. Listings, accounts, ratings and orders
live in a Kademlia DHT; a local SQLite index makes them searchable.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
	SilenceUsage: true,
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the neroshop daemon",
	RunE:  runDaemon,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration",
	RunE:  runInit,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Drop local index entries the DHT no longer holds",
	RunE:  runReindex,
}

var (
	configPath string
	listenAddr string
	offline    bool
	debug      bool
	settle     time.Duration
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	daemonCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "override listen address")
	daemonCmd.Flags().BoolVar(&offline, "offline", false, "use an in-memory DHT")
	reindexCmd.Flags().DurationVar(&settle, "settle", 10*time.Second, "time to wait for peers before sweeping")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(reindexCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging() error {
	if debug {
		logging.SetAllLoggers(logging.LevelDebug)
		return nil
	}
	level := logging.LevelInfo
	if cfg, err := config.Load(configPath); err == nil && cfg.Logging.Level != "" {
		parsed, err := logging.LevelFromString(cfg.Logging.Level)
		if err != nil {
			return fmt.Errorf("invalid logging.level: %w", err)
		}
		level = parsed
	}
	logging.SetAllLoggers(level)
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if listenAddr != "" {
		cfg.Network.Listen = []string{listenAddr}
	}
	if offline {
		cfg.Network.Offline = true
	}
	return cfg, nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	log.Info("Starting neroshop daemon...")
	if err := a.start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	cfg := config.Default()
	if err := config.Save(path, cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	if err := os.MkdirAll(cfg.Storage.Path, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	log.Infof("Initialized neroshop configuration at %s", path)
	return nil
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Network.Offline {
		// An in-memory DHT is empty, so every entry would look stale.
		return fmt.Errorf("reindex needs the network; disable network.offline")
	}
	cfg.API.Enabled = false

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.start(ctx); err != nil {
		return err
	}

	log.Infof("Waiting %s for peers...", settle)
	select {
	case <-time.After(settle):
	case <-ctx.Done():
		return ctx.Err()
	}
	if a.node.Peers() == 0 {
		return fmt.Errorf("no peers connected; refusing to sweep")
	}

	reports, err := a.reindex(ctx)
	for content, r := range reports {
		log.Infof("Swept %s: %d checked, %d present, %d absent, %d malformed", content, r.Checked, r.Present, r.Absent, r.Malformed)
	}
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	log.Info("Reindex complete")
	return nil
}
