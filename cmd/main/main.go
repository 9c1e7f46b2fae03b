// Command trellis serves storefront section previews. It renders library
// sections with presets and per-project overrides and caches the results.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/CTAG07/Trellis/pkg/templating"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func versionInfo() VersionInfo {
	return VersionInfo{
		Version:       Version,
		Commit:        Commit,
		BuildDate:     BuildDate,
		EngineVersion: templating.EngineVersion,
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}

// serve runs server cycles until one ends with a shutdown. A restart reloads
// the configuration file and rebuilds every component.
func serve(configPath string) error {
	baseLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	actionChan := make(chan string, 1)

	go func() {
		osSignalChan := make(chan os.Signal, 1)
		signal.Notify(osSignalChan, syscall.SIGINT, syscall.SIGTERM)
		<-osSignalChan
		baseLogger.Info("OS signal received, initiating shutdown.")
		actionChan <- actionShutdown
	}()

	for {
		action, err := run(configPath, actionChan)
		if err != nil {
			baseLogger.Error("An error occurred during server run, shutting down.", "error", err)
			return err
		}
		if action != actionRestart {
			break
		}
		baseLogger.Info("--- Server Restarting ---")
	}

	baseLogger.Info("Trellis has shut down.")
	return nil
}

// run hosts one server cycle and returns whenever the server is shut down or
// restarted.
func run(configPath string, actionChan chan string) (string, error) {
	cm, err := NewConfigManager(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}
	config := cm.Get()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: LogLevel(config.Server.LogLevel)}))
	cm.SetLogger(logger)
	logger.Info("Starting server cycle...", "version", Version, "engine", templating.EngineVersion)

	db, err := initDB(config.Server.DatabasePath)
	if err != nil {
		return "", fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		logger.Info("Closing database connection.")
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	if err = setupSchemas(db); err != nil {
		return "", err
	}

	server, err := NewServer(cm, logger, db, actionChan)
	if err != nil {
		return "", fmt.Errorf("failed to create server object: %w", err)
	}
	defer server.Close(context.Background())

	return server.Serve(actionChan)
}
