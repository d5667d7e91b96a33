package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/zquery/internal/datasource"
	"github.com/tinytelemetry/zquery/internal/duckdb"
	"github.com/tinytelemetry/zquery/internal/httpserver"
	"github.com/tinytelemetry/zquery/internal/inventory"
	"github.com/tinytelemetry/zquery/internal/metrics"
	"github.com/tinytelemetry/zquery/internal/socketrpc"
)

// runServer serves item and timeseries queries until SIGINT or SIGTERM.
func runServer(cfg appConfig) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	store, err := duckdb.NewStore(cfg.DBPath, duckdb.WithQueryTimeout(cfg.QueryTimeout))
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()

	seeded, err := seedInventory(store, cfg.InventoryFile)
	if err != nil {
		return err
	}
	if seeded != nil {
		groups, hosts, apps, items := seeded.Len()
		logger.Info("inventory seeded",
			zap.String("file", cfg.InventoryFile),
			zap.Int("groups", groups),
			zap.Int("hosts", hosts),
			zap.Int("applications", apps),
			zap.Int("items", items),
		)
	}

	retentionCleaner := duckdb.NewRetentionCleaner(store, duckdb.RetentionConfig{
		RetentionDays: cfg.HistoryRetention,
		Logger:        logger,
	})
	if retentionCleaner != nil {
		defer retentionCleaner.Stop()
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	svc, err := datasource.NewService(store, datasource.Config{
		FilterCacheSize: cfg.FilterCacheSize,
		Metrics:         m,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(cfg.APIAddr, svc, store, m, logger)
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			return apiServer.Stop()
		})
	}

	socketUp := false
	if cfg.SocketEnabled {
		sockServer := socketrpc.NewServer(cfg.SocketPath, svc, logger)
		if err := sockServer.Start(); err != nil {
			logger.Warn("socket server not started", zap.Error(err))
		} else {
			socketUp = true
			g.Go(func() error {
				<-gctx.Done()
				sockServer.Stop()
				return nil
			})
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		if socketUp {
			os.Remove(cfg.SocketPath)
		}
		os.Exit(1)
	}()

	printStartupBanner(cfg, socketUp, retentionCleaner != nil)

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("shutdown", zap.Error(err))
		return err
	}
	logger.Info("stopped")
	return nil
}

// seedInventory replaces the stored inventory with the snapshot in path.
// An empty path leaves the store untouched and returns nil.
func seedInventory(store *duckdb.Store, path string) (*inventory.Snapshot, error) {
	if path == "" {
		return nil, nil
	}
	snap, err := inventory.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load inventory file: %w", err)
	}
	if err := store.ReplaceInventory(snap); err != nil {
		return nil, fmt.Errorf("failed to store inventory: %w", err)
	}
	return snap, nil
}

// newLogger builds a JSON production logger writing to stderr.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	conf := zap.NewProductionConfig()
	conf.Level = zap.NewAtomicLevelAt(lvl)
	conf.EncoderConfig.TimeKey = "ts"
	conf.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	conf.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return conf.Build()
}

func printStartupBanner(cfg appConfig, socketUp, retention bool) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╔═╗╔═╗ ╦ ╦╔═╗╦═╗╦ ╦
    ╔═╝║═╬╗║ ║║╣ ╠╦╝╚╦╝
    ╚═╝╚═╝╚╚═╝╚═╝╩╚═ ╩ `)

	var lines []string
	lines = append(lines, "", logo, "    "+dim.Render("v"+version), "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator, "")

	lines = append(lines, bold.Render("    Gateway"), "")
	if cfg.APIEnabled {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", dot, dim.Render("disabled")))
	}
	if cfg.APIEnabled && cfg.MetricsEnabled {
		lines = append(lines, fmt.Sprintf("    %s  Metrics        %s", check, cyan.Render("http://"+cfg.APIAddr+"/metrics")))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Metrics        %s", dot, dim.Render("disabled")))
	}
	if socketUp {
		lines = append(lines, fmt.Sprintf("    %s  Unix Socket    %s", check, cyan.Render(shortenPath(cfg.SocketPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Unix Socket    %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Storage"), "")
	lines = append(lines, fmt.Sprintf("    %s  Storage        %s", check, dim.Render(shortenPath(storageLabel(cfg.DBPath)))))
	if cfg.InventoryFile != "" {
		lines = append(lines, fmt.Sprintf("    %s  Inventory      %s", check, dim.Render(shortenPath(cfg.InventoryFile))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Inventory      %s", dot, dim.Render("via PUT /api/inventory")))
	}
	if retention {
		lines = append(lines, fmt.Sprintf("    %s  Retention      %s", check, dim.Render(strconv.Itoa(cfg.HistoryRetention)+" days")))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Retention      %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"), "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines, "", separator, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"), "")

	fmt.Println(strings.Join(lines, "\n"))
}

func storageLabel(path string) string {
	if path == "" {
		return "in-memory"
	}
	return path
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
