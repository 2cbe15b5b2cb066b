// Command logtestd runs the interactive detection-rule testing service.
// Clients open sessions over a socket (or the optional HTTP/NATS
// gateways), submit sample log lines, and receive the decode and rule
// match results the analysis pipeline would have produced, without
// touching live monitoring.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/c360/logtest/config"
	"github.com/c360/logtest/engine"
	gatewayhttp "github.com/c360/logtest/gateway/http"
	gatewaynats "github.com/c360/logtest/gateway/nats"
	"github.com/c360/logtest/health"
	"github.com/c360/logtest/metric"
	"github.com/c360/logtest/natsclient"
	"github.com/c360/logtest/pipeline"
	"github.com/c360/logtest/server"
	"github.com/c360/logtest/session"
)

const appName = "logtestd"

// Version and BuildTime are set via ldflags at build time
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cli := parseFlags()

	if cli.ShowHelp {
		printDetailedHelp()
		return
	}
	if cli.ShowVersion {
		fmt.Printf("%s %s (built %s)\n", appName, Version, BuildTime)
		return
	}
	if err := validateFlags(cli); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(cli.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// CLI flags win over the config file
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Log.Format = cli.LogFormat
	}

	if cli.Validate {
		fmt.Println("configuration is valid")
		return
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if err := run(cfg, logger, cli.ShutdownTimeout); err != nil {
		logger.Error("service failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, shutdownTimeout time.Duration) error {
	logger.Info("starting", "version", Version)

	registry := metric.NewMetricsRegistry()
	metrics := registry.CoreMetrics()
	monitor := health.NewMonitor()

	// Default production ruleset, shared immutably across sessions
	loader := engine.NewLoader()
	var ruleset *engine.Ruleset
	if cfg.Ruleset.DecodersPath != "" && cfg.Ruleset.RulesPath != "" {
		var err error
		ruleset, err = loader.LoadFiles(cfg.Ruleset.DecodersPath, cfg.Ruleset.RulesPath, cfg.Ruleset.CDBDir)
		if err != nil {
			return err
		}
		logger.Info("default ruleset loaded",
			"rules", ruleset.Rules.Len(),
			"lists", len(ruleset.Lists.Names()))
	} else {
		var err error
		ruleset, err = loader.Compile(&engine.RulesetSpec{})
		if err != nil {
			return err
		}
		logger.Warn("no default ruleset configured, sessions must supply overrides")
	}

	store := session.NewStore(ruleset, session.StoreConfig{
		HistorySize: cfg.Session.HistorySize,
		Accumulator: session.AccumulatorConfig{
			PurgeLookups:  cfg.Session.PurgeLookups,
			PurgeInterval: cfg.Session.PurgeInterval.Std(),
			Window:        cfg.Session.CorrelationWindow.Std(),
		},
	}, logger, metrics)

	orch := pipeline.New(store, engine.New(logger), loader,
		pipeline.Config{ReportUndecoded: cfg.ReportUndecoded}, logger, metrics)

	reaper := session.NewReaper(store, session.ReaperConfig{
		Interval: cfg.Session.ReaperInterval.Std(),
		Timeout:  cfg.Session.Timeout.Std(),
	}, logger, metrics)
	if err := reaper.Initialize(); err != nil {
		return err
	}

	listener := server.NewListener(server.Config{
		Network:       cfg.Listen.Network,
		Address:       cfg.Listen.Address,
		Workers:       cfg.Listen.Workers,
		QueueSize:     cfg.Listen.QueueSize,
		MaxFrameBytes: cfg.Listen.MaxFrameBytes,
	}, orch, logger, metrics)
	if err := listener.Initialize(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ops server (metrics + health)
	opsServer := metric.NewServer(cfg.Ops.Addr, "/metrics", registry, monitor)
	go func() {
		if err := opsServer.Start(); err != nil {
			logger.Error("ops server failed", "error", err)
		}
	}()

	if err := reaper.Start(ctx); err != nil {
		return err
	}
	if err := listener.Start(ctx); err != nil {
		_ = reaper.Stop(shutdownTimeout)
		return err
	}
	monitor.UpdateHealthy("listener", "accepting connections")
	monitor.UpdateHealthy("reaper", "sweeping")

	// Optional gateways share the store and orchestrator, so a session
	// token works across transports.
	var httpGateway *gatewayhttp.Gateway
	if cfg.HTTP.Enabled {
		httpGateway = gatewayhttp.NewGateway(gatewayhttp.Config{
			Addr:            cfg.HTTP.Addr,
			MaxRequestBytes: int64(cfg.Listen.MaxFrameBytes),
		}, orch, logger, metrics)
		if err := httpGateway.Initialize(); err != nil {
			return err
		}
		if err := httpGateway.Start(ctx); err != nil {
			return err
		}
		monitor.UpdateHealthy("http-gateway", "serving")
	}

	var natsClient *natsclient.Client
	var natsGateway *gatewaynats.Gateway
	if cfg.NATS.Enabled {
		natsClient = natsclient.NewClient(cfg.NATS.URL, logger, natsclient.WithName(appName))
		if err := natsClient.Connect(ctx); err != nil {
			monitor.UpdateUnhealthy("nats-gateway", err.Error())
			return err
		}
		natsGateway = gatewaynats.NewGateway(gatewaynats.Config{
			Subject: cfg.NATS.Subject,
			Queue:   cfg.NATS.Queue,
		}, natsClient, orch, logger, metrics)
		if err := natsGateway.Initialize(); err != nil {
			return err
		}
		if err := natsGateway.Start(ctx); err != nil {
			return err
		}
		monitor.UpdateHealthy("nats-gateway", "subscribed")
	}

	logger.Info("service ready",
		"listen", cfg.Listen.Address,
		"http", cfg.HTTP.Enabled,
		"nats", cfg.NATS.Enabled)

	// Wait for a signal or a fatal listener failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case runErr = <-listener.Fatal():
		logger.Error("listener failed", "error", runErr)
	}

	// Stop in reverse start order
	cancel()
	if natsGateway != nil {
		if err := natsGateway.Stop(shutdownTimeout); err != nil {
			logger.Warn("nats gateway stop failed", "error", err)
		}
	}
	if natsClient != nil {
		if err := natsClient.Close(); err != nil {
			logger.Warn("nats client close failed", "error", err)
		}
	}
	if httpGateway != nil {
		if err := httpGateway.Stop(shutdownTimeout); err != nil {
			logger.Warn("http gateway stop failed", "error", err)
		}
	}
	if err := listener.Stop(shutdownTimeout); err != nil {
		logger.Warn("listener stop failed", "error", err)
	}
	if err := reaper.Stop(shutdownTimeout); err != nil {
		logger.Warn("reaper stop failed", "error", err)
	}
	if err := opsServer.Stop(); err != nil {
		logger.Warn("ops server stop failed", "error", err)
	}

	logger.Info("stopped", "sessions_remaining", store.Len())
	return runErr
}
