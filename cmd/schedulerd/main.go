// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mariogk/agentsdashboard/internal/backgroundwork"
	"github.com/mariogk/agentsdashboard/internal/backgroundwork/notify"
	"github.com/mariogk/agentsdashboard/internal/config"
	"github.com/mariogk/agentsdashboard/internal/log"
	"github.com/mariogk/agentsdashboard/internal/notifysink/slack"
	"github.com/mariogk/agentsdashboard/internal/telemetry"
)

// Version information, injected via ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var (
	configPath     string
	metricsAddrOpt string
	showVersion    bool
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedulerd",
		Short: "Run the background work scheduler daemon",
		Long: `schedulerd runs the background work scheduler: it accepts submissions
for long-running work, executes them under a bounded worker pool, tracks
their lifecycle, and relays state changes to a notification sink.`,
		RunE: runServe,
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to schedulerd.yaml")
	cmd.Flags().StringVar(&metricsAddrOpt, "metrics-addr", "", "Address to serve /metrics on (overrides config)")
	cmd.Flags().BoolVar(&showVersion, "version", false, "Print version information and exit")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	if showVersion {
		fmt.Printf("schedulerd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if metricsAddrOpt != "" {
		cfg.MetricsAddr = metricsAddrOpt
	}

	logger := log.New(cfg.LogConfig())
	slog.SetDefault(logger)
	logger.Info("schedulerd starting", log.String("version", version))

	registerer := prometheus.NewRegistry()

	ctx := context.Background()
	tel, err := telemetry.NewProvider(ctx, telemetry.Config{
		ServiceName:       "schedulerd",
		ServiceVersion:    version,
		MetricsRegisterer: registerer,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", log.Error(err))
		}
	}()

	schedCfg := cfg.SchedulerConfig()
	schedCfg.Logger = logger
	schedCfg.MetricsRegisterer = registerer

	scheduler, err := backgroundwork.NewScheduler(schedCfg)
	if err != nil {
		return fmt.Errorf("constructing scheduler: %w", err)
	}
	if err := scheduler.StartAsync(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	sink := buildNotificationSink(cfg, logger)
	relay := notify.NewRelay(scheduler, sink, logger)
	relay.Start()
	defer relay.Stop()

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}),
	}
	go func() {
		logger.Info("metrics endpoint listening", log.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", log.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", log.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod+5*time.Second)
	defer cancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown failed", log.Error(err))
	}
	if err := scheduler.StopAsync(shutdownCtx); err != nil {
		logger.Error("scheduler shutdown failed", log.Error(err))
		return err
	}

	logger.Info("schedulerd shutdown complete")
	return nil
}

// buildNotificationSink wires a Slack webhook sink when configured, and
// falls back to logging envelopes through the daemon's own logger so the
// relay always has somewhere to deliver to.
func buildNotificationSink(cfg *config.Config, logger *slog.Logger) notify.Sink {
	if cfg.Notification.SlackWebhookURL != "" {
		return slack.NewSink(cfg.Notification.SlackWebhookURL)
	}
	return notify.SinkFunc(func(ctx context.Context, env notify.Envelope) error {
		logger.Info("notification",
			log.String("title", env.Title),
			log.String("message", env.Message),
			log.String("severity", string(env.Severity)))
		return nil
	})
}
