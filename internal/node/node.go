// Copyright 2026 Blink Labs Software
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

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os/signal"
	"syscall"
	"time"

	"github.com/blinklabs-io/wilhelmina"
	"github.com/blinklabs-io/wilhelmina/eventlog"
	"github.com/blinklabs-io/wilhelmina/gateway/natsgw"
	"github.com/blinklabs-io/wilhelmina/internal/config"
	"github.com/blinklabs-io/wilhelmina/ritual"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NodeConfig maps the loaded configuration onto node options
func NodeConfig(
	cfg *config.Config,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (wilhelmina.Config, error) {
	loc, err := cfg.Location()
	if err != nil {
		return wilhelmina.Config{}, err
	}
	exclude := make([]eventlog.Kind, 0, len(cfg.AuditExclude))
	for _, kind := range cfg.AuditExclude {
		exclude = append(exclude, eventlog.Kind(kind))
	}
	opts := []wilhelmina.ConfigOptionFunc{
		wilhelmina.WithLogger(logger),
		wilhelmina.WithPrometheusRegistry(promRegistry),
		wilhelmina.WithDatabasePath(cfg.DatabasePath),
		wilhelmina.WithBlobPlugin(cfg.BlobPlugin),
		wilhelmina.WithMetadataPlugin(cfg.MetadataPlugin),
		wilhelmina.WithGateway(cfg.Gateway),
		wilhelmina.WithNatsConfig(natsgw.Config{
			URL:             cfg.NatsUrl,
			Prefix:          cfg.NatsPrefix,
			CredentialsFile: cfg.NatsCredentialsFile,
			RequestTimeout:  cfg.NatsRequestTimeout,
		}),
		wilhelmina.WithLangFile(cfg.LangFile, cfg.LangWatch),
		wilhelmina.WithLocation(loc),
		wilhelmina.WithBrand(cfg.Brand),
		wilhelmina.WithSerialCeiling(cfg.SerialCeiling),
		wilhelmina.WithContractPromptTimeout(cfg.ContractPromptTimeout),
		wilhelmina.WithRitualSchedule(ritual.ScheduleConfig{
			Beats:     cfg.Ritual.Beats,
			Duration:  cfg.Ritual.Duration,
			JitterMin: cfg.Ritual.JitterMin,
			JitterMax: cfg.Ritual.JitterMax,
		}),
		wilhelmina.WithRitualLimits(ritual.Limits{
			EveryoneMaxTotal:           cfg.Ritual.EveryoneMaxTotal,
			EveryoneMinGap:             cfg.Ritual.EveryoneMinGap,
			PerBeatMemberMentions:      cfg.Ritual.PerBeatMemberMentions,
			PerRitualMemberMentionsMax: cfg.Ritual.PerRitualMemberMentionsMax,
		}),
		wilhelmina.WithResumeWindow(cfg.Ritual.ResumeWindow),
		wilhelmina.WithStorageRetryInterval(cfg.Ritual.StorageRetryInterval),
		wilhelmina.WithAuditRate(
			cfg.Audit.RateLimit,
			cfg.Audit.Burst,
			cfg.Audit.QueueSize,
		),
		wilhelmina.WithKafka(cfg.KafkaBrokers, cfg.KafkaTopic),
		wilhelmina.WithApiListenAddress(cfg.ApiListenAddress, cfg.ApiPort),
		wilhelmina.WithApiJwtSecret(cfg.ApiJwtSecret),
		wilhelmina.WithTracing(cfg.Tracing),
		wilhelmina.WithTracingStdout(cfg.TracingStdout),
		wilhelmina.WithShutdownTimeout(cfg.ShutdownTimeout),
	}
	// An empty list keeps the sink's default exclusions
	if len(exclude) > 0 {
		opts = append(opts, wilhelmina.WithAuditExclude(exclude...))
	}
	return wilhelmina.NewConfig(opts...), nil
}

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", redacted(cfg)), "component", "node")

	shutdownTimeout := 30 * time.Second
	if cfg.ShutdownTimeout > 0 {
		shutdownTimeout = cfg.ShutdownTimeout
	}

	nodeCfg, err := NodeConfig(
		cfg,
		logger,
		// Enable metrics with default prometheus registry
		prometheus.DefaultRegisterer,
	)
	if err != nil {
		return err
	}
	n, err := wilhelmina.New(nodeCfg)
	if err != nil {
		return err
	}
	// Metrics and debug listener
	var metricsServer *http.Server
	metricsErr := make(chan error, 1)
	if cfg.MetricsPort > 0 {
		http.Handle("/metrics", promhttp.Handler())
		metricsAddr := fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.MetricsPort)
		logger.Info(
			"serving prometheus metrics on "+metricsAddr,
			"component",
			"node",
		)
		metricsServer = &http.Server{
			Addr:              metricsAddr,
			ReadHeaderTimeout: 60 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				metricsErr <- fmt.Errorf("failed to start metrics listener: %w", err)
			}
		}()
	}
	stopMetrics := func() {
		if metricsServer == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	// Run node in goroutine
	errChan := make(chan error, 1)
	go func() {
		//nolint:contextcheck
		errChan <- n.Run(signalCtx)
	}()

	var runErr error
	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")
	case runErr = <-errChan:
		if runErr != nil {
			logger.Error("node error", "error", runErr)
		} else {
			logger.Info("node stopped")
		}
	case runErr = <-metricsErr:
		logger.Error("metrics listener error", "error", runErr)
	}
	signalCtxStop()
	stopMetrics()
	if err := n.Stop(); err != nil {
		logger.Error("shutdown errors occurred", "error", err)
		return errors.Join(runErr, err)
	}
	if runErr == nil {
		logger.Info("shutdown complete")
	}
	return runErr
}

// redacted returns a copy of cfg safe for debug logging
func redacted(cfg *config.Config) config.Config {
	ret := *cfg
	if ret.ApiJwtSecret != "" {
		ret.ApiJwtSecret = "REDACTED"
	}
	return ret
}
