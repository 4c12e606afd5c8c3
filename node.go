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

package wilhelmina

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/wilhelmina/api"
	"github.com/blinklabs-io/wilhelmina/audit"
	"github.com/blinklabs-io/wilhelmina/contract"
	"github.com/blinklabs-io/wilhelmina/database"
	"github.com/blinklabs-io/wilhelmina/event"
	"github.com/blinklabs-io/wilhelmina/eventlog"
	"github.com/blinklabs-io/wilhelmina/gateway"
	"github.com/blinklabs-io/wilhelmina/gateway/loggw"
	"github.com/blinklabs-io/wilhelmina/gateway/natsgw"
	"github.com/blinklabs-io/wilhelmina/internal/lockfile"
	"github.com/blinklabs-io/wilhelmina/lang"
	"github.com/blinklabs-io/wilhelmina/ritual"
	"github.com/blinklabs-io/wilhelmina/serial"
	"golang.org/x/time/rate"
)

type Node struct {
	eventBus      *event.EventBus
	db            *database.Database
	journal       *eventlog.Log
	lang          *lang.Store
	platform      gateway.Gateway
	natsGateway   *natsgw.Gateway
	machine       *contract.Machine
	engine        *ritual.Engine
	forwarder     *audit.Forwarder
	api           *api.Server
	lock          *lockfile.Lock
	runCancel     context.CancelFunc
	shutdownFuncs []func(context.Context) error
	config        Config
	ready         chan struct{}
	done          chan struct{}
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Node, error) {
	if cfg.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	n := &Node{
		config:   cfg,
		eventBus: event.NewEventBus(cfg.promRegistry, cfg.logger),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	return n, nil
}

// Run starts every component and blocks until ctx is done or Stop is
// called. Unfinished rituals inside the resume window are picked up before
// the API starts accepting requests.
func (n *Node) Run(ctx context.Context) error {
	logger := n.config.logger
	ctx, n.runCancel = context.WithCancel(ctx)
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	// Only one process may own a data directory
	if n.config.dataDir != "" && n.config.lockDataDir {
		lock, err := lockfile.Acquire(n.config.dataDir)
		if err != nil {
			return err
		}
		n.lock = lock
	}
	// Load database
	db, err := database.New(&database.Config{
		DataDir:        n.config.dataDir,
		Logger:         logger,
		PromRegistry:   n.config.promRegistry,
		BlobPlugin:     n.config.blobPlugin,
		MetadataPlugin: n.config.metadataPlugin,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	n.db = db
	n.journal, err = eventlog.New(eventlog.LogConfig{
		DB:           n.db,
		EventBus:     n.eventBus,
		Logger:       logger,
		PromRegistry: n.config.promRegistry,
	})
	if err != nil {
		return fmt.Errorf("failed to load journal: %w", err)
	}
	// Load text
	n.lang = lang.NewStore(n.config.langFile, logger)
	if n.config.langFile != "" && n.config.langWatch {
		if err := n.lang.Watch(ctx); err != nil {
			return fmt.Errorf("failed to watch lang file: %w", err)
		}
	}
	// Connect platform gateway
	switch n.config.gateway {
	case GatewayNats:
		gw, err := natsgw.Connect(n.config.natsConfig, logger)
		if err != nil {
			return err
		}
		n.natsGateway = gw
		n.platform = gw
	default:
		logger.Warn(
			"using dry-run gateway, nothing will reach the platform",
			"component", "node",
		)
		n.platform = loggw.New(logger)
	}
	// Contract flow
	serialOpts := []serial.AllocatorOptionFunc{serial.WithLogger(logger)}
	if n.config.serialCeiling > 0 {
		serialOpts = append(serialOpts, serial.WithCeiling(n.config.serialCeiling))
	}
	n.machine, err = contract.NewMachine(contract.MachineConfig{
		DB:            n.db,
		Log:           n.journal,
		Serials:       serial.NewAllocator(n.db.Blob(), serialOpts...),
		Platform:      n.platform,
		Lang:          n.lang,
		Logger:        logger,
		PromRegistry:  n.config.promRegistry,
		Brand:         n.config.brand,
		PromptTimeout: n.config.promptTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to load contract machine: %w", err)
	}
	// Ritual engine
	n.engine, err = ritual.NewEngine(ritual.EngineConfig{
		Journal:              n.journal,
		Platform:             n.platform,
		Lang:                 n.lang,
		Logger:               logger,
		PromRegistry:         n.config.promRegistry,
		Schedule:             n.config.schedule,
		Limits:               n.config.limits,
		StorageRetryInterval: n.config.storageRetryInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to load ritual engine: %w", err)
	}
	// Audit forwarding
	if err := n.startAudit(ctx); err != nil {
		return err
	}
	// Resume rituals interrupted by the last shutdown
	coordinator, err := ritual.NewCoordinator(ritual.CoordinatorConfig{
		DB:     n.db,
		Log:    n.journal,
		Engine: n.engine,
		Logger: logger,
		Window: n.config.resumeWindow,
	})
	if err != nil {
		return err
	}
	if err := coordinator.Run(ctx); err != nil {
		logger.Error(
			"failed to resume some rituals",
			"component", "node",
			"error", err,
		)
	}
	// Platform signals
	if n.natsGateway != nil {
		handler := &inboundHandler{
			machine: n.machine,
			engine:  n.engine,
			logger:  logger,
		}
		if err := n.natsGateway.Listen(ctx, handler); err != nil {
			return err
		}
	}
	// Admin API
	if n.config.apiPort > 0 {
		n.api, err = api.NewServer(api.ServerConfig{
			Logger:       logger,
			DB:           n.db,
			Log:          n.journal,
			Machine:      n.machine,
			Engine:       n.engine,
			Lang:         n.lang,
			PromRegistry: n.config.promRegistry,
			Location:     n.config.location,
			Host:         n.config.apiHost,
			Port:         n.config.apiPort,
			JwtSecret:    n.config.apiJwtSecret,
		})
		if err != nil {
			return err
		}
		if err := n.api.Start(); err != nil {
			return err
		}
	}
	logger.Info("node started", "component", "node")
	close(n.ready)

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case <-n.done:
	}
	return nil
}

func (n *Node) startAudit(ctx context.Context) error {
	sinks := []audit.Sink{
		audit.NewAdminLogSink(n.db, n.platform, n.config.auditExclude...),
	}
	if len(n.config.kafkaBrokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(audit.KafkaConfig{
			Brokers: n.config.kafkaBrokers,
			Topic:   n.config.kafkaTopic,
		})
		if err != nil {
			return err
		}
		sinks = append(sinks, kafkaSink)
	}
	forwarder, err := audit.NewForwarder(audit.ForwarderConfig{
		EventBus:     n.eventBus,
		Logger:       n.config.logger,
		PromRegistry: n.config.promRegistry,
		Sinks:        sinks,
		Limit:        rate.Limit(n.config.auditLimit),
		Burst:        n.config.auditBurst,
		QueueSize:    n.config.auditQueueSize,
	})
	if err != nil {
		return err
	}
	if err := forwarder.Start(ctx); err != nil {
		return err
	}
	n.forwarder = forwarder
	return nil
}

// Ready is closed once Run has started every component
func (n *Node) Ready() <-chan struct{} {
	return n.ready
}

// Machine returns the contract state machine once Run has started it
func (n *Node) Machine() *contract.Machine {
	return n.machine
}

// Engine returns the ritual engine once Run has started it
func (n *Node) Engine() *ritual.Engine {
	return n.engine
}

// ApiAddr returns the bound admin API address, or an empty string
func (n *Node) ApiAddr() string {
	if n.api == nil {
		return ""
	}
	return n.api.Addr()
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if n.config.shutdownTimeout > 0 {
		shutdownTimeout = n.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error
	logger := n.config.logger

	logger.Debug("starting graceful shutdown")

	// Phase 1: Stop accepting new work
	logger.Debug("shutdown phase 1: stopping new work")

	if n.api != nil {
		if stopErr := n.api.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}
	if n.natsGateway != nil {
		if stopErr := n.natsGateway.Close(); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("gateway shutdown: %w", stopErr))
		}
	}

	// Phase 2: Stop rituals without journaling an abort so they resume on
	// the next start
	logger.Debug("shutdown phase 2: suspending rituals")

	if n.engine != nil {
		n.engine.Stop()
	}
	if n.runCancel != nil {
		n.runCancel()
	}

	// Phase 3: Drain audit forwarding
	logger.Debug("shutdown phase 3: draining audit forwarding")

	if n.forwarder != nil {
		if stopErr := n.forwarder.Stop(); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("audit shutdown: %w", stopErr))
		}
	}

	// Phase 4: Cleanup resources
	logger.Debug("shutdown phase 4: cleanup resources")

	if n.lang != nil {
		if closeErr := n.lang.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("lang close: %w", closeErr))
		}
	}

	// Call registered shutdown functions
	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	if n.eventBus != nil {
		n.eventBus.Stop()
	}

	if n.db != nil {
		if closeErr := n.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	if n.lock != nil {
		if releaseErr := n.lock.Release(); releaseErr != nil {
			err = errors.Join(err, fmt.Errorf("lock release: %w", releaseErr))
		}
	}

	logger.Debug("graceful shutdown complete")
	close(n.done)
	return err
}
