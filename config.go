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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blinklabs-io/wilhelmina/eventlog"
	"github.com/blinklabs-io/wilhelmina/gateway/natsgw"
	"github.com/blinklabs-io/wilhelmina/ritual"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	GatewayNats = "nats"
	GatewayLog  = "log"
)

type Config struct {
	promRegistry         prometheus.Registerer
	logger               *slog.Logger
	location             *time.Location
	dataDir              string
	blobPlugin           string
	metadataPlugin       string
	gateway              string
	langFile             string
	brand                string
	apiHost              string
	apiJwtSecret         string
	kafkaTopic           string
	natsConfig           natsgw.Config
	kafkaBrokers         []string
	auditExclude         []eventlog.Kind
	schedule             ritual.ScheduleConfig
	limits               ritual.Limits
	promptTimeout        time.Duration
	resumeWindow         time.Duration
	storageRetryInterval time.Duration
	shutdownTimeout      time.Duration
	auditLimit           float64
	auditBurst           int
	auditQueueSize       int
	serialCeiling        uint64
	apiPort              uint
	langWatch            bool
	tracing              bool
	tracingStdout        bool
	lockDataDir          bool
}

// ConfigOptionFunc is a type that represents functions that modify the Node config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new Node config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		gateway:         GatewayLog,
		brand:           "WLMN",
		location:        time.UTC,
		schedule:        ritual.DefaultScheduleConfig(),
		limits:          ritual.DefaultLimits(),
		shutdownTimeout: 30 * time.Second,
		lockDataDir:     true,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c *Config) validate() error {
	switch c.gateway {
	case GatewayNats, GatewayLog:
	default:
		return fmt.Errorf("unknown gateway: %s", c.gateway)
	}
	if c.brand == "" {
		return errors.New("brand must not be empty")
	}
	if err := ritual.ValidateScheduleConfig(c.schedule); err != nil {
		return err
	}
	if c.limits.EveryoneMaxTotal < 0 ||
		c.limits.PerBeatMemberMentions < 0 ||
		c.limits.PerRitualMemberMentionsMax < 0 {
		return errors.New("ritual limits must not be negative")
	}
	if len(c.kafkaBrokers) > 0 && c.kafkaTopic == "" {
		return errors.New("kafka topic is required when brokers are set")
	}
	return nil
}

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithDatabasePath specifies the persistent data directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithBlobPlugin specifies the blob storage plugin to use.
func WithBlobPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.blobPlugin = plugin
	}
}

// WithMetadataPlugin specifies the metadata storage plugin to use.
func WithMetadataPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataPlugin = plugin
	}
}

// WithDataDirLock controls the exclusive lock on the data directory. It is
// enabled by default and only applies to a persistent data directory.
func WithDataDirLock(lock bool) ConfigOptionFunc {
	return func(c *Config) {
		c.lockDataDir = lock
	}
}

// WithGateway selects the platform adapter: "nats" or the dry-run "log"
func WithGateway(gateway string) ConfigOptionFunc {
	return func(c *Config) {
		c.gateway = gateway
	}
}

// WithNatsConfig specifies the NATS connection used by the "nats" gateway
func WithNatsConfig(cfg natsgw.Config) ConfigOptionFunc {
	return func(c *Config) {
		c.natsConfig = cfg
	}
}

// WithLangFile specifies a YAML or JSON dictionary overriding the built-in text
func WithLangFile(path string, watch bool) ConfigOptionFunc {
	return func(c *Config) {
		c.langFile = path
		c.langWatch = watch
	}
}

// WithLocation specifies the default community time zone
func WithLocation(loc *time.Location) ConfigOptionFunc {
	return func(c *Config) {
		c.location = loc
	}
}

// WithBrand specifies the identifier brand
func WithBrand(brand string) ConfigOptionFunc {
	return func(c *Config) {
		c.brand = brand
	}
}

// WithSerialCeiling specifies the largest serial before the counter wraps to 1
func WithSerialCeiling(ceiling uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.serialCeiling = ceiling
	}
}

// WithContractPromptTimeout bounds how long a contract prompt stays open
func WithContractPromptTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.promptTimeout = timeout
	}
}

// WithRitualSchedule specifies the beat schedule parameters
func WithRitualSchedule(schedule ritual.ScheduleConfig) ConfigOptionFunc {
	return func(c *Config) {
		c.schedule = schedule
	}
}

// WithRitualLimits specifies the mention budgets
func WithRitualLimits(limits ritual.Limits) ConfigOptionFunc {
	return func(c *Config) {
		c.limits = limits
	}
}

// WithResumeWindow specifies how old an unfinished ritual may be and still be resumed
func WithResumeWindow(window time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.resumeWindow = window
	}
}

// WithStorageRetryInterval specifies the wait between failed snapshot writes
func WithStorageRetryInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.storageRetryInterval = interval
	}
}

// WithAuditRate specifies the forwarding rate, burst and queue size
func WithAuditRate(limit float64, burst int, queueSize int) ConfigOptionFunc {
	return func(c *Config) {
		c.auditLimit = limit
		c.auditBurst = burst
		c.auditQueueSize = queueSize
	}
}

// WithAuditExclude specifies kinds not posted to the admin log channel
func WithAuditExclude(kinds ...eventlog.Kind) ConfigOptionFunc {
	return func(c *Config) {
		c.auditExclude = kinds
	}
}

// WithKafka enables mirroring of the journal to a Kafka topic
func WithKafka(brokers []string, topic string) ConfigOptionFunc {
	return func(c *Config) {
		c.kafkaBrokers = brokers
		c.kafkaTopic = topic
	}
}

// WithApiListenAddress specifies the admin API address. A port of 0 disables the API
func WithApiListenAddress(host string, port uint) ConfigOptionFunc {
	return func(c *Config) {
		c.apiHost = host
		c.apiPort = port
	}
}

// WithApiJwtSecret requires HS256 bearer tokens signed with secret on the admin API
func WithApiJwtSecret(secret string) ConfigOptionFunc {
	return func(c *Config) {
		c.apiJwtSecret = secret
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
