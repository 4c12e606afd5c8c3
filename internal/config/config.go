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

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blinklabs-io/wilhelmina/database/plugin"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "wilhelmina.config"

const (
	DefaultBlobPlugin     = "badger"
	DefaultMetadataPlugin = "sqlite"
	DefaultTimezone       = "Asia/Riyadh"
	DefaultBrand          = "WLMN"

	GatewayNats = "nats"
	GatewayLog  = "log"

	AppEnvDevelopment = "development"
	AppEnvProduction  = "production"
)

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type tempConfig struct {
	Config   *yaml.Node                `yaml:"config,omitempty"`
	Database *databaseConfig           `yaml:"database,omitempty"`
	Blob     map[string]map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]map[string]any `yaml:"metadata,omitempty"`
	Sops     *yaml.Node                `yaml:"sops,omitempty"`
}

type databaseConfig struct {
	Blob     map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

type Config struct {
	DatabasePath          string        `yaml:"databasePath"                                      split_words:"true"`
	BlobPlugin            string        `yaml:"blobPlugin"            envconfig:"WILHELMINA_DATABASE_BLOB_PLUGIN"`
	MetadataPlugin        string        `yaml:"metadataPlugin"        envconfig:"WILHELMINA_DATABASE_METADATA_PLUGIN"`
	BindAddr              string        `yaml:"bindAddr"                                          split_words:"true"`
	ApiListenAddress      string        `yaml:"apiListenAddress"                                  split_words:"true"`
	ApiJwtSecret          string        `yaml:"apiJwtSecret"                                      split_words:"true"`
	AppEnv                string        `yaml:"appEnv"                envconfig:"APP_ENV"`
	LogLevel              string        `yaml:"logLevel"              envconfig:"LOG_LEVEL"`
	Timezone              string        `yaml:"timezone"              envconfig:"TIMEZONE"`
	Brand                 string        `yaml:"brand"`
	LangFile              string        `yaml:"langFile"                                          split_words:"true"`
	Gateway               string        `yaml:"gateway"`
	NatsUrl               string        `yaml:"natsUrl"                                           split_words:"true"`
	NatsPrefix            string        `yaml:"natsPrefix"                                        split_words:"true"`
	NatsCredentialsFile   string        `yaml:"natsCredentialsFile"                               split_words:"true"`
	KafkaTopic            string        `yaml:"kafkaTopic"                                        split_words:"true"`
	GcsCredentialsFile    string        `yaml:"gcsCredentialsFile"                                split_words:"true"`
	S3Region              string        `yaml:"s3Region"                                          split_words:"true"`
	KafkaBrokers          []string      `yaml:"kafkaBrokers"                                      split_words:"true"`
	AuditExclude          []string      `yaml:"auditExclude"                                      split_words:"true"`
	ShutdownTimeout       time.Duration `yaml:"shutdownTimeout"                                   split_words:"true"`
	ContractPromptTimeout time.Duration `yaml:"contractPromptTimeout"                             split_words:"true"`
	NatsRequestTimeout    time.Duration `yaml:"natsRequestTimeout"                                split_words:"true"`
	SerialCeiling         uint64        `yaml:"serialCeiling"                                     split_words:"true"`
	ApiPort               uint          `yaml:"apiPort"                                           split_words:"true"`
	MetricsPort           uint          `yaml:"metricsPort"                                       split_words:"true"`
	LangWatch             bool          `yaml:"langWatch"                                         split_words:"true"`
	Tracing               bool          `yaml:"tracing"`
	TracingStdout         bool          `yaml:"tracingStdout"                                     split_words:"true"`
	Ritual                RitualConfig  `yaml:"ritual"`
	Audit                 AuditConfig   `yaml:"audit"`
}

// RitualConfig tunes the beat schedule, the mention budgets and crash recovery
type RitualConfig struct {
	Duration                   time.Duration `yaml:"duration"`
	JitterMin                  time.Duration `yaml:"jitterMin"                  split_words:"true"`
	JitterMax                  time.Duration `yaml:"jitterMax"                  split_words:"true"`
	EveryoneMinGap             time.Duration `yaml:"everyoneMinGap"             split_words:"true"`
	ResumeWindow               time.Duration `yaml:"resumeWindow"               split_words:"true"`
	StorageRetryInterval       time.Duration `yaml:"storageRetryInterval"       split_words:"true"`
	Beats                      int           `yaml:"beats"`
	EveryoneMaxTotal           int           `yaml:"everyoneMaxTotal"           split_words:"true"`
	PerBeatMemberMentions      int           `yaml:"perBeatMemberMentions"      split_words:"true"`
	PerRitualMemberMentionsMax int           `yaml:"perRitualMemberMentionsMax" split_words:"true"`
}

// AuditConfig paces forwarding to the admin log channel and Kafka
type AuditConfig struct {
	RateLimit float64 `yaml:"rateLimit" split_words:"true"`
	Burst     int     `yaml:"burst"`
	QueueSize int     `yaml:"queueSize" split_words:"true"`
}

// DefaultConfig returns the built-in settings that a config file and the
// environment are layered on
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:          ".wilhelmina",
		BlobPlugin:            DefaultBlobPlugin,
		MetadataPlugin:        DefaultMetadataPlugin,
		BindAddr:              "0.0.0.0",
		ApiListenAddress:      "127.0.0.1",
		ApiPort:               8480,
		MetricsPort:           12799,
		AppEnv:                AppEnvProduction,
		LogLevel:              "info",
		Timezone:              DefaultTimezone,
		Brand:                 DefaultBrand,
		NatsPrefix:            "wilhelmina",
		NatsRequestTimeout:    5 * time.Second,
		ShutdownTimeout:       30 * time.Second,
		ContractPromptTimeout: 5 * time.Minute,
		SerialCeiling:         9999,
		Ritual: RitualConfig{
			Beats:                      12,
			Duration:                   780 * time.Second,
			JitterMin:                  7 * time.Second,
			JitterMax:                  15 * time.Second,
			EveryoneMaxTotal:           6,
			EveryoneMinGap:             60 * time.Second,
			PerBeatMemberMentions:      6,
			PerRitualMemberMentionsMax: 36,
			ResumeWindow:               30 * time.Minute,
			StorageRetryInterval:       5 * time.Second,
		},
		Audit: AuditConfig{
			RateLimit: 5,
			Burst:     10,
			QueueSize: 256,
		},
	}
}

var globalConfig = DefaultConfig()

// Location returns the default community time zone
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// IsDevelopment reports whether APP_ENV selects development behavior
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, AppEnvDevelopment)
}

func (c *Config) validate() error {
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	switch c.Gateway {
	case GatewayNats, GatewayLog:
	default:
		return fmt.Errorf(
			"invalid gateway: %q (must be '%s' or '%s')",
			c.Gateway,
			GatewayNats,
			GatewayLog,
		)
	}
	if c.Brand == "" {
		return errors.New("brand must not be empty")
	}
	if c.SerialCeiling == 0 {
		return errors.New("serialCeiling must be positive")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return errors.New("kafkaTopic is required when kafkaBrokers are set")
	}
	return nil
}

func findConfigFile() string {
	// Check for config file in this path: ~/.wilhelmina/wilhelmina.yaml
	if homeDir, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(homeDir, ".wilhelmina", "wilhelmina.yaml")
		if _, err := os.Stat(userPath); err == nil {
			return userPath
		}
	}
	systemPath := "/etc/wilhelmina/wilhelmina.yaml"
	if _, err := os.Stat(systemPath); err == nil {
		return systemPath
	}
	return ""
}

func LoadConfig(configFile string) (*Config, error) {
	cfg := DefaultConfig()
	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		if err := loadFile(cfg, configFile); err != nil {
			return nil, err
		}
	}
	// Process environment variables
	err := envconfig.Process("wilhelmina", cfg)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %+w", err)
	}

	// Process plugin environment variables
	err = plugin.ProcessEnvVars()
	if err != nil {
		return nil, fmt.Errorf(
			"error processing plugin environment variables: %w",
			err,
		)
	}

	if cfg.Gateway == "" {
		cfg.Gateway = GatewayNats
		if cfg.IsDevelopment() {
			cfg.Gateway = GatewayLog
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	globalConfig = cfg
	return cfg, nil
}

func loadFile(cfg *Config, configFile string) error {
	buf, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	// First unmarshal into temp config to handle plugin sections
	var tempCfg tempConfig
	err = yaml.Unmarshal(buf, &tempCfg)
	if err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	if tempCfg.Sops != nil {
		buf, err = decryptConfig(buf)
		if err != nil {
			return fmt.Errorf("error decrypting config file: %w", err)
		}
		tempCfg = tempConfig{}
		if err := yaml.Unmarshal(buf, &tempCfg); err != nil {
			return fmt.Errorf("error parsing decrypted config file: %w", err)
		}
	}

	// If config section exists, use it for main config
	if tempCfg.Config != nil {
		if err := tempCfg.Config.Decode(cfg); err != nil {
			return fmt.Errorf("error parsing config section: %w", err)
		}
	} else {
		// Otherwise unmarshal the whole file as main config
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return fmt.Errorf("error parsing config file: %w", err)
		}
	}

	// Process plugin configurations
	pluginConfig := make(map[string]map[string]any)
	mergePluginConfig(pluginConfig, "blob", tempCfg.Blob)
	mergePluginConfig(pluginConfig, "metadata", tempCfg.Metadata)
	// Handle database section if present
	if tempCfg.Database != nil {
		if tempCfg.Database.Blob != nil {
			name, section := pluginSection("blob", tempCfg.Database.Blob)
			if name != "" {
				cfg.BlobPlugin = name
			}
			mergePluginConfig(pluginConfig, "blob", section)
		}
		if tempCfg.Database.Metadata != nil {
			name, section := pluginSection("metadata", tempCfg.Database.Metadata)
			if name != "" {
				cfg.MetadataPlugin = name
			}
			mergePluginConfig(pluginConfig, "metadata", section)
		}
	}
	if len(pluginConfig) > 0 {
		err = plugin.ProcessConfig(pluginConfig)
		if err != nil {
			return fmt.Errorf(
				"error processing plugin config: %w",
				err,
			)
		}
	}
	return nil
}

// pluginSection splits a database.<type> section into the selected plugin
// name and the per-plugin option maps
func pluginSection(
	pluginType string,
	section map[string]any,
) (string, map[string]map[string]any) {
	var name string
	if pluginVal, exists := section["plugin"]; exists {
		if pluginName, ok := pluginVal.(string); ok {
			name = pluginName
		}
	}
	ret := make(map[string]map[string]any)
	for k, v := range section {
		if k == "plugin" {
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			ret[k] = val
		case map[any]any:
			// Convert map[any]any to map[string]any
			stringAnyMap := make(map[string]any)
			for vk, vv := range val {
				if keyStr, ok := vk.(string); ok {
					stringAnyMap[keyStr] = vv
				}
			}
			ret[k] = stringAnyMap
		default:
			fmt.Fprintf(
				os.Stderr,
				"warning: skipping %s config entry %q: expected map, got %T\n",
				pluginType,
				k,
				v,
			)
		}
	}
	return name, ret
}

func mergePluginConfig(
	pluginConfig map[string]map[string]any,
	pluginType string,
	section map[string]map[string]any,
) {
	if len(section) == 0 {
		return
	}
	// Merge with existing config instead of overwriting
	if pluginConfig[pluginType] == nil {
		pluginConfig[pluginType] = make(map[string]any)
	}
	for name, opts := range section {
		pluginConfig[pluginType][name] = opts
	}
}

func GetConfig() *Config {
	return globalConfig
}
