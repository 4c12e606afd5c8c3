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

package postgres

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/blinklabs-io/wilhelmina/database/plugin/metadata"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	defaultHost     = "localhost"
	defaultPort     = 5432
	defaultUser     = "postgres"
	defaultDatabase = "wilhelmina"
	defaultSSLMode  = "disable"
)

// MetadataStorePostgres stores the journal, members and community configs in Postgres
type MetadataStorePostgres struct {
	promRegistry prometheus.Registerer
	db           *gorm.DB
	logger       *slog.Logger
	conn         ConnConfig
	maxConns     int
}

// NewWithOptions creates a Postgres metadata store without connecting
func NewWithOptions(opts ...PostgresOptionFunc) (*MetadataStorePostgres, error) {
	db := &MetadataStorePostgres{}
	for _, opt := range opts {
		opt(db)
	}
	if db.maxConns < 0 {
		return nil, fmt.Errorf("postgres: invalid max connections %d", db.maxConns)
	}
	setDefault(&db.conn.Host, defaultHost)
	setDefault(&db.conn.User, defaultUser)
	setDefault(&db.conn.Database, defaultDatabase)
	setDefault(&db.conn.SSLMode, defaultSSLMode)
	if db.conn.Port == 0 {
		db.conn.Port = defaultPort
	}
	if db.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return db, nil
}

func setDefault(dest *string, def string) {
	if *dest == "" {
		*dest = def
	}
}

func (d *MetadataStorePostgres) connString() string {
	if dsn := strings.TrimSpace(d.conn.DSN); dsn != "" {
		return dsn
	}
	// Timestamps are stored in UTC and rendered in each community's zone
	return strings.Join(
		[]string{
			"host=" + d.conn.Host,
			"user=" + d.conn.User,
			"password=" + d.conn.Password,
			"dbname=" + d.conn.Database,
			"port=" + strconv.FormatUint(uint64(d.conn.Port), 10),
			"sslmode=" + d.conn.SSLMode,
			"TimeZone=UTC",
		},
		" ",
	)
}

// Start implements the plugin.Plugin interface
func (d *MetadataStorePostgres) Start() error {
	if strings.TrimSpace(d.conn.DSN) == "" && d.conn.Password == "" {
		return errors.New("postgres: password or dsn is required")
	}
	db, err := metadata.Open(postgres.Open(d.connString()), d.logger)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if d.maxConns > 0 {
		sqlDb, err := db.DB()
		if err != nil {
			return fmt.Errorf("postgres: get database handle: %w", err)
		}
		sqlDb.SetMaxOpenConns(d.maxConns)
		sqlDb.SetMaxIdleConns(d.maxConns)
	}
	d.logger.Info(
		"connected to postgres metadata store",
		"component", "database",
		"host", d.conn.Host,
		"port", d.conn.Port,
		"database", d.conn.Database,
	)
	d.db = db
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStorePostgres) Stop() error {
	return d.Close()
}

// Close closes the underlying connection pool
func (d *MetadataStorePostgres) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDb, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}
	return sqlDb.Close()
}

// DB returns the underlying GORM database handle
func (d *MetadataStorePostgres) DB() *gorm.DB {
	return d.db
}
