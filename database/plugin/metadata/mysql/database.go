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

package mysql

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/blinklabs-io/wilhelmina/database/plugin/metadata"
	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const (
	defaultHost     = "localhost"
	defaultPort     = 3306
	defaultUser     = "root"
	defaultDatabase = "wilhelmina"
)

// MetadataStoreMysql stores the journal, members and community configs in MySQL
type MetadataStoreMysql struct {
	promRegistry prometheus.Registerer
	db           *gorm.DB
	logger       *slog.Logger
	conn         ConnConfig
	maxConns     int
}

// NewWithOptions creates a MySQL metadata store without connecting
func NewWithOptions(opts ...MysqlOptionFunc) (*MetadataStoreMysql, error) {
	db := &MetadataStoreMysql{}
	for _, opt := range opts {
		opt(db)
	}
	if db.maxConns < 0 {
		return nil, fmt.Errorf("mysql: invalid max connections %d", db.maxConns)
	}
	if db.conn.Host == "" {
		db.conn.Host = defaultHost
	}
	if db.conn.Port == 0 {
		db.conn.Port = defaultPort
	}
	if db.conn.User == "" {
		db.conn.User = defaultUser
	}
	if db.conn.Database == "" {
		db.conn.Database = defaultDatabase
	}
	if db.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return db, nil
}

func (d *MetadataStoreMysql) connString() string {
	if dsn := strings.TrimSpace(d.conn.DSN); dsn != "" {
		return dsn
	}
	cfg := mysql.NewConfig()
	cfg.User = d.conn.User
	cfg.Passwd = d.conn.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(
		d.conn.Host,
		strconv.FormatUint(uint64(d.conn.Port), 10),
	)
	cfg.DBName = d.conn.Database
	// Journal timestamps round-trip as UTC time.Time values
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.AllowNativePasswords = true
	if d.conn.TLSMode != "" {
		cfg.Params = map[string]string{"tls": d.conn.TLSMode}
	}
	return cfg.FormatDSN()
}

// Start implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Start() error {
	db, err := metadata.Open(gormmysql.Open(d.connString()), d.logger)
	if err != nil {
		return fmt.Errorf("mysql: %w", err)
	}
	if d.maxConns > 0 {
		sqlDb, err := db.DB()
		if err != nil {
			return fmt.Errorf("mysql: get database handle: %w", err)
		}
		sqlDb.SetMaxOpenConns(d.maxConns)
		sqlDb.SetMaxIdleConns(d.maxConns)
	}
	d.logger.Info(
		"connected to mysql metadata store",
		"component", "database",
		"host", d.conn.Host,
		"port", d.conn.Port,
		"database", d.conn.Database,
	)
	d.db = db
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Stop() error {
	return d.Close()
}

// Close closes the underlying connection pool
func (d *MetadataStoreMysql) Close() error {
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
func (d *MetadataStoreMysql) DB() *gorm.DB {
	return d.db
}
