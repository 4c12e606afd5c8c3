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
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

type MysqlOptionFunc func(*MetadataStoreMysql)

// ConnConfig addresses the MySQL server. Empty fields take the plugin
// defaults.
type ConnConfig struct {
	Host     string
	User     string
	Password string
	Database string
	// TLSMode is passed to the driver's tls parameter
	TLSMode string
	// DSN replaces every other field when set
	DSN  string
	Port uint
}

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) MysqlOptionFunc {
	return func(m *MetadataStoreMysql) {
		m.logger = logger
	}
}

// WithPromRegistry specifies the prometheus registry to use for metrics
func WithPromRegistry(registry prometheus.Registerer) MysqlOptionFunc {
	return func(m *MetadataStoreMysql) {
		m.promRegistry = registry
	}
}

// WithConn specifies how to reach the server
func WithConn(conn ConnConfig) MysqlOptionFunc {
	return func(m *MetadataStoreMysql) {
		m.conn = conn
	}
}

// WithMaxConns caps the connection pool. Zero keeps the driver default.
func WithMaxConns(maxConns int) MysqlOptionFunc {
	return func(m *MetadataStoreMysql) {
		m.maxConns = maxConns
	}
}
