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
	"sync"

	"github.com/blinklabs-io/wilhelmina/database/plugin"
)

var (
	cmdlineOptions struct {
		conn     ConnConfig
		port     uint64
		maxConns uint64
	}
	cmdlineOptionsMutex sync.RWMutex
)

// Register plugin
func init() {
	cmdlineOptions.conn = ConnConfig{
		Host:     defaultHost,
		User:     defaultUser,
		Database: defaultDatabase,
		SSLMode:  defaultSSLMode,
	}
	cmdlineOptions.port = defaultPort
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeMetadata,
			Name:               "postgres",
			Description:        "Postgres relational database, for deployments that share the journal",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				{
					Name:         "host",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Postgres host",
					DefaultValue: defaultHost,
					Dest:         &(cmdlineOptions.conn.Host),
				},
				{
					Name:         "port",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "Postgres port",
					DefaultValue: uint64(defaultPort),
					Dest:         &(cmdlineOptions.port),
				},
				{
					Name:         "user",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Postgres user",
					DefaultValue: defaultUser,
					Dest:         &(cmdlineOptions.conn.User),
				},
				{
					Name:         "password",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Postgres password, required unless dsn is set",
					DefaultValue: "",
					Dest:         &(cmdlineOptions.conn.Password),
				},
				{
					Name:         "database",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Postgres database name",
					DefaultValue: defaultDatabase,
					Dest:         &(cmdlineOptions.conn.Database),
				},
				{
					Name:         "ssl-mode",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Postgres sslmode",
					DefaultValue: defaultSSLMode,
					Dest:         &(cmdlineOptions.conn.SSLMode),
				},
				{
					Name:         "dsn",
					Type:         plugin.PluginOptionTypeString,
					Description:  "full Postgres DSN, replaces the other connection options",
					DefaultValue: "",
					Dest:         &(cmdlineOptions.conn.DSN),
				},
				{
					Name:         "max-connections",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "connection pool cap, 0 for the driver default",
					DefaultValue: uint64(0),
					Dest:         &(cmdlineOptions.maxConns),
				},
			},
		},
	)
}

func NewFromCmdlineOptions() plugin.Plugin {
	cmdlineOptionsMutex.RLock()
	conn := cmdlineOptions.conn
	conn.Port = uint(cmdlineOptions.port)
	maxConns := int(cmdlineOptions.maxConns) // #nosec G115
	cmdlineOptionsMutex.RUnlock()
	p, err := NewWithOptions(
		WithConn(conn),
		WithMaxConns(maxConns),
	)
	if err != nil {
		// Return a plugin that defers the error to Start()
		return plugin.NewErrorPlugin(err)
	}
	return p
}
