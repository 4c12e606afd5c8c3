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
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnStringDefaults(t *testing.T) {
	store, err := NewWithOptions(WithConn(ConnConfig{Password: "secret"}))
	require.NoError(t, err)
	cfg, err := mysql.ParseDSN(store.connString())
	require.NoError(t, err)
	assert.Equal(t, "root", cfg.User)
	assert.Equal(t, "secret", cfg.Passwd)
	assert.Equal(t, "localhost:3306", cfg.Addr)
	assert.Equal(t, "wilhelmina", cfg.DBName)
	assert.True(t, cfg.ParseTime)
	assert.Equal(t, "UTC", cfg.Loc.String())
}

func TestConnStringTLS(t *testing.T) {
	store, err := NewWithOptions(WithConn(ConnConfig{
		Host:    "db.internal",
		Port:    3307,
		TLSMode: "skip-verify",
	}))
	require.NoError(t, err)
	cfg, err := mysql.ParseDSN(store.connString())
	require.NoError(t, err)
	assert.Equal(t, "db.internal:3307", cfg.Addr)
	assert.Equal(t, "skip-verify", cfg.TLSConfig)
}

func TestConnStringDSNOverride(t *testing.T) {
	store, err := NewWithOptions(WithConn(ConnConfig{
		Host: "ignored",
		DSN:  "u:p@tcp(db:3306)/wilhelmina",
	}))
	require.NoError(t, err)
	assert.Equal(t, "u:p@tcp(db:3306)/wilhelmina", store.connString())
}
