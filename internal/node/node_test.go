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
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/blinklabs-io/wilhelmina/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeConfigFromDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Gateway = config.GatewayLog
	cfg.AuditExclude = []string{"ritual_state", "contract_sent"}
	_, err := NodeConfig(cfg, nil, nil)
	require.NoError(t, err)
}

func TestNodeConfigBadTimezone(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Timezone = "Mars/Olympus_Mons"
	_, err := NodeConfig(cfg, nil, nil)
	require.Error(t, err)
}

func TestRedacted(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ApiJwtSecret = "hunter2"
	cfg.ShutdownTimeout = time.Second
	ret := redacted(cfg)
	assert.Equal(t, "REDACTED", ret.ApiJwtSecret)
	assert.Equal(t, "hunter2", cfg.ApiJwtSecret)
	assert.Equal(t, time.Second, ret.ShutdownTimeout)
}
