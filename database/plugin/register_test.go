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

package plugin

import (
	"errors"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPlugin struct {
	started bool
}

func (p *testPlugin) Start() error {
	p.started = true
	return nil
}

func (p *testPlugin) Stop() error {
	return nil
}

var testOptions struct {
	dir     string
	enabled bool
	count   int
	size    uint64
}

func init() {
	Register(PluginEntry{
		Type: PluginTypeBlob,
		Name: "testplug",
		NewFromOptionsFunc: func() Plugin {
			return &testPlugin{}
		},
		Options: []PluginOption{
			{Name: "dir", Type: PluginOptionTypeString, DefaultValue: "x", Dest: &testOptions.dir},
			{Name: "enabled", Type: PluginOptionTypeBool, DefaultValue: false, Dest: &testOptions.enabled},
			{Name: "count", Type: PluginOptionTypeInt, DefaultValue: 1, Dest: &testOptions.count},
			{Name: "size", Type: PluginOptionTypeUint, DefaultValue: uint64(2), Dest: &testOptions.size},
		},
	})
	Register(PluginEntry{
		Type: PluginTypeBlob,
		Name: "broken",
		NewFromOptionsFunc: func() Plugin {
			return NewErrorPlugin(errors.New("boom"))
		},
	})
}

func TestStartPlugin(t *testing.T) {
	p, err := StartPlugin(PluginTypeBlob, "testplug")
	require.NoError(t, err)
	tp, ok := p.(*testPlugin)
	require.True(t, ok)
	assert.True(t, tp.started)

	_, err = StartPlugin(PluginTypeMetadata, "testplug")
	assert.ErrorContains(t, err, "metadata plugin 'testplug' not found")

	_, err = StartPlugin(PluginTypeBlob, "broken")
	assert.ErrorContains(t, err, "boom")
}

func TestSetPluginOption(t *testing.T) {
	require.NoError(t, SetPluginOption(PluginTypeBlob, "testplug", "dir", "/tmp/a"))
	assert.Equal(t, "/tmp/a", testOptions.dir)
	require.NoError(t, SetPluginOption(PluginTypeBlob, "testplug", "size", 42))
	assert.Equal(t, uint64(42), testOptions.size)
	assert.Error(t, SetPluginOption(PluginTypeBlob, "testplug", "size", -1))
	assert.Error(t, SetPluginOption(PluginTypeBlob, "testplug", "dir", 7))
	// Unknown options are ignored
	assert.NoError(t, SetPluginOption(PluginTypeBlob, "testplug", "nope", 7))
	assert.Error(t, SetPluginOption(PluginTypeBlob, "missing", "dir", "x"))
}

func TestPopulateCmdlineOptions(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, PopulateCmdlineOptions(fs))
	require.NoError(t, fs.Parse([]string{
		"--blob-testplug-enabled",
		"--blob-testplug-count=5",
	}))
	assert.True(t, testOptions.enabled)
	assert.Equal(t, 5, testOptions.count)
}

func TestProcessEnvVarsAndConfig(t *testing.T) {
	t.Setenv("WILHELMINA_BLOB_TESTPLUG_COUNT", "9")
	require.NoError(t, ProcessEnvVars())
	assert.Equal(t, 9, testOptions.count)

	require.NoError(t, ProcessConfig(map[string]map[string]any{
		"blob": {
			"testplug": map[string]any{
				"dir":  "/var/lib/x",
				"size": 7,
			},
		},
	}))
	assert.Equal(t, "/var/lib/x", testOptions.dir)
	assert.Equal(t, uint64(7), testOptions.size)

	assert.Error(t, ProcessConfig(map[string]map[string]any{
		"blob": {"testplug": "not-a-map"},
	}))
}

func TestGetPlugins(t *testing.T) {
	names := []string{}
	for _, p := range GetPlugins(PluginTypeBlob) {
		names = append(names, p.Name)
	}
	assert.Contains(t, names, "testplug")
	assert.Contains(t, names, "broken")
	assert.Empty(t, GetPlugins(PluginTypeMetadata))
}
