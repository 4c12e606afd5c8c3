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

package lang_test

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/blinklabs-io/wilhelmina/internal/test/testutil"
	"github.com/blinklabs-io/wilhelmina/lang"
)

func TestLoadYamlKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "en.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ritual:
  finale: "THE END"
contract:
  signed_dm: "ID {soul_id}"
`), 0o600))
	d, err := lang.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "THE END", d.Ritual.Finale)
	assert.Equal(t, lang.Default().Ritual.Start, d.Ritual.Start)
	assert.Len(t, d.Ritual.BeatLines, 4)
	assert.Equal(t, "ID ⛧x⛧", d.SignedDM("⛧x⛧"))
	assert.Equal(t, lang.Default().Errors.Generic, d.Errors.Generic)
}

func TestLoadJson(t *testing.T) {
	path := filepath.Join(t.TempDir(), "en.json")
	require.NoError(t, os.WriteFile(
		path,
		[]byte(`{"contract":{"decline":{"rude":["begone"]}}}`),
		0o600,
	))
	d, err := lang.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "begone", d.RudeLine(rand.New(rand.NewPCG(1, 2))))
}

func TestLoadBadFile(t *testing.T) {
	_, err := lang.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))
	_, err = lang.Load(path)
	assert.Error(t, err)
}

func TestBeatLineRanges(t *testing.T) {
	d := lang.Default()
	d.Ritual.BeatLines = []string{"{signal}|{code}"}
	rng := rand.New(rand.NewPCG(7, 7))
	for range 500 {
		parts := strings.Split(d.BeatLine(rng), "|")
		require.Len(t, parts, 2)
		signal, err := strconv.Atoi(parts[0])
		require.NoError(t, err)
		code, err := strconv.Atoi(parts[1])
		require.NoError(t, err)
		assert.GreaterOrEqual(t, signal, 100)
		assert.LessOrEqual(t, signal, 999)
		assert.GreaterOrEqual(t, code, 100)
		assert.LessOrEqual(t, code, 599)
	}
}

func TestExpand(t *testing.T) {
	assert.Equal(
		t,
		"Seal granted for <@42>. {other}",
		lang.Expand("Seal granted for <@{member}>. {other}", map[string]string{"member": "42"}),
	)
}

func TestStoreWatchReloads(t *testing.T) {
	defer goleak.VerifyNone(t)
	path := filepath.Join(t.TempDir(), "en.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ritual:\n  finale: one\n"), 0o600))
	store := lang.NewStore(path, nil)
	assert.Equal(t, "one", store.Get().Ritual.Finale)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, store.Watch(ctx))
	require.NoError(t, os.WriteFile(path, []byte("ritual:\n  finale: two\n"), 0o600))
	testutil.WaitForCondition(
		t,
		func() bool { return store.Get().Ritual.Finale == "two" },
		5*time.Second,
		"lang reload",
	)
	// A broken file keeps the previous text
	require.NoError(t, os.WriteFile(path, []byte("ritual: ["), 0o600))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, "two", store.Get().Ritual.Finale)
	cancel()
	require.NoError(t, store.Close())
}

func TestStoreWithoutFileUsesDefaults(t *testing.T) {
	store := lang.NewStore("", nil)
	assert.Equal(t, lang.Default().Admin.Abort, store.Get().Admin.Abort)
	assert.Error(t, store.Reload())
	store = lang.NewStore(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Equal(t, lang.Default().Admin.Abort, store.Get().Admin.Abort)
}
