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

package blob_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/wilhelmina/database/plugin/blob"
)

func TestAdvance(t *testing.T) {
	tests := []struct {
		name     string
		stored   uint64
		ceiling  uint64
		wantCur  uint64
		wantNext uint64
	}{
		{"unset", 0, 9999, 1, 2},
		{"middle", 42, 9999, 42, 43},
		{"at ceiling", 9999, 9999, 9999, 1},
		{"above lowered ceiling", 120, 100, 1, 2},
		{"ceiling of one", 1, 1, 1, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cur, next := blob.Advance(tc.stored, tc.ceiling)
			assert.Equal(t, tc.wantCur, cur)
			assert.Equal(t, tc.wantNext, next)
		})
	}
}

func TestSequenceEncoding(t *testing.T) {
	v, err := blob.DecodeSequence(blob.EncodeSequence(9999))
	require.NoError(t, err)
	assert.Equal(t, uint64(9999), v)
	_, err = blob.DecodeSequence([]byte{1, 2})
	assert.Error(t, err)
}
