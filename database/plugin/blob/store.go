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

package blob

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/blinklabs-io/wilhelmina/database/plugin"
)

var ErrInvalidCeiling = errors.New("sequence ceiling must be at least 1")

// BlobStore is the key/value side of the database. It holds the wrapping
// sequences behind serial allocation.
type BlobStore interface {
	Start() error
	Stop() error
	Close() error

	// NextInSequence returns the current value of the sequence at key and
	// stores its successor. Values run from 1 to ceiling and then wrap to 1.
	// The read and the write happen atomically.
	NextInSequence(ctx context.Context, key string, ceiling uint64) (uint64, error)
	// PeekSequence returns the value the next NextInSequence call would return
	PeekSequence(ctx context.Context, key string) (uint64, error)
	// SetSequence sets the value the next NextInSequence call will return
	SetSequence(ctx context.Context, key string, next uint64) error
}

// New starts the named blob plugin
func New(pluginName string) (BlobStore, error) {
	p, err := plugin.StartPlugin(plugin.PluginTypeBlob, pluginName)
	if err != nil {
		return nil, err
	}
	blobStore, ok := p.(BlobStore)
	if !ok {
		return nil, fmt.Errorf(
			"plugin '%s' does not implement BlobStore interface",
			pluginName,
		)
	}
	return blobStore, nil
}

// Advance computes the value handed out for a stored sequence value and the
// successor to store. A zero stored value means the sequence is unset.
func Advance(stored uint64, ceiling uint64) (uint64, uint64) {
	cur := stored
	if cur == 0 || cur > ceiling {
		cur = 1
	}
	next := cur + 1
	if cur >= ceiling {
		next = 1
	}
	return cur, next
}

// EncodeSequence encodes a sequence value for byte-oriented stores
func EncodeSequence(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

// DecodeSequence decodes a value written by EncodeSequence
func DecodeSequence(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("invalid sequence value length %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
