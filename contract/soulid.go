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

package contract

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/blinklabs-io/wilhelmina/serial"
)

const DefaultBrand = "WLMN"

const sigil = "⛧"

// Runes are the entropy marks drawn into every identifier
var Runes = []string{"Ψ", "Ω", "Σ", "Δ", "✶", "⟡", "☿", "♇"}

// Minter builds soul identifiers of the form
// ⛧<BRAND>-<serial>-<glyph><yy><rune><digit>⛧
type Minter struct {
	Brand   string
	Ceiling uint64
}

func (m Minter) brand() string {
	if m.Brand == "" {
		return DefaultBrand
	}
	return m.Brand
}

func (m Minter) ceiling() uint64 {
	if m.Ceiling == 0 {
		return serial.DefaultCeiling
	}
	return m.Ceiling
}

func (m Minter) placeholder() string {
	return strings.Repeat("0", serial.Width(m.ceiling()))
}

// Mint returns the identifier with an all-zero serial placeholder. The
// result depends only on the name and the signing second.
func (m Minter) Mint(name string, signedAt time.Time) string {
	signedAt = signedAt.UTC()
	rng := rand.New(rand.NewPCG(uint64(signedAt.Unix()), 0)) //nolint:gosec
	r := Runes[rng.IntN(len(Runes))]
	digit := rng.IntN(10)
	return fmt.Sprintf(
		"%s%s-%s-%s%02d%s%d%s",
		sigil,
		m.brand(),
		m.placeholder(),
		Glyph(name),
		signedAt.Year()%100,
		r,
		digit,
		sigil,
	)
}

// WithSerial splices a zero-padded serial into a minted identifier
func (m Minter) WithSerial(id string, serialNum uint64) (string, error) {
	formatted, err := serial.Format(serialNum, m.ceiling())
	if err != nil {
		return "", err
	}
	prefix := sigil + m.brand() + "-" + m.placeholder() + "-"
	if !strings.HasPrefix(id, prefix) {
		return "", errors.New("identifier has no serial placeholder")
	}
	return sigil + m.brand() + "-" + formatted + "-" + strings.TrimPrefix(id, prefix), nil
}

// Glyph derives two letters from an FNV-1a hash of the normalized name
func Glyph(name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalizeName(name)))
	sum := h.Sum32()
	return string([]byte{
		byte('A' + sum%26),
		byte('A' + (sum/26)%26),
	})
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
