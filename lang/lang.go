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

// Package lang holds the user-facing text. Every key has a built-in
// default, and a YAML or JSON file may override any of them.
package lang

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Ritual struct {
	Start     string   `yaml:"start"      json:"start"`
	BeatLines []string `yaml:"beat_lines" json:"beat_lines"`
	Finale    string   `yaml:"finale"     json:"finale"`
}

type Decline struct {
	Rude []string `yaml:"rude" json:"rude"`
}

type Contract struct {
	PromptName      string  `yaml:"prompt_name"      json:"prompt_name"`
	PromptBirthdate string  `yaml:"prompt_birthdate" json:"prompt_birthdate"`
	Decline         Decline `yaml:"decline"          json:"decline"`
	SignedDM        string  `yaml:"signed_dm"        json:"signed_dm"`
	SignedPublic    string  `yaml:"signed_public"    json:"signed_public"`
}

type Admin struct {
	InitPreviewTitle string `yaml:"init_preview_title" json:"init_preview_title"`
	Abort            string `yaml:"abort"              json:"abort"`
	Bypass           string `yaml:"bypass"             json:"bypass"`
}

// Errors holds the short themed messages shown instead of internal errors
type Errors struct {
	Generic           string `yaml:"generic"            json:"generic"`
	Permission        string `yaml:"permission"         json:"permission"`
	NotFound          string `yaml:"not_found"          json:"not_found"`
	InvalidDate       string `yaml:"invalid_date"       json:"invalid_date"`
	InvalidName       string `yaml:"invalid_name"       json:"invalid_name"`
	InvalidTransition string `yaml:"invalid_transition" json:"invalid_transition"`
	AlreadyActive     string `yaml:"already_active"     json:"already_active"`
	NotActive         string `yaml:"not_active"         json:"not_active"`
	Preflight         string `yaml:"preflight"          json:"preflight"`
	BadRequest        string `yaml:"bad_request"        json:"bad_request"`
}

// Dictionary is the full set of user-facing text
type Dictionary struct {
	Ritual   Ritual   `yaml:"ritual"   json:"ritual"`
	Contract Contract `yaml:"contract" json:"contract"`
	Admin    Admin    `yaml:"admin"    json:"admin"`
	Errors   Errors   `yaml:"errors"   json:"errors"`
}

// Default returns the built-in dictionary
func Default() *Dictionary {
	return &Dictionary{
		Ritual: Ritual{
			Start: ">> INITIALIZING // SUMMONING_CIRCLE",
			BeatLines: []string{
				">>> LINK OPENED : SIGNAL: {signal}",
				"[WARN] interference detected; patching…",
				"ACCESS OVERRIDE // @everyone : EYES FRONT.",
				"error: {code} // retrying…",
			},
			Finale: ">>> CONTRACT REQUIRED // BEGIN SIGNING",
		},
		Contract: Contract{
			PromptName:      "Enter your chosen name.",
			PromptBirthdate: "Birth date (YYYY-MM-DD).",
			Decline: Decline{
				Rude: []string{"No signature? Then no access. Move along."},
			},
			SignedDM:     "Seal granted. Your Soul ID: {soul_id}",
			SignedPublic: "Seal granted for <@{member}>.",
		},
		Admin: Admin{
			InitPreviewTitle: "Server Takeover Preview",
			Abort:            "Ritual severed. Pending beats purged; lockdown persists.",
			Bypass:           "You are exempt by law; the gate is ceremonial for you.",
		},
		Errors: Errors{
			Generic:           "Something went wrong. The coven is investigating.",
			Permission:        "You lack the required permissions.",
			NotFound:          "No such soul is recorded.",
			InvalidDate:       "Invalid date. Please use YYYY-MM-DD.",
			InvalidName:       "A chosen name of 1 to 64 characters is required.",
			InvalidTransition: "That seal cannot be moved that way.",
			AlreadyActive:     "Ritual already active.",
			NotActive:         "No active ritual.",
			Preflight:         "Ritual preflight failed. Grant the missing permissions and retry.",
			BadRequest:        "The circle cannot read that request.",
		},
	}
}

// Load reads a dictionary file. Files ending in .json are parsed as JSON,
// anything else as YAML. Keys missing from the file keep their defaults.
func Load(path string) (*Dictionary, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lang file: %w", err)
	}
	if len(bytes.TrimSpace(buf)) == 0 {
		return nil, fmt.Errorf("lang file %s is empty", path)
	}
	d := &Dictionary{}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(buf, d)
	} else {
		err = yaml.Unmarshal(buf, d)
	}
	if err != nil {
		return nil, fmt.Errorf("parse lang file %s: %w", path, err)
	}
	d.fillDefaults(Default())
	return d, nil
}

func (d *Dictionary) fillDefaults(def *Dictionary) {
	setDefault(&d.Ritual.Start, def.Ritual.Start)
	if len(d.Ritual.BeatLines) == 0 {
		d.Ritual.BeatLines = def.Ritual.BeatLines
	}
	setDefault(&d.Ritual.Finale, def.Ritual.Finale)
	setDefault(&d.Contract.PromptName, def.Contract.PromptName)
	setDefault(&d.Contract.PromptBirthdate, def.Contract.PromptBirthdate)
	if len(d.Contract.Decline.Rude) == 0 {
		d.Contract.Decline.Rude = def.Contract.Decline.Rude
	}
	setDefault(&d.Contract.SignedDM, def.Contract.SignedDM)
	setDefault(&d.Contract.SignedPublic, def.Contract.SignedPublic)
	setDefault(&d.Admin.InitPreviewTitle, def.Admin.InitPreviewTitle)
	setDefault(&d.Admin.Abort, def.Admin.Abort)
	setDefault(&d.Admin.Bypass, def.Admin.Bypass)
	setDefault(&d.Errors.Generic, def.Errors.Generic)
	setDefault(&d.Errors.Permission, def.Errors.Permission)
	setDefault(&d.Errors.NotFound, def.Errors.NotFound)
	setDefault(&d.Errors.InvalidDate, def.Errors.InvalidDate)
	setDefault(&d.Errors.InvalidName, def.Errors.InvalidName)
	setDefault(&d.Errors.InvalidTransition, def.Errors.InvalidTransition)
	setDefault(&d.Errors.AlreadyActive, def.Errors.AlreadyActive)
	setDefault(&d.Errors.NotActive, def.Errors.NotActive)
	setDefault(&d.Errors.Preflight, def.Errors.Preflight)
	setDefault(&d.Errors.BadRequest, def.Errors.BadRequest)
}

func setDefault(dest *string, def string) {
	if strings.TrimSpace(*dest) == "" {
		*dest = def
	}
}

// Expand substitutes {name} placeholders. Unknown placeholders are left
// as they are.
func Expand(template string, vars map[string]string) string {
	if len(vars) == 0 {
		return template
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// BeatLine picks a beat line and fills in {signal} (100-999) and
// {code} (100-599)
func (d *Dictionary) BeatLine(rng *rand.Rand) string {
	line := d.Ritual.BeatLines[rng.IntN(len(d.Ritual.BeatLines))]
	return Expand(line, map[string]string{
		"signal": strconv.Itoa(100 + rng.IntN(900)),
		"code":   strconv.Itoa(100 + rng.IntN(500)),
	})
}

// RudeLine picks one of the decline responses
func (d *Dictionary) RudeLine(rng *rand.Rand) string {
	return d.Contract.Decline.Rude[rng.IntN(len(d.Contract.Decline.Rude))]
}

// SignedDM returns the private confirmation for a new identifier
func (d *Dictionary) SignedDM(soulID string) string {
	return Expand(d.Contract.SignedDM, map[string]string{"soul_id": soulID})
}

// SignedPublic returns the circle announcement for a new signature
func (d *Dictionary) SignedPublic(memberID string) string {
	return Expand(d.Contract.SignedPublic, map[string]string{"member": memberID})
}
