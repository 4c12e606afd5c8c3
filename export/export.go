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

// Package export renders a community's member records and journal as CSV
// or JSON and writes them to a local directory, GCS or S3
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/blinklabs-io/wilhelmina/database"
	"github.com/blinklabs-io/wilhelmina/database/models"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat accepts csv or json, defaulting to csv
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

var (
	memberColumns = []string{"community_id", "member_id", "chosen_name", "birthdate", "signed_at", "soul_id"}
	eventColumns  = []string{"id", "community_id", "actor_id", "kind", "detail_json", "ts"}
)

type Member struct {
	CommunityID string `json:"community_id"`
	MemberID    string `json:"member_id"`
	ChosenName  string `json:"chosen_name"`
	Birthdate   string `json:"birthdate"`
	SignedAt    string `json:"signed_at"`
	SoulID      string `json:"soul_id"`
}

type Event struct {
	Detail      json.RawMessage `json:"detail"`
	CommunityID string          `json:"community_id"`
	ActorID     string          `json:"actor_id"`
	Kind        string          `json:"kind"`
	Ts          string          `json:"ts"`
	ID          uint64          `json:"id"`
}

// Records is everything exported for one community
type Records struct {
	Members []Member `json:"members"`
	Events  []Event  `json:"events,omitempty"`
}

// File is one rendered export file
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Collect reads the member records and, when audit is set, the journal
func Collect(ctx context.Context, db *database.Database, communityID string, audit bool) (*Records, error) {
	members, err := db.ListMembers(ctx, communityID)
	if err != nil {
		return nil, err
	}
	ret := &Records{Members: make([]Member, 0, len(members))}
	for _, m := range members {
		ret.Members = append(ret.Members, memberRecord(m))
	}
	if !audit {
		return ret, nil
	}
	events, err := db.ListEvents(ctx, communityID, database.EventQuery{})
	if err != nil {
		return nil, err
	}
	ret.Events = make([]Event, 0, len(events))
	for _, e := range events {
		ret.Events = append(ret.Events, eventRecord(e))
	}
	return ret, nil
}

func memberRecord(m models.Member) Member {
	ret := Member{
		CommunityID: m.CommunityID,
		MemberID:    m.MemberID,
		ChosenName:  m.ChosenName,
		Birthdate:   m.Birthdate,
	}
	if m.SignedAt != nil {
		ret.SignedAt = m.SignedAt.UTC().Format(time.RFC3339)
	}
	if m.SoulID != nil {
		ret.SoulID = *m.SoulID
	}
	return ret
}

func eventRecord(e models.Event) Event {
	ret := Event{
		ID:          e.ID,
		CommunityID: e.CommunityID,
		Kind:        e.Kind,
		Detail:      json.RawMessage(e.Detail),
		Ts:          e.CreatedAt.UTC().Format(time.RFC3339),
	}
	if e.ActorID != nil {
		ret.ActorID = *e.ActorID
	}
	return ret
}

// Render produces the export files. CSV yields members.csv and, with
// events, events.csv. JSON yields a single records.json.
func Render(records *Records, format Format) ([]File, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode records: %w", err)
		}
		return []File{{Name: "records.json", ContentType: "application/json", Data: data}}, nil
	case FormatCSV:
		rows := make([][]string, 0, len(records.Members))
		for _, m := range records.Members {
			rows = append(rows, []string{m.CommunityID, m.MemberID, m.ChosenName, m.Birthdate, m.SignedAt, m.SoulID})
		}
		members, err := renderCSV(memberColumns, rows)
		if err != nil {
			return nil, err
		}
		ret := []File{{Name: "members.csv", ContentType: "text/csv", Data: members}}
		if records.Events == nil {
			return ret, nil
		}
		rows = make([][]string, 0, len(records.Events))
		for _, e := range records.Events {
			rows = append(rows, []string{
				strconv.FormatUint(e.ID, 10),
				e.CommunityID,
				e.ActorID,
				e.Kind,
				string(e.Detail),
				e.Ts,
			})
		}
		events, err := renderCSV(eventColumns, rows)
		if err != nil {
			return nil, err
		}
		return append(ret, File{Name: "events.csv", ContentType: "text/csv", Data: events}), nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

func renderCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteArchive writes several files as one zip archive
func WriteArchive(w io.Writer, files []File) error {
	zw := zip.NewWriter(w)
	for _, f := range files {
		fw, err := zw.Create(f.Name)
		if err != nil {
			return err
		}
		if _, err := fw.Write(f.Data); err != nil {
			return err
		}
	}
	return zw.Close()
}
