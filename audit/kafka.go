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

package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/blinklabs-io/wilhelmina/eventlog"
	"github.com/segmentio/kafka-go"
)

// Writer is the part of kafka.Writer the sink uses
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig selects the brokers and topic of the Kafka mirror
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// KafkaSink mirrors every entry to a topic, keyed by community so that each
// community's entries stay in one partition and in sequence order
type KafkaSink struct {
	writer Writer
}

type kafkaRecord struct {
	CreatedAt   time.Time       `json:"created_at"`
	Detail      json.RawMessage `json:"detail"`
	CommunityID string          `json:"community_id"`
	ActorID     string          `json:"actor_id,omitempty"`
	SubjectID   string          `json:"subject_id,omitempty"`
	Kind        string          `json:"kind"`
	Seq         uint64          `json:"seq"`
}

// NewKafkaSink creates a sink writing to the configured brokers
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("audit: kafka brokers and topic are required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	if cfg.WriteTimeout > 0 {
		w.WriteTimeout = cfg.WriteTimeout
	}
	return NewKafkaSinkWithWriter(w), nil
}

// NewKafkaSinkWithWriter uses an existing writer
func NewKafkaSinkWithWriter(w Writer) *KafkaSink {
	return &KafkaSink{writer: w}
}

func (s *KafkaSink) Name() string {
	return "kafka"
}

func (s *KafkaSink) Forward(ctx context.Context, entry eventlog.Entry) error {
	detail, err := eventlog.Encode(entry.Detail)
	if err != nil {
		return err
	}
	value, err := json.Marshal(kafkaRecord{
		Seq:         entry.Seq,
		CommunityID: entry.CommunityID,
		ActorID:     entry.ActorID,
		SubjectID:   entry.SubjectID,
		Kind:        string(entry.Kind),
		Detail:      json.RawMessage(detail),
		CreatedAt:   entry.CreatedAt.UTC(),
	})
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(entry.CommunityID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(entry.Kind)},
			{Key: "seq", Value: []byte(strconv.FormatUint(entry.Seq, 10))},
		},
		Time: entry.CreatedAt,
	})
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
