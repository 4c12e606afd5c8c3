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

package audit_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/wilhelmina/audit"
	"github.com/blinklabs-io/wilhelmina/database/models"
	"github.com/blinklabs-io/wilhelmina/event"
	"github.com/blinklabs-io/wilhelmina/eventlog"
	"github.com/blinklabs-io/wilhelmina/internal/test/fakegw"
	"github.com/blinklabs-io/wilhelmina/internal/test/testutil"
)

type fakeWriter struct {
	err    error
	msgs   []kafka.Message
	closed bool
	mu     sync.Mutex
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) Messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func TestForwarderPostsToAdminLogAndKafka(t *testing.T) {
	ctx := context.Background()
	bus := event.NewEventBus(nil, nil)
	defer bus.Stop()
	db := testutil.NewDatabase(t)
	l, err := eventlog.New(eventlog.LogConfig{DB: db, EventBus: bus})
	require.NoError(t, err)
	require.NoError(t, db.UpsertCommunityConfig(ctx, &models.CommunityConfig{
		CommunityID:        "c1",
		AdminLogChannelRef: "admin-dashboard",
	}))
	gw := fakegw.New()
	writer := &fakeWriter{}
	fwd, err := audit.NewForwarder(audit.ForwarderConfig{
		EventBus:     bus,
		PromRegistry: prometheus.NewRegistry(),
		Limit:        1000,
		Sinks: []audit.Sink{
			audit.NewAdminLogSink(db, gw),
			audit.NewKafkaSinkWithWriter(writer),
		},
	})
	require.NoError(t, err)
	require.NoError(t, fwd.Start(ctx))

	_, err = l.Append(ctx, "c1", "admin", eventlog.AdminBypass{MemberID: "boss"})
	require.NoError(t, err)
	_, err = l.Append(ctx, "c1", "", eventlog.RitualState{})
	require.NoError(t, err)
	// No admin channel configured for c2
	_, err = l.Append(ctx, "c2", "", eventlog.ContractDeclined{MemberID: "m1"})
	require.NoError(t, err)

	testutil.WaitForCondition(t, func() bool {
		return len(writer.Messages()) == 3
	}, 5*time.Second, "kafka mirror did not receive every entry")
	require.NoError(t, fwd.Stop())
	assert.True(t, writer.closed)

	notices := gw.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, "admin-dashboard", notices[0].ChannelRef)
	assert.Equal(t, "admin_bypass", notices[0].Kind)
	assert.True(t, strings.HasPrefix(notices[0].Text, "admin_bypass: {"))
	assert.Contains(t, notices[0].Text, `"member_id":"boss"`)

	byKind := make(map[string]kafka.Message)
	for _, msg := range writer.Messages() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(msg.Value, &rec))
		byKind[rec["kind"].(string)] = msg
		assert.Equal(t, rec["community_id"], string(msg.Key))
	}
	require.Contains(t, byKind, "contract_declined")
	assert.Equal(t, "c2", string(byKind["contract_declined"].Key))
	assert.Equal(t, "kind", byKind["contract_declined"].Headers[0].Key)
}

func TestForwarderDropsWhenQueueIsFull(t *testing.T) {
	bus := event.NewEventBus(nil, nil)
	defer bus.Stop()
	fwd, err := audit.NewForwarder(audit.ForwarderConfig{
		EventBus:     bus,
		PromRegistry: prometheus.NewRegistry(),
		QueueSize:    1,
	})
	require.NoError(t, err)
	// Not started, so nothing drains the queue
	assert.True(t, fwd.Enqueue(eventlog.Entry{Seq: 1}))
	assert.False(t, fwd.Enqueue(eventlog.Entry{Seq: 2}))
	require.NoError(t, fwd.Stop())
}

func TestForwarderSinkFailureDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	bus := event.NewEventBus(nil, nil)
	defer bus.Stop()
	db := testutil.NewDatabase(t)
	require.NoError(t, db.UpsertCommunityConfig(ctx, &models.CommunityConfig{
		CommunityID:        "c1",
		AdminLogChannelRef: "admin-dashboard",
	}))
	gw := fakegw.New()
	gw.NotifyErr = errors.New("channel deleted")
	writer := &fakeWriter{}
	fwd, err := audit.NewForwarder(audit.ForwarderConfig{
		EventBus:     bus,
		PromRegistry: prometheus.NewRegistry(),
		Limit:        1000,
		Sinks: []audit.Sink{
			audit.NewAdminLogSink(db, gw),
			audit.NewKafkaSinkWithWriter(writer),
		},
	})
	require.NoError(t, err)
	require.NoError(t, fwd.Start(ctx))
	assert.Error(t, fwd.Start(ctx))
	fwd.Enqueue(eventlog.Entry{
		Seq:         7,
		CommunityID: "c1",
		Kind:        eventlog.KindContractSigned,
		Detail:      eventlog.ContractSigned{MemberID: "m1"},
	})
	testutil.WaitForCondition(t, func() bool {
		return len(writer.Messages()) == 1
	}, 5*time.Second, "kafka sink skipped after admin log failure")
	require.NoError(t, fwd.Stop())
	assert.Len(t, gw.Notices(), 1)
}

func TestNewKafkaSinkRequiresTopic(t *testing.T) {
	_, err := audit.NewKafkaSink(audit.KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
	sink, err := audit.NewKafkaSink(audit.KafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "wilhelmina.audit",
	})
	require.NoError(t, err)
	assert.Equal(t, "kafka", sink.Name())
	require.NoError(t, sink.Close())
}
