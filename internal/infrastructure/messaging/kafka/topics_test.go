package kafka

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventEnvelope_RoundTrip(t *testing.T) {
	payload := AnalysisCompletedPayload{
		SessionID:       "sess-1",
		Account:         "0660640130020",
		ComparableCount: 5,
		ExcludedCount:   2,
		Reliable:        true,
		CompletedAt:     time.Now().UTC(),
	}

	env, err := NewEventEnvelope("analysis.completed", "protest-engine", payload)
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, "v1", env.SchemaVersion)

	msg, err := env.ToMessage(TopicAnalysisCompleted, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, TopicAnalysisCompleted, msg.Topic)
	assert.Equal(t, []byte("sess-1"), msg.Key)
	assert.Equal(t, "analysis.completed", msg.Headers["event_type"])

	decoded, err := DecodeEnvelope(&Message{Topic: msg.Topic, Value: msg.Value})
	require.NoError(t, err)
	assert.Equal(t, env.EventID, decoded.EventID)

	var got AnalysisCompletedPayload
	require.NoError(t, decoded.DecodePayload(&got))
	assert.Equal(t, payload.SessionID, got.SessionID)
	assert.Equal(t, 5, got.ComparableCount)
	assert.True(t, got.Reliable)
}

func TestDecodeEnvelope_Invalid(t *testing.T) {
	_, err := DecodeEnvelope(&Message{})
	assert.Error(t, err)

	_, err = DecodeEnvelope(&Message{Value: []byte("not json")})
	assert.Error(t, err)
}

func TestEventEnvelope_DecodeEmptyPayload(t *testing.T) {
	env := &EventEnvelope{}
	var got SessionStagePayload
	assert.Error(t, env.DecodePayload(&got))
}

type fakeConn struct {
	created    []kafka.TopicConfig
	createErr  error
	partitions map[string][]kafka.Partition
	closed     bool
}

func (f *fakeConn) CreateTopics(topics ...kafka.TopicConfig) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, topics...)
	return nil
}

func (f *fakeConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	var out []kafka.Partition
	for _, t := range topics {
		out = append(out, f.partitions[t]...)
	}
	return out, nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func TestTopicManager_EnsureDefaultTopics(t *testing.T) {
	conn := &fakeConn{partitions: map[string][]kafka.Partition{}}
	mgr := NewTopicManagerWithConn(conn, nil)

	require.NoError(t, mgr.EnsureDefaultTopics(context.Background()))
	assert.Len(t, conn.created, len(DefaultTopics()))
}

func TestTopicManager_CreateTopicToleratesExisting(t *testing.T) {
	conn := &fakeConn{
		createErr:  stderrors.New("topic already exists"),
		partitions: map[string][]kafka.Partition{TopicSessionAdvanced: {{Topic: TopicSessionAdvanced}}},
	}
	mgr := NewTopicManagerWithConn(conn, nil)

	err := mgr.CreateTopic(context.Background(), TopicConfig{
		Name: TopicSessionAdvanced, NumPartitions: 6, ReplicationFactor: 3,
	})
	assert.NoError(t, err)
}

func TestTopicManager_CreateTopicValidates(t *testing.T) {
	mgr := NewTopicManagerWithConn(&fakeConn{}, nil)
	ctx := context.Background()

	assert.Error(t, mgr.CreateTopic(ctx, TopicConfig{NumPartitions: 1, ReplicationFactor: 1}))
	assert.Error(t, mgr.CreateTopic(ctx, TopicConfig{Name: "x", ReplicationFactor: 1}))
	assert.Error(t, mgr.CreateTopic(ctx, TopicConfig{Name: "x", NumPartitions: 1}))
}
