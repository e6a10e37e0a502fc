package kinesis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/marketplace-ledger/internal/infrastructure/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var createdAt = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func image(id, eventType string) map[string]events.DynamoDBAttributeValue {
	return map[string]events.DynamoDBAttributeValue{
		"id":             events.NewStringAttribute(id),
		"aggregate_id":   events.NewStringAttribute("buyer-1"),
		"aggregate_type": events.NewStringAttribute("Account"),
		"event_type":     events.NewStringAttribute(eventType),
		"data":           events.NewStringAttribute(`{"amount":400}`),
		"created_at":     events.NewStringAttribute(createdAt.Format(time.RFC3339Nano)),
		"version":        events.NewNumberAttribute("3"),
		"gsi1pk":         events.NewStringAttribute("EVENTS"),
	}
}

func record(t *testing.T, seq, eventName string, img map[string]events.DynamoDBAttributeValue) events.KinesisEventRecord {
	t.Helper()
	data, err := json.Marshal(events.DynamoDBEventRecord{
		EventName: eventName,
		Change:    events.DynamoDBStreamRecord{NewImage: img},
	})
	require.NoError(t, err)
	return events.KinesisEventRecord{
		EventID: "shard-0:" + seq,
		Kinesis: events.KinesisRecord{Data: data, SequenceNumber: seq},
	}
}

func TestConvertRecord(t *testing.T) {
	event, err := ConvertRecord(record(t, "1", "INSERT", image("evt-1", "WithdrawalRequested")))

	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "evt-1", event.ID)
	assert.Equal(t, "buyer-1", event.AggregateID)
	assert.Equal(t, "Account", event.AggregateType)
	assert.Equal(t, "WithdrawalRequested", event.EventType)
	assert.JSONEq(t, `{"amount":400}`, string(event.Data))
	assert.Equal(t, 3, event.Version)
	assert.True(t, createdAt.Equal(event.Timestamp))
}

func TestConvertRecord_SkipsNonInserts(t *testing.T) {
	for _, name := range []string{"MODIFY", "REMOVE"} {
		event, err := ConvertRecord(record(t, "1", name, image("evt-1", "TopUpCompleted")))
		require.NoError(t, err)
		assert.Nil(t, event, name)
	}
}

func TestConvertRecord_Invalid(t *testing.T) {
	missing := image("", "TopUpCompleted")
	badTime := image("evt-1", "TopUpCompleted")
	badTime["created_at"] = events.NewStringAttribute("yesterday")

	tests := []struct {
		name   string
		record events.KinesisEventRecord
	}{
		{"not json", events.KinesisEventRecord{Kinesis: events.KinesisRecord{Data: []byte("garbage")}}},
		{"missing id", record(t, "1", "INSERT", missing)},
		{"bad timestamp", record(t, "1", "INSERT", badTime)},
		{"no image", record(t, "1", "INSERT", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ConvertRecord(tt.record)
			assert.Error(t, err)
		})
	}
}

func TestHandleBatch_ReportsOnlyFailedRecords(t *testing.T) {
	batch := events.KinesisEvent{Records: []events.KinesisEventRecord{
		record(t, "1", "INSERT", image("evt-1", "TopUpCompleted")),
		record(t, "2", "MODIFY", image("evt-2", "TopUpCompleted")),
		record(t, "3", "INSERT", image("evt-3", "PayoutFailed")),
		{EventID: "shard-0:4", Kinesis: events.KinesisRecord{Data: []byte("{"), SequenceNumber: "4"}},
		record(t, "5", "INSERT", image("evt-5", "PayoutCompleted")),
	}}

	var handled []string
	resp := HandleBatch(context.Background(), "Test", batch, func(ctx context.Context, key, value []byte) error {
		var e store.Event
		require.NoError(t, json.Unmarshal(value, &e))
		assert.Equal(t, "buyer-1", string(key))
		handled = append(handled, e.ID)
		if e.EventType == "PayoutFailed" {
			return errors.New("read store down")
		}
		return nil
	})

	assert.Equal(t, []string{"evt-1", "evt-3", "evt-5"}, handled)
	assert.Equal(t, []events.KinesisBatchItemFailure{{ItemIdentifier: "3"}, {ItemIdentifier: "4"}}, resp.BatchItemFailures)
}
