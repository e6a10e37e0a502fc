// Package kinesis adapts DynamoDB change records delivered through Kinesis
// into stored events for the lambda consumers.
package kinesis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/marketplace-ledger/internal/infrastructure/kafka"
	"github.com/example/marketplace-ledger/internal/infrastructure/store"
)

// ConvertRecord decodes a Kinesis record carrying a DynamoDB stream record.
// Records other than inserts into the events table yield a nil event.
func ConvertRecord(record events.KinesisEventRecord) (*store.Event, error) {
	var change events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &change); err != nil {
		return nil, fmt.Errorf("unmarshal DynamoDB record: %w", err)
	}
	return ConvertStreamRecord(change)
}

// ConvertStreamRecord decodes a DynamoDB stream record read directly
func ConvertStreamRecord(record events.DynamoDBEventRecord) (*store.Event, error) {
	if record.EventName != "INSERT" {
		return nil, nil
	}
	return eventFromImage(record.Change.NewImage)
}

// eventFromImage reads the attributes DynamoEventStore writes. Snapshot rows
// carry no event_type and are rejected.
func eventFromImage(image map[string]events.DynamoDBAttributeValue) (*store.Event, error) {
	if image == nil {
		return nil, fmt.Errorf("DynamoDB image is nil")
	}

	event := &store.Event{}
	str := func(name string) string {
		if v, ok := image[name]; ok && v.DataType() == events.DataTypeString {
			return v.String()
		}
		return ""
	}
	event.ID = str("id")
	event.AggregateID = str("aggregate_id")
	event.AggregateType = str("aggregate_type")
	event.EventType = str("event_type")
	if data := str("data"); data != "" {
		event.Data = json.RawMessage(data)
	}

	if v := str("created_at"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		event.Timestamp = t
	}
	if v, ok := image["version"]; ok {
		version, err := v.Integer()
		if err != nil {
			return nil, fmt.Errorf("parse version: %w", err)
		}
		event.Version = int(version)
	}

	if event.ID == "" || event.AggregateID == "" || event.EventType == "" {
		return nil, fmt.Errorf("missing required fields: id=%q aggregate_id=%q event_type=%q",
			event.ID, event.AggregateID, event.EventType)
	}
	return event, nil
}

// HandleBatch feeds every inserted event in the batch to handler, in order,
// and reports the records that failed so Lambda retries only those.
func HandleBatch(ctx context.Context, component string, batch events.KinesisEvent, handler kafka.MessageHandler) events.KinesisEventResponse {
	var failures []events.KinesisBatchItemFailure
	fail := func(record events.KinesisEventRecord) {
		failures = append(failures, events.KinesisBatchItemFailure{ItemIdentifier: record.Kinesis.SequenceNumber})
	}

	for _, record := range batch.Records {
		event, err := ConvertRecord(record)
		if err != nil {
			log.Printf("[%s] Failed to convert record %s: %v", component, record.EventID, err)
			fail(record)
			continue
		}
		if event == nil {
			continue
		}

		value, err := json.Marshal(event)
		if err != nil {
			log.Printf("[%s] Failed to marshal event %s: %v", component, event.ID, err)
			fail(record)
			continue
		}
		if err := handler(ctx, []byte(event.AggregateID), value); err != nil {
			log.Printf("[%s] Failed to process event %s (%s): %v", component, event.ID, event.EventType, err)
			fail(record)
		}
	}

	log.Printf("[%s] Processed %d/%d records", component, len(batch.Records)-len(failures), len(batch.Records))
	return events.KinesisEventResponse{BatchItemFailures: failures}
}
