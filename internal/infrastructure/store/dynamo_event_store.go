package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// maxTransactItems is DynamoDB's limit on one TransactWriteItems call
const maxTransactItems = 100

// allEventsPK is the fixed GSI1 partition that orders every event by time
const allEventsPK = "EVENTS"

// DynamoAPI is the part of the DynamoDB client the event store uses
type DynamoAPI interface {
	dynamodb.QueryAPIClient
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DynamoEventStore keeps events in a table keyed by (aggregate_id, version).
// It publishes nothing itself: the table's Kinesis stream feeds the lambda
// projector and notifier.
type DynamoEventStore struct {
	client            DynamoAPI
	tableName         string
	snapshotTableName string
}

type dynamoEvent struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	Version       int    `dynamodbav:"version"`
	ID            string `dynamodbav:"id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	EventType     string `dynamodbav:"event_type"`
	Data          string `dynamodbav:"data"`
	CreatedAt     string `dynamodbav:"created_at"`
	GSI1PK        string `dynamodbav:"gsi1pk"`
}

func (de dynamoEvent) event() Event {
	timestamp, _ := time.Parse(time.RFC3339Nano, de.CreatedAt)
	return Event{
		ID:            de.ID,
		AggregateID:   de.AggregateID,
		AggregateType: de.AggregateType,
		EventType:     de.EventType,
		Data:          json.RawMessage(de.Data),
		Timestamp:     timestamp,
		Version:       de.Version,
	}
}

type dynamoSnapshot struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	Version       int    `dynamodbav:"version"`
	State         string `dynamodbav:"state"`
	CreatedAt     string `dynamodbav:"created_at"`
}

func NewDynamoEventStore(client DynamoAPI, tableName, snapshotTableName string) *DynamoEventStore {
	return &DynamoEventStore{
		client:            client,
		tableName:         tableName,
		snapshotTableName: snapshotTableName,
	}
}

func (es *DynamoEventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error) {
	stored, err := es.AppendAll(ctx, []PendingEvent{{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          data,
	}})
	if err != nil {
		return nil, err
	}
	return &stored[0], nil
}

// AppendAll writes the batch with a single TransactWriteItems call. Each put
// is conditional on its (aggregate_id, version) key being free, so a
// concurrent writer cancels the whole batch with ErrVersionConflict.
func (es *DynamoEventStore) AppendAll(ctx context.Context, pending []PendingEvent) ([]Event, error) {
	if len(pending) > maxTransactItems {
		return nil, fmt.Errorf("batch of %d events exceeds the DynamoDB transaction limit of %d", len(pending), maxTransactItems)
	}

	timestamp := time.Now().UTC()
	next := make(map[string]int)
	stored := make([]Event, 0, len(pending))
	items := make([]types.TransactWriteItem, 0, len(pending))

	for _, p := range pending {
		data, err := json.Marshal(p.Data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", p.EventType, err)
		}

		version, ok := next[p.AggregateID]
		if !ok {
			if version, err = es.currentVersion(ctx, p.AggregateID); err != nil {
				return nil, err
			}
		}
		version++
		next[p.AggregateID] = version

		item := dynamoEvent{
			AggregateID:   p.AggregateID,
			Version:       version,
			ID:            uuid.New().String(),
			AggregateType: p.AggregateType,
			EventType:     p.EventType,
			Data:          string(data),
			CreatedAt:     timestamp.Format(time.RFC3339Nano),
			GSI1PK:        allEventsPK,
		}
		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return nil, fmt.Errorf("marshal event item: %w", err)
		}

		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(es.tableName),
				Item:                av,
				ConditionExpression: aws.String("attribute_not_exists(aggregate_id) AND attribute_not_exists(version)"),
			},
		})
		stored = append(stored, item.event())
	}

	_, err := es.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var cancelled *types.TransactionCanceledException
		if errors.As(err, &cancelled) {
			return nil, fmt.Errorf("%w: %s", ErrVersionConflict, aws.ToString(cancelled.Message))
		}
		return nil, fmt.Errorf("write events: %w", err)
	}
	return stored, nil
}

// currentVersion reads the highest stored version of an aggregate, 0 if none
func (es *DynamoEventStore) currentVersion(ctx context.Context, aggregateID string) (int, error) {
	result, err := es.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
		},
		ScanIndexForward:     aws.Bool(false),
		Limit:                aws.Int32(1),
		ProjectionExpression: aws.String("version"),
	})
	if err != nil {
		return 0, fmt.Errorf("read version of %s: %w", aggregateID, err)
	}
	if len(result.Items) == 0 {
		return 0, nil
	}

	var item struct {
		Version int `dynamodbav:"version"`
	}
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return 0, err
	}
	return item.Version, nil
}

// queryAll follows LastEvaluatedKey until the query is exhausted. Read errors
// are logged and yield what was read so far, matching the interface, which
// has no error return on reads.
func (es *DynamoEventStore) queryAll(ctx context.Context, input *dynamodb.QueryInput) []Event {
	var events []Event
	paginator := dynamodb.NewQueryPaginator(es.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			log.Printf("[EventStore] DynamoDB query on %s failed: %v", es.tableName, err)
			return events
		}
		for _, item := range page.Items {
			var de dynamoEvent
			if err := attributevalue.UnmarshalMap(item, &de); err != nil {
				log.Printf("[EventStore] Skipping undecodable DynamoDB item: %v", err)
				continue
			}
			events = append(events, de.event())
		}
	}
	return events
}

func (es *DynamoEventStore) GetEvents(aggregateID string) []Event {
	return es.GetEventsFromVersion(context.Background(), aggregateID, 0)
}

// GetEventsFromVersion returns an aggregate's events after fromVersion
func (es *DynamoEventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) []Event {
	return es.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid AND version > :ver"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
			":ver": &types.AttributeValueMemberN{Value: strconv.Itoa(fromVersion)},
		},
		ScanIndexForward: aws.Bool(true),
	})
}

// GetAllEvents reads every event through GSI1, ordered by created_at
func (es *DynamoEventStore) GetAllEvents() []Event {
	return es.queryAll(context.Background(), &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: allEventsPK},
		},
		ScanIndexForward: aws.Bool(true),
	})
}

// SaveSnapshot overwrites the aggregate's item in the snapshots table
func (es *DynamoEventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	av, err := attributevalue.MarshalMap(dynamoSnapshot{
		AggregateID:   snapshot.AggregateID,
		AggregateType: snapshot.AggregateType,
		Version:       snapshot.Version,
		State:         string(snapshot.State),
		CreatedAt:     snapshot.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if _, err := es.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(es.snapshotTableName),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("put snapshot of %s: %w", snapshot.AggregateID, err)
	}
	return nil
}

func (es *DynamoEventStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	result, err := es.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(es.snapshotTableName),
		Key: map[string]types.AttributeValue{
			"aggregate_id": &types.AttributeValueMemberS{Value: aggregateID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get snapshot of %s: %w", aggregateID, err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var ds dynamoSnapshot
	if err := attributevalue.UnmarshalMap(result.Item, &ds); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot of %s: %w", aggregateID, err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, ds.CreatedAt)
	return &Snapshot{
		AggregateID:   ds.AggregateID,
		AggregateType: ds.AggregateType,
		Version:       ds.Version,
		State:         json.RawMessage(ds.State),
		CreatedAt:     createdAt,
	}, nil
}
