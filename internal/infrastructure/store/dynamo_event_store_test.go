package store

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/example/marketplace-ledger/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo serves version lookups from versions and every other query from
// pages, one page per call.
type fakeDynamo struct {
	versions map[string]int
	pages    [][]map[string]types.AttributeValue
	queries  []*dynamodb.QueryInput

	transactErr error
	written     []types.TransactWriteItem
	items       map[string]map[string]types.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{versions: map[string]int{}, items: map[string]map[string]types.AttributeValue{}}
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries = append(f.queries, in)

	if in.Limit != nil && *in.Limit == 1 {
		aid := in.ExpressionAttributeValues[":aid"].(*types.AttributeValueMemberS).Value
		v, ok := f.versions[aid]
		if !ok {
			return &dynamodb.QueryOutput{}, nil
		}
		return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
			{"version": &types.AttributeValueMemberN{Value: strconv.Itoa(v)}},
		}}, nil
	}

	page := 0
	if in.ExclusiveStartKey != nil {
		page, _ = strconv.Atoi(in.ExclusiveStartKey["page"].(*types.AttributeValueMemberN).Value)
	}
	out := &dynamodb.QueryOutput{Items: f.pages[page]}
	if page+1 < len(f.pages) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{"page": &types.AttributeValueMemberN{Value: strconv.Itoa(page + 1)}}
	}
	return out, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if f.transactErr != nil {
		return nil, f.transactErr
	}
	f.written = append(f.written, in.TransactItems...)
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	id := in.Item["aggregate_id"].(*types.AttributeValueMemberS).Value
	f.items[id] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	id := in.Key["aggregate_id"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.items[id]}, nil
}

func eventItem(t *testing.T, aggregateID string, version int, eventType string) map[string]types.AttributeValue {
	t.Helper()
	av, err := attributevalue.MarshalMap(dynamoEvent{
		AggregateID:   aggregateID,
		Version:       version,
		ID:            "evt-" + strconv.Itoa(version),
		AggregateType: "Order",
		EventType:     eventType,
		Data:          `{"order_id":"` + aggregateID + `"}`,
		CreatedAt:     "2024-03-15T10:00:00Z",
		GSI1PK:        allEventsPK,
	})
	require.NoError(t, err)
	return av
}

func TestDynamoEventStore_AppendAll(t *testing.T) {
	fake := newFakeDynamo()
	fake.versions["acct-a"] = 4
	es := NewDynamoEventStore(fake, "events", "snapshots")

	stored, err := es.AppendAll(context.Background(), []PendingEvent{
		{AggregateID: "acct-a", AggregateType: "Account", EventType: "EscrowSettled", Data: map[string]int{"amount": 500}},
		{AggregateID: "acct-b", AggregateType: "Account", EventType: "ProceedsCredited", Data: map[string]int{"amount": 500}},
		{AggregateID: "acct-a", AggregateType: "Account", EventType: "CashbackCredited", Data: map[string]int{"amount": 5}},
	})

	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, []int{5, 1, 6}, []int{stored[0].Version, stored[1].Version, stored[2].Version})
	assert.Len(t, fake.queries, 2, "one version lookup per aggregate")

	require.Len(t, fake.written, 3)
	for _, item := range fake.written {
		require.NotNil(t, item.Put)
		assert.Equal(t, "events", aws.ToString(item.Put.TableName))
		assert.Contains(t, aws.ToString(item.Put.ConditionExpression), "attribute_not_exists")
	}
	var first dynamoEvent
	require.NoError(t, attributevalue.UnmarshalMap(fake.written[0].Put.Item, &first))
	assert.Equal(t, allEventsPK, first.GSI1PK)
	assert.JSONEq(t, `{"amount":500}`, first.Data)
}

func TestDynamoEventStore_AppendAll_Conflict(t *testing.T) {
	fake := newFakeDynamo()
	fake.transactErr = &types.TransactionCanceledException{Message: aws.String("ConditionalCheckFailed")}
	es := NewDynamoEventStore(fake, "events", "snapshots")

	_, err := es.Append(context.Background(), "order-1", "Order", "OrderAccepted", nil)

	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestDynamoEventStore_AppendAll_TooLarge(t *testing.T) {
	fake := newFakeDynamo()
	es := NewDynamoEventStore(fake, "events", "snapshots")

	_, err := es.AppendAll(context.Background(), make([]PendingEvent, maxTransactItems+1))

	assert.Error(t, err)
	assert.Empty(t, fake.queries)
}

func TestDynamoEventStore_ReadsEveryPage(t *testing.T) {
	fake := newFakeDynamo()
	fake.pages = [][]map[string]types.AttributeValue{
		{eventItem(t, "order-1", 1, "OrderPlaced"), eventItem(t, "order-1", 2, "OrderAccepted")},
		{eventItem(t, "order-1", 3, "OrderPickedUp")},
	}
	es := NewDynamoEventStore(fake, "events", "snapshots")

	events := es.GetEvents("order-1")

	require.Len(t, events, 3)
	assert.Equal(t, "OrderPickedUp", events[2].EventType)
	assert.Equal(t, 3, events[2].Version)
	assert.True(t, events[0].Timestamp.Equal(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "0", fake.queries[0].ExpressionAttributeValues[":ver"].(*types.AttributeValueMemberN).Value)
	assert.Len(t, fake.queries, 2)
}

func TestDynamoEventStore_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	es := NewDynamoEventStore(newFakeDynamo(), "events", "snapshots")

	missing, err := es.GetSnapshot(ctx, "acct-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	snap, err := NewSnapshot("Account", "acct-1", 10, map[string]int64{"balance": 900})
	require.NoError(t, err)
	require.NoError(t, es.SaveSnapshot(ctx, snap))

	got, err := es.GetSnapshot(ctx, "acct-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 10, got.Version)
	assert.Equal(t, "Account", got.AggregateType)
	assert.JSONEq(t, `{"balance":900}`, string(got.State))
	assert.True(t, snap.CreatedAt.Equal(got.CreatedAt))
}
