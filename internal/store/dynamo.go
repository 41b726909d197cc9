package store

import (
	"context"
	"fmt"

	"github.com/aristath/stockdata/internal/apperr"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// dynamoBatchSize is DynamoDB's hard BatchWriteItem limit.
const dynamoBatchSize = 25

// indexNames maps the logical index names used throughout the
// codebase to the GSI names provisioned on the table (spec §3).
var indexNames = map[string]string{
	"bySymbol":       "bySymbol",
	"byMarketStatus": "byMarketStatus",
	"byScore":        "byScore",
}

// DynamoRepository is a Repository backed by a single DynamoDB table
// using the key schema in spec §3: a primary index (pk, sk) and three
// global secondary indexes (bySymbol, byMarketStatus, byScore).
//
// Item<->AttributeValue conversion is hand-written rather than routed
// through attributevalue.MarshalMap/UnmarshalMap, because
// decimal.Decimal does not round-trip through that package's
// reflection-based encoding: a decimal must become a DynamoDB Number
// carrying its exact string form, not a reflected struct.
type DynamoRepository struct {
	client *dynamodb.Client
	table  string
	log    zerolog.Logger
}

// NewDynamoRepository wraps an already-configured dynamodb.Client.
// Client construction (region, endpoint override for local testing,
// credential chain) lives in cmd/*, following the teacher's pattern of
// building AWS clients once at startup and threading them down.
func NewDynamoRepository(client *dynamodb.Client, table string, log zerolog.Logger) *DynamoRepository {
	return &DynamoRepository{
		client: client,
		table:  table,
		log:    log.With().Str("component", "dynamo_repository").Str("table", table).Logger(),
	}
}

func toAttributeValue(v AttrValue) (types.AttributeValue, error) {
	switch {
	case v.S != nil:
		return &types.AttributeValueMemberS{Value: *v.S}, nil
	case v.N != nil:
		return &types.AttributeValueMemberN{Value: v.N.String()}, nil
	case v.B != nil:
		return &types.AttributeValueMemberBOOL{Value: *v.B}, nil
	default:
		return nil, fmt.Errorf("store: attribute has no S/N/B value set")
	}
}

func fromAttributeValue(av types.AttributeValue) (AttrValue, error) {
	switch t := av.(type) {
	case *types.AttributeValueMemberS:
		return Str(t.Value), nil
	case *types.AttributeValueMemberN:
		d, err := decimal.NewFromString(t.Value)
		if err != nil {
			return AttrValue{}, fmt.Errorf("store: decode numeric attribute %q: %w", t.Value, err)
		}
		return Num(d), nil
	case *types.AttributeValueMemberBOOL:
		return Bool(t.Value), nil
	case *types.AttributeValueMemberNULL:
		return AttrValue{}, nil
	default:
		return AttrValue{}, fmt.Errorf("store: unsupported DynamoDB attribute type %T", av)
	}
}

func itemToDynamo(item Item) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		av, err := toAttributeValue(v)
		if err != nil {
			return nil, fmt.Errorf("store: attribute %q: %w", k, err)
		}
		out[k] = av
	}
	return out, nil
}

func itemFromDynamo(raw map[string]types.AttributeValue) (Item, error) {
	out := make(Item, len(raw))
	for k, av := range raw {
		v, err := fromAttributeValue(av)
		if err != nil {
			return nil, fmt.Errorf("store: attribute %q: %w", k, err)
		}
		if v == (AttrValue{}) {
			continue // NULL attribute: drop rather than carry a zero-value entry
		}
		out[k] = v
	}
	return out, nil
}

// PutItem writes item unconditionally, overwriting any existing item
// at the same (pk, sk).
func (r *DynamoRepository) PutItem(ctx context.Context, item Item) error {
	if item.PK() == "" || item.SK() == "" {
		return apperr.NewInvalidInput("item must have non-empty pk and sk")
	}
	av, err := itemToDynamo(item)
	if err != nil {
		return apperr.NewStoreError("PutItem", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      av,
	})
	if err != nil {
		return apperr.NewStoreError("PutItem", err)
	}
	return nil
}

// GetItem fetches the item at (pk, sk).
func (r *DynamoRepository) GetItem(ctx context.Context, pk, sk string) (Item, bool, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: pk},
			"sk": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return nil, false, apperr.NewStoreError("GetItem", err)
	}
	if out.Item == nil {
		return nil, false, nil
	}
	item, err := itemFromDynamo(out.Item)
	if err != nil {
		return nil, false, apperr.NewStoreError("GetItem", err)
	}
	return item, true, nil
}

// DeleteItem removes the item at (pk, sk), if present.
func (r *DynamoRepository) DeleteItem(ctx context.Context, pk, sk string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: pk},
			"sk": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return apperr.NewStoreError("DeleteItem", err)
	}
	return nil
}

// UpdateItem applies updates as a single SET expression over
// dynamically-named placeholders and returns the post-update item.
func (r *DynamoRepository) UpdateItem(ctx context.Context, pk, sk string, updates Item) (Item, error) {
	if len(updates) == 0 {
		item, _, err := r.GetItem(ctx, pk, sk)
		return item, err
	}

	expr := "SET "
	names := make(map[string]string, len(updates))
	values := make(map[string]types.AttributeValue, len(updates))
	i := 0
	for k, v := range updates {
		nameKey := fmt.Sprintf("#f%d", i)
		valKey := fmt.Sprintf(":v%d", i)
		if i > 0 {
			expr += ", "
		}
		expr += fmt.Sprintf("%s = %s", nameKey, valKey)
		names[nameKey] = k
		av, err := toAttributeValue(v)
		if err != nil {
			return nil, apperr.NewStoreError("UpdateItem", err)
		}
		values[valKey] = av
		i++
	}

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: pk},
			"sk": &types.AttributeValueMemberS{Value: sk},
		},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, apperr.NewStoreError("UpdateItem", err)
	}
	item, err := itemFromDynamo(out.Attributes)
	if err != nil {
		return nil, apperr.NewStoreError("UpdateItem", err)
	}
	return item, nil
}

// Query runs against the primary table or one of the three GSIs,
// transparently following LastEvaluatedKey continuation tokens until
// Limit is reached or the index is exhausted.
func (r *DynamoRepository) Query(ctx context.Context, in QueryInput) ([]Item, error) {
	pkAttr, skAttr := "pk", "sk"
	var indexName *string
	if in.IndexName != "" {
		gsi, ok := indexNames[in.IndexName]
		if !ok {
			return nil, apperr.NewInvalidInput("unknown index %q", in.IndexName)
		}
		indexName = aws.String(gsi)
		switch in.IndexName {
		case "bySymbol":
			pkAttr, skAttr = "gsi1pk", "gsi1sk"
		case "byMarketStatus":
			pkAttr, skAttr = "gsi2pk", "gsi2sk"
		case "byScore":
			pkAttr, skAttr = "score_pk", "score_sk"
		}
	}

	keyCond := fmt.Sprintf("#pk = :pk")
	names := map[string]string{"#pk": pkAttr}
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: in.PartitionValue},
	}
	switch {
	case in.SortPrefix != "":
		keyCond += " AND begins_with(#sk, :skPrefix)"
		names["#sk"] = skAttr
		values[":skPrefix"] = &types.AttributeValueMemberS{Value: in.SortPrefix}
	case in.SortGTE != "":
		keyCond += " AND #sk >= :skGte"
		names["#sk"] = skAttr
		values[":skGte"] = &types.AttributeValueMemberS{Value: in.SortGTE}
	}

	scanForward := in.Direction != Descending

	var items []Item
	var exclusiveStart map[string]types.AttributeValue
	for {
		input := &dynamodb.QueryInput{
			TableName:                 aws.String(r.table),
			IndexName:                 indexName,
			KeyConditionExpression:    aws.String(keyCond),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
			ScanIndexForward:          aws.Bool(scanForward),
			ExclusiveStartKey:         exclusiveStart,
		}
		if in.Limit > 0 {
			remaining := in.Limit - len(items)
			if remaining <= 0 {
				break
			}
			input.Limit = aws.Int32(int32(remaining))
		}

		out, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, apperr.NewStoreError("Query", err)
		}
		for _, raw := range out.Items {
			item, err := itemFromDynamo(raw)
			if err != nil {
				return nil, apperr.NewStoreError("Query", err)
			}
			items = append(items, item)
		}
		if out.LastEvaluatedKey == nil || (in.Limit > 0 && len(items) >= in.Limit) {
			break
		}
		exclusiveStart = out.LastEvaluatedKey
	}
	return items, nil
}

// Scan performs a full-table scan, optionally filtering by a pk
// prefix client-side, following continuation tokens until Limit is
// reached or the table is exhausted.
func (r *DynamoRepository) Scan(ctx context.Context, in ScanInput) ([]Item, error) {
	var items []Item
	var exclusiveStart map[string]types.AttributeValue
	for {
		input := &dynamodb.ScanInput{
			TableName:         aws.String(r.table),
			ExclusiveStartKey: exclusiveStart,
		}
		out, err := r.client.Scan(ctx, input)
		if err != nil {
			return nil, apperr.NewStoreError("Scan", err)
		}
		for _, raw := range out.Items {
			item, err := itemFromDynamo(raw)
			if err != nil {
				return nil, apperr.NewStoreError("Scan", err)
			}
			if in.PKPrefix != "" && !hasPrefix(item.PK(), in.PKPrefix) {
				continue
			}
			items = append(items, item)
			if in.Limit > 0 && len(items) >= in.Limit {
				return items, nil
			}
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		exclusiveStart = out.LastEvaluatedKey
	}
	return items, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// BatchPut dedups, chunks to DynamoDB's 25-item limit, and retries
// unprocessed items through the shared retryingBatchPut policy.
func (r *DynamoRepository) BatchPut(ctx context.Context, items []Item) error {
	return retryingBatchPut(ctx, r, items, r.log)
}

func (r *DynamoRepository) batchSizeLimit() int { return dynamoBatchSize }

// dynamoBatchGetSize is DynamoDB's hard BatchGetItem limit.
const dynamoBatchGetSize = 100

// BatchGetItems fetches items for the given keys via BatchGetItem,
// following the UnprocessedKeys protocol spec 4.6 calls for.
func (r *DynamoRepository) BatchGetItems(ctx context.Context, keys []ItemKey) (map[ItemKey]Item, error) {
	return retryingBatchGet(ctx, r, keys, r.log)
}

func (r *DynamoRepository) batchGetSizeLimit() int { return dynamoBatchGetSize }

func (r *DynamoRepository) getBatch(ctx context.Context, keys []ItemKey) (map[ItemKey]Item, []ItemKey, error) {
	dynamoKeys := make([]map[string]types.AttributeValue, 0, len(keys))
	for _, k := range keys {
		dynamoKeys = append(dynamoKeys, map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: k.PK},
			"sk": &types.AttributeValueMemberS{Value: k.SK},
		})
	}

	out, err := r.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
		RequestItems: map[string]types.KeysAndAttributes{
			r.table: {Keys: dynamoKeys},
		},
	})
	if err != nil {
		return nil, nil, err
	}

	found := make(map[ItemKey]Item, len(out.Responses[r.table]))
	for _, raw := range out.Responses[r.table] {
		item, err := itemFromDynamo(raw)
		if err != nil {
			return nil, nil, err
		}
		found[ItemKey{PK: item.PK(), SK: item.SK()}] = item
	}

	var unprocessed []ItemKey
	for _, raw := range out.UnprocessedKeys[r.table].Keys {
		pkAV, ok1 := raw["pk"].(*types.AttributeValueMemberS)
		skAV, ok2 := raw["sk"].(*types.AttributeValueMemberS)
		if !ok1 || !ok2 {
			continue
		}
		unprocessed = append(unprocessed, ItemKey{PK: pkAV.Value, SK: skAV.Value})
	}
	return found, unprocessed, nil
}

func (r *DynamoRepository) writeBatch(ctx context.Context, items []Item) ([]Item, error) {
	reqs := make([]types.WriteRequest, 0, len(items))
	byKey := make(map[string]Item, len(items))
	for _, it := range items {
		av, err := itemToDynamo(it)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: av},
		})
		byKey[it.key()] = it
	}

	out, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{r.table: reqs},
	})
	if err != nil {
		return nil, err
	}

	unprocessedReqs := out.UnprocessedItems[r.table]
	if len(unprocessedReqs) == 0 {
		return nil, nil
	}
	unprocessed := make([]Item, 0, len(unprocessedReqs))
	for _, req := range unprocessedReqs {
		if req.PutRequest == nil {
			continue
		}
		item, err := itemFromDynamo(req.PutRequest.Item)
		if err != nil {
			return nil, err
		}
		unprocessed = append(unprocessed, item)
	}
	return unprocessed, nil
}
