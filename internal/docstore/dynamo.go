package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

// Item attributes holding the document address.
const (
	AttrCollection = "collection"
	AttrID         = "id"
)

// maxTransactItems is the DynamoDB limit for TransactWriteItems.
const maxTransactItems = 100

// DynamoAPI defines the DynamoDB client methods we use
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoConfig holds configuration for the DynamoDB document store
type DynamoConfig struct {
	Table    string `mapstructure:"table" yaml:"table"`
	Region   string `mapstructure:"region" yaml:"region"`
	Profile  string `mapstructure:"profile" yaml:"profile"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`

	// Indexes maps an order-by field to the GSI serving it. Every GSI is
	// partitioned on "collection" and sorted on the field.
	Indexes map[string]string `mapstructure:"indexes" yaml:"indexes"`
}

// Dynamo is a Store over a single DynamoDB table keyed by
// (collection, id).
type Dynamo struct {
	client  DynamoAPI
	table   string
	indexes map[string]string
	newID   func() string
}

// LoadAWSConfig loads the shared AWS configuration for the given region and
// profile with a standard retryer.
func LoadAWSConfig(ctx context.Context, region, profile string, maxRetries int) (aws.Config, error) {
	if maxRetries == 0 {
		maxRetries = 3
	}

	var opts []func(*awsconfig.LoadOptions) error
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	opts = append(opts, awsconfig.WithRetryer(func() aws.Retryer {
		return retry.AddWithMaxAttempts(retry.NewStandard(), maxRetries)
	}))

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// NewDynamo creates a Dynamo store from the shared AWS configuration.
func NewDynamo(ctx context.Context, cfg DynamoConfig) (*Dynamo, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg.Region, cfg.Profile, cfg.MaxRetries)
	if err != nil {
		return nil, err
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewDynamoWithClient(client, cfg)
}

func NewDynamoWithClient(client DynamoAPI, cfg DynamoConfig) (*Dynamo, error) {
	if cfg.Table == "" {
		return nil, errors.New("dynamodb table name is required")
	}
	indexes := make(map[string]string, len(cfg.Indexes))
	for field, name := range cfg.Indexes {
		indexes[field] = name
	}
	return &Dynamo{
		client:  client,
		table:   cfg.Table,
		indexes: indexes,
		newID:   uuid.NewString,
	}, nil
}

func (d *Dynamo) key(ref Ref) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrCollection: &types.AttributeValueMemberS{Value: ref.Collection},
		AttrID:         &types.AttributeValueMemberS{Value: ref.ID},
	}
}

func (d *Dynamo) Query(ctx context.Context, q Query) (*Page, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}

	keyCond := expression.Key(AttrCollection).Equal(expression.Value(q.Collection))
	builder := expression.NewBuilder().WithKeyCondition(keyCond)
	if cond, ok := filterCondition(q.Filters); ok {
		builder = builder.WithFilter(cond)
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(d.table),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(!q.Descending),
	}
	if q.OrderBy != "" {
		index, ok := d.indexes[q.OrderBy]
		if !ok {
			return nil, fmt.Errorf("no index configured for order field %q", q.OrderBy)
		}
		input.IndexName = aws.String(index)
	}
	if q.StartAfter != nil {
		start, err := attributevalue.MarshalMap(q.StartAfter.key)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal cursor: %w", err)
		}
		input.ExclusiveStartKey = start
	}

	page := &Page{}
	for {
		if q.Limit > 0 {
			input.Limit = aws.Int32(int32(q.Limit - len(page.Docs)))
		}
		out, err := d.client.Query(ctx, input)
		if err != nil {
			return nil, classify("query", err)
		}
		for _, item := range out.Items {
			doc, err := decodeItem(item)
			if err != nil {
				return nil, err
			}
			page.Docs = append(page.Docs, doc)
		}
		if len(out.LastEvaluatedKey) == 0 || (q.Limit > 0 && len(page.Docs) >= q.Limit) {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	if n := len(page.Docs); n > 0 {
		last := page.Docs[n-1]
		key := map[string]any{AttrCollection: last.Ref.Collection, AttrID: last.Ref.ID}
		if q.OrderBy != "" {
			key[q.OrderBy] = last.Data[q.OrderBy]
		}
		page.Last = &Cursor{ref: last.Ref, key: key}
	}
	return page, nil
}

func filterCondition(filters []Filter) (expression.ConditionBuilder, bool) {
	var cond expression.ConditionBuilder
	for i, f := range filters {
		c := expression.Name(f.Field).Equal(expression.Value(f.Value))
		if i == 0 {
			cond = c
		} else {
			cond = cond.And(c)
		}
	}
	return cond, len(filters) > 0
}

func decodeItem(item map[string]types.AttributeValue) (Document, error) {
	var data map[string]any
	if err := attributevalue.UnmarshalMap(item, &data); err != nil {
		return Document{}, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	collection, _ := data[AttrCollection].(string)
	id, _ := data[AttrID].(string)
	delete(data, AttrCollection)
	delete(data, AttrID)
	return Document{Ref: Ref{Collection: collection, ID: id}, Data: data}, nil
}

func (d *Dynamo) Get(ctx context.Context, ref Ref) (*Document, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		Key:            d.key(ref),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, classify("get", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	doc, err := decodeItem(out.Item)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *Dynamo) updateExpression(fields map[string]any) (expression.Expression, error) {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)

	var update expression.UpdateBuilder
	for _, k := range names {
		update = update.Set(expression.Name(k), expression.Value(normalizeValue(fields[k])))
	}
	return expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.Name(AttrID).AttributeExists()).
		Build()
}

func (d *Dynamo) Update(ctx context.Context, ref Ref, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	expr, err := d.updateExpression(fields)
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.table),
		Key:                       d.key(ref),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("update %s: %w", ref.Path(), ErrNotFound)
		}
		return classify("update", err)
	}
	return nil
}

func (d *Dynamo) Commit(ctx context.Context, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	if len(ops) > maxTransactItems {
		return fmt.Errorf("batch of %d operations exceeds the limit of %d", len(ops), maxTransactItems)
	}

	items := make([]types.TransactWriteItem, 0, len(ops))
	for i, op := range ops {
		item, err := d.transactItem(op)
		if err != nil {
			return fmt.Errorf("op %d: %w", i, err)
		}
		items = append(items, item)
	}

	_, err := d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			for _, reason := range canceled.CancellationReasons {
				if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
					return fmt.Errorf("commit: %w", ErrNotFound)
				}
			}
		}
		return classify("commit", err)
	}
	return nil
}

func (d *Dynamo) transactItem(op Op) (types.TransactWriteItem, error) {
	if op.Ref.Collection == "" {
		return types.TransactWriteItem{}, errors.New("collection is required")
	}
	switch op.Type {
	case OpSet:
		ref := op.Ref
		if ref.ID == "" {
			ref.ID = d.newID()
		}
		item, err := attributevalue.MarshalMap(normalizeValue(op.Data))
		if err != nil {
			return types.TransactWriteItem{}, fmt.Errorf("failed to marshal document: %w", err)
		}
		if item == nil {
			item = map[string]types.AttributeValue{}
		}
		for k, v := range d.key(ref) {
			item[k] = v
		}
		return types.TransactWriteItem{Put: &types.Put{
			TableName: aws.String(d.table),
			Item:      item,
		}}, nil

	case OpUpdate:
		if op.Ref.ID == "" {
			return types.TransactWriteItem{}, errors.New("update requires a document id")
		}
		expr, err := d.updateExpression(op.Data)
		if err != nil {
			return types.TransactWriteItem{}, fmt.Errorf("failed to build expression: %w", err)
		}
		return types.TransactWriteItem{Update: &types.Update{
			TableName:                 aws.String(d.table),
			Key:                       d.key(op.Ref),
			UpdateExpression:          expr.Update(),
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		}}, nil

	case OpDelete:
		if op.Ref.ID == "" {
			return types.TransactWriteItem{}, errors.New("delete requires a document id")
		}
		return types.TransactWriteItem{Delete: &types.Delete{
			TableName: aws.String(d.table),
			Key:       d.key(op.Ref),
		}}, nil
	}
	return types.TransactWriteItem{}, fmt.Errorf("unknown operation type %d", op.Type)
}

// normalizeValue stores times as RFC 3339 strings so they sort in indexes.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	}
	return v
}

func classify(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("dynamodb %s failed (%s): %w", op, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("dynamodb %s failed: %w", op, err)
}
