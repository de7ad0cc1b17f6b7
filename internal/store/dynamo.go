package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/lafabrique/excerpt-gateway/internal/domain"
)

// DynamoStore implements Store over a single DynamoDB table keyed by the
// "email" attribute. Rate counters live in the same table under synthetic
// ip# keys.
type DynamoStore struct {
	client *dynamodb.Client
	table  string
}

// NewDynamoClient loads the default AWS config (honoring an optional shared
// profile) and returns a DynamoDB client shared by all tables.
func NewDynamoClient(ctx context.Context, region, profile string) (*dynamodb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

// NewDynamoStore wraps one table with the Store contract.
func NewDynamoStore(client *dynamodb.Client, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

func (s *DynamoStore) key(email string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"email": &types.AttributeValueMemberS{Value: email},
	}
}

// GetRecipient fetches a record with a consistent read. Absent items
// return (nil, nil).
func (s *DynamoStore) GetRecipient(ctx context.Context, email string) (*domain.Recipient, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(email),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting item from %s: %w", s.table, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var r domain.Recipient
	if err := attributevalue.UnmarshalMap(out.Item, &r); err != nil {
		return nil, fmt.Errorf("unmarshaling recipient: %w", err)
	}
	return &r, nil
}

// PutRecipient replaces the full item.
func (s *DynamoStore) PutRecipient(ctx context.Context, r *domain.Recipient) error {
	av, err := attributevalue.MarshalMap(r)
	if err != nil {
		return fmt.Errorf("marshaling recipient: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting item to %s: %w", s.table, err)
	}
	return nil
}

// UpdateRecipient builds a single SET expression: plain assignments for the
// delta fields, if_not_exists() for the set-if-absent ones. UpdateItem
// upserts, so a missing record is created.
func (s *DynamoStore) UpdateRecipient(ctx context.Context, email string, upd Update) error {
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	var sets []string

	setStr := func(attr, val string) {
		ph := ":" + attr
		names["#"+attr] = attr
		values[ph] = &types.AttributeValueMemberS{Value: val}
		sets = append(sets, fmt.Sprintf("#%s = %s", attr, ph))
	}
	setNum := func(attr string, val int64) {
		ph := ":" + attr
		names["#"+attr] = attr
		values[ph] = &types.AttributeValueMemberN{Value: strconv.FormatInt(val, 10)}
		sets = append(sets, fmt.Sprintf("#%s = %s", attr, ph))
	}
	setIfAbsentStr := func(attr, val string) {
		ph := ":" + attr
		names["#"+attr] = attr
		values[ph] = &types.AttributeValueMemberS{Value: val}
		sets = append(sets, fmt.Sprintf("#%s = if_not_exists(#%s, %s)", attr, attr, ph))
	}
	setIfAbsentNum := func(attr string, val int64) {
		ph := ":" + attr
		names["#"+attr] = attr
		values[ph] = &types.AttributeValueMemberN{Value: strconv.FormatInt(val, 10)}
		sets = append(sets, fmt.Sprintf("#%s = if_not_exists(#%s, %s)", attr, attr, ph))
	}

	if upd.Status != "" {
		setStr("status", string(upd.Status))
	}
	if upd.Lang != "" {
		setStr("lang", upd.Lang)
	}
	if upd.VerifiedAtMs != 0 {
		setNum("verifiedAt", upd.VerifiedAtMs)
	}
	if upd.UpdatedAtMs != 0 {
		setNum("updatedAt", upd.UpdatedAtMs)
	}
	if upd.UnsubscribedAtMs != 0 {
		setNum("unsubscribedAt", upd.UnsubscribedAtMs)
	}
	if upd.SourceIfAbsent != "" {
		setIfAbsentStr("source", string(upd.SourceIfAbsent))
	}
	if upd.CreatedAtIfAbsentMs != 0 {
		setIfAbsentNum("createdAt", upd.CreatedAtIfAbsentMs)
	}
	if len(sets) == 0 {
		return nil
	}

	expr := "SET " + joinSets(sets)
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       s.key(email),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("updating item in %s: %w", s.table, err)
	}
	return nil
}

func joinSets(sets []string) string {
	out := sets[0]
	for _, s := range sets[1:] {
		out += ", " + s
	}
	return out
}

// GetCounter reads a rate counter with a consistent read.
func (s *DynamoStore) GetCounter(ctx context.Context, key string) (*domain.RateCounter, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting counter from %s: %w", s.table, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var c domain.RateCounter
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshaling counter: %w", err)
	}
	return &c, nil
}

// PutCounter writes the counter record.
func (s *DynamoStore) PutCounter(ctx context.Context, c *domain.RateCounter) error {
	av, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshaling counter: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting counter to %s: %w", s.table, err)
	}
	return nil
}
