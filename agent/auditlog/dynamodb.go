package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const defaultDynamoTTL = 30 * 24 * time.Hour

// dynamodbAPI is the subset of *dynamodb.Client used by DynamoSink.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoSink stores each entry under PK=LOG#YYYYMMDD, SK=<timestamp>#<session>.
type DynamoSink struct {
	api   dynamodbAPI
	table string
	ttl   time.Duration
}

func NewDynamoSink(api dynamodbAPI, table string, ttl time.Duration) (*DynamoSink, error) {
	if api == nil {
		return nil, errors.New("auditlog: dynamodb api must not be nil")
	}
	if strings.TrimSpace(table) == "" {
		return nil, errors.New("auditlog: dynamodb table name must not be empty")
	}
	if ttl <= 0 {
		ttl = defaultDynamoTTL
	}
	return &DynamoSink{api: api, table: table, ttl: ttl}, nil
}

func (s *DynamoSink) Name() string { return "dynamodb" }

func (s *DynamoSink) Write(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("auditlog: encode entry: %w", err)
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      s.item(e, raw),
	})
	if err != nil {
		return fmt.Errorf("auditlog: put item: %w", err)
	}
	return nil
}

func (s *DynamoSink) item(e Entry, raw []byte) map[string]types.AttributeValue {
	ts := e.Timestamp.UTC()
	return map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: "LOG#" + Partition(e.Timestamp)},
		"SK":         &types.AttributeValueMemberS{Value: ts.Format(time.RFC3339Nano) + "#" + e.SessionID},
		"user_id":    &types.AttributeValueMemberS{Value: e.UserID},
		"session_id": &types.AttributeValueMemberS{Value: e.SessionID},
		"success":    &types.AttributeValueMemberBOOL{Value: e.Success},
		"entry":      &types.AttributeValueMemberS{Value: string(raw)},
		"ttl":        &types.AttributeValueMemberN{Value: strconv.FormatInt(ts.Add(s.ttl).Unix(), 10)},
	}
}
