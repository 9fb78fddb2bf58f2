package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"matcha-back/models"
)

// Dynamo stores chats and messages in two DynamoDB tables:
// chats keyed by (UserID, ChatID) and messages keyed by (ChatID, MessageID).
// Message ordering is a display concern; the range key is the message ID, not
// the timestamp. Subscriptions are poll-driven because DynamoDB has no
// change stream on this setup.
type Dynamo struct {
	db           *dynamodb.Client
	chatsTable   string
	msgsTable    string
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewDynamo builds the client. A non-empty endpoint points at a local
// DynamoDB (dev setup) with dummy credentials, same as the production stack
// does for docker-compose runs.
func NewDynamo(ctx context.Context, endpoint, region, tablePrefix string, pollInterval time.Duration, logger *zap.Logger) (*Dynamo, error) {
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if endpoint != "" {
		customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: endpoint}, nil
		})
		opts = append(opts,
			awsconfig.WithEndpointResolverWithOptions(customResolver),
			awsconfig.WithCredentialsProvider(credentials.StaticCredentialsProvider{
				Value: aws.Credentials{
					AccessKeyID: "dummy", SecretAccessKey: "dummy", SessionToken: "dummy",
				},
			}),
		)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	d := &Dynamo{
		db:           dynamodb.NewFromConfig(cfg),
		chatsTable:   tablePrefix + "Chats",
		msgsTable:    tablePrefix + "Messages",
		pollInterval: pollInterval,
		logger:       logger,
	}
	d.ensureTables(ctx)
	return d, nil
}

func (d *Dynamo) ensureTables(ctx context.Context) {
	tables := []struct {
		name       string
		hash, sort string
	}{
		{d.chatsTable, "UserID", "ChatID"},
		{d.msgsTable, "ChatID", "MessageID"},
	}
	for _, t := range tables {
		_, err := d.db.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String(t.name),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(t.hash), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String(t.sort), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(t.hash), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String(t.sort), KeyType: types.KeyTypeRange},
			},
			BillingMode: types.BillingModePayPerRequest,
		})
		if err != nil {
			d.logger.Debug("table might already exist", zap.String("table", t.name), zap.Error(err))
		}
	}
}

func (d *Dynamo) SubscribeChats(ownerID string, fn func([]ChatRecord)) (func(), error) {
	sub := newSubscription(fn)
	pollChats(sub, d.pollInterval, func() ([]ChatRecord, error) {
		return d.queryChats(context.Background(), ownerID)
	}, func(err error) {
		d.logger.Warn("chat poll failed", zap.String("user_id", ownerID), zap.Error(err))
	})
	return sub.cancel, nil
}

func (d *Dynamo) queryChats(ctx context.Context, ownerID string) ([]ChatRecord, error) {
	result, err := d.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.chatsTable),
		KeyConditionExpression: aws.String("UserID = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: ownerID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}

	recs := make([]ChatRecord, 0, len(result.Items))
	for _, item := range result.Items {
		recs = append(recs, ChatRecord{
			ID:        strAttr(item, "ChatID"),
			UserID:    strAttr(item, "UserID"),
			Title:     strAttr(item, "Title"),
			CreatedAt: stampAttr(item, "CreatedAt"),
			UpdatedAt: stampAttr(item, "UpdatedAt"),
			Pinned:    boolAttr(item, "IsPinned"),
			GroupName: strAttr(item, "GroupName"),
		})
	}
	return recs, nil
}

func (d *Dynamo) CreateChat(ctx context.Context, rec ChatRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	// サーバ側タイムスタンプはここ（ストアのクロック）で確定する
	now := time.Now().UTC().Format(time.RFC3339Nano)
	item := map[string]types.AttributeValue{
		"UserID":    &types.AttributeValueMemberS{Value: rec.UserID},
		"ChatID":    &types.AttributeValueMemberS{Value: rec.ID},
		"Title":     &types.AttributeValueMemberS{Value: rec.Title},
		"CreatedAt": &types.AttributeValueMemberS{Value: now},
		"UpdatedAt": &types.AttributeValueMemberS{Value: now},
		"IsPinned":  &types.AttributeValueMemberBOOL{Value: rec.Pinned},
	}
	if rec.GroupName != "" {
		item["GroupName"] = &types.AttributeValueMemberS{Value: rec.GroupName}
	}

	_, err := d.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.chatsTable),
		Item:      item,
	})
	if err != nil {
		return "", fmt.Errorf("failed to put chat: %w", err)
	}
	return rec.ID, nil
}

func (d *Dynamo) UpdateChat(ctx context.Context, ownerID, chatID string, upd ChatUpdate) error {
	updateExpression := "SET"
	expressionAttributeValues := map[string]types.AttributeValue{}
	expressionAttributeNames := map[string]string{}

	if upd.Title != nil {
		updateExpression += " #title = :title,"
		expressionAttributeValues[":title"] = &types.AttributeValueMemberS{Value: *upd.Title}
		expressionAttributeNames["#title"] = "Title"
	}
	if upd.Pinned != nil {
		updateExpression += " #pinned = :pinned,"
		expressionAttributeValues[":pinned"] = &types.AttributeValueMemberBOOL{Value: *upd.Pinned}
		expressionAttributeNames["#pinned"] = "IsPinned"
	}
	if upd.GroupName != nil {
		updateExpression += " #group = :group,"
		expressionAttributeValues[":group"] = &types.AttributeValueMemberS{Value: *upd.GroupName}
		expressionAttributeNames["#group"] = "GroupName"
	}
	if upd.Touch {
		updateExpression += " #updated = :updated,"
		expressionAttributeValues[":updated"] = &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)}
		expressionAttributeNames["#updated"] = "UpdatedAt"
	}

	if len(expressionAttributeValues) == 0 {
		return nil
	}
	updateExpression = updateExpression[:len(updateExpression)-1]

	// 存在しないチャットをupsertしないよう条件を付ける
	_, err := d.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.chatsTable),
		Key: map[string]types.AttributeValue{
			"UserID": &types.AttributeValueMemberS{Value: ownerID},
			"ChatID": &types.AttributeValueMemberS{Value: chatID},
		},
		UpdateExpression:          aws.String(updateExpression),
		ConditionExpression:       aws.String("attribute_exists(ChatID)"),
		ExpressionAttributeValues: expressionAttributeValues,
		ExpressionAttributeNames:  expressionAttributeNames,
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update chat: %w", err)
	}
	return nil
}

func (d *Dynamo) DeleteChat(ctx context.Context, ownerID, chatID string) error {
	_, err := d.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.chatsTable),
		Key: map[string]types.AttributeValue{
			"UserID": &types.AttributeValueMemberS{Value: ownerID},
			"ChatID": &types.AttributeValueMemberS{Value: chatID},
		},
		ConditionExpression: aws.String("attribute_exists(ChatID)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return nil
}

func (d *Dynamo) ReadMessages(ctx context.Context, _ string, chatID string) ([]MessageRecord, error) {
	result, err := d.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.msgsTable),
		KeyConditionExpression: aws.String("ChatID = :cid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cid": &types.AttributeValueMemberS{Value: chatID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	recs := make([]MessageRecord, 0, len(result.Items))
	for _, item := range result.Items {
		recs = append(recs, MessageRecord{
			ID:        strAttr(item, "MessageID"),
			ChatID:    strAttr(item, "ChatID"),
			UserID:    strAttr(item, "UserID"),
			Role:      strAttr(item, "Role"),
			Text:      strAttr(item, "Text"),
			Image:     strAttr(item, "Image"),
			Timestamp: stampAttr(item, "Timestamp"),
		})
	}
	return recs, nil
}

func (d *Dynamo) AppendMessage(ctx context.Context, _ string, rec MessageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	item := map[string]types.AttributeValue{
		"ChatID":    &types.AttributeValueMemberS{Value: rec.ChatID},
		"MessageID": &types.AttributeValueMemberS{Value: rec.ID},
		"UserID":    &types.AttributeValueMemberS{Value: rec.UserID},
		"Role":      &types.AttributeValueMemberS{Value: rec.Role},
		"Text":      &types.AttributeValueMemberS{Value: rec.Text},
		"Timestamp": &types.AttributeValueMemberS{Value: stampValue(rec.Timestamp)},
	}
	if rec.Image != "" {
		item["Image"] = &types.AttributeValueMemberS{Value: rec.Image}
	}

	_, err := d.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.msgsTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put message: %w", err)
	}
	return nil
}

func (d *Dynamo) ScanChatIDs(ctx context.Context) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	var startKey map[string]types.AttributeValue
	for {
		result, err := d.db.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(d.chatsTable),
			ProjectionExpression: aws.String("ChatID"),
			ExclusiveStartKey:    startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan chats: %w", err)
		}
		for _, item := range result.Items {
			ids[strAttr(item, "ChatID")] = struct{}{}
		}
		if result.LastEvaluatedKey == nil {
			return ids, nil
		}
		startKey = result.LastEvaluatedKey
	}
}

func (d *Dynamo) ScanMessageRefs(ctx context.Context) ([]MessageRef, error) {
	var refs []MessageRef
	var startKey map[string]types.AttributeValue
	for {
		result, err := d.db.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(d.msgsTable),
			ProjectionExpression: aws.String("ChatID, MessageID"),
			ExclusiveStartKey:    startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan messages: %w", err)
		}
		for _, item := range result.Items {
			refs = append(refs, MessageRef{
				ChatID:    strAttr(item, "ChatID"),
				MessageID: strAttr(item, "MessageID"),
			})
		}
		if result.LastEvaluatedKey == nil {
			return refs, nil
		}
		startKey = result.LastEvaluatedKey
	}
}

func (d *Dynamo) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	_, err := d.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.msgsTable),
		Key: map[string]types.AttributeValue{
			"ChatID":    &types.AttributeValueMemberS{Value: chatID},
			"MessageID": &types.AttributeValueMemberS{Value: messageID},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func strAttr(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func boolAttr(item map[string]types.AttributeValue, key string) bool {
	if v, ok := item[key].(*types.AttributeValueMemberBOOL); ok {
		return v.Value
	}
	return false
}

// stampAttr reads a timestamp attribute back into the dual representation:
// RFC3339 strings are server-resolved, "N<millis>" values are client epochs,
// anything unparsable stays a zero Timestamp.
func stampAttr(item map[string]types.AttributeValue, key string) models.Timestamp {
	if v, ok := item[key].(*types.AttributeValueMemberN); ok {
		var ms int64
		fmt.Sscanf(v.Value, "%d", &ms)
		return models.AtMillis(ms)
	}
	raw := strAttr(item, key)
	if raw == "" {
		return models.Timestamp{}
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return models.ResolvedAt(t)
	}
	return models.Timestamp{}
}

func stampValue(ts models.Timestamp) string {
	if ts.Resolved != nil {
		return ts.Resolved.UTC().Format(time.RFC3339Nano)
	}
	if ts.Pending {
		return time.Now().UTC().Format(time.RFC3339Nano)
	}
	return time.UnixMilli(ts.Millis).UTC().Format(time.RFC3339Nano)
}
