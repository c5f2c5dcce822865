package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
	"github.com/therapycenter/phoneauth/internal/clock"
	"github.com/therapycenter/phoneauth/internal/models"
)

// DynamoOTPRepository stores the pending code next to its user item, under
// the same partition key with sort key "OTP".
type DynamoOTPRepository struct {
	client    DynamoAPI
	tableName string
	retention time.Duration
	clock     clock.Clocker
	logger    *logrus.Logger
}

// NewDynamoOTPRepository builds the repository. The table TTL attribute is set
// to expiry + retention so expired codes remain readable for a while.
func NewDynamoOTPRepository(client DynamoAPI, tableName string, retention time.Duration, clk clock.Clocker, logger *logrus.Logger) *DynamoOTPRepository {
	return &DynamoOTPRepository{
		client:    client,
		tableName: tableName,
		retention: retention,
		clock:     clk,
		logger:    logger,
	}
}

func (r *DynamoOTPRepository) Upsert(ctx context.Context, phoneNumber, value string, validity time.Duration) (*models.OneTimePassword, error) {
	now := r.clock.Now().UTC()
	record := &models.OneTimePassword{PhoneNumber: phoneNumber}
	expireTime := now.Add(validity)

	nowAttr, err := attributevalue.Marshal(now)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal timestamp: %w", err)
	}
	expireAttr, err := attributevalue.Marshal(expireTime)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal expire time: %w", err)
	}

	result, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              itemKey(record.GetPK(), record.GetSK()),
		UpdateExpression: aws.String("SET #value = :value, expire_time = :expire_time, updated_at = :now, created_at = if_not_exists(created_at, :now), phone_number = :phone, #ttl = :ttl"),
		ExpressionAttributeNames: map[string]string{
			"#value": "value",
			"#ttl":   "TTL",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":value":       &types.AttributeValueMemberS{Value: value},
			":expire_time": expireAttr,
			":now":         nowAttr,
			":phone":       &types.AttributeValueMemberS{Value: phoneNumber},
			":ttl":         &types.AttributeValueMemberN{Value: strconv.FormatInt(expireTime.Add(r.retention).Unix(), 10)},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to store OTP in DynamoDB")
		return nil, fmt.Errorf("failed to store OTP: %w", err)
	}

	if err := attributevalue.UnmarshalMap(result.Attributes, record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OTP: %w", err)
	}

	return record, nil
}

func (r *DynamoOTPRepository) Get(ctx context.Context, phoneNumber string) (*models.OneTimePassword, error) {
	record := &models.OneTimePassword{PhoneNumber: phoneNumber}

	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            itemKey(record.GetPK(), record.GetSK()),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get OTP: %w", err)
	}

	if result.Item == nil {
		return nil, ErrNotFound
	}

	if err := attributevalue.UnmarshalMap(result.Item, record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OTP: %w", err)
	}

	return record, nil
}

func (r *DynamoOTPRepository) Delete(ctx context.Context, phoneNumber, value string) error {
	record := &models.OneTimePassword{PhoneNumber: phoneNumber}

	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      itemKey(record.GetPK(), record.GetSK()),
		ConditionExpression:      aws.String("#value = :value"),
		ExpressionAttributeNames: map[string]string{"#value": "value"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":value": &types.AttributeValueMemberS{Value: value},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete OTP: %w", err)
	}

	return nil
}
