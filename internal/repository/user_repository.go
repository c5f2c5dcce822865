package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
	"github.com/therapycenter/phoneauth/internal/clock"
	"github.com/therapycenter/phoneauth/internal/models"
)

// DynamoAPI is the subset of the DynamoDB client the repositories use.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type DynamoUserRepository struct {
	client    DynamoAPI
	tableName string
	clock     clock.Clocker
	logger    *logrus.Logger
}

func NewDynamoUserRepository(client DynamoAPI, tableName string, clk clock.Clocker, logger *logrus.Logger) *DynamoUserRepository {
	return &DynamoUserRepository{
		client:    client,
		tableName: tableName,
		clock:     clk,
		logger:    logger,
	}
}

func (r *DynamoUserRepository) GetByPhoneNumber(ctx context.Context, phoneNumber string) (*models.User, error) {
	user := &models.User{PhoneNumber: phoneNumber}

	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            itemKey(user.GetPK(), user.GetSK()),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to get user from DynamoDB")
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if result.Item == nil {
		return nil, ErrNotFound
	}

	var dbUser models.User
	if err := attributevalue.UnmarshalMap(result.Item, &dbUser); err != nil {
		r.logger.WithError(err).Error("Failed to unmarshal user from DynamoDB")
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}

	return &dbUser, nil
}

// create inserts user and reports false when the phone number is taken.
func (r *DynamoUserRepository) create(ctx context.Context, user *models.User) (bool, error) {
	item, err := attributevalue.MarshalMap(user)
	if err != nil {
		return false, fmt.Errorf("failed to marshal user: %w", err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: user.GetPK()}
	item["SK"] = &types.AttributeValueMemberS{Value: user.GetSK()}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		r.logger.WithError(err).Error("Failed to create user in DynamoDB")
		return false, fmt.Errorf("failed to create user: %w", err)
	}

	return true, nil
}

func (r *DynamoUserRepository) GetOrCreate(ctx context.Context, phoneNumber string) (*models.User, error) {
	user, err := r.GetByPhoneNumber(ctx, phoneNumber)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	newUser := &models.User{
		PhoneNumber: phoneNumber,
		Role:        models.RoleClient,
		CreatedAt:   r.clock.Now().UTC(),
	}

	created, err := r.create(ctx, newUser)
	if err != nil {
		return nil, err
	}
	if created {
		r.logger.WithField("phone", phoneNumber).Info("User created")
		return newUser, nil
	}

	// Lost the race to a concurrent request for the same number.
	return r.GetByPhoneNumber(ctx, phoneNumber)
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}
