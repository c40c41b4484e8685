package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	commonErrors "github.com/hoaworks/fundledger/internal/domain/errors"
	"github.com/hoaworks/fundledger/internal/domain/registry"
	"github.com/hoaworks/fundledger/internal/platform/dynamodb/client"
)

// DynamoDBRegistryRepository implements the registry.Repository interface.
// Accounts and funds share the tenant partition; account number uniqueness is
// enforced through a marker item written in the same transaction.
type DynamoDBRegistryRepository struct {
	client client.Client
	table  string
}

// NewDynamoDBRegistryRepository creates a new DynamoDBRegistryRepository
func NewDynamoDBRegistryRepository(client client.Client, table string) *DynamoDBRegistryRepository {
	return &DynamoDBRegistryRepository{
		client: client,
		table:  table,
	}
}

func tenantPK(tenantID string) string {
	return fmt.Sprintf("TENANT#%s", tenantID)
}

func accountSK(accountID string) string {
	return fmt.Sprintf("ACCOUNT#%s", accountID)
}

func accountNumberSK(number string) string {
	return fmt.Sprintf("ACCTNUM#%s", number)
}

func fundSK(fundID string) string {
	return fmt.Sprintf("FUNDMETA#%s", fundID)
}

// CreateAccount creates the account and its number-uniqueness marker in one
// transaction; a taken number aborts both writes
func (r *DynamoDBRegistryRepository) CreateAccount(ctx context.Context, account *registry.Account) (*registry.Account, error) {
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	item, err := attributevalue.MarshalMap(account)
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to marshal account", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: tenantPK(account.TenantID)}
	item["SK"] = &types.AttributeValueMemberS{Value: accountSK(account.AccountID)}
	item["Type"] = &types.AttributeValueMemberS{Value: "account"}

	marker := map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: tenantPK(account.TenantID)},
		"SK":        &types.AttributeValueMemberS{Value: accountNumberSK(account.Number)},
		"accountId": &types.AttributeValueMemberS{Value: account.AccountID},
		"Type":      &types.AttributeValueMemberS{Value: "account_number"},
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(r.table),
					Item:                item,
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(r.table),
					Item:                marker,
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
		},
	})
	if err != nil {
		if transactConditionFailed(err) >= 0 {
			return nil, commonErrors.NewConflictError("account number already in use")
		}
		return nil, commonErrors.NewInternalError("failed to create account", err)
	}
	return account, nil
}

// GetAccount retrieves an account by ID
func (r *DynamoDBRegistryRepository) GetAccount(ctx context.Context, tenantID string, accountID string) (*registry.Account, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
			"SK": &types.AttributeValueMemberS{Value: accountSK(accountID)},
		},
	})
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to get account", err)
	}
	if len(result.Item) == 0 {
		return nil, commonErrors.NewNotFoundError("account not found")
	}

	var account registry.Account
	if err := attributevalue.UnmarshalMap(result.Item, &account); err != nil {
		return nil, commonErrors.NewInternalError("failed to unmarshal account", err)
	}
	return &account, nil
}

// GetAccounts lists accounts in the tenant, optionally filtered
func (r *DynamoDBRegistryRepository) GetAccounts(ctx context.Context, tenantID string, filter *registry.GetAccountsRequest) ([]*registry.Account, error) {
	keyCondition := expression.Key("PK").Equal(expression.Value(tenantPK(tenantID))).
		And(expression.Key("SK").BeginsWith("ACCOUNT#"))

	filterExpr := expression.Name("Type").Equal(expression.Value("account"))
	if filter != nil {
		if filter.FundID != "" {
			filterExpr = filterExpr.And(expression.Name("fundId").Equal(expression.Value(filter.FundID)))
		}
		if filter.AccountType != "" {
			filterExpr = filterExpr.And(expression.Name("accountType").Equal(expression.Value(filter.AccountType)))
		}
		if filter.ActiveOnly {
			filterExpr = filterExpr.And(expression.Name("active").Equal(expression.Value(true)))
		}
	}

	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition).WithFilter(filterExpr).Build()
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to build expression", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.table),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var accounts []*registry.Account
	for {
		result, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, commonErrors.NewInternalError("failed to query accounts", err)
		}
		var page []*registry.Account
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, commonErrors.NewInternalError("failed to unmarshal accounts", err)
		}
		accounts = append(accounts, page...)

		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return accounts, nil
}

// SetAccountActive flips the active flag, the only mutable account field
func (r *DynamoDBRegistryRepository) SetAccountActive(ctx context.Context, tenantID string, accountID string, active bool) (*registry.Account, error) {
	update := expression.Set(expression.Name("active"), expression.Value(active)).
		Set(expression.Name("updatedAt"), expression.Value(time.Now().UTC().Format(time.RFC3339Nano)))
	condition := expression.AttributeExists(expression.Name("PK"))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(condition).Build()
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to build expression", err)
	}

	result, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
			"SK": &types.AttributeValueMemberS{Value: accountSK(accountID)},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var condCheckErr *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckErr) {
			return nil, commonErrors.NewNotFoundError("account not found")
		}
		return nil, commonErrors.NewInternalError("failed to update account", err)
	}

	var account registry.Account
	if err := attributevalue.UnmarshalMap(result.Attributes, &account); err != nil {
		return nil, commonErrors.NewInternalError("failed to unmarshal account", err)
	}
	return &account, nil
}

// CreateFund creates a new fund
func (r *DynamoDBRegistryRepository) CreateFund(ctx context.Context, fund *registry.Fund) (*registry.Fund, error) {
	now := time.Now().UTC()
	fund.CreatedAt = now
	fund.UpdatedAt = now

	item, err := attributevalue.MarshalMap(fund)
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to marshal fund", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: tenantPK(fund.TenantID)}
	item["SK"] = &types.AttributeValueMemberS{Value: fundSK(fund.FundID)}
	item["Type"] = &types.AttributeValueMemberS{Value: "fund"}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var condCheckErr *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckErr) {
			return nil, commonErrors.NewConflictError("fund already exists")
		}
		return nil, commonErrors.NewInternalError("failed to create fund", err)
	}
	return fund, nil
}

// GetFund retrieves a fund by ID
func (r *DynamoDBRegistryRepository) GetFund(ctx context.Context, tenantID string, fundID string) (*registry.Fund, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
			"SK": &types.AttributeValueMemberS{Value: fundSK(fundID)},
		},
	})
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to get fund", err)
	}
	if len(result.Item) == 0 {
		return nil, commonErrors.NewNotFoundError("fund not found")
	}

	var fund registry.Fund
	if err := attributevalue.UnmarshalMap(result.Item, &fund); err != nil {
		return nil, commonErrors.NewInternalError("failed to unmarshal fund", err)
	}
	return &fund, nil
}

// AccountNumberExists checks the number-uniqueness marker
func (r *DynamoDBRegistryRepository) AccountNumberExists(ctx context.Context, tenantID string, number string) (bool, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
			"SK": &types.AttributeValueMemberS{Value: accountNumberSK(number)},
		},
	})
	if err != nil {
		return false, commonErrors.NewInternalError("failed to check account number", err)
	}
	return len(result.Item) > 0, nil
}
