package repository

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hoaworks/fundledger/internal/domain/balance"
	commonErrors "github.com/hoaworks/fundledger/internal/domain/errors"
	"github.com/hoaworks/fundledger/internal/platform/dynamodb/client"
)

// DynamoDBBalanceRepository implements the balance.SnapshotRepository
// interface. Snapshots are one item per fund, replaced wholesale; losing one
// costs a rebuild from the journal log, never data.
type DynamoDBBalanceRepository struct {
	client client.Client
	table  string
}

// NewDynamoDBBalanceRepository creates a new DynamoDBBalanceRepository
func NewDynamoDBBalanceRepository(client client.Client, table string) *DynamoDBBalanceRepository {
	return &DynamoDBBalanceRepository{
		client: client,
		table:  table,
	}
}

// GetSnapshot returns the stored snapshot, or an empty one when none exists
func (r *DynamoDBBalanceRepository) GetSnapshot(ctx context.Context, fundID string) (*balance.FundSnapshot, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fundPK(fundID)},
			"SK": &types.AttributeValueMemberS{Value: "BALANCE"},
		},
	})
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to get balance snapshot", err)
	}
	if len(result.Item) == 0 {
		return &balance.FundSnapshot{FundID: fundID, Nets: map[string]int64{}}, nil
	}

	var snap balance.FundSnapshot
	if err := attributevalue.UnmarshalMap(result.Item, &snap); err != nil {
		return nil, commonErrors.NewInternalError("failed to unmarshal balance snapshot", err)
	}
	if snap.Nets == nil {
		snap.Nets = map[string]int64{}
	}
	return &snap, nil
}

// PutSnapshot stores a snapshot wholesale
func (r *DynamoDBBalanceRepository) PutSnapshot(ctx context.Context, snap *balance.FundSnapshot) error {
	item, err := attributevalue.MarshalMap(snap)
	if err != nil {
		return commonErrors.NewInternalError("failed to marshal balance snapshot", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: fundPK(snap.FundID)}
	item["SK"] = &types.AttributeValueMemberS{Value: "BALANCE"}
	item["Type"] = &types.AttributeValueMemberS{Value: "balance_snapshot"}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	}); err != nil {
		return commonErrors.NewInternalError("failed to put balance snapshot", err)
	}
	return nil
}
