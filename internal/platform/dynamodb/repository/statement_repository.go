package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	commonErrors "github.com/hoaworks/fundledger/internal/domain/errors"
	"github.com/hoaworks/fundledger/internal/domain/journal"
	"github.com/hoaworks/fundledger/internal/domain/reconcile"
	"github.com/hoaworks/fundledger/internal/platform/dynamodb/client"
)

// DynamoDBStatementRepository implements the reconcile.Repository interface.
// Transactions live under the statement partition keyed by their ULID, so a
// plain query returns them in ingestion order. The matched transition writes
// the transaction and the journal entry in one transaction: the entry side
// guards exclusivity, the transaction side guards the version.
type DynamoDBStatementRepository struct {
	client client.Client
	table  string
	logger *slog.Logger
}

// NewDynamoDBStatementRepository creates a new DynamoDBStatementRepository
func NewDynamoDBStatementRepository(client client.Client, table string, logger *slog.Logger) *DynamoDBStatementRepository {
	return &DynamoDBStatementRepository{
		client: client,
		table:  table,
		logger: logger,
	}
}

func statementPK(statementID string) string {
	return fmt.Sprintf("STMT#%s", statementID)
}

func txnSK(txnID string) string {
	return fmt.Sprintf("TXN#%s", txnID)
}

func txnGSI1PK(tenantID, txnID string) string {
	return fmt.Sprintf("TENANT#%s#TXN#%s", tenantID, txnID)
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// CreateStatement stores the statement header
func (r *DynamoDBStatementRepository) CreateStatement(ctx context.Context, stmt *reconcile.BankStatement) error {
	item, err := attributevalue.MarshalMap(stmt)
	if err != nil {
		return commonErrors.NewInternalError("failed to marshal statement", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: statementPK(stmt.StatementID)}
	item["SK"] = &types.AttributeValueMemberS{Value: "META"}
	item["Type"] = &types.AttributeValueMemberS{Value: "bank_statement"}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var condCheckErr *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckErr) {
			return commonErrors.NewConflictError("statement already exists")
		}
		return commonErrors.NewInternalError("failed to create statement", err)
	}
	return nil
}

// CreateTransactions stores one ingestion batch via BatchWriteItem,
// retrying unprocessed items until the batch fully lands
func (r *DynamoDBStatementRepository) CreateTransactions(ctx context.Context, txns []*reconcile.BankTransaction) error {
	requests := make([]types.WriteRequest, 0, len(txns))
	for _, txn := range txns {
		item, err := attributevalue.MarshalMap(txn)
		if err != nil {
			return commonErrors.NewInternalError("failed to marshal bank transaction", err)
		}
		item["PK"] = &types.AttributeValueMemberS{Value: statementPK(txn.StatementID)}
		item["SK"] = &types.AttributeValueMemberS{Value: txnSK(txn.TxnID)}
		item["GSI1PK"] = &types.AttributeValueMemberS{Value: txnGSI1PK(txn.TenantID, txn.TxnID)}
		item["GSI1SK"] = &types.AttributeValueMemberS{Value: "TXN"}
		item["Type"] = &types.AttributeValueMemberS{Value: "bank_transaction"}
		requests = append(requests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: item},
		})
	}

	pending := map[string][]types.WriteRequest{r.table: requests}
	for len(pending[r.table]) > 0 {
		result, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return commonErrors.NewInternalError("failed to write transaction batch", err)
		}
		if len(result.UnprocessedItems) == 0 {
			break
		}
		pending = result.UnprocessedItems
	}
	return nil
}

// GetStatement retrieves a statement header by ID
func (r *DynamoDBStatementRepository) GetStatement(ctx context.Context, tenantID string, statementID string) (*reconcile.BankStatement, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: statementPK(statementID)},
			"SK": &types.AttributeValueMemberS{Value: "META"},
		},
	})
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to get statement", err)
	}
	if len(result.Item) == 0 {
		return nil, commonErrors.NewNotFoundError("statement not found")
	}

	var stmt reconcile.BankStatement
	if err := attributevalue.UnmarshalMap(result.Item, &stmt); err != nil {
		return nil, commonErrors.NewInternalError("failed to unmarshal statement", err)
	}
	if stmt.TenantID != tenantID {
		return nil, commonErrors.NewNotFoundError("statement not found")
	}
	return &stmt, nil
}

// GetTransaction retrieves a single transaction via GSI1
func (r *DynamoDBStatementRepository) GetTransaction(ctx context.Context, tenantID string, txnID string) (*reconcile.BankTransaction, error) {
	keyCondition := expression.Key("GSI1PK").Equal(expression.Value(txnGSI1PK(tenantID, txnID))).
		And(expression.Key("GSI1SK").Equal(expression.Value("TXN")))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition).Build()
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to build expression", err)
	}

	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.table),
		IndexName:                 aws.String("GSI1"),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to query transaction", err)
	}
	if len(result.Items) == 0 {
		return nil, commonErrors.NewNotFoundError("transaction not found")
	}

	var txn reconcile.BankTransaction
	if err := attributevalue.UnmarshalMap(result.Items[0], &txn); err != nil {
		return nil, commonErrors.NewInternalError("failed to unmarshal transaction", err)
	}
	return &txn, nil
}

// ListTransactions returns all transactions of a statement in ingestion order
func (r *DynamoDBStatementRepository) ListTransactions(ctx context.Context, tenantID string, statementID string) ([]*reconcile.BankTransaction, error) {
	keyCondition := expression.Key("PK").Equal(expression.Value(statementPK(statementID))).
		And(expression.Key("SK").BeginsWith("TXN#"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition).Build()
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to build expression", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(true),
	}

	var txns []*reconcile.BankTransaction
	for {
		result, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, commonErrors.NewInternalError("failed to query transactions", err)
		}
		var page []*reconcile.BankTransaction
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, commonErrors.NewInternalError("failed to unmarshal transactions", err)
		}
		txns = append(txns, page...)

		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return txns, nil
}

// TransitionMatched moves the transaction to its terminal status and stamps
// the journal entry's exclusive back-reference, atomically
func (r *DynamoDBStatementRepository) TransitionMatched(ctx context.Context, txn *reconcile.BankTransaction, entryID string) error {
	entry, err := r.getEntry(ctx, txn.TenantID, entryID)
	if err != nil {
		return err
	}

	txnUpdate := expression.Set(expression.Name("status"), expression.Value(string(txn.Status))).
		Set(expression.Name("matchedEntryId"), expression.Value(txn.MatchedEntryID)).
		Set(expression.Name("confidence"), expression.Value(txn.Confidence)).
		Set(expression.Name("version"), expression.Value(txn.Version+1))
	txnCondition := expression.Name("version").Equal(expression.Value(txn.Version))
	txnExpr, err := expression.NewBuilder().WithUpdate(txnUpdate).WithCondition(txnCondition).Build()
	if err != nil {
		return commonErrors.NewInternalError("failed to build expression", err)
	}

	entryUpdate := expression.Set(expression.Name("matchedTxnId"), expression.Value(txn.TxnID))
	entryCondition := expression.AttributeNotExists(expression.Name("matchedTxnId"))
	entryExpr, err := expression.NewBuilder().WithUpdate(entryUpdate).WithCondition(entryCondition).Build()
	if err != nil {
		return commonErrors.NewInternalError("failed to build expression", err)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Update: &types.Update{
					TableName: aws.String(r.table),
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: statementPK(txn.StatementID)},
						"SK": &types.AttributeValueMemberS{Value: txnSK(txn.TxnID)},
					},
					UpdateExpression:          txnExpr.Update(),
					ConditionExpression:       txnExpr.Condition(),
					ExpressionAttributeNames:  txnExpr.Names(),
					ExpressionAttributeValues: txnExpr.Values(),
				},
			},
			{
				Update: &types.Update{
					TableName: aws.String(r.table),
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: fundPK(entry.FundID)},
						"SK": &types.AttributeValueMemberS{Value: entrySK(entry.Seq)},
					},
					UpdateExpression:          entryExpr.Update(),
					ConditionExpression:       entryExpr.Condition(),
					ExpressionAttributeNames:  entryExpr.Names(),
					ExpressionAttributeValues: entryExpr.Values(),
				},
			},
		},
	})
	if err != nil {
		switch transactConditionFailed(err) {
		case 0:
			return commonErrors.NewConcurrentModificationError("transaction was modified concurrently")
		case 1:
			return commonErrors.NewAlreadyMatchedError(entryID)
		}
		return commonErrors.NewInternalError("failed to transition transaction", err)
	}
	return nil
}

// UpdateTransactionStatus applies a status-only transition guarded by version
func (r *DynamoDBStatementRepository) UpdateTransactionStatus(ctx context.Context, txn *reconcile.BankTransaction) error {
	update := expression.Set(expression.Name("status"), expression.Value(string(txn.Status))).
		Set(expression.Name("ignoreReason"), expression.Value(txn.IgnoreReason)).
		Set(expression.Name("version"), expression.Value(txn.Version+1))
	condition := expression.Name("version").Equal(expression.Value(txn.Version))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(condition).Build()
	if err != nil {
		return commonErrors.NewInternalError("failed to build expression", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: statementPK(txn.StatementID)},
			"SK": &types.AttributeValueMemberS{Value: txnSK(txn.TxnID)},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var condCheckErr *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckErr) {
			return commonErrors.NewConcurrentModificationError("transaction was modified concurrently")
		}
		return commonErrors.NewInternalError("failed to update transaction", err)
	}
	return nil
}

// MarkReconciled closes out a statement
func (r *DynamoDBStatementRepository) MarkReconciled(ctx context.Context, tenantID string, statementID string) error {
	update := expression.Set(expression.Name("reconciled"), expression.Value(true)).
		Set(expression.Name("reconciledAt"), expression.Value(nowRFC3339()))
	condition := expression.AttributeExists(expression.Name("PK")).
		And(expression.Name("reconciled").Equal(expression.Value(false)))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(condition).Build()
	if err != nil {
		return commonErrors.NewInternalError("failed to build expression", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: statementPK(statementID)},
			"SK": &types.AttributeValueMemberS{Value: "META"},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var condCheckErr *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckErr) {
			return commonErrors.NewStatementAlreadyReconciledError(statementID)
		}
		return commonErrors.NewInternalError("failed to mark statement reconciled", err)
	}
	return nil
}

// getEntry resolves a journal entry's table location for the matched transition
func (r *DynamoDBStatementRepository) getEntry(ctx context.Context, tenantID string, entryID string) (*journal.JournalEntry, error) {
	keyCondition := expression.Key("GSI1PK").Equal(expression.Value(entryGSI1PK(tenantID, entryID))).
		And(expression.Key("GSI1SK").Equal(expression.Value("ENTRY")))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition).Build()
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to build expression", err)
	}

	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.table),
		IndexName:                 aws.String("GSI1"),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to query journal entry", err)
	}
	if len(result.Items) == 0 {
		return nil, commonErrors.NewNotFoundError("journal entry not found")
	}

	var entry journal.JournalEntry
	if err := attributevalue.UnmarshalMap(result.Items[0], &entry); err != nil {
		return nil, commonErrors.NewInternalError("failed to unmarshal journal entry", err)
	}
	return &entry, nil
}
