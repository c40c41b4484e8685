package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	commonErrors "github.com/hoaworks/fundledger/internal/domain/errors"
	"github.com/hoaworks/fundledger/internal/domain/journal"
	"github.com/hoaworks/fundledger/internal/platform/dynamodb/client"
)

// DynamoDBJournalRepository implements the journal.Repository interface.
// Entries live under the fund partition keyed by zero-padded sequence so a
// plain ascending query reads the ledger in order; the fund head item sits in
// the same partition and advances in the same transaction as each append.
type DynamoDBJournalRepository struct {
	client client.Client
	table  string
	logger *slog.Logger
}

// NewDynamoDBJournalRepository creates a new DynamoDBJournalRepository
func NewDynamoDBJournalRepository(client client.Client, table string, logger *slog.Logger) *DynamoDBJournalRepository {
	return &DynamoDBJournalRepository{
		client: client,
		table:  table,
		logger: logger,
	}
}

func fundPK(fundID string) string {
	return fmt.Sprintf("FUND#%s", fundID)
}

func entrySK(seq uint64) string {
	return fmt.Sprintf("ENTRY#%012d", seq)
}

func entryGSI1PK(tenantID, entryID string) string {
	return fmt.Sprintf("TENANT#%s#ENTRY#%s", tenantID, entryID)
}

// entryItem marshals an entry and injects the table keys
func (r *DynamoDBJournalRepository) entryItem(entry *journal.JournalEntry) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to marshal journal entry", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: fundPK(entry.FundID)}
	item["SK"] = &types.AttributeValueMemberS{Value: entrySK(entry.Seq)}
	item["GSI1PK"] = &types.AttributeValueMemberS{Value: entryGSI1PK(entry.TenantID, entry.EntryID)}
	item["GSI1SK"] = &types.AttributeValueMemberS{Value: "ENTRY"}
	item["Type"] = &types.AttributeValueMemberS{Value: "journal_entry"}
	return item, nil
}

// headItem marshals the new head state for a fund
func (r *DynamoDBJournalRepository) headItem(entry *journal.JournalEntry) (map[string]types.AttributeValue, error) {
	head := journal.FundHead{
		FundID: entry.FundID,
		Seq:    entry.Seq,
		Hash:   entry.Hash,
	}
	item, err := attributevalue.MarshalMap(head)
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to marshal fund head", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: fundPK(entry.FundID)}
	item["SK"] = &types.AttributeValueMemberS{Value: "HEAD"}
	item["Type"] = &types.AttributeValueMemberS{Value: "fund_head"}
	return item, nil
}

// headCondition guards the head replacement: seq 1 requires no head item,
// anything later requires the head to still sit at the predecessor
func headCondition(seq uint64) (*string, map[string]types.AttributeValue) {
	if seq == 1 {
		return aws.String("attribute_not_exists(PK)"), nil
	}
	return aws.String("seq = :prev"), map[string]types.AttributeValue{
		":prev": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", seq-1)},
	}
}

// Append writes the entry and advances the fund head in one transaction
func (r *DynamoDBJournalRepository) Append(ctx context.Context, entry *journal.JournalEntry) error {
	item, err := r.entryItem(entry)
	if err != nil {
		return err
	}
	head, err := r.headItem(entry)
	if err != nil {
		return err
	}
	cond, condValues := headCondition(entry.Seq)

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
					TableName:                 aws.String(r.table),
					Item:                      head,
					ConditionExpression:       cond,
					ExpressionAttributeValues: condValues,
				},
			},
		},
	})
	if err != nil {
		if transactConditionFailed(err) >= 0 {
			return commonErrors.NewConcurrentModificationError("fund head moved during append")
		}
		return commonErrors.NewInternalError("failed to append journal entry", err)
	}
	return nil
}

// AppendReversal appends the reversing entry, advances the head and marks the
// original entry, all in one transaction. The original's reversed-by slot
// being taken aborts the whole write.
func (r *DynamoDBJournalRepository) AppendReversal(ctx context.Context, reversal *journal.JournalEntry, originalID string) error {
	original, err := r.Get(ctx, reversal.TenantID, originalID)
	if err != nil {
		return err
	}

	item, err := r.entryItem(reversal)
	if err != nil {
		return err
	}
	head, err := r.headItem(reversal)
	if err != nil {
		return err
	}
	cond, condValues := headCondition(reversal.Seq)

	update := expression.Set(expression.Name("reversedBy"), expression.Value(reversal.EntryID)).
		Set(expression.Name("status"), expression.Value(string(journal.StatusReversed)))
	condition := expression.AttributeNotExists(expression.Name("reversedBy"))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(condition).Build()
	if err != nil {
		return commonErrors.NewInternalError("failed to build expression", err)
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
					TableName:                 aws.String(r.table),
					Item:                      head,
					ConditionExpression:       cond,
					ExpressionAttributeValues: condValues,
				},
			},
			{
				Update: &types.Update{
					TableName: aws.String(r.table),
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: fundPK(original.FundID)},
						"SK": &types.AttributeValueMemberS{Value: entrySK(original.Seq)},
					},
					UpdateExpression:          expr.Update(),
					ConditionExpression:       expr.Condition(),
					ExpressionAttributeNames:  expr.Names(),
					ExpressionAttributeValues: expr.Values(),
				},
			},
		},
	})
	if err != nil {
		switch transactConditionFailed(err) {
		case 2:
			return commonErrors.NewAlreadyReversedError(originalID)
		case 0, 1:
			return commonErrors.NewConcurrentModificationError("fund head moved during reversal")
		}
		return commonErrors.NewInternalError("failed to append reversal", err)
	}
	return nil
}

// Get retrieves an entry by ID via GSI1
func (r *DynamoDBJournalRepository) Get(ctx context.Context, tenantID string, entryID string) (*journal.JournalEntry, error) {
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

// Head returns the fund's tail position, Seq 0 when the ledger is empty
func (r *DynamoDBJournalRepository) Head(ctx context.Context, fundID string) (*journal.FundHead, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fundPK(fundID)},
			"SK": &types.AttributeValueMemberS{Value: "HEAD"},
		},
	})
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to get fund head", err)
	}
	if len(result.Item) == 0 {
		return &journal.FundHead{FundID: fundID}, nil
	}

	var head journal.FundHead
	if err := attributevalue.UnmarshalMap(result.Item, &head); err != nil {
		return nil, commonErrors.NewInternalError("failed to unmarshal fund head", err)
	}
	return &head, nil
}

// ListByFund reads entries in ascending sequence order
func (r *DynamoDBJournalRepository) ListByFund(ctx context.Context, fundID string, opts journal.ListOptions) ([]*journal.JournalEntry, error) {
	from := opts.FromSeq
	if from == 0 {
		from = 1
	}
	var skCondition expression.KeyConditionBuilder
	if opts.ToSeq > 0 {
		skCondition = expression.Key("SK").Between(
			expression.Value(entrySK(from)),
			expression.Value(entrySK(opts.ToSeq)),
		)
	} else {
		skCondition = expression.Key("SK").GreaterThanEqual(expression.Value(entrySK(from)))
	}
	keyCondition := expression.Key("PK").Equal(expression.Value(fundPK(fundID))).And(skCondition)
	filterExpr := expression.Name("Type").Equal(expression.Value("journal_entry"))

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
		ScanIndexForward:          aws.Bool(true),
	}
	if opts.Limit > 0 {
		input.Limit = aws.Int32(int32(opts.Limit))
	}

	var entries []*journal.JournalEntry
	for {
		result, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, commonErrors.NewInternalError("failed to query journal entries", err)
		}
		var page []*journal.JournalEntry
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, commonErrors.NewInternalError("failed to unmarshal journal entries", err)
		}
		entries = append(entries, page...)

		if result.LastEvaluatedKey == nil || (opts.Limit > 0 && len(entries) >= opts.Limit) {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// MarkMatched stamps the exclusive matched-transaction reference
func (r *DynamoDBJournalRepository) MarkMatched(ctx context.Context, tenantID string, entryID string, txnID string) error {
	entry, err := r.Get(ctx, tenantID, entryID)
	if err != nil {
		return err
	}

	update := expression.Set(expression.Name("matchedTxnId"), expression.Value(txnID))
	condition := expression.AttributeNotExists(expression.Name("matchedTxnId"))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(condition).Build()
	if err != nil {
		return commonErrors.NewInternalError("failed to build expression", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fundPK(entry.FundID)},
			"SK": &types.AttributeValueMemberS{Value: entrySK(entry.Seq)},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var condCheckErr *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckErr) {
			return commonErrors.NewAlreadyMatchedError(entryID)
		}
		return commonErrors.NewInternalError("failed to mark entry matched", err)
	}
	return nil
}

// transactConditionFailed returns the index of the first transaction item
// whose condition check failed, or -1 when the error is something else
func transactConditionFailed(err error) int {
	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) {
		return -1
	}
	for i, reason := range canceled.CancellationReasons {
		if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
			return i
		}
	}
	return -1
}
