package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/hoaworks/fundledger/internal/api/middleware"
	"github.com/hoaworks/fundledger/internal/api/response"
	"github.com/hoaworks/fundledger/internal/domain/balance"
	"github.com/hoaworks/fundledger/internal/domain/journal"
	"github.com/hoaworks/fundledger/internal/domain/registry"
)

// LedgerHandler handles the chart of accounts, the journal engine and the
// balance projector endpoints
type LedgerHandler struct {
	registryService *registry.Service
	journalService  *journal.Service
	balanceService  *balance.Service
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(registryService *registry.Service, journalService *journal.Service, balanceService *balance.Service) *LedgerHandler {
	return &LedgerHandler{
		registryService: registryService,
		journalService:  journalService,
		balanceService:  balanceService,
	}
}

// CreateAccount handles POST /accounts
func (h *LedgerHandler) CreateAccount(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	tenantCtx, ok := middleware.GetTenantContext(ctx)
	if !ok {
		return response.TenantError("tenant context not found", request.RequestContext.RequestID), nil
	}

	var req registry.CreateAccountRequest
	if err := json.Unmarshal([]byte(request.Body), &req); err != nil {
		return response.BadRequest("Invalid JSON body", request.RequestContext.RequestID), nil
	}

	account, err := h.registryService.CreateAccount(ctx, tenantCtx, &req)
	if err != nil {
		return response.FromError(err, request.RequestContext.RequestID), nil
	}
	return response.Created(account, request.RequestContext.RequestID), nil
}

// GetAccounts handles GET /accounts
func (h *LedgerHandler) GetAccounts(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	tenantCtx, ok := middleware.GetTenantContext(ctx)
	if !ok {
		return response.TenantError("tenant context not found", request.RequestContext.RequestID), nil
	}

	filter := &registry.GetAccountsRequest{
		FundID:      request.QueryStringParameters["fundId"],
		AccountType: request.QueryStringParameters["accountType"],
		ActiveOnly:  request.QueryStringParameters["activeOnly"] == "true",
	}

	accounts, err := h.registryService.GetAccounts(ctx, tenantCtx.TenantID, filter)
	if err != nil {
		return response.FromError(err, request.RequestContext.RequestID), nil
	}
	return response.SuccessWithPagination(accounts, &response.Pagination{Total: len(accounts)}, 200, request.RequestContext.RequestID), nil
}

// DeactivateAccount handles DELETE /accounts/{accountId}
func (h *LedgerHandler) DeactivateAccount(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	tenantCtx, ok := middleware.GetTenantContext(ctx)
	if !ok {
		return response.TenantError("tenant context not found", request.RequestContext.RequestID), nil
	}

	accountID := request.PathParameters["accountId"]
	if accountID == "" {
		return response.BadRequest("accountId is required", request.RequestContext.RequestID), nil
	}

	account, err := h.registryService.DeactivateAccount(ctx, tenantCtx.TenantID, accountID)
	if err != nil {
		return response.FromError(err, request.RequestContext.RequestID), nil
	}
	return response.OK(account, request.RequestContext.RequestID), nil
}

// CreateFund handles POST /funds
func (h *LedgerHandler) CreateFund(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	tenantCtx, ok := middleware.GetTenantContext(ctx)
	if !ok {
		return response.TenantError("tenant context not found", request.RequestContext.RequestID), nil
	}

	var req registry.CreateFundRequest
	if err := json.Unmarshal([]byte(request.Body), &req); err != nil {
		return response.BadRequest("Invalid JSON body", request.RequestContext.RequestID), nil
	}

	fund, err := h.registryService.CreateFund(ctx, tenantCtx, &req)
	if err != nil {
		return response.FromError(err, request.RequestContext.RequestID), nil
	}
	return response.Created(fund, request.RequestContext.RequestID), nil
}

// CreateJournalEntry handles POST /entries
func (h *LedgerHandler) CreateJournalEntry(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	tenantCtx, ok := middleware.GetTenantContext(ctx)
	if !ok {
		return response.TenantError("tenant context not found", request.RequestContext.RequestID), nil
	}

	var draft journal.EntryDraft
	if err := json.Unmarshal([]byte(request.Body), &draft); err != nil {
		return response.BadRequest("Invalid JSON body", request.RequestContext.RequestID), nil
	}

	entry, err := h.journalService.Post(ctx, tenantCtx, &draft)
	if err != nil {
		return response.FromError(err, request.RequestContext.RequestID), nil
	}
	return response.Created(entry, request.RequestContext.RequestID), nil
}

// ReverseJournalEntry handles POST /entries/{entryId}/reverse
func (h *LedgerHandler) ReverseJournalEntry(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	tenantCtx, ok := middleware.GetTenantContext(ctx)
	if !ok {
		return response.TenantError("tenant context not found", request.RequestContext.RequestID), nil
	}

	entryID := request.PathParameters["entryId"]
	if entryID == "" {
		return response.BadRequest("entryId is required", request.RequestContext.RequestID), nil
	}

	reversal, err := h.journalService.Reverse(ctx, tenantCtx, entryID)
	if err != nil {
		return response.FromError(err, request.RequestContext.RequestID), nil
	}
	return response.Created(reversal, request.RequestContext.RequestID), nil
}

// VerifyChain handles POST /funds/{fundId}/verify
func (h *LedgerHandler) VerifyChain(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	fundID := request.PathParameters["fundId"]
	if fundID == "" {
		return response.BadRequest("fundId is required", request.RequestContext.RequestID), nil
	}

	if err := h.journalService.VerifyChain(ctx, fundID); err != nil {
		return response.FromError(err, request.RequestContext.RequestID), nil
	}
	return response.OK(map[string]any{"fundId": fundID, "verified": true}, request.RequestContext.RequestID), nil
}

// GetAccountBalance handles GET /accounts/{accountId}/balance
func (h *LedgerHandler) GetAccountBalance(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	tenantCtx, ok := middleware.GetTenantContext(ctx)
	if !ok {
		return response.TenantError("tenant context not found", request.RequestContext.RequestID), nil
	}

	accountID := request.PathParameters["accountId"]
	if accountID == "" {
		return response.BadRequest("accountId is required", request.RequestContext.RequestID), nil
	}

	req := &balance.GetBalanceRequest{
		AccountID: accountID,
		AsOf:      request.QueryStringParameters["asOf"],
	}
	amount, err := h.balanceService.GetBalance(ctx, tenantCtx.TenantID, req)
	if err != nil {
		return response.FromError(err, request.RequestContext.RequestID), nil
	}
	return response.OK(map[string]any{"accountId": accountID, "balance": amount, "asOf": req.AsOf}, request.RequestContext.RequestID), nil
}

// GetAgingBuckets handles GET /funds/{fundId}/aging
func (h *LedgerHandler) GetAgingBuckets(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	tenantCtx, ok := middleware.GetTenantContext(ctx)
	if !ok {
		return response.TenantError("tenant context not found", request.RequestContext.RequestID), nil
	}

	fundID := request.PathParameters["fundId"]
	if fundID == "" {
		return response.BadRequest("fundId is required", request.RequestContext.RequestID), nil
	}
	asOf := request.QueryStringParameters["asOf"]
	if asOf == "" {
		return response.BadRequest("asOf is required", request.RequestContext.RequestID), nil
	}

	buckets, err := h.balanceService.GetAgingBuckets(ctx, tenantCtx.TenantID, &balance.GetAgingBucketsRequest{
		FundID: fundID,
		AsOf:   asOf,
	})
	if err != nil {
		return response.FromError(err, request.RequestContext.RequestID), nil
	}
	return response.OK(buckets, request.RequestContext.RequestID), nil
}
