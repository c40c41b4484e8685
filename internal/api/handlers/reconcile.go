package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/hoaworks/fundledger/internal/api/middleware"
	"github.com/hoaworks/fundledger/internal/api/response"
	"github.com/hoaworks/fundledger/internal/domain/reconcile"
)

// ReconcileHandler handles bank statement upload and reconciliation endpoints
type ReconcileHandler struct {
	reconcileService *reconcile.Service
}

// NewReconcileHandler creates a new reconciliation handler
func NewReconcileHandler(reconcileService *reconcile.Service) *ReconcileHandler {
	return &ReconcileHandler{
		reconcileService: reconcileService,
	}
}

// UploadStatement handles POST /statements
func (h *ReconcileHandler) UploadStatement(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	tenantCtx, ok := middleware.GetTenantContext(ctx)
	if !ok {
		return response.TenantError("tenant context not found", request.RequestContext.RequestID), nil
	}

	var req reconcile.UploadStatementRequest
	if err := json.Unmarshal([]byte(request.Body), &req); err != nil {
		return response.BadRequest("Invalid JSON body", request.RequestContext.RequestID), nil
	}

	statement, err := h.reconcileService.UploadStatement(ctx, tenantCtx, &req)
	if err != nil {
		return response.FromError(err, request.RequestContext.RequestID), nil
	}
	return response.Created(statement, request.RequestContext.RequestID), nil
}

// ListMatchSuggestions handles GET /transactions/{txnId}/suggestions
func (h *ReconcileHandler) ListMatchSuggestions(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	tenantCtx, ok := middleware.GetTenantContext(ctx)
	if !ok {
		return response.TenantError("tenant context not found", request.RequestContext.RequestID), nil
	}

	txnID := request.PathParameters["txnId"]
	if txnID == "" {
		return response.BadRequest("txnId is required", request.RequestContext.RequestID), nil
	}

	candidates, err := h.reconcileService.Suggest(ctx, tenantCtx.TenantID, txnID)
	if err != nil {
		return response.FromError(err, request.RequestContext.RequestID), nil
	}
	return response.SuccessWithPagination(candidates, &response.Pagination{Total: len(candidates)}, 200, request.RequestContext.RequestID), nil
}

// ConfirmMatch handles POST /transactions/{txnId}/match
func (h *ReconcileHandler) ConfirmMatch(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	tenantCtx, ok := middleware.GetTenantContext(ctx)
	if !ok {
		return response.TenantError("tenant context not found", request.RequestContext.RequestID), nil
	}

	txnID := request.PathParameters["txnId"]
	if txnID == "" {
		return response.BadRequest("txnId is required", request.RequestContext.RequestID), nil
	}

	var body struct {
		EntryID string `json:"entryId"`
	}
	if err := json.Unmarshal([]byte(request.Body), &body); err != nil {
		return response.BadRequest("Invalid JSON body", request.RequestContext.RequestID), nil
	}
	if body.EntryID == "" {
		return response.BadRequest("entryId is required", request.RequestContext.RequestID), nil
	}

	if err := h.reconcileService.ConfirmMatch(ctx, tenantCtx, txnID, body.EntryID); err != nil {
		return response.FromError(err, request.RequestContext.RequestID), nil
	}
	return response.OK(map[string]any{"transactionId": txnID, "entryId": body.EntryID, "matched": true}, request.RequestContext.RequestID), nil
}

// AutoConfirmMatch handles POST /transactions/{txnId}/auto-match
func (h *ReconcileHandler) AutoConfirmMatch(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	tenantCtx, ok := middleware.GetTenantContext(ctx)
	if !ok {
		return response.TenantError("tenant context not found", request.RequestContext.RequestID), nil
	}

	txnID := request.PathParameters["txnId"]
	if txnID == "" {
		return response.BadRequest("txnId is required", request.RequestContext.RequestID), nil
	}

	matched, err := h.reconcileService.AutoConfirm(ctx, tenantCtx, txnID)
	if err != nil {
		return response.FromError(err, request.RequestContext.RequestID), nil
	}
	return response.OK(map[string]any{"transactionId": txnID, "matched": matched}, request.RequestContext.RequestID), nil
}

// CreateEntryFromTransaction handles POST /transactions/{txnId}/entry
func (h *ReconcileHandler) CreateEntryFromTransaction(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	tenantCtx, ok := middleware.GetTenantContext(ctx)
	if !ok {
		return response.TenantError("tenant context not found", request.RequestContext.RequestID), nil
	}

	txnID := request.PathParameters["txnId"]
	if txnID == "" {
		return response.BadRequest("txnId is required", request.RequestContext.RequestID), nil
	}

	var body struct {
		AccountID string `json:"accountId"`
	}
	if err := json.Unmarshal([]byte(request.Body), &body); err != nil {
		return response.BadRequest("Invalid JSON body", request.RequestContext.RequestID), nil
	}
	if body.AccountID == "" {
		return response.BadRequest("accountId is required", request.RequestContext.RequestID), nil
	}

	entry, err := h.reconcileService.CreateFromTransaction(ctx, tenantCtx, txnID, body.AccountID)
	if err != nil {
		return response.FromError(err, request.RequestContext.RequestID), nil
	}
	return response.Created(entry, request.RequestContext.RequestID), nil
}

// IgnoreTransaction handles POST /transactions/{txnId}/ignore
func (h *ReconcileHandler) IgnoreTransaction(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	tenantCtx, ok := middleware.GetTenantContext(ctx)
	if !ok {
		return response.TenantError("tenant context not found", request.RequestContext.RequestID), nil
	}

	txnID := request.PathParameters["txnId"]
	if txnID == "" {
		return response.BadRequest("txnId is required", request.RequestContext.RequestID), nil
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(request.Body), &body); err != nil {
		return response.BadRequest("Invalid JSON body", request.RequestContext.RequestID), nil
	}

	if err := h.reconcileService.Ignore(ctx, tenantCtx, txnID, body.Reason); err != nil {
		return response.FromError(err, request.RequestContext.RequestID), nil
	}
	return response.OK(map[string]any{"transactionId": txnID, "ignored": true}, request.RequestContext.RequestID), nil
}

// GetReconciliationReport handles GET /statements/{statementId}/report
func (h *ReconcileHandler) GetReconciliationReport(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	tenantCtx, ok := middleware.GetTenantContext(ctx)
	if !ok {
		return response.TenantError("tenant context not found", request.RequestContext.RequestID), nil
	}

	statementID := request.PathParameters["statementId"]
	if statementID == "" {
		return response.BadRequest("statementId is required", request.RequestContext.RequestID), nil
	}

	report, err := h.reconcileService.Report(ctx, tenantCtx.TenantID, statementID)
	if err != nil {
		return response.FromError(err, request.RequestContext.RequestID), nil
	}
	return response.OK(report, request.RequestContext.RequestID), nil
}

// FinalizeStatement handles POST /statements/{statementId}/finalize
func (h *ReconcileHandler) FinalizeStatement(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	tenantCtx, ok := middleware.GetTenantContext(ctx)
	if !ok {
		return response.TenantError("tenant context not found", request.RequestContext.RequestID), nil
	}

	statementID := request.PathParameters["statementId"]
	if statementID == "" {
		return response.BadRequest("statementId is required", request.RequestContext.RequestID), nil
	}

	report, err := h.reconcileService.Finalize(ctx, tenantCtx, statementID)
	if err != nil {
		return response.FromError(err, request.RequestContext.RequestID), nil
	}
	return response.OK(report, request.RequestContext.RequestID), nil
}
