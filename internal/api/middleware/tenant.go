package middleware

import (
	"context"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/hoaworks/fundledger/internal/api/response"
	"github.com/hoaworks/fundledger/internal/common/utils"
	"github.com/hoaworks/fundledger/internal/domain/tenant"
)

// TenantContextKey is the key for the tenant context in the request context
type TenantContextKey string

const (
	// TenantContextKeyValue is the context key for tenant information
	TenantContextKeyValue TenantContextKey = "tenant"
)

// TenantMiddleware resolves the acting tenant for a request. Authentication
// happens upstream at the API gateway; by the time a request reaches here the
// X-Tenant-Id header is trusted and only needs shape validation.
type TenantMiddleware struct{}

// NewTenantMiddleware creates a new tenant middleware
func NewTenantMiddleware() *TenantMiddleware {
	return &TenantMiddleware{}
}

// Handle handles the tenant middleware for Lambda functions
func (m *TenantMiddleware) Handle(next APIGatewayHandler) APIGatewayHandler {
	return func(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		tenantID := request.Headers["X-Tenant-Id"]
		if tenantID == "" {
			tenantID = request.Headers["x-tenant-id"]
		}
		if err := utils.ValidateTenantID(tenantID); err != nil {
			return response.TenantError("a valid X-Tenant-Id header is required", request.RequestContext.RequestID), nil
		}

		userID := request.Headers["X-User-Id"]
		if userID == "" {
			userID = request.Headers["x-user-id"]
		}

		tenantCtx := &tenant.TenantContext{
			TenantID: tenantID,
			UserID:   userID,
		}

		ctx = context.WithValue(ctx, TenantContextKeyValue, tenantCtx)
		return next(ctx, logger, request)
	}
}

// GetTenantID gets the tenant ID from the request context
func GetTenantID(ctx context.Context) string {
	tenantCtx, ok := ctx.Value(TenantContextKeyValue).(*tenant.TenantContext)
	if !ok {
		return ""
	}
	return tenantCtx.TenantID
}

// GetTenantContext gets the tenant context from the request context
func GetTenantContext(ctx context.Context) (*tenant.TenantContext, bool) {
	tenantCtx, ok := ctx.Value(TenantContextKeyValue).(*tenant.TenantContext)
	return tenantCtx, ok
}
