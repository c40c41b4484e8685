package middleware

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/aws/aws-lambda-go/events"

	"github.com/hoaworks/fundledger/internal/api/response"
	"github.com/hoaworks/fundledger/internal/domain/errors"
)

// RecoveryMiddleware is a middleware for recovering from panics and
// converting errors into API responses
type RecoveryMiddleware struct{}

// NewRecoveryMiddleware creates a new recovery middleware
func NewRecoveryMiddleware() RecoveryMiddleware {
	return RecoveryMiddleware{}
}

// Handle handles the recovery middleware
func (m RecoveryMiddleware) Handle(next APIGatewayHandler) APIGatewayHandler {
	return func(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (resp events.APIGatewayProxyResponse, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("PANIC", "panic", r, "stack", string(debug.Stack()))
				resp = response.InternalError("An unexpected error occurred", nil, request.RequestContext.RequestID)
				err = nil
			}
		}()

		resp, err = next(ctx, logger, request)
		if err != nil {
			var appErr errors.AppError
			if e, ok := err.(errors.AppError); ok {
				appErr = e
			} else {
				appErr = errors.NewInternalError("An unexpected error occurred", err)
			}

			logger.Error("request failed", "code", appErr.Code, "error", appErr.Error())
			return response.Error(appErr, request.RequestContext.RequestID), nil
		}

		return resp, nil
	}
}
