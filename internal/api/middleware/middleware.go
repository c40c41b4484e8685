package middleware

import (
	"context"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
)

// APIGatewayHandler is a function that handles API Gateway requests
type APIGatewayHandler func(context.Context, *slog.Logger, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// Middleware wraps a handler with cross-cutting behavior
type Middleware interface {
	Handle(next APIGatewayHandler) APIGatewayHandler
}

// Chain applies middlewares around handler so the first listed runs
// outermost.
func Chain(handler APIGatewayHandler, middlewares ...Middleware) APIGatewayHandler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i].Handle(handler)
	}
	return handler
}
