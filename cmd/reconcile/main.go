package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/hoaworks/fundledger/internal/api/handlers"
	"github.com/hoaworks/fundledger/internal/api/middleware"
	"github.com/hoaworks/fundledger/internal/api/response"
	envconfig "github.com/hoaworks/fundledger/internal/common/config"
	"github.com/hoaworks/fundledger/internal/domain/balance"
	"github.com/hoaworks/fundledger/internal/domain/journal"
	"github.com/hoaworks/fundledger/internal/domain/reconcile"
	"github.com/hoaworks/fundledger/internal/domain/registry"
	ddbclient "github.com/hoaworks/fundledger/internal/platform/dynamodb/client"
	"github.com/hoaworks/fundledger/internal/platform/dynamodb/repository"
)

var (
	reconcileHandler *handlers.ReconcileHandler
	chain            middleware.APIGatewayHandler
	logger           *slog.Logger
	config           *envconfig.Config
)

func init() {
	// Initialize logger
	logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	var err error = nil
	config, err = envconfig.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load Env config: %v", err)
	}

	// Initialize DynamoDB client
	dbClient, err := ddbclient.NewDynamoDBClient(context.Background(), config.AWSRegion)
	if err != nil {
		log.Fatalf("Failed to create DynamoDB client: %v", err)
	}

	// Initialize repositories
	factory := repository.NewFactory(dbClient, config.DynamoDBTableName, logger)

	// Initialize services. Entries posted for unmatched transactions go
	// through the journal engine so the hash chain and balance projection
	// stay consistent with manually posted entries.
	registryService := registry.NewService(factory.RegistryRepository())
	journalRepo := factory.JournalRepository()
	balanceService := balance.NewService(journalRepo, registryService, factory.BalanceRepository(), logger)
	journalService := journal.NewService(journalRepo, registryService, balanceService, logger)

	reconcileService := reconcile.NewService(
		factory.StatementRepository(),
		journalRepo,
		journalService,
		registryService,
		reconcile.Config{
			AutoMatchThreshold: config.AutoMatchThreshold,
			DateWindowDays:     config.MatchDateWindow,
			BatchSize:          config.StatementBatchSize,
		},
		logger,
	)

	// Initialize handler and middleware chain
	reconcileHandler = handlers.NewReconcileHandler(reconcileService)

	chain = middleware.Chain(route,
		middleware.NewLoggingMiddleware(),
		middleware.NewRecoveryMiddleware(),
		middleware.NewTenantMiddleware(),
	)
}

// route dispatches to the reconciliation handler based on path and method.
func route(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	path := strings.TrimPrefix(request.Path, "/reconcile")
	method := request.HTTPMethod
	parts := splitPath(path)

	switch {
	case path == "/statements" && method == "POST":
		return reconcileHandler.UploadStatement(ctx, logger, request)
	case len(parts) == 3 && parts[0] == "statements" && parts[2] == "report" && method == "GET":
		return reconcileHandler.GetReconciliationReport(ctx, logger, withPathParam(request, "statementId", parts[1]))
	case len(parts) == 3 && parts[0] == "statements" && parts[2] == "finalize" && method == "POST":
		return reconcileHandler.FinalizeStatement(ctx, logger, withPathParam(request, "statementId", parts[1]))
	case len(parts) == 3 && parts[0] == "transactions" && parts[2] == "suggestions" && method == "GET":
		return reconcileHandler.ListMatchSuggestions(ctx, logger, withPathParam(request, "txnId", parts[1]))
	case len(parts) == 3 && parts[0] == "transactions" && parts[2] == "match" && method == "POST":
		return reconcileHandler.ConfirmMatch(ctx, logger, withPathParam(request, "txnId", parts[1]))
	case len(parts) == 3 && parts[0] == "transactions" && parts[2] == "auto-match" && method == "POST":
		return reconcileHandler.AutoConfirmMatch(ctx, logger, withPathParam(request, "txnId", parts[1]))
	case len(parts) == 3 && parts[0] == "transactions" && parts[2] == "entry" && method == "POST":
		return reconcileHandler.CreateEntryFromTransaction(ctx, logger, withPathParam(request, "txnId", parts[1]))
	case len(parts) == 3 && parts[0] == "transactions" && parts[2] == "ignore" && method == "POST":
		return reconcileHandler.IgnoreTransaction(ctx, logger, withPathParam(request, "txnId", parts[1]))
	default:
		return response.NotFound("Endpoint not found"), nil
	}
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func withPathParam(request events.APIGatewayProxyRequest, key, value string) events.APIGatewayProxyRequest {
	if request.PathParameters == nil {
		request.PathParameters = map[string]string{}
	}
	request.PathParameters[key] = value
	return request
}

func handler(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	// Handle CORS preflight
	if request.HTTPMethod == "OPTIONS" {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusOK,
			Headers:    response.DefaultHeaders(),
		}, nil
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	slog.Info("reconcile - Memory Status", "MB", m.Alloc/1024/1024)

	if config.Environment == "dev" {
		slog.Info("Request Details",
			"path", request.Path,
			"method", request.HTTPMethod,
			"body", request.Body,
			"origin", request.Headers["Origin"],
			"requestId", request.RequestContext.RequestID,
			"sourceIP", request.RequestContext.Identity.SourceIP,
			"queryParams", request.QueryStringParameters,
		)
	}

	return chain(ctx, logger, request)
}

func main() {
	lambda.Start(handler)
}
