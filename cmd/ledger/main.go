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
	"github.com/hoaworks/fundledger/internal/domain/registry"
	ddbclient "github.com/hoaworks/fundledger/internal/platform/dynamodb/client"
	"github.com/hoaworks/fundledger/internal/platform/dynamodb/repository"
)

var (
	ledgerHandler *handlers.LedgerHandler
	chain         middleware.APIGatewayHandler
	logger        *slog.Logger
	config        *envconfig.Config
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

	// Initialize services. The balance projector consumes the journal
	// engine's posted entries as its projection sink.
	registryService := registry.NewService(factory.RegistryRepository())
	journalRepo := factory.JournalRepository()
	balanceService := balance.NewService(journalRepo, registryService, factory.BalanceRepository(), logger)
	journalService := journal.NewService(journalRepo, registryService, balanceService, logger)

	// Initialize handler and middleware chain
	ledgerHandler = handlers.NewLedgerHandler(registryService, journalService, balanceService)

	chain = middleware.Chain(route,
		middleware.NewLoggingMiddleware(),
		middleware.NewRecoveryMiddleware(),
		middleware.NewTenantMiddleware(),
	)
}

// route dispatches to the ledger handler based on path and method. Path
// parameters are extracted into request.PathParameters before dispatch.
func route(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	path := strings.TrimPrefix(request.Path, "/ledger")
	method := request.HTTPMethod
	parts := splitPath(path)

	switch {
	case path == "/accounts" && method == "POST":
		return ledgerHandler.CreateAccount(ctx, logger, request)
	case path == "/accounts" && method == "GET":
		return ledgerHandler.GetAccounts(ctx, logger, request)
	case len(parts) == 2 && parts[0] == "accounts" && method == "DELETE":
		return ledgerHandler.DeactivateAccount(ctx, logger, withPathParam(request, "accountId", parts[1]))
	case len(parts) == 3 && parts[0] == "accounts" && parts[2] == "balance" && method == "GET":
		return ledgerHandler.GetAccountBalance(ctx, logger, withPathParam(request, "accountId", parts[1]))
	case path == "/funds" && method == "POST":
		return ledgerHandler.CreateFund(ctx, logger, request)
	case len(parts) == 3 && parts[0] == "funds" && parts[2] == "verify" && method == "POST":
		return ledgerHandler.VerifyChain(ctx, logger, withPathParam(request, "fundId", parts[1]))
	case len(parts) == 3 && parts[0] == "funds" && parts[2] == "aging" && method == "GET":
		return ledgerHandler.GetAgingBuckets(ctx, logger, withPathParam(request, "fundId", parts[1]))
	case path == "/entries" && method == "POST":
		return ledgerHandler.CreateJournalEntry(ctx, logger, request)
	case len(parts) == 3 && parts[0] == "entries" && parts[2] == "reverse" && method == "POST":
		return ledgerHandler.ReverseJournalEntry(ctx, logger, withPathParam(request, "entryId", parts[1]))
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
	slog.Info("ledger - Memory Status", "MB", m.Alloc/1024/1024)

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
