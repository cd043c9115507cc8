package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/traf3li/trustledger/internal/api/handlers"
	"github.com/traf3li/trustledger/internal/api/middleware"
	"github.com/traf3li/trustledger/internal/api/response"
	envconfig "github.com/traf3li/trustledger/internal/common/config"
	"github.com/traf3li/trustledger/internal/domain/account"
	"github.com/traf3li/trustledger/internal/domain/ledger"
	"github.com/traf3li/trustledger/internal/domain/reconciliation"
	"github.com/traf3li/trustledger/internal/domain/reporting"
	ddbclient "github.com/traf3li/trustledger/internal/platform/dynamodb/client"
	"github.com/traf3li/trustledger/internal/platform/dynamodb/repository"
	"github.com/traf3li/trustledger/pkg/validator"
)

var (
	logger  *slog.Logger
	config  *envconfig.Config
	handler middleware.APIGatewayHandler
)

func init() {
	logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	var err error
	config, err = envconfig.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load Env config: %v", err)
	}

	auditLog, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create audit logger: %v", err)
	}

	dbClient, err := ddbclient.NewDynamoDBClient(context.Background(), config.AWSRegion)
	if err != nil {
		log.Fatalf("Failed to create DynamoDB client: %v", err)
	}

	factory := repository.NewFactory(dbClient, config.DynamoDBTableName, logger)
	accountRepo := factory.TrustAccountRepository()
	ledgerStore := factory.LedgerStore()
	reconRepo := factory.ReconciliationRepository()

	v := validator.New()
	accountService := account.NewService(accountRepo, v)
	ledgerService := ledger.NewService(ledgerStore, accountRepo, v)
	reconService := reconciliation.NewService(reconRepo, ledgerStore, accountRepo, v)
	reportingService := reporting.NewService(ledgerStore, accountRepo, v, nil)

	trustHandler := handlers.NewTrustHandler(accountService, ledgerService, reconService, reportingService)

	recovery := middleware.NewRecoveryMiddleware()
	logging := middleware.NewLoggingMiddleware()
	audit := middleware.NewAuditMiddleware(auditLog)
	firm := middleware.NewFirmMiddleware()

	handler = recovery.Handle(logging.Handle(firm.Handle(audit.Handle(trustHandler.Handle))))
}

func handleRequest(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if request.HTTPMethod == "OPTIONS" {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusOK,
			Headers:    response.DefaultHeaders(),
		}, nil
	}

	return handler(ctx, logger, request)
}

func main() {
	lambda.Start(handleRequest)
}
