package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
)

// AuditMiddleware writes an audit record for every mutating request. The
// audit trail is a separate zap logger so it can be shipped to a different
// sink than the operational logs and survive log-level changes.
type AuditMiddleware struct {
	log *zap.Logger
}

// NewAuditMiddleware creates a new audit middleware
func NewAuditMiddleware(log *zap.Logger) AuditMiddleware {
	return AuditMiddleware{log: log}
}

// Handle handles the audit middleware
func (m AuditMiddleware) Handle(next APIGatewayHandler) APIGatewayHandler {
	return func(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		response, err := next(ctx, logger, request)

		if request.HTTPMethod != http.MethodGet && request.HTTPMethod != http.MethodOptions {
			m.log.Info("trust_ledger_mutation",
				zap.String("method", request.HTTPMethod),
				zap.String("path", request.Path),
				zap.String("firmId", GetFirmID(ctx)),
				zap.String("requestId", request.RequestContext.RequestID),
				zap.String("sourceIp", request.RequestContext.Identity.SourceIP),
				zap.Int("status", response.StatusCode),
			)
		}

		return response, err
	}
}
