package middleware

import (
	"context"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/traf3li/trustledger/internal/api/response"
)

// FirmContextKey is the key type for firm information in the request context
type FirmContextKey string

const (
	// FirmContextKeyValue is the context key for firm information
	FirmContextKeyValue FirmContextKey = "firm"
)

// FirmContext carries the tenant firm a request operates on
type FirmContext struct {
	FirmID string
}

// FirmMiddleware extracts the firm from the X-Firm-Id header. Every trust
// ledger operation is scoped to one firm; a request without one has no ledger
// to act on.
type FirmMiddleware struct {
}

// NewFirmMiddleware creates a new firm middleware
func NewFirmMiddleware() *FirmMiddleware {
	return &FirmMiddleware{}
}

// Handle handles the firm middleware for Lambda functions
func (m *FirmMiddleware) Handle(next APIGatewayHandler) APIGatewayHandler {
	return func(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		firmID := request.Headers["X-Firm-Id"]
		if firmID == "" {
			firmID = request.Headers["x-firm-id"]
		}
		if firmID == "" {
			return response.BadRequest("X-Firm-Id header is required", request.RequestContext.RequestID), nil
		}

		ctx = context.WithValue(ctx, FirmContextKeyValue, &FirmContext{FirmID: firmID})
		return next(ctx, logger.With("firmId", firmID), request)
	}
}

// GetFirmID gets the firm ID from the request context
func GetFirmID(ctx context.Context) string {
	firmCtx, ok := ctx.Value(FirmContextKeyValue).(*FirmContext)
	if !ok {
		return ""
	}
	return firmCtx.FirmID
}
