package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/traf3li/trustledger/internal/api/middleware"
	"github.com/traf3li/trustledger/internal/api/response"
	"github.com/traf3li/trustledger/internal/domain/account"
	"github.com/traf3li/trustledger/internal/domain/errors"
	"github.com/traf3li/trustledger/internal/domain/ledger"
	"github.com/traf3li/trustledger/internal/domain/reconciliation"
	"github.com/traf3li/trustledger/internal/domain/reporting"
)

// TrustHandler routes trust ledger API requests to the domain services
type TrustHandler struct {
	accounts *account.Service
	ledger   *ledger.Service
	recons   *reconciliation.Service
	reports  *reporting.Service
}

// NewTrustHandler creates a new trust ledger handler
func NewTrustHandler(accounts *account.Service, ledgerSvc *ledger.Service, recons *reconciliation.Service, reports *reporting.Service) *TrustHandler {
	return &TrustHandler{
		accounts: accounts,
		ledger:   ledgerSvc,
		recons:   recons,
		reports:  reports,
	}
}

// Handle dispatches a request by path and method.
//
//	POST   /accounts
//	GET    /accounts
//	GET    /accounts/{id}
//	POST   /accounts/{id}/close
//	GET    /accounts/{id}/summary
//	POST   /accounts/{id}/deposits
//	POST   /accounts/{id}/withdrawals
//	POST   /transfers
//	GET    /accounts/{id}/transactions
//	GET    /accounts/{id}/transactions/{txnId}
//	POST   /accounts/{id}/transactions/{txnId}/void
//	POST   /accounts/{id}/transactions/{txnId}/clear
//	GET    /accounts/{id}/client-balances
//	GET    /accounts/{id}/ledger
//	GET    /accounts/{id}/ledger/export
//	POST   /accounts/{id}/reconciliations
//	GET    /accounts/{id}/reconciliations
//	GET    /accounts/{id}/reconciliations/{rid}
//	POST   /accounts/{id}/reconciliations/{rid}/clear
//	POST   /accounts/{id}/reconciliations/{rid}/unclear
//	POST   /accounts/{id}/reconciliations/{rid}/adjustments
//	POST   /accounts/{id}/reconciliations/{rid}/complete
//	POST   /accounts/{id}/reconciliations/{rid}/cancel
//	POST   /accounts/{id}/three-way-reconciliations
//	GET    /accounts/{id}/three-way-reconciliations
func (h *TrustHandler) Handle(ctx context.Context, logger *slog.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	firmID := middleware.GetFirmID(ctx)
	requestID := request.RequestContext.RequestID
	method := request.HTTPMethod
	segments := splitPath(request.Path)

	switch {
	case len(segments) == 1 && segments[0] == "transfers" && method == "POST":
		return h.transfer(ctx, firmID, request)

	case len(segments) == 1 && segments[0] == "accounts":
		switch method {
		case "POST":
			return h.createAccount(ctx, firmID, request)
		case "GET":
			return h.listAccounts(ctx, firmID, requestID)
		}

	case len(segments) >= 2 && segments[0] == "accounts":
		accountID := segments[1]
		rest := segments[2:]

		switch {
		case len(rest) == 0 && method == "GET":
			return h.getAccount(ctx, firmID, accountID, requestID)
		case len(rest) == 1 && rest[0] == "close" && method == "POST":
			return h.closeAccount(ctx, firmID, accountID, request)
		case len(rest) == 1 && rest[0] == "summary" && method == "GET":
			return h.accountSummary(ctx, firmID, accountID, requestID)
		case len(rest) == 1 && rest[0] == "deposits" && method == "POST":
			return h.deposit(ctx, firmID, accountID, request)
		case len(rest) == 1 && rest[0] == "withdrawals" && method == "POST":
			return h.withdraw(ctx, firmID, accountID, request)
		case len(rest) == 1 && rest[0] == "transactions" && method == "GET":
			return h.listTransactions(ctx, firmID, accountID, request)
		case len(rest) == 2 && rest[0] == "transactions" && method == "GET":
			return h.getTransaction(ctx, firmID, accountID, rest[1], requestID)
		case len(rest) == 3 && rest[0] == "transactions" && rest[2] == "void" && method == "POST":
			return h.voidTransaction(ctx, firmID, accountID, rest[1], request)
		case len(rest) == 3 && rest[0] == "transactions" && rest[2] == "clear" && method == "POST":
			return h.markCleared(ctx, firmID, accountID, rest[1], request)
		case len(rest) == 1 && rest[0] == "client-balances" && method == "GET":
			return h.listClientBalances(ctx, firmID, accountID, requestID)
		case len(rest) == 1 && rest[0] == "ledger" && method == "GET":
			return h.clientLedger(ctx, firmID, accountID, request)
		case len(rest) == 2 && rest[0] == "ledger" && rest[1] == "export" && method == "GET":
			return h.exportLedger(ctx, firmID, accountID, request)
		case len(rest) == 1 && rest[0] == "reconciliations" && method == "POST":
			return h.startReconciliation(ctx, firmID, accountID, request)
		case len(rest) == 1 && rest[0] == "reconciliations" && method == "GET":
			return h.listReconciliations(ctx, firmID, accountID, requestID)
		case len(rest) == 2 && rest[0] == "reconciliations" && method == "GET":
			return h.getReconciliation(ctx, firmID, accountID, rest[1], requestID)
		case len(rest) == 3 && rest[0] == "reconciliations" && method == "POST":
			return h.reconciliationAction(ctx, firmID, accountID, rest[1], rest[2], request)
		case len(rest) == 1 && rest[0] == "three-way-reconciliations" && method == "POST":
			return h.runThreeWay(ctx, firmID, accountID, requestID)
		case len(rest) == 1 && rest[0] == "three-way-reconciliations" && method == "GET":
			return h.listThreeWayRuns(ctx, firmID, accountID, request)
		}
	}

	return response.NotFound("endpoint not found"), nil
}

func (h *TrustHandler) createAccount(ctx context.Context, firmID string, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var req account.CreateAccountRequest
	if err := json.Unmarshal([]byte(request.Body), &req); err != nil {
		return response.BadRequest("invalid JSON body", request.RequestContext.RequestID), nil
	}

	acct, err := h.accounts.CreateAccount(ctx, firmID, &req)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return response.Created(acct.ToAPI(), request.RequestContext.RequestID), nil
}

func (h *TrustHandler) listAccounts(ctx context.Context, firmID, requestID string) (events.APIGatewayProxyResponse, error) {
	accounts, err := h.accounts.ListAccounts(ctx, firmID)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	out := make([]account.APIAccount, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.ToAPI())
	}
	return response.OK(out, requestID), nil
}

func (h *TrustHandler) getAccount(ctx context.Context, firmID, accountID, requestID string) (events.APIGatewayProxyResponse, error) {
	acct, err := h.accounts.GetAccount(ctx, firmID, accountID)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return response.OK(acct.ToAPI(), requestID), nil
}

func (h *TrustHandler) closeAccount(ctx context.Context, firmID, accountID string, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var req account.CloseAccountRequest
	if err := json.Unmarshal([]byte(request.Body), &req); err != nil {
		return response.BadRequest("invalid JSON body", request.RequestContext.RequestID), nil
	}

	acct, err := h.accounts.CloseAccount(ctx, firmID, accountID, &req)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return response.OK(acct.ToAPI(), request.RequestContext.RequestID), nil
}

func (h *TrustHandler) accountSummary(ctx context.Context, firmID, accountID, requestID string) (events.APIGatewayProxyResponse, error) {
	summary, err := h.reports.AccountSummary(ctx, firmID, accountID)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return response.OK(summary, requestID), nil
}

func (h *TrustHandler) deposit(ctx context.Context, firmID, accountID string, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var req ledger.DepositRequest
	if err := json.Unmarshal([]byte(request.Body), &req); err != nil {
		return response.BadRequest("invalid JSON body", request.RequestContext.RequestID), nil
	}

	result, err := h.ledger.Deposit(ctx, firmID, accountID, &req)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return movementResponse(result, request.RequestContext.RequestID), nil
}

func (h *TrustHandler) withdraw(ctx context.Context, firmID, accountID string, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var req ledger.WithdrawRequest
	if err := json.Unmarshal([]byte(request.Body), &req); err != nil {
		return response.BadRequest("invalid JSON body", request.RequestContext.RequestID), nil
	}

	result, err := h.ledger.Withdraw(ctx, firmID, accountID, &req)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return movementResponse(result, request.RequestContext.RequestID), nil
}

func (h *TrustHandler) transfer(ctx context.Context, firmID string, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var req ledger.TransferRequest
	if err := json.Unmarshal([]byte(request.Body), &req); err != nil {
		return response.BadRequest("invalid JSON body", request.RequestContext.RequestID), nil
	}

	result, err := h.ledger.Transfer(ctx, firmID, &req)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return movementResponse(result, request.RequestContext.RequestID), nil
}

func (h *TrustHandler) listTransactions(ctx context.Context, firmID, accountID string, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	q := request.QueryStringParameters
	filter := &ledger.TransactionFilter{
		ClientID:  q["clientId"],
		StartDate: q["startDate"],
		EndDate:   q["endDate"],
		Status:    ledger.TransactionStatus(q["status"]),
	}
	if limitStr := q["limit"]; limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			return response.BadRequest("limit must be a non-negative integer", request.RequestContext.RequestID), nil
		}
		filter.Limit = limit
	}

	txns, err := h.ledger.ListTransactions(ctx, firmID, accountID, filter)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	out := make([]ledger.APITransaction, 0, len(txns))
	for _, t := range txns {
		out = append(out, t.ToAPI())
	}
	return response.OK(out, request.RequestContext.RequestID), nil
}

func (h *TrustHandler) getTransaction(ctx context.Context, firmID, accountID, transactionID, requestID string) (events.APIGatewayProxyResponse, error) {
	txn, err := h.ledger.GetTransaction(ctx, firmID, accountID, transactionID)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return response.OK(txn.ToAPI(), requestID), nil
}

func (h *TrustHandler) voidTransaction(ctx context.Context, firmID, accountID, transactionID string, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var req ledger.VoidRequest
	if err := json.Unmarshal([]byte(request.Body), &req); err != nil {
		return response.BadRequest("invalid JSON body", request.RequestContext.RequestID), nil
	}

	result, err := h.ledger.Void(ctx, firmID, accountID, transactionID, &req)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return movementResponse(result, request.RequestContext.RequestID), nil
}

func (h *TrustHandler) markCleared(ctx context.Context, firmID, accountID, transactionID string, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var req ledger.MarkClearedRequest
	if err := json.Unmarshal([]byte(request.Body), &req); err != nil {
		return response.BadRequest("invalid JSON body", request.RequestContext.RequestID), nil
	}

	txn, err := h.ledger.MarkCleared(ctx, firmID, accountID, transactionID, &req)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return response.OK(txn.ToAPI(), request.RequestContext.RequestID), nil
}

func (h *TrustHandler) listClientBalances(ctx context.Context, firmID, accountID, requestID string) (events.APIGatewayProxyResponse, error) {
	balances, err := h.ledger.ListClientBalances(ctx, firmID, accountID)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	out := make([]ledger.APIClientBalance, 0, len(balances))
	for _, b := range balances {
		out = append(out, b.ToAPI())
	}
	return response.OK(out, requestID), nil
}

func (h *TrustHandler) clientLedger(ctx context.Context, firmID, accountID string, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	q := request.QueryStringParameters
	req := &reporting.LedgerRequest{
		ClientID:    q["clientId"],
		CaseID:      q["caseId"],
		PeriodStart: q["periodStart"],
		PeriodEnd:   q["periodEnd"],
	}

	report, err := h.reports.ClientLedger(ctx, firmID, accountID, req)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return response.OK(report, request.RequestContext.RequestID), nil
}

func (h *TrustHandler) exportLedger(ctx context.Context, firmID, accountID string, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	q := request.QueryStringParameters
	req := &reporting.ExportRequest{
		LedgerRequest: reporting.LedgerRequest{
			ClientID:    q["clientId"],
			CaseID:      q["caseId"],
			PeriodStart: q["periodStart"],
			PeriodEnd:   q["periodEnd"],
		},
		Format: reporting.ExportFormat(q["format"]),
	}

	export, err := h.reports.Export(ctx, firmID, accountID, req)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return response.File(export.Body, export.ContentType, export.Filename), nil
}

func (h *TrustHandler) startReconciliation(ctx context.Context, firmID, accountID string, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var req reconciliation.StartRequest
	if err := json.Unmarshal([]byte(request.Body), &req); err != nil {
		return response.BadRequest("invalid JSON body", request.RequestContext.RequestID), nil
	}

	recon, err := h.recons.Start(ctx, firmID, accountID, &req)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return response.Created(recon.ToAPI(), request.RequestContext.RequestID), nil
}

func (h *TrustHandler) listReconciliations(ctx context.Context, firmID, accountID, requestID string) (events.APIGatewayProxyResponse, error) {
	recons, err := h.recons.List(ctx, firmID, accountID)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	out := make([]reconciliation.APIReconciliation, 0, len(recons))
	for _, rec := range recons {
		out = append(out, rec.ToAPI())
	}
	return response.OK(out, requestID), nil
}

func (h *TrustHandler) getReconciliation(ctx context.Context, firmID, accountID, reconciliationID, requestID string) (events.APIGatewayProxyResponse, error) {
	recon, err := h.recons.Get(ctx, firmID, accountID, reconciliationID)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return response.OK(recon.ToAPI(), requestID), nil
}

func (h *TrustHandler) reconciliationAction(ctx context.Context, firmID, accountID, reconciliationID, action string, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	requestID := request.RequestContext.RequestID

	var recon *reconciliation.BankReconciliation
	var err error
	switch action {
	case "clear", "unclear":
		var req reconciliation.ClearRequest
		if jsonErr := json.Unmarshal([]byte(request.Body), &req); jsonErr != nil {
			return response.BadRequest("invalid JSON body", requestID), nil
		}
		if action == "clear" {
			recon, err = h.recons.Clear(ctx, firmID, accountID, reconciliationID, &req)
		} else {
			recon, err = h.recons.Unclear(ctx, firmID, accountID, reconciliationID, &req)
		}
	case "adjustments":
		var req reconciliation.AdjustmentRequest
		if jsonErr := json.Unmarshal([]byte(request.Body), &req); jsonErr != nil {
			return response.BadRequest("invalid JSON body", requestID), nil
		}
		recon, err = h.recons.AddAdjustment(ctx, firmID, accountID, reconciliationID, &req)
	case "complete":
		req := reconciliation.CompleteRequest{}
		if request.Body != "" {
			if jsonErr := json.Unmarshal([]byte(request.Body), &req); jsonErr != nil {
				return response.BadRequest("invalid JSON body", requestID), nil
			}
		}
		recon, err = h.recons.Complete(ctx, firmID, accountID, reconciliationID, &req)
	case "cancel":
		recon, err = h.recons.Cancel(ctx, firmID, accountID, reconciliationID)
	default:
		return response.NotFound("endpoint not found"), nil
	}

	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return response.OK(recon.ToAPI(), requestID), nil
}

func (h *TrustHandler) runThreeWay(ctx context.Context, firmID, accountID, requestID string) (events.APIGatewayProxyResponse, error) {
	run, err := h.recons.RunThreeWay(ctx, firmID, accountID)
	if err != nil {
		// Discrepant runs are persisted and returned alongside the typed
		// failure; the caller gets the error envelope with the run attached.
		if run != nil {
			if appErr, ok := err.(errors.AppError); ok {
				return response.Error(appErr.WithDetail("run", run.ToAPI()), requestID), nil
			}
		}
		return events.APIGatewayProxyResponse{}, err
	}
	return response.OK(run.ToAPI(), requestID), nil
}

func (h *TrustHandler) listThreeWayRuns(ctx context.Context, firmID, accountID string, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	limit := 0
	if limitStr := request.QueryStringParameters["limit"]; limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			return response.BadRequest("limit must be a non-negative integer", request.RequestContext.RequestID), nil
		}
		limit = parsed
	}

	runs, err := h.recons.ListThreeWayRuns(ctx, firmID, accountID, limit)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	out := make([]reconciliation.APIThreeWayRun, 0, len(runs))
	for _, run := range runs {
		out = append(out, run.ToAPI())
	}
	return response.OK(out, request.RequestContext.RequestID), nil
}

// movementResponse renders a movement result: replays answer 200 with the
// original transactions, fresh applications answer 201.
func movementResponse(result *ledger.MovementResult, requestID string) events.APIGatewayProxyResponse {
	out := make([]ledger.APITransaction, 0, len(result.Transactions))
	for _, t := range result.Transactions {
		out = append(out, t.ToAPI())
	}
	payload := map[string]interface{}{
		"transactions": out,
		"replayed":     result.Replayed,
	}
	if result.Replayed {
		return response.OK(payload, requestID)
	}
	return response.Created(payload, requestID)
}

func splitPath(path string) []string {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}
