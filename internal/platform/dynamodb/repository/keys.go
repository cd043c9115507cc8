package repository

import "fmt"

// Single-table key layout. Accounts hang off the firm partition; everything
// scoped to one account (transactions, client balances, idempotency records,
// reconciliations) shares the account partition so an atomic movement never
// crosses partitions it does not have to.
//
//	FIRM#<firmID>                         / TRUSTACCT#<accountID>
//	FIRM#<firmID>#TRUSTACCT#<accountID>   / TXN#<ulid>
//	FIRM#<firmID>#TRUSTACCT#<accountID>   / CLIENTBAL#<clientID>[#CASE#<caseID>]
//	FIRM#<firmID>#TRUSTACCT#<accountID>   / IDEM#<key>
//	FIRM#<firmID>#TRUSTACCT#<accountID>   / RECON#<ulid>
//	FIRM#<firmID>#TRUSTACCT#<accountID>   / THREEWAY#<ulid>
//	FIRM#<firmID>#TRUSTACCT#<accountID>   / RECONLOCK

const (
	txnPrefix       = "TXN#"
	clientBalPrefix = "CLIENTBAL#"
	idemPrefix      = "IDEM#"
	reconPrefix     = "RECON#"
	threeWayPrefix  = "THREEWAY#"
	reconLockSK     = "RECONLOCK"
)

func firmPK(firmID string) string {
	return fmt.Sprintf("FIRM#%s", firmID)
}

func accountSK(accountID string) string {
	return fmt.Sprintf("TRUSTACCT#%s", accountID)
}

func accountPK(firmID, accountID string) string {
	return fmt.Sprintf("FIRM#%s#TRUSTACCT#%s", firmID, accountID)
}

func txnSK(transactionID string) string {
	return txnPrefix + transactionID
}

func clientBalSK(clientID, caseID string) string {
	if caseID != "" {
		return fmt.Sprintf("%s%s#CASE#%s", clientBalPrefix, clientID, caseID)
	}
	return clientBalPrefix + clientID
}

func idemSK(key string) string {
	return idemPrefix + key
}

func reconSK(reconciliationID string) string {
	return reconPrefix + reconciliationID
}

func threeWaySK(runID string) string {
	return threeWayPrefix + runID
}
