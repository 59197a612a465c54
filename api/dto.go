/*
dto.go - HTTP wire types for the wallet transaction façade

PURPOSE:
  Request/response shapes for the three write endpoints (topup, bonus,
  spend) and the three read endpoints (balance, ledger, stats). None of
  these types cross into internal/ledger — handlers.go translates between
  them and ledger.Request/ledger.Result.

NAMING CONVENTION:
  *Request for request bodies, *View for response bodies, matching the
  existing query.BalanceView convention.

SEE ALSO:
  handlers.go: the endpoints that (de)serialize these
*/
package api

// WriteRequest is the shared body shape for topup/bonus/spend.
type WriteRequest struct {
	UserID      string            `json:"userId"`
	AssetTypeID string            `json:"assetTypeId"`
	Amount      string            `json:"amount"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// TransactionView is the wire shape of an executed (or replayed) transaction.
type TransactionView struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	FromBalance   string `json:"fromBalance,omitempty"`
	ToBalance     string `json:"toBalance"`
	Error         string `json:"error,omitempty"`
}

// LedgerEntryView is one row of GET .../ledger.
type LedgerEntryView struct {
	ID                   string `json:"id"`
	TransactionID        string `json:"transactionId"`
	EntryType            string `json:"entryType"`
	Amount               string `json:"amount"`
	RunningBalance       string `json:"runningBalance"`
	CounterpartyWalletID string `json:"counterpartyWalletId,omitempty"`
	Description          string `json:"description,omitempty"`
	CreatedAt            string `json:"createdAt"`
}

// LedgerView is the paginated response for GET .../ledger.
type LedgerView struct {
	Entries []LedgerEntryView `json:"entries"`
	HasMore bool              `json:"hasMore"`
}

// StatsView is the response for GET .../stats.
type StatsView struct {
	WalletID         string `json:"walletId"`
	TotalCredited    string `json:"totalCredited"`
	TotalDebited     string `json:"totalDebited"`
	TransactionCount int64  `json:"transactionCount"`
}

// ErrorResponse is the uniform error body for every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
