/*
handlers.go - HTTP endpoint implementations

PURPOSE:
  Translates HTTP requests into ledger.Request/query.Service calls and back.
  Owns wallet auto-creation (a destination wallet is resolved before the
  request ever reaches the core), amount parsing, and the Kind-to-HTTP-status
  error mapping.

SEE ALSO:
  dto.go:    wire types
  server.go: route wiring
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/wallet-ledger/internal/ledger"
	"github.com/warp/wallet-ledger/internal/query"
)

// executor is the subset of *ledger.Executor (or an
// *observability.InstrumentedExecutor wrapping one) this package depends on.
type executor interface {
	Execute(ctx context.Context, req ledger.Request) (ledger.Result, error)
}

// systemWallet names the fixed treasury/revenue counterparty for a write
// endpoint. Topups move funds in from TREASURY, bonuses from REVENUE, and
// purchases move funds out to REVENUE.
type systemWallet struct {
	ownerID   string
	ownerType ledger.OwnerType
}

// Handler owns the collaborators every endpoint needs.
type Handler struct {
	executor executor
	query    *query.Service

	treasury systemWallet
	revenue  systemWallet
}

// NewHandler builds a Handler. treasuryOwnerID and revenueOwnerID identify
// the fixed system wallet owners a deployment seeds up front (see
// cmd/seed); every topup credits from the treasury wallet and every
// bonus/purchase moves funds against the revenue wallet.
func NewHandler(exec executor, q *query.Service, treasuryOwnerID, revenueOwnerID string) *Handler {
	return &Handler{
		executor: exec,
		query:    q,
		treasury: systemWallet{ownerID: treasuryOwnerID, ownerType: ledger.OwnerSystem},
		revenue:  systemWallet{ownerID: revenueOwnerID, ownerType: ledger.OwnerSystem},
	}
}

// Topup credits a user's wallet from the treasury, auto-creating the user's
// wallet on first use.
// POST /api/v1/wallet/topup
func (h *Handler) Topup(w http.ResponseWriter, r *http.Request) {
	h.writeOperation(w, r, ledger.TxTopup, h.treasury, true)
}

// Bonus credits a user's wallet from revenue (promotional grants), auto-
// creating the user's wallet on first use.
// POST /api/v1/wallet/bonus
func (h *Handler) Bonus(w http.ResponseWriter, r *http.Request) {
	h.writeOperation(w, r, ledger.TxBonus, h.revenue, true)
}

// Spend debits a user's wallet into revenue (a purchase). The user's wallet
// must already exist — a purchase against a wallet that has never received
// funds is a domain failure (insufficient balance / not found), not an
// auto-creation opportunity.
// POST /api/v1/wallet/spend
func (h *Handler) Spend(w http.ResponseWriter, r *http.Request) {
	h.writeOperation(w, r, ledger.TxPurchase, h.revenue, false)
}

// writeOperation implements the shared shape of all three write endpoints:
// decode the body, resolve (and optionally create) the user's wallet,
// build a balanced Operation between the user and the system counterparty,
// and execute it. counterpartyCreditsUser controls which side of the
// Operation the user sits on: true for topup/bonus (system -> user), false
// for spend (user -> system).
func (h *Handler) writeOperation(w http.ResponseWriter, r *http.Request, txType ledger.TransactionType, counterparty systemWallet, counterpartyCreditsUser bool) {
	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		writeError(w, http.StatusBadRequest, "Idempotency-Key header is required", nil)
		return
	}

	var req WriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.UserID == "" || req.AssetTypeID == "" {
		writeError(w, http.StatusBadRequest, "userId and assetTypeId are required", nil)
		return
	}

	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err)
		return
	}

	ctx := r.Context()

	systemWalletID := systemWalletID(counterparty, req.AssetTypeID)
	userWallet, err := h.resolveUserWallet(ctx, req.UserID, req.AssetTypeID, counterpartyCreditsUser)
	if err != nil {
		if errors.Is(err, errUserWalletNotFound) {
			writeError(w, http.StatusNotFound, "user wallet not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to resolve user wallet", err)
		return
	}

	op := ledger.Operation{
		AssetTypeID: req.AssetTypeID,
		Amount:      amount,
		Description: string(txType),
	}
	if counterpartyCreditsUser {
		op.FromWalletID = systemWalletID
		op.ToWalletID = userWallet.ID
	} else {
		op.FromWalletID = userWallet.ID
		op.ToWalletID = systemWalletID
	}

	result, err := h.executor.Execute(ctx, ledger.Request{
		Type:           txType,
		Operation:      op,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		writeExecError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionView(result))
}

var errUserWalletNotFound = errors.New("user wallet not found")

// systemWalletID derives the fixed wallet id for a system owner + asset
// type pair. System wallets are seeded ahead of time (cmd/seed) under this
// same naming convention, so resolution here never needs a lookup.
func systemWalletID(sw systemWallet, assetTypeID string) string {
	return sw.ownerID + ":" + assetTypeID
}

// resolveUserWallet finds the user's wallet for assetTypeID, creating it
// when allowed (topup/bonus) and returning errUserWalletNotFound otherwise
// (spend against a wallet that has never received funds).
func (h *Handler) resolveUserWallet(ctx context.Context, userID, assetTypeID string, createIfAbsent bool) (ledger.Wallet, error) {
	if !createIfAbsent {
		view, ok, err := h.query.Balance(ctx, userWalletID(userID, assetTypeID))
		if err != nil {
			return ledger.Wallet{}, err
		}
		if !ok {
			return ledger.Wallet{}, errUserWalletNotFound
		}
		return ledger.Wallet{ID: view.WalletID, AssetTypeID: view.AssetTypeID, Balance: view.Balance, Version: view.Version}, nil
	}

	return h.query.ResolveOrCreateWallet(ctx, userID, ledger.OwnerUser, assetTypeID, userWalletID(userID, assetTypeID))
}

func userWalletID(userID, assetTypeID string) string {
	return userID + ":" + assetTypeID
}

// Balance serves GET /api/v1/wallet/{userId}/balance.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	assetTypeID := r.URL.Query().Get("assetTypeId")
	if assetTypeID == "" {
		writeError(w, http.StatusBadRequest, "assetTypeId query parameter is required", nil)
		return
	}

	view, ok, err := h.query.Balance(r.Context(), userWalletID(userID, assetTypeID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read balance", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "wallet not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Ledger serves GET /api/v1/wallet/{userId}/ledger.
func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	assetTypeID := r.URL.Query().Get("assetTypeId")
	if assetTypeID == "" {
		writeError(w, http.StatusBadRequest, "assetTypeId query parameter is required", nil)
		return
	}

	entryType := ledger.EntryType(r.URL.Query().Get("entryType"))
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
	var before *string
	if b := r.URL.Query().Get("before"); b != "" {
		before = &b
	}

	page, err := h.query.Ledger(r.Context(), userWalletID(userID, assetTypeID), entryType, limit, before)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerView(page))
}

// Stats serves GET /api/v1/wallet/{userId}/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	assetTypeID := r.URL.Query().Get("assetTypeId")
	if assetTypeID == "" {
		writeError(w, http.StatusBadRequest, "assetTypeId query parameter is required", nil)
		return
	}

	stats, err := h.query.Stats(r.Context(), userWalletID(userID, assetTypeID), assetTypeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read stats", err)
		return
	}
	writeJSON(w, http.StatusOK, StatsView{
		WalletID:         stats.WalletID,
		TotalCredited:    stats.TotalCredited.String(),
		TotalDebited:     stats.TotalDebited.String(),
		TransactionCount: stats.TransactionCount,
	})
}

func toTransactionView(result ledger.Result) TransactionView {
	return TransactionView{
		TransactionID: result.TransactionID,
		Status:        string(result.Status),
		FromBalance:   result.FromBalance,
		ToBalance:     result.ToBalance,
		Error:         result.Error,
	}
}

func toLedgerView(page query.LedgerPage) LedgerView {
	entries := make([]LedgerEntryView, 0, len(page.Entries))
	for _, e := range page.Entries {
		entries = append(entries, LedgerEntryView{
			ID:                   e.ID,
			TransactionID:        e.TransactionID,
			EntryType:            string(e.EntryType),
			Amount:               e.Amount.String(),
			RunningBalance:       e.RunningBalance.String(),
			CounterpartyWalletID: e.CounterpartyWalletID,
			Description:          e.Description,
			CreatedAt:            e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	return LedgerView{Entries: entries, HasMore: page.HasMore}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	if n == 0 {
		return def
	}
	return n
}

// writeExecError maps an Execute error to an HTTP response. A *ledger.
// DomainError maps by Kind; anything else is an infrastructure failure.
func writeExecError(w http.ResponseWriter, err error) {
	var de *ledger.DomainError
	if errors.As(err, &de) {
		writeJSON(w, statusForKind(de.Kind), ErrorResponse{Error: de.Error(), Code: string(de.Kind)})
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error", err)
}

func statusForKind(kind ledger.Kind) int {
	switch kind {
	case ledger.KindInsufficientBalance:
		return http.StatusUnprocessableEntity
	case ledger.KindSourceWalletNotFound, ledger.KindDestinationWalletNotFound:
		return http.StatusNotFound
	case ledger.KindConcurrentModSource, ledger.KindConcurrentModDestination, ledger.KindLockUnavailable:
		return http.StatusConflict
	case ledger.KindRequestAlreadyProcessing:
		return http.StatusConflict
	case ledger.KindIdempotencyKeyRequired, ledger.KindInvalidAmount:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
