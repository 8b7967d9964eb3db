package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fastprodman/transfersaga/internal/apperr"
	"github.com/fastprodman/transfersaga/internal/money"
	"github.com/fastprodman/transfersaga/internal/repos/accounts"
	"github.com/fastprodman/transfersaga/internal/repos/history"
	"github.com/fastprodman/transfersaga/internal/services/ledger"
	"github.com/fastprodman/transfersaga/internal/services/saga"
)

const maxBodyBytes = 1 << 20

type Ledger interface {
	CreateAccount(ctx context.Context, initialMinor, scale int64) (accounts.Account, error)
	GetBalance(ctx context.Context, id uuid.UUID) (ledger.Balance, error)
	Deactivate(ctx context.Context, id uuid.UUID) (accounts.Account, error)
	History(ctx context.Context, id uuid.UUID) ([]history.Entry, error)
}

type Transfers interface {
	Initiate(ctx context.Context, amount decimal.Decimal, from, to uuid.UUID) (saga.Saga, error)
	Get(ctx context.Context, id uuid.UUID) (saga.Saga, error)
	Resume(ctx context.Context, id uuid.UUID) (saga.Saga, error)
}

// HandlerProvider exposes the ledger and the transfer coordinator over HTTP.
type HandlerProvider struct {
	ledger    Ledger
	transfers Transfers
	validate  *validator.Validate
}

func NewHandler(l Ledger, t Transfers) *HandlerProvider {
	return &HandlerProvider{ledger: l, transfers: t, validate: newValidator()}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps the error taxonomy to a status. Infrastructure
// errors are logged and hidden behind a generic message.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.CodeOf(err)

	var status int

	switch code {
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeInvalidRequest:
		status = http.StatusBadRequest
	case apperr.CodeInvalidState, apperr.CodeInsufficientFunds:
		status = http.StatusConflict
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")

		return
	}

	writeJSON(w, status, map[string]string{"error": err.Error(), "code": string(code)})
}

func parseIDFromPath(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	if raw == "" {
		return uuid.Nil, errors.New("missing id")
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id: %w", err)
	}

	return id, nil
}

// decodeBody reads a single JSON object into dst and validates it.
func (h *HandlerProvider) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "empty body")
			return false
		}

		writeError(w, http.StatusBadRequest, "invalid JSON")

		return false
	}

	err = h.validate.Struct(dst)
	if err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}

	return true
}

// --- Payloads ---

type createAccountRequest struct {
	Balance *int64 `json:"balance" validate:"required,min=0"`
	Scale   int64  `json:"scale"   validate:"required,min=1"`
}

type accountResponse struct {
	ID           uuid.UUID `json:"id"`
	Balance      string    `json:"balance"`
	BalanceMinor int64     `json:"balanceMinor"`
	Scale        int64     `json:"scale"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toAccountResponse(a accounts.Account) accountResponse {
	return accountResponse{
		ID:           a.ID,
		Balance:      money.Format(a.BalanceMinor, a.Scale),
		BalanceMinor: a.BalanceMinor,
		Scale:        a.Scale,
		Status:       string(a.Status),
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

type historyEntryResponse struct {
	TransactionID uuid.UUID `json:"transactionId"`
	Kind          string    `json:"kind"`
	AmountMinor   int64     `json:"amountMinor"`
	IsRefund      bool      `json:"isRefund"`
	CreatedAt     time.Time `json:"createdAt"`
}

type transferRequest struct {
	Amount      string `json:"amount"      validate:"required,positive_amount"`
	AccountFrom string `json:"accountFrom" validate:"required,uuid"`
	AccountTo   string `json:"accountTo"   validate:"required,uuid"`
}

type transferResponse struct {
	ID                uuid.UUID `json:"id"`
	Amount            string    `json:"amount"`
	AccountFrom       uuid.UUID `json:"accountFrom"`
	AccountTo         uuid.UUID `json:"accountTo"`
	Status            string    `json:"status"`
	AccountFromStatus string    `json:"accountFromStatus"`
	AccountToStatus   string    `json:"accountToStatus"`
	Error             string    `json:"error,omitempty"`
	Manual            bool      `json:"manual"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func toTransferResponse(s saga.Saga) transferResponse {
	return transferResponse{
		ID:                s.ID,
		Amount:            s.Amount.String(),
		AccountFrom:       s.AccountFrom,
		AccountTo:         s.AccountTo,
		Status:            string(s.Status()),
		AccountFromStatus: string(s.From),
		AccountToStatus:   string(s.To),
		Error:             s.Error,
		Manual:            s.Manual,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

// --- Account handlers ---

// CreateAccountHandler handles POST /accounts
func (h *HandlerProvider) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	acc, err := h.ledger.CreateAccount(r.Context(), *req.Balance, req.Scale)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAccountResponse(acc))
}

// DeactivateAccountHandler handles POST /accounts/{id}/inactive
func (h *HandlerProvider) DeactivateAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id in path")
		return
	}

	acc, err := h.ledger.Deactivate(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(acc))
}

// GetBalanceHandler handles GET /accounts/{id}/balance
func (h *HandlerProvider) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id in path")
		return
	}

	bal, err := h.ledger.GetBalance(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accountId": bal.AccountID,
		"balance":   bal.String(),
	})
}

// HistoryHandler handles GET /accounts/{id}/history
func (h *HandlerProvider) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id in path")
		return
	}

	entries, err := h.ledger.History(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]historyEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntryResponse{
			TransactionID: e.TransactionID,
			Kind:          string(e.Kind),
			AmountMinor:   e.AmountMinor,
			IsRefund:      e.IsRefund,
			CreatedAt:     e.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"accountId": id, "entries": out})
}

// --- Transfer handlers ---

// InitiateTransferHandler handles POST /transfers. The transfer runs
// asynchronously; the response carries the saga to poll.
func (h *HandlerProvider) InitiateTransferHandler(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	// validated above
	amount := decimal.RequireFromString(req.Amount)
	from := uuid.MustParse(req.AccountFrom)
	to := uuid.MustParse(req.AccountTo)

	s, err := h.transfers.Initiate(r.Context(), amount, from, to)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Location", "/transfers/"+s.ID.String())
	writeJSON(w, http.StatusAccepted, toTransferResponse(s))
}

// GetTransferHandler handles GET /transfers/{id}
func (h *HandlerProvider) GetTransferHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transfer id in path")
		return
	}

	s, err := h.transfers.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransferResponse(s))
}

// ResumeTransferHandler handles POST /transfers/{id}/resume
func (h *HandlerProvider) ResumeTransferHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transfer id in path")
		return
	}

	s, err := h.transfers.Resume(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, toTransferResponse(s))
}
