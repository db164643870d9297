package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/harborpay/transaction-service/internal/models"
	service "github.com/harborpay/transaction-service/internal/services"
	pkgerrors "github.com/harborpay/transaction-service/pkg/errors"
	"github.com/shopspring/decimal"
)

type Handler struct {
	service service.TransactionService
	loc     *time.Location
}

func NewHandler(s service.TransactionService, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{service: s, loc: loc}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error(), Code: pkgerrors.Code(err)})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pkgerrors.ErrInvalidPIN):
		return http.StatusUnauthorized
	case errors.Is(err, pkgerrors.ErrAccountNotFound),
		errors.Is(err, pkgerrors.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, pkgerrors.ErrIdempotencyConflict):
		return http.StatusConflict
	case errors.Is(err, pkgerrors.ErrInvalidAmount),
		errors.Is(err, pkgerrors.ErrInsufficientFunds),
		errors.Is(err, pkgerrors.ErrSameAccountTransfer),
		errors.Is(err, pkgerrors.ErrTransferLimitExceeded),
		errors.Is(err, pkgerrors.ErrDailyCountExceeded),
		errors.Is(err, pkgerrors.ErrAccountNotActive),
		errors.Is(err, pkgerrors.ErrIdempotencyKeyRequired):
		return http.StatusBadRequest
	case errors.Is(err, pkgerrors.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RegisterMoneyRoutes wires the mutating endpoints; these sit behind auth.
func (h *Handler) RegisterMoneyRoutes(r *mux.Router) {
	r.HandleFunc("/deposits", h.Deposit).Methods("POST")
	r.HandleFunc("/withdrawals", h.Withdraw).Methods("POST")
	r.HandleFunc("/transfers", h.Transfer).Methods("POST")
}

// RegisterQueryRoutes wires the read-side endpoints.
func (h *Handler) RegisterQueryRoutes(r *mux.Router) {
	r.HandleFunc("/transfer-limits/check", h.CheckTransferLimit).Methods("POST")
	r.HandleFunc("/transfer-limits/{account_number}", h.GetTransferLimits).Methods("GET")
	r.HandleFunc("/transaction-logs/transaction/{reference_id}", h.GetLogsByTransaction).Methods("GET")
	r.HandleFunc("/transaction-logs/file/{date}", h.GetDayFile).Methods("GET")
	r.HandleFunc("/transaction-logs/{account_number}/summary", h.GetLogSummary).Methods("GET")
	r.HandleFunc("/transaction-logs/{account_number}", h.GetTransactionLogs).Methods("GET")
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req service.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body", Code: "BAD_REQUEST"})
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	result, err := h.service.Deposit(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req service.WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body", Code: "BAD_REQUEST"})
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	result, err := h.service.Withdraw(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req service.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body", Code: "BAD_REQUEST"})
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	result, err := h.service.Transfer(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) GetTransferLimits(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account_number"]
	status, err := h.service.GetTransferLimits(r.Context(), account)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) CheckTransferLimit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountNumber string          `json:"account_number"`
		Amount        decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body", Code: "BAD_REQUEST"})
		return
	}

	decision, err := h.service.CheckTransferLimit(r.Context(), req.AccountNumber, req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, decision)
}

func (h *Handler) GetTransactionLogs(w http.ResponseWriter, r *http.Request) {
	filter := models.TransactionFilter{Account: mux.Vars(r)["account_number"]}

	q := r.URL.Query()
	if v := q.Get("skip"); v != "" {
		filter.Skip, _ = strconv.Atoi(v)
	}
	if v := q.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if t, ok := h.parseDate(q.Get("start_date")); ok {
		filter.StartDate = &t
	}
	if t, ok := h.parseDate(q.Get("end_date")); ok {
		end := t.AddDate(0, 0, 1) // end_date is inclusive
		filter.EndDate = &end
	}

	entries, err := h.service.GetTransactionLogs(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []models.AuditLogEntry{}
	}
	h.writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) GetLogsByTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["reference_id"], 10, 64)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid reference id", Code: "BAD_REQUEST"})
		return
	}

	entries, err := h.service.GetLogsByTransaction(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []models.AuditLogEntry{}
	}
	h.writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) GetLogSummary(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account_number"]
	q := r.URL.Query()

	from, ok := h.parseDate(q.Get("start_date"))
	if !ok {
		from = time.Now().In(h.loc).AddDate(0, -1, 0)
	}
	to, ok := h.parseDate(q.Get("end_date"))
	if !ok {
		to = time.Now().In(h.loc)
	}

	summary, err := h.service.GetLogSummary(r.Context(), account, from, to.AddDate(0, 0, 1))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) GetDayFile(w http.ResponseWriter, r *http.Request) {
	date, ok := h.parseDate(mux.Vars(r)["date"])
	if !ok {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid date, want YYYY-MM-DD", Code: "BAD_REQUEST"})
		return
	}

	lines, err := h.service.GetDayFileLines(date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if lines == nil {
		lines = []string{}
	}
	h.writeJSON(w, http.StatusOK, map[string][]string{"lines": lines})
}

func (h *Handler) parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("2006-01-02", s, h.loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
