/*
handlers.go - HTTP API handlers for the savings and loan engines

PURPOSE:
  Exposes the Caisse Spéciale (savings) and Crédit Spéciale (loan) engines
  via REST API. Handles HTTP request/response, JSON serialization, and
  delegates to savings.Service and credit.Service.

ENDPOINTS:
  Reference data:
    GET    /api/statuses                         Status metadata tables
    GET    /api/rates                            Rate schedule versions

  Savings:
    GET    /api/savings                          List contracts
    POST   /api/savings                          Create contract (DRAFT)
    GET    /api/savings/{id}                     Contract with obligations
    PUT    /api/savings/{id}/terms               Amend terms (schedule not locked)
    POST   /api/savings/{id}/activate            DRAFT -> ACTIVE
    POST   /api/savings/{id}/contributions       Record a contribution
    POST   /api/savings/{id}/recompute           Derive status at now
    GET    /api/savings/{id}/final-refund        Final refund amount
    GET    /api/savings/{id}/early-exit          Early-exit quote
    POST   /api/savings/{id}/early-withdraw      Open an EARLY refund case
    POST   /api/savings/{id}/refund/approve      PENDING -> APPROVED
    POST   /api/savings/{id}/refund/pay          APPROVED -> PAID
    POST   /api/savings/{id}/rescind             Confirm rescission after default
    POST   /api/savings/{id}/reinstate           Lift a default once paid
    POST   /api/savings/{id}/reopen              RESCINDED -> DRAFT
    GET    /api/savings/{id}/journal             Money movements

  Loans: see loans.go

  Admin:
    POST   /api/admin/sweep                      Run the lateness sweep now

  Scenarios: see scenarios.go

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid terms, amount or body
  - 404: Contract not found
  - 409: Not eligible in current status, duplicate idempotency key,
         concurrent modification, schedule locked
  - 422: Overpayment rejected (names the obligation/installment)
  - 503: Rate configuration missing
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. Actor fields are trusted as sent.

SEE ALSO:
  - dto.go: Request/response data structures
  - loans.go: Loan handlers
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/entraide/caisse-engine/credit"
	"github.com/entraide/caisse-engine/factory"
	"github.com/entraide/caisse-engine/generic"
	"github.com/entraide/caisse-engine/savings"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     generic.DocumentStore
	Rates     *generic.RateBook
	Factory   *factory.Factory
	Publisher generic.Publisher
	Savings   *savings.Service
	Credit    *credit.Service
	Sweep     *LatenessSweep

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires both services over one store and rate book.
func NewHandler(store generic.DocumentStore, rates *generic.RateBook, clock generic.Clock, publisher generic.Publisher) *Handler {
	if publisher == nil {
		publisher = generic.NoopPublisher{}
	}
	h := &Handler{
		Store:     store,
		Rates:     rates,
		Factory:   factory.NewFactory(),
		Publisher: publisher,
		Savings:   savings.NewService(store, rates, clock, publisher),
		Credit:    credit.NewService(store, rates, clock, publisher),
	}
	h.Sweep = NewLatenessSweep(h.Savings, h.Credit)
	return h
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

// ListStatuses returns the status metadata tables.
// GET /api/statuses
func (h *Handler) ListStatuses(w http.ResponseWriter, r *http.Request) {
	installments := []credit.InstallmentStatus{
		credit.InstallmentPending, credit.InstallmentDue, credit.InstallmentPartial,
		credit.InstallmentPaid, credit.InstallmentOverdue,
	}
	dto := StatusesDTO{Savings: savings.Statuses(), Loans: credit.Statuses()}
	for _, s := range installments {
		dto.Installments = append(dto.Installments, InstallmentStatusDTO{Status: s, Label: s.Label()})
	}
	writeJSON(w, http.StatusOK, dto)
}

// ListRates returns every rate schedule version.
// GET /api/rates
func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"schedules": h.Rates.Schedules()})
}

// =============================================================================
// SAVINGS HANDLERS
// =============================================================================

// ListSavings returns all savings contracts.
// GET /api/savings
func (h *Handler) ListSavings(w http.ResponseWriter, r *http.Request) {
	contracts, err := h.Savings.List(r.Context())
	if err != nil {
		writeServiceError(w, "Failed to list savings contracts", err)
		return
	}
	dtos := make([]SavingsContractDTO, 0, len(contracts))
	for _, c := range contracts {
		dtos = append(dtos, toSavingsDTO(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"contracts": dtos})
}

// CreateSavings creates a DRAFT contract.
// POST /api/savings
func (h *Handler) CreateSavings(w http.ResponseWriter, r *http.Request) {
	var req factory.SavingsTermsJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	terms, err := h.Factory.SavingsTerms(req)
	if err != nil {
		writeServiceError(w, "Invalid savings terms", err)
		return
	}
	c, err := h.Savings.Create(r.Context(), terms, r.Header.Get("X-Actor"))
	if err != nil {
		writeServiceError(w, "Failed to create savings contract", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSavingsDTO(c))
}

// GetSavings returns one contract.
// GET /api/savings/{id}
func (h *Handler) GetSavings(w http.ResponseWriter, r *http.Request) {
	c, err := h.Savings.Get(r.Context(), contractID(r))
	if err != nil {
		writeServiceError(w, "Failed to get savings contract", err)
		return
	}
	writeJSON(w, http.StatusOK, toSavingsDTO(c))
}

// AmendSavingsTerms replaces the terms while the schedule is not locked.
// PUT /api/savings/{id}/terms
func (h *Handler) AmendSavingsTerms(w http.ResponseWriter, r *http.Request) {
	var req factory.SavingsTermsJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	terms, err := h.Factory.SavingsTerms(req)
	if err != nil {
		writeServiceError(w, "Invalid savings terms", err)
		return
	}
	h.respondSavings(w, r, "Failed to amend terms", func(id generic.ContractID) (*savings.Contract, error) {
		return h.Savings.AmendTerms(r.Context(), id, terms)
	})
}

// ActivateSavings generates the schedule.
// POST /api/savings/{id}/activate
func (h *Handler) ActivateSavings(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondSavings(w, r, "Failed to activate contract", func(id generic.ContractID) (*savings.Contract, error) {
		return h.Savings.Activate(r.Context(), id, req.Actor)
	})
}

// RecordContribution records a contribution.
// POST /api/savings/{id}/contributions
func (h *Handler) RecordContribution(w http.ResponseWriter, r *http.Request) {
	var req ContributionRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := savings.ContributionInput{ObligationIndex: req.ObligationIndex, Contribution: req.contribution()}
	h.respondSavings(w, r, "Failed to record contribution", func(id generic.ContractID) (*savings.Contract, error) {
		return h.Savings.RecordContribution(r.Context(), id, in)
	})
}

// RecomputeSavings derives the status at now.
// POST /api/savings/{id}/recompute
func (h *Handler) RecomputeSavings(w http.ResponseWriter, r *http.Request) {
	h.respondSavings(w, r, "Failed to recompute contract", func(id generic.ContractID) (*savings.Contract, error) {
		return h.Savings.Recompute(r.Context(), id)
	})
}

// GetFinalRefund returns paidPrincipalTotal + bonusAccrued.
// GET /api/savings/{id}/final-refund
func (h *Handler) GetFinalRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := contractID(r)
	amount, err := h.Savings.FinalRefund(ctx, id)
	if err != nil {
		writeServiceError(w, "Failed to compute final refund", err)
		return
	}
	c, err := h.Savings.Get(ctx, id)
	if err != nil {
		writeServiceError(w, "Failed to get savings contract", err)
		return
	}
	writeJSON(w, http.StatusOK, FinalRefundDTO{
		ContractID:    id,
		PaidPrincipal: c.PaidPrincipalTotal,
		BonusAccrued:  c.BonusAccrued,
		Amount:        amount,
	})
}

// QuoteSavingsEarlyExit returns the early-exit quote.
// GET /api/savings/{id}/early-exit
func (h *Handler) QuoteSavingsEarlyExit(w http.ResponseWriter, r *http.Request) {
	quote, err := h.Savings.QuoteEarlyExit(r.Context(), contractID(r))
	if err != nil {
		writeServiceError(w, "Failed to quote early exit", err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// RequestEarlyWithdraw opens an EARLY refund case.
// POST /api/savings/{id}/early-withdraw
func (h *Handler) RequestEarlyWithdraw(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondSavings(w, r, "Failed to request early withdraw", func(id generic.ContractID) (*savings.Contract, error) {
		return h.Savings.RequestEarlyWithdraw(r.Context(), id, req.Actor)
	})
}

// ApproveRefund approves the open refund case.
// POST /api/savings/{id}/refund/approve
func (h *Handler) ApproveRefund(w http.ResponseWriter, r *http.Request) {
	var req ApproveRefundRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondSavings(w, r, "Failed to approve refund", func(id generic.ContractID) (*savings.Contract, error) {
		return h.Savings.ApproveRefund(r.Context(), id, req.ApproverID)
	})
}

// PayRefund records the refund payment.
// POST /api/savings/{id}/refund/pay
func (h *Handler) PayRefund(w http.ResponseWriter, r *http.Request) {
	var req PayRefundRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondSavings(w, r, "Failed to pay refund", func(id generic.ContractID) (*savings.Contract, error) {
		return h.Savings.PayRefund(r.Context(), id, req.PaymentRef, req.Actor)
	})
}

// ConfirmRescission confirms a default.
// POST /api/savings/{id}/rescind
func (h *Handler) ConfirmRescission(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondSavings(w, r, "Failed to rescind contract", func(id generic.ContractID) (*savings.Contract, error) {
		return h.Savings.ConfirmRescission(r.Context(), id, req.Actor, req.Reason)
	})
}

// Reinstate lifts a default.
// POST /api/savings/{id}/reinstate
func (h *Handler) Reinstate(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondSavings(w, r, "Failed to reinstate contract", func(id generic.ContractID) (*savings.Contract, error) {
		return h.Savings.Reinstate(r.Context(), id, req.Actor)
	})
}

// Reopen returns a rescinded contract to DRAFT.
// POST /api/savings/{id}/reopen
func (h *Handler) Reopen(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondSavings(w, r, "Failed to reopen contract", func(id generic.ContractID) (*savings.Contract, error) {
		return h.Savings.Reopen(r.Context(), id, req.Actor)
	})
}

// GetSavingsJournal lists money movements.
// GET /api/savings/{id}/journal
func (h *Handler) GetSavingsJournal(w http.ResponseWriter, r *http.Request) {
	id := contractID(r)
	entries, err := h.Savings.Journal(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to get journal", err)
		return
	}
	writeJSON(w, http.StatusOK, journalDTO(id, entries))
}

func (h *Handler) respondSavings(w http.ResponseWriter, r *http.Request, message string, fn func(generic.ContractID) (*savings.Contract, error)) {
	c, err := fn(contractID(r))
	if err != nil {
		writeServiceError(w, message, err)
		return
	}
	writeJSON(w, http.StatusOK, toSavingsDTO(c))
}

// =============================================================================
// ADMIN
// =============================================================================

// TriggerSweep runs the lateness sweep synchronously.
// POST /api/admin/sweep
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.Sweep.Run(r.Context())
	if err != nil {
		writeServiceError(w, "Sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// HELPERS
// =============================================================================

func contractID(r *http.Request) generic.ContractID {
	return generic.ContractID(chi.URLParam(r, "id"))
}

// decode reads an optional JSON body and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.Factory.Validate(v); err != nil {
		writeServiceError(w, "Invalid request", err)
		return false
	}
	return true
}

func journalDTO(id generic.ContractID, entries []generic.Entry) JournalDTO {
	return JournalDTO{ContractID: id, Entries: entries, Total: generic.SumEntries(entries)}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps engine errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: message, Details: err.Error()}

	var termsErr *generic.InvalidTermsError
	if errors.As(err, &termsErr) {
		resp.Field = termsErr.Field
	}
	var overErr *generic.OverpaymentRejectedError
	if errors.As(err, &overErr) {
		resp.ObligationRef = overErr.ObligationRef
	}

	if status >= http.StatusInternalServerError {
		log.WithFields(log.Fields{
			"status": status,
			"error":  err,
		}).Error(message)
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrOverpaymentRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, generic.ErrInvalidTerms),
		errors.Is(err, generic.ErrInvalidAmount),
		errors.Is(err, generic.ErrInvalidPeriod):
		return http.StatusBadRequest
	case errors.Is(err, generic.ErrContractNotEligible),
		errors.Is(err, generic.ErrDuplicateIdempotencyKey),
		errors.Is(err, generic.ErrScheduleLocked),
		generic.IsRetryable(err):
		return http.StatusConflict
	case errors.Is(err, generic.ErrConfigurationMissing):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
