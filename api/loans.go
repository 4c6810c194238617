package api

import (
	"encoding/json"
	"net/http"

	"github.com/entraide/caisse-engine/credit"
	"github.com/entraide/caisse-engine/factory"
	"github.com/entraide/caisse-engine/generic"
)

// =============================================================================
// LOAN HANDLERS
// =============================================================================
//
//   GET    /api/loans                     List loans
//   POST   /api/loans                     Create loan (APPROVED)
//   GET    /api/loans/{id}                Loan with installments
//   PUT    /api/loans/{id}/terms          Amend terms before activation
//   POST   /api/loans/{id}/activate       APPROVED -> ACTIVE
//   POST   /api/loans/{id}/reschedule     Move the first payment date
//   POST   /api/loans/{id}/payments       Record a repayment
//   POST   /api/loans/{id}/refresh        Derive installment statuses at now
//   GET    /api/loans/{id}/early-exit     Early settlement quote
//   POST   /api/loans/{id}/settle         Pay off the loan early
//   GET    /api/loans/{id}/journal        Money movements

// ListLoans returns all loans.
// GET /api/loans
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.Credit.List(r.Context())
	if err != nil {
		writeServiceError(w, "Failed to list loans", err)
		return
	}
	dtos := make([]LoanDTO, 0, len(loans))
	for _, l := range loans {
		dtos = append(dtos, toLoanDTO(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{"loans": dtos})
}

// CreateLoan records an approved loan.
// POST /api/loans
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	terms, ok := h.loanTerms(w, r)
	if !ok {
		return
	}
	l, err := h.Credit.Create(r.Context(), terms, r.Header.Get("X-Actor"))
	if err != nil {
		writeServiceError(w, "Failed to create loan", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanDTO(l))
}

// GetLoan returns one loan.
// GET /api/loans/{id}
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	l, err := h.Credit.Get(r.Context(), contractID(r))
	if err != nil {
		writeServiceError(w, "Failed to get loan", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(l))
}

// AmendLoanTerms replaces the terms of an APPROVED loan.
// PUT /api/loans/{id}/terms
func (h *Handler) AmendLoanTerms(w http.ResponseWriter, r *http.Request) {
	terms, ok := h.loanTerms(w, r)
	if !ok {
		return
	}
	h.respondLoan(w, r, "Failed to amend loan terms", func(id generic.ContractID) (*credit.LoanContract, error) {
		return h.Credit.AmendTerms(r.Context(), id, terms)
	})
}

// ActivateLoan generates the installment schedule.
// POST /api/loans/{id}/activate
func (h *Handler) ActivateLoan(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondLoan(w, r, "Failed to activate loan", func(id generic.ContractID) (*credit.LoanContract, error) {
		return h.Credit.Activate(r.Context(), id, req.Actor)
	})
}

// RescheduleLoan moves the first payment date while no payment exists.
// POST /api/loans/{id}/reschedule
func (h *Handler) RescheduleLoan(w http.ResponseWriter, r *http.Request) {
	var req RescheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	first, err := generic.ParseDate(req.FirstPaymentDate)
	if err != nil {
		writeServiceError(w, "Invalid first payment date",
			&generic.InvalidTermsError{Field: "first_payment_date", Reason: err.Error()})
		return
	}
	h.respondLoan(w, r, "Failed to reschedule loan", func(id generic.ContractID) (*credit.LoanContract, error) {
		return h.Credit.Reschedule(r.Context(), id, first, req.Actor)
	})
}

// RecordPayment records a loan repayment.
// POST /api/loans/{id}/payments
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := credit.PaymentInput{InstallmentNumber: req.InstallmentNumber, Payment: req.payment()}
	h.respondLoan(w, r, "Failed to record payment", func(id generic.ContractID) (*credit.LoanContract, error) {
		return h.Credit.RecordPayment(r.Context(), id, in)
	})
}

// RefreshLoan derives installment statuses at now.
// POST /api/loans/{id}/refresh
func (h *Handler) RefreshLoan(w http.ResponseWriter, r *http.Request) {
	h.respondLoan(w, r, "Failed to refresh loan", func(id generic.ContractID) (*credit.LoanContract, error) {
		return h.Credit.Refresh(r.Context(), id)
	})
}

// QuoteLoanEarlyExit returns the early settlement quote.
// GET /api/loans/{id}/early-exit
func (h *Handler) QuoteLoanEarlyExit(w http.ResponseWriter, r *http.Request) {
	quote, err := h.Credit.QuoteEarlyExit(r.Context(), contractID(r))
	if err != nil {
		writeServiceError(w, "Failed to quote early exit", err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// SettleLoan pays off the loan at the quoted amount.
// POST /api/loans/{id}/settle
func (h *Handler) SettleLoan(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondLoan(w, r, "Failed to settle loan", func(id generic.ContractID) (*credit.LoanContract, error) {
		return h.Credit.SettleEarly(r.Context(), id, req.Amount, req.PaymentRef, req.Actor)
	})
}

// GetLoanJournal lists money movements.
// GET /api/loans/{id}/journal
func (h *Handler) GetLoanJournal(w http.ResponseWriter, r *http.Request) {
	id := contractID(r)
	entries, err := h.Credit.Journal(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to get journal", err)
		return
	}
	writeJSON(w, http.StatusOK, journalDTO(id, entries))
}

func (h *Handler) loanTerms(w http.ResponseWriter, r *http.Request) (credit.Terms, bool) {
	var req factory.LoanTermsJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return credit.Terms{}, false
	}
	terms, err := h.Factory.LoanTerms(req)
	if err != nil {
		writeServiceError(w, "Invalid loan terms", err)
		return credit.Terms{}, false
	}
	return terms, true
}

func (h *Handler) respondLoan(w http.ResponseWriter, r *http.Request, message string, fn func(generic.ContractID) (*credit.LoanContract, error)) {
	l, err := fn(contractID(r))
	if err != nil {
		writeServiceError(w, message, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(l))
}
