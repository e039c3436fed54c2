/**
 * @description
 * Transfer history endpoints: the caller's own recent ledger rows and the
 * admin-only full ledger listing.
 */

package api

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pocketbank/ledger-service/internal/domain"
)

// historyLimit caps the per-caller history page.
const historyLimit = 10

// TransferHistoryHandler handles GET /transfers/{email}: the ten most recent
// transfers sent from that account. Callers may fetch their own history;
// admins may fetch any.
func (h *Handlers) TransferHistoryHandler(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	callerEmail, _ := GetAuthenticatedEmail(r.Context())
	if email != callerEmail && !h.callerHasRole(r, domain.RoleAdmin) {
		h.writeError(w, http.StatusForbidden, "forbidden access")
		return
	}

	records, err := h.service.TransferHistory(r.Context(), email, historyLimit)
	if err != nil {
		log.Printf("level=error component=api endpoint=transfer_history email=%s err=%v", email, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to fetch transfer history")
		return
	}
	if records == nil {
		records = []domain.TransferRecord{}
	}
	h.writeJSON(w, http.StatusOK, records)
}

// ListAllTransfersHandler handles GET /transfers (admin only).
func (h *Handlers) ListAllTransfersHandler(w http.ResponseWriter, r *http.Request) {
	if !h.callerHasRole(r, domain.RoleAdmin) {
		h.writeError(w, http.StatusForbidden, "forbidden access")
		return
	}

	records, err := h.service.ListAllTransfers(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=list_transfers err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to fetch transfers")
		return
	}
	if records == nil {
		records = []domain.TransferRecord{}
	}
	h.writeJSON(w, http.StatusOK, records)
}
