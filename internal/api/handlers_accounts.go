/**
 * @description
 * Account read endpoints: the admin-gated listing, the self-or-admin single
 * record fetch, and the role probes the frontend uses to pick its dashboard.
 * Role gates re-check the database rather than trusting the token's role
 * claim, so a role change takes effect before the token expires.
 */

package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pocketbank/ledger-service/internal/domain"
	"github.com/pocketbank/ledger-service/internal/store"
)

// callerHasRole re-resolves the authenticated caller's account and checks its
// current role.
func (h *Handlers) callerHasRole(r *http.Request, role string) bool {
	email, ok := GetAuthenticatedEmail(r.Context())
	if !ok {
		return false
	}
	account, err := h.service.GetAccountByEmail(r.Context(), email)
	if err != nil {
		if !errors.Is(err, store.ErrAccountNotFound) {
			log.Printf("level=error component=api msg=\"role check lookup failed\" email=%s err=%v", email, err)
		}
		return false
	}
	return account.Role == role
}

// ListAccountsHandler handles GET /accounts (admin only).
func (h *Handlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	if !h.callerHasRole(r, domain.RoleAdmin) {
		h.writeError(w, http.StatusForbidden, "forbidden access")
		return
	}
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=list_accounts err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to list accounts")
		return
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

// GetAccountHandler handles GET /accounts/{email}. Callers may fetch their
// own record; admins may fetch any.
func (h *Handlers) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	callerEmail, _ := GetAuthenticatedEmail(r.Context())
	if email != callerEmail && !h.callerHasRole(r, domain.RoleAdmin) {
		h.writeError(w, http.StatusForbidden, "forbidden access")
		return
	}

	account, err := h.service.GetAccountByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_account email=%s err=%v", email, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to fetch account")
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// AdminProbeHandler handles GET /accounts/admin/{email}: reports whether the
// account is an admin. Callers may only probe themselves.
func (h *Handlers) AdminProbeHandler(w http.ResponseWriter, r *http.Request) {
	h.roleProbe(w, r, domain.RoleAdmin, "admin")
}

// AgentProbeHandler handles GET /accounts/agent/{email}.
func (h *Handlers) AgentProbeHandler(w http.ResponseWriter, r *http.Request) {
	h.roleProbe(w, r, domain.RoleAgent, "agent")
}

func (h *Handlers) roleProbe(w http.ResponseWriter, r *http.Request, role, field string) {
	email := chi.URLParam(r, "email")
	callerEmail, _ := GetAuthenticatedEmail(r.Context())
	if email != callerEmail {
		h.writeError(w, http.StatusForbidden, "forbidden access")
		return
	}

	matches := false
	if account, err := h.service.GetAccountByEmail(r.Context(), email); err == nil {
		matches = account.Role == role
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{field: matches})
}
