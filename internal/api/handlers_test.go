package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pocketbank/ledger-service/internal/app"
	"github.com/pocketbank/ledger-service/internal/domain"
	"github.com/pocketbank/ledger-service/internal/store"
)

var testSecret = []byte("test-secret")

// fakeRepo is an in-memory Repository backing the handler tests.
type fakeRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	records  []*domain.TransferRecord
}

func newFakeRepo(accounts ...*domain.Account) *fakeRepo {
	repo := &fakeRepo{accounts: make(map[string]*domain.Account)}
	for _, a := range accounts {
		cp := *a
		repo.accounts[a.Mobile] = &cp
	}
	return repo
}

func (r *fakeRepo) FindAccountByMobile(ctx context.Context, mobile string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[mobile]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) FindUserAccountByMobile(ctx context.Context, mobile string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[mobile]
	if !ok || a.Role != domain.RoleUser {
		return nil, store.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if strings.EqualFold(a.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, store.ErrAccountNotFound
}

func (r *fakeRepo) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Account
	for _, a := range r.accounts {
		out = append(out, *a)
	}
	return out, nil
}

func (r *fakeRepo) AdjustBalance(ctx context.Context, mobile string, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[mobile]
	if !ok {
		return store.ErrAccountNotFound
	}
	if a.Balance+delta < 0 {
		return store.ErrInsufficientFunds
	}
	a.Balance += delta
	return nil
}

func (r *fakeRepo) CreateTransferRecord(ctx context.Context, rec *domain.TransferRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records = append(r.records, &cp)
	return nil
}

func (r *fakeRepo) ListTransfersByEmail(ctx context.Context, email string, limit int) ([]domain.TransferRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TransferRecord
	for i := len(r.records) - 1; i >= 0 && len(out) < limit; i-- {
		if strings.EqualFold(r.records[i].SenderEmail, email) {
			out = append(out, *r.records[i])
		}
	}
	return out, nil
}

func (r *fakeRepo) ListAllTransfers(ctx context.Context) ([]domain.TransferRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.TransferRecord, 0, len(r.records))
	for i := len(r.records) - 1; i >= 0; i-- {
		out = append(out, *r.records[i])
	}
	return out, nil
}

func (r *fakeRepo) balance(t *testing.T, mobile string) int64 {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[mobile]
	if !ok {
		t.Fatalf("no account with mobile %s", mobile)
	}
	return a.Balance
}

func testAccount(t *testing.T, name, email, mobile, role string, balance int64) *domain.Account {
	t.Helper()
	hash, err := app.HashPin("1234")
	if err != nil {
		t.Fatalf("hash pin: %v", err)
	}
	return &domain.Account{
		ID:      uuid.New(),
		Name:    name,
		Email:   email,
		Mobile:  mobile,
		PinHash: hash,
		Role:    role,
		Status:  domain.StatusActive,
		Balance: balance,
	}
}

func newTestRouter(repo *fakeRepo) http.Handler {
	svc := app.NewService(repo, nil, nil)
	return Routes(NewHandlers(svc, testSecret), testSecret)
}

func signTestToken(t *testing.T, account *domain.Account) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":    account.Email,
		"mobile": account.Mobile,
		"role":   account.Role,
		"iat":    now.Unix(),
		"exp":    now.Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doRequest(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(recorder.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestTransferHandler_CommittedTransfer(t *testing.T) {
	sender := testAccount(t, "Rahim", "rahim@example.com", "01711111111", domain.RoleUser, 500)
	receiver := testAccount(t, "Karim", "karim@example.com", "01822222222", domain.RoleUser, 0)
	repo := newFakeRepo(sender, receiver)
	router := newTestRouter(repo)

	recorder := doRequest(t, router, http.MethodPost, "/transfers", signTestToken(t, sender), map[string]any{
		"sender_mobile":   sender.Mobile,
		"receiver_mobile": receiver.Mobile,
		"amount":          150,
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var resp struct {
		Status         string `json:"status"`
		Amount         int64  `json:"amount"`
		ReceiverAmount int64  `json:"receiver_amount"`
		Fee            int64  `json:"fee"`
	}
	decodeBody(t, recorder, &resp)
	if resp.Status != domain.TransferCommitted {
		t.Fatalf("expected committed status, got %q", resp.Status)
	}
	if resp.Amount != 150 || resp.ReceiverAmount != 145 || resp.Fee != 5 {
		t.Fatalf("unexpected amounts in response: %+v", resp)
	}
	if repo.balance(t, sender.Mobile) != 350 || repo.balance(t, receiver.Mobile) != 145 {
		t.Fatal("expected balances moved")
	}
}

func TestTransferHandler_DefaultsSenderToCallerMobile(t *testing.T) {
	sender := testAccount(t, "Rahim", "rahim@example.com", "01711111111", domain.RoleUser, 500)
	receiver := testAccount(t, "Karim", "karim@example.com", "01822222222", domain.RoleUser, 0)
	repo := newFakeRepo(sender, receiver)
	router := newTestRouter(repo)

	recorder := doRequest(t, router, http.MethodPost, "/transfers", signTestToken(t, sender), map[string]any{
		"receiver_mobile": receiver.Mobile,
		"amount":          50,
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if repo.balance(t, sender.Mobile) != 450 {
		t.Fatal("expected caller's own account debited")
	}
}

func TestTransferHandler_RejectsUnauthenticated(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(repo)

	recorder := doRequest(t, router, http.MethodPost, "/transfers", "", map[string]any{
		"receiver_mobile": "01822222222",
		"amount":          50,
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestTransferHandler_RejectsForeignSignature(t *testing.T) {
	sender := testAccount(t, "Rahim", "rahim@example.com", "01711111111", domain.RoleUser, 500)
	repo := newFakeRepo(sender)
	router := newTestRouter(repo)

	claims := jwt.MapClaims{"sub": sender.Email, "exp": time.Now().Add(time.Hour).Unix()}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	recorder := doRequest(t, router, http.MethodPost, "/transfers", forged, map[string]any{
		"receiver_mobile": "01822222222",
		"amount":          50,
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestTransferHandler_StatusMapping(t *testing.T) {
	sender := testAccount(t, "Rahim", "rahim@example.com", "01711111111", domain.RoleUser, 500)
	receiver := testAccount(t, "Karim", "karim@example.com", "01822222222", domain.RoleUser, 0)
	agent := testAccount(t, "Agent", "agent@example.com", "01933333333", domain.RoleAgent, 0)
	poor := testAccount(t, "Poor", "poor@example.com", "01544444444", domain.RoleUser, 10)

	cases := []struct {
		name       string
		caller     *domain.Account
		body       map[string]any
		wantStatus int
	}{
		{
			name:   "invalid amount",
			caller: sender,
			body: map[string]any{
				"sender_mobile": sender.Mobile, "receiver_mobile": receiver.Mobile, "amount": 0,
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "unknown receiver",
			caller: sender,
			body: map[string]any{
				"sender_mobile": sender.Mobile, "receiver_mobile": "01999999999", "amount": 50,
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:   "agent receiver",
			caller: sender,
			body: map[string]any{
				"sender_mobile": sender.Mobile, "receiver_mobile": agent.Mobile, "amount": 50,
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:   "spoofed sender",
			caller: poor,
			body: map[string]any{
				"sender_mobile": sender.Mobile, "receiver_mobile": receiver.Mobile, "amount": 50,
			},
			wantStatus: http.StatusForbidden,
		},
		{
			name:   "insufficient funds",
			caller: poor,
			body: map[string]any{
				"sender_mobile": poor.Mobile, "receiver_mobile": receiver.Mobile, "amount": 50,
			},
			wantStatus: http.StatusPaymentRequired,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newFakeRepo(sender, receiver, agent, poor)
			router := newTestRouter(repo)

			recorder := doRequest(t, router, http.MethodPost, "/transfers", signTestToken(t, tc.caller), tc.body)
			if recorder.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, recorder.Code, recorder.Body.String())
			}
		})
	}
}

func TestTokenHandler_IssuesUsableToken(t *testing.T) {
	sender := testAccount(t, "Rahim", "rahim@example.com", "01711111111", domain.RoleUser, 500)
	receiver := testAccount(t, "Karim", "karim@example.com", "01822222222", domain.RoleUser, 0)
	repo := newFakeRepo(sender, receiver)
	router := newTestRouter(repo)

	recorder := doRequest(t, router, http.MethodPost, "/auth/token", "", map[string]any{
		"email": sender.Email,
		"pin":   "1234",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	decodeBody(t, recorder, &resp)
	if resp.Token == "" {
		t.Fatal("expected a token in the response")
	}

	// The issued token must pass the middleware on a protected route.
	transfer := doRequest(t, router, http.MethodPost, "/transfers", resp.Token, map[string]any{
		"receiver_mobile": receiver.Mobile,
		"amount":          50,
	})
	if transfer.Code != http.StatusCreated {
		t.Fatalf("expected 201 with issued token, got %d: %s", transfer.Code, transfer.Body.String())
	}
}

func TestTokenHandler_UniformRejection(t *testing.T) {
	sender := testAccount(t, "Rahim", "rahim@example.com", "01711111111", domain.RoleUser, 500)
	repo := newFakeRepo(sender)
	router := newTestRouter(repo)

	cases := []struct {
		name  string
		email string
		pin   string
	}{
		{name: "wrong pin", email: sender.Email, pin: "9999"},
		{name: "unknown email", email: "ghost@example.com", pin: "1234"},
	}
	var bodies []string
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := doRequest(t, router, http.MethodPost, "/auth/token", "", map[string]any{
				"email": tc.email, "pin": tc.pin,
			})
			if recorder.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", recorder.Code)
			}
			bodies = append(bodies, recorder.Body.String())
		})
	}
	// Identical body for both failure modes so the endpoint does not leak
	// which emails exist.
	if len(bodies) == 2 && bodies[0] != bodies[1] {
		t.Fatalf("expected identical rejection bodies, got %q and %q", bodies[0], bodies[1])
	}
}

func TestAccountEndpoints_RoleGates(t *testing.T) {
	admin := testAccount(t, "Admin", "admin@example.com", "01900000000", domain.RoleAdmin, 0)
	user := testAccount(t, "Rahim", "rahim@example.com", "01711111111", domain.RoleUser, 500)
	repo := newFakeRepo(admin, user)
	router := newTestRouter(repo)

	if rec := doRequest(t, router, http.MethodGet, "/accounts", signTestToken(t, user), nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user listing accounts, got %d", rec.Code)
	}
	if rec := doRequest(t, router, http.MethodGet, "/accounts", signTestToken(t, admin), nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin listing accounts, got %d", rec.Code)
	}

	// Self fetch allowed, foreign fetch forbidden, admin fetch allowed.
	if rec := doRequest(t, router, http.MethodGet, "/accounts/"+user.Email, signTestToken(t, user), nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for self fetch, got %d", rec.Code)
	}
	if rec := doRequest(t, router, http.MethodGet, "/accounts/"+admin.Email, signTestToken(t, user), nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign fetch, got %d", rec.Code)
	}
	if rec := doRequest(t, router, http.MethodGet, "/accounts/"+user.Email, signTestToken(t, admin), nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin fetch, got %d", rec.Code)
	}
}

func TestAccountEndpoints_RoleGateTracksDatabaseNotToken(t *testing.T) {
	// The token still carries role=admin but the database row was demoted.
	demoted := testAccount(t, "Demoted", "demoted@example.com", "01900000000", domain.RoleAdmin, 0)
	token := signTestToken(t, demoted)
	demoted.Role = domain.RoleUser
	repo := newFakeRepo(demoted)
	router := newTestRouter(repo)

	if rec := doRequest(t, router, http.MethodGet, "/accounts", token, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for demoted admin, got %d", rec.Code)
	}
}

func TestRoleProbes_SelfOnly(t *testing.T) {
	admin := testAccount(t, "Admin", "admin@example.com", "01900000000", domain.RoleAdmin, 0)
	agent := testAccount(t, "Agent", "agent@example.com", "01933333333", domain.RoleAgent, 0)
	repo := newFakeRepo(admin, agent)
	router := newTestRouter(repo)

	rec := doRequest(t, router, http.MethodGet, "/accounts/admin/"+admin.Email, signTestToken(t, admin), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var adminProbe map[string]bool
	decodeBody(t, rec, &adminProbe)
	if !adminProbe["admin"] {
		t.Fatal("expected admin probe to report true")
	}

	rec = doRequest(t, router, http.MethodGet, "/accounts/agent/"+admin.Email, signTestToken(t, admin), nil)
	var agentProbe map[string]bool
	decodeBody(t, rec, &agentProbe)
	if agentProbe["agent"] {
		t.Fatal("expected agent probe to report false for an admin")
	}

	// Probing someone else's account is forbidden.
	if rec := doRequest(t, router, http.MethodGet, "/accounts/admin/"+admin.Email, signTestToken(t, agent), nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 probing a foreign account, got %d", rec.Code)
	}
}

func TestTransferHistory_SelfAndAdminAccess(t *testing.T) {
	admin := testAccount(t, "Admin", "admin@example.com", "01900000000", domain.RoleAdmin, 0)
	sender := testAccount(t, "Rahim", "rahim@example.com", "01711111111", domain.RoleUser, 5000)
	receiver := testAccount(t, "Karim", "karim@example.com", "01822222222", domain.RoleUser, 0)
	repo := newFakeRepo(admin, sender, receiver)
	router := newTestRouter(repo)

	// Generate more transfers than the history page size.
	token := signTestToken(t, sender)
	for i := 0; i < 12; i++ {
		rec := doRequest(t, router, http.MethodPost, "/transfers", token, map[string]any{
			"sender_mobile":   sender.Mobile,
			"receiver_mobile": receiver.Mobile,
			"amount":          10,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("transfer %d: expected 201, got %d", i, rec.Code)
		}
	}

	rec := doRequest(t, router, http.MethodGet, "/transfers/"+sender.Email, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var history []domain.TransferRecord
	decodeBody(t, rec, &history)
	if len(history) != 10 {
		t.Fatalf("expected history capped at 10, got %d", len(history))
	}

	// Admins may read any history and the full ledger.
	if rec := doRequest(t, router, http.MethodGet, "/transfers/"+sender.Email, signTestToken(t, admin), nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin history read, got %d", rec.Code)
	}
	rec = doRequest(t, router, http.MethodGet, "/transfers", signTestToken(t, admin), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin ledger read, got %d", rec.Code)
	}
	var all []domain.TransferRecord
	decodeBody(t, rec, &all)
	if len(all) != 12 {
		t.Fatalf("expected 12 ledger rows, got %d", len(all))
	}

	// Plain users cannot read a foreign history or the full ledger.
	if rec := doRequest(t, router, http.MethodGet, "/transfers/"+sender.Email, signTestToken(t, receiver), nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign history read, got %d", rec.Code)
	}
	if rec := doRequest(t, router, http.MethodGet, "/transfers", token, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user ledger read, got %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(newFakeRepo())
	rec := doRequest(t, router, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
