package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/diagnosis/libris/internal/domain"
	"github.com/diagnosis/libris/internal/http/handlers"
	"github.com/diagnosis/libris/internal/platform/payments"
	"github.com/diagnosis/libris/internal/repo/memory"
	"github.com/diagnosis/libris/internal/service"
	"github.com/diagnosis/libris/pkg/events"
)

type testServer struct {
	*httptest.Server
	svc   *service.LibraryService
	users *memory.UserRepo
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	users := memory.NewUserRepo()
	svc := service.NewLibraryService("Test Library",
		users, memory.NewItemRepo(), memory.NewLoanRepo(),
		memory.NewSettingsRepo(), events.NoopBus{})
	h := handlers.New(svc, payments.NewDevService(), time.Hour)

	r := chi.NewRouter()
	r.Mount("/v1", h.Routes(nil))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, svc: svc, users: users}
}

func (ts *testServer) seedUsers(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, err := ts.svc.RegisterMember(ctx, "m1", "Ada", "ada@example.com", ""); err != nil {
		t.Fatalf("RegisterMember failed: %v", err)
	}
	if _, err := ts.svc.RegisterStaff(ctx, "mgr", "Mia", "mia@example.com", domain.RoleManager, time.Time{}); err != nil {
		t.Fatalf("RegisterStaff failed: %v", err)
	}
	if _, err := ts.svc.RegisterStaff(ctx, "lib", "Leo", "leo@example.com", domain.RoleLibrarian, time.Time{}); err != nil {
		t.Fatalf("RegisterStaff failed: %v", err)
	}
}

func (ts *testServer) seedBook(t *testing.T, id, title string) {
	t.Helper()
	if _, err := ts.svc.AddItem(context.Background(), service.AddItemInput{
		ID: id, Kind: domain.ItemBook, Title: title,
		Author: "Author", ISBN: "isbn", Pages: 100,
	}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
}

func postJSON(t *testing.T, url, token string, body interface{}) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func get(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func del(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// sessionToken signs the user in through the API.
func (ts *testServer) sessionToken(t *testing.T, userID string) string {
	t.Helper()
	resp := postJSON(t, ts.URL+"/v1/auth/session", "", map[string]string{"user_id": userID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("session for %s: status %d", userID, resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &out)
	if out.Token == "" {
		t.Fatal("empty session token")
	}
	return out.Token
}

func wantStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d", resp.StatusCode, want)
	}
}

func wantErrorCode(t *testing.T, resp *http.Response, wantStatus int, wantCode string) {
	t.Helper()
	if resp.StatusCode != wantStatus {
		t.Fatalf("status = %d, want %d", resp.StatusCode, wantStatus)
	}
	var body struct {
		Code string `json:"code"`
	}
	decodeBody(t, resp, &body)
	if body.Code != wantCode {
		t.Fatalf("code = %q, want %q", body.Code, wantCode)
	}
}

func TestSessionIssuance(t *testing.T) {
	ts := setupTestServer(t)
	ts.seedUsers(t)

	resp := postJSON(t, ts.URL+"/v1/auth/session", "", map[string]string{"user_id": "ghost"})
	wantStatus(t, resp, http.StatusNotFound)

	resp = postJSON(t, ts.URL+"/v1/auth/session", "", map[string]string{"user_id": ""})
	wantStatus(t, resp, http.StatusBadRequest)

	ts.sessionToken(t, "m1")
}

func TestAuthenticationRequired(t *testing.T) {
	ts := setupTestServer(t)
	ts.seedUsers(t)

	resp := get(t, ts.URL+"/v1/items", "")
	wantStatus(t, resp, http.StatusUnauthorized)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/items", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	wantStatus(t, resp, http.StatusUnauthorized)
}

func TestItemManagementPermissions(t *testing.T) {
	ts := setupTestServer(t)
	ts.seedUsers(t)
	member := ts.sessionToken(t, "m1")
	manager := ts.sessionToken(t, "mgr")

	book := map[string]interface{}{
		"item_id": "b1", "kind": "book", "title": "Dune",
		"author": "Herbert", "isbn": "isbn", "pages": 400,
	}

	resp := postJSON(t, ts.URL+"/v1/items", member, book)
	wantStatus(t, resp, http.StatusForbidden)

	resp = postJSON(t, ts.URL+"/v1/items", manager, book)
	wantStatus(t, resp, http.StatusCreated)

	// Duplicate identifier.
	resp = postJSON(t, ts.URL+"/v1/items", manager, book)
	wantErrorCode(t, resp, http.StatusConflict, "DUPLICATE_ID")

	resp = get(t, ts.URL+"/v1/items?type=book&available=true", member)
	var list struct {
		Count int `json:"count"`
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	decodeBody(t, resp, &list)
	if list.Count != 1 {
		t.Errorf("count = %d, want 1", list.Count)
	}
}

func TestSearchItems(t *testing.T) {
	ts := setupTestServer(t)
	ts.seedUsers(t)
	ts.seedBook(t, "b1", "The Go Programming Language")
	ts.seedBook(t, "b2", "Dune")
	member := ts.sessionToken(t, "m1")

	resp := get(t, ts.URL+"/v1/items/search?q=go+program", member)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search status = %d", resp.StatusCode)
	}
	var out struct {
		Count int `json:"count"`
		Items []struct {
			ItemID string `json:"item_id"`
		} `json:"items"`
	}
	decodeBody(t, resp, &out)
	if out.Count != 1 || out.Items[0].ItemID != "b1" {
		t.Errorf("search = %+v, want one hit b1", out)
	}

	resp = get(t, ts.URL+"/v1/items/search", member)
	wantStatus(t, resp, http.StatusBadRequest)
}

func TestCheckoutFlow(t *testing.T) {
	ts := setupTestServer(t)
	ts.seedUsers(t)
	ts.seedBook(t, "b1", "Dune")
	member := ts.sessionToken(t, "m1")

	// Members cannot check out on someone else's account.
	resp := postJSON(t, ts.URL+"/v1/loans", member, map[string]string{"user_id": "lib", "item_id": "b1"})
	wantStatus(t, resp, http.StatusForbidden)

	resp = postJSON(t, ts.URL+"/v1/loans", member, map[string]string{"user_id": "m1", "item_id": "b1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("checkout status = %d", resp.StatusCode)
	}
	var out struct {
		Loan struct {
			LoanID string `json:"loan_id"`
		} `json:"loan"`
	}
	decodeBody(t, resp, &out)
	if out.Loan.LoanID == "" {
		t.Fatal("checkout response missing loan")
	}

	// Second checkout of the same item is refused.
	resp = postJSON(t, ts.URL+"/v1/loans", member, map[string]string{"user_id": "m1", "item_id": "b1"})
	wantErrorCode(t, resp, http.StatusConflict, "BORROW_DENIED")

	// Return through the loan-id form.
	resp = postJSON(t, ts.URL+"/v1/loans/"+out.Loan.LoanID+"/return", member, nil)
	wantStatus(t, resp, http.StatusOK)

	// Double return is a distinct coordination failure.
	resp = postJSON(t, ts.URL+"/v1/loans/"+out.Loan.LoanID+"/return", member, nil)
	wantErrorCode(t, resp, http.StatusConflict, "ALREADY_RETURNED")
}

func TestRenewalCap(t *testing.T) {
	ts := setupTestServer(t)
	ts.seedUsers(t)
	ts.seedBook(t, "b1", "Dune")
	member := ts.sessionToken(t, "m1")

	resp := postJSON(t, ts.URL+"/v1/loans", member, map[string]string{"user_id": "m1", "item_id": "b1"})
	wantStatus(t, resp, http.StatusCreated)

	body := map[string]string{"user_id": "m1", "item_id": "b1"}
	for i := 1; i <= 2; i++ {
		resp := postJSON(t, ts.URL+"/v1/renewals", member, body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("renewal %d status = %d", i, resp.StatusCode)
		}
		resp.Body.Close()
	}
	resp = postJSON(t, ts.URL+"/v1/renewals", member, body)
	wantErrorCode(t, resp, http.StatusConflict, "RENEWAL_DENIED")
}

func TestCheckinByUserAndItem(t *testing.T) {
	ts := setupTestServer(t)
	ts.seedUsers(t)
	ts.seedBook(t, "b1", "Dune")
	member := ts.sessionToken(t, "m1")

	body := map[string]string{"user_id": "m1", "item_id": "b1"}
	resp := postJSON(t, ts.URL+"/v1/returns", member, body)
	wantStatus(t, resp, http.StatusNotFound)

	resp = postJSON(t, ts.URL+"/v1/loans", member, body)
	wantStatus(t, resp, http.StatusCreated)

	resp = postJSON(t, ts.URL+"/v1/returns", member, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("return status = %d", resp.StatusCode)
	}
	var out struct {
		Success bool   `json:"success"`
		Fine    string `json:"fine_amount"`
	}
	decodeBody(t, resp, &out)
	if !out.Success || out.Fine != "0" {
		t.Errorf("return = %+v, want success with zero fine", out)
	}
}

func TestRemoveItemOnLoanConflicts(t *testing.T) {
	ts := setupTestServer(t)
	ts.seedUsers(t)
	ts.seedBook(t, "b1", "Dune")
	member := ts.sessionToken(t, "m1")
	manager := ts.sessionToken(t, "mgr")

	resp := postJSON(t, ts.URL+"/v1/loans", member, map[string]string{"user_id": "m1", "item_id": "b1"})
	wantStatus(t, resp, http.StatusCreated)

	resp = del(t, ts.URL+"/v1/items/b1", manager)
	wantStatus(t, resp, http.StatusConflict)

	resp = postJSON(t, ts.URL+"/v1/returns", member, map[string]string{"user_id": "m1", "item_id": "b1"})
	wantStatus(t, resp, http.StatusOK)

	resp = del(t, ts.URL+"/v1/items/b1", manager)
	wantStatus(t, resp, http.StatusNoContent)
}

func TestUserEndpointsPermissions(t *testing.T) {
	ts := setupTestServer(t)
	ts.seedUsers(t)
	member := ts.sessionToken(t, "m1")
	manager := ts.sessionToken(t, "mgr")
	librarian := ts.sessionToken(t, "lib")

	// Members see themselves but not others.
	resp := get(t, ts.URL+"/v1/users/m1", member)
	wantStatus(t, resp, http.StatusOK)
	resp = get(t, ts.URL+"/v1/users/mgr", member)
	wantStatus(t, resp, http.StatusForbidden)

	// Only manage_users staff can register accounts.
	newMember := map[string]string{
		"user_id": "m2", "kind": "member", "name": "Ben", "email": "ben@example.com",
	}
	resp = postJSON(t, ts.URL+"/v1/users", librarian, newMember)
	wantStatus(t, resp, http.StatusForbidden)
	resp = postJSON(t, ts.URL+"/v1/users", manager, newMember)
	wantStatus(t, resp, http.StatusCreated)

	resp = get(t, ts.URL+"/v1/users", manager)
	var list struct {
		Count int `json:"count"`
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	decodeBody(t, resp, &list)
	if list.Count != 4 {
		t.Errorf("user count = %d, want 4", list.Count)
	}
}

func TestPayFine(t *testing.T) {
	ts := setupTestServer(t)
	ts.seedUsers(t)
	member := ts.sessionToken(t, "m1")

	ctx := context.Background()
	u, _ := ts.svc.GetUser(ctx, "m1")
	if err := u.AddFine(decimal.NewFromFloat(6.00)); err != nil {
		t.Fatalf("AddFine failed: %v", err)
	}
	if err := ts.users.Save(ctx, u); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	resp := postJSON(t, ts.URL+"/v1/users/m1/fines/payments", member, map[string]string{"amount": "2.50"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("payment status = %d", resp.StatusCode)
	}
	var out struct {
		User struct {
			FinesOwed string `json:"fines_owed"`
		} `json:"user"`
		Payment struct {
			Status      string `json:"status"`
			AmountCents int64  `json:"amount_cents"`
		} `json:"payment"`
	}
	decodeBody(t, resp, &out)
	if out.User.FinesOwed != "3.5" {
		t.Errorf("balance = %s, want 3.5", out.User.FinesOwed)
	}
	if out.Payment.Status != "succeeded" || out.Payment.AmountCents != 250 {
		t.Errorf("payment = %+v", out.Payment)
	}

	resp = postJSON(t, ts.URL+"/v1/users/m1/fines/payments", member, map[string]string{"amount": "-1"})
	wantStatus(t, resp, http.StatusBadRequest)
}

func TestReportsRequireStaff(t *testing.T) {
	ts := setupTestServer(t)
	ts.seedUsers(t)
	member := ts.sessionToken(t, "m1")
	manager := ts.sessionToken(t, "mgr")
	librarian := ts.sessionToken(t, "lib")

	for _, path := range []string{
		"/v1/reports/statistics", "/v1/reports/popular",
		"/v1/reports/financial", "/v1/reports/inventory", "/v1/reports/integrity",
	} {
		resp := get(t, ts.URL+path, member)
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("%s as member: status %d, want 403", path, resp.StatusCode)
		}
		resp.Body.Close()

		resp = get(t, ts.URL+path, manager)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s as manager: status %d, want 200", path, resp.StatusCode)
		}
		resp.Body.Close()
	}

	// Member history needs the librarian's view_member_history grant.
	resp := get(t, ts.URL+"/v1/reports/activity/m1", manager)
	wantStatus(t, resp, http.StatusForbidden)
	resp = get(t, ts.URL+"/v1/reports/activity/m1", librarian)
	wantStatus(t, resp, http.StatusOK)
}

func TestFineRateSetting(t *testing.T) {
	ts := setupTestServer(t)
	ts.seedUsers(t)
	manager := ts.sessionToken(t, "mgr")
	librarian := ts.sessionToken(t, "lib")

	// system_admin is a manager-only grant.
	resp := get(t, ts.URL+"/v1/settings/fine-rate", librarian)
	wantStatus(t, resp, http.StatusForbidden)

	resp = get(t, ts.URL+"/v1/settings/fine-rate", manager)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get rate status = %d", resp.StatusCode)
	}
	var out map[string]string
	decodeBody(t, resp, &out)
	if out["daily_fine_rate"] != "0.50" {
		t.Errorf("default rate = %s, want 0.50", out["daily_fine_rate"])
	}

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/v1/settings/fine-rate",
		bytes.NewReader([]byte(`{"rate":"1.25"}`)))
	req.Header.Set("Authorization", "Bearer "+manager)
	req.Header.Set("Content-Type", "application/json")
	putResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	if putResp.StatusCode != http.StatusOK {
		t.Fatalf("put rate status = %d", putResp.StatusCode)
	}
	decodeBody(t, putResp, &out)
	if out["daily_fine_rate"] != "1.25" {
		t.Errorf("updated rate = %s, want 1.25", out["daily_fine_rate"])
	}
}

func TestStatisticsContents(t *testing.T) {
	ts := setupTestServer(t)
	ts.seedUsers(t)
	ts.seedBook(t, "b1", "Dune")
	member := ts.sessionToken(t, "m1")
	manager := ts.sessionToken(t, "mgr")

	resp := postJSON(t, ts.URL+"/v1/loans", member, map[string]string{"user_id": "m1", "item_id": "b1"})
	wantStatus(t, resp, http.StatusCreated)

	resp = get(t, ts.URL+"/v1/reports/statistics", manager)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("statistics status = %d", resp.StatusCode)
	}
	var stats struct {
		LibraryName string `json:"library_name"`
		TotalItems  int    `json:"total_items"`
		ActiveLoans int    `json:"active_loans"`
		Members     int    `json:"members"`
		Staff       int    `json:"staff"`
	}
	decodeBody(t, resp, &stats)
	if stats.LibraryName != "Test Library" {
		t.Errorf("library name = %q", stats.LibraryName)
	}
	if stats.TotalItems != 1 || stats.ActiveLoans != 1 || stats.Members != 1 || stats.Staff != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

