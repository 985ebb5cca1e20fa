package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"labcafe/internal/auth"
	"labcafe/internal/domain"
	"labcafe/internal/repository/memory"
	"labcafe/internal/service"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	server *httptest.Server
	authn  *auth.Authenticator
	svc    *service.Service
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := service.New(memory.New(), service.WithLogger(log), service.WithClock(func() time.Time { return now }))
	ctx := context.Background()
	require.NoError(t, svc.EnsureAdmin(ctx, "u-admin", "admin@lab.test", "Admin"))
	admin := domain.Actor{ID: "u-admin", Role: domain.RoleAdmin, IsActive: true}
	for _, u := range []service.UserInput{
		{ID: "u-alice", Email: "alice@lab.test", DisplayName: "Alice", Role: domain.RoleMember, IsActive: true},
		{ID: "u-gone", Email: "gone@lab.test", DisplayName: "Gone", Role: domain.RoleMember, IsActive: false},
	} {
		_, err := svc.SyncUser(ctx, admin, u)
		require.NoError(t, err)
	}

	authn := auth.New("test-secret", svc)
	server := httptest.NewServer(NewRouter(NewHandler(svc, log, "USD"), authn))
	t.Cleanup(server.Close)
	return &apiFixture{server: server, authn: authn, svc: svc}
}

func (f *apiFixture) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := f.authn.Issue(userID, time.Hour)
	require.NoError(t, err)
	return token
}

func (f *apiFixture) do(t *testing.T, method, path, userID string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+f.token(t, userID))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := decodeBody(t, resp)
	envelope, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error envelope: %v", body)
	code, _ := envelope["code"].(string)
	return code
}

func (f *apiFixture) createItem(t *testing.T, name string, price int64, stock int) string {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/api/v1/items", "u-admin", map[string]any{
		"name": name, "price_cents": price, "low_stock_threshold": 1,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := decodeBody(t, resp)["id"].(string)
	if stock > 0 {
		resp = f.do(t, http.MethodPost, "/api/v1/items/"+id+"/restock", "u-admin", map[string]any{"quantity": stock})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	return id
}

func TestHealthIsPublic(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeBody(t, resp)["status"])
}

func TestAuthentication(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHENTICATED", errorCode(t, resp))

	resp = f.do(t, http.MethodGet, "/api/v1/me", "u-gone", nil)
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
	assert.Equal(t, "ACCOUNT_INACTIVE", errorCode(t, resp))

	resp = f.do(t, http.MethodGet, "/api/v1/me", "u-nobody", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/v1/me", "u-alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice@lab.test", decodeBody(t, resp)["email"])
}

func TestAdminRoutesRejectMembers(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/items", "u-alice", map[string]any{"name": "Tea", "price_cents": 100})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", errorCode(t, resp))

	resp = f.do(t, http.MethodGet, "/api/v1/ledger", "u-alice", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestValidationEnvelope(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/items", "u-admin", map[string]any{"name": "", "price_cents": -5})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	envelope := body["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", envelope["code"])
	assert.Equal(t, map[string]any{"name": "required", "price_cents": "must_not_be_negative"}, envelope["details"])

	resp = f.do(t, http.MethodPost, "/api/v1/items", "u-admin", map[string]any{"name": "Tea", "colour": "green"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/v1/items?limit=abc", "u-alice", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, resp))
}

func TestConsumeAndReverse(t *testing.T) {
	f := newAPIFixture(t)
	itemID := f.createItem(t, "Cold Brew", 350, 3)

	resp := f.do(t, http.MethodPost, "/api/v1/consumptions", "u-alice", map[string]any{"item_id": itemID, "quantity": 2})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.EqualValues(t, 1, body["new_stock"])
	consumption := body["consumption"].(map[string]any)
	assert.EqualValues(t, 350, consumption["price_at_tx_cents"])

	resp = f.do(t, http.MethodPost, "/api/v1/consumptions", "u-alice", map[string]any{"item_id": itemID, "quantity": 2})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "OUT_OF_STOCK", errorCode(t, resp))

	resp = f.do(t, http.MethodPost, "/api/v1/consumptions/"+consumption["id"].(string)+"/reverse", "u-alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/v1/items/"+itemID, "u-alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, decodeBody(t, resp)["current_stock"])

	resp = f.do(t, http.MethodGet, "/api/v1/consumptions?include_reversed=true", "u-alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, decodeBody(t, resp)["count"])
}

func TestSettlementExportCSV(t *testing.T) {
	f := newAPIFixture(t)
	itemID := f.createItem(t, "Cold Brew", 350, 5)
	resp := f.do(t, http.MethodPost, "/api/v1/consumptions", "u-alice", map[string]any{"item_id": itemID, "quantity": 2})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/v1/settlements", "u-admin", map[string]any{"month": "2026-03"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	settlementID := decodeBody(t, resp)["id"].(string)

	resp = f.do(t, http.MethodGet, "/api/v1/settlements/"+settlementID+"/export", "u-admin", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "live", resp.Header.Get("X-Export-Source"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "settlement-1-2026-03.csv")
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "u-alice,Alice,alice@lab.test,Cold Brew,2,3.50,7.00,7.00,USD", lines[1])

	resp = f.do(t, http.MethodGet, "/api/v1/settlements/"+settlementID+"/export?format=pdf", "u-admin", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/v1/settlements/"+settlementID+"/bill", "u-admin", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/v1/settlements/"+settlementID+"/export?format=xlsx", "u-admin", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "frozen", resp.Header.Get("X-Export-Source"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "settlement-1-2026-03.xlsx")
}

func TestImportCatalogueUpload(t *testing.T) {
	f := newAPIFixture(t)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "catalogue.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("name,price,stock\nMatcha,2.75,4\nChips,1.20,0\n"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/v1/items/import", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+f.token(t, "u-admin"))
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decodeBody(t, resp)
	assert.EqualValues(t, 2, result["total_rows"])
	assert.EqualValues(t, 2, result["created"])
	assert.EqualValues(t, 1, result["restocked"])
}

func TestLedgerRoutes(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/ledger", "u-admin", map[string]any{
		"description": "Cash float", "amount_cents": 5000, "category": "receipt",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.EqualValues(t, 5000, decodeBody(t, resp)["balance_after_cents"])

	resp = f.do(t, http.MethodGet, "/api/v1/ledger/balance", "u-admin", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 5000, decodeBody(t, resp)["balance_cents"])

	resp = f.do(t, http.MethodGet, "/api/v1/ledger?from=2026-03-20&to=2026-03-01", "u-admin", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_RANGE", errorCode(t, resp))

	resp = f.do(t, http.MethodGet, "/api/v1/audit/count?search=LEDGER_ENTRY_CREATED", "u-admin", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, decodeBody(t, resp)["count"])
}

func TestStockSeriesRange(t *testing.T) {
	f := newAPIFixture(t)
	itemID := f.createItem(t, "Cola", 150, 4)

	resp := f.do(t, http.MethodGet, "/api/v1/items/"+itemID+"/stock-series?from=2026-03-01&to=2026-03-10", "u-alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	points, ok := decodeBody(t, resp)["points"].([]any)
	require.True(t, ok)
	assert.Len(t, points, 10)

	resp = f.do(t, http.MethodGet, "/api/v1/items/"+itemID+"/stock-series?from=0001-01-01&to=9999-12-31", "u-alice", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_RANGE", errorCode(t, resp))
}
