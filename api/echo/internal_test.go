package echo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruicore/dingbridge/domain"
	"github.com/ruicore/dingbridge/services"
)

func newInternalEngine(t *testing.T, repo *memRepo, endpoints services.PlatformEndpoints) *echo.Echo {
	t.Helper()
	e := newEngine()
	ding := newTestDing(t, repo, endpoints)
	NewInternalAPI(repo, ding, testSuiteKey, "svc", "secret").RegisterRoutes(e)
	return e
}

func doInternal(e *echo.Echo, method, target, body string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if authed {
		req.SetBasicAuth("svc", "secret")
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestInternalRequiresBasicAuth(t *testing.T) {
	e := newInternalEngine(t, newMemRepo(), services.PlatformEndpoints{})

	rec := doInternal(e, http.MethodGet, "/dingding/internal/corp/corp1", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/dingding/internal/corp/corp1", nil)
	req.SetBasicAuth("svc", "wrong")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInternalUserLookupIsSingleUse(t *testing.T) {
	repo := newMemRepo()
	require.NoError(t, repo.SaveUser(context.Background(), "code-1",
		&domain.DingUser{Nick: "Wang", CorpID: "corp1", UserID: "user-1"}))
	e := newInternalEngine(t, repo, services.PlatformEndpoints{})

	rec := doInternal(e, http.MethodGet, "/dingding/internal/user/code-1", "", true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var user domain.DingUser
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "user-1", user.UserID)

	rec = doInternal(e, http.MethodGet, "/dingding/internal/user/code-1", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code, "second read must find the code consumed")
}

func TestInternalCorpLookup(t *testing.T) {
	repo := newMemRepo()
	require.NoError(t, repo.SaveOrgSuiteAuth(context.Background(), "corp1", []byte(`{"x":1}`), "pc-1"))
	e := newInternalEngine(t, repo, services.PlatformEndpoints{})

	rec := doInternal(e, http.MethodGet, "/dingding/internal/corp/corp1", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var auth domain.CorpAuth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &auth))
	assert.Equal(t, "pc-1", auth.PermanentCode)

	rec = doInternal(e, http.MethodGet, "/dingding/internal/corp/corp2", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInternalSuiteLookupChecksKey(t *testing.T) {
	repo := newMemRepo()
	repo.tickets = append(repo.tickets, &domain.Suite{CorpID: "corp0", SuiteKey: testSuiteKey, SuiteTicket: "t"})
	e := newInternalEngine(t, repo, services.PlatformEndpoints{})

	rec := doInternal(e, http.MethodGet, "/dingding/internal/suite/"+testSuiteKey, "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var suite domain.Suite
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &suite))
	assert.Equal(t, "t", suite.SuiteTicket)

	rec = doInternal(e, http.MethodGet, "/dingding/internal/suite/other_key", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInternalSendMessages(t *testing.T) {
	var sent map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/corpToken", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"errcode": 0, "access_token": "corp-token", "expires_in": 7200})
	})
	mux.HandleFunc("/send", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		json.NewEncoder(w).Encode(map[string]any{"errcode": 0})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	repo := newMemRepo()
	repo.tickets = append(repo.tickets, &domain.Suite{CorpID: "corp0", SuiteKey: testSuiteKey, SuiteTicket: "t"})
	require.NoError(t, repo.SaveOrgSuiteAuth(context.Background(), "corp1",
		[]byte(`{"auth_info":{"agent":[{"agentid":777}]}}`), "pc-1"))
	e := newInternalEngine(t, repo, services.PlatformEndpoints{
		CorpTokenURL:   srv.URL + "/corpToken",
		SendMessageURL: srv.URL + "/send",
	})

	body := `{"corp_id":"corp1","user_ids":["u1","u2"],"message":"{\"message\":\"hi\"}"}`
	rec := doInternal(e, http.MethodPost, "/dingding/internal/send/messages", body, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "777", sent["agent_id"])
	assert.Equal(t, "u1,u2", sent["userid_list"])
}
