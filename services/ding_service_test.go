package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruicore/dingbridge/cache"
	"github.com/ruicore/dingbridge/config"
	"github.com/ruicore/dingbridge/domain"
	"github.com/ruicore/dingbridge/errors"
)

type stubRepo struct {
	suite    *domain.Suite
	corpAuth *domain.CorpAuth
}

func (s *stubRepo) SaveSuiteTicket(context.Context, *domain.Suite) error { return nil }

func (s *stubRepo) GetSuite(context.Context, string) (*domain.Suite, error) {
	if s.suite == nil {
		return nil, errors.NewNotFound("no suite registered")
	}
	return s.suite, nil
}

func (s *stubRepo) SaveOrgSuiteAuth(context.Context, domain.CorpID, []byte, string) error {
	return nil
}
func (s *stubRepo) RelieveOrgSuiteAuth(context.Context, domain.CorpID) error { return nil }

func (s *stubRepo) GetOrgSuiteAuth(context.Context, domain.CorpID) (*domain.CorpAuth, error) {
	if s.corpAuth == nil {
		return nil, errors.NewNotFound("no corp auth")
	}
	return s.corpAuth, nil
}

func (s *stubRepo) SaveUser(context.Context, string, *domain.DingUser) error { return nil }

func (s *stubRepo) GetUserByAuthCode(_ context.Context, code string) (*domain.DingUser, error) {
	return nil, errors.NewConsumedCode(code)
}

func (s *stubRepo) OfUserIDs(context.Context, []domain.UserID) ([]*domain.DingUser, error) {
	return nil, nil
}

func newTestService(t *testing.T, repo domain.Repository, endpoints PlatformEndpoints) *DingService {
	t.Helper()
	tokens := cache.NewTokenCache()
	t.Cleanup(tokens.Close)

	return NewDingService(Options{
		SuiteKey:    "suite_key_test",
		SuiteSecret: "suite_secret_test",
		TemplateID:  "tmpl-1",
		Mode:        config.ModeCloud,
		Endpoints:   endpoints,
		Repo:        repo,
		Tokens:      tokens,
	})
}

func TestCorpTokenSignature(t *testing.T) {
	svc := newTestService(t, &stubRepo{}, PlatformEndpoints{})

	// HMAC-SHA256("suite_secret_test", "1700000000000\nticket-abc"), base64.
	assert.Equal(t,
		"haCuIUMxfCcAfJnEC4a+SoKJH/FtX0xUXKMKjS0V0G4=",
		svc.CorpTokenSignature(1700000000000, "ticket-abc"),
	)
}

func TestCorpTokenFetchAndCache(t *testing.T) {
	fetches := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		assert.Equal(t, "suite_key_test", r.URL.Query().Get("accessKey"))
		assert.Equal(t, "ticket-abc", r.URL.Query().Get("suiteTicket"))
		assert.NotEmpty(t, r.URL.Query().Get("signature"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "corp1", body["auth_corpid"])

		json.NewEncoder(w).Encode(map[string]any{
			"errcode": 0, "access_token": "corp-token-1", "expires_in": 7200,
		})
	}))
	defer srv.Close()

	repo := &stubRepo{suite: &domain.Suite{CorpID: "corp0", SuiteKey: "suite_key_test", SuiteTicket: "ticket-abc"}}
	svc := newTestService(t, repo, PlatformEndpoints{CorpTokenURL: srv.URL})

	token, err := svc.CorpToken(context.Background(), "corp1")
	require.NoError(t, err)
	assert.Equal(t, "corp-token-1", token)

	token, err = svc.CorpToken(context.Background(), "corp1")
	require.NoError(t, err)
	assert.Equal(t, "corp-token-1", token)
	assert.Equal(t, 1, fetches, "second lookup must hit the cache")
}

func TestCorpTokenUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"errcode": 40001, "errmsg": "invalid signature"})
	}))
	defer srv.Close()

	repo := &stubRepo{suite: &domain.Suite{CorpID: "corp0", SuiteKey: "suite_key_test", SuiteTicket: "t"}}
	svc := newTestService(t, repo, PlatformEndpoints{CorpTokenURL: srv.URL})

	_, err := svc.CorpToken(context.Background(), "corp1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid signature")
}

func TestUserInfoExchange(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/userToken", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "authorization_code", body["grantType"])
		assert.Equal(t, "code-1", body["code"])
		json.NewEncoder(w).Encode(map[string]any{"accessToken": "user-token", "expireIn": 7200, "corpId": "corp1"})
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "user-token", r.Header.Get("x-acs-dingtalk-access-token"))
		json.NewEncoder(w).Encode(map[string]any{
			"nick": "alex", "openId": "open-1", "unionId": "union-1",
			"email": "alex@example.com", "avatarUrl": "https://img", "mobile": "13800000000",
		})
	})
	mux.HandleFunc("/corpToken", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"errcode": 0, "access_token": "corp-token", "expires_in": 7200})
	})
	mux.HandleFunc("/byUnion", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "corp-token", r.URL.Query().Get("access_token"))
		json.NewEncoder(w).Encode(map[string]any{"errcode": 0, "result": map[string]string{"userid": "uid-1"}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	repo := &stubRepo{suite: &domain.Suite{CorpID: "corp1", SuiteKey: "suite_key_test", SuiteTicket: "t"}}
	svc := newTestService(t, repo, PlatformEndpoints{
		UserTokenURL:   srv.URL + "/userToken",
		UserContactURL: srv.URL + "/me",
		CorpTokenURL:   srv.URL + "/corpToken",
		UnionIDURL:     srv.URL + "/byUnion",
	})

	user, err := svc.UserInfo(context.Background(), "code-1")
	require.NoError(t, err)
	assert.Equal(t, "alex", user.Nick)
	assert.Equal(t, "corp1", user.CorpID)
	assert.Equal(t, "uid-1", user.UserID)
	assert.Equal(t, "union-1", user.UnionID)
}

func TestSendMessageUsesAgentFromCorpAuth(t *testing.T) {
	var sent map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/corpToken", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"errcode": 0, "access_token": "corp-token", "expires_in": 7200})
	})
	mux.HandleFunc("/send", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		json.NewEncoder(w).Encode(map[string]any{"errcode": 0})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	repo := &stubRepo{
		suite:    &domain.Suite{CorpID: "corp1", SuiteKey: "suite_key_test", SuiteTicket: "t"},
		corpAuth: &domain.CorpAuth{CorpID: "corp1", PermanentCode: "pc", Raw: `{"auth_info":{"agent":[{"agentid":12345}]}}`},
	}
	svc := newTestService(t, repo, PlatformEndpoints{
		CorpTokenURL:   srv.URL + "/corpToken",
		SendMessageURL: srv.URL + "/send",
	})

	err := svc.SendMessage(context.Background(), []domain.UserID{"u1", "u2"}, `{"message":"hi"}`, "corp1")
	require.NoError(t, err)
	assert.Equal(t, "12345", sent["agent_id"])
	assert.Equal(t, "u1,u2", sent["userid_list"])
	assert.Equal(t, "tmpl-1", sent["template_id"])
}

func TestAgentIDFromAuthPayload(t *testing.T) {
	agentID, err := AgentIDFromAuthPayload(`{"auth_info":{"agent":[{"agentid":42}]}}`)
	require.NoError(t, err)
	assert.Equal(t, "42", agentID)

	_, err = AgentIDFromAuthPayload(`{"auth_info":{"agent":[]}}`)
	assert.Error(t, err)

	_, err = AgentIDFromAuthPayload(`not json`)
	assert.Error(t, err)
}

func TestRefreshSuiteUpdatesSnapshot(t *testing.T) {
	svc := newTestService(t, &stubRepo{}, PlatformEndpoints{})
	svc.RefreshSuite("corp9", "ticket-9")

	suite, err := svc.GetSuite(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "corp9", suite.CorpID)
	assert.Equal(t, "ticket-9", suite.SuiteTicket)
}
