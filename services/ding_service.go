// Package services holds the credential/identity broker and the IAM client.
package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ruicore/dingbridge/cache"
	"github.com/ruicore/dingbridge/config"
	"github.com/ruicore/dingbridge/domain"
	"github.com/ruicore/dingbridge/errors"
)

// PlatformEndpoints are the DingTalk open platform URLs the broker calls.
type PlatformEndpoints struct {
	CorpTokenURL   string
	SuiteTokenURL  string
	UserTokenURL   string
	UserContactURL string
	UnionIDURL     string
	SendMessageURL string
}

// Options configures a DingService.
type Options struct {
	SuiteKey    string
	SuiteSecret string
	TemplateID  string
	Mode        config.DeployMode
	Endpoints   PlatformEndpoints
	Repo        domain.Repository
	Tokens      *cache.TokenCache
	HTTPClient  *http.Client
}

// DingService is the broker tying the crypto codec, the token cache and the
// repository together. It owns the in-memory suite snapshot and the corp
// agent-id cache; the repository stays the source of truth across restarts.
type DingService struct {
	suiteKey    string
	suiteSecret string
	templateID  string
	mode        config.DeployMode
	endpoints   PlatformEndpoints
	repo        domain.Repository
	tokens      *cache.TokenCache
	httpClient  *http.Client

	mu             sync.RWMutex
	suite          *domain.Suite
	providerCorpID domain.CorpID
	agentIDs       map[domain.CorpID]domain.AgentID
}

// NewDingService creates the broker.
func NewDingService(opts Options) *DingService {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &DingService{
		suiteKey:    opts.SuiteKey,
		suiteSecret: opts.SuiteSecret,
		templateID:  opts.TemplateID,
		mode:        opts.Mode,
		endpoints:   opts.Endpoints,
		repo:        opts.Repo,
		tokens:      opts.Tokens,
		httpClient:  client,
		agentIDs:    map[domain.CorpID]domain.AgentID{},
	}
}

// RefreshSuite replaces the in-memory suite snapshot after a SUITE_TICKET
// event. Implements handler.SuiteRefresher.
func (s *DingService) RefreshSuite(corpID domain.CorpID, suiteTicket string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providerCorpID = corpID
	s.suite = &domain.Suite{
		CorpID:      corpID,
		SuiteKey:    s.suiteKey,
		SuiteTicket: suiteTicket,
	}
}

// GetSuite returns the current suite record. Local deployments never hold the
// ticket themselves and always read through the repository (which proxies to
// the cloud node); other modes serve the snapshot and fall back to the
// repository on a cold start.
func (s *DingService) GetSuite(ctx context.Context) (*domain.Suite, error) {
	if s.mode == config.ModeLocal {
		return s.repo.GetSuite(ctx, s.suiteKey)
	}

	s.mu.RLock()
	suite := s.suite
	s.mu.RUnlock()
	if suite != nil {
		return suite, nil
	}

	suite, err := s.repo.GetSuite(ctx, s.suiteKey)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.suite = suite
	s.mu.Unlock()
	return suite, nil
}

func (s *DingService) suiteTicket(ctx context.Context) (string, error) {
	suite, err := s.GetSuite(ctx)
	if err != nil {
		return "", err
	}
	return suite.SuiteTicket, nil
}

func (s *DingService) authCorpID(ctx context.Context) (domain.CorpID, error) {
	s.mu.RLock()
	corpID := s.providerCorpID
	s.mu.RUnlock()
	if corpID != "" {
		return corpID, nil
	}

	suite, err := s.GetSuite(ctx)
	if err != nil {
		return "", err
	}
	return suite.CorpID, nil
}

// CorpTokenSignature signs "{timestampMillis}\n{suiteTicket}" with the suite
// secret using HMAC-SHA256 and base64-encodes the digest, as required by the
// corp-token issuance endpoint.
func (s *DingService) CorpTokenSignature(timestampMillis int64, suiteTicket string) string {
	mac := hmac.New(sha256.New, []byte(s.suiteSecret))
	fmt.Fprintf(mac, "%d\n%s", timestampMillis, suiteTicket)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// CorpToken returns a corp-scoped access token, cached until expiry.
func (s *DingService) CorpToken(ctx context.Context, corpID domain.CorpID) (string, error) {
	return s.tokens.GetOrRefresh(ctx, cache.CorpScope(corpID), func(ctx context.Context) (string, int64, error) {
		return s.fetchCorpToken(ctx, corpID)
	})
}

func (s *DingService) fetchCorpToken(ctx context.Context, corpID domain.CorpID) (string, int64, error) {
	ticket, err := s.suiteTicket(ctx)
	if err != nil {
		return "", 0, err
	}

	millis := time.Now().UnixMilli()
	query := url.Values{
		"accessKey":   {s.suiteKey},
		"timestamp":   {strconv.FormatInt(millis, 10)},
		"suiteTicket": {ticket},
		"signature":   {s.CorpTokenSignature(millis, ticket)},
	}

	var resp struct {
		ErrCode     int    `json:"errcode"`
		ErrMsg      string `json:"errmsg"`
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	err = s.postJSON(ctx, s.endpoints.CorpTokenURL+"?"+query.Encode(), nil, map[string]any{"auth_corpid": corpID}, &resp)
	if err != nil {
		return "", 0, err
	}
	if resp.ErrCode != 0 {
		return "", 0, errors.NewUpstreamError(fmt.Sprintf("get corp token for %s: %d %s", corpID, resp.ErrCode, resp.ErrMsg))
	}
	return resp.AccessToken, resp.ExpiresIn, nil
}

// SuiteAccessToken returns the suite-wide access token, cached until expiry.
func (s *DingService) SuiteAccessToken(ctx context.Context) (string, error) {
	return s.tokens.GetOrRefresh(ctx, cache.SuiteScope, s.fetchSuiteToken)
}

func (s *DingService) fetchSuiteToken(ctx context.Context) (string, int64, error) {
	ticket, err := s.suiteTicket(ctx)
	if err != nil {
		return "", 0, err
	}
	corpID, err := s.authCorpID(ctx)
	if err != nil {
		return "", 0, err
	}

	body := map[string]any{
		"suiteKey":    s.suiteKey,
		"suiteSecret": s.suiteSecret,
		"authCorpId":  corpID,
		"suiteTicket": ticket,
	}
	var resp struct {
		AccessToken string `json:"accessToken"`
		ExpireIn    int64  `json:"expireIn"`
	}
	if err := s.postJSON(ctx, s.endpoints.SuiteTokenURL, nil, body, &resp); err != nil {
		return "", 0, err
	}
	if resp.AccessToken == "" {
		return "", 0, errors.NewUpstreamError("suite token response carried no access token")
	}
	return resp.AccessToken, resp.ExpireIn, nil
}

// UserInfo exchanges a one-time auth code for the user's assembled identity
// record: user token, profile, then the union-id → user-id resolution done
// with the corp token.
func (s *DingService) UserInfo(ctx context.Context, authCode string) (*domain.DingUser, error) {
	token, corpID, err := s.fetchUserToken(ctx, authCode)
	if err != nil {
		return nil, err
	}
	if corpID == "" {
		return nil, errors.NewUpstreamError("user token response carried no corp id")
	}

	user, err := s.fetchUserProfile(ctx, token)
	if err != nil {
		return nil, err
	}
	user.CorpID = corpID

	user.UserID, err = s.userIDByUnionID(ctx, user.UnionID, corpID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *DingService) fetchUserToken(ctx context.Context, authCode string) (token string, corpID domain.CorpID, err error) {
	body := map[string]any{
		"clientId":     s.suiteKey,
		"clientSecret": s.suiteSecret,
		"code":         authCode,
		"grantType":    "authorization_code",
	}
	var resp struct {
		AccessToken string `json:"accessToken"`
		ExpireIn    int64  `json:"expireIn"`
		CorpID      string `json:"corpId"`
	}
	if err := s.postJSON(ctx, s.endpoints.UserTokenURL, nil, body, &resp); err != nil {
		return "", "", err
	}
	if resp.AccessToken == "" {
		return "", "", errors.NewUpstreamError("auth code exchange returned no user token")
	}
	return resp.AccessToken, resp.CorpID, nil
}

func (s *DingService) fetchUserProfile(ctx context.Context, userToken string) (*domain.DingUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoints.UserContactURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-acs-dingtalk-access-token", userToken)

	var resp struct {
		Nick      string `json:"nick"`
		OpenID    string `json:"openId"`
		UnionID   string `json:"unionId"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatarUrl"`
		Mobile    string `json:"mobile"`
	}
	if err := s.do(req, &resp); err != nil {
		return nil, err
	}

	return &domain.DingUser{
		Nick:      resp.Nick,
		OpenID:    resp.OpenID,
		UnionID:   resp.UnionID,
		Email:     resp.Email,
		AvatarURL: resp.AvatarURL,
		Mobile:    resp.Mobile,
	}, nil
}

func (s *DingService) userIDByUnionID(ctx context.Context, unionID domain.UnionID, corpID domain.CorpID) (domain.UserID, error) {
	corpToken, err := s.CorpToken(ctx, corpID)
	if err != nil {
		return "", err
	}

	var resp struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
		Result  struct {
			UserID string `json:"userid"`
		} `json:"result"`
	}
	endpoint := s.endpoints.UnionIDURL + "?" + url.Values{"access_token": {corpToken}}.Encode()
	if err := s.postJSON(ctx, endpoint, nil, map[string]any{"unionid": unionID}, &resp); err != nil {
		return "", err
	}
	if resp.ErrCode != 0 {
		return "", errors.NewUpstreamError(fmt.Sprintf("resolve union id: %d %s", resp.ErrCode, resp.ErrMsg))
	}
	return resp.Result.UserID, nil
}

// SendMessage pushes a templated work notification to corp users.
// https://open.dingtalk.com/document/isvapp-server/work-notification-templating-send-notification-interface
func (s *DingService) SendMessage(ctx context.Context, userIDs []domain.UserID, message string, corpID domain.CorpID) error {
	corpToken, err := s.CorpToken(ctx, corpID)
	if err != nil {
		return err
	}
	agentID, err := s.agentID(ctx, corpID)
	if err != nil {
		return err
	}

	body := map[string]any{
		"agent_id":    agentID,
		"userid_list": joinUserIDs(userIDs),
		"template_id": s.templateID,
		"data":        message,
	}
	var resp struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	endpoint := s.endpoints.SendMessageURL + "?" + url.Values{"access_token": {corpToken}}.Encode()
	if err := s.postJSON(ctx, endpoint, nil, body, &resp); err != nil {
		return err
	}
	if resp.ErrCode != 0 {
		return errors.NewUpstreamError(fmt.Sprintf("send message: %d %s", resp.ErrCode, resp.ErrMsg))
	}

	log.Ctx(ctx).Info().Str("corp_id", corpID).Int("user_count", len(userIDs)).Msg("notification sent")
	return nil
}

// agentID resolves the app agent id of a corp from its authorization payload,
// memoizing the result. A corp is assumed to carry a single agent.
func (s *DingService) agentID(ctx context.Context, corpID domain.CorpID) (domain.AgentID, error) {
	s.mu.RLock()
	agentID, ok := s.agentIDs[corpID]
	s.mu.RUnlock()
	if ok {
		return agentID, nil
	}

	log.Ctx(ctx).Warn().Str("corp_id", corpID).Msg("agent id not cached, reading corp authorization")
	corpAuth, err := s.repo.GetOrgSuiteAuth(ctx, corpID)
	if err != nil {
		return "", err
	}

	agentID, err = AgentIDFromAuthPayload(corpAuth.Raw)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.agentIDs[corpID] = agentID
	s.mu.Unlock()
	return agentID, nil
}

// AgentIDFromAuthPayload extracts auth_info.agent[0].agentid out of a raw
// corp authorization payload.
func AgentIDFromAuthPayload(raw string) (domain.AgentID, error) {
	var payload struct {
		AuthInfo struct {
			Agent []struct {
				AgentID int64 `json:"agentid"`
			} `json:"agent"`
		} `json:"auth_info"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return "", fmt.Errorf("decode corp authorization payload: %w", err)
	}
	if len(payload.AuthInfo.Agent) == 0 {
		return "", errors.NewUpstreamError("corp authorization payload lists no agent")
	}
	return strconv.FormatInt(payload.AuthInfo.Agent[0].AgentID, 10), nil
}

func joinUserIDs(userIDs []domain.UserID) string {
	out := ""
	for i, id := range userIDs {
		if i > 0 {
			out += ","
		}
		out += id
	}
	return out
}

func (s *DingService) postJSON(ctx context.Context, endpoint string, headers http.Header, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return s.do(req, out)
}

func (s *DingService) do(req *http.Request, out any) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.NewTransportError("call "+req.URL.Host, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewTransportError("read response from "+req.URL.Host, err)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.NewUpstreamError(fmt.Sprintf("%s returned status %d: %s", req.URL.Host, resp.StatusCode, raw))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.NewUpstreamError(fmt.Sprintf("decode response from %s: %v", req.URL.Host, err))
	}
	return nil
}
