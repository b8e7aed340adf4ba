// Package remote implements access to the cloud node's internal endpoints.
// Local deployments read suite and corp-authorization state through it and
// relay notifications to the cloud for delivery.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ruicore/dingbridge/domain"
	"github.com/ruicore/dingbridge/errors"
)

// Client calls the cloud host with shared-secret basic auth.
type Client struct {
	host       string
	user       string
	password   string
	httpClient *http.Client
}

// NewClient creates the cloud client.
func NewClient(host, user, password string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{host: host, user: user, password: password, httpClient: httpClient}
}

// GetSuite fetches the suite snapshot held on the cloud node.
func (c *Client) GetSuite(ctx context.Context, suiteKey string) (*domain.Suite, error) {
	var suite domain.Suite
	if err := c.getJSON(ctx, "/dingding/internal/suite/"+suiteKey, &suite); err != nil {
		return nil, err
	}
	return &suite, nil
}

// GetOrgSuiteAuth fetches a corp authorization record from the cloud node.
func (c *Client) GetOrgSuiteAuth(ctx context.Context, corpID domain.CorpID) (*domain.CorpAuth, error) {
	var auth domain.CorpAuth
	if err := c.getJSON(ctx, "/dingding/internal/corp/"+corpID, &auth); err != nil {
		return nil, err
	}
	return &auth, nil
}

// GetUserByAuthCode consumes the auth-code record held on the cloud node.
// The cloud side deletes the record on this read.
func (c *Client) GetUserByAuthCode(ctx context.Context, authCode string) (*domain.DingUser, error) {
	var user domain.DingUser
	if err := c.getJSON(ctx, "/dingding/internal/user/"+authCode, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SendMessages relays a notification to the cloud node for delivery.
func (c *Client) SendMessages(ctx context.Context, corpID domain.CorpID, userIDs []domain.UserID, message string) error {
	body, err := json.Marshal(map[string]any{
		"corp_id":  corpID,
		"user_ids": userIDs,
		"message":  message,
	})
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/dingding/internal/send/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.user, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewTransportError("relay notification to cloud", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return errors.NewUpstreamError(fmt.Sprintf("cloud send returned status %d: %s", resp.StatusCode, raw))
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+path, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.user, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewTransportError("call cloud host", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewTransportError("read cloud response", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return errors.NewNotFound("cloud host has no record at " + path)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.NewUpstreamError(fmt.Sprintf("cloud host returned status %d: %s", resp.StatusCode, raw))
	}
	if len(raw) == 0 || string(raw) == "null" {
		return errors.NewNotFound("cloud host has no record at " + path)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.NewUpstreamError(fmt.Sprintf("decode cloud response: %v", err))
	}
	return nil
}
