package services

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

// BindDingUserInput is the IAM bind request linking a DingTalk user to an IAM
// staff account.
type BindDingUserInput struct {
	StaffID    domain.StaffID  `json:"staff_id"`
	TenantID   domain.TenantID `json:"tenant_id"`
	DingDingID domain.UserID   `json:"dingding_id"`
	Name       string          `json:"name,omitempty"`
}

// DingUserAccount is one entry of the IAM staff → DingTalk user map.
type DingUserAccount struct {
	TenantID   domain.TenantID `json:"tenant_id"`
	AccountID  string          `json:"account_id"`
	DingDingID domain.UserID   `json:"dingding_id"`
	Name       string          `json:"name,omitempty"`
}

// IAMService is the HTTP client for the internal IAM endpoints.
type IAMService struct {
	host       string
	httpClient *http.Client
}

// NewIAMService creates the client against the IAM host.
func NewIAMService(host string, httpClient *http.Client) *IAMService {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &IAMService{host: host, httpClient: httpClient}
}

// BindDingUser registers the DingTalk binding on the IAM side, forwarding the
// caller's authenticated user id header.
func (s *IAMService) BindDingUser(ctx context.Context, input BindDingUserInput, authenticatedUserID string) error {
	payload, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("marshal bind request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.host+"/api/internal/v1/iam/dingding/bind_user", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-authenticated-userid", authenticatedUserID)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.NewTransportError("call iam bind_user", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		var body struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &body) == nil && body.Message != "" {
			return errors.NewUpstreamError(body.Message)
		}
		return errors.NewUpstreamError(fmt.Sprintf("iam bind_user returned status %d", resp.StatusCode))
	}
	return nil
}

// ListDingUsers resolves staff ids to their registered DingTalk accounts.
// Staff ids without a binding are simply absent from the result.
func (s *IAMService) ListDingUsers(ctx context.Context, staffIDs []domain.StaffID) (map[domain.StaffID]DingUserAccount, error) {
	payload, err := json.Marshal(staffIDs)
	if err != nil {
		return nil, fmt.Errorf("marshal staff id list: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.host+"/api/internal/v1/iam/dingding/staff_dingding_user_map", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewTransportError("call iam staff_dingding_user_map", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTransportError("read iam response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewUpstreamError(fmt.Sprintf("iam staff map returned status %d: %s", resp.StatusCode, raw))
	}

	out := map[domain.StaffID]DingUserAccount{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.NewUpstreamError(fmt.Sprintf("decode iam staff map: %v", err))
	}
	return out, nil
}
