package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruicore/dingbridge/domain"
	"github.com/ruicore/dingbridge/errors"
)

// fakeRepo records repository calls for assertions.
type fakeRepo struct {
	savedTickets  []*domain.Suite
	savedAuths    map[domain.CorpID]string
	relievedCorps []domain.CorpID
	failNext      error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{savedAuths: map[domain.CorpID]string{}}
}

func (f *fakeRepo) SaveSuiteTicket(_ context.Context, suite *domain.Suite) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.savedTickets = append(f.savedTickets, suite)
	return nil
}

func (f *fakeRepo) GetSuite(context.Context, string) (*domain.Suite, error) {
	return nil, errors.NewNotFound("no suite")
}

func (f *fakeRepo) SaveOrgSuiteAuth(_ context.Context, corpID domain.CorpID, raw []byte, _ string) error {
	f.savedAuths[corpID] = string(raw)
	return nil
}

func (f *fakeRepo) RelieveOrgSuiteAuth(_ context.Context, corpID domain.CorpID) error {
	f.relievedCorps = append(f.relievedCorps, corpID)
	return nil
}

func (f *fakeRepo) GetOrgSuiteAuth(context.Context, domain.CorpID) (*domain.CorpAuth, error) {
	return nil, errors.NewNotFound("no corp auth")
}

func (f *fakeRepo) SaveUser(context.Context, string, *domain.DingUser) error { return nil }

func (f *fakeRepo) GetUserByAuthCode(_ context.Context, code string) (*domain.DingUser, error) {
	return nil, errors.NewConsumedCode(code)
}

func (f *fakeRepo) OfUserIDs(context.Context, []domain.UserID) ([]*domain.DingUser, error) {
	return nil, nil
}

type fakeRefresher struct {
	corpID domain.CorpID
	ticket string
}

func (f *fakeRefresher) RefreshSuite(corpID domain.CorpID, ticket string) {
	f.corpID, f.ticket = corpID, ticket
}

func TestDispatchUnknownEventFallsBack(t *testing.T) {
	d := NewDispatcher(newFakeRepo(), "suite_key", &fakeRefresher{})

	err := d.Dispatch(context.Background(), []byte(`{"EventType":"SOMETHING_NEW"}`))
	assert.NoError(t, err, "unknown event types must be acknowledged, not failed")
}

func TestDispatchEventTypeIsCaseNormalized(t *testing.T) {
	d := NewDispatcher(newFakeRepo(), "suite_key", &fakeRefresher{})

	err := d.Dispatch(context.Background(), []byte(`{"EventType":"check_url"}`))
	assert.NoError(t, err)
}

func TestDispatchSuiteTicket(t *testing.T) {
	repo := newFakeRepo()
	refresher := &fakeRefresher{}
	d := NewDispatcher(repo, "suite_key", refresher)

	payload := `{
		"EventType": "SYNC_HTTP_PUSH_HIGH",
		"bizData": [
			{"biz_type": 2, "corp_id": "corp1", "biz_data": "{\"suiteTicket\":\"ticket-xyz\"}"}
		]
	}`
	require.NoError(t, d.Dispatch(context.Background(), []byte(payload)))

	require.Len(t, repo.savedTickets, 1)
	assert.Equal(t, "ticket-xyz", repo.savedTickets[0].SuiteTicket)
	assert.Equal(t, "suite_key", repo.savedTickets[0].SuiteKey)
	assert.Equal(t, "corp1", refresher.corpID)
	assert.Equal(t, "ticket-xyz", refresher.ticket)
}

func TestDispatchOrgSuiteAuthAndRelieve(t *testing.T) {
	repo := newFakeRepo()
	d := NewDispatcher(repo, "suite_key", &fakeRefresher{})

	payload := `{
		"EventType": "SYNC_HTTP_PUSH_MEDIUM",
		"bizData": [
			{"biz_type": 4, "corp_id": "corp1", "biz_data": "{\"syncAction\":\"org_suite_auth\",\"permanent_code\":\"pc-1\"}"},
			{"biz_type": 4, "corp_id": "corp2", "biz_data": "{\"syncAction\":\"ORG_SUITE_RELIEVE\"}"}
		]
	}`
	require.NoError(t, d.Dispatch(context.Background(), []byte(payload)))

	assert.Contains(t, repo.savedAuths, "corp1")
	assert.Equal(t, []domain.CorpID{"corp2"}, repo.relievedCorps)
}

func TestDispatchIsolatesFailingItems(t *testing.T) {
	repo := newFakeRepo()
	repo.failNext = errors.NewStorageError("backend down", nil)
	d := NewDispatcher(repo, "suite_key", &fakeRefresher{})

	// First item fails to persist; the auth item after it must still run.
	payload := `{
		"EventType": "SYNC_HTTP_PUSH_HIGH",
		"bizData": [
			{"biz_type": 2, "corp_id": "corp1", "biz_data": "{\"suiteTicket\":\"t\"}"},
			{"biz_type": 4, "corp_id": "corp3", "biz_data": "{\"syncAction\":\"ORG_SUITE_AUTH\",\"permanent_code\":\"pc\"}"},
			{"biz_type": 99, "corp_id": "corp4", "biz_data": "{}"}
		]
	}`
	require.NoError(t, d.Dispatch(context.Background(), []byte(payload)))

	assert.Contains(t, repo.savedAuths, "corp3")
}

func TestDispatchUnknownSyncActionIsIsolated(t *testing.T) {
	repo := newFakeRepo()
	d := NewDispatcher(repo, "suite_key", &fakeRefresher{})

	payload := `{
		"EventType": "SYNC_HTTP_PUSH_HIGH",
		"bizData": [
			{"biz_type": 4, "corp_id": "corp1", "biz_data": "{\"syncAction\":\"SOMETHING_ELSE\"}"},
			{"biz_type": 4, "corp_id": "corp2", "biz_data": "{\"syncAction\":\"ORG_SUITE_AUTH\",\"permanent_code\":\"pc\"}"}
		]
	}`
	require.NoError(t, d.Dispatch(context.Background(), []byte(payload)))
	assert.Contains(t, repo.savedAuths, "corp2")
}

func TestDispatchRejectsMalformedJSON(t *testing.T) {
	d := NewDispatcher(newFakeRepo(), "suite_key", &fakeRefresher{})
	assert.Error(t, d.Dispatch(context.Background(), []byte("{not json")))
}
