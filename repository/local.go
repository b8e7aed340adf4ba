// Package repository composes the concrete storage backends into the
// deployment-mode repository passed to the broker and dispatcher. The mode is
// chosen once at process start; there is no runtime switching.
package repository

import (
	"context"

	"github.com/ruicore/dingbridge/domain"
	"github.com/ruicore/dingbridge/errors"
	"github.com/ruicore/dingbridge/gormdb"
	"github.com/ruicore/dingbridge/remote"
)

// Local is the intranet-mode repository: users live in the local SQL store,
// while suite and corp-authorization state stays on the cloud node and is read
// through its internal endpoints. Writes to cloud-owned state are unsupported
// here; the cloud node is the one receiving the platform callbacks.
type Local struct {
	users *gormdb.Repository
	cloud *remote.Client
}

// NewLocal builds the composite.
func NewLocal(users *gormdb.Repository, cloud *remote.Client) *Local {
	return &Local{users: users, cloud: cloud}
}

func (l *Local) SaveSuiteTicket(context.Context, *domain.Suite) error {
	return errors.NewUnsupported("suite tickets are received and stored on the cloud node")
}

func (l *Local) GetSuite(ctx context.Context, suiteKey string) (*domain.Suite, error) {
	return l.cloud.GetSuite(ctx, suiteKey)
}

func (l *Local) SaveOrgSuiteAuth(context.Context, domain.CorpID, []byte, string) error {
	return errors.NewUnsupported("corp authorizations are received and stored on the cloud node")
}

func (l *Local) RelieveOrgSuiteAuth(context.Context, domain.CorpID) error {
	return errors.NewUnsupported("corp authorizations are received and stored on the cloud node")
}

func (l *Local) GetOrgSuiteAuth(ctx context.Context, corpID domain.CorpID) (*domain.CorpAuth, error) {
	return l.cloud.GetOrgSuiteAuth(ctx, corpID)
}

func (l *Local) SaveUser(ctx context.Context, authCode string, user *domain.DingUser) error {
	return l.users.SaveUser(ctx, authCode, user)
}

func (l *Local) GetUserByAuthCode(ctx context.Context, authCode string) (*domain.DingUser, error) {
	return l.cloud.GetUserByAuthCode(ctx, authCode)
}

func (l *Local) OfUserIDs(ctx context.Context, userIDs []domain.UserID) ([]*domain.DingUser, error) {
	return l.users.OfUserIDs(ctx, userIDs)
}
