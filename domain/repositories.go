package domain

import "context"

// Repository is the persistence capability consumed by the broker and the
// event dispatcher. Implementations are selected once at process start by
// deploy mode; see the repository package for the composition rules.
//
// GetUserByAuthCode is single-use: the record is deleted on first read and a
// second read with the same code fails with a not-found error.
type Repository interface {
	SaveSuiteTicket(ctx context.Context, suite *Suite) error
	GetSuite(ctx context.Context, suiteKey string) (*Suite, error)

	SaveOrgSuiteAuth(ctx context.Context, corpID CorpID, raw []byte, permanentCode string) error
	RelieveOrgSuiteAuth(ctx context.Context, corpID CorpID) error
	GetOrgSuiteAuth(ctx context.Context, corpID CorpID) (*CorpAuth, error)

	SaveUser(ctx context.Context, authCode string, user *DingUser) error
	GetUserByAuthCode(ctx context.Context, authCode string) (*DingUser, error)
	OfUserIDs(ctx context.Context, userIDs []UserID) ([]*DingUser, error)
}

// UserCodeStore holds auth-code → user records for exactly one retrieval.
// Backed by redis in cloud deployments and by an in-process TTL cache
// otherwise.
type UserCodeStore interface {
	Put(ctx context.Context, authCode string, user *DingUser) error
	// Take returns the stored user and deletes the entry atomically.
	Take(ctx context.Context, authCode string) (*DingUser, error)
}
