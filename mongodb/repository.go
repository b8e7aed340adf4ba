package mongodb

import (
	"context"
	stderrors "errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/ruicore/dingbridge/domain"
	"github.com/ruicore/dingbridge/errors"
)

// Repository implements domain.Repository on MongoDB. Auth-code records go
// through the injected single-use code store; durable user documents live in
// the users collection keyed by (corp_id, user_id).
type Repository struct {
	suites    *mongo.Collection
	corpAuths *mongo.Collection
	users     *mongo.Collection
	codes     domain.UserCodeStore
}

// NewRepository creates the repository and ensures its indexes.
func NewRepository(ctx context.Context, db *mongo.Database, codes domain.UserCodeStore) (*Repository, error) {
	r := &Repository{
		suites:    db.Collection(SuitesCollection),
		corpAuths: db.Collection(CorpAuthsCollection),
		users:     db.Collection(UsersCollection),
		codes:     codes,
	}
	if err := r.ensureIndexes(ctx); err != nil {
		return nil, errors.NewStorageError("create indexes", err)
	}
	return r, nil
}

func (r *Repository) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)

	_, err := r.suites.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "corp_id", Value: 1}}, Options: unique,
	})
	if err != nil {
		return err
	}
	_, err = r.corpAuths.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "corp_id", Value: 1}}, Options: unique,
	})
	if err != nil {
		return err
	}
	_, err = r.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "corp_id", Value: 1}, {Key: "user_id", Value: 1}}, Options: unique,
	})
	return err
}

// SaveSuiteTicket replaces the suite record of the corp wholesale.
func (r *Repository) SaveSuiteTicket(ctx context.Context, suite *domain.Suite) error {
	_, err := r.suites.UpdateOne(ctx,
		bson.M{"corp_id": suite.CorpID},
		bson.M{"$set": suite},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return errors.NewStorageError("save suite ticket", err)
	}
	return nil
}

func (r *Repository) GetSuite(ctx context.Context, suiteKey string) (*domain.Suite, error) {
	var suite domain.Suite
	err := r.suites.FindOne(ctx, bson.M{"suite_key": suiteKey}).Decode(&suite)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.NewNotFound("suite " + suiteKey + " not registered")
	}
	if err != nil {
		return nil, errors.NewStorageError("get suite", err)
	}
	return &suite, nil
}

func (r *Repository) SaveOrgSuiteAuth(ctx context.Context, corpID domain.CorpID, raw []byte, permanentCode string) error {
	_, err := r.corpAuths.UpdateOne(ctx,
		bson.M{"corp_id": corpID},
		bson.M{"$set": bson.M{"permanent_code": permanentCode, "raw": string(raw)}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return errors.NewStorageError("save corp authorization", err)
	}
	return nil
}

func (r *Repository) RelieveOrgSuiteAuth(ctx context.Context, corpID domain.CorpID) error {
	_, err := r.corpAuths.DeleteOne(ctx, bson.M{"corp_id": corpID})
	if err != nil {
		return errors.NewStorageError("relieve corp authorization", err)
	}
	return nil
}

func (r *Repository) GetOrgSuiteAuth(ctx context.Context, corpID domain.CorpID) (*domain.CorpAuth, error) {
	var auth domain.CorpAuth
	err := r.corpAuths.FindOne(ctx, bson.M{"corp_id": corpID}).Decode(&auth)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.NewNotFound("corp " + corpID + " has not authorized this suite")
	}
	if err != nil {
		return nil, errors.NewStorageError("get corp authorization", err)
	}
	return &auth, nil
}

// SaveUser upserts the durable identity record and stages the auth-code entry
// for its single retrieval.
func (r *Repository) SaveUser(ctx context.Context, authCode string, user *domain.DingUser) error {
	_, err := r.users.UpdateOne(ctx,
		bson.M{"corp_id": user.CorpID, "user_id": user.UserID},
		bson.M{"$set": user},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return errors.NewStorageError("save user", err)
	}
	return r.codes.Put(ctx, authCode, user)
}

func (r *Repository) GetUserByAuthCode(ctx context.Context, authCode string) (*domain.DingUser, error) {
	return r.codes.Take(ctx, authCode)
}

func (r *Repository) OfUserIDs(ctx context.Context, userIDs []domain.UserID) ([]*domain.DingUser, error) {
	cursor, err := r.users.Find(ctx, bson.M{"user_id": bson.M{"$in": userIDs}})
	if err != nil {
		return nil, errors.NewStorageError("query users", err)
	}
	defer cursor.Close(ctx)

	var users []*domain.DingUser
	if err := cursor.All(ctx, &users); err != nil {
		return nil, errors.NewStorageError("decode users", err)
	}
	return users, nil
}
