// Package gormdb implements the repository on a SQL database via GORM,
// used by local and debug deployments with a SQLite file.
package gormdb

import (
	"context"
	stderrors "errors"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/ruicore/dingbridge/domain"
	"github.com/ruicore/dingbridge/errors"
)

// SuiteRecord is the suites table, one row per corp.
type SuiteRecord struct {
	ID          uint      `gorm:"primaryKey"`
	CorpID      string    `gorm:"uniqueIndex;not null"`
	SuiteKey    string    `gorm:"not null"`
	SuiteTicket string    `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CorpAuthRecord is the corp_auth_records table.
type CorpAuthRecord struct {
	ID            uint      `gorm:"primaryKey"`
	CorpID        string    `gorm:"uniqueIndex;not null"`
	PermanentCode string    `gorm:"not null"`
	Raw           string    `gorm:"not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DingUserRecord is the ding_user_records table, unique per (corp, user).
type DingUserRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Nick      string `gorm:"not null"`
	CorpID    string `gorm:"not null;uniqueIndex:uq_ding_user_corp_user"`
	OpenID    string `gorm:"not null"`
	UnionID   string `gorm:"not null"`
	UserID    string `gorm:"not null;uniqueIndex:uq_ding_user_corp_user"`
	Email     string
	AvatarURL string
	Mobile    string
	StaffID   string
	TenantID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Open opens the SQLite database and migrates the schema.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&SuiteRecord{}, &CorpAuthRecord{}, &DingUserRecord{}); err != nil {
		return nil, err
	}
	return db, nil
}

// Repository implements domain.Repository on GORM. Auth-code records go
// through the injected single-use code store.
type Repository struct {
	db    *gorm.DB
	codes domain.UserCodeStore
}

// NewRepository creates the repository.
func NewRepository(db *gorm.DB, codes domain.UserCodeStore) *Repository {
	return &Repository{db: db, codes: codes}
}

func (r *Repository) SaveSuiteTicket(ctx context.Context, suite *domain.Suite) error {
	record := SuiteRecord{
		CorpID:      suite.CorpID,
		SuiteKey:    suite.SuiteKey,
		SuiteTicket: suite.SuiteTicket,
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "corp_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"suite_key", "suite_ticket", "updated_at"}),
	}).Create(&record)
	if result.Error != nil {
		return errors.NewStorageError("save suite ticket", result.Error)
	}
	return nil
}

func (r *Repository) GetSuite(ctx context.Context, suiteKey string) (*domain.Suite, error) {
	var record SuiteRecord
	result := r.db.WithContext(ctx).First(&record, "suite_key = ?", suiteKey)
	if stderrors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, errors.NewNotFound("suite " + suiteKey + " not registered")
	}
	if result.Error != nil {
		return nil, errors.NewStorageError("get suite", result.Error)
	}
	return &domain.Suite{
		CorpID:      record.CorpID,
		SuiteKey:    record.SuiteKey,
		SuiteTicket: record.SuiteTicket,
	}, nil
}

func (r *Repository) SaveOrgSuiteAuth(ctx context.Context, corpID domain.CorpID, raw []byte, permanentCode string) error {
	record := CorpAuthRecord{
		CorpID:        corpID,
		PermanentCode: permanentCode,
		Raw:           string(raw),
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "corp_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"permanent_code", "raw", "updated_at"}),
	}).Create(&record)
	if result.Error != nil {
		return errors.NewStorageError("save corp authorization", result.Error)
	}
	return nil
}

func (r *Repository) RelieveOrgSuiteAuth(ctx context.Context, corpID domain.CorpID) error {
	result := r.db.WithContext(ctx).Delete(&CorpAuthRecord{}, "corp_id = ?", corpID)
	if result.Error != nil {
		return errors.NewStorageError("relieve corp authorization", result.Error)
	}
	return nil
}

func (r *Repository) GetOrgSuiteAuth(ctx context.Context, corpID domain.CorpID) (*domain.CorpAuth, error) {
	var record CorpAuthRecord
	result := r.db.WithContext(ctx).First(&record, "corp_id = ?", corpID)
	if stderrors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, errors.NewNotFound("corp " + corpID + " has not authorized this suite")
	}
	if result.Error != nil {
		return nil, errors.NewStorageError("get corp authorization", result.Error)
	}
	return &domain.CorpAuth{
		CorpID:        record.CorpID,
		PermanentCode: record.PermanentCode,
		Raw:           record.Raw,
	}, nil
}

func (r *Repository) SaveUser(ctx context.Context, authCode string, user *domain.DingUser) error {
	record := DingUserRecord{
		Nick:      user.Nick,
		CorpID:    user.CorpID,
		OpenID:    user.OpenID,
		UnionID:   user.UnionID,
		UserID:    user.UserID,
		Email:     user.Email,
		AvatarURL: user.AvatarURL,
		Mobile:    user.Mobile,
		StaffID:   user.StaffID,
		TenantID:  user.TenantID,
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "corp_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"nick", "open_id", "union_id", "email", "avatar_url", "mobile",
			"staff_id", "tenant_id", "updated_at",
		}),
	}).Create(&record)
	if result.Error != nil {
		return errors.NewStorageError("save user", result.Error)
	}
	if r.codes == nil {
		return nil
	}
	return r.codes.Put(ctx, authCode, user)
}

func (r *Repository) GetUserByAuthCode(ctx context.Context, authCode string) (*domain.DingUser, error) {
	if r.codes == nil {
		return nil, errors.NewUnsupported("auth-code retrieval is not served by this deployment")
	}
	return r.codes.Take(ctx, authCode)
}

func (r *Repository) OfUserIDs(ctx context.Context, userIDs []domain.UserID) ([]*domain.DingUser, error) {
	var records []DingUserRecord
	result := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&records)
	if result.Error != nil {
		return nil, errors.NewStorageError("query users", result.Error)
	}

	users := make([]*domain.DingUser, 0, len(records))
	for _, rec := range records {
		users = append(users, &domain.DingUser{
			Nick:      rec.Nick,
			CorpID:    rec.CorpID,
			OpenID:    rec.OpenID,
			UnionID:   rec.UnionID,
			UserID:    rec.UserID,
			Email:     rec.Email,
			AvatarURL: rec.AvatarURL,
			Mobile:    rec.Mobile,
			StaffID:   rec.StaffID,
			TenantID:  rec.TenantID,
		})
	}
	return users, nil
}
