package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/wisenet/wisenet-backend/internal/platform/logger"
	"github.com/wisenet/wisenet-backend/internal/types"
)

type KnowledgeLibRepo interface {
	Create(ctx context.Context, tx *gorm.DB, lib *types.KnowledgeLib) (*types.KnowledgeLib, error)
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.KnowledgeLib, bool, error)
	GetStatus(ctx context.Context, tx *gorm.DB, id int64) (string, bool, error)
	SetStatus(ctx context.Context, tx *gorm.DB, id int64, status string) error
}

type knowledgeLibRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKnowledgeLibRepo(db *gorm.DB, baseLog *logger.Logger) KnowledgeLibRepo {
	return &knowledgeLibRepo{db: db, log: baseLog.With("repo", "KnowledgeLibRepo")}
}

func (r *knowledgeLibRepo) Create(ctx context.Context, tx *gorm.DB, lib *types.KnowledgeLib) (*types.KnowledgeLib, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if lib.Status == "" {
		lib.Status = types.LibStatusPending
	}
	if err := transaction.WithContext(ctx).Create(lib).Error; err != nil {
		return nil, err
	}
	return lib, nil
}

func (r *knowledgeLibRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.KnowledgeLib, bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var lib types.KnowledgeLib
	err := transaction.WithContext(ctx).First(&lib, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &lib, true, nil
}

func (r *knowledgeLibRepo) GetStatus(ctx context.Context, tx *gorm.DB, id int64) (string, bool, error) {
	lib, found, err := r.GetByID(ctx, tx, id)
	if err != nil || !found {
		return "", found, err
	}
	return lib.Status, true, nil
}

func (r *knowledgeLibRepo) SetStatus(ctx context.Context, tx *gorm.DB, id int64, status string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.KnowledgeLib{}).
		Where("id = ?", id).
		Update("status", status).Error
}
