package repository

import (
	"context"
	"errors"

	"edushare/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrDocumentNotFound = errors.New("document not found")

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) GetByID(ctx context.Context, id int64) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// GetOwnership returns the user's ownership row for a document, or nil when
// no link exists.
func (r *DocumentRepository) GetOwnership(ctx context.Context, userID, documentID int64) (*model.DocumentOwner, error) {
	var owner model.DocumentOwner
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND document_id = ?", userID, documentID).
		First(&owner).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &owner, nil
}

// SaveOwnership grants download rights; a duplicate grant is a no-op so the
// flow stays idempotent under replays.
func (r *DocumentRepository) SaveOwnership(ctx context.Context, tx *gorm.DB, owner *model.DocumentOwner) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(owner).Error
}

// FindSeller returns the uploader of a document ("owner" ownership), falling
// back to the earliest owner row when no uploader link exists.
func (r *DocumentRepository) FindSeller(ctx context.Context, documentID int64) (int64, error) {
	var owners []*model.DocumentOwner
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC").
		Find(&owners).Error
	if err != nil {
		return 0, err
	}
	if len(owners) == 0 {
		return 0, ErrDocumentNotFound
	}
	for _, o := range owners {
		if o.OwnershipType == model.OwnershipTypeOwner {
			return o.UserID, nil
		}
	}
	return owners[0].UserID, nil
}

func (r *DocumentRepository) IncrementDownloads(ctx context.Context, tx *gorm.DB, documentID int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Document{}).
		Where("id = ?", documentID).
		Update("downloads_count", gorm.Expr("downloads_count + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}
