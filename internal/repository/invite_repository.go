package repository

import (
	"mindwell_backend/internal/model"

	"gorm.io/gorm"
)

type InviteRepository struct {
	DB *gorm.DB
}

func NewInviteRepository(db *gorm.DB) *InviteRepository {
	return &InviteRepository{DB: db}
}

func (r *InviteRepository) Create(tx *gorm.DB, invite *model.AssessmentInvite) error {
	return tx.Create(invite).Error
}

func (r *InviteRepository) FindByID(id string) (*model.AssessmentInvite, error) {
	var invite model.AssessmentInvite
	err := r.DB.First(&invite, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &invite, nil
}

func (r *InviteRepository) FindByMessageID(messageID string) (*model.AssessmentInvite, error) {
	var invite model.AssessmentInvite
	err := r.DB.First(&invite, "message_id = ?", messageID).Error
	if err != nil {
		return nil, err
	}
	return &invite, nil
}

func (r *InviteRepository) FindByAssessmentID(assessmentID uint) (*model.AssessmentInvite, error) {
	var invite model.AssessmentInvite
	err := r.DB.First(&invite, "assessment_id = ?", assessmentID).Error
	if err != nil {
		return nil, err
	}
	return &invite, nil
}

func (r *InviteRepository) Updates(tx *gorm.DB, id string, updates map[string]interface{}) error {
	return tx.Model(&model.AssessmentInvite{}).
		Where("id = ?", id).
		Updates(updates).Error
}
