package repository

import (
	"time"

	"mindwell_backend/internal/model"

	"gorm.io/gorm"
)

type AssessmentRepository struct {
	DB *gorm.DB
}

func NewAssessmentRepository(db *gorm.DB) *AssessmentRepository {
	return &AssessmentRepository{DB: db}
}

func (r *AssessmentRepository) Create(a *model.Assessment) error {
	return r.DB.Create(a).Error
}

func (r *AssessmentRepository) FindByID(id uint) (*model.Assessment, error) {
	var a model.Assessment
	err := r.DB.First(&a, id).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindOwned 只返回属于该用户且未被用户删除的测评
func (r *AssessmentRepository) FindOwned(id, userID uint) (*model.Assessment, error) {
	var a model.Assessment
	err := r.DB.Where("id = ? AND user_id = ? AND deleted_by_user = ?", id, userID, false).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AssessmentRepository) ListByUser(userID uint, limit, offset int) ([]model.Assessment, int64, error) {
	var list []model.Assessment
	var total int64

	db := r.DB.Model(&model.Assessment{}).
		Where("user_id = ? AND deleted_by_user = ?", userID, false)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&list).Error

	return list, total, err
}

// RetireInProgress 软删同一用户同一量表下仍在进行中的旧测评：
// 同一 (user, type) 至多一份未删除的 in_progress 记录
func (r *AssessmentRepository) RetireInProgress(tx *gorm.DB, userID uint, t model.TestType) error {
	return tx.Model(&model.Assessment{}).
		Where("user_id = ? AND type = ? AND status = ? AND deleted_by_user = ?",
			userID, t, model.AssessmentInProgress, false).
		Update("deleted_by_user", true).Error
}

func (r *AssessmentRepository) SoftDeleteByUser(id, userID uint) error {
	return r.DB.Model(&model.Assessment{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("deleted_by_user", true).Error
}

// WipeProgress 清空进度（邀请取消时调用）：答案清空、页码/耗时归零、暂停态清除
func (r *AssessmentRepository) WipeProgress(tx *gorm.DB, id uint) error {
	return tx.Model(&model.Assessment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"raw_answers":     nil,
			"current_page":    0,
			"elapsed_time":    0,
			"paused_at":       nil,
			"deleted_by_user": true,
		}).Error
}

func (r *AssessmentRepository) Complete(tx *gorm.DB, id uint, updates map[string]interface{}) error {
	if updates["completed_at"] == nil {
		now := time.Now()
		updates["completed_at"] = &now
	}
	return tx.Model(&model.Assessment{}).
		Where("id = ?", id).
		Updates(updates).Error
}
