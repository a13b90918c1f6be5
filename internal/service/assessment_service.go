package service

import (
	"encoding/json"
	"errors"
	"sort"
	"time"

	"mindwell_backend/internal/model"
	"mindwell_backend/internal/repository"
	"mindwell_backend/internal/util"
	"mindwell_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AssessmentService struct {
	Repo       *repository.AssessmentRepository
	InviteRepo *repository.InviteRepository
	Chat       *ChatService
	Analyzer   Analyzer
	DB         *gorm.DB
}

func NewAssessmentService(repo *repository.AssessmentRepository, inviteRepo *repository.InviteRepository, chat *ChatService, analyzer Analyzer, db *gorm.DB) *AssessmentService {
	return &AssessmentService{
		Repo:       repo,
		InviteRepo: inviteRepo,
		Chat:       chat,
		Analyzer:   analyzer,
		DB:         db,
	}
}

// Catalog 返回量表目录（固定顺序）
func (s *AssessmentService) Catalog() []model.TestInfo {
	list := make([]model.TestInfo, 0, len(model.TestCatalog))
	for _, info := range model.TestCatalog {
		list = append(list, info)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Type < list[j].Type })
	return list
}

// Start 开始一次测评。同一用户同一量表至多一份进行中的记录，旧的会被软删。
// 携带 inviteID 时要求调用者是受邀人、邀请已接受且尚未绑定测评，
// 绑定成功后立即刷新卡片并广播。
func (s *AssessmentService) Start(userID uint, t model.TestType, inviteID string) (*model.Assessment, error) {
	if !model.ValidTestType(t) {
		return nil, util.ErrUnknownTestType
	}

	var invite *model.AssessmentInvite
	if inviteID != "" {
		var err error
		invite, err = s.InviteRepo.FindByID(inviteID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, util.ErrInviteNotFound
			}
			return nil, err
		}
		if invite.InviteeID != userID {
			return nil, util.ErrPermissionDenied
		}
		if invite.Status != model.InviteAccepted {
			return nil, util.ErrInviteNotAcceptable
		}
		if invite.AssessmentID != nil {
			return nil, util.ErrInviteAlreadyBound
		}
		if invite.Type != t {
			return nil, util.ErrValidation
		}
	}

	a := &model.Assessment{
		UserID:     userID,
		Type:       t,
		Status:     model.AssessmentInProgress,
		RawAnswers: datatypes.JSONMap{},
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.Repo.RetireInProgress(tx, userID, t); err != nil {
			return err
		}
		if err := tx.Create(a).Error; err != nil {
			return err
		}
		if invite != nil {
			return s.InviteRepo.Updates(tx, invite.ID, map[string]interface{}{
				"assessment_id": a.ID,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if invite != nil {
		invite.AssessmentID = &a.ID
		if err := s.Chat.SyncInviteCard(invite, a); err != nil {
			logger.Log.Warn("start: card sync failed", zap.String("inviteId", invite.ID), zap.Error(err))
		}
	}

	return a, nil
}

// ProgressReport 进度上报，所有字段可缺省；缺省字段不参与合并
type ProgressReport struct {
	CurrentPage *int              `json:"currentPage"`
	Answers     map[string]string `json:"answers"`
	ElapsedTime *int              `json:"elapsedTime"`
	IsPaused    *bool             `json:"isPaused"`
}

func (r ProgressReport) validate() error {
	if r.CurrentPage != nil && *r.CurrentPage < 0 {
		return util.ErrValidation
	}
	if r.ElapsedTime != nil && *r.ElapsedTime < 0 {
		return util.ErrValidation
	}
	return nil
}

// mergeAnswers 答案合并：在服务端答案之上叠加增量，同键以增量为准。
// 空增量原样返回服务端答案——空上报永远不等于清空。
func mergeAnswers(server datatypes.JSONMap, incoming map[string]string) datatypes.JSONMap {
	if len(incoming) == 0 {
		if server == nil {
			return datatypes.JSONMap{}
		}
		return server
	}
	merged := make(datatypes.JSONMap, len(server)+len(incoming))
	for k, v := range server {
		merged[k] = v
	}
	for k, v := range incoming {
		merged[k] = v
	}
	return merged
}

// mergeHighWater 高水位合并：只进不退
func mergeHighWater(server int, incoming *int) int {
	if incoming != nil && *incoming > server {
		return *incoming
	}
	return server
}

// ApplyProgress 进行中测评唯一的进度写路径。
// 可重复、可乱序、可并发调用：答案做并集、页码和耗时取历史最大值，
// 过期或重试的上报不会回卷任何已记录的进度。
// 数值字段在 SQL 层用 GREATEST 收敛，行级事务内读-合-写保证答案并集不丢。
func (s *AssessmentService) ApplyProgress(userID, id uint, report ProgressReport) (*model.Assessment, error) {
	if err := report.validate(); err != nil {
		return nil, err
	}

	var a model.Assessment
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ? AND deleted_by_user = ?", id, userID, false).
			First(&a).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.ErrAssessmentNotFound
			}
			return err
		}
		if a.Status != model.AssessmentInProgress {
			return util.ErrInvalidState
		}

		merged := mergeAnswers(a.RawAnswers, report.Answers)
		page := mergeHighWater(a.CurrentPage, report.CurrentPage)
		elapsed := mergeHighWater(a.ElapsedTime, report.ElapsedTime)

		updates := map[string]interface{}{
			"raw_answers":  merged,
			"current_page": gorm.Expr("GREATEST(current_page, ?)", page),
			"elapsed_time": gorm.Expr("GREATEST(elapsed_time, ?)", elapsed),
		}
		// 暂停态只认显式布尔；缺省时保留原值
		if report.IsPaused != nil {
			if *report.IsPaused {
				now := time.Now()
				updates["paused_at"] = &now
				a.PausedAt = &now
			} else {
				updates["paused_at"] = nil
				a.PausedAt = nil
			}
		}

		if err := tx.Model(&model.Assessment{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}

		a.RawAnswers = merged
		a.CurrentPage = page
		a.ElapsedTime = elapsed
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.syncBoundInviteCard(&a)
	return &a, nil
}

// syncBoundInviteCard 测评若绑定了邀请，则同步卡片进度
func (s *AssessmentService) syncBoundInviteCard(a *model.Assessment) {
	invite, err := s.InviteRepo.FindByAssessmentID(a.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Log.Warn("progress: invite lookup failed", zap.Uint("assessmentId", a.ID), zap.Error(err))
		}
		return
	}
	if err := s.Chat.SyncInviteCard(invite, a); err != nil {
		logger.Log.Warn("progress: card sync failed", zap.String("inviteId", invite.ID), zap.Error(err))
	}
}

// SubmitRequest 最终提交：完整答案与总耗时
type SubmitRequest struct {
	Answers     map[string]string `json:"answers" binding:"required"`
	ElapsedTime int               `json:"elapsedTime"`
}

// Submit 完成钩子：校验归属与状态、最终合并答案、调用外部分析、
// 落终态并把关联邀请一并置为 completed（邀请进入 completed 的唯一路径）。
func (s *AssessmentService) Submit(userID, id uint, req SubmitRequest) (*model.Assessment, error) {
	if len(req.Answers) == 0 || req.ElapsedTime < 0 {
		return nil, util.ErrValidation
	}

	a, err := s.Repo.FindOwned(id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAssessmentNotFound
		}
		return nil, err
	}
	if a.Status != model.AssessmentInProgress {
		return nil, util.ErrInvalidState
	}

	merged := mergeAnswers(a.RawAnswers, req.Answers)
	// 终卷必须覆盖全部题目，完成态卡片的 100% 由此成立
	if len(merged) != model.TestCatalog[a.Type].QuestionCount {
		return nil, util.ErrValidation
	}
	elapsed := a.ElapsedTime
	if req.ElapsedTime > elapsed {
		elapsed = req.ElapsedTime
	}

	// 评分是外部协作方，这里只透传结果
	result, err := s.Analyzer.Analyze(a.Type, merged, elapsed)
	if err != nil {
		return nil, err
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	invite, inviteErr := s.InviteRepo.FindByAssessmentID(a.ID)

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":          model.AssessmentCompleted,
			"raw_answers":     merged,
			"elapsed_time":    gorm.Expr("GREATEST(elapsed_time, ?)", elapsed),
			"paused_at":       nil,
			"analysis_result": datatypes.JSON(resultJSON),
			"overall_score":   result.OverallScore,
			"risk_level":      result.RiskLevel,
			"completed_at":    &now,
		}
		if err := s.Repo.Complete(tx, a.ID, updates); err != nil {
			return err
		}
		if inviteErr == nil {
			return s.InviteRepo.Updates(tx, invite.ID, map[string]interface{}{
				"status": model.InviteCompleted,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.Status = model.AssessmentCompleted
	a.RawAnswers = merged
	a.ElapsedTime = elapsed
	a.PausedAt = nil
	a.AnalysisResult = datatypes.JSON(resultJSON)
	a.OverallScore = result.OverallScore
	a.RiskLevel = result.RiskLevel
	a.CompletedAt = &now

	if inviteErr == nil {
		invite.Status = model.InviteCompleted
		if err := s.Chat.SyncInviteCard(invite, a); err != nil {
			logger.Log.Warn("submit: card sync failed", zap.String("inviteId", invite.ID), zap.Error(err))
		}
	}

	return a, nil
}

func (s *AssessmentService) Get(userID, id uint) (*model.Assessment, error) {
	a, err := s.Repo.FindOwned(id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAssessmentNotFound
		}
		return nil, err
	}
	return a, nil
}

func (s *AssessmentService) List(userID uint, page, limit int) ([]model.Assessment, int64, error) {
	return s.Repo.ListByUser(userID, limit, (page-1)*limit)
}

func (s *AssessmentService) Delete(userID, id uint) error {
	if _, err := s.Repo.FindOwned(id, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrAssessmentNotFound
		}
		return err
	}
	return s.Repo.SoftDeleteByUser(id, userID)
}
