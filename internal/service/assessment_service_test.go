package service

import (
	"testing"

	"mindwell_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func TestMergeAnswers_EmptyIncomingKeepsServer(t *testing.T) {
	server := datatypes.JSONMap{"q1": "3", "q2": "1"}

	// 空增量绝不清空已有答案
	merged := mergeAnswers(server, nil)
	assert.Equal(t, server, merged)

	merged = mergeAnswers(server, map[string]string{})
	assert.Equal(t, server, merged)
}

func TestMergeAnswers_NilServer(t *testing.T) {
	merged := mergeAnswers(nil, nil)
	assert.NotNil(t, merged)
	assert.Len(t, merged, 0)

	merged = mergeAnswers(nil, map[string]string{"q1": "2"})
	assert.Equal(t, datatypes.JSONMap{"q1": "2"}, merged)
}

func TestMergeAnswers_Union(t *testing.T) {
	server := datatypes.JSONMap{"q1": "3", "q2": "1"}
	merged := mergeAnswers(server, map[string]string{"q2": "2", "q3": "0"})

	assert.Equal(t, datatypes.JSONMap{
		"q1": "3", // 增量未覆盖的键保留
		"q2": "2", // 同键以增量为准
		"q3": "0",
	}, merged)

	// 原始服务端答案不被修改
	assert.Equal(t, datatypes.JSONMap{"q1": "3", "q2": "1"}, server)
}

func TestMergeHighWater(t *testing.T) {
	lower, equal, higher := 2, 5, 8

	assert.Equal(t, 5, mergeHighWater(5, nil))
	assert.Equal(t, 5, mergeHighWater(5, &lower), "过期上报不能回卷")
	assert.Equal(t, 5, mergeHighWater(5, &equal))
	assert.Equal(t, 8, mergeHighWater(5, &higher))
}

func TestProgressReportValidate(t *testing.T) {
	page, elapsed := 3, 120
	assert.NoError(t, ProgressReport{CurrentPage: &page, ElapsedTime: &elapsed}.validate())
	assert.NoError(t, ProgressReport{}.validate())

	negPage, negElapsed := -1, -10
	assert.ErrorIs(t, ProgressReport{CurrentPage: &negPage}.validate(), util.ErrValidation)
	assert.ErrorIs(t, ProgressReport{ElapsedTime: &negElapsed}.validate(), util.ErrValidation)
}

func TestLocalAnalyze(t *testing.T) {
	answers := map[string]interface{}{
		"q1": "3", "q2": "3", "q3": "3",
	}
	result := localAnalyze("phq9", answers)

	assert.InDelta(t, 75.0, result.OverallScore, 0.01)
	assert.Equal(t, "high", result.RiskLevel)
	assert.Contains(t, result.Summary, "PHQ-9")
}

func TestLocalAnalyze_Risk(t *testing.T) {
	low := localAnalyze("phq9", map[string]interface{}{"q1": "1"})
	assert.Equal(t, "low", low.RiskLevel)

	medium := localAnalyze("phq9", map[string]interface{}{"q1": "2"})
	assert.Equal(t, "medium", medium.RiskLevel)

	// 非数值答案直接忽略，不参与打分
	empty := localAnalyze("phq9", map[string]interface{}{"q1": "abc", "q2": 3})
	assert.Equal(t, 0.0, empty.OverallScore)
	assert.Equal(t, "low", empty.RiskLevel)
}
