package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mindwell_backend/internal/config"
	"mindwell_backend/internal/model"
	"mindwell_backend/pkg/logger"

	"go.uber.org/zap"
)

// AnalysisResult 外部评分服务返回的分析载荷，整体作为不透明 JSON 落库
type AnalysisResult struct {
	Summary      string             `json:"summary"`
	OverallScore float64            `json:"overallScore"`
	RiskLevel    string             `json:"riskLevel"` // low / medium / high
	Dimensions   map[string]float64 `json:"dimensions,omitempty"`
	Advice       string             `json:"advice,omitempty"`
}

// Analyzer 评分协作方接口。评分算法不在本服务内实现。
type Analyzer interface {
	Analyze(t model.TestType, answers map[string]interface{}, elapsedTime int) (*AnalysisResult, error)
}

// AnalysisService 经 OpenAI 兼容接口完成测评分析；
// 未配置时退回本地启发式，保证提交链路在离线环境可用
type AnalysisService struct {
	config config.AIConfig
	client *http.Client
}

func NewAnalysisService(cfg config.AIConfig) *AnalysisService {
	return &AnalysisService{
		config: cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type aiChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type aiChatResponse struct {
	Choices []struct {
		Message aiChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (s *AnalysisService) Analyze(t model.TestType, answers map[string]interface{}, elapsedTime int) (*AnalysisResult, error) {
	if s.config.BaseURL == "" {
		return localAnalyze(t, answers), nil
	}

	result, err := s.remoteAnalyze(t, answers, elapsedTime)
	if err != nil {
		logger.Log.Warn("remote analysis failed, falling back to local heuristic",
			zap.String("testType", string(t)), zap.Error(err))
		return localAnalyze(t, answers), nil
	}
	return result, nil
}

func (s *AnalysisService) remoteAnalyze(t model.TestType, answers map[string]interface{}, elapsedTime int) (*AnalysisResult, error) {
	info := model.TestCatalog[t]
	answersJSON, _ := json.Marshal(answers)

	prompt := fmt.Sprintf(
		"你是心理测评分析助手。以下是用户完成《%s》的原始答案（题目ID->答案，共%d题，作答%d秒）：\n%s\n"+
			"请只输出一个 JSON 对象，字段：summary（一句话概述，30字内）、overallScore（0-100数值）、"+
			"riskLevel（low/medium/high）、dimensions（维度名->0-100数值）、advice（一段建议）。"+
			"不要输出 JSON 以外的任何内容。",
		info.Name, info.QuestionCount, elapsedTime, string(answersJSON))

	reqBody := map[string]interface{}{
		"model": s.config.Model,
		"messages": []aiChatMessage{
			{Role: "user", Content: prompt},
		},
	}
	jsonData, _ := json.Marshal(reqBody)

	req, err := http.NewRequest("POST", s.config.BaseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("AI API error (status %d)", resp.StatusCode)
	}

	var chatResp aiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, err
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("AI API error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("AI API returned no choices")
	}

	content := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var result AnalysisResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &result); err != nil {
		return nil, fmt.Errorf("unparseable analysis payload: %w", err)
	}
	return &result, nil
}

// localAnalyze 离线兜底：按数值答案汇总粗略打分
func localAnalyze(t model.TestType, answers map[string]interface{}) *AnalysisResult {
	info := model.TestCatalog[t]

	var sum, count float64
	for _, v := range answers {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			sum += n
			count++
		}
	}

	score := 0.0
	if count > 0 && info.QuestionCount > 0 {
		// 以选项均值相对量表满分的比例折算成百分制
		score = sum / count * 25
		if score > 100 {
			score = 100
		}
	}

	risk := "low"
	switch {
	case score >= 70:
		risk = "high"
	case score >= 40:
		risk = "medium"
	}

	return &AnalysisResult{
		Summary:      fmt.Sprintf("%s已完成，综合得分 %.0f", info.Name, score),
		OverallScore: score,
		RiskLevel:    risk,
	}
}
