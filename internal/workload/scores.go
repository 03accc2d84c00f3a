package workload

import (
	"strings"

	"github.com/finclick-ai/orchestrator/internal/agents"
)

// specializationBoost is added to a base score for every declared
// specialization tag that textually relates to the task category.
const specializationBoost = 0.1

// baseScores maps each agent category to the task categories it can
// serve and their base affinity weights.
var baseScores = map[agents.Category]map[string]float64{
	agents.CategoryDataExtraction: {
		"data_extraction": 1.0,
		"ocr_processing":  0.8,
		"data_validation": 0.7,
	},
	agents.CategoryFinancialAnalysis: {
		"financial_analysis":     1.0,
		"ratio_analysis":         0.9,
		"trend_analysis":         0.8,
		"liquidity_analysis":     0.7,
		"profitability_analysis": 0.7,
		"efficiency_analysis":    0.7,
		"leverage_analysis":      0.7,
	},
	agents.CategoryRiskAssessment: {
		"risk_analysis":    1.0,
		"credit_risk":      0.9,
		"market_risk":      0.8,
		"operational_risk": 0.8,
	},
	agents.CategoryMarketAnalysis: {
		"market_analysis":      1.0,
		"valuation":            0.9,
		"competitive_analysis": 0.8,
		"sector_analysis":      0.8,
	},
	agents.CategoryReportGeneration: {
		"report_generation":   1.0,
		"executive_reporting": 0.8,
		"technical_reporting": 0.8,
	},
	agents.CategoryRecommendation: {
		"recommendation_generation": 1.0,
		"strategic_advice":          0.8,
	},
	agents.CategoryValidation: {
		"validation":        1.0,
		"quality_assurance": 0.9,
		"compliance_check":  0.8,
	},
}

// computeScores derives the immutable per-task-category specialization
// map for an agent. Base weights come from the category table; every
// declared specialization tag contained in a task category name nudges
// that score up, clamped at 1.0.
func computeScores(desc agents.Descriptor) map[string]float64 {
	base := baseScores[desc.Category]
	scores := make(map[string]float64, len(base))

	for taskType, score := range base {
		for _, spec := range desc.Specializations {
			if spec != "" && strings.Contains(strings.ToLower(taskType), strings.ToLower(spec)) {
				score = min(1.0, score+specializationBoost)
			}
		}
		scores[taskType] = score
	}
	return scores
}
