package main

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/finclick-ai/orchestrator/internal/agents"
	"github.com/finclick-ai/orchestrator/internal/orchestrator"
)

// collaborator is the in-process stand-in for the platform's external
// workers (analysis engines, document services, report renderers). It
// honors context cancellation and answers broker requests, exercising
// the full orchestration surface without any external dependency.
type collaborator struct {
	id      string
	latency time.Duration
	working atomic.Int32
}

func newCollaborator(id string, latency time.Duration) *collaborator {
	return &collaborator{id: id, latency: latency}
}

func (c *collaborator) ExecuteTask(ctx context.Context, task agents.Task) (agents.Result, error) {
	c.working.Add(1)
	defer c.working.Add(-1)

	select {
	case <-time.After(c.latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return agents.Result{
		"task_id":   task.ID,
		"task_type": task.Type,
		"agent_id":  c.id,
		"inputs":    len(task.Input),
		"status":    "ok",
	}, nil
}

func (c *collaborator) Status() agents.Status {
	if c.working.Load() > 0 {
		return agents.StatusWorking
	}
	return agents.StatusIdle
}

func (c *collaborator) HandleMessage(ctx context.Context, msg agents.Message) (*agents.Message, error) {
	if msg.Kind != agents.MessageRequest {
		return nil, nil
	}
	reply := agents.NewMessage(c.id, msg.SenderID, agents.MessageResponse, map[string]any{
		"ack": msg.ID,
	})
	return &reply, nil
}

// seedRoster registers the default worker roster: a primary agent per
// category plus the specialists the analysis workflows fan out to.
func seedRoster(sup *orchestrator.Supervisor) error {
	roster := []agents.Descriptor{
		// Core agents, one per category.
		{ID: "data_extraction_001", Name: "Primary Data Extractor", Category: agents.CategoryDataExtraction, Capabilities: []string{"document_parsing", "ocr"}},
		{ID: "financial_analysis_001", Name: "Primary Financial Analyzer", Category: agents.CategoryFinancialAnalysis, Capabilities: []string{"ratio_analysis"}},
		{ID: "risk_assessment_001", Name: "Primary Risk Assessor", Category: agents.CategoryRiskAssessment, Capabilities: []string{"risk_scoring"}},
		{ID: "market_analysis_001", Name: "Primary Market Analyzer", Category: agents.CategoryMarketAnalysis, Capabilities: []string{"market_data"}},
		{ID: "report_generation_001", Name: "Primary Report Generator", Category: agents.CategoryReportGeneration, Capabilities: []string{"report_rendering"}},
		{ID: "recommendation_001", Name: "Primary Recommendation Engine", Category: agents.CategoryRecommendation, Capabilities: []string{"strategic_advice"}},
		{ID: "validation_001", Name: "Primary Quality Validator", Category: agents.CategoryValidation, Capabilities: []string{"quality_assurance"}},

		// Financial analysis specialists for the comprehensive fan-out.
		{ID: "liquidity_specialist_001", Name: "Liquidity Specialist", Category: agents.CategoryFinancialAnalysis, Specializations: []string{"liquidity"}},
		{ID: "profitability_specialist_001", Name: "Profitability Specialist", Category: agents.CategoryFinancialAnalysis, Specializations: []string{"profitability"}},
		{ID: "efficiency_specialist_001", Name: "Efficiency Specialist", Category: agents.CategoryFinancialAnalysis, Specializations: []string{"efficiency"}},
		{ID: "leverage_specialist_001", Name: "Leverage Specialist", Category: agents.CategoryFinancialAnalysis, Specializations: []string{"leverage"}},

		// Risk specialists.
		{ID: "credit_risk_specialist_001", Name: "Credit Risk Specialist", Category: agents.CategoryRiskAssessment, Specializations: []string{"credit"}},
		{ID: "market_risk_specialist_001", Name: "Market Risk Specialist", Category: agents.CategoryRiskAssessment, Specializations: []string{"market"}},
		{ID: "operational_risk_specialist_001", Name: "Operational Risk Specialist", Category: agents.CategoryRiskAssessment, Specializations: []string{"operational"}},

		// Market analysis specialists.
		{ID: "valuation_specialist_001", Name: "Valuation Specialist", Category: agents.CategoryMarketAnalysis, Specializations: []string{"valuation"}},
		{ID: "competitive_analyst_001", Name: "Competitive Analyst", Category: agents.CategoryMarketAnalysis, Specializations: []string{"competitive"}},
		{ID: "sector_analyst_001", Name: "Sector Analyst", Category: agents.CategoryMarketAnalysis, Specializations: []string{"sector"}},

		// Data processing specialists.
		{ID: "ocr_specialist_001", Name: "OCR Specialist", Category: agents.CategoryDataExtraction, Specializations: []string{"ocr"}},
		{ID: "data_validator_001", Name: "Data Validator", Category: agents.CategoryDataExtraction, Specializations: []string{"validation"}},

		// Report specialists.
		{ID: "executive_report_specialist_001", Name: "Executive Report Specialist", Category: agents.CategoryReportGeneration, Specializations: []string{"executive"}},
		{ID: "technical_report_specialist_001", Name: "Technical Report Specialist", Category: agents.CategoryReportGeneration, Specializations: []string{"technical"}},

		// Quality assurance.
		{ID: "accuracy_validator_001", Name: "Accuracy Validator", Category: agents.CategoryValidation, Specializations: []string{"quality"}},
		{ID: "compliance_validator_001", Name: "Compliance Validator", Category: agents.CategoryValidation, Specializations: []string{"compliance"}},
	}

	for _, desc := range roster {
		if err := sup.RegisterAgent(desc, newCollaborator(desc.ID, 50*time.Millisecond)); err != nil {
			return err
		}
	}
	return nil
}
