package planner

import (
	"github.com/finchat/ragcore/common/logger"
	"github.com/finchat/ragcore/config"
	"github.com/finchat/ragcore/schema"
)

// Default responses for plans that never reach generation.
const (
	refusalMessage = "I can't help with that request. I'm here to answer questions about personal finance, investing, and financial products."

	unsupportedMessage = "I'm not able to help with that yet. I can explain financial concepts, offer general financial guidance, and run calculations."

	outOfDomainMessage = "That's outside my area. I can help with questions about personal finance, investing, and financial products."

	busyMessage = "The system is busy right now. Please try again in a moment."
)

// Planner turns classified intent tasks into executable pipeline plans.
// Every intent maps to a fixed plan shape; config can override the canned
// responses and attach retrieval profiles per intent.
type Planner struct {
	cfg *config.PipelineConfig
}

func New(cfg *config.PipelineConfig) *Planner {
	if cfg == nil {
		cfg = config.DefaultPipeline()
	}
	return &Planner{cfg: cfg}
}

// Plan builds one plan per classified task. A panic inside planning must
// never kill the request; it degrades to a busy plan.
func (p *Planner) Plan(tasks []schema.IntentTask) (plans []schema.PipelinePlan) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("planner: recovered from %v", r)
			plans = []schema.PipelinePlan{{
				Intent:         schema.IntentUnsupported,
				DirectResponse: busyMessage,
			}}
		}
	}()

	plans = make([]schema.PipelinePlan, 0, len(tasks))
	for _, task := range tasks {
		plans = append(plans, p.planTask(task))
	}
	return plans
}

func (p *Planner) planTask(task schema.IntentTask) schema.PipelinePlan {
	plan := schema.PipelinePlan{
		Intent: task.Intent,
		Query:  task.SubQuery,
	}

	switch task.Intent {
	case schema.IntentKnowledgeQuery:
		plan.Retrieval = p.retrievalFor(task)
		plan.Generation = schema.GenerationConfig{Task: schema.TaskKnowledgeExplanation}

	case schema.IntentAdvisory:
		// advisory retrieves only when a profile opts in
		if profile, ok := p.cfg.ProfileForIntent(string(schema.IntentAdvisory)); ok {
			plan.Retrieval = p.retrievalFromProfile(task, profile)
		}
		plan.Generation = schema.GenerationConfig{Task: schema.TaskAdvisoryGeneration}

	case schema.IntentCalculation:
		plan.Calculation = &schema.CalculationConfig{Needed: true}
		plan.Generation = schema.GenerationConfig{Task: schema.TaskCalcInterpretation}

	case schema.IntentMaliciousContent:
		plan.DirectResponse = p.directResponse(task.Intent, refusalMessage)

	case schema.IntentOutOfDomain:
		plan.DirectResponse = p.directResponse(task.Intent, outOfDomainMessage)

	default:
		plan.DirectResponse = p.directResponse(schema.IntentUnsupported, unsupportedMessage)
	}
	return plan
}

func (p *Planner) retrievalFor(task schema.IntentTask) *schema.RetrievalConfig {
	if profile, ok := p.cfg.ProfileForIntent(string(task.Intent)); ok {
		return p.retrievalFromProfile(task, profile)
	}
	return &schema.RetrievalConfig{
		Query:            task.SubQuery,
		TopK:             p.cfg.FinalTopK,
		EnableMultiQuery: true,
		MultiQueryCount:  p.cfg.MultiQueryCount,
	}
}

func (p *Planner) retrievalFromProfile(task schema.IntentTask, profile config.RetrievalProfile) *schema.RetrievalConfig {
	topK := profile.TopK
	if topK <= 0 {
		topK = p.cfg.FinalTopK
	}
	return &schema.RetrievalConfig{
		Query:            task.SubQuery,
		TopK:             topK,
		Corpus:           profile.Corpus,
		EnableMultiQuery: profile.EnableMultiQuery,
		MultiQueryCount:  p.cfg.MultiQueryCount,
	}
}

// directResponse prefers a configured override for the intent.
func (p *Planner) directResponse(intent schema.Intent, fallback string) string {
	if msg, ok := p.cfg.DirectResponses[string(intent)]; ok && msg != "" {
		return msg
	}
	return fallback
}

// BusyMessage is the degraded-mode response used when planning panics.
func BusyMessage() string { return busyMessage }
