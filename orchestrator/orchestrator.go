package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finchat/ragcore/common/logger"
	"github.com/finchat/ragcore/config"
	"github.com/finchat/ragcore/executor"
	"github.com/finchat/ragcore/fusion"
	"github.com/finchat/ragcore/memory"
	"github.com/finchat/ragcore/metrics"
	"github.com/finchat/ragcore/planner"
	pre_retrieve "github.com/finchat/ragcore/pre-retrieve"
	"github.com/finchat/ragcore/schema"
	"github.com/finchat/ragcore/validator"
)

// Canned responses for requests that never reach generation.
const (
	emptyInputMessage   = "Please enter a question."
	tooLongMessage      = "That message is too long. Please shorten it and try again."
	invalidInputMessage = "Your message couldn't be processed. Please rephrase and try again."
)

// unverifiedNote prefixes an answer that exhausted the judge retry budget
// while still flagged invalid. The caller always gets a readable answer.
const unverifiedNote = "Note: I could not fully verify the following answer, please treat it with caution.\n\n"

// Orchestrator runs one user query through the full pipeline: input
// screening, intent classification, planning, parallel plan execution,
// answer fusion, output judging, and memory upkeep.
type Orchestrator struct {
	cfg        *config.Config
	input      *validator.InputValidator
	judge      *validator.OutputJudge
	processor  *pre_retrieve.Processor
	planner    *planner.Planner
	executor   *executor.Executor
	fuser      *fusion.AnswerFuser
	store      memory.ConversationStore
	summarizer *memory.Summarizer

	historyRounds int
	judgeRetries  int
}

// Options wires the orchestrator's collaborators. Store and Summarizer are
// optional; without them the pipeline runs stateless.
type Options struct {
	Config     *config.Config
	Input      *validator.InputValidator
	Judge      *validator.OutputJudge
	Processor  *pre_retrieve.Processor
	Planner    *planner.Planner
	Executor   *executor.Executor
	Fuser      *fusion.AnswerFuser
	Store      memory.ConversationStore
	Summarizer *memory.Summarizer
}

func New(opts Options) *Orchestrator {
	historyRounds := 5
	judgeRetries := 2
	if opts.Config != nil {
		if opts.Config.Memory != nil && opts.Config.Memory.SummaryLastN > 0 {
			historyRounds = opts.Config.Memory.SummaryLastN
		}
		if opts.Config.Validator != nil && opts.Config.Validator.Judge.MaxRetries > 0 {
			judgeRetries = opts.Config.Validator.Judge.MaxRetries
		}
	}
	return &Orchestrator{
		cfg:           opts.Config,
		input:         opts.Input,
		judge:         opts.Judge,
		processor:     opts.Processor,
		planner:       opts.Planner,
		executor:      opts.Executor,
		fuser:         opts.Fuser,
		store:         opts.Store,
		summarizer:    opts.Summarizer,
		historyRounds: historyRounds,
		judgeRetries:  judgeRetries,
	}
}

// HandleQuery answers one user turn. It always returns something the user
// can read; internal failures degrade to canned responses rather than
// errors.
func (o *Orchestrator) HandleQuery(ctx context.Context, sessionID, query string) (string, error) {
	start := time.Now()
	m := metrics.NewRetrievalMetrics()
	m.QueryID = uuid.NewString()
	m.Query = query

	// input screening runs before anything that touches the network
	if o.input != nil {
		if v := o.input.Validate(query); !v.Valid {
			logger.Infof("orchestrator: input rejected (%s)", v.Reason)
			m.Success = false
			m.ErrorMsg = "input rejected: " + v.Reason
			m.TotalLatencyMs = time.Since(start).Milliseconds()
			m.Log()
			return rejectionMessage(v.Reason), nil
		}
	}

	history := o.loadHistory(ctx, sessionID)

	processing := o.classify(ctx, query, history)
	primary := primaryIntent(processing.Tasks)
	m.Intent = string(primary)
	m.RecordIntentMatch(string(primary), 1)
	for _, task := range processing.Tasks {
		metrics.IncIntent(string(task.Intent))
	}
	m.SubQueriesCount = len(processing.Tasks)

	// a malicious classification overrides everything else in the query
	if task, ok := findIntent(processing.Tasks, schema.IntentMaliciousContent); ok {
		plans := o.planner.Plan([]schema.IntentTask{task})
		o.finishMetrics(m, start, string(schema.IntentMaliciousContent), true, "")
		return plans[0].DirectResponse, nil
	}

	plans := o.planner.Plan(processing.Tasks)
	answers, judgeContext := o.executor.ExecuteAll(ctx, plans, processing, history, m)

	answer, err := o.fuser.Fuse(ctx, query, answers)
	if err != nil {
		logger.Warnf("orchestrator: answer fusion degraded: %v", err)
	}

	if o.judge.Enabled() && !allDirect(plans) {
		answer = o.judgeLoop(ctx, query, answer, answers, judgeContext)
	}

	o.saveRound(ctx, sessionID, query, answer)
	o.finishMetrics(m, start, string(primary), true, "")
	return answer, nil
}

// classify runs the query processor; on failure the turn degrades to a
// single unsupported task so planning still produces a response.
func (o *Orchestrator) classify(ctx context.Context, query, history string) *schema.ProcessingResult {
	if o.processor == nil {
		return &schema.ProcessingResult{Tasks: []schema.IntentTask{{Intent: schema.IntentUnsupported, SubQuery: query}}}
	}
	processing, err := o.processor.Process(ctx, query, history)
	if err != nil || processing == nil || len(processing.Tasks) == 0 {
		logger.Warnf("orchestrator: query processing failed, treating as unsupported: %v", err)
		return &schema.ProcessingResult{Tasks: []schema.IntentTask{{Intent: schema.IntentUnsupported, SubQuery: query}}}
	}
	return processing
}

// judgeLoop validates the fused answer and spends the retry budget on
// fixing rejections: one self-correct attempt (the judge's own correction
// when it offers one, a regeneration otherwise), then up to MaxRetries
// regenerations with the rejection reason attached. An answer that is
// still rejected afterwards goes out with a caution note, never nothing.
func (o *Orchestrator) judgeLoop(ctx context.Context, query, answer string, answers []string, judgeContext string) string {
	current := answer
	attempts := 0
	verdict := o.judge.Judge(ctx, query, current, judgeContext)
	for !verdict.Valid && attempts <= o.judgeRetries {
		mode := "self-correct"
		if attempts > 0 {
			mode = fmt.Sprintf("retry_%d", attempts)
		}
		attempts++

		if mode == "self-correct" {
			if corrected := strings.TrimSpace(verdict.CorrectedContent); corrected != "" {
				logger.Infof("orchestrator: applying judge correction")
				current = corrected
				verdict = o.judge.Judge(ctx, query, current, judgeContext)
				continue
			}
		}
		logger.Infof("orchestrator: regenerating rejected answer (%s): %s", mode, verdict.Reason)
		refused, err := o.fuser.Refuse(ctx, query, answers, verdict.Reason, mode)
		if err != nil {
			logger.Warnf("orchestrator: regeneration failed: %v", err)
			break
		}
		current = refused
		verdict = o.judge.Judge(ctx, query, current, judgeContext)
	}
	metrics.ObserveValidationRetries(attempts)
	if !verdict.Valid {
		logger.Warnf("orchestrator: answer still rejected after %d attempts (%s)", attempts, verdict.Reason)
		return unverifiedNote + current
	}
	return current
}

func (o *Orchestrator) loadHistory(ctx context.Context, sessionID string) string {
	if o.store == nil || sessionID == "" {
		return ""
	}
	rounds, err := o.store.GetLastNRounds(ctx, sessionID, o.historyRounds)
	if err != nil {
		logger.Warnf("orchestrator: history load failed for %s: %v", sessionID, err)
		return ""
	}
	summary, err := o.store.GetSummary(ctx, sessionID)
	if err != nil {
		logger.Warnf("orchestrator: summary load failed for %s: %v", sessionID, err)
		summary = ""
	}
	return memory.RenderHistory(summary, rounds)
}

func (o *Orchestrator) saveRound(ctx context.Context, sessionID, query, answer string) {
	if o.store == nil || sessionID == "" {
		return
	}
	round := memory.ConversationRound{Question: query, Answer: answer, Timestamp: time.Now()}
	if err := o.store.SaveRound(ctx, sessionID, round); err != nil {
		logger.Warnf("orchestrator: round save failed for %s: %v", sessionID, err)
		return
	}
	if o.summarizer != nil {
		o.summarizer.Enqueue(sessionID)
	}
}

func (o *Orchestrator) finishMetrics(m *metrics.RetrievalMetrics, start time.Time, intent string, success bool, errMsg string) {
	m.TotalLatencyMs = time.Since(start).Milliseconds()
	m.Success = success
	m.ErrorMsg = errMsg
	metrics.ObserveQuery(intent, start)
	m.Log()
}

func rejectionMessage(reason string) string {
	switch reason {
	case validator.ReasonEmpty:
		return emptyInputMessage
	case validator.ReasonTooLong:
		return tooLongMessage
	default:
		return invalidInputMessage
	}
}

func primaryIntent(tasks []schema.IntentTask) schema.Intent {
	if len(tasks) == 0 {
		return schema.IntentUnsupported
	}
	return tasks[0].Intent
}

func findIntent(tasks []schema.IntentTask, intent schema.Intent) (schema.IntentTask, bool) {
	for _, task := range tasks {
		if task.Intent == intent {
			return task, true
		}
	}
	return schema.IntentTask{}, false
}

func allDirect(plans []schema.PipelinePlan) bool {
	for i := range plans {
		if !plans[i].IsDirect() {
			return false
		}
	}
	return len(plans) > 0
}
