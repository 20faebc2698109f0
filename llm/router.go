package llm

import (
	"context"
	"fmt"

	"github.com/finchat/ragcore/common/logger"
	"github.com/finchat/ragcore/config"
	"github.com/finchat/ragcore/schema"
)

// Gateway dispatches generation calls to a backend chosen by task type.
// The routing table is resolved once at construction; unrouted tasks use
// the default backend with the default-route temperature.
type Gateway struct {
	routes   map[schema.TaskType]route
	fallback route
}

type route struct {
	provider    Provider
	temperature float64
	hasTemp     bool
}

// Deterministic tasks run cold; judgment and planning slightly warm;
// user-facing explanation warm. Config routes override per task.
var defaultTemperatures = map[schema.TaskType]float64{
	schema.TaskIntentClassification: 0.0,
	schema.TaskQueryPlanning:        0.2,
	schema.TaskOutputJudge:          0.2,
	schema.TaskCragEvaluation:       0.2,
	schema.TaskCalcInterpretation:   0.3,
	schema.TaskKnowledgeExplanation: 0.7,
	schema.TaskAdvisoryGeneration:   0.7,
	schema.TaskSummarization:        0.7,
	schema.TaskAnswerFusion:         0.5,
}

// NewGateway resolves backends and the routing table from config.
func NewGateway(cfg *config.LLMConfig) (*Gateway, error) {
	if cfg == nil || len(cfg.Backends) == 0 {
		return nil, fmt.Errorf("llm: no backends configured")
	}

	providers := make(map[string]Provider, len(cfg.Backends))
	for _, b := range cfg.Backends {
		p, err := NewOpenAIProvider(b)
		if err != nil {
			return nil, err
		}
		providers[b.Name] = p
	}

	defName := cfg.Default
	if defName == "" {
		defName = cfg.Backends[0].Name
	}
	def, ok := providers[defName]
	if !ok {
		return nil, fmt.Errorf("llm: default backend %q not declared", defName)
	}

	g := &Gateway{
		routes:   make(map[schema.TaskType]route),
		fallback: route{provider: def},
	}
	for task, temp := range defaultTemperatures {
		g.routes[task] = route{provider: def, temperature: temp, hasTemp: true}
	}
	for _, r := range cfg.Routes {
		p := def
		if r.Backend != "" {
			bp, ok := providers[r.Backend]
			if !ok {
				return nil, fmt.Errorf("llm: route %q references unknown backend %q", r.Task, r.Backend)
			}
			p = bp
		}
		rt := route{provider: p}
		if r.Temperature != nil {
			rt.temperature = *r.Temperature
			rt.hasTemp = true
		} else if t, ok := defaultTemperatures[schema.TaskType(r.Task)]; ok {
			rt.temperature = t
			rt.hasTemp = true
		}
		g.routes[schema.TaskType(r.Task)] = rt
	}
	return g, nil
}

// NewGatewayWithProvider wires every task to a single provider, mainly for
// tests and minimal setups.
func NewGatewayWithProvider(p Provider) *Gateway {
	g := &Gateway{
		routes:   make(map[schema.TaskType]route),
		fallback: route{provider: p},
	}
	for task, temp := range defaultTemperatures {
		g.routes[task] = route{provider: p, temperature: temp, hasTemp: true}
	}
	return g
}

// Generate routes one completion call by task type.
func (g *Gateway) Generate(ctx context.Context, task schema.TaskType, prompt string) (string, error) {
	rt, ok := g.routes[task]
	if !ok {
		logger.Debugf("llm: no route for task %s, using default backend", task)
		rt = g.fallback
	}
	if rt.hasTemp {
		return rt.provider.GenerateWithTemperature(ctx, prompt, rt.temperature)
	}
	return rt.provider.GenerateCompletion(ctx, prompt)
}

// ProviderFor exposes the backend behind a task route, for components that
// hold a plain Provider.
func (g *Gateway) ProviderFor(task schema.TaskType) Provider {
	if rt, ok := g.routes[task]; ok {
		return rt.provider
	}
	return g.fallback.provider
}

// Temperature returns the resolved temperature for a task route. The
// second return is false when the route has no explicit temperature.
func (g *Gateway) Temperature(task schema.TaskType) (float64, bool) {
	rt, ok := g.routes[task]
	if !ok {
		return 0, false
	}
	return rt.temperature, rt.hasTemp
}
