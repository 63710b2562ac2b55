// Package router implements the Intent Router (SPEC_FULL.md §4.2): it
// classifies a free-form task into one of four workflow domains using the
// LLM, validated against a strict JSON schema, falling back to a
// keyword/heuristic classifier when the LLM's output is unusable or
// under-confident.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentrt/runtime/model"
)

// Domain names one of the four workflow domains.
type Domain string

const (
	DomainCoding       Domain = "coding"
	DomainResearch     Domain = "research"
	DomainDataAnalysis Domain = "data_analysis"
	DomainGeneral      Domain = "general"
)

// Complexity names the Task Decomposer's/Intent Router's coarse complexity
// bucket.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Classification is the Intent Router's return shape.
type Classification struct {
	Domain             Domain     `json:"domain"`
	Confidence         float64    `json:"confidence"`
	Reasoning          string     `json:"reasoning"`
	RequiresSubAgents  bool       `json:"requires_sub_agents"`
	EstimatedComplexity Complexity `json:"estimated_complexity"`
}

// RoundTrip serializes and deserializes the classification, exercising the
// §8 universal invariant that domain/confidence/requires_sub_agents survive
// an object→map→object round trip.
func (c Classification) RoundTrip() (Classification, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return Classification{}, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return Classification{}, err
	}
	raw2, err := json.Marshal(m)
	if err != nil {
		return Classification{}, err
	}
	var out Classification
	if err := json.Unmarshal(raw2, &out); err != nil {
		return Classification{}, err
	}
	return out, nil
}

const classificationSchemaJSON = `{
  "type": "object",
  "required": ["domain", "confidence", "reasoning", "requires_sub_agents", "estimated_complexity"],
  "properties": {
    "domain": {"type": "string", "enum": ["coding", "research", "data_analysis", "general"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "reasoning": {"type": "string"},
    "requires_sub_agents": {"type": "boolean"},
    "estimated_complexity": {"type": "string", "enum": ["low", "medium", "high"]}
  }
}`

// greetings is the short fixed multi-language salutation set that bypasses
// classification entirely per SPEC_FULL.md §4.2.
var greetings = map[string]bool{
	"hi": true, "hello": true, "hey": true, "yo": true,
	"hola": true, "bonjour": true, "salut": true, "ciao": true,
	"ola": true, "namaste": true, "konnichiwa": true, "ni hao": true,
	"thanks": true, "thank you": true, "good morning": true, "good evening": true,
}

// Completer is the narrow LLM surface the router needs.
type Completer interface {
	ChatCompletion(ctx context.Context, req *model.Request) (string, error)
}

// Router classifies tasks into workflow domains.
type Router struct {
	llm       Completer
	schema    *jsonschema.Schema
	threshold float64
}

// New constructs a Router. threshold is the minimum LLM-reported confidence
// (default 0.5) below which the heuristic fallback classifier is used
// instead.
func New(llm Completer, threshold float64) (*Router, error) {
	if threshold <= 0 {
		threshold = 0.5
	}
	compiler := jsonschema.NewCompiler()
	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(classificationSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("router: parse schema: %w", err)
	}
	const resource = "agentrt://router/classification.schema.json"
	if err := compiler.AddResource(resource, schemaDoc); err != nil {
		return nil, fmt.Errorf("router: add schema resource: %w", err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("router: compile schema: %w", err)
	}
	return &Router{llm: llm, schema: schema, threshold: threshold}, nil
}

// Classify implements classify(task) -> Classification.
func (r *Router) Classify(ctx context.Context, task string) (Classification, error) {
	if isGreeting(task) {
		return Classification{
			Domain:              DomainGeneral,
			Confidence:           1,
			Reasoning:            "greeting-like input bypasses classification",
			RequiresSubAgents:    false,
			EstimatedComplexity:  ComplexityLow,
		}, nil
	}

	classification, err := r.classifyWithLLM(ctx, task)
	if err == nil && classification.Confidence >= r.threshold {
		return classification, nil
	}
	return r.classifyHeuristically(task), nil
}

func (r *Router) classifyWithLLM(ctx context.Context, task string) (Classification, error) {
	req := &model.Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: classificationPrompt},
			{Role: model.RoleUser, Content: task},
		},
		Temperature:        0,
		ResponseJSONSchema: []byte(classificationSchemaJSON),
	}
	raw, err := r.llm.ChatCompletion(ctx, req)
	if err != nil {
		return Classification{}, err
	}
	var asAny any
	if err := json.Unmarshal([]byte(raw), &asAny); err != nil {
		return Classification{}, fmt.Errorf("router: invalid classification json: %w", err)
	}
	if err := r.schema.Validate(asAny); err != nil {
		return Classification{}, fmt.Errorf("router: classification failed schema validation: %w", err)
	}
	var c Classification
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Classification{}, err
	}
	return c, nil
}

// classifyHeuristically is the safe keyword-based fallback used when the
// LLM's output fails to parse, fails schema validation, or is
// under-confident.
func (r *Router) classifyHeuristically(task string) Classification {
	lower := strings.ToLower(task)
	switch {
	case containsAny(lower, "code", "function", "bug", "implement", "refactor", "test", "compile", "git"):
		return Classification{Domain: DomainCoding, Confidence: 0.6, Reasoning: "keyword match: coding", RequiresSubAgents: false, EstimatedComplexity: ComplexityMedium}
	case containsAny(lower, "research", "find out", "investigate", "survey", "compare"):
		return Classification{Domain: DomainResearch, Confidence: 0.6, Reasoning: "keyword match: research", RequiresSubAgents: false, EstimatedComplexity: ComplexityMedium}
	case containsAny(lower, "dataset", "csv", "analyze data", "chart", "visualize", "dataframe"):
		return Classification{Domain: DomainDataAnalysis, Confidence: 0.6, Reasoning: "keyword match: data_analysis", RequiresSubAgents: false, EstimatedComplexity: ComplexityMedium}
	default:
		return Classification{Domain: DomainGeneral, Confidence: 0.5, Reasoning: "no strong keyword match", RequiresSubAgents: false, EstimatedComplexity: ComplexityLow}
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func isGreeting(task string) bool {
	if len(task) > 20 {
		return false
	}
	return greetings[strings.ToLower(strings.TrimSpace(task))]
}

const classificationPrompt = `You are an intent classifier for an agent runtime. Classify the
user's task into exactly one domain: coding, research, data_analysis, or general. Respond with
strict JSON matching the provided schema: {"domain", "confidence", "reasoning",
"requires_sub_agents", "estimated_complexity"}. confidence is your calibrated probability in
[0,1] that the chosen domain is correct.`
