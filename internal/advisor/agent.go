// Package advisor answers operator questions about the facility using
// an LLM agent with read-only data tools, and plans deferrable load
// windows deterministically from the tariff calendar and PV forecast.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"harborgrid-cloud/internal/auth"
	"harborgrid-cloud/internal/observability/metrics"
)

const systemPrompt = `You are the operations advisor for a seafood processing facility.
The facility has cold storage rooms, processing lines, an ice plant and a rooftop PV array.
Answer questions about power use, temperatures, alerts and PV output using the tools.
Readings are in the readings table: value_numeric holds the measurement, point_key names it
(e.g. power_kw, temp_c, humidity_pct), zone_id names the zone, ts is the sample time.
Be concrete: cite numbers you queried. If data is missing say so, never invent values.`

// Agent runs the analysis loop against the Anthropic API.
type Agent struct {
	client        anthropic.Client
	model         anthropic.Model
	maxTokens     int64
	maxIterations int
	tools         []Tool
	logger        *log.Logger
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithModel overrides the default model.
func WithModel(model string) AgentOption {
	return func(a *Agent) { a.model = anthropic.Model(model) }
}

// WithMaxIterations bounds the tool-use loop.
func WithMaxIterations(n int) AgentOption {
	return func(a *Agent) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

// WithMaxTokens sets the per-call completion budget.
func WithMaxTokens(n int64) AgentOption {
	return func(a *Agent) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

// WithLogger sets the agent logger.
func WithLogger(logger *log.Logger) AgentOption {
	return func(a *Agent) { a.logger = logger }
}

// NewAgent constructs an Agent.
func NewAgent(client anthropic.Client, tools []Tool, opts ...AgentOption) (*Agent, error) {
	if len(tools) == 0 {
		return nil, errors.New("advisor agent: no tools")
	}
	a := &Agent{
		client:        client,
		model:         anthropic.Model("claude-sonnet-4-5-20250929"),
		maxTokens:     2048,
		maxIterations: 8,
		tools:         tools,
		logger:        log.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Analysis is the agent's answer plus loop accounting.
type Analysis struct {
	Answer    string `json:"answer"`
	ToolCalls int    `json:"toolCalls"`
	Turns     int    `json:"turns"`
}

// Analyze answers one question. Tool access is scoped to the caller's
// tenant and role for the whole loop.
func (a *Agent) Analyze(ctx context.Context, tenantID string, role auth.Role, question string) (Analysis, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Analysis{}, errors.New("advisor agent: empty question")
	}
	if tenantID == "" {
		return Analysis{}, errors.New("advisor agent: empty tenant")
	}

	start := time.Now()
	analysis, err := a.run(ctx, tenantID, role, question)
	if err != nil {
		metrics.ObserveAdvisorRun(metrics.ResultError, time.Since(start))
		return Analysis{}, err
	}
	metrics.ObserveAdvisorRun(metrics.ResultSuccess, time.Since(start))
	return analysis, nil
}

func (a *Agent) run(ctx context.Context, tenantID string, role auth.Role, question string) (Analysis, error) {
	toolParams := make([]anthropic.ToolUnionParam, 0, len(a.tools))
	byName := make(map[string]Tool, len(a.tools))
	for _, tool := range a.tools {
		toolParams = append(toolParams, tool.Definition())
		byName[tool.Name()] = tool
	}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(question)),
	}

	var analysis Analysis
	for turn := 0; turn < a.maxIterations; turn++ {
		analysis.Turns = turn + 1

		response, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     a.model,
			MaxTokens: a.maxTokens,
			System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
			Messages:  messages,
			Tools:     toolParams,
		})
		if err != nil {
			return Analysis{}, fmt.Errorf("advisor agent: api call: %w", err)
		}
		messages = append(messages, response.ToParam())

		var results []anthropic.ContentBlockParamUnion
		for _, block := range response.Content {
			switch block := block.AsAny().(type) {
			case anthropic.TextBlock:
				if analysis.Answer != "" {
					analysis.Answer += "\n"
				}
				analysis.Answer += block.Text
			case anthropic.ToolUseBlock:
				analysis.ToolCalls++
				results = append(results, a.callTool(ctx, byName, tenantID, role, block))
			}
		}

		if response.StopReason != anthropic.StopReasonToolUse {
			if strings.TrimSpace(analysis.Answer) == "" {
				return Analysis{}, errors.New("advisor agent: empty completion")
			}
			return analysis, nil
		}
		if len(results) == 0 {
			return Analysis{}, errors.New("advisor agent: tool_use stop without tool blocks")
		}
		// Fresh text accumulates on the next turn alongside tool output.
		analysis.Answer = ""
		messages = append(messages, anthropic.NewUserMessage(results...))
	}
	return Analysis{}, fmt.Errorf("advisor agent: no answer after %d turns", a.maxIterations)
}

func (a *Agent) callTool(ctx context.Context, byName map[string]Tool, tenantID string, role auth.Role, block anthropic.ToolUseBlock) anthropic.ContentBlockParamUnion {
	tool, ok := byName[block.Name]
	if !ok {
		metrics.IncAdvisorToolCall(block.Name, metrics.ResultError)
		return anthropic.NewToolResultBlock(block.ID, fmt.Sprintf("unknown tool %q", block.Name), true)
	}
	output, err := tool.Run(ctx, tenantID, role, block.Input)
	if err != nil {
		metrics.IncAdvisorToolCall(block.Name, metrics.ResultError)
		a.logger.Printf("advisor tool %s error: %v", block.Name, err)
		return anthropic.NewToolResultBlock(block.ID, err.Error(), true)
	}
	metrics.IncAdvisorToolCall(block.Name, metrics.ResultSuccess)
	return anthropic.NewToolResultBlock(block.ID, output, false)
}
