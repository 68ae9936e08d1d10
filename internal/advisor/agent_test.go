package advisor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"harborgrid-cloud/internal/auth"
)

type fakeTool struct {
	name     string
	output   string
	err      error
	gotInput json.RawMessage
	gotRole  auth.Role
	calls    int
}

func (f *fakeTool) Name() string { return f.name }

func (f *fakeTool) Definition() anthropic.ToolUnionParam {
	toolParam := anthropic.ToolParam{
		Name:        f.name,
		Description: anthropic.String("test tool"),
		InputSchema: anthropic.ToolInputSchemaParam{Type: "object"},
	}
	return anthropic.ToolUnionParam{OfTool: &toolParam}
}

func (f *fakeTool) Run(ctx context.Context, tenantID string, role auth.Role, input json.RawMessage) (string, error) {
	f.calls++
	f.gotInput = input
	f.gotRole = role
	return f.output, f.err
}

// stubAPI serves canned /v1/messages responses in order.
func stubAPI(t *testing.T, responses []string) (*httptest.Server, *[]string) {
	t.Helper()
	var requests []string
	call := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, string(body))
		if call >= len(responses) {
			http.Error(w, "no more responses", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(responses[call]))
		call++
	}))
	return server, &requests
}

func testClient(serverURL string) anthropic.Client {
	return anthropic.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(serverURL),
		option.WithMaxRetries(0),
	)
}

const toolUseResponse = `{
	"id": "msg_1",
	"type": "message",
	"role": "assistant",
	"model": "claude-sonnet-4-5-20250929",
	"content": [
		{"type": "text", "text": "Checking the forecast."},
		{"type": "tool_use", "id": "tu_1", "name": "pv_forecast", "input": {"hours": 24}}
	],
	"stop_reason": "tool_use",
	"stop_sequence": null,
	"usage": {"input_tokens": 50, "output_tokens": 20}
}`

const finalResponse = `{
	"id": "msg_2",
	"type": "message",
	"role": "assistant",
	"model": "claude-sonnet-4-5-20250929",
	"content": [
		{"type": "text", "text": "PV peaks at 38 kW around noon; run the ice plant then."}
	],
	"stop_reason": "end_turn",
	"stop_sequence": null,
	"usage": {"input_tokens": 80, "output_tokens": 30}
}`

func TestAgent_ToolUseLoop(t *testing.T) {
	server, requests := stubAPI(t, []string{toolUseResponse, finalResponse})
	defer server.Close()

	tool := &fakeTool{name: "pv_forecast", output: `{"forecasts":[{"p50Kw":38}]}`}
	agent, err := NewAgent(testClient(server.URL), []Tool{tool})
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}

	analysis, err := agent.Analyze(context.Background(), "tenant-1", auth.RoleOperator, "When should we make ice?")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !strings.Contains(analysis.Answer, "ice plant") {
		t.Fatalf("answer = %q", analysis.Answer)
	}
	if analysis.ToolCalls != 1 || analysis.Turns != 2 {
		t.Fatalf("tool calls = %d, turns = %d", analysis.ToolCalls, analysis.Turns)
	}
	if tool.calls != 1 {
		t.Fatalf("tool invoked %d times", tool.calls)
	}
	if tool.gotRole != auth.RoleOperator {
		t.Fatalf("tool role = %q", tool.gotRole)
	}
	if !strings.Contains(string(tool.gotInput), `"hours"`) {
		t.Fatalf("tool input = %s", tool.gotInput)
	}

	if len(*requests) != 2 {
		t.Fatalf("expected 2 api calls, got %d", len(*requests))
	}
	// Second call must carry the tool result back.
	if !strings.Contains((*requests)[1], "tu_1") || !strings.Contains((*requests)[1], "forecasts") {
		t.Fatalf("second request missing tool result: %s", (*requests)[1])
	}
}

func TestAgent_ToolErrorReportedToModel(t *testing.T) {
	server, requests := stubAPI(t, []string{toolUseResponse, finalResponse})
	defer server.Close()

	tool := &fakeTool{name: "pv_forecast", err: context.DeadlineExceeded}
	agent, err := NewAgent(testClient(server.URL), []Tool{tool})
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}

	if _, err := agent.Analyze(context.Background(), "tenant-1", auth.RoleViewer, "forecast?"); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !strings.Contains((*requests)[1], "is_error") {
		t.Fatalf("tool error not flagged: %s", (*requests)[1])
	}
}

func TestAgent_IterationBudget(t *testing.T) {
	// The model keeps asking for tools and never answers.
	server, _ := stubAPI(t, []string{toolUseResponse, toolUseResponse, toolUseResponse})
	defer server.Close()

	tool := &fakeTool{name: "pv_forecast", output: "{}"}
	agent, err := NewAgent(testClient(server.URL), []Tool{tool}, WithMaxIterations(3))
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	if _, err := agent.Analyze(context.Background(), "tenant-1", auth.RoleViewer, "loop?"); err == nil {
		t.Fatal("expected iteration budget error")
	}
	if tool.calls != 3 {
		t.Fatalf("tool invoked %d times", tool.calls)
	}
}

func TestAgent_RejectsEmptyQuestion(t *testing.T) {
	server, _ := stubAPI(t, nil)
	defer server.Close()
	agent, err := NewAgent(testClient(server.URL), []Tool{&fakeTool{name: "t"}})
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	if _, err := agent.Analyze(context.Background(), "tenant-1", auth.RoleViewer, "  "); err == nil {
		t.Fatal("expected error for empty question")
	}
	if _, err := agent.Analyze(context.Background(), "", auth.RoleViewer, "q"); err == nil {
		t.Fatal("expected error for empty tenant")
	}
}
