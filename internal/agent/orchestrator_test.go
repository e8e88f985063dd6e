package agent

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/akashmahlaz/rockreach-sub000/internal/tools"
	"github.com/akashmahlaz/rockreach-sub000/pkg/llm"
	"github.com/akashmahlaz/rockreach-sub000/pkg/logging"
)

type scriptedStep struct {
	content   string
	toolCalls []llm.ToolCall
	usage     *llm.Usage
}

type fakeProvider struct {
	mu       sync.Mutex
	steps    []scriptedStep
	calls    int
	received [][]llm.Message
}

func (f *fakeProvider) Complete(ctx context.Context, messages []llm.Message, catalog []llm.Tool) (llm.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, append([]llm.Message(nil), messages...))
	step := f.steps[len(f.steps)-1]
	if f.calls < len(f.steps) {
		step = f.steps[f.calls]
	}
	f.calls++

	var chunks []llm.Chunk
	if step.content != "" {
		chunks = append(chunks, llm.Chunk{Content: step.content})
	}
	if len(step.toolCalls) > 0 {
		chunks = append(chunks, llm.Chunk{ToolCalls: step.toolCalls})
	}
	if step.usage != nil {
		chunks = append(chunks, llm.Chunk{Usage: step.usage})
	}
	return &fakeStream{chunks: chunks}, nil
}

type fakeStream struct {
	chunks []llm.Chunk
	pos    int
}

func (f *fakeStream) Recv() (llm.Chunk, error) {
	if f.pos >= len(f.chunks) {
		return llm.Chunk{}, io.EOF
	}
	chunk := f.chunks[f.pos]
	f.pos++
	return chunk, nil
}

func (f *fakeStream) Close() error { return nil }

type fakeSink struct {
	mu     sync.Mutex
	events []StepEvent
}

func (f *fakeSink) StepCompleted(event StepEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

type stubCaller struct {
	mu    sync.Mutex
	calls int
}

func (s *stubCaller) Call(ctx context.Context, tenantID, userID, path, method string, query map[string]string, body interface{}) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return json.RawMessage(`{"profiles":[]}`), nil
}

func newTestOrchestrator(provider llm.Provider, sink EventSink) (*Orchestrator, *stubCaller) {
	caller := &stubCaller{}
	registry := tools.NewRegistry(logging.NewLogger())
	registry.RegisterProviderTools(caller)
	return NewOrchestrator(provider, registry, sink, logging.NewLogger()), caller
}

func TestRunDirectAnswer(t *testing.T) {
	provider := &fakeProvider{steps: []scriptedStep{
		{content: "There are 3 leads.", usage: &llm.Usage{InputTokens: 10, OutputTokens: 5}},
	}}
	sink := &fakeSink{}
	o, caller := newTestOrchestrator(provider, sink)

	result, err := o.Run(context.Background(), tools.Invocation{TenantID: "t1"}, "c1", msgs("m1"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Answer != "There are 3 leads." {
		t.Fatalf("unexpected answer %q", result.Answer)
	}
	if result.Steps != 1 || caller.calls != 0 {
		t.Fatalf("expected single step with no tools, got %+v", result)
	}
	if result.Usage.InputTokens != 10 || result.Usage.OutputTokens != 5 {
		t.Fatalf("unexpected usage %+v", result.Usage)
	}
	if len(sink.events) != 1 || !sink.events[0].Final {
		t.Fatalf("expected one final event, got %+v", sink.events)
	}
}

func TestRunToolStepThenAnswer(t *testing.T) {
	provider := &fakeProvider{steps: []scriptedStep{
		{toolCalls: []llm.ToolCall{{ID: "call_1", Name: "search_leads", Arguments: `{"query":"cto"}`}}},
		{content: "Found them."},
	}}
	sink := &fakeSink{}
	o, caller := newTestOrchestrator(provider, sink)

	result, err := o.Run(context.Background(), tools.Invocation{TenantID: "t1"}, "c1", msgs("m1"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Answer != "Found them." || result.Steps != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if caller.calls != 1 {
		t.Fatalf("expected one provider call, got %d", caller.calls)
	}
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].Name != "search_leads" || !result.ToolCalls[0].Success {
		t.Fatalf("unexpected tool records %+v", result.ToolCalls)
	}

	// The second model step must see the tool result paired to the call id.
	second := provider.received[1]
	last := second[len(second)-1]
	if last.Role != "tool" || last.ToolCallID != "call_1" {
		t.Fatalf("expected tool message in history, got %+v", last)
	}
	if !strings.Contains(last.Content, `"success":true`) {
		t.Fatalf("expected envelope in tool content, got %q", last.Content)
	}

	if len(sink.events) != 2 {
		t.Fatalf("expected two step events, got %d", len(sink.events))
	}
	if len(sink.events[0].Tools) != 1 || sink.events[0].Tools[0].Name != "search_leads" {
		t.Fatalf("unexpected tool event %+v", sink.events[0])
	}
}

func TestRunStepBudget(t *testing.T) {
	// The model asks for tools on every step; the loop must stop anyway.
	provider := &fakeProvider{steps: []scriptedStep{
		{toolCalls: []llm.ToolCall{{ID: "call_x", Name: "search_leads", Arguments: `{"query":"cto"}`}}},
	}}
	o, _ := newTestOrchestrator(provider, &fakeSink{})

	result, err := o.Run(context.Background(), tools.Invocation{TenantID: "t1"}, "c1", msgs("m1"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Steps != defaultMaxSteps {
		t.Fatalf("expected %d steps, got %d", defaultMaxSteps, result.Steps)
	}
	if provider.calls != defaultMaxSteps {
		t.Fatalf("expected %d model calls, got %d", defaultMaxSteps, provider.calls)
	}
	if result.Answer == "" {
		t.Fatal("budget exhaustion must still produce an answer")
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &fakeProvider{steps: []scriptedStep{{content: "never"}}}
	o, _ := newTestOrchestrator(provider, &fakeSink{})

	result, err := o.Run(ctx, tools.Invocation{TenantID: "t1"}, "c1", msgs("m1"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.Aborted {
		t.Fatal("expected aborted result")
	}
	if provider.calls != 0 {
		t.Fatalf("cancelled turn must not call the model, got %d calls", provider.calls)
	}
}

func TestMergeToolCalls(t *testing.T) {
	merged := mergeToolCalls(nil, []llm.ToolCall{{ID: "c1", Name: "search_leads", Arguments: `{"que`}})
	merged = mergeToolCalls(merged, []llm.ToolCall{{ID: "c1", Name: "search_leads", Arguments: `{"query":"cto"}`}})
	merged = mergeToolCalls(merged, []llm.ToolCall{{ID: "c2", Name: "enrich_lead", Arguments: `{}`}})

	if len(merged) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(merged))
	}
	if merged[0].Arguments != `{"query":"cto"}` {
		t.Fatalf("expected arguments replaced, got %q", merged[0].Arguments)
	}
}
