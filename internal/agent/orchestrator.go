package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/akashmahlaz/rockreach-sub000/internal/tools"
	"github.com/akashmahlaz/rockreach-sub000/pkg/llm"
	"github.com/akashmahlaz/rockreach-sub000/pkg/logging"
)

// Hard ceiling on model steps per turn. The model can keep asking for tools;
// the loop cannot keep granting them.
const defaultMaxSteps = 6

const systemPrompt = `You are a lead-generation assistant. You can search an external contact-data provider, enrich and save leads, query the workspace's own data, export results, and send outreach emails. Use tools when they help; answer directly when they don't. Report partial failures honestly.`

// ToolCallRecord is the audit trail of one executed tool call within a turn.
type ToolCallRecord struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Success   bool            `json:"success"`
}

// TurnResult is the outcome of one full agent turn.
type TurnResult struct {
	Answer    string           `json:"answer"`
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
	Steps     int              `json:"steps"`
	Usage     llm.Usage        `json:"usage"`
	Aborted   bool             `json:"aborted,omitempty"`
}

// Orchestrator drives one agent turn: model step, tool execution, repeat,
// bounded by the step budget.
type Orchestrator struct {
	provider llm.Provider
	registry *tools.Registry
	sink     EventSink
	logger   logging.Logger
	maxSteps int
}

func NewOrchestrator(provider llm.Provider, registry *tools.Registry, sink EventSink, logger logging.Logger) *Orchestrator {
	return &Orchestrator{
		provider: provider,
		registry: registry,
		sink:     sink,
		logger:   logger,
		maxSteps: defaultMaxSteps,
	}
}

// Run executes one turn over the effective history. Cancellation lets
// in-flight tool calls finish but suppresses further model steps.
func (o *Orchestrator) Run(ctx context.Context, inv tools.Invocation, conversationID string, history []ChatMessage) (TurnResult, error) {
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})
	for _, msg := range history {
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Text()})
	}

	result := TurnResult{}
	var answer strings.Builder
	catalog := o.registry.Catalog()

	for step := 0; step < o.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			result.Aborted = true
			break
		}
		result.Steps = step + 1

		content, toolCalls, usage, err := o.modelStep(ctx, messages, catalog)
		if err != nil {
			return result, err
		}
		result.Usage.InputTokens += usage.InputTokens
		result.Usage.OutputTokens += usage.OutputTokens
		if content != "" {
			answer.Reset()
			answer.WriteString(content)
		}

		if len(toolCalls) == 0 {
			o.emit(StepEvent{
				ConversationID: conversationID,
				TenantID:       inv.TenantID,
				Step:           step,
				InputTokens:    usage.InputTokens,
				OutputTokens:   usage.OutputTokens,
				Final:          true,
			})
			result.Answer = answer.String()
			return result, nil
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   content,
			ToolCalls: toolCalls,
		})

		outcomes := o.executeToolCalls(ctx, inv, toolCalls)
		event := StepEvent{
			ConversationID: conversationID,
			TenantID:       inv.TenantID,
			Step:           step,
			InputTokens:    usage.InputTokens,
			OutputTokens:   usage.OutputTokens,
		}
		for i, call := range toolCalls {
			record := ToolCallRecord{Name: call.Name, Success: outcomes[i].success}
			if call.Arguments != "" {
				record.Arguments = json.RawMessage(call.Arguments)
			}
			result.ToolCalls = append(result.ToolCalls, record)
			event.Tools = append(event.Tools, ToolOutcome{
				Name:       call.Name,
				Success:    outcomes[i].success,
				DurationMs: outcomes[i].durationMs,
			})
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    outcomes[i].payload,
				Name:       call.Name,
				ToolCallID: call.ID,
			})
		}
		o.emit(event)

		if step == o.maxSteps-2 {
			messages = append(messages, llm.Message{
				Role:    "user",
				Content: "[System note: one model step remains. Answer now with what you have; do not request more tools.]",
			})
		}
	}

	// Budget exhausted or turn cancelled mid-loop. Whatever partial answer
	// exists is the answer.
	result.Answer = answer.String()
	if result.Answer == "" && result.Aborted {
		result.Answer = "The request was cancelled before an answer was ready."
	}
	if result.Answer == "" {
		result.Answer = "I ran out of steps before finishing. Here is what was completed so far; ask me to continue if you want more."
	}
	return result, nil
}

func (o *Orchestrator) modelStep(ctx context.Context, messages []llm.Message, catalog []llm.Tool) (string, []llm.ToolCall, llm.Usage, error) {
	stream, err := o.provider.Complete(ctx, messages, catalog)
	if err != nil {
		return "", nil, llm.Usage{}, err
	}
	defer stream.Close()

	var content strings.Builder
	var toolCalls []llm.ToolCall
	var usage llm.Usage
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, usage, err
		}
		content.WriteString(chunk.Content)
		if len(chunk.ToolCalls) > 0 {
			toolCalls = mergeToolCalls(toolCalls, chunk.ToolCalls)
		}
		if chunk.Usage != nil {
			usage.InputTokens += chunk.Usage.InputTokens
			usage.OutputTokens += chunk.Usage.OutputTokens
		}
	}
	return content.String(), toolCalls, usage, nil
}

type toolExecution struct {
	payload    string
	success    bool
	durationMs int64
}

// executeToolCalls runs a step's tool calls concurrently and returns results
// in call order. All calls complete before the next model step.
func (o *Orchestrator) executeToolCalls(ctx context.Context, inv tools.Invocation, calls []llm.ToolCall) []toolExecution {
	results := make([]toolExecution, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c llm.ToolCall) {
			defer wg.Done()
			started := time.Now()
			envelope := o.registry.Execute(ctx, inv, c.Name, json.RawMessage(c.Arguments))
			payload, err := json.Marshal(envelope)
			if err != nil {
				payload = []byte(`{"success":false,"error":"tool result could not be encoded"}`)
			}
			ok, _ := envelope["success"].(bool)
			results[idx] = toolExecution{
				payload:    string(payload),
				success:    ok,
				durationMs: time.Since(started).Milliseconds(),
			}
		}(i, call)
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) emit(event StepEvent) {
	if o.sink != nil {
		o.sink.StepCompleted(event)
	}
}

// mergeToolCalls folds streamed partial tool calls into the accumulated set,
// matching by id.
func mergeToolCalls(existing, incoming []llm.ToolCall) []llm.ToolCall {
	for _, inc := range incoming {
		found := false
		for i, ex := range existing {
			if ex.ID != "" && ex.ID == inc.ID {
				existing[i].Arguments = inc.Arguments
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, inc)
		}
	}
	return existing
}
