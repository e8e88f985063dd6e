package agent

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/akashmahlaz/rockreach-sub000/pkg/logging"
)

// ToolOutcome is the per-tool slice of a step event.
type ToolOutcome struct {
	Name       string `json:"name"`
	Success    bool   `json:"success"`
	DurationMs int64  `json:"duration_ms"`
}

// StepEvent is emitted once per orchestrator step. Diagnostic only; nothing
// reads it back into control flow.
type StepEvent struct {
	ConversationID string        `json:"conversation_id,omitempty"`
	TenantID       string        `json:"tenant_id"`
	Step           int           `json:"step"`
	Tools          []ToolOutcome `json:"tools,omitempty"`
	InputTokens    int           `json:"input_tokens,omitempty"`
	OutputTokens   int           `json:"output_tokens,omitempty"`
	Final          bool          `json:"final"`
}

// EventSink consumes step events.
type EventSink interface {
	StepCompleted(event StepEvent)
}

// LogSink writes step events to the structured log and step counters to
// prometheus.
type LogSink struct {
	logger logging.Logger

	stepsTotal *prometheus.CounterVec
	toolsTotal *prometheus.CounterVec
}

func NewLogSink(logger logging.Logger, registry *prometheus.Registry) *LogSink {
	s := &LogSink{
		logger: logger,
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_steps_total",
			Help: "Orchestrator steps by outcome",
		}, []string{"outcome"}),
		toolsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_tool_calls_total",
			Help: "Tool invocations by tool and outcome",
		}, []string{"tool", "outcome"}),
	}
	if registry != nil {
		registry.MustRegister(s.stepsTotal, s.toolsTotal)
	} else {
		prometheus.MustRegister(s.stepsTotal, s.toolsTotal)
	}
	return s
}

func (s *LogSink) StepCompleted(event StepEvent) {
	outcome := "tool_step"
	if event.Final {
		outcome = "final"
	}
	s.stepsTotal.WithLabelValues(outcome).Inc()

	toolNames := make([]string, 0, len(event.Tools))
	for _, tool := range event.Tools {
		toolNames = append(toolNames, tool.Name)
		result := "success"
		if !tool.Success {
			result = "failure"
		}
		s.toolsTotal.WithLabelValues(tool.Name, result).Inc()
	}

	s.logger.WithFields(logging.Fields{
		"conversation_id": event.ConversationID,
		"tenant_id":       event.TenantID,
		"step":            event.Step,
		"tools":           toolNames,
		"input_tokens":    event.InputTokens,
		"output_tokens":   event.OutputTokens,
		"final":           event.Final,
	}).Info("Agent step completed")
}
