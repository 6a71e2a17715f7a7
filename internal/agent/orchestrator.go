package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/sandy/internal/provider"
	"github.com/flemzord/sandy/internal/scheduler"
	"github.com/flemzord/sandy/internal/telemetry"
	"github.com/flemzord/sandy/internal/tool"
)

// Orchestrator runs the bounded tool-use conversation.
type Orchestrator struct {
	backend    provider.Provider
	sched      *scheduler.Scheduler
	dispatcher *tool.Dispatcher
	classifier Classifier
	config     Config
	metrics    *telemetry.Metrics
	logger     *slog.Logger
}

// NewOrchestrator creates an Orchestrator. dispatcher may be nil, which
// disables tools; classifier defaults to PhraseClassifier.
func NewOrchestrator(backend provider.Provider, sched *scheduler.Scheduler, dispatcher *tool.Dispatcher, classifier Classifier, cfg Config, logger *slog.Logger) *Orchestrator {
	if classifier == nil {
		classifier = PhraseClassifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		backend:    backend,
		sched:      sched,
		dispatcher: dispatcher,
		classifier: classifier,
		config:     cfg.withDefaults(),
		logger:     logger,
	}
}

// SetMetrics attaches metrics. nil disables them.
func (o *Orchestrator) SetMetrics(m *telemetry.Metrics) {
	o.metrics = m
}

// buildTranscript assembles the system message and history.
func (o *Orchestrator) buildTranscript(req Request) []provider.LLMMessage {
	system := req.Persona.System() + "\n\n" +
		grounding(o.config.Now().In(o.config.Location), req.Channel, req.Scope.ServerName)
	if req.Memory != "" {
		system += memoryHeader + req.Memory
	}
	messages := make([]provider.LLMMessage, 0, len(req.History)+1)
	messages = append(messages, provider.LLMMessage{Role: provider.MessageRoleSystem, Content: system})
	return append(messages, req.History...)
}

func (o *Orchestrator) complete(ctx context.Context, messages []provider.LLMMessage, tools []provider.ToolDefinition) (provider.CompletionResponse, error) {
	temp := o.config.Temperature
	req := provider.CompletionRequest{
		Model:    o.config.Model,
		Messages: messages,
		Tools:    tools,
		Options: provider.Options{
			Temperature: &temp,
			NumPredict:  o.config.NumPredict,
			NumCtx:      o.config.NumCtx,
		},
		KeepAlive: o.config.KeepAlive,
	}
	var resp provider.CompletionResponse
	err := o.sched.Do(ctx, scheduler.RoleGenerate, scheduler.Interactive, func(ctx context.Context) error {
		var err error
		resp, err = o.backend.Complete(ctx, req)
		return err
	})
	return resp, err
}

// Generate runs the conversation to a plain reply or until the round
// budget is spent. After MaxToolRounds rounds of tool calls or nudges the
// backend is asked once more and that reply is returned unevaluated, so at
// most MaxToolRounds+1 completions are made. Only backend failures are
// returned as errors.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (Response, error) {
	ctx, span := telemetry.Tracer("agent").Start(ctx, "agent.generate",
		trace.WithAttributes(
			attribute.Int64("server_id", req.Scope.ServerID),
			attribute.Bool("tools", req.Tools),
		))
	defer span.End()

	res, err := o.generate(ctx, req)
	span.SetAttributes(
		attribute.Int("rounds", res.Rounds),
		attribute.Int("tool_calls", len(res.ToolCalls)),
		attribute.Int("corrections", res.Corrections),
		attribute.String("final_state", res.Final.String()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (o *Orchestrator) generate(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	messages := o.buildTranscript(req)

	var tools []provider.ToolDefinition
	var toolNames []string
	if req.Tools && o.dispatcher != nil {
		tools = o.dispatcher.Registry().Definitions()
		toolNames = o.dispatcher.Registry().Names()
	}

	res := Response{Final: StateAwaitingResponse}
	for round := 0; ; round++ {
		resp, err := o.complete(ctx, messages, tools)
		if err != nil && round == 0 && len(tools) > 0 && errors.Is(err, provider.ErrBadRequest) {
			o.logger.Warn("agent: backend rejected tools, retrying without them", "error", err)
			tools, toolNames = nil, nil
			res.ToolsDropped = true
			resp, err = o.complete(ctx, messages, nil)
		}
		if err != nil {
			o.metrics.RecordError()
			return res, fmt.Errorf("agent: generate round %d: %w", round, err)
		}

		res.Rounds = round + 1
		res.Content = resp.Content
		addUsage(&res.Usage, resp.Usage)

		// The answer to the last round's tool results or nudge is taken as is.
		if round == o.config.MaxToolRounds {
			res.Final = StateRoundExhausted
			o.logger.Warn("agent: tool rounds exhausted, using last reply",
				"rounds", res.Rounds,
				"tool_calls", len(res.ToolCalls),
				"ignored_tool_calls", len(resp.ToolCalls),
			)
			o.finish(res, start)
			return res, nil
		}

		if len(resp.ToolCalls) > 0 {
			res.Final = StateToolRequested
			messages = append(messages, resp.Message())
			for _, tc := range resp.ToolCalls {
				rec := o.dispatch(ctx, round, tc, req.Scope)
				res.ToolCalls = append(res.ToolCalls, rec)
				messages = append(messages, provider.LLMMessage{
					Role:    provider.MessageRoleTool,
					Name:    tc.Name,
					Content: rec.Output,
				})
			}
			continue
		}

		if len(tools) > 0 {
			if sig := o.classifier.Classify(ctx, resp.Content, toolNames); sig.Any() {
				res.Final = StateDeferralDetected
				if round == 0 && sig.Deferral && !sig.FailedCall {
					o.sendInterim(ctx, req.Send, resp.Content)
				}
				level := CorrectionSoft
				nudge := softNudge
				if round > 0 {
					level = CorrectionHard
					nudge = hardNudge(toolNames)
				}
				o.logger.Info("agent: deferral detected, nudging",
					"round", round,
					"correction", level.String(),
					"deferral", sig.Deferral,
					"failed_call", sig.FailedCall,
				)
				res.Corrections++
				o.metrics.RecordCorrection(level.String())
				messages = append(messages,
					provider.LLMMessage{Role: provider.MessageRoleAssistant, Content: resp.Content},
					provider.LLMMessage{Role: provider.MessageRoleSystem, Content: nudge},
					provider.LLMMessage{Role: provider.MessageRoleUser, Content: nudgeTrailer},
				)
				continue
			}
		}

		res.Final = StatePlainResponse
		o.finish(res, start)
		return res, nil
	}
}

// Reply runs Generate and collapses failures into ok == false.
func (o *Orchestrator) Reply(ctx context.Context, req Request) (string, bool) {
	res, err := o.Generate(ctx, req)
	if err != nil {
		o.logger.Error("agent: generation failed", "error", err)
		return "", false
	}
	return res.Content, true
}

func (o *Orchestrator) dispatch(ctx context.Context, round int, tc provider.ToolCall, scope tool.Scope) ToolCallRecord {
	start := time.Now()
	out := o.dispatcher.Dispatch(ctx, tc.Name, tc.Arguments, scope)
	return ToolCallRecord{
		Round:     round,
		Name:      tc.Name,
		Arguments: tc.Arguments,
		Output:    out,
		Duration:  time.Since(start),
	}
}

func (o *Orchestrator) sendInterim(ctx context.Context, send SendFunc, text string) {
	if send == nil || text == "" {
		return
	}
	if err := send(ctx, text); err != nil {
		o.logger.Warn("agent: interim send failed", "error", err)
	}
}

func (o *Orchestrator) finish(res Response, start time.Time) {
	latency := time.Since(start)
	o.metrics.RecordGeneration(res.Rounds, latency)
	o.logger.Info("agent: generated",
		"state", res.Final.String(),
		"rounds", res.Rounds,
		"tool_calls", len(res.ToolCalls),
		"corrections", res.Corrections,
		"latency", latency,
	)
}

func addUsage(total *provider.TokenUsage, u provider.TokenUsage) {
	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.TotalTokens += u.TotalTokens
}
