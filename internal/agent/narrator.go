package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/switchboard/internal/ticket"
	"github.com/linnemanlabs/switchboard/internal/tools"
	"github.com/linnemanlabs/switchboard/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/switchboard/internal/agent")

const (
	MaxToolRounds  = 15
	MaxTokens      = 50000
	ResponseTokens = 4096
)

// ErrBudgetExhausted is returned when the model keeps calling tools past
// the tool-round or token budget without giving a final answer.
var ErrBudgetExhausted = errors.New("narration budget exhausted")

const narratorSystem = `You are an expert customer support ticket routing agent for a telecom company.

Your goal is to analyze incoming support tickets and route them to the correct team with appropriate priority.

AVAILABLE TEAMS:
- Network Operations: Handles network outages, connectivity issues, service disruptions
- Billing Support: Handles billing disputes, payment issues, invoice questions, refunds
- Technical Support: Handles device issues, technical problems, configuration help
- Account Management: Handles account access, password resets, authentication issues

PRIORITY LEVELS:
- P0 (Critical): VIP customer + service outage, or critical business impact
- P1 (High): VIP customer issues, major problems, or significant service degradation
- P2 (Medium): Standard customer issues, moderate problems
- P3 (Low): General inquiries, minor issues

YOUR PROCESS:
1. Use classify_issue to understand the ticket's primary issue category
2. Use extract_entities to identify account numbers, service IDs, error codes
3. Use check_vip_status to determine customer importance and account type
4. Use check_service_status to identify active outages affecting the customer
5. Use get_historical_context to see the customer's recent tickets
6. Use route_to_team to determine the best support team
7. Use calculate_priority to set the priority level
8. Make your final decision with clear reasoning

GUIDELINES:
- Consider VIP status when setting priority
- Flag tickets for manual review if confidence is low (< 70%)
- Network outages should be P0 or P1 priority

Finish with a single JSON object:
{"assigned_team": "<team>", "priority_level": "<P0|P1|P2|P3>", "confidence_score": <0-100>, "requires_manual_review": <true|false>, "reasoning": "<detailed reasoning>"}`

// Narrator decides a ticket end to end by letting the model drive the
// pipeline tools. Its final text is decoded by the triage engine.
type Narrator struct {
	provider triage.Provider
	registry *tools.Registry
	logger   log.Logger
	hooks    triage.EngineHooks
}

// NewNarrator creates a narrator. Only OnLLMCall and OnToolCall of hooks
// are used.
func NewNarrator(p triage.Provider, registry *tools.Registry, logger log.Logger, hooks triage.EngineHooks) *Narrator {
	if p == nil {
		panic(xerrors.New("provider is required"))
	}
	if registry == nil {
		panic(xerrors.New("tool registry is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Narrator{provider: p, registry: registry, logger: logger, hooks: hooks}
}

// Narrate implements triage.Narrator.
func (n *Narrator) Narrate(ctx context.Context, t ticket.Ticket) (string, error) {
	L := n.logger.With("ticket_id", t.TicketID, "customer_id", t.CustomerID)

	messages := []triage.Message{
		{Role: "user", Content: []triage.ContentBlock{
			{Type: "text", Text: initialPrompt(t)},
		}},
	}

	var totalTokens, totalToolCalls int
	for seq := 0; ; seq++ {
		if totalToolCalls >= MaxToolRounds {
			L.Warn(ctx, "narration hit tool call limit", "limit", MaxToolRounds)
			return "", triage.Tag(triage.KindUnknown, fmt.Errorf("%w: %d tool calls", ErrBudgetExhausted, totalToolCalls))
		}
		if totalTokens >= MaxTokens {
			L.Warn(ctx, "narration hit token limit", "limit", MaxTokens)
			return "", triage.Tag(triage.KindUnknown, fmt.Errorf("%w: %d tokens", ErrBudgetExhausted, totalTokens))
		}

		resp, err := n.send(ctx, t, seq, &triage.LLMRequest{
			MaxTokens: ResponseTokens,
			System:    narratorSystem,
			Messages:  messages,
			Tools:     n.registry.ToToolDefs(),
		})
		if err != nil {
			L.Error(ctx, err, "llm call failed")
			return "", err
		}

		totalTokens += resp.Usage.InputTokens + resp.Usage.OutputTokens
		L.Info(ctx, "llm response",
			"stop_reason", resp.StopReason,
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens,
			"total_tokens", totalTokens,
		)

		messages = append(messages, triage.Message{Role: "assistant", Content: resp.Content})

		if resp.StopReason != triage.StopToolUse {
			text := resp.TextOf()
			if text == "" {
				return "", malformed("narration ended without text (stop reason %s)", resp.StopReason)
			}
			L.Info(ctx, "narration complete", "tokens", totalTokens, "tool_calls", totalToolCalls)
			return text, nil
		}

		var results []triage.ContentBlock
		for _, block := range resp.Content {
			if block.Type != "tool_use" {
				continue
			}
			totalToolCalls++
			L.Info(ctx, "executing tool", "tool", block.Name, "call_number", totalToolCalls)
			results = append(results, n.execute(ctx, L, t, block))
		}
		messages = append(messages, triage.Message{Role: "user", Content: results})
	}
}

// send makes one model call inside an llm.call span.
func (n *Narrator) send(ctx context.Context, t ticket.Ticket, seq int, req *triage.LLMRequest) (*triage.LLMResponse, error) {
	ctx, span := tracer.Start(ctx, "llm.call", trace.WithAttributes(
		attribute.String("gen_ai.operation.name", "llm.call"),
		attribute.String("switchboard.ticket.id", t.TicketID),
		attribute.Int("switchboard.chat.seq", seq),
	))
	defer span.End()

	span.AddEvent("llm.request", trace.WithAttributes(
		attribute.Int("llm.request.messages", len(req.Messages)),
		attribute.Int("llm.request.tools", len(req.Tools)),
	))

	start := time.Now()
	resp, err := n.provider.Send(ctx, req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if n.hooks.OnLLMCall != nil {
		n.hooks.OnLLMCall(resp.Usage.InputTokens, resp.Usage.OutputTokens, elapsed)
	}
	span.SetAttributes(
		attribute.String("gen_ai.response.model", resp.Model),
		attribute.Int("gen_ai.usage.input_tokens", resp.Usage.InputTokens),
		attribute.Int("gen_ai.usage.output_tokens", resp.Usage.OutputTokens),
	)
	span.AddEvent("llm.response", trace.WithAttributes(
		attribute.String("llm.response.stop_reason", string(resp.StopReason)),
	))
	return resp, nil
}

// execute runs one tool_use block inside a tool.execute span. Unknown tools
// and tool errors become error results for the model to read.
func (n *Narrator) execute(ctx context.Context, L log.Logger, t ticket.Ticket, block triage.ContentBlock) triage.ContentBlock {
	ctx, span := tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		attribute.String("gen_ai.operation.name", "tool.execute"),
		attribute.String("gen_ai.tool.name", block.Name),
		attribute.String("switchboard.ticket.id", t.TicketID),
		attribute.String("switchboard.tool.input", string(block.Input)),
	))
	defer span.End()
	span.AddEvent("tool.request", trace.WithAttributes(attribute.String("tool.request.body", string(block.Input))))

	result := triage.ContentBlock{Type: "tool_result", ToolUseID: block.ID}
	start := time.Now()

	tool, ok := n.registry.Get(block.Name)
	if !ok {
		result.Content = fmt.Sprintf("unknown tool: %s", block.Name)
		result.IsError = true
	} else if output, err := tool.Execute(ctx, block.Input); err != nil {
		L.Error(ctx, err, "tool execution failed", "tool", block.Name)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		result.Content = fmt.Sprintf("tool error: %v", err)
		result.IsError = true
	} else {
		result.Content = string(output)
	}

	if n.hooks.OnToolCall != nil {
		n.hooks.OnToolCall(block.Name, time.Since(start).Seconds(), len(block.Input), len(result.Content), result.IsError)
	}
	span.SetAttributes(attribute.Bool("switchboard.tool.is_error", result.IsError))
	span.AddEvent("tool.result", trace.WithAttributes(attribute.String("tool.result.body", result.Content)))
	return result
}

func initialPrompt(t ticket.Ticket) string {
	return fmt.Sprintf(`Please analyze and route this support ticket:

Ticket ID: %s
Customer ID: %s
Subject: %s
Description: %s
Submitted: %s

Use the available tools to gather information, then provide your final routing decision.`,
		t.TicketID, t.CustomerID, t.Subject, t.Description, t.Timestamp.Format(time.RFC3339))
}
