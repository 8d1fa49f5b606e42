package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/rahul/veritas/internal/governance"
	"github.com/rahul/veritas/internal/observability"
	"github.com/rahul/veritas/internal/tools"
	"github.com/rahul/veritas/internal/trace"
	"github.com/tmc/langchaingo/llms"
)

const defaultMaxToolSteps = 8

var errLoopExhausted = errors.New("reached the maximum number of reasoning steps")

// toolLoop is a ReAct loop: the model either calls tools, whose results are
// fed back, or answers in plain text.
type toolLoop struct {
	agent    Name
	model    llms.Model
	registry *tools.Registry
	policy   governance.PolicyEngine
	maxSteps int
	logger   *observability.Logger
}

type loopResult struct {
	Content      string
	Traces       []trace.Record
	Replan       bool
	ReplanReason string
	Err          error
}

func (l *toolLoop) run(ctx context.Context, systemPrompt, input string) loopResult {
	requestID := observability.RequestID(ctx)

	var messages []llms.MessageContent
	if systemPrompt != "" {
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		})
	}
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(input)},
	})

	defs := l.registry.Definitions()
	maxSteps := l.maxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxToolSteps
	}

	var res loopResult
	for i := 0; i < maxSteps; i++ {
		resp, err := l.model.GenerateContent(ctx, messages, llms.WithTools(defs))
		if err != nil {
			res.Err = err
			return res
		}
		if len(resp.Choices) == 0 {
			res.Err = fmt.Errorf("empty response from model")
			return res
		}
		choice := resp.Choices[0]
		l.logger.LogLLM(ctx, requestID, string(l.agent), input, choice.Content, choice.ToolCalls)

		// Add the assistant's turn to the transcript
		var assistantParts []llms.ContentPart
		if choice.Content != "" {
			assistantParts = append(assistantParts, llms.TextContent{Text: choice.Content})
		}
		for _, tc := range choice.ToolCalls {
			assistantParts = append(assistantParts, tc)
		}
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeAI,
			Parts: assistantParts,
		})

		// No tool calls: this is the final answer
		if len(choice.ToolCalls) == 0 {
			res.Content = choice.Content
			return res
		}

		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			observation := l.call(ctx, requestID, tc.FunctionCall, &res)
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: tc.ID,
						Name:       tc.FunctionCall.Name,
						Content:    observation,
					},
				},
			})
		}

		if res.Replan {
			res.Content = choice.Content
			if res.Content == "" {
				res.Content = fmt.Sprintf("Requested a revised plan: %s", res.ReplanReason)
			}
			return res
		}
	}

	res.Err = errLoopExhausted
	return res
}

// call runs one tool call and returns the observation for the model. Traces
// and replan requests are collected into res.
func (l *toolLoop) call(ctx context.Context, requestID string, fc *llms.FunctionCall, res *loopResult) string {
	tool := l.registry.Get(fc.Name)
	if tool == nil {
		return fmt.Sprintf("Error: Tool %s not found", fc.Name)
	}

	if l.policy != nil {
		decision, err := l.policy.Evaluate(ctx, governance.Request{
			Agent:     string(l.agent),
			Tool:      fc.Name,
			Arguments: fc.Arguments,
		})
		if err != nil {
			return fmt.Sprintf("Error: policy check failed: %v", err)
		}
		if !decision.Allowed() {
			l.logger.LogPolicyCheck(ctx, requestID, string(l.agent), fc.Name, decision.Reason)
			return fmt.Sprintf("Error: denied by policy: %s", decision.Reason)
		}
	}

	l.logger.LogToolCall(ctx, requestID, string(l.agent), fc.Name, fc.Arguments)
	out, err := tool.Execute(ctx, fc.Arguments)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}

	res.Traces = append(res.Traces, out.Traces...)
	if out.Replan {
		res.Replan = true
		res.ReplanReason = out.ReplanReason
	}
	return out.Output
}
