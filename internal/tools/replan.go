package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ReplanTool lets an agent tell the executor that the remaining plan no
// longer fits what it found.
type ReplanTool struct{}

func NewReplanTool() *ReplanTool {
	return &ReplanTool{}
}

func (r *ReplanTool) Name() string {
	return "request_replan"
}

func (r *ReplanTool) Description() string {
	return "Ask the planner to revise the remaining plan. Use only when the current goal cannot be met as planned."
}

func (r *ReplanTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{
				"type":        "string",
				"description": "Why the plan needs to change",
			},
		},
		"required": []string{"reason"},
	}
}

func (r *ReplanTool) Execute(ctx context.Context, input string) (Result, error) {
	var args struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return Result{}, fmt.Errorf("invalid input: %v", err)
	}
	reason := strings.TrimSpace(args.Reason)
	if reason == "" {
		reason = "no reason given"
	}
	return Result{
		Output:       "Replan requested. Summarize what you found so far and stop.",
		Replan:       true,
		ReplanReason: reason,
	}, nil
}
