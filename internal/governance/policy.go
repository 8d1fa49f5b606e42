// Package governance decides whether an agent may run a given tool call.
package governance

import (
	"context"
	"fmt"
	"regexp"
	"sync"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the context of a tool call to be evaluated.
type Request struct {
	Agent     string
	Tool      string
	Arguments string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// Allowed reports whether the call may proceed.
func (r Result) Allowed() bool { return r.Effect == EffectAllow }

// PolicyEngine evaluates tool calls against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine denies by tool name, by per-agent allowlist and by
// argument pattern, in that order.
type DefaultPolicyEngine struct {
	mu          sync.RWMutex
	deniedTools map[string]bool
	agentTools  map[string]map[string]bool
	deniedArgs  []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		deniedTools: make(map[string]bool),
		agentTools:  make(map[string]map[string]bool),
	}
}

// DataModificationPatterns block statements that would change the data store.
var DataModificationPatterns = []string{
	`(?i)\b(insert\s+(or\s+\w+\s+)?into|replace\s+into|update\s+(or\s+\w+\s+)?\S+\s+set|delete\s+from)\b`,
	`(?i)\b(drop|truncate|alter)\s+(table|database|schema|index|view)\b`,
	`(?i)\b(attach|detach)\s+database\b`,
	`(?i)\bpragma\s+\w+\s*=`,
}

// NewReadOnlyPolicyEngine returns an engine preloaded with DataModificationPatterns.
func NewReadOnlyPolicyEngine() *DefaultPolicyEngine {
	e := NewDefaultPolicyEngine()
	for _, p := range DataModificationPatterns {
		_ = e.DenyArguments(p)
	}
	return e
}

func (e *DefaultPolicyEngine) DenyTool(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deniedTools[name] = true
}

// AllowTools restricts agent to the named tools. Agents without an
// allowlist may call any tool that is not denied.
func (e *DefaultPolicyEngine) AllowTools(agent string, tools ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	set := e.agentTools[agent]
	if set == nil {
		set = make(map[string]bool, len(tools))
		e.agentTools[agent] = set
	}
	for _, t := range tools {
		set[t] = true
	}
}

func (e *DefaultPolicyEngine) DenyArguments(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid argument pattern %q: %w", pattern, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deniedArgs = append(e.deniedArgs, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(_ context.Context, req Request) (Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.deniedTools[req.Tool] {
		return deny("tool %s is disabled", req.Tool), nil
	}
	if allowed, ok := e.agentTools[req.Agent]; ok && !allowed[req.Tool] {
		return deny("%s may not use %s", req.Agent, req.Tool), nil
	}
	for _, re := range e.deniedArgs {
		if re.MatchString(req.Arguments) {
			return deny("arguments match restricted pattern %s", re.String()), nil
		}
	}
	return Result{Effect: EffectAllow}, nil
}

func deny(format string, args ...any) Result {
	return Result{Effect: EffectDeny, Reason: fmt.Sprintf(format, args...)}
}
