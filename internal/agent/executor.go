package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rahul/veritas/internal/observability"
)

const (
	DefaultMaxReplans  = 2
	DefaultStepTimeout = 2 * time.Minute
)

// State is a node of the executor's state machine.
type State int

const (
	StatePlanning State = iota
	StateRouting
	StateReplanning
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePlanning:
		return "planning"
	case StateRouting:
		return "routing"
	case StateReplanning:
		return "replanning"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// PlanGenerator produces or revises the plan held by a WorkflowState.
type PlanGenerator interface {
	Plan(ctx context.Context, state *WorkflowState, replan bool) error
}

// Executor drives one WorkflowState from planning to done. Steps run one at
// a time in plan order; each step's message is appended before the next
// step starts.
type Executor struct {
	Planner PlanGenerator
	Agents  Registry
	// MaxReplans is the number of re-plans allowed per request. A replan
	// request beyond it ends the run as degraded.
	MaxReplans  int
	StepTimeout time.Duration

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Status  *observability.Status
	// OnTransition, when set, sees every state the executor enters.
	OnTransition func(State, *WorkflowState)
}

// Run executes state until it is done. Only planning failures, routing
// invariant violations and cancellation are returned as errors.
func (e *Executor) Run(ctx context.Context, state *WorkflowState) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		next := e.route(state)
		if e.OnTransition != nil {
			e.OnTransition(next, state)
		}

		switch next {
		case StatePlanning:
			e.Status.SetPhase(observability.PhasePlanning)
			if err := e.Planner.Plan(ctx, state, false); err != nil {
				return err
			}

		case StateReplanning:
			e.Status.SetPhase(observability.PhasePlanning)
			state.ReplanCount++
			e.Metrics.RecordReplan()
			if err := e.Planner.Plan(ctx, state, true); err != nil {
				return err
			}

		case StateRouting:
			e.Status.SetPhase(observability.PhaseRouting)
			if err := e.runStep(ctx, state); err != nil {
				return err
			}

		case StateDone:
			if state.ReplanFlag {
				state.Degraded = true
				state.DegradedReason = fmt.Sprintf("replan limit reached after %d replans: %s", state.ReplanCount, state.ReplanReason)
				e.Logger.Slog().WarnContext(ctx, "replan limit reached",
					slog.String("request_id", observability.RequestID(ctx)),
					slog.Int("replans", state.ReplanCount),
				)
			}
			return nil
		}
	}
}

// route decides the next state without changing anything.
func (e *Executor) route(state *WorkflowState) State {
	if state.Plan == nil {
		return StatePlanning
	}
	if state.ReplanFlag {
		if state.ReplanCount < e.MaxReplans {
			return StateReplanning
		}
		return StateDone
	}
	if state.CurrentStep > state.Plan.Len() {
		return StateDone
	}
	return StateRouting
}

func (e *Executor) runStep(ctx context.Context, state *WorkflowState) error {
	index := state.CurrentStep
	step, ok := state.Plan.Step(index)
	if !ok {
		return &RoutingError{Step: index}
	}
	adapter, ok := e.Agents[step.Agent]
	if !ok {
		return &RoutingError{Agent: step.Agent, Step: index}
	}

	goal := step.Goal
	if state.StepQuery != "" {
		goal = state.StepQuery
		state.StepQuery = ""
	}
	task := Task{
		Goal:     goal,
		Question: state.Query.Text,
		Context:  state.agentMessages(),
	}

	start := time.Now()
	out, status := e.invoke(ctx, adapter, task)
	took := time.Since(start)

	content, err := out.Message()
	if err != nil {
		e.Logger.Slog().WarnContext(ctx, "failed to encode step trace",
			slog.String("agent", string(step.Agent)),
			slog.String("error", err.Error()),
		)
	}
	state.appendMessage(string(step.Agent), content)
	if out.Model != "" {
		state.ModelUsage[string(step.Agent)] = out.Model
	}
	state.ReplanFlag = out.Replan
	state.ReplanReason = out.ReplanReason
	state.CurrentStep++

	e.Metrics.RecordAgent(string(step.Agent), status, took)
	e.Logger.LogStep(ctx, observability.RequestID(ctx), index, string(step.Agent), status, took)
	return nil
}

// invoke runs the adapter under the step timeout. An adapter that overruns
// it is abandoned and reported as a failed retrieval with no traces.
func (e *Executor) invoke(ctx context.Context, adapter Adapter, task Task) (Outcome, string) {
	timeout := e.StepTimeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan Outcome, 1)
	go func() {
		done <- adapter.Invoke(stepCtx, task)
	}()

	select {
	case out := <-done:
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			return timedOut(adapter.Name(), out.Model, timeout), "timeout"
		}
		if len(out.Traces) == 0 {
			return out, "empty"
		}
		return out, "ok"
	case <-stepCtx.Done():
		if ctx.Err() != nil {
			// the caller cancelled: let the agent wind down on its own
			// context, Run stops at the next transition
			return <-done, "cancelled"
		}
		return timedOut(adapter.Name(), "", timeout), "timeout"
	}
}

func timedOut(agent Name, model string, after time.Duration) Outcome {
	return Outcome{
		Content: fmt.Sprintf("The %s timed out after %s before completing the task.", describe(agent), after),
		Model:   model,
	}
}
