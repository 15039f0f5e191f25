package multiagent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"switchboard/internal/domain"
	"switchboard/internal/usecase/formatter"
)

// errorResult is the standard low-confidence result for a failed agent.
func errorResult(name string) domain.AgentResult {
	return domain.AgentResult{
		Output:     fmt.Sprintf("Error processing request with agent '%s'.", name),
		Confidence: domain.ConfidenceError,
	}
}

type callOutcome struct {
	res domain.AgentResult
	err error
}

// invoke runs one agent through the registry under the per-agent deadline.
// Failures, panics and timeouts come back as errorResult together with the
// cause; successful output is passed through the response formatter.
func (o *Orchestrator) invoke(ctx context.Context, name, input string, ac *domain.AgentContext) (domain.AgentResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.AgentTimeout)
	defer cancel()

	done := make(chan callOutcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				o.logger.Error("agent panicked", "agent", name, "panic", rec, "stack", string(debug.Stack()))
				done <- callOutcome{err: fmt.Errorf("agent %q panicked: %v: %w", name, rec, domain.ErrAgentExecution)}
			}
		}()
		res, err := o.registry.Call(ctx, name, input, ac)
		done <- callOutcome{res: res, err: err}
	}()

	var out callOutcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out.err = domain.NewSubSystemError("agent", "Orchestrator.invoke", domain.ErrTimeout, name)
	}

	if out.err != nil {
		if errors.Is(out.err, domain.ErrAgentNotFound) {
			o.logger.Warn("agent not registered", "agent", name)
		} else {
			o.logger.Warn("agent failed", "agent", name, "error", out.err)
		}
		return errorResult(name), out.err
	}
	res := formatter.FormatAgentResponse(out.res.Output, out.res.Confidence, true)
	res.Extra = out.res.Extra
	return res, nil
}
