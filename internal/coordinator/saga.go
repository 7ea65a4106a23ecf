package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jcmexdev/storefront/internal/coordinator/sagalog"
)

// Step is a single unit of work in the saga. Each step must have a
// compensating action that undoes its effects.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
	Compensate(ctx context.Context) error
}

// orderRef is implemented by steps that create the order the saga is about.
type orderRef interface {
	OrderID() string
}

// Orchestrator runs steps in order and compensates the successful ones, last
// first, when a later step fails. Every transition is written to the saga log.
type Orchestrator struct {
	sagaID  string
	payload string
	steps   []Step
	log     sagalog.Repository // may be nil
}

func NewOrchestrator(sagaID, payload string, steps []Step, log sagalog.Repository) *Orchestrator {
	return &Orchestrator{sagaID: sagaID, payload: payload, steps: steps, log: log}
}

// Start runs the saga. The returned error is the one of the failed step.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.record(ctx, sagalog.StatusStarted, "", o.payload, nil)

	var successful []Step
	for _, step := range o.steps {
		slog.DebugContext(ctx, "executing saga step", "saga_id", o.sagaID, "step", step.Name())
		if err := step.Execute(ctx); err != nil {
			slog.WarnContext(ctx, "saga step failed, compensating", "saga_id", o.sagaID, "step", step.Name(), "error", err)
			errs := []string{fmt.Sprintf("step %s failed: %v", step.Name(), err)}
			o.record(ctx, sagalog.StatusCompensating, step.Name(), "", errs)

			errs = append(errs, o.rollback(ctx, successful)...)
			o.record(ctx, sagalog.StatusFailed, step.Name(), "", errs)
			return err
		}
		successful = append(successful, step)
		o.record(ctx, sagalog.StatusStepDone, step.Name(), "", nil)
	}

	o.record(ctx, sagalog.StatusCompleted, "", "", nil)
	slog.DebugContext(ctx, "saga completed", "saga_id", o.sagaID)
	return nil
}

func (o *Orchestrator) rollback(ctx context.Context, steps []Step) []string {
	var errs []string
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		slog.InfoContext(ctx, "compensating saga step", "saga_id", o.sagaID, "step", step.Name())
		if err := step.Compensate(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to compensate saga step", "saga_id", o.sagaID, "step", step.Name(), "error", err)
			errs = append(errs, fmt.Sprintf("compensation of %s failed: %v", step.Name(), err))
		}
	}
	return errs
}

func (o *Orchestrator) record(ctx context.Context, status sagalog.Status, step, payload string, errs []string) {
	if o.log == nil {
		return
	}
	entry := sagalog.NewEntry(ctx, o.sagaID, status, step, o.orderID(), payload, errs)
	if err := o.log.Save(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "failed to write saga log", "saga_id", o.sagaID, "status", status, "error", err)
	}
}

func (o *Orchestrator) orderID() string {
	for _, s := range o.steps {
		if ref, ok := s.(orderRef); ok {
			return ref.OrderID()
		}
	}
	return ""
}
