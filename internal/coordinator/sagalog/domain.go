// Package sagalog records every state a checkout saga goes through.
//
// Each row is one transition of one saga execution. The trace_id column links
// a row to the distributed trace of the request that ran the saga, so an
// operator can go from a stuck checkout straight to its spans.
package sagalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jcmexdev/storefront/internal/pkg/telemetry"
)

// Status is the lifecycle state of a saga execution.
type Status string

const (
	StatusStarted      Status = "STARTED"
	StatusStepDone     Status = "STEP_DONE"
	StatusCompleted    Status = "COMPLETED"
	StatusCompensating Status = "COMPENSATING"
	StatusFailed       Status = "FAILED"
)

// SagaLog is a single row of the append-only saga_logs table.
type SagaLog struct {
	ID     uint   `gorm:"primaryKey"`
	SagaID string `gorm:"size:36;not null;index:idx_saga_logs_saga,priority:1"`
	Status Status `gorm:"size:16;not null"`
	// CurrentStep is the step that just ran or failed.
	CurrentStep string `gorm:"size:64"`
	// OrderID is set once the order exists.
	OrderID string `gorm:"size:36;index"`
	// Payload is the JSON input that started the saga, written on STARTED only.
	Payload string `gorm:"type:text"`
	// ErrorMessages is a JSON array, one entry per failed step or compensation.
	ErrorMessages string    `gorm:"type:text;not null"`
	TraceID       string    `gorm:"size:32;index"`
	SpanID        string    `gorm:"size:16"`
	UpdatedAt     time.Time `gorm:"not null;index:idx_saga_logs_saga,priority:2"`
}

// NewEntry builds a log row with the trace info of the span active in ctx.
func NewEntry(ctx context.Context, sagaID string, status Status, currentStep, orderID, payload string, errs []string) *SagaLog {
	ti := telemetry.ExtractTraceInfo(ctx)

	errJSON := "[]"
	if len(errs) > 0 {
		if b, err := json.Marshal(errs); err == nil {
			errJSON = string(b)
		}
	}

	return &SagaLog{
		SagaID:        sagaID,
		Status:        status,
		CurrentStep:   currentStep,
		OrderID:       orderID,
		Payload:       payload,
		ErrorMessages: errJSON,
		TraceID:       ti.TraceID,
		SpanID:        ti.SpanID,
		UpdatedAt:     time.Now().UTC(),
	}
}

// Models lists the tables owned by the saga log.
func Models() []any {
	return []any{&SagaLog{}}
}
