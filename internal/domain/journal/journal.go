package journal

import (
	"time"

	"github.com/google/uuid"
)

// Outcome classifies how a lane finished processing one event.
type Outcome string

const (
	OutcomeProcessed Outcome = "PROCESSED"
	OutcomeIgnored   Outcome = "IGNORED"
	OutcomeFailed    Outcome = "FAILED"
)

// Record is one best-effort journal entry for a processed event. The journal
// is an observability aid, not a source of truth: losing records must never
// stall a lane.
type Record struct {
	RecordID      uuid.UUID `json:"recordId"`
	MachineID     string    `json:"machineId"`
	EventName     string    `json:"eventName"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Lane          int       `json:"lane"`
	Outcome       Outcome   `json:"outcome"`
	Error         string    `json:"error,omitempty"`
	Configuration []string  `json:"configuration"`
	DeferredCount int       `json:"deferredCount"`
	DurationMs    int64     `json:"durationMs"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NewRecord stamps id and creation time.
func NewRecord(machineID, eventName string) *Record {
	return &Record{
		RecordID:  uuid.New(),
		MachineID: machineID,
		EventName: eventName,
		CreatedAt: time.Now().UTC(),
	}
}
