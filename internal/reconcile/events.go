package reconcile

import "time"

// EventDeliveryCompleted tags reports published after every run that got
// past input validation.
const EventDeliveryCompleted = "delivery.completed"

// RunReport summarises one processing pass. It is returned to callers and
// published to Kafka.
type RunReport struct {
	RunID         string          `json:"run_id"`
	TransactionID string          `json:"transaction_id"`
	RequestID     string          `json:"request_id,omitempty"`
	SystemID      string          `json:"system_id"`
	Units         int             `json:"units"`
	Matched       int             `json:"matched"`
	Skipped       []RecordSkipped `json:"skipped,omitempty"`
	Manifests     []string        `json:"manifests,omitempty"`
	Artifacts     []string        `json:"artifacts,omitempty"`
	CapReached    bool            `json:"cap_reached"`
	Unevaluated   int             `json:"unevaluated"`
	Outcome       *UploadOutcome  `json:"outcome,omitempty"`
	Stamped       bool            `json:"stamped"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at"`
}
