package models

import "time"

// OutcomeStatus is the result of running one feed message through the pipeline
type OutcomeStatus string

const (
	OutcomeDelivered  OutcomeStatus = "delivered"
	OutcomeSuppressed OutcomeStatus = "suppressed"
	OutcomeRejected   OutcomeStatus = "rejected"
)

// Outcome represents what happened to a feed message
type Outcome struct {
	Status    OutcomeStatus `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	Match     *Match        `json:"match,omitempty"`
	CommandID string        `json:"command_id,omitempty"`
	MessageID int64         `json:"message_id"`
	Source    string        `json:"source"`
	At        time.Time     `json:"at"`
}

// Delivered reports whether the command was enqueued on the relay
func (o Outcome) Delivered() bool {
	return o.Status == OutcomeDelivered
}
