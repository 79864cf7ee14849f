package kafka

import (
	"time"

	"github.com/google/uuid"

	"github.com/ratelimit-gateway/admission-gateway/models"
)

// EventType discriminates the two events this bus carries. Each
// admission/reputation outcome gets its own typed event, carrying exactly
// the fields its consumers need.
type EventType string

const (
	EventAdmissionDecided    EventType = "ADMISSION_DECIDED"
	EventReputationClassified EventType = "REPUTATION_CLASSIFIED"
)

// AdmissionDecidedEvent mirrors one Decision returned by the admission
// pipeline, published so downstream consumers can react without polling
// the log.
type AdmissionDecidedEvent struct {
	ID         string                `json:"id"`
	Identifier string                `json:"identifier"`
	Allowed    bool                  `json:"allowed"`
	Reason     models.DecisionReason `json:"reason"`
	Path       string                `json:"path"`
	Method     string                `json:"method"`
	UserAgent  string                `json:"user_agent"`
	CreatedAt  time.Time             `json:"created_at"`
}

func NewAdmissionDecidedEvent(identifier string, decision models.Decision, path, method, userAgent string, now time.Time) *AdmissionDecidedEvent {
	return &AdmissionDecidedEvent{
		ID:         uuid.New().String(),
		Identifier: identifier,
		Allowed:    decision.Allowed,
		Reason:     decision.Reason,
		Path:       path,
		Method:     method,
		UserAgent:  userAgent,
		CreatedAt:  now,
	}
}

// ReputationClassifiedEvent mirrors one Classification produced by the
// reputation engine.
type ReputationClassifiedEvent struct {
	ID         string                  `json:"id"`
	Address    string                  `json:"address"`
	Type       models.ReputationType   `json:"type"`
	Confidence int                     `json:"confidence"`
	Source     models.ReputationSource `json:"source"`
	CreatedAt  time.Time               `json:"created_at"`
}

func NewReputationClassifiedEvent(c models.Classification, now time.Time) *ReputationClassifiedEvent {
	return &ReputationClassifiedEvent{
		ID:         uuid.New().String(),
		Address:    c.Address,
		Type:       c.Type,
		Confidence: c.Confidence,
		Source:     c.Source,
		CreatedAt:  now,
	}
}
