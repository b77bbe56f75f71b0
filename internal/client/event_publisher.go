package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-plt-approvals/internal/repository"
)

// EventPublisher publishes approval lifecycle events to NATS for
// consumption by downstream services (notifications, reporting).
//
// Subject convention: <prefix>.<event_type>
// Event types: submitted, step_advanced, approved, rejected, cancelled,
//              expired
//
// All publish operations are non-fatal — errors are logged but never
// propagated, so a broker outage never interrupts approval processing.
type EventPublisher struct {
	nc            *nats.Conn
	subjectPrefix string
	log           zerolog.Logger
}

// ApprovalEvent is the JSON schema published to NATS.
type ApprovalEvent struct {
	EventType        string         `json:"event_type"`
	InstanceID       string         `json:"instance_id"`
	ModuleID         string         `json:"module_id"`
	RequestID        string         `json:"request_id"`
	FlowID           string         `json:"flow_id"`
	Status           string         `json:"status"`
	CurrentStepOrder int            `json:"current_step_order"`
	ActorID          string         `json:"actor_id"`
	Recipients       []string       `json:"recipients,omitempty"`
	OccurredAt       time.Time      `json:"occurred_at"`
	Payload          map[string]any `json:"payload,omitempty"`
}

// NewEventPublisher connects to NATS and returns a publisher.
func NewEventPublisher(url, subjectPrefix string, log zerolog.Logger) (*EventPublisher, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	return &EventPublisher{nc: nc, subjectPrefix: subjectPrefix, log: log}, nil
}

// Close drains the connection.
func (p *EventPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// PublishApprovalEvent publishes one lifecycle event. Recipients carry the
// identities currently eligible to act, so the notification service can
// address them without a directory round-trip.
func (p *EventPublisher) PublishApprovalEvent(_ context.Context, eventType string, inst *repository.ApprovalInstance, actorID string, payload map[string]any) {
	if p == nil || p.nc == nil {
		return
	}

	event := &ApprovalEvent{
		EventType:        eventType,
		InstanceID:       inst.ID,
		ModuleID:         inst.ModuleID,
		RequestID:        inst.RequestID,
		FlowID:           inst.FlowID,
		Status:           string(inst.Status),
		CurrentStepOrder: inst.CurrentStepOrder,
		ActorID:          actorID,
		Recipients:       inst.CurrentApproverIDs,
		OccurredAt:       time.Now().UTC(),
		Payload:          payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("events: failed to marshal approval event")
		return
	}

	subject := fmt.Sprintf("%s.%s", p.subjectPrefix, eventType)
	if err := p.nc.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("instance_id", inst.ID).
			Msg("events: failed to publish approval event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("instance_id", inst.ID).
		Msg("events: approval event published")
}
