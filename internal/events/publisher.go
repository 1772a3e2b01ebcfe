// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

// Package events publishes configuration change events over NATS. Events
// are advisory: they tell subscribers which subtree to re-resolve, never
// what the new settings are.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	inats "github.com/halcyonrmm/halcyon/internal/nats"

	"github.com/halcyonrmm/halcyon/internal/models"
	"github.com/halcyonrmm/halcyon/internal/pkg/logger"
)

// StreamName is the JetStream stream that retains change events.
const StreamName = "HALCYON_CONFIG"

// SubjectPrefix is the root of all change-event subjects.
// Full subjects look like halcyon.config.policy.update.
const SubjectPrefix = "halcyon.config"

// Publisher emits change events. Publish failures are logged and swallowed:
// a lost event degrades freshness, not correctness, because consumers
// re-resolve on their own schedule too.
type Publisher struct {
	client *inats.Client
	js     *inats.JetStream
	logger *logger.Logger
}

// NewPublisher creates a publisher. js may be nil; events then go over
// plain NATS without retention.
func NewPublisher(client *inats.Client, js *inats.JetStream, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{
		client: client,
		js:     js,
		logger: log.Named("events"),
	}
}

// EnsureStream creates or updates the change-event stream. Call once at
// startup when JetStream is enabled.
func (p *Publisher) EnsureStream() error {
	if p.js == nil {
		return nil
	}
	_, err := p.js.EnsureStream(inats.StreamConfig{
		Name:        StreamName,
		Description: "configuration change events",
		Subjects:    []string{SubjectPrefix + ".>"},
		MaxAge:      7 * 24 * time.Hour,
	})
	return err
}

// PolicyChanged publishes a policy change event.
func (p *Publisher) PolicyChanged(ctx context.Context, action string, policy *models.ConfigurationPolicy) {
	event := models.ChangeEvent{
		ID:           uuid.New(),
		ResourceType: models.ChangeResourcePolicy,
		ResourceID:   policy.ID,
		Action:       action,
		OrgID:        policy.OrgID,
		PolicyID:     &policy.ID,
		OccurredAt:   time.Now().UTC(),
	}
	p.publish(event)
}

// AssignmentChanged publishes an assignment change event.
func (p *Publisher) AssignmentChanged(ctx context.Context, action string, a *models.Assignment, orgID uuid.UUID) {
	targetID := a.TargetID
	event := models.ChangeEvent{
		ID:           uuid.New(),
		ResourceType: models.ChangeResourceAssignment,
		ResourceID:   a.ID,
		Action:       action,
		OrgID:        orgID,
		PolicyID:     &a.ConfigPolicyID,
		Level:        a.Level,
		TargetID:     &targetID,
		OccurredAt:   time.Now().UTC(),
	}
	p.publish(event)
}

func (p *Publisher) publish(event models.ChangeEvent) {
	subject := fmt.Sprintf("%s.%s.%s", SubjectPrefix, event.ResourceType, event.Action)

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshal change event", "error", err)
		return
	}

	if p.js != nil {
		if _, err := p.js.Publish(subject, data); err != nil {
			p.logger.Warn("publish change event to jetstream",
				"subject", subject, "error", err)
		}
		return
	}

	if err := p.client.Publish(subject, data); err != nil {
		p.logger.Warn("publish change event", "subject", subject, "error", err)
	}
}

// Nop is a publisher that discards all events. Used in tests and when
// NATS is disabled.
type Nop struct{}

// PolicyChanged implements the policy event sink.
func (Nop) PolicyChanged(ctx context.Context, action string, policy *models.ConfigurationPolicy) {}

// AssignmentChanged implements the assignment event sink.
func (Nop) AssignmentChanged(ctx context.Context, action string, a *models.Assignment, orgID uuid.UUID) {
}
