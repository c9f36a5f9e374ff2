// Package events publishes role assignment lifecycle events over NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"

	"access-service/internal/models"
)

const (
	streamName    = "ACCESS_EVENTS"
	subjectPrefix = "access.assignment"
)

// Assignment event types
const (
	AssignmentGranted     = "assignment.granted"
	AssignmentRevoked     = "assignment.revoked"
	AssignmentReactivated = "assignment.reactivated"
	AssignmentTransferred = "assignment.transferred"
)

// AssignmentEvent is the wire payload for assignment lifecycle events
type AssignmentEvent struct {
	EventType    string     `json:"eventType"`
	TenantID     string     `json:"tenantId"`
	AssignmentID string     `json:"assignmentId"`
	UserID       string     `json:"userId"`
	Role         string     `json:"role"`
	BusinessID   string     `json:"businessId"`
	LocationID   string     `json:"locationId,omitempty"`
	DepartmentID string     `json:"departmentId,omitempty"`
	Scope        string     `json:"scope"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

// Publisher publishes assignment events. Publish failures degrade to logging;
// they never block or fail the mutation that raised them.
type Publisher struct {
	js     jetstream.JetStream
	nc     *nats.Conn
	logger *logrus.Entry
}

// NewPublisher connects to NATS at the given URL and ensures the access
// events stream exists
func NewPublisher(natsURL string, logger *logrus.Logger) (*Publisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("access-service"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subjectPrefix + ".>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
	}); err != nil {
		logger.WithError(err).Warn("Failed to ensure ACCESS_EVENTS stream (may already exist)")
	}

	return &Publisher{
		js:     js,
		nc:     nc,
		logger: logger.WithField("component", "events.publisher"),
	}, nil
}

// Close closes the NATS connection
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// PublishGranted publishes an assignment.granted event
func (p *Publisher) PublishGranted(ctx context.Context, assignment *models.RoleAssignment) {
	p.publish(ctx, AssignmentGranted, assignment)
}

// PublishRevoked publishes an assignment.revoked event
func (p *Publisher) PublishRevoked(ctx context.Context, assignment *models.RoleAssignment) {
	p.publish(ctx, AssignmentRevoked, assignment)
}

// PublishReactivated publishes an assignment.reactivated event
func (p *Publisher) PublishReactivated(ctx context.Context, assignment *models.RoleAssignment) {
	p.publish(ctx, AssignmentReactivated, assignment)
}

// PublishTransferred publishes an assignment.transferred event for the newly
// created target assignment
func (p *Publisher) PublishTransferred(ctx context.Context, assignment *models.RoleAssignment) {
	p.publish(ctx, AssignmentTransferred, assignment)
}

func (p *Publisher) publish(ctx context.Context, eventType string, assignment *models.RoleAssignment) {
	event := AssignmentEvent{
		EventType:    eventType,
		TenantID:     assignment.TenantID,
		AssignmentID: assignment.ID.String(),
		UserID:       assignment.UserID.String(),
		Role:         string(assignment.Role),
		BusinessID:   assignment.BusinessID.String(),
		Scope:        string(assignment.Scope),
		ExpiresAt:    assignment.ExpiresAt,
		Timestamp:    time.Now().UTC(),
	}
	if assignment.LocationID != nil {
		event.LocationID = assignment.LocationID.String()
	}
	if assignment.DepartmentID != nil {
		event.DepartmentID = assignment.DepartmentID.String()
	}

	go func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		data, err := json.Marshal(event)
		if err != nil {
			p.logger.WithError(err).Error("Failed to marshal assignment event")
			return
		}

		subject := "access." + eventType
		if _, err := p.js.Publish(pubCtx, subject, data); err != nil {
			p.logger.WithFields(logrus.Fields{
				"eventType":    eventType,
				"assignmentId": event.AssignmentID,
				"tenantId":     event.TenantID,
			}).WithError(err).Error("Failed to publish assignment event")
		}
	}()
}
