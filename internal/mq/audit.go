package mq

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// AuditChannel is the broker channel security events are published to.
const AuditChannel = "security-audit"

// Audit event types.
const (
	EventLogin            = "auth.login"
	EventLoginFailed      = "auth.login_failed"
	EventMFAEnrolled      = "auth.mfa_enrolled"
	EventSubmissionStored = "submission.stored"
	EventDownload         = "submission.downloaded"
	EventIntegrityWarning = "submission.integrity_warning"
	EventAssignmentDelete = "assignment.deleted"
	EventUserDeleted      = "user.deleted"
)

// AuditEvent is one security-relevant occurrence. Events never carry
// secrets or file contents, only identifiers.
type AuditEvent struct {
	Type     string            `json:"type"`
	UserID   int               `json:"user_id,omitempty"`
	Username string            `json:"username,omitempty"`
	Detail   map[string]string `json:"detail,omitempty"`
	At       time.Time         `json:"at"`
}

// AuditPublisher publishes audit events best-effort: publish failures are
// logged and never surfaced to the request that triggered the event. A nil
// publisher is a valid no-op.
type AuditPublisher struct {
	mq     *MQ
	logger *slog.Logger
}

// NewAuditPublisher constructs a publisher over the given broker.
func NewAuditPublisher(m *MQ, logger *slog.Logger) *AuditPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditPublisher{mq: m, logger: logger}
}

// Publish sends the event to the audit channel. Safe on a nil receiver.
func (p *AuditPublisher) Publish(ctx context.Context, event AuditEvent) {
	if p == nil || p.mq == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("audit event marshal failed", "type", event.Type, "err", err)
		return
	}

	attrs := map[string]string{"type": event.Type}
	if _, err := p.mq.Publish(ctx, AuditChannel, data, attrs); err != nil {
		p.logger.Error("audit event publish failed", "type", event.Type, "err", err)
	}
}
