package audit

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogrusLogger writes audit events as structured log lines. Denials and
// failures are logged at warn level, everything else at info.
type LogrusLogger struct {
	log *logrus.Logger
}

// NewLogrusLogger creates a new logrus-backed audit logger
func NewLogrusLogger(log *logrus.Logger) *LogrusLogger {
	if log == nil {
		log = logrus.New()
	}
	return &LogrusLogger{log: log}
}

// Log implements Logger
func (l *LogrusLogger) Log(ctx context.Context, event *Event) error {
	fields := logrus.Fields{
		"audit":      true,
		"audit_id":   event.ID,
		"event_type": string(event.EventType),
		"status":     string(event.Status),
	}
	addField(fields, "actor_id", event.ActorID)
	addField(fields, "actor_role", event.ActorRole)
	addField(fields, "organization_id", event.OrganizationID)
	addField(fields, "resource_type", event.ResourceType)
	addField(fields, "resource_id", event.ResourceID)
	addField(fields, "operation", event.Operation)
	addField(fields, "rule", event.Rule)
	addField(fields, "reason", event.Reason)
	addField(fields, "request_id", event.RequestID)
	addField(fields, "error", event.ErrorMessage)
	for k, v := range event.Metadata {
		if _, taken := fields[k]; !taken {
			fields[k] = v
		}
	}

	entry := l.log.WithFields(fields)
	msg := event.Message
	if msg == "" {
		msg = string(event.EventType)
	}

	switch event.Status {
	case EventStatusDenied, EventStatusFailure:
		entry.Warn(msg)
	default:
		entry.Info(msg)
	}
	return nil
}

// Close implements Logger
func (l *LogrusLogger) Close() error {
	return nil
}

func addField(fields logrus.Fields, key, value string) {
	if value != "" {
		fields[key] = value
	}
}
