package data

import (
	"context"

	"FuseLane/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// LogEventNotifier implements biz.EventNotifier by emitting structured log
// events. Downstream alerting scrapes these; a webhook or message-bus
// notifier can replace this implementation without touching the biz layer.
type LogEventNotifier struct {
	logger *log.Helper
}

// NewLogEventNotifier creates the logging notifier.
func NewLogEventNotifier(logger log.Logger) *LogEventNotifier {
	return &LogEventNotifier{logger: log.NewHelper(logger)}
}

// NotifyCircuitOpened implements biz.EventNotifier.
func (n *LogEventNotifier) NotifyCircuitOpened(_ context.Context, event *model.CircuitOpenedEvent) error {
	n.logger.Warnw("msg", "circuit opened",
		"type", "circuit",
		"event", model.AuditEventCircuitOpened,
		"breaker", event.Name,
		"failure_count", event.FailureCount,
		"next_attempt_time", event.NextAttemptTime,
	)
	return nil
}

// NotifyCircuitClosed implements biz.EventNotifier.
func (n *LogEventNotifier) NotifyCircuitClosed(_ context.Context, event *model.CircuitClosedEvent) error {
	n.logger.Infow("msg", "circuit recovered",
		"type", "success",
		"event", model.AuditEventCircuitClosed,
		"breaker", event.Name,
		"probe_count", event.ProbeCount,
		"open_duration", event.OpenDuration,
	)
	return nil
}
