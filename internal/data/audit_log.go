package data

import (
	"context"
	"time"

	"FuseLane/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// TransitionLog is the GORM model for breaker_transition_logs.
type TransitionLog struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	Breaker   string    `gorm:"column:breaker;type:varchar(128);not null;index"`
	EventType string    `gorm:"column:event_type;type:varchar(50);not null"`
	FromState string    `gorm:"column:from_state;type:varchar(20)"`
	ToState   string    `gorm:"column:to_state;type:varchar(20)"`
	Reason    string    `gorm:"column:reason;type:varchar(255)"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (TransitionLog) TableName() string {
	return "breaker_transition_logs"
}

// GormAuditLogger implements biz.AuditLogger with an async channel so a slow
// or absent database never blocks the breaker's hot path.
type GormAuditLogger struct {
	db      *gorm.DB
	logChan chan *TransitionLog
	logger  *log.Helper
}

// NewGormAuditLogger creates the audit logger. db may be nil; events are
// then logged and dropped.
func NewGormAuditLogger(db *gorm.DB, logger log.Logger) *GormAuditLogger {
	a := &GormAuditLogger{
		db:      db,
		logChan: make(chan *TransitionLog, 1000),
		logger:  log.NewHelper(logger),
	}
	if db != nil {
		go a.start()
	}
	return a
}

// start drains the channel into the database.
func (a *GormAuditLogger) start() {
	for event := range a.logChan {
		if err := a.db.WithContext(context.Background()).Create(event).Error; err != nil {
			a.logger.Errorw("msg", "failed to write transition audit log",
				"breaker", event.Breaker,
				"event_type", event.EventType,
				"error", err)
		}
	}
}

// LogTransition implements biz.AuditLogger.
func (a *GormAuditLogger) LogTransition(_ context.Context, name string, from, to model.BreakerState, reason string) {
	a.enqueue(&TransitionLog{
		Breaker:   name,
		EventType: eventTypeFor(to, reason),
		FromState: string(from),
		ToState:   string(to),
		Reason:    reason,
	})
}

// LogReset implements biz.AuditLogger.
func (a *GormAuditLogger) LogReset(_ context.Context, name string) {
	a.enqueue(&TransitionLog{
		Breaker:   name,
		EventType: model.AuditEventCircuitReset,
		ToState:   string(model.StateClosed),
		Reason:    "manual reset",
	})
}

// enqueue sends without blocking; a full channel drops the event.
func (a *GormAuditLogger) enqueue(event *TransitionLog) {
	if a.db == nil {
		a.logger.Debugw("msg", "audit event (not persisted)",
			"breaker", event.Breaker,
			"event_type", event.EventType,
			"from", event.FromState,
			"to", event.ToState,
			"reason", event.Reason)
		return
	}
	select {
	case a.logChan <- event:
	default:
		a.logger.Warnw("msg", "audit log channel full, dropping event",
			"breaker", event.Breaker,
			"event_type", event.EventType)
	}
}

func eventTypeFor(to model.BreakerState, reason string) string {
	switch to {
	case model.StateOpen:
		if reason == model.ReasonForcedOpen {
			return model.AuditEventCircuitForced
		}
		return model.AuditEventCircuitOpened
	case model.StateHalfOpen:
		return model.AuditEventCircuitProbing
	default:
		return model.AuditEventCircuitClosed
	}
}
