package notifications

import (
	"context"
	"sync"

	"github.com/tooldock/resilience-core/pkg/logging"
)

// LogSink writes notifications to the structured log, mapping the
// notification type to a log level
type LogSink struct {
	logger *logging.Logger
}

// NewLogSink creates a log-backed sink
func NewLogSink() *LogSink {
	return &LogSink{
		logger: logging.GetLogger(),
	}
}

// Deliver logs the notification
func (s *LogSink) Deliver(ctx context.Context, n Notification) error {
	fields := []interface{}{
		"notification_id", n.ID,
		"source", n.Source,
		"title", n.Title,
		"message", n.Message,
	}

	switch n.Type {
	case TypeError:
		s.logger.Error("Notification", fields...)
	case TypeWarning:
		s.logger.Warn("Notification", fields...)
	default:
		s.logger.Info("Notification", fields...)
	}
	return nil
}

// Name identifies the sink
func (s *LogSink) Name() string {
	return "log"
}

// RecordingSink keeps delivered notifications in memory so callers can
// poll for pending messages, for example a UI surface draining them on
// its own schedule.
type RecordingSink struct {
	mutex         sync.Mutex
	notifications []Notification
}

// NewRecordingSink creates an in-memory sink
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{
		notifications: make([]Notification, 0),
	}
}

// Deliver records the notification
func (s *RecordingSink) Deliver(ctx context.Context, n Notification) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.notifications = append(s.notifications, n)
	return nil
}

// Name identifies the sink
func (s *RecordingSink) Name() string {
	return "recording"
}

// Notifications returns a copy of everything delivered so far
func (s *RecordingSink) Notifications() []Notification {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out := make([]Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

// Drain returns delivered notifications and clears the buffer
func (s *RecordingSink) Drain() []Notification {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out := s.notifications
	s.notifications = make([]Notification, 0)
	return out
}
