package channel

import (
	"log/slog"
)

// DeadlineMissedStatus counts deadline periods that passed with no alive
// sample on a reader.
type DeadlineMissedStatus struct {
	TotalCount       int
	TotalCountChange int
}

// Listener receives notifications from a reader. Both fields are optional.
// Callbacks run on the reader's delivery goroutine and must not block or
// call Receive on the same handle; data is always taken with Receive.
type Listener struct {
	OnDataAvailable  func(channel string)
	OnDeadlineMissed func(channel string, status DeadlineMissedStatus)
}

func (l Listener) dataAvailable(channel string) {
	if l.OnDataAvailable != nil {
		l.OnDataAvailable(channel)
	}
}

func (l Listener) deadlineMissed(channel string, st DeadlineMissedStatus) {
	if l.OnDeadlineMissed != nil {
		l.OnDeadlineMissed(channel, st)
	}
}

// LogListener logs each notification.
func LogListener(logger *slog.Logger) Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return Listener{
		OnDataAvailable: func(channel string) {
			logger.Info("on_data_available", "channel", channel)
		},
		OnDeadlineMissed: func(channel string, st DeadlineMissedStatus) {
			logger.Warn("on_requested_deadline_missed",
				"channel", channel,
				"total_count", st.TotalCount,
				"total_count_change", st.TotalCountChange,
			)
		},
	}
}
