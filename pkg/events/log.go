package events

import (
	"github.com/rs/zerolog"
)

// LogSink writes every event as a structured log line.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink returns a sink logging through log.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

// Emit logs e at info level.
func (s *LogSink) Emit(e Event) {
	msg := "Task allocated"
	if e.Kind == KindCompleted {
		msg = "Task finished"
	}

	s.log.Info().
		Str("kind", string(e.Kind)).
		Int("resource_id", e.ResourceID).
		Int("task_id", e.TaskID).
		Int("project_id", e.ProjectID).
		Int("priority", e.Priority).
		Msg(msg)
}
