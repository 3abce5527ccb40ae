// Package events carries the allocation and completion notifications emitted
// by resources. Sinks fan them out to logs, metrics and a Redis journal.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/guido-cesarano/rrscheduler/pkg/tasks"
)

// Kind tells what happened to a resource.
type Kind string

const (
	// KindAllocated is emitted when a task is assigned to a free resource.
	KindAllocated Kind = "allocated"
	// KindCompleted is emitted when a busy resource is freed.
	KindCompleted Kind = "completed"
)

// Event is a single resource state transition.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Kind       Kind      `json:"kind"`
	ResourceID int       `json:"resource_id"`
	TaskID     int       `json:"task_id"`
	ProjectID  int       `json:"project_id"`
	Priority   int       `json:"priority"`

	// EnqueuedAt is copied from the task so sinks can measure queue wait.
	EnqueuedAt time.Time `json:"enqueued_at"`
	At         time.Time `json:"at"`
}

// New builds an event of kind for task on resourceID.
func New(kind Kind, resourceID int, task tasks.Task) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       kind,
		ResourceID: resourceID,
		TaskID:     task.ID,
		ProjectID:  task.ProjectID,
		Priority:   task.Priority,
		EnqueuedAt: task.CreatedAt,
		At:         time.Now(),
	}
}

// Sink receives events. Emit is called while the emitting resource is locked,
// so implementations must not call back into that resource and should return
// quickly.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

type multi []Sink

func (m multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// Multi fans events out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	result := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			result = append(result, s)
		}
	}

	if len(result) == 1 {
		return result[0]
	}

	return result
}
