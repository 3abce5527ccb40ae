// Package tasks defines the task value scheduled onto resources.
// Tasks are opaque units of work owned by a project and ordered by priority.
package tasks

import (
	"fmt"
	"time"
)

// Task is an immutable unit of work queued under a project.
//
// ID is assigned by the producer and is unique within its project, starting
// at 0 and increasing monotonically. Priority orders tasks inside a project
// queue: a lower value dequeues first.
type Task struct {
	// ID identifies the task within its project.
	ID int `json:"id"`

	// ProjectID selects the project queue the task belongs to.
	ProjectID int `json:"project_id"`

	// Priority is the ordering key. Lower value = higher precedence.
	Priority int `json:"priority"`

	// CreatedAt is informational only and takes no part in ordering or equality.
	CreatedAt time.Time `json:"created_at"`
}

// Priority bounds used by producers when drawing random priorities.
const (
	PriorityHigh = 1
	PriorityLow  = 100
)

// New builds a task stamped with the current time.
func New(id, projectID, priority int) Task {
	return Task{
		ID:        id,
		ProjectID: projectID,
		Priority:  priority,
		CreatedAt: time.Now(),
	}
}

// Equal compares tasks by value on (ID, ProjectID, Priority).
func (t Task) Equal(other Task) bool {
	return t.ID == other.ID &&
		t.ProjectID == other.ProjectID &&
		t.Priority == other.Priority
}

func (t Task) String() string {
	return fmt.Sprintf("task %d (project %d, priority %d)", t.ID, t.ProjectID, t.Priority)
}
