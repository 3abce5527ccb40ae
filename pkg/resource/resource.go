// Package resource implements the execution slots tasks are allocated to.
//
// A Resource holds at most one task. Its state machine is
//
//	Free --AssignTask--> Busy --RemoveTask--> Free
//
// and every transition runs under the resource's own lock.
package resource

import (
	"errors"
	"fmt"
	"sync"

	"github.com/guido-cesarano/rrscheduler/pkg/events"
	"github.com/guido-cesarano/rrscheduler/pkg/tasks"
)

// Status is the occupancy of a resource.
type Status uint8

const (
	Free Status = iota
	Busy
)

func (s Status) String() string {
	if s == Busy {
		return "busy"
	}
	return "free"
}

// ErrResourceBusy is matched by the error AssignTask returns for a busy resource.
var ErrResourceBusy = errors.New("resource is busy")

// InvalidStateError reports an assignment attempted on a busy resource.
type InvalidStateError struct {
	ResourceID int
	Current    tasks.Task
	Rejected   tasks.Task
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf(
		"resource %d: cannot assign %s, already running %s",
		e.ResourceID,
		e.Rejected,
		e.Current,
	)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrResourceBusy
}

// Resource is a slot holding at most one task.
// The zero value is not usable; create resources with New.
type Resource struct {
	mu     sync.Mutex
	task   tasks.Task
	status Status
	sink   events.Sink

	id int
}

// New creates a free resource. A nil sink discards events.
func New(id int, sink events.Sink) *Resource {
	if sink == nil {
		sink = events.Discard
	}

	return &Resource{
		id:     id,
		status: Free,
		sink:   sink,
	}
}

// ID returns the stable resource identifier.
func (r *Resource) ID() int {
	return r.id
}

// AssignTask places task on the resource and marks it busy.
// A busy resource is left untouched and an *InvalidStateError is returned.
func (r *Resource) AssignTask(task tasks.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == Busy {
		return &InvalidStateError{
			ResourceID: r.id,
			Current:    r.task,
			Rejected:   task,
		}
	}

	r.task = task
	r.status = Busy

	r.sink.Emit(events.New(events.KindAllocated, r.id, task))

	return nil
}

// RemoveTask frees the resource and returns the task it was holding.
// On a free resource it does nothing and returns false.
func (r *Resource) RemoveTask() (tasks.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == Free {
		return tasks.Task{}, false
	}

	removed := r.task

	r.sink.Emit(events.New(events.KindCompleted, r.id, removed))

	r.task = tasks.Task{}
	r.status = Free

	return removed, true
}

// Status returns the current occupancy.
func (r *Resource) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.status
}

// IsFree reports whether the resource can accept a task.
func (r *Resource) IsFree() bool {
	return r.Status() == Free
}

// Task returns the task currently held, if any.
func (r *Resource) Task() (tasks.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == Free {
		return tasks.Task{}, false
	}

	return r.task, true
}
