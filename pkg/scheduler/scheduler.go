// Package scheduler allocates queued tasks to a fixed pool of resources.
//
// Every project owns a priority queue. An allocation pass walks the projects
// in ascending id and gives each non-empty project at most one free resource,
// so a deep backlog in one project cannot starve the others. Inside a project
// the task with the lowest priority value is dequeued first, ties going to
// the earliest arrival.
//
// Three kinds of actors share a Scheduler:
//   - producers calling AddTask
//   - the allocation loop (AllocateResources)
//   - consumers calling RemoveTask on resources
//
// Producers only take the lock of the queue they push to and are never
// blocked by a running pass.
package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	goerrors "github.com/TudorHulban/go-errors"
	"github.com/google/uuid"
	"github.com/guido-cesarano/rrscheduler/pkg/events"
	"github.com/guido-cesarano/rrscheduler/pkg/logger"
	"github.com/guido-cesarano/rrscheduler/pkg/queue"
	"github.com/guido-cesarano/rrscheduler/pkg/resource"
	"github.com/guido-cesarano/rrscheduler/pkg/tasks"
	"github.com/rs/zerolog"
)

// DefaultInterval is the pause between two allocation passes.
const DefaultInterval = time.Second

// ErrInvalidProject is matched by errors referring to an unconfigured project.
var ErrInvalidProject = errors.New("invalid project")

// InvalidProjectError reports a project id outside [0, NumProjects).
type InvalidProjectError struct {
	ProjectID   int
	NumProjects int
}

func (e *InvalidProjectError) Error() string {
	return fmt.Sprintf(
		"project %d is not configured (valid ids: 0..%d)",
		e.ProjectID,
		e.NumProjects-1,
	)
}

func (e *InvalidProjectError) Unwrap() error {
	return ErrInvalidProject
}

// Scheduler owns the resource pool and the project queues.
type Scheduler struct {
	resources []*resource.Resource
	queues    []*queue.ProjectQueue // index is the project id

	// allocation lock: one pass at a time
	mu sync.Mutex

	interval time.Duration
	wake     chan struct{}
	sink     events.Sink
	log      zerolog.Logger

	id uuid.UUID
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSink routes resource events to sink.
func WithSink(sink events.Sink) Option {
	return func(s *Scheduler) { s.sink = sink }
}

// WithInterval sets the pause between allocation passes.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets the logger. Defaults to logger.Log.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithWakeOnEnqueue makes AddTask cut the current pause short so the next
// pass runs right away. Without it the loop polls at the fixed interval.
func WithWakeOnEnqueue() Option {
	return func(s *Scheduler) { s.wake = make(chan struct{}, 1) }
}

// New creates a scheduler with resources 0..numResources-1 and project
// queues 0..numProjects-1. Both sets are fixed for the scheduler's lifetime.
func New(numResources, numProjects int, opts ...Option) (*Scheduler, error) {
	if numResources < 0 {
		return nil,
			goerrors.ErrValidation{
				Caller: "New - Scheduler",
				Issue: goerrors.ErrNegativeInput{
					InputName: "numResources",
				},
			}
	}

	if numProjects < 0 {
		return nil,
			goerrors.ErrValidation{
				Caller: "New - Scheduler",
				Issue: goerrors.ErrNegativeInput{
					InputName: "numProjects",
				},
			}
	}

	s := &Scheduler{
		id:       uuid.New(),
		interval: DefaultInterval,
		sink:     events.Discard,
		log:      logger.Log,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.log = s.log.With().Str("scheduler_id", s.id.String()).Logger()

	s.resources = make([]*resource.Resource, numResources)
	for i := range s.resources {
		s.resources[i] = resource.New(i, s.sink)
	}

	s.queues = make([]*queue.ProjectQueue, numProjects)
	for i := range s.queues {
		s.queues[i] = queue.NewProjectQueue(i)
	}

	return s, nil
}

// ID returns the scheduler instance identifier.
func (s *Scheduler) ID() uuid.UUID {
	return s.id
}

// Interval returns the pause between allocation passes.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// NumProjects returns the number of configured projects.
func (s *Scheduler) NumProjects() int {
	return len(s.queues)
}

// Resources returns the pool in ascending id order.
// The slice is a copy; the resources are shared.
func (s *Scheduler) Resources() []*resource.Resource {
	return append([]*resource.Resource(nil), s.resources...)
}

// Resource returns the resource with the given id.
func (s *Scheduler) Resource(id int) (*resource.Resource, error) {
	if id < 0 || id >= len(s.resources) {
		return nil,
			goerrors.ErrInvalidInput{
				Caller:     "Resource",
				InputName:  "id",
				InputValue: id,
				Issue: fmt.Errorf(
					"resource %d does not exist",
					id,
				),
			}
	}

	return s.resources[id], nil
}

func (s *Scheduler) projectQueue(projectID int) (*queue.ProjectQueue, error) {
	if projectID < 0 || projectID >= len(s.queues) {
		return nil,
			&InvalidProjectError{
				ProjectID:   projectID,
				NumProjects: len(s.queues),
			}
	}

	return s.queues[projectID], nil
}

// AddTask enqueues task on its project's queue.
// It returns an *InvalidProjectError for an unconfigured project id.
func (s *Scheduler) AddTask(task tasks.Task) error {
	q, err := s.projectQueue(task.ProjectID)
	if err != nil {
		return err
	}

	q.Push(task)

	if s.wake != nil {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}

	return nil
}

// QueueLen returns the number of tasks pending for projectID.
func (s *Scheduler) QueueLen(projectID int) (int, error) {
	q, err := s.projectQueue(projectID)
	if err != nil {
		return 0, err
	}

	return q.Len(), nil
}

// Peek returns the task the next pass would dequeue for projectID.
func (s *Scheduler) Peek(projectID int) (tasks.Task, bool, error) {
	q, err := s.projectQueue(projectID)
	if err != nil {
		return tasks.Task{}, false, err
	}

	task, ok := q.Peek()
	return task, ok, nil
}

// Pending returns the tasks queued for projectID in dequeue order.
func (s *Scheduler) Pending(projectID int) ([]tasks.Task, error) {
	q, err := s.projectQueue(projectID)
	if err != nil {
		return nil, err
	}

	return q.Snapshot(), nil
}
