// Package simulator drives a scheduler with synthetic load: a producer that
// manufactures tasks at random intervals and a consumer that frees random
// resources at random intervals.
package simulator

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/guido-cesarano/rrscheduler/pkg/config"
	"github.com/guido-cesarano/rrscheduler/pkg/resource"
	"github.com/guido-cesarano/rrscheduler/pkg/tasks"
	"github.com/rs/zerolog"
)

// Producer accepts new tasks. *scheduler.Scheduler implements it.
type Producer interface {
	AddTask(tasks.Task) error
	NumProjects() int
}

// Pool exposes the resources a consumer may free.
type Pool interface {
	Resources() []*resource.Resource
}

// Simulator holds the random source and the timing bounds shared by the
// producer and consumer loops.
type Simulator struct {
	mu  sync.Mutex
	rnd *rand.Rand

	generation config.Range
	completion config.Range
	priority   config.IntRange
	sample     config.IntRange

	log zerolog.Logger
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithRand replaces the random source, e.g. with a seeded one in tests.
func WithRand(rnd *rand.Rand) Option {
	return func(s *Simulator) { s.rnd = rnd }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Simulator) { s.log = log }
}

// New creates a simulator using the timing and priority bounds of cfg.
func New(cfg config.Config, opts ...Option) *Simulator {
	s := &Simulator{
		rnd: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),

		generation: cfg.Generation,
		completion: cfg.Completion,
		priority:   cfg.Priority,
		sample:     cfg.Sample,

		log: zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Simulator) intBetween(low, high int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if high <= low {
		return low
	}

	return low + s.rnd.IntN(high-low+1)
}

func (s *Simulator) durationBetween(r config.Range) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.High <= r.Low {
		return r.Low
	}

	return r.Low + time.Duration(s.rnd.Int64N(int64(r.High-r.Low)+1))
}

// sleep waits d or until ctx is done, reporting whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// GenerateTasks manufactures tasks until ctx is cancelled.
//
// Each iteration picks a random project, numbers the task with that
// project's next id (starting at 0), draws a random priority and enqueues
// it, then sleeps a random generation interval.
func (s *Simulator) GenerateTasks(ctx context.Context, producer Producer) {
	numProjects := producer.NumProjects()
	if numProjects == 0 {
		s.log.Warn().Msg("No projects configured, task generator idle")
		return
	}

	nextID := make([]int, numProjects)

	for ctx.Err() == nil {
		projectID := s.intBetween(0, numProjects-1)

		task := tasks.New(
			nextID[projectID],
			projectID,
			s.intBetween(s.priority.Low, s.priority.High),
		)
		nextID[projectID]++

		if err := producer.AddTask(task); err != nil {
			s.log.Error().Err(err).Int("project_id", projectID).Msg("Failed to enqueue task")
		} else {
			s.log.Info().
				Int("task_id", task.ID).
				Int("project_id", task.ProjectID).
				Int("priority", task.Priority).
				Msg("New task generated")
		}

		if !sleep(ctx, s.durationBetween(s.generation)) {
			return
		}
	}
}

// CompleteTasks frees a random resource, then sleeps a random completion
// interval, until ctx is cancelled. Picking a free resource is a no-op.
func (s *Simulator) CompleteTasks(ctx context.Context, pool Pool) {
	resources := pool.Resources()
	if len(resources) == 0 {
		s.log.Warn().Msg("No resources configured, task completer idle")
		return
	}

	for ctx.Err() == nil {
		res := resources[s.intBetween(0, len(resources)-1)]
		res.RemoveTask()

		if !sleep(ctx, s.durationBetween(s.completion)) {
			return
		}
	}
}

// SampleTasks fills every project queue at once with a random number of
// tasks, numbered from 0 per project. It returns the number enqueued.
func (s *Simulator) SampleTasks(producer Producer) (int, error) {
	var count int

	for projectID := range producer.NumProjects() {
		n := s.intBetween(s.sample.Low, s.sample.High)

		for taskID := range n {
			task := tasks.New(
				taskID,
				projectID,
				s.intBetween(s.priority.Low, s.priority.High),
			)

			if err := producer.AddTask(task); err != nil {
				return count, err
			}
			count++

			s.log.Info().
				Int("task_id", task.ID).
				Int("project_id", task.ProjectID).
				Int("priority", task.Priority).
				Msg("New task generated")
		}
	}

	return count, nil
}
