package scheduler

import (
	"context"
	"time"

	"github.com/guido-cesarano/rrscheduler/pkg/queue"
	"github.com/guido-cesarano/rrscheduler/pkg/resource"
)

// Allocate runs one allocation pass and returns the number of tasks assigned.
//
// Projects are visited in ascending id, once each. A project with pending
// tasks takes the first free resource in ascending resource id and hands it
// its highest-priority task; it then yields to the next project even when
// more resources are free. Empty queues and a fully busy pool are skipped
// silently.
func (s *Scheduler) Allocate() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var assigned int

	for _, q := range s.queues {
		if q.Len() == 0 {
			continue
		}

		if s.allocateProject(q) {
			assigned++
		}
	}

	if assigned > 0 {
		s.log.Debug().Int("assigned", assigned).Msg("Allocation pass")
	}

	return assigned
}

// allocateProject gives q at most one free resource.
func (s *Scheduler) allocateProject(q *queue.ProjectQueue) bool {
	for ix, res := range s.resources {
		if !res.IsFree() {
			continue
		}

		task, ok := q.Pop()
		if !ok {
			return false
		}

		// Only this pass assigns through the scheduler, but resources are
		// public: if one got taken behind our back, try the rest of the pool.
		if errAssign := res.AssignTask(task); errAssign == nil {
			return true
		}

		for _, other := range s.resources[ix+1:] {
			if other.IsFree() && other.AssignTask(task) == nil {
				return true
			}
		}

		s.log.Warn().
			Int("task_id", task.ID).
			Int("project_id", task.ProjectID).
			Msg("No resource accepted task, re-queued")

		q.Push(task)

		return false
	}

	return false
}

// AllocateResources runs allocation passes until ctx is cancelled.
//
// A pass always runs first; cancellation is checked between passes, so the
// loop returns at most one interval after ctx is done.
func (s *Scheduler) AllocateResources(ctx context.Context) {
	s.log.Info().
		Int("resources", len(s.resources)).
		Int("projects", len(s.queues)).
		Dur("interval", s.interval).
		Msg("Allocator started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Allocate()

		select {
		case <-ctx.Done():
			s.log.Info().Msg("Allocator stopped")
			return
		case <-ticker.C:
		case <-s.wake: // nil unless WithWakeOnEnqueue
		}
	}
}

// Status is a point-in-time view of the scheduler used for reporting.
type Status struct {
	QueueDepths []int
	Pending     int
	Busy        int
	Free        int
}

// Status collects queue depths and resource occupancy.
// It does not take the allocation lock, so values may be mid-pass.
func (s *Scheduler) Status() Status {
	result := Status{
		QueueDepths: make([]int, len(s.queues)),
	}

	for i, q := range s.queues {
		depth := q.Len()

		result.QueueDepths[i] = depth
		result.Pending += depth
	}

	for _, res := range s.resources {
		if res.Status() == resource.Busy {
			result.Busy++
			continue
		}

		result.Free++
	}

	return result
}
