package scheduler

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/guido-cesarano/rrscheduler/pkg/events"
	"github.com/guido-cesarano/rrscheduler/pkg/tasks"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, numResources, numProjects int, opts ...Option) *Scheduler {
	t.Helper()

	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)

	s, errCr := New(numResources, numProjects, opts...)
	require.NoError(t, errCr)
	require.NotNil(t, s)

	return s
}

func heldTask(t *testing.T, s *Scheduler, resourceID int) tasks.Task {
	t.Helper()

	res, errGet := s.Resource(resourceID)
	require.NoError(t, errGet)

	task, held := res.Task()
	require.True(t, held, "resource %d should be busy", resourceID)

	return task
}

func TestErrorsScheduler(t *testing.T) {
	t.Run(
		"1. negative resources",
		func(t *testing.T) {
			s, errCr := New(-1, 2)
			require.Error(t, errCr)
			require.Nil(t, s)
		},
	)

	t.Run(
		"2. negative projects",
		func(t *testing.T) {
			s, errCr := New(2, -1)
			require.Error(t, errCr)
			require.Nil(t, s)
		},
	)

	t.Run(
		"3. unknown resource",
		func(t *testing.T) {
			s := newTestScheduler(t, 1, 1)

			res, errGet := s.Resource(1)
			require.Error(t, errGet)
			require.Nil(t, res)
		},
	)
}

func TestNew(t *testing.T) {
	for _, tc := range []struct {
		resources int
		projects  int
	}{
		{1, 2},
		{3, 5},
		{4, 0},
		{0, 3},
	} {
		s := newTestScheduler(t, tc.resources, tc.projects)

		require.Len(t, s.Resources(), tc.resources)
		require.Equal(t, tc.projects, s.NumProjects())
		require.Equal(t, DefaultInterval, s.Interval())

		for id, res := range s.Resources() {
			require.Equal(t, id, res.ID())
			require.True(t, res.IsFree())
		}

		for projectID := range tc.projects {
			depth, errLen := s.QueueLen(projectID)
			require.NoError(t, errLen)
			require.Zero(t, depth)
		}

		_, errLen := s.QueueLen(tc.projects)
		require.ErrorIs(t, errLen, ErrInvalidProject)
	}
}

func TestAddTask(t *testing.T) {
	s := newTestScheduler(t, 1, 1)

	task := tasks.New(0, 0, 5)
	require.NoError(t, s.AddTask(task))

	head, ok, errPeek := s.Peek(0)
	require.NoError(t, errPeek)
	require.True(t, ok)
	require.True(t, head.Equal(task))
}

func TestAddTaskInvalidProject(t *testing.T) {
	s := newTestScheduler(t, 1, 2)

	for _, projectID := range []int{-1, 2, 100} {
		errAdd := s.AddTask(tasks.New(0, projectID, 1))
		require.Error(t, errAdd)
		require.True(t, errors.Is(errAdd, ErrInvalidProject))

		var errProject *InvalidProjectError
		require.ErrorAs(t, errAdd, &errProject)
		require.Equal(t, projectID, errProject.ProjectID)
		require.Equal(t, 2, errProject.NumProjects)
	}

	// the scheduler keeps working
	require.NoError(t, s.AddTask(tasks.New(0, 1, 1)))
	require.Equal(t, 1, s.Allocate())
}

func TestHeadIsDeterministic(t *testing.T) {
	s := newTestScheduler(t, 1, 1)

	require.NoError(t, s.AddTask(tasks.New(0, 0, 4)))
	require.NoError(t, s.AddTask(tasks.New(1, 0, 4)))
	require.NoError(t, s.AddTask(tasks.New(2, 0, 3)))
	require.NoError(t, s.AddTask(tasks.New(3, 0, 3)))

	pending, errPending := s.Pending(0)
	require.NoError(t, errPending)

	ids := make([]int, 0, len(pending))
	for _, task := range pending {
		ids = append(ids, task.ID)
	}
	require.Equal(t, []int{2, 3, 0, 1}, ids)
}

func TestAllocateResources(t *testing.T) {
	s := newTestScheduler(t, 2, 1)

	task := tasks.New(1, 0, 50)
	require.NoError(t, s.AddTask(task))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// cancelled before start: the loop still runs one pass, then returns
	s.AllocateResources(ctx)

	require.True(t, heldTask(t, s, 0).Equal(task))

	res1, _ := s.Resource(1)
	require.True(t, res1.IsFree())
}

func TestOneTaskPerProject(t *testing.T) {
	const (
		numResources = 5
		numProjects  = 4
	)

	s := newTestScheduler(t, numResources, numProjects)

	for projectID := range numProjects {
		require.NoError(t, s.AddTask(tasks.New(0, projectID, 10+projectID)))
	}

	require.Equal(t, numProjects, s.Allocate())

	for projectID := range numProjects {
		task := heldTask(t, s, projectID)
		require.Equal(t, projectID, task.ProjectID)
		require.Equal(t, 10+projectID, task.Priority)
	}

	res, _ := s.Resource(numResources - 1)
	require.True(t, res.IsFree())
}

func TestRoundRobinFairness(t *testing.T) {
	s := newTestScheduler(t, 4, 2)

	for projectID, count := range []int{5, 1} {
		for taskID := range count {
			require.NoError(t, s.AddTask(tasks.New(taskID, projectID, rand.IntN(100)+1)))
		}
	}

	require.Equal(t, 2, s.Allocate())

	require.Equal(t, 0, heldTask(t, s, 0).ProjectID)
	require.Equal(t, 1, heldTask(t, s, 1).ProjectID)

	for _, resourceID := range []int{2, 3} {
		res, _ := s.Resource(resourceID)
		require.True(t, res.IsFree(), "project 0 must not take a second resource in the same pass")
	}

	depth0, _ := s.QueueLen(0)
	depth1, _ := s.QueueLen(1)
	require.Equal(t, 4, depth0)
	require.Zero(t, depth1)

	// next pass: only project 0 has work left
	require.Equal(t, 1, s.Allocate())
	require.Equal(t, 0, heldTask(t, s, 2).ProjectID)
}

func TestPriorityWithinProject(t *testing.T) {
	s := newTestScheduler(t, 2, 2)

	require.NoError(t, s.AddTask(tasks.New(0, 0, 6)))
	require.NoError(t, s.AddTask(tasks.New(1, 0, 2)))
	require.NoError(t, s.AddTask(tasks.New(0, 1, 60)))

	require.Equal(t, 2, s.Allocate())

	first := heldTask(t, s, 0)
	require.Equal(t, 0, first.ProjectID)
	require.Equal(t, 2, first.Priority)

	second := heldTask(t, s, 1)
	require.Equal(t, 1, second.ProjectID)
	require.Equal(t, 60, second.Priority)
}

func TestRemoveTaskThenNextPass(t *testing.T) {
	s := newTestScheduler(t, 1, 1)

	require.NoError(t, s.AddTask(tasks.New(0, 0, 6)))
	require.NoError(t, s.AddTask(tasks.New(1, 0, 2)))

	require.Equal(t, 1, s.Allocate())
	require.Equal(t, 1, heldTask(t, s, 0).ID)

	// busy pool: nothing to do
	require.Zero(t, s.Allocate())

	res, _ := s.Resource(0)
	_, removed := res.RemoveTask()
	require.True(t, removed)
	require.True(t, res.IsFree())

	require.Equal(t, 1, s.Allocate())
	require.Equal(t, 0, heldTask(t, s, 0).ID)

	res.RemoveTask()
	require.True(t, res.IsFree())

	_, removed = res.RemoveTask()
	require.False(t, removed)
	require.True(t, res.IsFree())
}

func TestNoTasks(t *testing.T) {
	s := newTestScheduler(t, 1, 0)

	require.Zero(t, s.Allocate())

	res, _ := s.Resource(0)
	require.True(t, res.IsFree())
}

func TestNoResources(t *testing.T) {
	s := newTestScheduler(t, 0, 2)

	require.NoError(t, s.AddTask(tasks.New(0, 1, 1)))
	require.Zero(t, s.Allocate())

	depth, _ := s.QueueLen(1)
	require.Equal(t, 1, depth)
}

func TestSkipsBusyResources(t *testing.T) {
	s := newTestScheduler(t, 3, 1)

	res0, _ := s.Resource(0)
	require.NoError(t, res0.AssignTask(tasks.New(99, 0, 1)))

	require.NoError(t, s.AddTask(tasks.New(0, 0, 1)))
	require.Equal(t, 1, s.Allocate())

	require.Equal(t, 99, heldTask(t, s, 0).ID)
	require.Equal(t, 0, heldTask(t, s, 1).ID)
}

func TestEventsReachSink(t *testing.T) {
	var (
		mu       sync.Mutex
		recorded []events.Event
	)

	s := newTestScheduler(t, 1, 1,
		WithSink(events.SinkFunc(func(e events.Event) {
			mu.Lock()
			recorded = append(recorded, e)
			mu.Unlock()
		})),
	)

	require.NoError(t, s.AddTask(tasks.New(7, 0, 3)))
	require.Equal(t, 1, s.Allocate())

	res, _ := s.Resource(0)
	res.RemoveTask()

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, recorded, 2)
	require.Equal(t, events.KindAllocated, recorded[0].Kind)
	require.Equal(t, events.KindCompleted, recorded[1].Kind)
	require.Equal(t, 7, recorded[0].TaskID)
}

func TestConcurrentAddTask(t *testing.T) {
	s := newTestScheduler(t, 1, 1)

	const total = 1000

	var wg sync.WaitGroup
	for i := range total {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.AddTask(tasks.New(i, 0, i%7)))
		}(i)
	}
	wg.Wait()

	depth, _ := s.QueueLen(0)
	require.Equal(t, total, depth)

	pending, _ := s.Pending(0)
	seen := make(map[int]bool, total)
	for i, task := range pending {
		require.False(t, seen[task.ID])
		seen[task.ID] = true

		if i > 0 {
			require.LessOrEqual(t, pending[i-1].Priority, task.Priority)
		}
	}
	require.Len(t, seen, total)
}

func TestAddTaskDuringAllocation(t *testing.T) {
	s := newTestScheduler(t, 2, 3, WithInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.AllocateResources(ctx)
		close(done)
	}()

	var wg sync.WaitGroup
	for projectID := range 3 {
		wg.Add(1)
		go func(projectID int) {
			defer wg.Done()
			for i := range 100 {
				assert.NoError(t, s.AddTask(tasks.New(i, projectID, i%5)))
			}
		}(projectID)
	}

	// completer
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			for _, res := range s.Resources() {
				res.RemoveTask()
			}
			time.Sleep(100 * time.Microsecond)
		}
	}()

	wg.Wait()

	require.Eventually(t,
		func() bool {
			return s.Status().Pending == 0
		},
		5*time.Second,
		5*time.Millisecond,
	)

	close(stop)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("allocator did not stop after cancellation")
	}
}

func TestCancellationLatency(t *testing.T) {
	s := newTestScheduler(t, 1, 1, WithInterval(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.AllocateResources(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("allocator did not honor cancellation within one interval")
	}
}

func TestWakeOnEnqueue(t *testing.T) {
	s := newTestScheduler(t, 2, 1,
		WithInterval(time.Hour),
		WithWakeOnEnqueue(),
	)

	// drained by the first pass, before the loop starts waiting
	require.NoError(t, s.AddTask(tasks.New(0, 0, 1)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.AllocateResources(ctx)

	first, _ := s.Resource(0)
	require.Eventually(t,
		func() bool { return !first.IsFree() },
		time.Second,
		5*time.Millisecond,
	)

	require.NoError(t, s.AddTask(tasks.New(1, 0, 1)))

	second, _ := s.Resource(1)
	require.Eventually(t,
		func() bool { return !second.IsFree() },
		time.Second,
		5*time.Millisecond,
		"enqueue should trigger a pass without waiting an hour",
	)
	require.Equal(t, 1, heldTask(t, s, 1).ID)
}

func TestStatus(t *testing.T) {
	s := newTestScheduler(t, 2, 3)

	require.NoError(t, s.AddTask(tasks.New(0, 0, 1)))
	require.NoError(t, s.AddTask(tasks.New(1, 0, 1)))
	require.NoError(t, s.AddTask(tasks.New(0, 2, 1)))

	status := s.Status()
	require.Equal(t, []int{2, 0, 1}, status.QueueDepths)
	require.Equal(t, 3, status.Pending)
	require.Equal(t, 0, status.Busy)
	require.Equal(t, 2, status.Free)

	s.Allocate()

	status = s.Status()
	require.Equal(t, []int{1, 0, 0}, status.QueueDepths)
	require.Equal(t, 2, status.Busy)
	require.Equal(t, 0, status.Free)
}
