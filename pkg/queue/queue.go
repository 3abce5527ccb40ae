// Package queue provides the per-project priority queue used by the scheduler.
//
// Tasks dequeue by ascending priority value. Ties are broken by insertion
// order, so a queue is stable for tasks sharing a priority.
package queue

import (
	"container/heap"
	"sync"

	"github.com/guido-cesarano/rrscheduler/pkg/tasks"
)

type item struct {
	task tasks.Task
	seq  uint64
}

type items []item

func (q items) Len() int { return len(q) }

func (q items) Less(i, j int) bool {
	if q[i].task.Priority != q[j].task.Priority {
		return q[i].task.Priority < q[j].task.Priority
	}
	return q[i].seq < q[j].seq
}

func (q items) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
}

func (q *items) Push(x any) {
	*q = append(*q, x.(item))
}

func (q *items) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

// ProjectQueue is the pending-task queue of a single project.
// It is safe for concurrent use.
type ProjectQueue struct {
	mu      sync.Mutex
	items   items
	nextSeq uint64

	projectID int
}

// NewProjectQueue creates an empty queue for projectID.
func NewProjectQueue(projectID int) *ProjectQueue {
	return &ProjectQueue{
		projectID: projectID,
	}
}

// ProjectID returns the project this queue belongs to.
func (q *ProjectQueue) ProjectID() int {
	return q.projectID
}

// Push enqueues task keyed by (priority, insertion sequence).
func (q *ProjectQueue) Push(task tasks.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	heap.Push(&q.items, item{task: task, seq: q.nextSeq})
	q.nextSeq++
}

// Pop removes and returns the task with the lowest priority value.
// The boolean is false when the queue is empty.
func (q *ProjectQueue) Pop() (tasks.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return tasks.Task{}, false
	}

	return heap.Pop(&q.items).(item).task, true
}

// Peek returns the head of the queue without removing it.
func (q *ProjectQueue) Peek() (tasks.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return tasks.Task{}, false
	}

	return q.items[0].task, true
}

// Len returns the number of pending tasks.
func (q *ProjectQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// Snapshot returns the pending tasks in dequeue order.
// The queue itself is left untouched.
func (q *ProjectQueue) Snapshot() []tasks.Task {
	q.mu.Lock()
	cp := make(items, len(q.items))
	copy(cp, q.items)
	q.mu.Unlock()

	result := make([]tasks.Task, 0, len(cp))
	for cp.Len() > 0 {
		result = append(result, heap.Pop(&cp).(item).task)
	}

	return result
}
