// Package main provides a benchmark tool for the scheduler to measure enqueue
// throughput under concurrent producers and the cost of draining the queues
// through allocation passes.
//
// Usage:
//
//	go run ./benchmark -tasks 100000 -producers 10 -projects 20 -resources 8
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guido-cesarano/rrscheduler/pkg/scheduler"
	"github.com/guido-cesarano/rrscheduler/pkg/tasks"
	"github.com/rs/zerolog"
)

func main() {
	numTasks := flag.Int("tasks", 100000, "Number of tasks to enqueue")
	numProducers := flag.Int("producers", 10, "Number of concurrent producers")
	numProjects := flag.Int("projects", 20, "Number of projects")
	numResources := flag.Int("resources", 8, "Number of resources")
	flag.Parse()

	if *numProducers <= 0 || *numProjects <= 0 || *numResources <= 0 {
		fmt.Printf("producers, projects and resources must be positive\n")
		return
	}

	sched, err := scheduler.New(*numResources, *numProjects, scheduler.WithLogger(zerolog.Nop()))
	if err != nil {
		fmt.Printf("Invalid setup: %v\n", err)
		return
	}

	fmt.Printf("Scheduler Benchmark\n")
	fmt.Printf("===================\n")
	fmt.Printf("Tasks to enqueue: %d\n", *numTasks)
	fmt.Printf("Producers: %d, projects: %d, resources: %d\n\n", *numProducers, *numProjects, *numResources)

	// Enqueue phase
	fmt.Printf("Starting enqueue phase...\n")
	startEnqueue := time.Now()

	var wg sync.WaitGroup
	var enqueued atomic.Int64
	tasksPerProducer := *numTasks / *numProducers

	for i := 0; i < *numProducers; i++ {
		wg.Add(1)
		go func(producerID int) {
			defer wg.Done()
			for j := 0; j < tasksPerProducer; j++ {
				task := tasks.New(
					producerID*tasksPerProducer+j,
					rand.IntN(*numProjects),
					rand.IntN(tasks.PriorityLow)+tasks.PriorityHigh,
				)
				if err := sched.AddTask(task); err != nil {
					fmt.Printf("Error enqueuing: %v\n", err)
					return
				}
				enqueued.Add(1)
			}
		}(i)
	}

	wg.Wait()
	enqueueTime := time.Since(startEnqueue)

	fmt.Printf("✓ Enqueued %d tasks in %s\n", enqueued.Load(), enqueueTime)
	fmt.Printf("  Throughput: %.2f tasks/sec\n\n", float64(enqueued.Load())/enqueueTime.Seconds())

	// Drain phase: every pass is followed by freeing the whole pool
	fmt.Printf("Draining queues through allocation passes...\n")
	startDrain := time.Now()

	var passes, allocated int
	for sched.Status().Pending > 0 {
		allocated += sched.Allocate()
		passes++

		for _, res := range sched.Resources() {
			res.RemoveTask()
		}

		if passes%10000 == 0 {
			fmt.Printf("  Remaining: %d tasks\n", sched.Status().Pending)
		}
	}

	drainTime := time.Since(startDrain)

	fmt.Printf("\n✓ Allocated %d tasks in %d passes, %s\n", allocated, passes, drainTime)
	fmt.Printf("  Throughput: %.2f allocations/sec\n", float64(allocated)/drainTime.Seconds())
	fmt.Printf("  Mean pass: %s\n", drainTime/time.Duration(max(passes, 1)))

	totalTime := enqueueTime + drainTime
	fmt.Printf("\nTotal time: %s\n", totalTime)
}
