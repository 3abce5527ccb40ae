// Package main implements the round-robin scheduler process.
//
// The run command starts three concurrent actors against one scheduler:
//   - the allocator, running an allocation pass every interval
//   - a task generator, enqueuing random tasks on random projects
//   - a task completer, freeing random resources
//
// Allocation and completion events are logged, counted in Prometheus
// (served on --metrics-addr) and optionally journaled to Redis
// (--redis-addr). A cron job reports queue depths periodically.
//
// Usage:
//
//	go run ./cmd/scheduler run -n 3 -p 5
//	go run ./cmd/scheduler sample -n 2 -p 4
//
// SIGINT/SIGTERM cancels all actors; each one stops at its next check.
package main

import (
	"os"

	"github.com/guido-cesarano/rrscheduler/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Log.Error().Err(err).Msg("Scheduler failed")
		os.Exit(1)
	}
}
