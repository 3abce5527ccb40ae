// Package main starts an in-memory Redis for local runs of the event journal:
//
//	go run ./cmd/redis_server -addr 127.0.0.1:6379
//	go run ./cmd/scheduler run --redis-addr 127.0.0.1:6379
//
// Every few seconds it logs the length of the journal lists.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/guido-cesarano/rrscheduler/pkg/events"
	"github.com/guido-cesarano/rrscheduler/pkg/logger"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:6379", "Listen address")
	every := flag.Duration("report", 10*time.Second, "Journal length report interval, 0 disables")
	flag.Parse()

	s := miniredis.NewMiniRedis()
	if err := s.StartAddr(*addr); err != nil {
		logger.Log.Fatal().Err(err).Str("addr", *addr).Msg("Failed to start miniredis")
	}
	defer s.Close()

	logger.Log.Info().Str("addr", s.Addr()).Msg("MiniRedis server started")

	var tick <-chan time.Time
	if *every > 0 {
		ticker := time.NewTicker(*every)
		defer ticker.Stop()
		tick = ticker.C
	}

	// Wait for interrupt signal to gracefully shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigChan:
			logger.Log.Info().Msg("Shutting down MiniRedis...")
			return
		case <-tick:
			report(s)
		}
	}
}

func report(s *miniredis.Miniredis) {
	ev := logger.Log.Info()

	for _, kind := range []events.Kind{events.KindAllocated, events.KindCompleted} {
		key := events.Key(kind)

		var length int
		if s.Exists(key) {
			list, err := s.List(key)
			if err != nil {
				logger.Log.Error().Err(err).Str("key", key).Msg("Failed to read journal")
				continue
			}
			length = len(list)
		}

		ev = ev.Int(key, length)
	}

	ev.Msg("Journal")
}
