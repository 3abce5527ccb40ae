package events

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultKeep is how many events of each kind the journal retains.
const DefaultKeep = 100

// RedisSink journals events into Redis lists, one per kind:
//   - events:allocated
//   - events:completed
//
// Each list keeps the newest entries at the head and is trimmed to keep
// entries. Emit only buffers the event; Run drains the buffer, so a slow
// Redis never stalls the resource that emitted the event.
type RedisSink struct {
	rdb    *redis.Client
	log    zerolog.Logger
	buffer chan Event
	keep   int64

	dropped atomic.Int64
}

// NewRedisSink creates a sink writing to the Redis server at addr
// ("host:port"). bufferSize bounds the number of events waiting for Run.
func NewRedisSink(addr string, bufferSize int, log zerolog.Logger) *RedisSink {
	if bufferSize <= 0 {
		bufferSize = 1024
	}

	return &RedisSink{
		rdb: redis.NewClient(&redis.Options{
			Addr: addr,
		}),
		log:    log,
		buffer: make(chan Event, bufferSize),
		keep:   DefaultKeep,
	}
}

// Key returns the list key events of kind are journaled under.
func Key(kind Kind) string {
	return "events:" + string(kind)
}

// Ping checks connectivity.
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Emit queues e for Run. When the buffer is full the event is dropped.
func (s *RedisSink) Emit(e Event) {
	select {
	case s.buffer <- e:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns the number of events discarded because the buffer was full.
func (s *RedisSink) Dropped() int64 {
	return s.dropped.Load()
}

// Run writes buffered events until ctx is cancelled, then flushes whatever is
// still buffered. Writes are not cut short by the cancellation itself.
func (s *RedisSink) Run(ctx context.Context) {
	writeCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			s.drain(writeCtx)
			return
		case e := <-s.buffer:
			s.write(writeCtx, e)
		}
	}
}

func (s *RedisSink) drain(ctx context.Context) {
	for {
		select {
		case e := <-s.buffer:
			s.write(ctx, e)
		default:
			return
		}
	}
}

func (s *RedisSink) write(ctx context.Context, e Event) {
	if err := s.Write(ctx, e); err != nil {
		s.log.Error().Err(err).Str("event_id", e.ID.String()).Msg("Event journal write failed")
	}
}

// Write journals e synchronously.
// The push and trim run in one transaction pipeline.
func (s *RedisSink) Write(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	key := Key(e.Kind)

	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, s.keep-1)
	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns up to limit journaled events of kind, newest first.
func (s *RedisSink) Recent(ctx context.Context, kind Kind, limit int64) ([]Event, error) {
	raw, err := s.rdb.LRange(ctx, Key(kind), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	result := make([]Event, 0, len(raw))
	for _, entry := range raw {
		var e Event
		if err := json.Unmarshal([]byte(entry), &e); err != nil {
			// Skip entries written by something else.
			continue
		}
		result = append(result, e)
	}

	return result, nil
}

// Close closes the Redis connection.
func (s *RedisSink) Close() error {
	return s.rdb.Close()
}
