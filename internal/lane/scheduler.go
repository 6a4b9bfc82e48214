// Package lane serializes message processing per conversation. Tasks for
// the same key run strictly in submission order, one at a time; distinct
// keys run independently.
package lane

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is one unit of work on a conversation lane.
type Task func(ctx context.Context) error

type laneState struct {
	queue []Task
}

// Scheduler owns one logical lane per active conversation key. A lane is
// backed by a goroutine that drains its queue and exits when empty, so
// idle conversations hold no resources.
type Scheduler struct {
	logger *slog.Logger

	mu     sync.Mutex
	lanes  map[string]*laneState
	wg     sync.WaitGroup
	closed bool
}

func NewScheduler(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		logger: log.With(slog.String("service", "lane")),
		lanes:  make(map[string]*laneState),
	}
}

// Submit queues task on the lane for key. The task will not start until
// every previously submitted task for the same key has finished. Task
// errors and panics are logged and contained; they never affect queued
// tasks. Returns false after Shutdown.
func (s *Scheduler) Submit(key string, task Task) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	lane, ok := s.lanes[key]
	if ok {
		lane.queue = append(lane.queue, task)
		s.mu.Unlock()
		return true
	}
	lane = &laneState{queue: []Task{task}}
	s.lanes[key] = lane
	s.wg.Add(1)
	s.mu.Unlock()

	go s.drain(key, lane)
	return true
}

// drain runs the lane's tasks in order and removes the lane once the
// queue is empty.
func (s *Scheduler) drain(key string, lane *laneState) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		if len(lane.queue) == 0 {
			delete(s.lanes, key)
			s.mu.Unlock()
			return
		}
		task := lane.queue[0]
		lane.queue = lane.queue[1:]
		s.mu.Unlock()

		s.run(key, task)
	}
}

func (s *Scheduler) run(key string, task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("lane task panicked",
				slog.String("key", key),
				slog.Any("panic", r),
			)
		}
	}()
	start := time.Now()
	if err := task(context.Background()); err != nil {
		s.logger.Warn("lane task failed",
			slog.String("key", key),
			slog.Duration("elapsed", time.Since(start)),
			slog.Any("error", err),
		)
	}
}

// Len reports the number of active lanes.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lanes)
}

// Shutdown rejects new submissions and waits for every lane to drain, or
// for ctx to expire.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
