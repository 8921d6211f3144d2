// Package looptest provides a deterministic executor and a manual clock
// scheduler for driving engine components from tests.
package looptest

import (
	"sort"
	"time"

	"chatsync/internal/loop"
)

// Executor runs posted callbacks inline. With Defer set, work passed to Go is
// queued until RunPending so tests control when off-loop results arrive.
type Executor struct {
	Defer   bool
	pending []func()
}

func (e *Executor) Post(fn func()) { fn() }

func (e *Executor) Go(fn func()) {
	if e.Defer {
		e.pending = append(e.pending, fn)
		return
	}
	fn()
}

// RunPending runs queued background work in submission order.
func (e *Executor) RunPending() int {
	n := 0
	for len(e.pending) > 0 {
		fn := e.pending[0]
		e.pending = e.pending[1:]
		fn()
		n++
	}
	return n
}

// Queued returns the number of background jobs waiting for RunPending.
func (e *Executor) Queued() int {
	return len(e.pending)
}

type task struct {
	at  time.Duration
	seq uint64
	fn  func()
}

// Scheduler is a loop.Scheduler on a manual clock advanced by the test.
type Scheduler struct {
	now   time.Duration
	seq   uint64
	tasks map[loop.Key]*task
}

func NewScheduler() *Scheduler {
	return &Scheduler{tasks: make(map[loop.Key]*task)}
}

func (s *Scheduler) Schedule(key loop.Key, delay time.Duration, fn func()) {
	s.seq++
	s.tasks[key] = &task{at: s.now + delay, seq: s.seq, fn: fn}
}

func (s *Scheduler) Cancel(key loop.Key) bool {
	_, ok := s.tasks[key]
	delete(s.tasks, key)
	return ok
}

func (s *Scheduler) CancelPurpose(purposes ...loop.Purpose) int {
	n := 0
	for key := range s.tasks {
		for _, p := range purposes {
			if key.Purpose == p {
				delete(s.tasks, key)
				n++
				break
			}
		}
	}
	return n
}

func (s *Scheduler) CancelAll() int {
	n := len(s.tasks)
	s.tasks = make(map[loop.Key]*task)
	return n
}

func (s *Scheduler) Pending(key loop.Key) bool {
	_, ok := s.tasks[key]
	return ok
}

func (s *Scheduler) Len() int {
	return len(s.tasks)
}

// Keys lists pending keys ordered by due time.
func (s *Scheduler) Keys() []loop.Key {
	keys := make([]loop.Key, 0, len(s.tasks))
	for k := range s.tasks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := s.tasks[keys[i]], s.tasks[keys[j]]
		if a.at != b.at {
			return a.at < b.at
		}
		return a.seq < b.seq
	})
	return keys
}

// Now is the elapsed manual time.
func (s *Scheduler) Now() time.Duration {
	return s.now
}

// Advance moves the clock forward, running every task that falls due in
// deadline order. Tasks scheduled while advancing run if they fall due too.
func (s *Scheduler) Advance(d time.Duration) {
	target := s.now + d
	for {
		key, t, ok := s.next(target)
		if !ok {
			break
		}
		delete(s.tasks, key)
		s.now = t.at
		t.fn()
	}
	s.now = target
}

func (s *Scheduler) next(limit time.Duration) (loop.Key, *task, bool) {
	var (
		bestKey loop.Key
		best    *task
	)
	for k, t := range s.tasks {
		if t.at > limit {
			continue
		}
		if best == nil || t.at < best.at || (t.at == best.at && t.seq < best.seq) {
			bestKey, best = k, t
		}
	}
	return bestKey, best, best != nil
}

var _ loop.Scheduler = (*Scheduler)(nil)
var _ loop.Executor = (*Executor)(nil)
