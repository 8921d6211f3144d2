package loop

import "time"

// Purpose names what a deferred task is for. Together with an id it keys the task table.
type Purpose string

const (
	PurposeDelivered        Purpose = "delivered"
	PurposeFallbackRead     Purpose = "fallback_read"
	PurposeDwell            Purpose = "dwell"
	PurposeSettle           Purpose = "settle"
	PurposeReconnect        Purpose = "reconnect"
	PurposePresenceSnapshot Purpose = "presence_snapshot"
)

// Key identifies one scheduled task. Session-wide tasks use ID 0.
type Key struct {
	Purpose Purpose
	ID      int64
}

// Scheduler is a table of cancellable deferred tasks. Tasks run on the event loop.
// Scheduling an existing key replaces the earlier task.
type Scheduler interface {
	Schedule(key Key, delay time.Duration, fn func())
	Cancel(key Key) bool
	CancelPurpose(purposes ...Purpose) int
	CancelAll() int
	Pending(key Key) bool
	Len() int
}

type timerTask struct {
	timer *time.Timer
}

// TimerScheduler backs the task table with wall-clock timers. Methods must be
// called from the loop goroutine; timer expiry posts back onto the loop.
type TimerScheduler struct {
	exec  Executor
	tasks map[Key]*timerTask
}

func NewTimerScheduler(exec Executor) *TimerScheduler {
	return &TimerScheduler{
		exec:  exec,
		tasks: make(map[Key]*timerTask),
	}
}

func (s *TimerScheduler) Schedule(key Key, delay time.Duration, fn func()) {
	s.Cancel(key)
	t := &timerTask{}
	s.tasks[key] = t
	t.timer = time.AfterFunc(delay, func() {
		s.exec.Post(func() {
			// cancelled or replaced after the timer fired
			if s.tasks[key] != t {
				return
			}
			delete(s.tasks, key)
			fn()
		})
	})
}

func (s *TimerScheduler) Cancel(key Key) bool {
	t, ok := s.tasks[key]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(s.tasks, key)
	return true
}

func (s *TimerScheduler) CancelPurpose(purposes ...Purpose) int {
	n := 0
	for key := range s.tasks {
		for _, p := range purposes {
			if key.Purpose == p {
				s.Cancel(key)
				n++
				break
			}
		}
	}
	return n
}

func (s *TimerScheduler) CancelAll() int {
	n := len(s.tasks)
	for key := range s.tasks {
		s.Cancel(key)
	}
	return n
}

func (s *TimerScheduler) Pending(key Key) bool {
	_, ok := s.tasks[key]
	return ok
}

func (s *TimerScheduler) Len() int {
	return len(s.tasks)
}
