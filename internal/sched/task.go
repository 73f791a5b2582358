// Package sched implements the worker pool shared by all plots in the
// process: a three-class task queue with dependency counting, a
// most-recently-requested-wins policy for tile work, and in-queue priority
// boosting of already-enqueued tasks.
package sched

import "sync/atomic"

// ScheduleClass selects which queue a task is served from.
//
//   - FIFO is regular work (highest priority), served in order.
//   - LIFO is tile work, served newest-first because more recent tile
//     requests are usually more relevant.
//   - LIFOLow is the same but lower priority, used for regular tiles when
//     priority tiles exist.
//
// LIFO/LIFOLow tasks can be expedited while enqueued: their enqueue time is
// bumped to now so they move to the head of their heap. To avoid starvation,
// a small scheduling slot serves LIFO/LIFOLow tasks in FIFO order instead.
type ScheduleClass int

const (
	FIFO ScheduleClass = iota
	LIFO
	LIFOLow
)

// Status tracks who is responsible for a task after completion.
//
// A TmgrOwned task is forgotten by everyone once it completes. An
// ExternalOwned task stays referenced by its creator so that it can be
// expedited while in the queue without racing completion. Done is terminal.
type Status int32

const (
	TmgrOwned Status = iota
	ExternalOwned
	Done
)

// Task is a unit of work that can run on any worker.
type Task struct {
	run func()

	schedClass  ScheduleClass
	enqueueTime int64 // µs; ordering key for the LIFO heaps

	// Intrusive links managed by Manager: circular doubly-linked queue
	// position and heap slot.
	next, prev *Task
	heapIdx    int

	// Number of unfinished prerequisites. Starts at 1 so a task cannot run
	// before it is officially enqueued; Manager's enqueue decrements it.
	prereqCnt atomic.Int32

	status atomic.Int32

	// Optional task for which this task is a prerequisite.
	dep *Task
}

// NewTask creates a task running fn. If dep is non-nil, the new task becomes
// one of dep's prerequisites; dep must not have been enqueued yet.
func (m *Manager) NewTask(fn func(), class ScheduleClass, dep *Task) *Task {
	t := &Task{
		run:         fn,
		schedClass:  class,
		enqueueTime: m.clock.Micros(),
		heapIdx:     -1,
		dep:         dep,
	}
	t.prereqCnt.Store(1)
	t.status.Store(int32(ExternalOwned))
	if dep != nil {
		dep.prereqCnt.Add(1)
	}
	return t
}

// Relinquish safely gives up external ownership of a task that may or may not
// have finished. After the call the caller must drop its reference.
func (t *Task) Relinquish() {
	if t.status.CompareAndSwap(int32(ExternalOwned), int32(TmgrOwned)) {
		return
	}
	if Status(t.status.Load()) != Done {
		panic("sched: relinquished task is neither external-owned nor done")
	}
}
