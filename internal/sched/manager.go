package sched

import (
	"io"
	"math/rand"
	"sync"

	"github.com/banshee-data/tileplot/internal/monitoring"
	"github.com/banshee-data/tileplot/internal/timeutil"
)

const debugSched = false

// MessageData is a named binary blob attached to an outgoing message.
type MessageData struct {
	Name string
	Data []byte
}

// Callback delivers one outgoing message to the host. dict holds "key=value"
// pairs ("#" in front of the key marks the value as numeric); data1/data2 are
// optional binary attachments. The host owns the buffers after the call.
type Callback func(dict []string, data1, data2 *MessageData) bool

// Manager is the process-wide worker pool.
type Manager struct {
	Nthreads int

	callback Callback
	clock    timeutil.Clock

	mu       sync.Mutex
	cv       *sync.Cond
	shutdown bool
	wg       sync.WaitGroup

	// All FIFO tasks form a circular doubly-linked list; head is the next
	// task to execute.
	fifoQueue *Task
	fifoSize  int

	// All LIFO/LIFOLow tasks form a second circular list in arrival order,
	// used by the anti-starvation slot.
	lowPrioQueue *Task

	// Max-heaps on enqueueTime, one per LIFO class.
	lifoHeap    []*Task
	lifoLowHeap []*Task
}

// New creates a Manager with nthreads workers (not yet started). start and
// logw configure the shared log sink; logw may be nil to leave logging alone.
func New(nthreads int, callback Callback, clock timeutil.Clock, start float64, logw io.Writer) *Manager {
	monitoring.Init(start, logw)
	m := &Manager{
		Nthreads: nthreads,
		callback: callback,
		clock:    clock,
	}
	m.cv = sync.NewCond(&m.mu)
	return m
}

// Start launches the worker goroutines. Hosts that want to own the worker
// threads can instead call RunWorker once per thread.
func (m *Manager) Start() {
	for i := 0; i < m.Nthreads; i++ {
		m.wg.Add(1)
		go func(idx int) {
			defer m.wg.Done()
			m.RunWorker(idx)
		}(i)
	}
}

// Shutdown stops the workers after their current task and waits for them.
// Tasks still in the queues are dropped.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()
	m.cv.Broadcast()
	m.wg.Wait()
}

// RunWorker is one worker's dequeue-run loop; it returns when the manager
// shuts down.
func (m *Manager) RunWorker(idx int) {
	rng := rand.New(rand.NewSource(int64(idx)))
	for {
		t := m.dequeueTask(rng)
		if t == nil {
			return
		}

		if debugSched {
			monitoring.Logf("worker #%d running task (waited %d us)",
				idx, m.clock.Micros()-t.enqueueTime)
		}
		t.run()

		status := Status(t.status.Swap(int32(Done)))
		if status != TmgrOwned && status != ExternalOwned {
			panic("sched: completed task was already done")
		}

		// A finished task unblocks its dependent.
		if dep := t.dep; dep != nil {
			if dep.prereqCnt.Add(-1) == 0 {
				m.doEnqueue(dep)
			}
		}
	}
}

// Enqueue hands a task to the manager, transferring ownership: the task is
// forgotten once it completes.
func (m *Manager) Enqueue(t *Task) {
	t.status.Store(int32(TmgrOwned))
	m.EnqueueRetained(t)
}

// EnqueueRetained enqueues a task whose creator keeps its reference, so the
// task can still be expedited while queued. The creator must eventually call
// Relinquish (or keep the task for its own bookkeeping).
//
// If the task has unfinished prerequisites it is not placed on any queue yet;
// the final completing prerequisite enqueues it.
func (m *Manager) EnqueueRetained(t *Task) {
	n := t.prereqCnt.Add(-1)
	if n < 0 {
		panic("sched: task enqueued twice")
	}
	if n == 0 {
		m.doEnqueue(t)
	}
}

func (m *Manager) doEnqueue(t *Task) {
	m.mu.Lock()
	if t.schedClass == FIFO {
		listPush(&m.fifoQueue, t)
		m.fifoSize++
	} else {
		listPush(&m.lowPrioQueue, t)
		if t.schedClass == LIFO {
			heapInsert(&m.lifoHeap, t)
		} else {
			heapInsert(&m.lifoLowHeap, t)
		}
	}
	m.mu.Unlock()
	m.cv.Signal()
}

// Expedite raises an enqueued LIFO/LIFOLow task to the head of its heap by
// bumping its enqueue time to now. A task that has already been dequeued or
// completed is left alone.
func (m *Manager) Expedite(t *Task) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.heapIdx == -1 {
		return
	}

	switch t.schedClass {
	case LIFO:
		heapUpdate(m.lifoHeap, t, m.clock.Micros())
	case LIFOLow:
		heapUpdate(m.lifoLowHeap, t, m.clock.Micros())
	default:
		panic("sched: expedite on a FIFO task")
	}
}

// dequeueTask blocks until a task is available; returns nil on shutdown.
func (m *Manager) dequeueTask(rng *rand.Rand) *Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		if m.shutdown {
			return nil
		}
		if m.fifoQueue != nil || m.lowPrioQueue != nil {
			break
		}
		m.cv.Wait()
	}

	// 0: FIFO queue (80%).
	// 1: LIFO heap, falling back to the low heap (17%).
	// 2: anti-starvation FIFO across both LIFO classes (3%).
	var weights [3]int
	if m.fifoQueue != nil {
		weights[0] = 80
	}
	if m.lowPrioQueue != nil {
		weights[1] = 17
		weights[2] = 3
	}
	sum := weights[0] + weights[1] + weights[2]
	r := rng.Intn(sum)

	switch {
	case r < weights[0]:
		m.fifoSize--
		return listPop(&m.fifoQueue)

	case r < weights[0]+weights[1]:
		var t *Task
		if len(m.lifoHeap) > 0 {
			t = m.lifoHeap[0]
			heapRemove(&m.lifoHeap, t)
		} else {
			t = m.lifoLowHeap[0]
			heapRemove(&m.lifoLowHeap, t)
		}
		listRemove(&m.lowPrioQueue, t)
		return t

	default:
		t := listPop(&m.lowPrioQueue)
		switch t.schedClass {
		case LIFO:
			heapRemove(&m.lifoHeap, t)
		case LIFOLow:
			heapRemove(&m.lifoLowHeap, t)
		default:
			panic("sched: FIFO task on the low-priority queue")
		}
		return t
	}
}

// SendMsg calls the host callback to deliver one message. Any worker may
// call it; the callback serializes on the host side.
func (m *Manager) SendMsg(dict []string, data1, data2 *MessageData) bool {
	if m.callback == nil {
		return false
	}
	return m.callback(dict, data1, data2)
}

// Clock returns the manager's time source.
func (m *Manager) Clock() timeutil.Clock { return m.clock }

//
// Circular doubly-linked queue helpers.
//

func listPush(queue **Task, t *Task) {
	if *queue == nil {
		*queue = t
		t.next = t
		t.prev = t
		return
	}
	head := *queue
	last := head.prev
	t.prev = last
	t.next = head
	last.next = t
	head.prev = t
}

func listPop(queue **Task) *Task {
	if *queue == nil {
		panic("sched: pop from empty queue")
	}
	t := *queue
	listRemove(queue, t)
	return t
}

func listRemove(queue **Task, t *Task) {
	prev, next := t.prev, t.next
	t.prev, t.next = nil, nil

	if t == next {
		*queue = nil
		return
	}
	prev.next = next
	next.prev = prev
	if t == *queue {
		*queue = next
	}
}

//
// Max-heap helpers, keyed by enqueueTime. heapIdx mirrors each task's slot so
// Expedite can sift in place.
//

func heapInsert(heap *[]*Task, t *Task) {
	et := t.enqueueTime
	idx := len(*heap)
	*heap = append(*heap, t)

	for idx > 0 {
		parentIdx := (idx - 1) / 2
		parent := (*heap)[parentIdx]
		if parent.enqueueTime >= et {
			break
		}
		parent.heapIdx = idx
		(*heap)[idx] = parent
		idx = parentIdx
	}
	t.heapIdx = idx
	(*heap)[idx] = t
}

func heapUpdate(heap []*Task, t *Task, newTime int64) {
	// newTime is the current time so it should exceed the stored value, but
	// a mock clock may not move; never sift down.
	if t.enqueueTime >= newTime {
		return
	}
	t.enqueueTime = newTime

	idx := t.heapIdx
	if heap[idx] != t {
		panic("sched: heap index out of sync")
	}
	for idx > 0 {
		parentIdx := (idx - 1) / 2
		parent := heap[parentIdx]
		if parent.enqueueTime >= newTime {
			break
		}
		parent.heapIdx = idx
		heap[idx] = parent
		idx = parentIdx
	}
	t.heapIdx = idx
	heap[idx] = t
}

func heapRemove(heap *[]*Task, t *Task) {
	h := *heap
	idx := t.heapIdx
	t.heapIdx = -1

	last := h[len(h)-1]
	*heap = h[:len(h)-1]
	h = *heap

	if last == t {
		return
	}
	if h[idx] != t {
		panic("sched: heap index out of sync")
	}
	h[idx] = last
	lastTime := last.enqueueTime

	// The replacement may need to move either way; try up, then down.
	for idx > 0 {
		parentIdx := (idx - 1) / 2
		parent := h[parentIdx]
		if parent.enqueueTime >= lastTime {
			break
		}
		parent.heapIdx = idx
		h[idx] = parent
		idx = parentIdx
	}
	for {
		childIdx := 2*idx + 1
		if childIdx >= len(h) {
			break
		}
		child := h[childIdx]
		childTime := child.enqueueTime
		if childIdx+1 < len(h) && h[childIdx+1].enqueueTime > childTime {
			childIdx++
			child = h[childIdx]
			childTime = child.enqueueTime
		}
		if childTime <= lastTime {
			break
		}
		child.heapIdx = idx
		h[idx] = child
		idx = childIdx
	}
	last.heapIdx = idx
	h[idx] = last
}
