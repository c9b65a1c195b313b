package scheduler

import (
	"container/heap"
	"time"
)

// DeviceDeadline is the next time a device is due for a read cycle.
type DeviceDeadline struct {
	DeviceID string
	Deadline time.Time

	index int
}

// deadlineHeap implements heap.Interface as a min-heap ordered by Deadline.
type deadlineHeap []*DeviceDeadline

func (h deadlineHeap) Len() int { return len(h) }

func (h deadlineHeap) Less(i, j int) bool {
	return h[i].Deadline.Before(h[j].Deadline)
}

func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *deadlineHeap) Push(x any) {
	entry := x.(*DeviceDeadline)
	entry.index = len(*h)
	*h = append(*h, entry)
}

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*h = old[:n-1]
	return entry
}

// DeadlineQueue holds at most one deadline per device.
// Scheduling a device that is already queued moves its deadline.
type DeadlineQueue struct {
	heap deadlineHeap
	byID map[string]*DeviceDeadline
}

func NewDeadlineQueue() *DeadlineQueue {
	return &DeadlineQueue{byID: make(map[string]*DeviceDeadline)}
}

func (q *DeadlineQueue) Len() int { return len(q.heap) }

// Peek returns the entry with the earliest deadline, or nil when the queue is empty.
func (q *DeadlineQueue) Peek() *DeviceDeadline {
	if len(q.heap) == 0 {
		return nil
	}
	return q.heap[0]
}

// Schedule sets the deadline of a device, queueing it if needed.
func (q *DeadlineQueue) Schedule(deviceID string, deadline time.Time) {
	if entry, ok := q.byID[deviceID]; ok {
		entry.Deadline = deadline
		heap.Fix(&q.heap, entry.index)
		return
	}
	entry := &DeviceDeadline{DeviceID: deviceID, Deadline: deadline}
	q.byID[deviceID] = entry
	heap.Push(&q.heap, entry)
}

// PopExpired removes and returns all entries with deadline <= now, earliest first.
func (q *DeadlineQueue) PopExpired(now time.Time) []*DeviceDeadline {
	var expired []*DeviceDeadline
	for len(q.heap) > 0 && !q.heap[0].Deadline.After(now) {
		entry := heap.Pop(&q.heap).(*DeviceDeadline)
		delete(q.byID, entry.DeviceID)
		expired = append(expired, entry)
	}
	return expired
}

// Reset replaces the queue content with the given devices, all due at now.
func (q *DeadlineQueue) Reset(deviceIDs []string, now time.Time) {
	q.heap = make(deadlineHeap, 0, len(deviceIDs))
	q.byID = make(map[string]*DeviceDeadline, len(deviceIDs))
	for _, id := range deviceIDs {
		if _, dup := q.byID[id]; dup {
			continue
		}
		entry := &DeviceDeadline{DeviceID: id, Deadline: now, index: len(q.heap)}
		q.byID[id] = entry
		q.heap = append(q.heap, entry)
	}
	heap.Init(&q.heap)
}
