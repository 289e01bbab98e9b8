package scheduler

import (
	"container/heap"
	"time"
)

// task is a queued request with its retry state.
type task struct {
	req       Request
	attempts  int
	notBefore time.Time
	seq       uint64
	lastError string
}

// queue is a min-heap ordered by priority, then notBefore, then insertion.
type queue []*task

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if pa, pb := a.req.Priority(), b.req.Priority(); pa != pb {
		return pa < pb
	}
	if !a.notBefore.Equal(b.notBefore) {
		return a.notBefore.Before(b.notBefore)
	}
	return a.seq < b.seq
}

func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *queue) Push(x any) { *q = append(*q, x.(*task)) }

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}

func (q *queue) push(t *task) { heap.Push(q, t) }

func (q *queue) pop() *task { return heap.Pop(q).(*task) }

func (q queue) peek() *task {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}
