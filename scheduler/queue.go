package scheduler

import "modbot/model"

type entry struct {
	task  model.ScheduledTask
	state model.TaskState
	index int
}

// before orders by due time, then creation sequence.
func before(a, b model.ScheduledTask) bool {
	if !a.DueAt.Equal(b.DueAt) {
		return a.DueAt.Before(b.DueAt)
	}
	return a.Seq < b.Seq
}

// taskQueue implements heap.Interface.
type taskQueue []*entry

func (q taskQueue) Len() int           { return len(q) }
func (q taskQueue) Less(i, j int) bool { return before(q[i].task, q[j].task) }

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}
