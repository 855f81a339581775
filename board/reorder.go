package board

import "taskboard-api/domain"

// reorder moves the task at from to position to within the same sequence.
// The destination index is clamped: negative becomes 0, past-the-end
// appends. Returns the same backing slice.
func reorder(tasks []domain.Task, from, to int) []domain.Task {
	if from < 0 || from >= len(tasks) {
		return tasks
	}
	moved := tasks[from]
	tasks = append(tasks[:from], tasks[from+1:]...)
	return insertTask(tasks, moved, to)
}

// transfer atomically removes the task at from in src and inserts it at to
// in dst. A task belongs to exactly one column at any instant; this is a
// move, never a copy.
func transfer(src, dst []domain.Task, from, to int) ([]domain.Task, []domain.Task) {
	if from < 0 || from >= len(src) {
		return src, dst
	}
	moved := src[from]
	src = append(src[:from], src[from+1:]...)
	return src, insertTask(dst, moved, to)
}

func insertTask(tasks []domain.Task, task domain.Task, at int) []domain.Task {
	if at < 0 {
		at = 0
	}
	if at >= len(tasks) {
		return append(tasks, task)
	}
	tasks = append(tasks, domain.Task{})
	copy(tasks[at+1:], tasks[at:])
	tasks[at] = task
	return tasks
}
