package domain

// Column identifiers are fixed when a board is created; the set never
// changes at runtime.
const (
	ColumnTodo       = "todo"
	ColumnInProgress = "inProgress"
	// ColumnDone is terminal: tasks there never produce due-date reminders.
	ColumnDone = "done"
)

// ColumnOrder is the render order of the fixed columns.
var ColumnOrder = []string{ColumnTodo, ColumnInProgress, ColumnDone}

// Column is a named ordered bucket of tasks. A task belongs to exactly one
// column at any instant.
type Column struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Tasks []Task `json:"tasks"`
}

// BoardState is the root aggregate: the fixed columns plus the board-wide
// filter state. It round-trips through storage as a single JSON document.
type BoardState struct {
	Columns    map[string]*Column `json:"columns"`
	Filter     string             `json:"filter"`
	DateFilter *DateFilter        `json:"dateFilter,omitempty"`
}

// NewBoardState returns the default empty board.
func NewBoardState() *BoardState {
	return &BoardState{
		Columns: map[string]*Column{
			ColumnTodo:       {ID: ColumnTodo, Title: "To Do", Tasks: []Task{}},
			ColumnInProgress: {ID: ColumnInProgress, Title: "In Progress", Tasks: []Task{}},
			ColumnDone:       {ID: ColumnDone, Title: "Done", Tasks: []Task{}},
		},
		Filter: FilterAll,
	}
}

// Normalize repairs a state loaded from storage: missing columns are
// recreated empty, every task is normalized and an empty filter becomes
// FilterAll. Persisted documents written by older clients may miss any of
// these fields.
func (s *BoardState) Normalize() {
	if s.Columns == nil {
		s.Columns = map[string]*Column{}
	}
	defaults := NewBoardState()
	for _, id := range ColumnOrder {
		col, ok := s.Columns[id]
		if !ok || col == nil {
			s.Columns[id] = defaults.Columns[id]
			continue
		}
		col.ID = id
		if col.Title == "" {
			col.Title = defaults.Columns[id].Title
		}
		if col.Tasks == nil {
			col.Tasks = []Task{}
		}
		for i := range col.Tasks {
			col.Tasks[i].Normalize()
		}
	}
	if s.Filter == "" {
		s.Filter = FilterAll
	}
}

// Clone returns a deep copy of the state.
func (s *BoardState) Clone() *BoardState {
	out := &BoardState{Columns: make(map[string]*Column, len(s.Columns)), Filter: s.Filter}
	for id, col := range s.Columns {
		tasks := make([]Task, len(col.Tasks))
		for i, t := range col.Tasks {
			tasks[i] = t.Clone()
		}
		out.Columns[id] = &Column{ID: col.ID, Title: col.Title, Tasks: tasks}
	}
	if s.DateFilter != nil {
		df := *s.DateFilter
		out.DateFilter = &df
	}
	return out
}

// TaskCount is the total number of tasks across all columns.
func (s *BoardState) TaskCount() int {
	n := 0
	for _, col := range s.Columns {
		n += len(col.Tasks)
	}
	return n
}

// FindTask locates a task by id in the given column. The returned pointer
// aliases the state and is only valid until the next mutation.
func (s *BoardState) FindTask(columnID, taskID string) (*Task, bool) {
	col, ok := s.Columns[columnID]
	if !ok {
		return nil, false
	}
	for i := range col.Tasks {
		if col.Tasks[i].ID == taskID {
			return &col.Tasks[i], true
		}
	}
	return nil, false
}
