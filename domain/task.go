package domain

import (
	"strings"
	"time"
)

// Priority is the urgency of a task. Stored lowercase, always.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// DefaultCategory is assigned when a task draft carries no category.
const DefaultCategory = "General"

// DayLayout is the calendar-day format used for due dates and date filters.
const DayLayout = "2006-01-02"

// CanonicalPriority maps arbitrary input onto a valid Priority. Absent and
// unrecognized values both canonicalize to PriorityMedium.
func CanonicalPriority(raw string) Priority {
	switch p := Priority(strings.ToLower(strings.TrimSpace(raw))); p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p
	default:
		return PriorityMedium
	}
}

// Task represents a single board item.
type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Priority    Priority     `json:"priority"`
	Category    string       `json:"category"`
	CreatedAt   time.Time    `json:"createdAt"`
	// DueDate is a calendar day in DayLayout format; empty means no due date.
	DueDate     string       `json:"dueDate,omitempty"`
	Comments    []Comment    `json:"comments"`
	Attachments []Attachment `json:"attachments"`
	Subtasks    []Subtask    `json:"subtasks"`
}

// Comment is immutable once created, except for deletion with its task.
type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Attachment references an externally stored binary through an opaque URL
// handle. The owner of the handle is whoever uploaded the blob; deleting an
// attachment obliges the caller, not the board, to release the blob.
type Attachment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
	Mime string `json:"mime,omitempty"`
}

type Subtask struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
}

// Normalize enforces the canonical task shape: lowercase priority, defaulted
// category and non-nil child sequences. States loaded from storage pass
// through here so the rest of the code never needs nil checks.
func (t *Task) Normalize() {
	t.Priority = CanonicalPriority(string(t.Priority))
	if strings.TrimSpace(t.Category) == "" {
		t.Category = DefaultCategory
	}
	if t.Comments == nil {
		t.Comments = []Comment{}
	}
	if t.Attachments == nil {
		t.Attachments = []Attachment{}
	}
	if t.Subtasks == nil {
		t.Subtasks = []Subtask{}
	}
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	out := t
	out.Comments = append([]Comment(nil), t.Comments...)
	out.Attachments = append([]Attachment(nil), t.Attachments...)
	out.Subtasks = append([]Subtask(nil), t.Subtasks...)
	return out
}
