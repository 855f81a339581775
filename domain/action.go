package domain

import "github.com/bytedance/sonic"

// Action types understood by the board reducer.
const (
	ActionAddTask          = "add-task"
	ActionMoveTask         = "move-task"
	ActionDeleteTask       = "delete-task"
	ActionUpdateTask       = "update-task"
	ActionAddComment       = "add-comment"
	ActionDeleteComment    = "delete-comment"
	ActionAddAttachment    = "add-attachment"
	ActionDeleteAttachment = "delete-attachment"
	ActionSetFilter        = "set-filter"
	ActionSetDateFilter    = "set-date-filter"
)

// Action represents a single state transition request for the board.
type Action struct {
	// IdempotencyKey deduplicates client retries; assigned server side
	// when the client omits it.
	IdempotencyKey string                 `json:"idempotencyKey,omitempty"`
	Type           string                 `json:"type"`
	Data           sonic.NoCopyRawMessage `json:"data,omitempty"`
	// Timestamp is assigned at the API boundary, strictly increasing per
	// process, and becomes the creation time of entities the action makes.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// TaskDraft is the client-supplied part of a new task. Everything else
// (id, createdAt, canonical priority, empty child sequences) is assigned
// by the reducer.
type TaskDraft struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Category    string `json:"category,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
}

// TaskPatch is a shallow merge onto an existing task: nil fields are left
// untouched. Pointer-to-empty clears the corresponding optional field.
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
	Category    *string    `json:"category,omitempty"`
	DueDate     *string    `json:"dueDate,omitempty"`
	Subtasks    *[]Subtask `json:"subtasks,omitempty"`
}

type CommentDraft struct {
	Author string `json:"author,omitempty"`
	Text   string `json:"text"`
}

type AttachmentDraft struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size,omitempty"`
	Mime string `json:"mime,omitempty"`
}

// Action payloads.
type (
	AddTaskPayload struct {
		ColumnID string    `json:"columnId"`
		Task     TaskDraft `json:"task"`
	}

	MoveTaskPayload struct {
		SourceColumnID string `json:"sourceColumnId"`
		DestColumnID   string `json:"destColumnId"`
		SourceIndex    int    `json:"sourceIndex"`
		DestIndex      int    `json:"destIndex"`
	}

	DeleteTaskPayload struct {
		ColumnID string `json:"columnId"`
		TaskID   string `json:"taskId"`
	}

	UpdateTaskPayload struct {
		ColumnID string    `json:"columnId"`
		TaskID   string    `json:"taskId"`
		Updates  TaskPatch `json:"updates"`
	}

	AddCommentPayload struct {
		ColumnID string       `json:"columnId"`
		TaskID   string       `json:"taskId"`
		Comment  CommentDraft `json:"comment"`
	}

	DeleteCommentPayload struct {
		ColumnID  string `json:"columnId"`
		TaskID    string `json:"taskId"`
		CommentID string `json:"commentId"`
	}

	AddAttachmentPayload struct {
		ColumnID   string          `json:"columnId"`
		TaskID     string          `json:"taskId"`
		Attachment AttachmentDraft `json:"attachment"`
	}

	DeleteAttachmentPayload struct {
		ColumnID     string `json:"columnId"`
		TaskID       string `json:"taskId"`
		AttachmentID string `json:"attachmentId"`
	}

	SetFilterPayload struct {
		Filter string `json:"filter"`
	}

	SetDateFilterPayload struct {
		DateFilter *DateFilter `json:"dateFilter"`
	}
)
