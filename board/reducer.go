package board

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"taskboard-api/domain"
)

// ErrUnknownAction is returned for action types the reducer does not
// understand. Everything else — unknown columns, tasks, comments or
// attachments — is a silent no-op: the reducer never fails for "not found".
var ErrUnknownAction = errors.New("unknown action type")

const defaultCommentAuthor = "You"

// Effects reports side obligations an action created for the caller. The
// reducer itself only stores opaque attachment handles; releasing the
// underlying blobs is the boundary's job.
type Effects struct {
	RemovedAttachments []domain.Attachment
}

// Apply performs a single state transition. Each action either fully
// succeeds or leaves the state untouched; a malformed payload is the only
// error case besides ErrUnknownAction.
func Apply(state *domain.BoardState, action domain.Action) (Effects, error) {
	switch action.Type {
	case domain.ActionAddTask:
		var p domain.AddTaskPayload
		if err := decode(action, &p); err != nil {
			return Effects{}, err
		}
		addTask(state, p, actionTime(action))
	case domain.ActionMoveTask:
		var p domain.MoveTaskPayload
		if err := decode(action, &p); err != nil {
			return Effects{}, err
		}
		moveTask(state, p)
	case domain.ActionDeleteTask:
		var p domain.DeleteTaskPayload
		if err := decode(action, &p); err != nil {
			return Effects{}, err
		}
		return Effects{RemovedAttachments: deleteTask(state, p)}, nil
	case domain.ActionUpdateTask:
		var p domain.UpdateTaskPayload
		if err := decode(action, &p); err != nil {
			return Effects{}, err
		}
		updateTask(state, p)
	case domain.ActionAddComment:
		var p domain.AddCommentPayload
		if err := decode(action, &p); err != nil {
			return Effects{}, err
		}
		addComment(state, p, actionTime(action))
	case domain.ActionDeleteComment:
		var p domain.DeleteCommentPayload
		if err := decode(action, &p); err != nil {
			return Effects{}, err
		}
		deleteComment(state, p)
	case domain.ActionAddAttachment:
		var p domain.AddAttachmentPayload
		if err := decode(action, &p); err != nil {
			return Effects{}, err
		}
		addAttachment(state, p)
	case domain.ActionDeleteAttachment:
		var p domain.DeleteAttachmentPayload
		if err := decode(action, &p); err != nil {
			return Effects{}, err
		}
		return Effects{RemovedAttachments: deleteAttachment(state, p)}, nil
	case domain.ActionSetFilter:
		var p domain.SetFilterPayload
		if err := decode(action, &p); err != nil {
			return Effects{}, err
		}
		state.Filter = p.Filter
	case domain.ActionSetDateFilter:
		var p domain.SetDateFilterPayload
		if err := decode(action, &p); err != nil {
			return Effects{}, err
		}
		state.DateFilter = p.DateFilter
	default:
		return Effects{}, fmt.Errorf("%w: %q", ErrUnknownAction, action.Type)
	}
	return Effects{}, nil
}

func decode(action domain.Action, dst any) error {
	if len(action.Data) == 0 {
		return fmt.Errorf("action %s: empty payload", action.Type)
	}
	if err := sonic.Unmarshal(action.Data, dst); err != nil {
		return fmt.Errorf("action %s: %w", action.Type, err)
	}
	return nil
}

func actionTime(action domain.Action) time.Time {
	if action.Timestamp > 0 {
		return time.Unix(0, action.Timestamp).UTC()
	}
	return time.Now().UTC()
}

func addTask(state *domain.BoardState, p domain.AddTaskPayload, now time.Time) {
	col, ok := state.Columns[p.ColumnID]
	if !ok {
		return
	}
	task := domain.Task{
		ID:          uuid.NewString(),
		Title:       p.Task.Title,
		Description: p.Task.Description,
		Priority:    domain.CanonicalPriority(p.Task.Priority),
		Category:    p.Task.Category,
		CreatedAt:   now,
		DueDate:     p.Task.DueDate,
		Comments:    []domain.Comment{},
		Attachments: []domain.Attachment{},
		Subtasks:    []domain.Subtask{},
	}
	task.Normalize()
	col.Tasks = append(col.Tasks, task)
}

func moveTask(state *domain.BoardState, p domain.MoveTaskPayload) {
	src, ok := state.Columns[p.SourceColumnID]
	if !ok {
		return
	}
	dst, ok := state.Columns[p.DestColumnID]
	if !ok {
		return
	}
	if p.SourceIndex < 0 || p.SourceIndex >= len(src.Tasks) {
		return
	}
	if src == dst {
		src.Tasks = reorder(src.Tasks, p.SourceIndex, p.DestIndex)
		return
	}
	src.Tasks, dst.Tasks = transfer(src.Tasks, dst.Tasks, p.SourceIndex, p.DestIndex)
}

// deleteTask removes the task and, through it, all comments, attachments
// and subtasks it owns. Returned attachments still reference live blobs.
func deleteTask(state *domain.BoardState, p domain.DeleteTaskPayload) []domain.Attachment {
	col, ok := state.Columns[p.ColumnID]
	if !ok {
		return nil
	}
	for i := range col.Tasks {
		if col.Tasks[i].ID != p.TaskID {
			continue
		}
		removed := col.Tasks[i].Attachments
		col.Tasks = append(col.Tasks[:i], col.Tasks[i+1:]...)
		return removed
	}
	return nil
}

func updateTask(state *domain.BoardState, p domain.UpdateTaskPayload) {
	task, ok := state.FindTask(p.ColumnID, p.TaskID)
	if !ok {
		return
	}
	u := p.Updates
	if u.Title != nil {
		task.Title = *u.Title
	}
	if u.Description != nil {
		task.Description = *u.Description
	}
	if u.Priority != nil {
		task.Priority = domain.CanonicalPriority(*u.Priority)
	}
	if u.Category != nil {
		task.Category = *u.Category
		if strings.TrimSpace(task.Category) == "" {
			task.Category = domain.DefaultCategory
		}
	}
	if u.DueDate != nil {
		task.DueDate = *u.DueDate
	}
	if u.Subtasks != nil {
		subtasks := *u.Subtasks
		if subtasks == nil {
			subtasks = []domain.Subtask{}
		}
		task.Subtasks = subtasks
	}
}

func addComment(state *domain.BoardState, p domain.AddCommentPayload, now time.Time) {
	task, ok := state.FindTask(p.ColumnID, p.TaskID)
	if !ok {
		return
	}
	author := p.Comment.Author
	if author == "" {
		author = defaultCommentAuthor
	}
	task.Comments = append(task.Comments, domain.Comment{
		ID:        uuid.NewString(),
		Author:    author,
		Text:      p.Comment.Text,
		CreatedAt: now,
	})
}

func deleteComment(state *domain.BoardState, p domain.DeleteCommentPayload) {
	task, ok := state.FindTask(p.ColumnID, p.TaskID)
	if !ok {
		return
	}
	for i := range task.Comments {
		if task.Comments[i].ID == p.CommentID {
			task.Comments = append(task.Comments[:i], task.Comments[i+1:]...)
			return
		}
	}
}

func addAttachment(state *domain.BoardState, p domain.AddAttachmentPayload) {
	task, ok := state.FindTask(p.ColumnID, p.TaskID)
	if !ok {
		return
	}
	task.Attachments = append(task.Attachments, domain.Attachment{
		ID:   uuid.NewString(),
		Name: p.Attachment.Name,
		URL:  p.Attachment.URL,
		Size: p.Attachment.Size,
		Mime: p.Attachment.Mime,
	})
}

func deleteAttachment(state *domain.BoardState, p domain.DeleteAttachmentPayload) []domain.Attachment {
	task, ok := state.FindTask(p.ColumnID, p.TaskID)
	if !ok {
		return nil
	}
	for i := range task.Attachments {
		if task.Attachments[i].ID == p.AttachmentID {
			removed := task.Attachments[i]
			task.Attachments = append(task.Attachments[:i], task.Attachments[i+1:]...)
			return []domain.Attachment{removed}
		}
	}
	return nil
}
