package domain

// NotificationStatus classifies how close a task is to its due date.
type NotificationStatus string

const (
	StatusOverdue NotificationStatus = "overdue"
	StatusToday   NotificationStatus = "today"
	StatusSoon    NotificationStatus = "soon"
)

// Rank orders statuses for the feed: overdue < today < soon.
func (s NotificationStatus) Rank() int {
	switch s {
	case StatusOverdue:
		return 0
	case StatusToday:
		return 1
	default:
		return 2
	}
}

// Notification is a derived due-date reminder. It is never persisted: the
// feed is recomputed on every read, only the acknowledged id set survives.
// The id equals the source task id so acknowledgments stay stable across
// recomputation.
type Notification struct {
	ID       string             `json:"id"`
	ColumnID string             `json:"column"`
	Title    string             `json:"title"`
	DueDate  string             `json:"dueDate"`
	Status   NotificationStatus `json:"status"`
	// Diff is the whole-day distance from today to the due date; negative
	// when overdue.
	Diff int  `json:"diff"`
	Read bool `json:"read"`
}
