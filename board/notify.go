package board

import (
	"sort"
	"time"

	"taskboard-api/domain"
)

// soonWindowDays is how far ahead a due date still produces a reminder.
const soonWindowDays = 2

// BuildNotifications derives the due-date reminder feed from every task on
// the board. Tasks without a due date and tasks already in the done column
// never appear; neither do tasks due more than soonWindowDays out. The
// feed is ordered overdue, then due today, then due soon, closest first.
func BuildNotifications(state *domain.BoardState, today time.Time) []domain.Notification {
	feed := []domain.Notification{}
	for _, columnID := range domain.ColumnOrder {
		if columnID == domain.ColumnDone {
			continue
		}
		col, ok := state.Columns[columnID]
		if !ok {
			continue
		}
		for _, task := range col.Tasks {
			due, ok := parseDay(task.DueDate)
			if !ok {
				continue
			}
			diff := daysBetween(due, today)
			if diff > soonWindowDays {
				continue
			}
			feed = append(feed, domain.Notification{
				ID:       task.ID,
				ColumnID: columnID,
				Title:    task.Title,
				DueDate:  task.DueDate,
				Status:   classify(diff),
				Diff:     diff,
			})
		}
	}
	sort.SliceStable(feed, func(i, j int) bool {
		if feed[i].Status.Rank() != feed[j].Status.Rank() {
			return feed[i].Status.Rank() < feed[j].Status.Rank()
		}
		return feed[i].Diff < feed[j].Diff
	})
	return feed
}

func classify(diff int) domain.NotificationStatus {
	switch {
	case diff < 0:
		return domain.StatusOverdue
	case diff == 0:
		return domain.StatusToday
	default:
		return domain.StatusSoon
	}
}
