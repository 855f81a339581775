package board

import (
	"time"

	"taskboard-api/domain"
)

// VisibleTasks returns the tasks that pass the active priority and date
// filters, preserving the underlying column order. Filtering never
// reorders and never mutates the input.
func VisibleTasks(tasks []domain.Task, filter string, df *domain.DateFilter, now time.Time) []domain.Task {
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if filter != "" && filter != domain.FilterAll && string(t.Priority) != filter {
			continue
		}
		if !matchesDateFilter(t.DueDate, df, now) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func matchesDateFilter(dueDate string, df *domain.DateFilter, now time.Time) bool {
	if df == nil || df.Type == "" {
		return true
	}
	switch df.Type {
	case domain.DateFilterToday:
		return dueDate == now.Format(domain.DayLayout)
	case domain.DateFilterWeek:
		due, ok := parseDay(dueDate)
		if !ok {
			return false
		}
		return weekStart(due).Equal(weekStart(truncateToDay(now)))
	case domain.DateFilterMonth:
		due, ok := parseDay(dueDate)
		if !ok {
			return false
		}
		return due.Year() == now.Year() && due.Month() == now.Month()
	case domain.DateFilterCustom:
		// A custom filter with no day picked yet filters nothing.
		if df.Date == "" {
			return true
		}
		return dueDate == df.Date
	default:
		// Unrecognized filter kinds leave the list untouched, matching how
		// the date filter is consumed everywhere else.
		return true
	}
}

func parseDay(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(domain.DayLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// weekStart returns the Monday beginning the week containing t.
func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return truncateToDay(t).AddDate(0, 0, -offset)
}

// daysBetween is the whole-day distance from b to a: positive when a is
// after b.
func daysBetween(a, b time.Time) int {
	return int(truncateToDay(a).Sub(truncateToDay(b)) / (24 * time.Hour))
}
