package domain

// FilterAll disables priority filtering. Any other filter value is matched
// verbatim against canonical (lowercase) task priorities, so an unknown
// value simply matches nothing.
const FilterAll = "all"

// Date filter kinds.
const (
	DateFilterToday  = "today"
	DateFilterWeek   = "week"
	DateFilterMonth  = "month"
	DateFilterCustom = "custom"
)

// DateFilter narrows visible tasks to a calendar window. Tasks without a
// due date never match an active date filter.
type DateFilter struct {
	Type string `json:"type"`
	// Date is the literal day for DateFilterCustom, in DayLayout format.
	Date string `json:"date,omitempty"`
}
