package shared

// ActionStatus tracks progress of quick actions and delegated tasks.
type ActionStatus string

const (
	ActionNew        ActionStatus = "new"
	ActionSeen       ActionStatus = "seen"
	ActionInProgress ActionStatus = "in_progress"
	ActionDone       ActionStatus = "done"
)

// Valid reports whether s is a known status.
func (s ActionStatus) Valid() bool {
	switch s {
	case ActionNew, ActionSeen, ActionInProgress, ActionDone:
		return true
	}
	return false
}

// Label renders the status for display.
func (s ActionStatus) Label() string {
	switch s {
	case ActionNew:
		return "New"
	case ActionSeen:
		return "Seen"
	case ActionInProgress:
		return "In Progress"
	case ActionDone:
		return "Done"
	}
	return string(s)
}

// Priority ranks work items and quick actions.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Label renders the priority for display.
func (p Priority) Label() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityMedium:
		return "Medium"
	case PriorityHigh:
		return "High"
	case PriorityCritical:
		return "Critical"
	}
	return string(p)
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}
