package robot

import "strings"

// Status is the robot's operational state as reported by its agent.
type Status string

const (
	StatusAvailable             Status = "AVAILABLE"
	StatusBusy                  Status = "BUSY"
	StatusOffline               Status = "OFFLINE"
	StatusBlocked               Status = "BLOCKED"
	StatusBlockedProtectiveStop Status = "BLOCKED_PROTECTIVE_STOP"
	StatusDocked                Status = "DOCKED"
	StatusRecharging            Status = "RECHARGING"
	StatusConnectionIssues      Status = "CONNECTION_ISSUES"
	StatusHome                  Status = "HOME"
	StatusReturningHome         Status = "RETURNING_HOME"
)

func (s Status) String() string { return string(s) }

// ParseStatus accepts the persisted form and ISAR's lower snake case.
// Unknown values map to "".
func ParseStatus(s string) Status {
	switch v := Status(strings.ToUpper(strings.TrimSpace(s))); v {
	case StatusAvailable, StatusBusy, StatusOffline, StatusBlocked, StatusBlockedProtectiveStop,
		StatusDocked, StatusRecharging, StatusConnectionIssues, StatusHome, StatusReturningHome:
		return v
	default:
		return ""
	}
}
