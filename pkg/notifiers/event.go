package notifiers

import "time"

const (
	ActionSchedule      = "schedule"
	ActionCancel        = "cancel"
	ActionDeleteVersion = "delversion"
	ActionDeleteProject = "delproject"
)

// JobEvent represents the payload sent downstream after a mutating Scrapyd call.
type JobEvent struct {
	Action     string    `json:"action"`
	Target     string    `json:"target"`
	Project    string    `json:"project"`
	Spider     string    `json:"spider,omitempty"`
	JobID      string    `json:"jobid,omitempty"`
	Version    string    `json:"version,omitempty"`
	Result     any       `json:"result,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewJobEvent constructs a JobEvent stamped with the current UTC time.
func NewJobEvent(action, target, project string) JobEvent {
	return JobEvent{
		Action:     action,
		Target:     target,
		Project:    project,
		OccurredAt: time.Now().UTC(),
	}
}

// attributes returns the routing attributes attached to queue/topic messages.
func (e JobEvent) attributes() map[string]string {
	attrs := map[string]string{
		"action":  e.Action,
		"project": e.Project,
	}
	if e.Target != "" {
		attrs["target"] = e.Target
	}
	return attrs
}
