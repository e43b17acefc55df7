package domain

import "time"

// Domain contains core models shared by the CLI layers.

// JobRecord is a job scheduled through this tool.
type JobRecord struct {
	JobID       string    `json:"jobid"`
	Target      string    `json:"target"`
	Project     string    `json:"project"`
	Spider      string    `json:"spider"`
	Version     string    `json:"version,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
}
