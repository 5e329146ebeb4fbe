package models

import (
	"fmt"
	"time"
)

var allowedTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusPending: {
		JobStatusRunning: true,
		JobStatusFailed:  true,
	},
	JobStatusRunning: {
		JobStatusComplete: true,
		JobStatusFailed:   true,
	},
	JobStatusComplete: {},
	JobStatusFailed:   {},
}

func IsTerminal(status JobStatus) bool {
	return status == JobStatusComplete || status == JobStatusFailed
}

func CanTransition(from, to JobStatus) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// TransitionJob moves the job to status and stamps the matching timestamp.
func TransitionJob(job *BatchJob, to JobStatus, at time.Time) error {
	from := job.Status
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid job status transition: %q -> %q (job_id=%s)", from, to, job.ID)
	}
	job.Status = to
	switch {
	case to == JobStatusRunning:
		job.StartedAt = &at
	case IsTerminal(to):
		job.FinishedAt = &at
	}
	return nil
}
