package models

import (
	"testing"
	"time"
)

func TestCanTransition_AllowsExpectedPaths(t *testing.T) {
	cases := []struct {
		from JobStatus
		to   JobStatus
	}{
		{JobStatusPending, JobStatusRunning},
		{JobStatusPending, JobStatusFailed},
		{JobStatusRunning, JobStatusComplete},
		{JobStatusRunning, JobStatusFailed},
	}

	for _, tc := range cases {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be allowed", tc.from, tc.to)
		}
	}
}

func TestCanTransition_RejectsInvalidPaths(t *testing.T) {
	cases := []struct {
		from JobStatus
		to   JobStatus
	}{
		{JobStatusPending, JobStatusComplete},
		{JobStatusComplete, JobStatusRunning},
		{JobStatusFailed, JobStatusRunning},
		{JobStatusRunning, JobStatusPending},
		{"not_a_state", JobStatusRunning},
	}

	for _, tc := range cases {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be rejected", tc.from, tc.to)
		}
	}
}

func TestTransitionJob_StampsTimes(t *testing.T) {
	job := BatchJob{ID: "job-1", Status: JobStatusPending}
	now := time.Date(2025, 6, 19, 17, 23, 54, 0, time.UTC)

	if err := TransitionJob(&job, JobStatusRunning, now); err != nil {
		t.Fatalf("start job: %v", err)
	}
	if job.StartedAt == nil || !job.StartedAt.Equal(now) {
		t.Fatalf("expected started_at to be stamped")
	}
	if err := TransitionJob(&job, JobStatusComplete, now.Add(time.Minute)); err != nil {
		t.Fatalf("complete job: %v", err)
	}
	if job.FinishedAt == nil {
		t.Fatalf("expected finished_at to be stamped")
	}
	if err := TransitionJob(&job, JobStatusFailed, now); err == nil {
		t.Fatalf("expected illegal transition error")
	}
}
