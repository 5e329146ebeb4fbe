package models

import "time"

type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusComplete JobStatus = "complete"
	JobStatusFailed   JobStatus = "failed"
)

type TaskStatus string

const (
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusFailed  TaskStatus = "failed"
)

// GenerationTask is one (model, prompt) unit of a batch.
type GenerationTask struct {
	Index       int    `json:"index"`
	ModelID     string `json:"model_id"`
	RemoteModel string `json:"remote_model,omitempty"`
	Provider    string `json:"provider"`
	PromptID    string `json:"prompt_id"`
	PromptText  string `json:"prompt_text"`
	ModelIndex  int    `json:"model_index"`
	PromptIndex int    `json:"prompt_index"`
}

type TaskResult struct {
	TaskIndex  int        `json:"task_index"`
	Model      string     `json:"model"`
	PromptID   string     `json:"prompt_id"`
	Provider   string     `json:"provider"`
	Status     TaskStatus `json:"status"`
	Files      []string   `json:"files,omitempty"`
	Error      string     `json:"error,omitempty"`
	FinishedAt time.Time  `json:"finished_at"`
}

type JobOptions struct {
	RemoveBackground bool `json:"remove_background"`
	CreateICO        bool `json:"create_ico"`
	ImagesPerPrompt  int  `json:"images_per_prompt"`
}

type BatchJob struct {
	ID          string           `json:"job_id"`
	Status      JobStatus        `json:"status"`
	Tasks       []GenerationTask `json:"tasks"`
	Results     []TaskResult     `json:"task_results"`
	Options     JobOptions       `json:"options"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`
	Succeeded   int              `json:"succeeded"`
	Failed      int              `json:"failed"`
	TotalTasks  int              `json:"total_tasks"`
	LatestImage string           `json:"latest_image,omitempty"`
}

// Clone returns a copy that shares no slices with j.
func (j BatchJob) Clone() BatchJob {
	out := j
	out.Tasks = append([]GenerationTask(nil), j.Tasks...)
	out.Results = make([]TaskResult, len(j.Results))
	for i, r := range j.Results {
		r.Files = append([]string(nil), r.Files...)
		out.Results[i] = r
	}
	return out
}
