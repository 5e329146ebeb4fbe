// Package progress persists the single-slot snapshot describing the in-flight batch.
//
// Writers go through Store, which serializes writes and hands complete documents to
// a Backend. Readers never lock and always get a complete snapshot: either the last
// one written or the default "complete" one.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
)

const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// ErrNoSnapshot is returned by a Backend when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no progress snapshot")

type Counter struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Extra carries the optional detail fields. Zero values are omitted from the document.
type Extra struct {
	WorkflowID     string
	CurrentPrompt  string
	PromptProgress *Counter
	CurrentModel   string
	ModelProgress  *Counter
	Endpoint       string
	LatestImage    string
}

type Snapshot struct {
	Status         string   `json:"status"`
	TotalTasks     int      `json:"total_tasks"`
	Completed      int      `json:"completed"`
	SuccessRate    float64  `json:"success_rate"`
	WorkflowID     string   `json:"workflow_id,omitempty"`
	CurrentPrompt  string   `json:"current_prompt,omitempty"`
	PromptProgress *Counter `json:"prompt_progress,omitempty"`
	CurrentModel   string   `json:"current_model,omitempty"`
	ModelProgress  *Counter `json:"model_progress,omitempty"`
	Endpoint       string   `json:"endpoint,omitempty"`
	LatestImage    string   `json:"latest_image,omitempty"`
}

// Default is what readers see when no job has reported yet.
func Default() Snapshot {
	return Snapshot{
		Status:      StatusComplete,
		TotalTasks:  1,
		Completed:   1,
		SuccessRate: 100.0,
	}
}

// Build normalizes the counters and computes the success rate.
func Build(total, completed int, status string, extra Extra) Snapshot {
	if total <= 0 {
		total = 1
		completed = 1
		status = StatusComplete
	}
	if completed < 0 {
		completed = 0
	}
	if completed > total {
		completed = total
	}

	return Snapshot{
		Status:         status,
		TotalTasks:     total,
		Completed:      completed,
		SuccessRate:    successRate(completed, total),
		WorkflowID:     extra.WorkflowID,
		CurrentPrompt:  extra.CurrentPrompt,
		PromptProgress: extra.PromptProgress,
		CurrentModel:   extra.CurrentModel,
		ModelProgress:  extra.ModelProgress,
		Endpoint:       extra.Endpoint,
		LatestImage:    extra.LatestImage,
	}
}

// successRate is the completed percentage to one decimal, ties to even.
func successRate(completed, total int) float64 {
	return math.RoundToEven(float64(completed)/float64(total)*100*10) / 10
}

type Backend interface {
	Save(ctx context.Context, data []byte) error
	Load(ctx context.Context) ([]byte, error)
	Remove(ctx context.Context) error
}

type Store struct {
	mu      sync.Mutex
	backend Backend
}

func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

func (s *Store) Write(ctx context.Context, total, completed int, status string, extra Extra) error {
	snap := Build(total, completed, status, extra)
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Save(ctx, append(data, '\n')); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// Read never fails; anything unreadable degrades to Default.
func (s *Store) Read(ctx context.Context) Snapshot {
	data, err := s.backend.Load(ctx)
	if err != nil || len(data) == 0 {
		return Default()
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil || snap.TotalTasks <= 0 {
		return Default()
	}
	return snap
}

func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Remove(ctx); err != nil {
		return fmt.Errorf("reset progress: %w", err)
	}
	return nil
}
