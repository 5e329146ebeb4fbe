package progress

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	redisclient "logo-forge/pkg/database/redis"
)

func newFileStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logs", "progress.json")
	return NewStore(NewFileBackend(path)), path
}

func TestWriteRead_SuccessRate(t *testing.T) {
	ctx := context.Background()
	store, _ := newFileStore(t)

	for total := 1; total <= 100; total++ {
		for completed := 0; completed <= total; completed++ {
			if err := store.Write(ctx, total, completed, StatusRunning, Extra{}); err != nil {
				t.Fatalf("write %d/%d: %v", completed, total, err)
			}
			snap := store.Read(ctx)
			want := math.RoundToEven(float64(completed)/float64(total)*100*10) / 10
			if snap.SuccessRate != want {
				t.Fatalf("rate for %d/%d: expected %v, got %v", completed, total, want, snap.SuccessRate)
			}
			if snap.Completed != completed || snap.TotalTasks != total {
				t.Fatalf("counters for %d/%d: got %+v", completed, total, snap)
			}
		}
	}
}

func TestBuild_SuccessRateTiesRoundToEven(t *testing.T) {
	tests := []struct {
		completed, total int
		want             float64
	}{
		{1, 16, 6.2},
		{3, 16, 18.8},
		{5, 16, 31.2},
		{7, 16, 43.8},
		{9, 16, 56.2},
		{3, 48, 6.2},
		{1, 80, 1.2},
		{1, 3, 33.3},
		{2, 3, 66.7},
	}
	for _, tt := range tests {
		if got := Build(tt.total, tt.completed, StatusRunning, Extra{}).SuccessRate; got != tt.want {
			t.Errorf("%d/%d: expected %v, got %v", tt.completed, tt.total, tt.want, got)
		}
	}
}

func TestWrite_ZeroTotalNormalizes(t *testing.T) {
	ctx := context.Background()
	store, _ := newFileStore(t)

	if err := store.Write(ctx, 0, 7, StatusRunning, Extra{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	snap := store.Read(ctx)
	if snap != Default() {
		t.Fatalf("expected normalized complete snapshot, got %+v", snap)
	}
}

func TestWrite_ClampsCompleted(t *testing.T) {
	snap := Build(4, 9, StatusRunning, Extra{})
	if snap.Completed != 4 || snap.SuccessRate != 100 {
		t.Fatalf("expected completed clamped to total, got %+v", snap)
	}
}

func TestReset_ReturnsDefault(t *testing.T) {
	ctx := context.Background()
	store, path := newFileStore(t)

	if err := store.Write(ctx, 10, 3, StatusRunning, Extra{CurrentModel: "dalle3"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected progress file removed, stat err=%v", err)
	}
	if err := store.Reset(ctx); err != nil {
		t.Fatalf("second reset should be a no-op: %v", err)
	}
	if snap := store.Read(ctx); snap != Default() {
		t.Fatalf("expected default after reset, got %+v", snap)
	}
}

func TestRead_CorruptFileReturnsDefault(t *testing.T) {
	ctx := context.Background()
	store, path := newFileStore(t)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`{"status": "runn`), 0o644); err != nil {
		t.Fatal(err)
	}
	if snap := store.Read(ctx); snap != Default() {
		t.Fatalf("expected default for corrupt file, got %+v", snap)
	}
}

func TestWrite_OptionalFieldsOmitted(t *testing.T) {
	ctx := context.Background()
	store, path := newFileStore(t)

	if err := store.Write(ctx, 6, 2, StatusRunning, Extra{
		CurrentPrompt:  "circuit_orb",
		PromptProgress: &Counter{Current: 2, Total: 3},
		Endpoint:       "openai",
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("parse progress file: %v", err)
	}
	for _, key := range []string{"current_model", "model_progress", "latest_image"} {
		if _, ok := doc[key]; ok {
			t.Fatalf("expected %s to be omitted, got %v", key, doc[key])
		}
	}
	if doc["current_prompt"] != "circuit_orb" || doc["endpoint"] != "openai" {
		t.Fatalf("unexpected document %v", doc)
	}
	pp, ok := doc["prompt_progress"].(map[string]any)
	if !ok || pp["current"] != float64(2) || pp["total"] != float64(3) {
		t.Fatalf("unexpected prompt_progress %v", doc["prompt_progress"])
	}
}

func TestFileBackend_ConcurrentWritersNeverTear(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "progress.json")
	writers := []*Store{NewStore(NewFileBackend(path)), NewStore(NewFileBackend(path))}

	var wg sync.WaitGroup
	for w, store := range writers {
		wg.Add(1)
		go func(w int, store *Store) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = store.Write(ctx, 100, i, StatusRunning, Extra{CurrentModel: "model", Endpoint: string(rune('a' + w))})
			}
		}(w, store)
	}

	reader := NewFileBackend(path)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-done:
			return
		default:
		}
		data, err := reader.Load(ctx)
		if err != nil {
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			t.Fatalf("reader observed torn write: %v (%q)", err, data)
		}
	}
}

type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
}

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", redisclient.ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeKV) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value.(string)
	return nil
}

func (f *fakeKV) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func TestRedisBackend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := &fakeKV{data: map[string]string{}}
	store := NewStore(NewRedisBackend(kv, "progress"))

	if snap := store.Read(ctx); snap != Default() {
		t.Fatalf("expected default before first write, got %+v", snap)
	}
	if err := store.Write(ctx, 3, 1, StatusRunning, Extra{WorkflowID: "wf-1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	snap := store.Read(ctx)
	if snap.SuccessRate != 33.3 || snap.WorkflowID != "wf-1" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, ok := kv.data["progress"]; ok {
		t.Fatalf("expected key removed on reset")
	}
}

func TestMemoryBackend_Default(t *testing.T) {
	store := NewStore(NewMemoryBackend())
	if snap := store.Read(context.Background()); snap != Default() {
		t.Fatalf("expected default, got %+v", snap)
	}
}
