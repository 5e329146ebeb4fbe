package workflow

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"strings"
	"sync"
	"testing"
	"time"

	"logo-forge/internal/apperr"
	"logo-forge/internal/catalog"
	"logo-forge/internal/models"
	"logo-forge/internal/processor"
	"logo-forge/internal/progress"
	"logo-forge/internal/provider"
	"logo-forge/internal/storage/local"

	"github.com/disintegration/imaging"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := imaging.New(32, 32, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	for y := 10; y < 22; y++ {
		for x := 10; x < 22; x++ {
			img.Set(x, y, color.NRGBA{R: 10, G: 90, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type fakeGenerator struct {
	name   string
	data   []byte
	failOn string
	gate   chan struct{}

	mu    sync.Mutex
	calls []provider.Request
}

func (f *fakeGenerator) Name() string { return f.name }

func (f *fakeGenerator) Generate(ctx context.Context, req provider.Request) ([]provider.Image, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.failOn != "" && strings.Contains(req.Prompt, f.failOn) {
		return nil, &provider.StatusError{Provider: f.name, Code: 500, Body: "boom"}
	}
	images := make([]provider.Image, 0, req.Count)
	for i := 0; i < max(req.Count, 1); i++ {
		images = append(images, provider.Image{Data: f.data, Format: "png"})
	}
	return images, nil
}

type harness struct {
	t        *testing.T
	store    *local.Store
	progress *progress.Store
	engine   *Engine
}

func newHarness(t *testing.T, generators ...provider.Generator) *harness {
	t.Helper()
	store, err := local.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	prog := progress.NewStore(progress.NewMemoryBackend())
	engine := New(Options{
		Progress:   prog,
		Store:      store,
		Generators: provider.NewRegistry(generators...),
		Processor:  processor.NewService(store, processor.NewChromaKeyRemover(30), nil),
		MaxWorkers: 2,
		Now:        func() time.Time { return time.Date(2025, 6, 19, 17, 23, 54, 0, time.UTC) },
	})
	return &harness{t: t, store: store, progress: prog, engine: engine}
}

func (h *harness) wait(job *Job) models.BatchJob {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snapshot, err := job.Wait(ctx)
	if err != nil {
		h.t.Fatalf("wait: %v", err)
	}
	return snapshot
}

func request(modelRefs []ModelRef, prompts ...string) Request {
	req := Request{Models: modelRefs, Options: models.JobOptions{ImagesPerPrompt: 1}}
	for i, p := range prompts {
		req.Prompts = append(req.Prompts, PromptRef{ID: "p" + string(rune('1'+i)), Text: p})
	}
	return req
}

func TestEngine_PartialFailureStillCompletes(t *testing.T) {
	png := testPNG(t)
	h := newHarness(t,
		&fakeGenerator{name: provider.OpenAI, data: png},
		&fakeGenerator{name: provider.Fal, data: png, failOn: "fox"},
	)
	req := request([]ModelRef{
		{ID: "dalle3", Provider: provider.OpenAI, RemoteModel: "dall-e-3"},
		{ID: "flux-pro", Provider: provider.Fal, RemoteModel: "fal-ai/flux-pro"},
	}, "orb", "fox", "owl")

	job, err := h.engine.Start(context.Background(), req)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	final := h.wait(job)

	if final.Status != models.JobStatusComplete {
		t.Fatalf("expected complete, got %s", final.Status)
	}
	if final.TotalTasks != 6 || len(final.Results) != 6 {
		t.Fatalf("expected 6 tasks and results, got %d/%d", final.TotalTasks, len(final.Results))
	}
	if final.Succeeded != 5 || final.Failed != 1 {
		t.Fatalf("expected 5 succeeded 1 failed, got %d/%d", final.Succeeded, final.Failed)
	}

	snap := h.progress.Read(context.Background())
	if snap.Status != progress.StatusComplete || snap.Completed != 6 || snap.TotalTasks != 6 || snap.SuccessRate != 100 {
		t.Fatalf("unexpected final progress %+v", snap)
	}
	if snap.WorkflowID != job.ID() {
		t.Fatalf("expected workflow id %s in progress, got %s", job.ID(), snap.WorkflowID)
	}

	names, err := h.store.List(local.Raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 5 {
		t.Fatalf("expected 5 stored images, got %v", names)
	}
	if !h.store.Exists(local.Raw, "p1_dalle3_20250619_172354.png") || !h.store.Exists(local.Raw, "p3_flux_pro_20250619_172354.png") {
		t.Fatalf("unexpected stored names %v", names)
	}
}

func TestExpandTasks_ModelsOuterLoop(t *testing.T) {
	tasks := ExpandTasks(
		[]ModelRef{{ID: "a", Provider: "openai"}, {ID: "b", Provider: "fal_ai"}},
		[]PromptRef{{ID: "x"}, {ID: "y"}, {ID: "z"}},
	)
	if len(tasks) != 6 {
		t.Fatalf("expected 6 tasks, got %d", len(tasks))
	}
	want := []string{"a/x", "a/y", "a/z", "b/x", "b/y", "b/z"}
	for i, task := range tasks {
		if got := task.ModelID + "/" + task.PromptID; got != want[i] || task.Index != i {
			t.Fatalf("task %d: got %s (index %d), want %s", i, got, task.Index, want[i])
		}
	}
}

func TestEngine_RejectsConcurrentStart(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, &fakeGenerator{name: provider.OpenAI, data: testPNG(t), gate: gate})
	req := request([]ModelRef{{ID: "dalle3", Provider: provider.OpenAI}}, "orb")

	first, err := h.engine.Start(context.Background(), req)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := h.engine.Start(context.Background(), req); !errors.Is(err, apperr.ErrJobInProgress) {
		t.Fatalf("expected ErrJobInProgress, got %v", err)
	}
	if running := h.progress.Read(context.Background()); running.Status != progress.StatusRunning {
		t.Fatalf("expected running progress while blocked, got %+v", running)
	}

	close(gate)
	h.wait(first)

	second, err := h.engine.Start(context.Background(), req)
	if err != nil {
		t.Fatalf("start after completion: %v", err)
	}
	h.wait(second)
}

func TestEngine_NoProviderFailsAtStart(t *testing.T) {
	h := newHarness(t)
	req := request([]ModelRef{{ID: "dalle3", Provider: provider.OpenAI}}, "orb")

	job, err := h.engine.Start(context.Background(), req)
	if job != nil {
		t.Fatal("expected no job handle")
	}
	var pe *apperr.ProcessingError
	if !errors.As(err, &pe) {
		t.Fatalf("expected processing error, got %v", err)
	}
	current, ok := h.engine.Current()
	if !ok || current.Status != models.JobStatusFailed || current.Error == "" {
		t.Fatalf("expected failed current job, got %+v", current)
	}
	if h.engine.Running() {
		t.Fatal("engine must not be running after setup failure")
	}
}

func TestEngine_PostProcessing(t *testing.T) {
	h := newHarness(t, &fakeGenerator{name: provider.OpenAI, data: testPNG(t)})
	req := request([]ModelRef{{ID: "dalle3", Provider: provider.OpenAI}}, "orb")
	req.Options = models.JobOptions{ImagesPerPrompt: 2, RemoveBackground: true, CreateICO: true}

	job, err := h.engine.Start(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	final := h.wait(job)
	if len(final.Results) != 1 || len(final.Results[0].Files) != 2 {
		t.Fatalf("expected one task with two files, got %+v", final.Results)
	}

	for _, name := range []string{"p1_dalle3_20250619_172354_1.png", "p1_dalle3_20250619_172354_2.png"} {
		if !h.store.Exists(local.Raw, name) {
			t.Fatalf("missing raw %s", name)
		}
		if !h.store.Exists(local.Processed, processor.NobgName(name)) {
			t.Fatalf("missing processed variant of %s", name)
		}
		if !h.store.Exists(local.Icons, processor.IconName(name)) {
			t.Fatalf("missing icon of %s", name)
		}
	}
}

func TestEngine_NameCollisionGetsSuffix(t *testing.T) {
	h := newHarness(t, &fakeGenerator{name: provider.OpenAI, data: testPNG(t)})
	req := request([]ModelRef{{ID: "dalle3", Provider: provider.OpenAI}}, "orb")

	for i := 0; i < 2; i++ {
		job, err := h.engine.Start(context.Background(), req)
		if err != nil {
			t.Fatal(err)
		}
		h.wait(job)
	}
	if !h.store.Exists(local.Raw, "p1_dalle3_20250619_172354.png") || !h.store.Exists(local.Raw, "p1_dalle3_20250619_172354_2.png") {
		names, _ := h.store.List(local.Raw)
		t.Fatalf("expected suffixed duplicate, got %v", names)
	}
}

type stubResolver struct{}

func (stubResolver) Model(id string) (catalog.Model, bool) {
	if id == "flux-dev" {
		return catalog.Model{ID: "flux-dev", Provider: "together_ai", RemoteModel: "black-forest-labs/FLUX.1-dev"}, true
	}
	return catalog.Model{}, false
}

func (stubResolver) LookupPrompt(id string) (catalog.Prompt, bool) {
	if id == "circuit_orb" {
		return catalog.Prompt{ID: "circuit_orb", Prompt: "a glowing circuit orb"}, true
	}
	return catalog.Prompt{}, false
}

func TestDecodeRequest_ListsEveryError(t *testing.T) {
	body := []byte(`{"models": [], "prompts": "nope", "settings": {"images_per_prompt": "lots"}}`)
	_, err := DecodeRequest(body, Defaults{}, nil)
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	want := []string{msgNoModels, msgNoPrompts, msgImagesNotNumber}
	if len(ve.Errors) != len(want) {
		t.Fatalf("expected %v, got %v", want, ve.Errors)
	}
	for i := range want {
		if ve.Errors[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ve.Errors)
		}
	}
}

func TestDecodeRequest_ImagesPerPromptRange(t *testing.T) {
	tests := []struct {
		value   string
		want    int
		wantErr string
	}{
		{`3`, 3, ""},
		{`"7"`, 7, ""},
		{`null`, 1, ""},
		{`0`, 0, msgImagesRange},
		{`11`, 0, msgImagesRange},
		{`2.5`, 0, msgImagesNotNumber},
		{`true`, 0, msgImagesNotNumber},
	}
	for _, tt := range tests {
		body := []byte(`{"models":["dalle3"],"prompts":["orb"],"settings":{"images_per_prompt":` + tt.value + `}}`)
		req, err := DecodeRequest(body, Defaults{}, nil)
		if tt.wantErr != "" {
			var ve *apperr.ValidationError
			if !errors.As(err, &ve) || len(ve.Errors) != 1 || ve.Errors[0] != tt.wantErr {
				t.Fatalf("%s: expected %q, got %v", tt.value, tt.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tt.value, err)
		}
		if req.Options.ImagesPerPrompt != tt.want {
			t.Fatalf("%s: expected %d, got %d", tt.value, tt.want, req.Options.ImagesPerPrompt)
		}
	}
}

func TestDecodeRequest_ResolvesReferences(t *testing.T) {
	body := []byte(`{
		"models": ["flux-dev", "openai:dall-e-3", "ideogram_v2"],
		"prompts": ["circuit_orb", "a red fox logo", {"title": "Neon Owl", "prompt": "neon owl"}],
		"createICO": false
	}`)
	req, err := DecodeRequest(body, Defaults{RemoveBackground: true, CreateICO: true}, stubResolver{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if req.Models[0].Provider != "together_ai" || req.Models[0].RemoteModel != "black-forest-labs/FLUX.1-dev" {
		t.Fatalf("catalog model not resolved: %+v", req.Models[0])
	}
	if req.Models[1].Provider != "openai" || req.Models[1].ID != "dall-e-3" {
		t.Fatalf("explicit provider not honoured: %+v", req.Models[1])
	}
	if req.Models[2].Provider != "replicate" {
		t.Fatalf("provider table not applied: %+v", req.Models[2])
	}

	if req.Prompts[0].ID != "circuit_orb" || req.Prompts[0].Text != "a glowing circuit orb" {
		t.Fatalf("catalog prompt not resolved: %+v", req.Prompts[0])
	}
	if req.Prompts[1].ID != "prompt_2" || req.Prompts[1].Text != "a red fox logo" {
		t.Fatalf("literal prompt mis-decoded: %+v", req.Prompts[1])
	}
	if req.Prompts[2].ID != "neon_owl" {
		t.Fatalf("title not used as id: %+v", req.Prompts[2])
	}

	if !req.Options.RemoveBackground || req.Options.CreateICO {
		t.Fatalf("unexpected options %+v", req.Options)
	}
}

func TestDecodeRequest_UnknownModel(t *testing.T) {
	_, err := DecodeRequest([]byte(`{"models":["mystery"],"prompts":["x"]}`), Defaults{}, nil)
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) || len(ve.Errors) != 1 || !strings.Contains(ve.Errors[0], "mystery") {
		t.Fatalf("expected unknown model error, got %v", err)
	}
}
