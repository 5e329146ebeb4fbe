// Package workflow runs generation batches: one model × prompt matrix at a time,
// followed by optional background removal and icon conversion.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"logo-forge/internal/apperr"
	"logo-forge/internal/history"
	"logo-forge/internal/models"
	"logo-forge/internal/naming"
	"logo-forge/internal/processor"
	"logo-forge/internal/progress"
	"logo-forge/internal/provider"
	"logo-forge/internal/storage/local"

	"github.com/google/uuid"
	"github.com/shouni/go-http-kit/httpkit"
	"golang.org/x/sync/errgroup"
)

// Generators resolves a provider name to its generator. *provider.Registry satisfies it.
type Generators interface {
	Generator(name string) (provider.Generator, bool)
}

type Options struct {
	Progress   *progress.Store
	Store      *local.Store
	Generators Generators
	// Processor is optional; without it post-processing stages are skipped.
	Processor  *processor.Service
	History    history.Recorder
	// HTTPClient downloads URL-only results; defaults to an httpkit client with
	// its SSRF guard and 5xx retries.
	HTTPClient httpkit.Downloader
	MaxWorkers int
	ImageSize  int
	Now        func() time.Time
}

type Engine struct {
	progress   *progress.Store
	store      *local.Store
	generators Generators
	processor  *processor.Service
	history    history.Recorder
	client     httpkit.Downloader
	maxWorkers int
	imageSize  int
	now        func() time.Time

	mu      sync.Mutex
	running bool
	job     *models.BatchJob

	// nameMu makes reserving a filename and writing it one step.
	nameMu sync.Mutex
	wg     sync.WaitGroup
}

func New(opts Options) *Engine {
	e := &Engine{
		progress:   opts.Progress,
		store:      opts.Store,
		generators: opts.Generators,
		processor:  opts.Processor,
		history:    opts.History,
		client:     opts.HTTPClient,
		maxWorkers: opts.MaxWorkers,
		imageSize:  opts.ImageSize,
		now:        opts.Now,
	}
	if e.history == nil {
		e.history = history.Nop{}
	}
	if e.client == nil {
		e.client = httpkit.New(60 * time.Second)
	}
	if e.maxWorkers < 1 {
		e.maxWorkers = 1
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Job is the handle of a started batch.
type Job struct {
	engine *Engine
	job    *models.BatchJob
	done   chan struct{}
}

func (j *Job) ID() string {
	return j.job.ID
}

// Done is closed once the batch has reached a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

func (j *Job) Snapshot() models.BatchJob {
	j.engine.mu.Lock()
	defer j.engine.mu.Unlock()
	return j.job.Clone()
}

// Wait blocks until the batch finishes or ctx ends.
func (j *Job) Wait(ctx context.Context) (models.BatchJob, error) {
	select {
	case <-j.done:
		return j.Snapshot(), nil
	case <-ctx.Done():
		return j.Snapshot(), ctx.Err()
	}
}

// Start admits a batch and runs it in the background. It fails fast when a batch is
// already running or when none of the requested providers can be used.
func (e *Engine) Start(ctx context.Context, req Request) (*Job, error) {
	if len(req.Models) == 0 || len(req.Prompts) == 0 {
		return nil, apperr.NewValidation(msgInvalidConfig, msgNoModels, msgNoPrompts)
	}
	if req.Options.ImagesPerPrompt < 1 {
		req.Options.ImagesPerPrompt = 1
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, apperr.ErrJobInProgress
	}

	now := e.now()
	tasks := ExpandTasks(req.Models, req.Prompts)
	job := &models.BatchJob{
		ID:         uuid.NewString(),
		Status:     models.JobStatusPending,
		Tasks:      tasks,
		Results:    []models.TaskResult{},
		Options:    req.Options,
		CreatedAt:  now,
		TotalTasks: len(tasks),
	}
	e.job = job

	if missing := e.unavailableProviders(req.Models); len(missing) == len(req.Models) {
		job.Error = "no generation provider available for: " + strings.Join(missing, ", ")
		if err := models.TransitionJob(job, models.JobStatusFailed, now); err != nil {
			log.Printf("Warning: %v", err)
		}
		snapshot := job.Clone()
		e.mu.Unlock()

		log.Printf("Workflow %s failed at setup: %s", job.ID, job.Error)
		e.saveJob(ctx, snapshot)
		return nil, apperr.Processing("start workflow", errors.New(job.Error))
	}

	if err := models.TransitionJob(job, models.JobStatusRunning, now); err != nil {
		e.mu.Unlock()
		return nil, apperr.Internal(err)
	}
	e.running = true
	snapshot := job.Clone()
	e.mu.Unlock()

	if err := e.progress.Reset(ctx); err != nil {
		log.Printf("Warning: failed to reset progress: %v", err)
	}
	e.writeProgress(ctx, job.TotalTasks, 0, progress.StatusRunning, progress.Extra{WorkflowID: job.ID})
	e.saveJob(ctx, snapshot)

	handle := &Job{engine: e, job: job, done: make(chan struct{})}
	e.wg.Add(1)
	go e.run(context.WithoutCancel(ctx), handle)

	log.Printf("Workflow %s started: %d tasks (%d models x %d prompts)", job.ID, job.TotalTasks, len(req.Models), len(req.Prompts))
	return handle, nil
}

func (e *Engine) unavailableProviders(refs []ModelRef) []string {
	var missing []string
	for _, m := range refs {
		if _, ok := e.generators.Generator(m.Provider); !ok {
			missing = append(missing, m.Provider+":"+m.ID)
		}
	}
	return missing
}

// Current returns the running batch, or the last one when idle.
func (e *Engine) Current() (models.BatchJob, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job == nil {
		return models.BatchJob{}, false
	}
	return e.job.Clone(), true
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Shutdown waits for the in-flight batch. Batches cannot be cancelled.
func (e *Engine) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("workflow still running: %w", ctx.Err())
	}
}

func (e *Engine) run(ctx context.Context, handle *Job) {
	defer e.wg.Done()
	defer close(handle.done)

	job := handle.job
	tasks := job.Tasks
	numModels, numPrompts := matrixSize(tasks)
	filesByTask := make([][]string, len(tasks))

	g := new(errgroup.Group)
	g.SetLimit(e.maxWorkers)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			result := e.runTask(ctx, job, task)
			filesByTask[task.Index] = result.Files
			e.recordResult(ctx, job, task, result, numModels, numPrompts)
			return nil
		})
	}
	_ = g.Wait()

	var generated []string
	for _, files := range filesByTask {
		generated = append(generated, files...)
	}
	e.postProcess(ctx, job, generated)

	e.writeProgress(ctx, job.TotalTasks, job.TotalTasks, progress.StatusComplete, progress.Extra{
		WorkflowID:  job.ID,
		LatestImage: handle.Snapshot().LatestImage,
	})

	e.mu.Lock()
	if err := models.TransitionJob(job, models.JobStatusComplete, e.now()); err != nil {
		log.Printf("Warning: %v", err)
	}
	e.running = false
	snapshot := job.Clone()
	e.mu.Unlock()

	e.saveJob(ctx, snapshot)
	log.Printf("Workflow %s complete: %d succeeded, %d failed", job.ID, snapshot.Succeeded, snapshot.Failed)
}

// runTask only reads the immutable parts of job.
func (e *Engine) runTask(ctx context.Context, job *models.BatchJob, task models.GenerationTask) (result models.TaskResult) {
	result = models.TaskResult{
		TaskIndex: task.Index,
		Model:     task.ModelID,
		PromptID:  task.PromptID,
		Provider:  task.Provider,
		Status:    models.TaskStatusFailed,
	}
	defer func() {
		if r := recover(); r != nil {
			result.Status = models.TaskStatusFailed
			result.Error = fmt.Sprintf("panic: %v", r)
			log.Printf("Warning: task %d of %s panicked: %v", task.Index, job.ID, r)
		}
		result.FinishedAt = e.now()
	}()

	gen, ok := e.generators.Generator(task.Provider)
	if !ok {
		result.Error = fmt.Sprintf("provider %s not available", task.Provider)
		log.Printf("Warning: skipping %s/%s: %s", task.ModelID, task.PromptID, result.Error)
		return result
	}

	remote := task.RemoteModel
	if remote == "" {
		remote = task.ModelID
	}
	log.Printf("Generating %s with %s:%s (task %d/%d)", task.PromptID, task.Provider, task.ModelID, task.Index+1, job.TotalTasks)
	images, err := gen.Generate(ctx, provider.Request{
		Model:  remote,
		Prompt: task.PromptText,
		Count:  job.Options.ImagesPerPrompt,
		Size:   e.imageSize,
	})
	if err != nil {
		result.Error = apperr.Processing(task.Provider+":"+task.ModelID, err).Error()
		log.Printf("Warning: generation failed for %s with %s: %v", task.PromptID, task.ModelID, err)
		return result
	}

	var lastErr error
	for k, img := range images {
		data, ext, err := provider.Fetch(ctx, e.client, img)
		if err != nil {
			lastErr = err
			log.Printf("Warning: could not fetch image %d for %s: %v", k+1, task.PromptID, err)
			continue
		}
		name, err := e.saveRaw(ctx, task, data, ext, k, len(images))
		if err != nil {
			lastErr = err
			log.Printf("Warning: could not store image for %s: %v", task.PromptID, err)
			continue
		}
		result.Files = append(result.Files, name)
		log.Printf("Saved raw/%s", name)
	}

	if len(result.Files) == 0 {
		if lastErr == nil {
			lastErr = errors.New("provider returned no images")
		}
		result.Error = lastErr.Error()
		return result
	}
	result.Status = models.TaskStatusSuccess
	return result
}

// saveRaw stores one generated image as {prompt}_{model}_{ts}[_{k}][_{n}].{ext}.
func (e *Engine) saveRaw(ctx context.Context, task models.GenerationTask, data []byte, ext string, k, count int) (string, error) {
	e.nameMu.Lock()
	defer e.nameMu.Unlock()

	ts := e.now()
	name := e.store.Reserve(local.Raw, func(attempt int) string {
		var suffix []string
		if count > 1 {
			suffix = append(suffix, strconv.Itoa(k+1))
		}
		if attempt > 0 {
			suffix = append(suffix, strconv.Itoa(attempt+1))
		}
		return naming.EncodeWithSuffix(task.PromptID, task.ModelID, ts, ext, strings.Join(suffix, "_"))
	})
	if err := e.store.Put(ctx, local.Raw, name, data); err != nil {
		return "", err
	}
	return name, nil
}

func (e *Engine) recordResult(ctx context.Context, job *models.BatchJob, task models.GenerationTask, result models.TaskResult, numModels, numPrompts int) {
	e.mu.Lock()
	job.Results = append(job.Results, result)
	extra := progress.Extra{
		WorkflowID:     job.ID,
		CurrentPrompt:  task.PromptID,
		PromptProgress: &progress.Counter{Current: task.PromptIndex + 1, Total: numPrompts},
		CurrentModel:   task.ModelID,
		ModelProgress:  &progress.Counter{Current: task.ModelIndex + 1, Total: numModels},
		Endpoint:       task.Provider,
	}
	if result.Status == models.TaskStatusSuccess {
		job.Succeeded++
		job.LatestImage = result.Files[len(result.Files)-1]
		extra.LatestImage = job.LatestImage
	} else {
		job.Failed++
	}
	// Written under the engine lock so snapshots land in completion order.
	e.writeProgress(ctx, job.TotalTasks, len(job.Results), progress.StatusRunning, extra)
	e.mu.Unlock()

	if err := e.history.RecordTask(ctx, job.ID, result); err != nil {
		log.Printf("Warning: failed to record task %d of %s: %v", result.TaskIndex, job.ID, err)
	}
}

func (e *Engine) postProcess(ctx context.Context, job *models.BatchJob, files []string) {
	opts := job.Options
	if !opts.RemoveBackground && !opts.CreateICO {
		return
	}
	if e.processor == nil {
		log.Printf("Warning: post-processing requested for %s but no processor is configured", job.ID)
		return
	}
	if len(files) == 0 {
		return
	}

	log.Printf("Post-processing %d images (remove background: %t, create ICO: %t)", len(files), opts.RemoveBackground, opts.CreateICO)
	result := e.processor.ProcessBatch(ctx, files, processor.Options{
		RemoveBackground: opts.RemoveBackground,
		CreateICO:        opts.CreateICO,
	})
	log.Printf("Post-processing done: %d background-removed, %d icons, %d failures",
		len(result.Processed), len(result.Icons), len(result.Failures))
}

func (e *Engine) writeProgress(ctx context.Context, total, completed int, status string, extra progress.Extra) {
	if err := e.progress.Write(ctx, total, completed, status, extra); err != nil {
		log.Printf("Warning: failed to write progress: %v", err)
	}
}

func (e *Engine) saveJob(ctx context.Context, job models.BatchJob) {
	if err := e.history.SaveJob(ctx, job); err != nil {
		log.Printf("Warning: failed to save workflow %s: %v", job.ID, err)
	}
}

func matrixSize(tasks []models.GenerationTask) (numModels, numPrompts int) {
	for _, t := range tasks {
		numModels = max(numModels, t.ModelIndex+1)
		numPrompts = max(numPrompts, t.PromptIndex+1)
	}
	return numModels, numPrompts
}
