package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"logo-forge/internal/processor"
	"logo-forge/internal/queue/rabbitmq"
	redisclient "logo-forge/pkg/database/redis"
)

// ResultTTL is how long a post-processing outcome stays readable.
const ResultTTL = 24 * time.Hour

// ResultStore keeps post-processing outcomes by request id. *redis.Client satisfies it.
type ResultStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

var ErrResultNotFound = errors.New("post-processing result not found")

func ResultKey(requestID string) string {
	return "postprocess:" + requestID
}

// Result is what a finished request leaves behind in the result store.
type Result struct {
	RequestID string `json:"request_id"`
	processor.BatchResult
	FinishedAt time.Time `json:"finished_at"`
}

type Processor struct {
	service *processor.Service
	results ResultStore
	now     func() time.Time
}

// NewProcessor builds the queue handler. results may be nil, in which case outcomes are only logged.
func NewProcessor(service *processor.Service, results ResultStore) *Processor {
	return &Processor{
		service: service,
		results: results,
		now:     time.Now,
	}
}

func (p *Processor) Handle(ctx context.Context, msg rabbitmq.PostProcessMessage) (Result, error) {
	log.Printf("Starting post-processing %s for %d files", msg.RequestID, len(msg.Filenames))

	if !msg.RemoveBackground && !msg.CreateICO {
		log.Printf("Warning: request %s asks for no processing stage", msg.RequestID)
	}

	batch := p.service.ProcessBatch(ctx, msg.Filenames, processor.Options{
		RemoveBackground: msg.RemoveBackground,
		CreateICO:        msg.CreateICO,
	})
	result := Result{RequestID: msg.RequestID, BatchResult: batch, FinishedAt: p.now()}

	if err := p.store(ctx, result); err != nil {
		log.Printf("Warning: failed to store result of %s: %v", msg.RequestID, err)
	}

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("post-processing %s interrupted: %w", msg.RequestID, err)
	}
	log.Printf("Finished post-processing %s: %d background-removed, %d icons, %d failures",
		msg.RequestID, len(batch.Processed), len(batch.Icons), len(batch.Failures))
	return result, nil
}

func (p *Processor) store(ctx context.Context, result Result) error {
	if p.results == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return p.results.Set(ctx, ResultKey(result.RequestID), string(data), ResultTTL)
}

// LoadResult reads back the outcome of a request.
func LoadResult(ctx context.Context, results ResultStore, requestID string) (Result, error) {
	var result Result
	val, err := results.Get(ctx, ResultKey(requestID))
	if errors.Is(err, redisclient.ErrKeyNotFound) {
		return result, ErrResultNotFound
	}
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return result, fmt.Errorf("failed to decode result: %w", err)
	}
	return result, nil
}
