package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"logo-forge/internal/config"
	"logo-forge/internal/logging"
	"logo-forge/internal/processor"
	"logo-forge/internal/queue/rabbitmq"
	"logo-forge/internal/storage/local"
	minioclient "logo-forge/internal/storage/minio"
	"logo-forge/internal/worker"
	redisclient "logo-forge/pkg/database/redis"
)

const WorkerPoolSize = 5

func main() {
	log.Println("Starting Worker Service...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.RabbitMQURL == "" {
		log.Fatalf("RABBITMQ_URL is required for the worker")
	}

	_, logFile, err := logging.Setup(cfg.LogsDir)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logFile.Close()

	store, err := local.NewStore(cfg.OutputDir)
	if err != nil {
		log.Fatalf("Failed to open image store: %v", err)
	}

	if cfg.MinioEndpoint != "" {
		log.Println("Connecting to Minio...")
		minioClient, err := minioclient.NewClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("Failed to connect to Minio: %v", err)
		}
		store.SetMirror(minioClient)
	}

	log.Println("Connecting to RabbitMQ...")
	rabbitClient, err := rabbitmq.NewClient(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	var results worker.ResultStore
	if cfg.RedisURL != "" {
		log.Println("Connecting to Redis...")
		redisClient, err := redisclient.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		results = redisClient
	}

	log.Println("✓ Successfully connected to all services")

	service := processor.NewService(store,
		processor.NewChromaKeyRemover(cfg.BackgroundTolerance),
		processor.NewICOConverter(cfg.ICOSizes))
	proc := worker.NewProcessor(service, results)

	msgs, err := rabbitClient.Consume(WorkerPoolSize)
	if err != nil {
		log.Fatalf("Failed to start consuming: %v", err)
	}

	var wg sync.WaitGroup
	taskChan := make(chan rabbitmq.PostProcessMessage, WorkerPoolSize)

	for i := 0; i < WorkerPoolSize; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			log.Printf("Worker %d started", workerID)

			for task := range taskChan {
				log.Printf("Worker %d processing request %s", workerID, task.RequestID)

				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				_, err := proc.Handle(ctx, task)
				cancel()

				if err != nil {
					log.Printf("Worker %d: failed to process request %s: %v", workerID, task.RequestID, err)
				} else {
					log.Printf("Worker %d: successfully processed request %s", workerID, task.RequestID)
				}
			}

			log.Printf("Worker %d stopped", workerID)
		}(i + 1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Println("Worker Service is running. Press Ctrl+C to exit.")

	stop := make(chan struct{})
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for msg := range msgs {
			task, err := rabbitmq.DecodeMessage(msg.Body)
			if err != nil {
				log.Printf("Failed to decode message: %v", err)
				msg.Nack(false, false) // discard invalid message
				continue
			}

			log.Printf("Received post-processing request %s", task.RequestID)

			select {
			case taskChan <- task:
				msg.Ack(false)
			case <-stop:
				msg.Nack(false, true) // requeue, we are shutting down
				return
			}
		}
	}()

	select {
	case <-sigChan:
	case <-consumerDone:
		log.Println("Warning: delivery channel closed")
	}
	log.Println("Shutting down gracefully...")

	close(stop)
	rabbitClient.Close()
	<-consumerDone

	close(taskChan)
	wg.Wait()

	log.Println("Worker Service stopped")
}
