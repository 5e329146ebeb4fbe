package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"logo-forge/internal/storage/local"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BucketNames maps local collections onto object-storage buckets.
var BucketNames = map[local.Bucket]string{
	local.Raw:       "raw-images",
	local.Processed: "processed-images",
	local.Icons:     "icon-images",
}

type Client struct {
	client *minio.Client
}

// NewClient creates a new Minio client and ensures buckets exist
func NewClient(endpoint, accessKey, secretKey string, useSSL bool) (*Client, error) {
	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	client := &Client{client: minioClient}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Create buckets if they don't exist
	for _, bucketName := range BucketNames {
		if err := client.ensureBucketExists(ctx, bucketName); err != nil {
			return nil, fmt.Errorf("failed to ensure bucket %s exists: %w", bucketName, err)
		}
	}

	log.Printf("Minio client initialized successfully at %s", endpoint)
	return client, nil
}

// ensureBucketExists creates a bucket if it doesn't exist
func (c *Client) ensureBucketExists(ctx context.Context, bucketName string) error {
	exists, err := c.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check if bucket exists: %w", err)
	}

	if !exists {
		err = c.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		log.Printf("Created bucket: %s", bucketName)
	}

	return nil
}

// UploadFile uploads a file to the specified bucket
func (c *Client) UploadFile(ctx context.Context, bucketName, objectName string, reader io.Reader, size int64, contentType string) (minio.UploadInfo, error) {
	uploadInfo, err := c.client.PutObject(ctx, bucketName, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return minio.UploadInfo{}, fmt.Errorf("failed to upload file: %w", err)
	}

	return uploadInfo, nil
}

// PutObject mirrors a locally stored image into its bucket.
func (c *Client) PutObject(ctx context.Context, bucket local.Bucket, name string, data []byte) error {
	bucketName, ok := BucketNames[bucket]
	if !ok {
		return fmt.Errorf("no bucket mapped for %s", bucket)
	}
	contentType := http.DetectContentType(data)
	if bucket == local.Icons {
		contentType = "image/x-icon"
	}
	if _, err := c.UploadFile(ctx, bucketName, name, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return err
	}
	log.Printf("Mirrored %s to bucket %s", name, bucketName)
	return nil
}

// RemoveObject drops a mirrored image once it has left its local bucket.
func (c *Client) RemoveObject(ctx context.Context, bucket local.Bucket, name string) error {
	bucketName, ok := BucketNames[bucket]
	if !ok {
		return fmt.Errorf("no bucket mapped for %s", bucket)
	}
	if err := c.client.RemoveObject(ctx, bucketName, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove %s from %s: %w", name, bucketName, err)
	}
	log.Printf("Removed %s from bucket %s", name, bucketName)
	return nil
}

// GetFileLink generates a presigned URL for file download
func (c *Client) GetFileLink(ctx context.Context, bucket local.Bucket, objectName string, expires time.Duration) (string, error) {
	bucketName, ok := BucketNames[bucket]
	if !ok {
		return "", fmt.Errorf("no bucket mapped for %s", bucket)
	}
	presignedURL, err := c.client.PresignedGetObject(ctx, bucketName, objectName, expires, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return presignedURL.String(), nil
}
