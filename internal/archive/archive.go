// Package archive keeps a JSON copy of each completed research result in a
// local directory or an S3 bucket.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"research-task-scheduler/internal/models"
)

// Uploader stores one object and returns where it went.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Archive writes results as results/<jobID>.json.
type Archive struct {
	uploader Uploader
}

func New(u Uploader) *Archive {
	return &Archive{uploader: u}
}

// Key is the object key used for a job's result.
func Key(jobID string) string {
	return path.Join("results", sanitizeKey(jobID)+".json")
}

func (a *Archive) Archive(ctx context.Context, jobID string, result models.ResearchResult) error {
	body, err := json.MarshalIndent(struct {
		JobID string `json:"job_id"`
		models.ResearchResult
	}{JobID: jobID, ResearchResult: result}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if _, err := a.uploader.Upload(ctx, Key(jobID), body, "application/json"); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	return nil
}

func sanitizeKey(key string) string {
	key = strings.ReplaceAll(key, "\\", "/")
	key = path.Clean("/" + key)
	key = strings.TrimPrefix(key, "/")
	return strings.ReplaceAll(key, "/", "_")
}

// LocalUploader writes objects below BaseDir.
type LocalUploader struct {
	BaseDir string
}

func (l *LocalUploader) Upload(_ context.Context, key string, body []byte, _ string) (string, error) {
	dest := filepath.Join(l.BaseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(dest, body, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return dest, nil
}

// S3Config selects the bucket and, for S3-compatible stores, a custom endpoint.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// S3Uploader puts objects into one bucket.
type S3Uploader struct {
	client *s3.Client
	bucket string
}

func NewS3(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return &S3Uploader{client: client, bucket: cfg.Bucket}, nil
}

func (s *S3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
