package migration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/radiancehq/radiance/pkg/storage"
)

// BackupConfig configures the S3 destination for collection snapshots.
type BackupConfig struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	Prefix       string
}

// Archiver writes collection snapshots to S3 before (or after) a
// migration run, so a botched cutover always has a restore point.
type Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewArchiver creates an S3-backed archiver. Static credentials are
// used when provided (MinIO, explicit keys); otherwise the default AWS
// credential chain applies.
func NewArchiver(ctx context.Context, cfg BackupConfig) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("backup bucket is required")
	}

	var awsCfg aws.Config
	var err error
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKey, cfg.SecretKey, "")),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "backups"
	}
	return &Archiver{client: client, bucket: cfg.Bucket, prefix: prefix}, nil
}

// BackupCollection snapshots every document of a collection into a
// single timestamped JSON object and returns the object key.
func (a *Archiver) BackupCollection(ctx context.Context, adapter storage.Adapter, collection string) (string, error) {
	var all []storage.Document
	offset := 0
	for {
		docs, err := adapter.List(ctx, collection, storage.ListOptions{
			Limit:   DefaultBatchSize,
			Offset:  offset,
			OrderBy: storage.FieldID,
		})
		if err != nil {
			return "", fmt.Errorf("failed to list %s for backup: %w", collection, err)
		}
		if len(docs) == 0 {
			break
		}
		all = append(all, docs...)
		offset += len(docs)
		if len(docs) < DefaultBatchSize {
			break
		}
	}

	payload, err := json.Marshal(all)
	if err != nil {
		return "", fmt.Errorf("failed to marshal backup for %s: %w", collection, err)
	}

	key := fmt.Sprintf("%s/%s/%s.json", a.prefix, collection,
		time.Now().UTC().Format("20060102T150405Z"))

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload backup for %s: %w", collection, err)
	}
	return key, nil
}
