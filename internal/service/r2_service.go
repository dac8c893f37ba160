package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	cfg "github.com/maheshrc27/postflow/configs"
)

// ResourceService stores media and hands out time-limited URLs for it.
// Platform adapters only ever see the signed URLs.
type ResourceService interface {
	Upload(ctx context.Context, key string, file []byte, contentType string) error
	GetSignedURL(ctx context.Context, location string) (string, error)
}

type r2Service struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
}

func NewR2Service(ctx context.Context, c cfg.Config) (ResourceService, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.R2.AccessKey, c.R2.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("loading r2 config: %w", err)
	}

	endpoint := c.R2.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.R2.AccountID)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = c.R2.UsePathStyle
	})

	return &r2Service{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  c.R2.BucketName,
		ttl:     c.SignedURLTTL,
	}, nil
}

func (r *r2Service) Upload(ctx context.Context, key string, file []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(file),
		ContentType: aws.String(contentType),
	}

	if _, err := r.client.PutObject(ctx, input); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *r2Service) GetSignedURL(ctx context.Context, location string) (string, error) {
	req, err := r.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(location),
	}, s3.WithPresignExpires(r.ttl))
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("presigning %s: %w", location, err)
	}
	return req.URL, nil
}
