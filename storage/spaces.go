package storage

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"
)

type SpacesConfig struct {
	AccessKey     string
	SecretKey     string
	Region        string
	Endpoint      string
	Bucket        string
	PublicBaseURL string
	PathStyle     bool
}

// SpacesStore keeps objects in an S3-compatible bucket (DigitalOcean
// Spaces, MinIO, S3).
type SpacesStore struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

var _ Store = (*SpacesStore)(nil)

func NewSpacesStore(ctx context.Context, cfg SpacesConfig) (*SpacesStore, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load SDK config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("%s/%s", cfg.Endpoint, cfg.Bucket)
	}

	return &SpacesStore{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: baseURL,
	}, nil
}

func (s *SpacesStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", errors.Wrapf(err, "failed to save %s to Spaces", key)
	}
	return joinURL(s.baseURL, key), nil
}

func (s *SpacesStore) PutJSON(ctx context.Context, key string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal data")
	}
	return s.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json")
}

func (s *SpacesStore) GetJSON(ctx context.Context, key string, v any) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if stderrors.As(err, &missing) {
			return errors.Wrap(ErrNotFound, key)
		}
		return errors.Wrapf(err, "failed to get %s from Spaces", key)
	}
	defer result.Body.Close()

	if err := json.NewDecoder(result.Body).Decode(v); err != nil {
		return errors.Wrap(err, "failed to decode data")
	}
	return nil
}
