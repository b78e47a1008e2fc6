package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/respiralab/coughdx/pkg/audio"
	"github.com/respiralab/coughdx/pkg/logging"
)

// S3Store exchanges recordings and reports through an S3 bucket. Each run is
// namespaced by a session ID: the recording is expected under
// {session_id}/input/ and the report lands at {session_id}/{name}.
type S3Store struct {
	client    *minio.Client
	bucket    string
	sessionID string
	logger    logging.Logger
}

// NewS3Store creates a store over the configured bucket. When no static
// credentials are configured the standard AWS environment variables are
// used, matching how deployments inject credentials.
func NewS3Store(config *Config, logger logging.Logger) (*S3Store, error) {
	if config.S3.Bucket == "" {
		return nil, audio.NewPipelineError(audio.StageStorage, audio.ErrCodeInvalidParameter,
			"s3 bucket must not be empty", nil)
	}
	if config.S3.SessionID == "" {
		return nil, audio.NewPipelineError(audio.StageStorage, audio.ErrCodeInvalidParameter,
			"s3 session id must not be empty", nil)
	}

	endpoint := config.S3.Endpoint
	if endpoint == "" {
		endpoint = "s3.amazonaws.com"
	}

	var creds *credentials.Credentials
	if config.S3.AccessKey != "" {
		creds = credentials.NewStaticV4(config.S3.AccessKey, config.S3.SecretKey, "")
	} else {
		creds = credentials.NewEnvAWS()
	}

	client, err := minio.New(endpoint, &minio.Options{
		Region: config.S3.Region,
		Secure: config.S3.UseSSL,
		Creds:  creds,
	})
	if err != nil {
		return nil, audio.NewPipelineError(audio.StageStorage, audio.ErrCodeStorage,
			fmt.Sprintf("failed to create s3 client for %s", endpoint), err)
	}

	return &S3Store{
		client:    client,
		bucket:    config.S3.Bucket,
		sessionID: config.S3.SessionID,
		logger:    logger,
	}, nil
}

// inputPrefix is where the session's recording is expected
func (s *S3Store) inputPrefix() string {
	return s.sessionID + "/input/"
}

// FetchInput lists the session's input prefix and streams the first object
func (s *S3Store) FetchInput(ctx context.Context) (string, io.ReadCloser, error) {
	prefix := s.inputPrefix()

	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var key string
	for object := range objects {
		if object.Err != nil {
			return "", nil, audio.NewPipelineError(audio.StageStorage, audio.ErrCodeStorage,
				fmt.Sprintf("failed to list s3 objects under %s", prefix), object.Err)
		}
		if strings.HasSuffix(object.Key, "/") {
			continue
		}
		key = object.Key
		break
	}

	if key == "" {
		return "", nil, audio.NewPipelineError(audio.StageStorage, audio.ErrCodeStorage,
			fmt.Sprintf("no input recording found under s3://%s/%s", s.bucket, prefix), nil)
	}

	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", nil, audio.NewPipelineError(audio.StageStorage, audio.ErrCodeStorage,
			fmt.Sprintf("failed to fetch s3://%s/%s", s.bucket, key), err)
	}

	s.logger.Debug("Fetched input recording from s3", logging.Fields{
		"bucket": s.bucket,
		"key":    key,
	})

	return path.Base(key), object, nil
}

// contentTypeForName maps a report extension to its MIME type
func contentTypeForName(name string) string {
	switch path.Ext(name) {
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/x-yaml"
	default:
		return "text/plain"
	}
}

// StoreReport uploads the report under the session prefix
func (s *S3Store) StoreReport(ctx context.Context, name string, data []byte) (string, error) {
	key := path.Join(s.sessionID, name)

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentTypeForName(name)})
	if err != nil {
		return "", audio.NewPipelineError(audio.StageStorage, audio.ErrCodeStorage,
			fmt.Sprintf("failed to upload report to s3://%s/%s", s.bucket, key), err)
	}

	destination := fmt.Sprintf("s3://%s/%s", s.bucket, key)

	s.logger.Debug("Uploaded report to s3", logging.Fields{
		"bucket": s.bucket,
		"key":    key,
		"bytes":  len(data),
	})

	return destination, nil
}
