// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package imagestore

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/wildsight/antler/pkg/config"
	antlererrors "github.com/wildsight/antler/pkg/errors"
)

// MinioSource reads from an S3-compatible bucket. The row's path column is
// the object key, laid out location/filename like the filesystem tree.
type MinioSource struct {
	client *minio.Client
	bucket string
}

// NewMinioSource connects and verifies the bucket. Ingest owns bucket
// creation; a missing bucket here means the wrong config, not an empty
// camera.
func NewMinioSource(settings *config.S3Settings) (*MinioSource, error) {
	if settings == nil || settings.Endpoint == "" || settings.Bucket == "" {
		return nil, errors.Wrap(antlererrors.ErrFatal, "s3 storage needs an endpoint and a bucket")
	}

	client, err := minio.New(settings.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(settings.AccessKey, settings.SecretKey, ""),
		Secure: settings.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create s3 client for %s", settings.Endpoint)
	}

	exists, err := client.BucketExists(context.Background(), settings.Bucket)
	if err != nil {
		return nil, errors.Wrapf(err, "check bucket %q", settings.Bucket)
	}
	if !exists {
		return nil, errors.Wrapf(antlererrors.ErrFatal, "bucket %q does not exist", settings.Bucket)
	}

	return &MinioSource{client: client, bucket: settings.Bucket}, nil
}

func (m *MinioSource) Fetch(ctx context.Context, path string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "get object %s", path)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, errors.Wrapf(antlererrors.ErrCorruptInput, "image bytes missing at %s", path)
		}
		return nil, errors.Wrapf(err, "read object %s", path)
	}
	return data, nil
}

func (m *MinioSource) Exists(ctx context.Context, path string) (bool, error) {
	_, err := m.client.StatObject(ctx, m.bucket, path, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, errors.Wrapf(err, "stat object %s", path)
	}
	return true, nil
}
