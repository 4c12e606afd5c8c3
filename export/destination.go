// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/blinklabs-io/wilhelmina/database"
	"google.golang.org/api/option"
)

// Destination stores rendered export files
type Destination interface {
	Put(ctx context.Context, file File) error
	Close() error
}

// DestinationOptions carries credentials for the cloud destinations
type DestinationOptions struct {
	GcsCredentialsFile string
	S3Region           string
}

// OpenDestination selects a destination from a URI. gs://bucket/prefix and
// s3://bucket/prefix write objects; anything else is a local directory.
func OpenDestination(ctx context.Context, uri string, opts DestinationOptions) (Destination, error) {
	switch {
	case strings.HasPrefix(uri, "gs://"):
		bucket, prefix, err := splitBucket(strings.TrimPrefix(uri, "gs://"))
		if err != nil {
			return nil, fmt.Errorf("gcs export: %w", err)
		}
		clientOpts := []option.ClientOption{storage.WithDisabledClientMetrics()}
		if opts.GcsCredentialsFile != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(opts.GcsCredentialsFile))
		}
		client, err := storage.NewClient(ctx, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("gcs export: create storage client: %w", err)
		}
		return &gcsDestination{client: client, bucket: bucket, prefix: prefix}, nil
	case strings.HasPrefix(uri, "s3://"):
		bucket, prefix, err := splitBucket(strings.TrimPrefix(uri, "s3://"))
		if err != nil {
			return nil, fmt.Errorf("s3 export: %w", err)
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 export: load default AWS config: %w", err)
		}
		if opts.S3Region != "" {
			awsCfg.Region = opts.S3Region
		}
		return &s3Destination{
			client: s3.NewFromConfig(awsCfg),
			bucket: bucket,
			prefix: prefix,
		}, nil
	case uri == "":
		return nil, errors.New("export destination not set")
	default:
		return NewDirDestination(uri)
	}
}

// splitBucket splits "bucket/some/prefix" into the bucket and a prefix
// ending in a slash
func splitBucket(path string) (string, string, error) {
	parts := strings.SplitN(path, "/", 2)
	if parts[0] == "" {
		return "", "", errors.New("bucket not set")
	}
	prefix := ""
	if len(parts) > 1 {
		prefix = strings.Trim(parts[1], "/")
		if prefix != "" {
			prefix += "/"
		}
	}
	return parts[0], prefix, nil
}

type dirDestination struct {
	dir string
}

// NewDirDestination writes files into a local directory, creating it if
// needed
func NewDirDestination(dir string) (Destination, error) {
	if err := os.MkdirAll(dir, fs.ModePerm); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	return &dirDestination{dir: dir}, nil
}

func (d *dirDestination) Put(_ context.Context, file File) error {
	path := filepath.Join(d.dir, file.Name)
	if err := os.WriteFile(path, file.Data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (d *dirDestination) Close() error {
	return nil
}

type gcsDestination struct {
	client *storage.Client
	bucket string
	prefix string
}

func (d *gcsDestination) Put(ctx context.Context, file File) error {
	w := d.client.Bucket(d.bucket).Object(d.prefix + file.Name).NewWriter(ctx)
	w.ContentType = file.ContentType
	if _, err := w.Write(file.Data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs put %s: %w", file.Name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs put %s: %w", file.Name, err)
	}
	return nil
}

func (d *gcsDestination) Close() error {
	return d.client.Close()
}

type s3Destination struct {
	client *s3.Client
	bucket string
	prefix string
}

func (d *s3Destination) Put(ctx context.Context, file File) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(d.prefix + file.Name),
		Body:        bytes.NewReader(file.Data),
		ContentType: aws.String(file.ContentType),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", file.Name, err)
	}
	return nil
}

func (d *s3Destination) Close() error {
	return nil
}

// Write collects, renders and stores the export of one community
func Write(
	ctx context.Context,
	db *database.Database,
	communityID string,
	format Format,
	audit bool,
	dest Destination,
) ([]File, error) {
	records, err := Collect(ctx, db, communityID, audit)
	if err != nil {
		return nil, err
	}
	files, err := Render(records, format)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if err := dest.Put(ctx, f); err != nil {
			return nil, err
		}
	}
	return files, nil
}
