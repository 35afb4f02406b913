/*
Copyright © 2024 the ChocoForestWatch authors.
This file is part of forestwatch-core.

forestwatch-core is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

forestwatch-core is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with forestwatch-core.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package objectstore opens blob-storage buckets by URL scheme ("file",
// "gs", "s3") and uploads/downloads the COGs and cache artifacts the
// pipeline produces. Keys (see Key) are built from the run id, unit and
// file name, so concurrent units of one run write to distinct keys; keys
// are not derived from the object's content, and a re-upload for the same
// run, unit and file name overwrites the earlier object.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/gcp"

	"github.com/chocoforestwatch/forestwatch-core/ferrors"
)

// Open returns the blob storage bucket specified by bucketURL, which must
// be in the form "scheme://name" where scheme is one of "file" (the local
// filesystem, used for testing and single-machine runs), "gs" (Google
// Cloud Storage), or "s3" (AWS S3). For "file" the host and path together
// name the local directory; for "gs" and "s3" any path component after the
// bucket name is ignored. Callers address individual objects with keys
// passed to Put/Get.
func Open(ctx context.Context, bucketURL string) (*blob.Bucket, error) {
	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, ferrors.New(ferrors.ConfigError, "", fmt.Errorf("objectstore: parsing bucket url %q: %w", bucketURL, err))
	}
	switch u.Scheme {
	case "file":
		b, err := fileblob.OpenBucket(u.Hostname()+u.Path, nil)
		if err != nil {
			return nil, ferrors.New(ferrors.TransportError, "", err)
		}
		return b, nil
	case "gs":
		return gsBucket(ctx, u.Hostname())
	case "s3":
		return s3Bucket(ctx, u.Hostname())
	default:
		return nil, ferrors.New(ferrors.ConfigError, "", fmt.Errorf("objectstore: invalid provider %q", u.Scheme))
	}
}

func gsBucket(ctx context.Context, name string) (*blob.Bucket, error) {
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, ferrors.New(ferrors.ConfigError, "", err)
	}
	c, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, ferrors.New(ferrors.TransportError, "", err)
	}
	b, err := gcsblob.OpenBucket(ctx, c, name, nil)
	if err != nil {
		return nil, ferrors.New(ferrors.TransportError, "", err)
	}
	return b, nil
}

// s3Bucket opens an S3 bucket, assuming the environment variables
// AWS_REGION, AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are set.
func s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-2"
	}
	cfg := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewEnvCredentials(),
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, ferrors.New(ferrors.ConfigError, "", err)
	}
	b, err := s3blob.OpenBucket(ctx, sess, name, nil)
	if err != nil {
		return nil, ferrors.New(ferrors.TransportError, "", err)
	}
	return b, nil
}

// Put writes data to key in bucket.
func Put(ctx context.Context, bucket *blob.Bucket, key string, data []byte) error {
	w, err := bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return ferrors.New(ferrors.TransportError, key, fmt.Errorf("objectstore: opening writer: %w", err))
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		w.Close()
		return ferrors.New(ferrors.TransportError, key, fmt.Errorf("objectstore: writing: %w", err))
	}
	if err := w.Close(); err != nil {
		return ferrors.New(ferrors.TransportError, key, fmt.Errorf("objectstore: closing writer: %w", err))
	}
	return nil
}

// Get reads the full contents of key from bucket.
func Get(ctx context.Context, bucket *blob.Bucket, key string) ([]byte, error) {
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, ferrors.New(ferrors.TransportError, key, fmt.Errorf("objectstore: opening reader: %w", err))
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, ferrors.New(ferrors.TransportError, key, fmt.Errorf("objectstore: reading: %w", err))
	}
	return buf.Bytes(), nil
}

// PutFile uploads the file at localPath to key in bucket.
func PutFile(ctx context.Context, bucket *blob.Bucket, key, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return ferrors.New(ferrors.InputDataError, key, fmt.Errorf("objectstore: reading local file %s: %w", localPath, err))
	}
	return Put(ctx, bucket, key, data)
}

// Key builds the deterministic object-store key for a raster asset, so
// repeated uploads of byte-identical content (same run, config, and
// random state) write to the same key.
func Key(runID, unit, filename string) string {
	return fmt.Sprintf("runs/%s/%s/%s", runID, unit, filename)
}
