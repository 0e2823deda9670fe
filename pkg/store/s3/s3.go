// Package s3 stores graph builds in an S3 bucket using the same layout as
// the filesystem store, with every path below a configurable prefix. The
// commit is the single PutObject that replaces "<fingerprint>/current".
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/OFFIS-RIT/decaygraph/internal/util"
	"github.com/OFFIS-RIT/decaygraph/pkg/common"
	"github.com/OFFIS-RIT/decaygraph/pkg/logger"
	"github.com/OFFIS-RIT/decaygraph/pkg/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	maxTries = 3
	// DeleteObjects accepts at most 1000 keys per request.
	deleteBatch = 1000
)

// S3API is the subset of the S3 client used by the store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

type S3GraphStore struct {
	bucket string
	prefix string
	client S3API
}

func NewS3GraphStore(bucket, prefix string, client S3API) (*S3GraphStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("%w: cache bucket not set", common.ErrConfiguration)
	}
	return &S3GraphStore{
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		client: client,
	}, nil
}

func (s *S3GraphStore) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk)
}

func (s *S3GraphStore) getObject(ctx context.Context, key string) ([]byte, error) {
	return util.RetryWithContext(ctx, maxTries, isNotFound, func(ctx context.Context) ([]byte, error) {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, err
		}
		defer out.Body.Close()
		return io.ReadAll(out.Body)
	})
}

func (s *S3GraphStore) putObject(ctx context.Context, key string, data []byte, contentType string) error {
	return util.RetryErrWithContext(ctx, maxTries, nil, func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		})
		return err
	})
}

// deletePrefix removes every object below prefix.
func (s *S3GraphStore) deletePrefix(ctx context.Context, prefix string) error {
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}

	var keys []string
	for {
		listOutput, err := s.client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return fmt.Errorf("failed to list objects in folder %s: %w", prefix, err)
		}
		for _, obj := range listOutput.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if listOutput.IsTruncated != nil && *listOutput.IsTruncated {
			listInput.ContinuationToken = listOutput.NextContinuationToken
		} else {
			break
		}
	}

	return store.ChunkRange(len(keys), deleteBatch, func(start, end int) error {
		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
		}
		return util.RetryErrWithContext(ctx, maxTries, nil, func(ctx context.Context) error {
			_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(s.bucket),
				Delete: &types.Delete{
					Objects: objects,
					Quiet:   aws.Bool(true),
				},
			})
			if err != nil {
				return fmt.Errorf("failed to delete objects in folder %s: %w", prefix, err)
			}
			return nil
		})
	})
}

func (s *S3GraphStore) Current(ctx context.Context, fingerprint string) (*store.Manifest, error) {
	id, err := s.getObject(ctx, s.key(store.CurrentName(fingerprint)))
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read current build of %s: %w", fingerprint, err)
	}

	buildID := strings.TrimSpace(string(id))
	data, err := s.getObject(ctx, s.key(store.ManifestName(fingerprint, buildID)))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest of build %s: %w", buildID, err)
	}
	return store.DecodeManifest(data)
}

func (s *S3GraphStore) Begin(ctx context.Context, fingerprint string) (store.BuildWriter, error) {
	id, err := store.NewBuildID()
	if err != nil {
		return nil, err
	}
	return &buildWriter{
		store:       s,
		fingerprint: fingerprint,
		id:          id,
		tracker:     store.NewTracker(),
	}, nil
}

func (s *S3GraphStore) Get(ctx context.Context, m *store.Manifest, index int) ([]byte, error) {
	if index < 0 || index >= m.Count {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", common.ErrIndexOutOfRange, index, m.Count)
	}
	key := s.key(path.Join(store.BuildPrefix(m.Fingerprint, m.BuildID), store.GraphName(index)))
	data, err := s.getObject(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph %d: %w", index, err)
	}
	return data, nil
}

type buildWriter struct {
	store       *S3GraphStore
	fingerprint string
	id          string
	tracker     *store.Tracker
	closed      bool
}

func (w *buildWriter) BuildID() string {
	return w.id
}

func (w *buildWriter) Put(ctx context.Context, index int, payload []byte) error {
	if w.closed {
		return store.ErrClosed
	}
	if err := w.tracker.Put(index); err != nil {
		return err
	}
	key := w.store.key(path.Join(store.BuildPrefix(w.fingerprint, w.id), store.GraphName(index)))
	if err := w.store.putObject(ctx, key, payload, "application/json"); err != nil {
		return fmt.Errorf("failed to upload graph %d: %w", index, err)
	}
	return nil
}

func (w *buildWriter) Commit(ctx context.Context, m store.Manifest) error {
	if w.closed {
		return store.ErrClosed
	}
	m.Fingerprint = w.fingerprint
	m.BuildID = w.id
	if err := m.Validate(); err != nil {
		return err
	}
	if err := w.tracker.Complete(m.Count); err != nil {
		return err
	}

	data, err := store.EncodeManifest(m)
	if err != nil {
		return err
	}
	if err := w.store.putObject(ctx, w.store.key(store.ManifestName(w.fingerprint, w.id)), data, "application/json"); err != nil {
		return fmt.Errorf("failed to upload manifest: %w", err)
	}
	currentKey := w.store.key(store.CurrentName(w.fingerprint))
	replaced := ""
	prev, err := w.store.getObject(ctx, currentKey)
	switch {
	case err == nil:
		replaced = strings.TrimSpace(string(prev))
	case !isNotFound(err):
		logger.Warn("Failed to read current build, skipping prune", "fingerprint", w.fingerprint, "err", err)
	}
	if err := w.store.putObject(ctx, currentKey, []byte(w.id), "text/plain"); err != nil {
		return fmt.Errorf("failed to publish build %s: %w", w.id, err)
	}
	w.closed = true

	// only the replaced build is pruned; staging prefixes of builds in flight stay
	if replaced != "" && replaced != w.id {
		old := w.store.key(store.BuildPrefix(w.fingerprint, replaced)) + "/"
		if err := w.store.deletePrefix(ctx, old); err != nil {
			logger.Warn("Failed to prune old build", "fingerprint", w.fingerprint, "build", replaced, "err", err)
		}
	}
	logger.Info("Committed graph build", "fingerprint", w.fingerprint, "build", w.id, "graphs", m.Count)
	return nil
}

func (w *buildWriter) Abort(ctx context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true
	prefix := w.store.key(store.BuildPrefix(w.fingerprint, w.id)) + "/"
	if err := w.store.deletePrefix(ctx, prefix); err != nil {
		return err
	}
	logger.Debug("Aborted graph build", "fingerprint", w.fingerprint, "build", w.id)
	return nil
}
