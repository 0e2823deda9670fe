package s3

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/singleflight"

	"github.com/OFFIS-RIT/decaygraph/pkg/loader"
)

// S3API is the subset of the S3 client used by the loader.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3SourceLoader is a SourceLoader implementation that loads file
// contents from an S3 bucket. It uses the AWS SDK v2 for Go.
//
// This loader is useful when the event files are stored in S3 instead of the
// local filesystem.
type S3SourceLoader struct {
	bucket string
	client S3API

	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewS3SourceLoaderWithClient creates a new S3SourceLoader using an
// existing client. This is useful if you want to reuse a preconfigured
// AWS client (e.g., with custom middleware or credentials).
func NewS3SourceLoaderWithClient(bucket string, client S3API) *S3SourceLoader {
	return &S3SourceLoader{
		bucket: bucket,
		client: client,
		cache:  make(map[string][]byte),
	}
}

// GetFileBytes retrieves the contents of the given SourceFile from the
// configured bucket. It implements the SourceLoader interface.
func (l *S3SourceLoader) GetFileBytes(ctx context.Context, file loader.SourceFile) ([]byte, error) {
	cacheKey := loader.CacheKey(file)

	l.cacheMu.RLock()
	if cached, ok := l.cache[cacheKey]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(cacheKey, func() (any, error) {
		l.cacheMu.RLock()
		if cached, ok := l.cache[cacheKey]; ok {
			l.cacheMu.RUnlock()
			return cached, nil
		}
		l.cacheMu.RUnlock()

		out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(l.bucket),
			Key:    aws.String(file.FilePath),
		})
		if err != nil {
			return nil, err
		}
		defer out.Body.Close()

		buf := new(bytes.Buffer)
		if _, err := io.Copy(buf, out.Body); err != nil {
			return nil, err
		}

		byts := buf.Bytes()

		l.cacheMu.Lock()
		l.cache[cacheKey] = byts
		l.cacheMu.Unlock()

		return byts, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}

// Discover lists every object under prefix whose key ends with ext, sorted by
// ID. The ID is the key relative to prefix.
func (l *S3SourceLoader) Discover(ctx context.Context, prefix string, ext string) ([]loader.SourceFile, error) {
	var files []loader.SourceFile
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(l.bucket),
		Prefix: aws.String(prefix),
	}

	for {
		listOutput, err := l.client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return nil, err
		}

		for _, obj := range listOutput.Contents {
			if obj.Key == nil || !strings.HasSuffix(*obj.Key, ext) {
				continue
			}
			files = append(files, loader.NewSourceFile(loader.NewSourceFileParams{
				ID:       strings.TrimPrefix(strings.TrimPrefix(*obj.Key, prefix), "/"),
				FilePath: *obj.Key,
				Loader:   l,
			}))
		}

		if listOutput.IsTruncated != nil && *listOutput.IsTruncated {
			listInput.ContinuationToken = listOutput.NextContinuationToken
		} else {
			break
		}
	}

	loader.SortByID(files)
	return files, nil
}
