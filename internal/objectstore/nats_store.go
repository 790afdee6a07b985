// Package objectstore stores job inputs and finished portrait videos in a
// NATS JetStream object store bucket.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/book-expert/avatar-service/internal/fileutil"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// ErrEmptyKey indicates that an object key was empty.
var ErrEmptyKey = errors.New("object key cannot be empty")

const (
	headerContentType  = "Content-Type"
	defaultContentType = "application/octet-stream"
)

// contentTypes maps the file extensions this service moves around (portrait
// images, driving audio, generated videos) to their media types.
var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// NatsObjectStore implements the core.ObjectStore interface using NATS JetStream.
type NatsObjectStore struct {
	bucket string
	store  nats.ObjectStore
}

// New creates and initializes a new NatsObjectStore for the artifact bucket.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsObjectStore, error) {
	// Use a "create-first" approach.
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Job inputs and generated portrait videos for the %s bucket.", bucketName),
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})

	// If the bucket already exists, bind to it.
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsObjectStore{
		bucket: bucketName,
		store:  store,
	}, nil
}

// Download retrieves an object from the NATS object store.
func (n *NatsObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	obj, err := n.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// Upload saves an object to the NATS object store, tagging it with its media
// type so consumers can serve the artifact without sniffing the bytes.
func (n *NatsObjectStore) Upload(_ context.Context, key string, data []byte) error {
	if key == "" {
		return ErrEmptyKey
	}

	_, err := n.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: describe(key),
		Headers:     nats.Header{headerContentType: []string{ContentTypeForKey(key)}},
		Metadata:    nil,
		Opts:        nil,
	}, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

// Info returns the stored metadata for an object.
func (n *NatsObjectStore) Info(_ context.Context, key string) (*nats.ObjectInfo, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	info, err := n.store.GetInfo(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get info for object '%s' in bucket '%s': %w", key, n.bucket, err)
	}

	return info, nil
}

// ContentTypeForKey maps an object key to a media type by its file extension.
func ContentTypeForKey(key string) string {
	contentType, ok := contentTypes[fileutil.GetFileExtension(key)]
	if !ok {
		return defaultContentType
	}

	return contentType
}

// describe labels an object by its role in the pipeline.
func describe(key string) string {
	contentType := ContentTypeForKey(key)

	switch {
	case strings.HasPrefix(contentType, "video/"):
		return "generated portrait video"
	case strings.HasPrefix(contentType, "audio/"):
		return "driving audio input"
	case strings.HasPrefix(contentType, "image/"):
		return "source portrait image"
	default:
		return ""
	}
}
