package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore is the Google Cloud Storage backend. Objects use the same key
// layout and user metadata as S3Store.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

// NewGCSStore uses application default credentials unless credentialsJSON
// is given.
func NewGCSStore(ctx context.Context, bucket, credentialsJSON string) (*GCSStore, error) {
	var opts []option.ClientOption
	if strings.TrimSpace(credentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: client.Bucket(bucket)}, nil
}

func (s *GCSStore) Close() error { return s.client.Close() }

func (s *GCSStore) Put(ctx context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}

	w := s.bucket.Object(objectKey(meta.Clinic, meta.ID)).NewWriter(ctx)
	w.ContentType = meta.ContentType
	w.Metadata = map[string]string{
		metaKind:      meta.Kind,
		metaFileName:  meta.FileName,
		metaHash:      meta.Hash,
		metaCreatedBy: meta.CreatedBy,
		metaCreatedAt: strconv.FormatInt(meta.CreatedAt.Unix(), 10),
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("upload export %s: %w", meta.ID, err)
	}
	// The object is only committed on Close.
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("upload export %s: %w", meta.ID, err)
	}
	out := meta
	return &out, nil
}

func (s *GCSStore) Get(ctx context.Context, clinic, id string) (io.ReadCloser, *Metadata, error) {
	obj := s.bucket.Object(objectKey(clinic, id))
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("get export %s: %w", id, err)
	}
	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read export %s: %w", id, err)
	}
	return r, metadataFromAttrs(clinic, id, attrs), nil
}

func (s *GCSStore) List(ctx context.Context, clinic, kind string, limit, offset int) ([]*Metadata, int, error) {
	prefix := objectKey(clinic, "")
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})

	var matched []*Metadata
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("list exports: %w", err)
		}
		meta := metadataFromAttrs(clinic, strings.TrimPrefix(attrs.Name, prefix), attrs)
		if kind != "" && meta.Kind != kind {
			continue
		}
		matched = append(matched, meta)
	}

	sortNewestFirst(matched)
	return page(matched, limit, offset), len(matched), nil
}

func metadataFromAttrs(clinic, id string, attrs *storage.ObjectAttrs) *Metadata {
	meta := &Metadata{
		ID:          id,
		Clinic:      clinic,
		Kind:        attrs.Metadata[metaKind],
		FileName:    attrs.Metadata[metaFileName],
		Hash:        attrs.Metadata[metaHash],
		CreatedBy:   attrs.Metadata[metaCreatedBy],
		ContentType: attrs.ContentType,
		Size:        attrs.Size,
		CreatedAt:   attrs.Created.UTC(),
	}
	if unix, err := strconv.ParseInt(attrs.Metadata[metaCreatedAt], 10, 64); err == nil {
		meta.CreatedAt = time.Unix(unix, 0).UTC()
	}
	if meta.FileName == "" {
		meta.FileName = id
	}
	return meta
}
